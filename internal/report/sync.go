package report

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"wbstorage/internal"
	"wbstorage/internal/config"
	"wbstorage/internal/storage"
)

// Summary is what one orchestrator run did. Deferred counts windows whose
// report task did not finish within the wait budget; they are picked up
// again by the next scheduled invocation.
type Summary struct {
	Mode      string
	Windows   int
	Succeeded int
	Skipped   int
	Deferred  int
	Rows      int
}

// SyncService drives windows strictly sequentially: plan, then per window
// create task, poll, download, normalize and upsert, with a bounded retry of
// the whole sequence per window. One window exhausting its retries never
// aborts the run.
type SyncService struct {
	writer *storage.Writer
	client *Client
	cfg    config.Config
	log    *logrus.Entry

	now func() time.Time
}

func NewSyncService(writer *storage.Writer, cfg config.Config) *SyncService {
	return &SyncService{
		writer: writer,
		client: NewClient(cfg),
		cfg:    cfg,
		log:    logrus.WithField("component", "report.sync"),
		now:    time.Now,
	}
}

// Backfill sweeps Jan 1 through Dec 31 of one year.
func (s *SyncService) Backfill(ctx context.Context, year int) (Summary, error) {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
	return s.runRange(ctx, "backfill", from, to)
}

// Range sweeps an explicit closed interval.
func (s *SyncService) Range(ctx context.Context, from, to time.Time) (Summary, error) {
	return s.runRange(ctx, "range", from, to)
}

// Since sweeps from a date through today.
func (s *SyncService) Since(ctx context.Context, from time.Time) (Summary, error) {
	return s.runRange(ctx, "since", from, s.today())
}

// Sync sweeps the rolling window of the last daysBack days including today.
func (s *SyncService) Sync(ctx context.Context, daysBack int) (Summary, error) {
	if daysBack <= 0 {
		daysBack = internal.MaxWindowDays
	}
	today := s.today()
	return s.runRange(ctx, "sync", today.AddDate(0, 0, -(daysBack-1)), today)
}

func (s *SyncService) today() time.Time {
	t := s.now().UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *SyncService) runRange(ctx context.Context, mode string, from, to time.Time) (Summary, error) {
	if from.After(to) {
		return Summary{Mode: mode}, errors.New("range start is after range end")
	}

	trace := uuid.NewString()
	started := s.now()
	windows := internal.PlanWindows(from, to)
	summary := Summary{Mode: mode, Windows: len(windows)}
	log := s.log.WithFields(logrus.Fields{"trace": trace, "mode": mode})

	log.WithFields(logrus.Fields{
		"from":    from.Format("2006-01-02"),
		"to":      to.Format("2006-01-02"),
		"windows": len(windows),
	}).Info("starting sync run")

	retryPause := time.Duration(s.cfg.WindowRetryPauseMs) * time.Millisecond
	windowPause := time.Duration(s.cfg.WindowPauseMs) * time.Millisecond

	for i, win := range windows {
		wlog := log.WithField("window", win.String())

		retries := s.cfg.WindowRetries
		if retries <= 0 {
			retries = 1
		}

		var deferred bool
		var done bool
		for attempt := 1; attempt <= retries; attempt++ {
			rows, outcome, err := s.runWindow(ctx, win)
			if err == nil {
				switch outcome {
				case StateTimedOut:
					wlog.Warn("report task not ready within wait budget, deferring window to next run")
					deferred = true
				default:
					wlog.WithField("rows", rows).Info("window synced")
					summary.Succeeded++
					summary.Rows += rows
					done = true
				}
				break
			}

			wlog.WithFields(logrus.Fields{"attempt": attempt, "error": err.Error()}).Warn("window attempt failed")
			if attempt < retries {
				time.Sleep(retryPause)
			}
		}

		switch {
		case deferred:
			summary.Deferred++
		case !done:
			wlog.Error("window skipped after exhausting retries")
			summary.Skipped++
		}

		if i < len(windows)-1 {
			// Courtesy pause so consecutive windows don't trip the rate limit.
			time.Sleep(windowPause)
		}
	}

	s.recordRun(ctx, trace, started, summary)

	log.WithFields(logrus.Fields{
		"succeeded": summary.Succeeded,
		"skipped":   summary.Skipped,
		"deferred":  summary.Deferred,
		"rows":      summary.Rows,
	}).Info("sync run finished")

	return summary, nil
}

// runWindow runs one create -> poll -> download -> normalize -> upsert cycle.
// A soft poll timeout comes back as (0, StateTimedOut, nil).
func (s *SyncService) runWindow(ctx context.Context, win internal.Window) (int, PollState, error) {
	taskID, err := s.client.CreateTask(ctx, win)
	if err != nil {
		return 0, "", err
	}

	result, err := s.client.WaitForTask(ctx, taskID)
	if err != nil {
		return 0, "", err
	}
	switch result.State {
	case StateTimedOut:
		return 0, StateTimedOut, nil
	case StateFailed:
		return 0, "", &TaskFailedError{TaskID: taskID, Status: result.LastStatus}
	}

	raw, err := s.client.DownloadReport(ctx, taskID)
	if err != nil {
		return 0, "", err
	}

	records := make([]internal.StorageRecord, 0, len(raw))
	for _, row := range raw {
		records = append(records, NormalizeRow(row, taskID))
	}

	written, err := s.writer.Write(ctx, records)
	if err != nil {
		return 0, "", err
	}
	return written, StateDone, nil
}

func (s *SyncService) recordRun(ctx context.Context, trace string, started time.Time, summary Summary) {
	sink := s.writer.Sink()
	run := internal.RunRecord{
		TraceID:    trace,
		Mode:       summary.Mode,
		Windows:    summary.Windows,
		Succeeded:  summary.Succeeded,
		Skipped:    summary.Skipped,
		Deferred:   summary.Deferred,
		Rows:       summary.Rows,
		StartedAt:  started,
		FinishedAt: s.now(),
	}
	if err := sink.RecordRun(ctx, run); err != nil {
		s.log.WithField("error", err.Error()).Warn("failed to record sync run")
	}
	if err := sink.SetMetadata(ctx, "report.last_sync."+summary.Mode, s.now().UTC().Format(time.RFC3339)); err != nil {
		s.log.WithField("error", err.Error()).Warn("failed to stamp sync metadata")
	}
}
