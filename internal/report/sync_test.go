package report

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"wbstorage/internal"
	"wbstorage/internal/config"
	"wbstorage/internal/storage"
)

func TestMain(m *testing.M) {
	logrus.SetLevel(logrus.ErrorLevel)
	m.Run()
}

type captureSink struct {
	records []internal.StorageRecord
	runs    []internal.RunRecord
	meta    map[string]string
}

func newCaptureSink() *captureSink {
	return &captureSink{meta: map[string]string{}}
}

func (s *captureSink) UpsertChunk(ctx context.Context, records []internal.StorageRecord) error {
	s.records = append(s.records, records...)
	return nil
}

func (s *captureSink) SelectRange(ctx context.Context, from, to string) ([]internal.StorageRecord, error) {
	return nil, nil
}

func (s *captureSink) RecordRun(ctx context.Context, run internal.RunRecord) error {
	s.runs = append(s.runs, run)
	return nil
}

func (s *captureSink) SetMetadata(ctx context.Context, key, value string) error {
	s.meta[key] = value
	return nil
}

func (s *captureSink) Close() error { return nil }

func newTestService(cfg config.Config, sink storage.Sink, rt roundTripFunc) *SyncService {
	svc := NewSyncService(storage.NewWriter(sink, cfg.UpsertChunk), cfg)
	svc.client.httpClient = &http.Client{Transport: rt}
	return svc
}

func TestRangeSyncsWindowEndToEnd(t *testing.T) {
	sink := newCaptureSink()
	polls := 0
	rt := func(r *http.Request) (*http.Response, error) {
		switch {
		case r.URL.Path == "/api/v1/paid_storage":
			return jsonResponse(http.StatusOK, `{"data":{"taskId":"t1"}}`), nil
		case strings.HasSuffix(r.URL.Path, "/status"):
			polls++
			if polls < 2 {
				return jsonResponse(http.StatusOK, `{"data":{"status":"processing"}}`), nil
			}
			return jsonResponse(http.StatusOK, `{"data":{"status":"done"}}`), nil
		case strings.HasSuffix(r.URL.Path, "/download"):
			return jsonResponse(http.StatusOK, `{"data":[
				{"date":"2024-03-02","nmId":1,"chrtId":10,"officeId":100,"warehousePrice":0.10},
				{"date":"2024-03-03","nmId":2,"chrtId":20,"officeId":100,"warehousePrice":0.20},
				{"date":"2024-03-02","nmId":1,"chrtId":10,"officeId":100,"warehousePrice":0.99}
			]}`), nil
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
			return nil, nil
		}
	}

	svc := newTestService(testConfig(), sink, rt)
	win := window("2024-03-01", "2024-03-08")
	summary, err := svc.Range(context.Background(), win.From, win.To)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.Windows != 1 || summary.Succeeded != 1 || summary.Skipped != 0 || summary.Deferred != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.Rows != 2 {
		t.Fatalf("expected 2 rows after dedupe, got %d", summary.Rows)
	}
	if len(sink.records) != 2 {
		t.Fatalf("sink received %d records, want 2", len(sink.records))
	}
	for _, rec := range sink.records {
		if rec.TaskID != "t1" {
			t.Errorf("record missing task id: %+v", rec)
		}
		if rec.NmID != nil && *rec.NmID == 1 && (rec.WarehousePrice == nil || *rec.WarehousePrice != 0.99) {
			t.Errorf("last write did not win for shared key: %v", rec.WarehousePrice)
		}
	}
	if len(sink.runs) != 1 {
		t.Fatalf("expected 1 run record, got %d", len(sink.runs))
	}
	if sink.runs[0].Mode != "range" || sink.runs[0].Rows != 2 {
		t.Fatalf("unexpected run record: %+v", sink.runs[0])
	}
	if _, ok := sink.meta["report.last_sync.range"]; !ok {
		t.Fatal("missing last_sync metadata stamp")
	}
}

func TestTimedOutWindowIsDeferredNotFailed(t *testing.T) {
	sink := newCaptureSink()
	rt := func(r *http.Request) (*http.Response, error) {
		switch {
		case r.URL.Path == "/api/v1/paid_storage":
			return jsonResponse(http.StatusOK, `{"data":{"taskId":"t1"}}`), nil
		case strings.HasSuffix(r.URL.Path, "/status"):
			return jsonResponse(http.StatusOK, `{"data":{"status":"processing"}}`), nil
		default:
			t.Fatalf("download must not be called for a task that never finished")
			return nil, nil
		}
	}

	svc := newTestService(testConfig(), sink, rt)
	summary, err := svc.Range(context.Background(), day(t, "2024-03-01"), day(t, "2024-03-01"))
	if err != nil {
		t.Fatalf("a timed-out window must not fail the run: %v", err)
	}
	if summary.Deferred != 1 || summary.Skipped != 0 || summary.Succeeded != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestExhaustedWindowIsSkippedAndRunContinues(t *testing.T) {
	sink := newCaptureSink()
	rt := func(r *http.Request) (*http.Response, error) {
		q := r.URL.Query()
		switch {
		case r.URL.Path == "/api/v1/paid_storage" && q.Get("dateFrom") == "2024-03-01":
			// First window: creation permanently broken.
			return jsonResponse(http.StatusInternalServerError, `{}`), nil
		case r.URL.Path == "/api/v1/paid_storage":
			return jsonResponse(http.StatusOK, `{"data":{"taskId":"t2"}}`), nil
		case strings.HasSuffix(r.URL.Path, "/status"):
			return jsonResponse(http.StatusOK, `{"data":{"status":"done"}}`), nil
		case strings.HasSuffix(r.URL.Path, "/download"):
			return jsonResponse(http.StatusOK, `[{"date":"2024-03-09","nmId":1,"chrtId":1,"officeId":1}]`), nil
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
			return nil, nil
		}
	}

	cfg := testConfig()
	cfg.RetryMax = 2 // keep the broken window cheap
	svc := newTestService(cfg, sink, rt)
	summary, err := svc.Range(context.Background(), day(t, "2024-03-01"), day(t, "2024-03-09"))
	if err != nil {
		t.Fatalf("one bad window must not abort the run: %v", err)
	}
	if summary.Windows != 2 {
		t.Fatalf("expected 2 windows, got %d", summary.Windows)
	}
	if summary.Skipped != 1 || summary.Succeeded != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(sink.records) != 1 {
		t.Fatalf("second window should still land: %d records", len(sink.records))
	}
}

func TestRemoteTaskFailureIsRetriedPerWindow(t *testing.T) {
	sink := newCaptureSink()
	creates := 0
	rt := func(r *http.Request) (*http.Response, error) {
		switch {
		case r.URL.Path == "/api/v1/paid_storage":
			creates++
			return jsonResponse(http.StatusOK, `{"data":{"taskId":"t1"}}`), nil
		case strings.HasSuffix(r.URL.Path, "/status"):
			if creates < 2 {
				return jsonResponse(http.StatusOK, `{"data":{"status":"failed"}}`), nil
			}
			return jsonResponse(http.StatusOK, `{"data":{"status":"done"}}`), nil
		case strings.HasSuffix(r.URL.Path, "/download"):
			return jsonResponse(http.StatusOK, `[]`), nil
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
			return nil, nil
		}
	}

	svc := newTestService(testConfig(), sink, rt)
	summary, err := svc.Range(context.Background(), day(t, "2024-03-01"), day(t, "2024-03-01"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if creates != 2 {
		t.Fatalf("expected a fresh task on window retry, got %d creates", creates)
	}
	if summary.Succeeded != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestRangeRejectsInvertedBounds(t *testing.T) {
	svc := newTestService(testConfig(), newCaptureSink(), func(r *http.Request) (*http.Response, error) {
		t.Fatal("no request should be issued")
		return nil, errors.New("unreachable")
	})
	if _, err := svc.Range(context.Background(), day(t, "2024-03-02"), day(t, "2024-03-01")); err == nil {
		t.Fatal("expected error for inverted range")
	}
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	return window(s, s).From
}
