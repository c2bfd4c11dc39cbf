package report

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"wbstorage/internal"
)

const (
	pathCreate       = "/api/v1/paid_storage"
	pathTaskStatus   = "/api/v1/paid_storage/tasks/"
	statusSuffix     = "/status"
	downloadSuffix   = "/download"
	taskStatusNew    = "new"
	taskStatusWork   = "processing"
	taskStatusDone   = "done"
	taskStatusError  = "error"
	taskStatusFailed = "failed"
)

// PollState is the terminal outcome of waiting for a report task.
type PollState string

const (
	StateDone     PollState = "done"
	StateFailed   PollState = "failed"
	StateTimedOut PollState = "timed_out"
)

// PollResult is returned from WaitForTask instead of an error: a task that
// is still not ready when the wait budget runs out is a soft outcome the
// orchestrator defers to the next scheduled run, not a failure of this one.
type PollResult struct {
	State      PollState
	LastStatus string
}

// wrapperKeys are the object keys the API has been observed to wrap list or
// object payloads under, probed in order.
var wrapperKeys = []string{"data", "rows", "items", "result"}

// CreateTask submits a report job for one window and returns the opaque task
// id. Creation is not idempotent on the remote side; a retried window may
// leave a duplicate task behind, which is harmless because ingestion is
// deduplicated by natural key downstream.
func (c *Client) CreateTask(ctx context.Context, win internal.Window) (string, error) {
	params := map[string]string{
		"dateFrom": win.From.Format("2006-01-02"),
		"dateTo":   win.To.Format("2006-01-02"),
	}
	body, err := c.getJSON(ctx, pathCreate, params, false)
	if err != nil {
		return "", err
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", &ProtocolError{Hint: "create response is not json", Excerpt: excerpt(body)}
	}
	id := probeTaskID(payload)
	if id == "" {
		return "", &ProtocolError{Hint: "create response has no taskId", Excerpt: excerpt(body)}
	}
	return id, nil
}

// TaskStatus fetches the current remote status of a task.
func (c *Client) TaskStatus(ctx context.Context, taskID string) (string, error) {
	body, err := c.getJSON(ctx, pathTaskStatus+taskID+statusSuffix, nil, false)
	if err != nil {
		return "", err
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", &ProtocolError{Hint: "status response is not json", Excerpt: excerpt(body)}
	}
	status := probeStatus(payload)
	if status == "" {
		return "", &ProtocolError{Hint: "status response has no status", Excerpt: excerpt(body)}
	}
	return status, nil
}

// WaitForTask polls the task status until it is terminal or the wait budget
// is exceeded. Only transport-level problems are returned as errors; a
// remote error/failed status and a local timeout both come back as results.
func (c *Client) WaitForTask(ctx context.Context, taskID string) (PollResult, error) {
	interval := time.Duration(c.cfg.PollIntervalMs) * time.Millisecond
	maxInterval := time.Duration(c.cfg.PollMaxIntervalMs) * time.Millisecond
	deadline := time.Now().Add(time.Duration(c.cfg.PollBudgetMs) * time.Millisecond)

	last := ""
	for {
		status, err := c.TaskStatus(ctx, taskID)
		if err != nil {
			return PollResult{}, err
		}
		last = status

		switch status {
		case taskStatusDone:
			return PollResult{State: StateDone, LastStatus: status}, nil
		case taskStatusError, taskStatusFailed:
			return PollResult{State: StateFailed, LastStatus: status}, nil
		case taskStatusNew, taskStatusWork:
			// keep waiting
		default:
			c.log.WithFields(logrus.Fields{
				"task":   taskID,
				"status": status,
			}).Warn("unknown task status, treating as still processing")
		}

		if time.Now().Add(interval).After(deadline) {
			return PollResult{State: StateTimedOut, LastStatus: last}, nil
		}
		time.Sleep(interval)
		interval += time.Second
		if interval > maxInterval {
			interval = maxInterval
		}
	}
}

// DownloadReport fetches the finished report. The payload is either a bare
// array of rows or an object wrapping it under one of wrapperKeys; an
// unrecognized non-list shape yields zero rows and a diagnostic, while a
// body that is not JSON at all is a hard protocol error.
func (c *Client) DownloadReport(ctx context.Context, taskID string) ([]map[string]any, error) {
	body, err := c.getJSON(ctx, pathTaskStatus+taskID+downloadSuffix, nil, true)
	if err != nil {
		return nil, err
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &ProtocolError{Hint: "download response is not json", Excerpt: excerpt(body)}
	}

	list, ok := probeList(payload)
	if !ok {
		c.log.WithFields(logrus.Fields{
			"task":    taskID,
			"excerpt": excerpt(body),
		}).Warn("download payload has unexpected shape, treating as zero rows")
		return nil, nil
	}

	rows := make([]map[string]any, 0, len(list))
	skipped := 0
	for _, item := range list {
		row, ok := item.(map[string]any)
		if !ok {
			skipped++
			continue
		}
		rows = append(rows, row)
	}
	if skipped > 0 {
		c.log.WithFields(logrus.Fields{"task": taskID, "skipped": skipped}).Warn("skipped non-object rows in download payload")
	}
	return rows, nil
}

// probeList normalizes a decoded payload to a plain list: bare array first,
// then each wrapper key at the top level, then one level deeper under an
// object "data" envelope. First match wins.
func probeList(payload any) ([]any, bool) {
	if list, ok := payload.([]any); ok {
		return list, true
	}
	obj, ok := payload.(map[string]any)
	if !ok {
		return nil, false
	}
	for _, key := range wrapperKeys {
		if list, ok := obj[key].([]any); ok {
			return list, true
		}
	}
	if inner, ok := obj["data"].(map[string]any); ok {
		for _, key := range wrapperKeys {
			if list, ok := inner[key].([]any); ok {
				return list, true
			}
		}
	}
	return nil, false
}

func probeTaskID(payload any) string {
	obj, ok := payload.(map[string]any)
	if !ok {
		return ""
	}
	if id, ok := obj["taskId"].(string); ok {
		return id
	}
	if inner, ok := obj["data"].(map[string]any); ok {
		if id, ok := inner["taskId"].(string); ok {
			return id
		}
		if id, ok := inner["id"].(string); ok {
			return id
		}
	}
	if id, ok := obj["id"].(string); ok {
		return id
	}
	return ""
}

func probeStatus(payload any) string {
	obj, ok := payload.(map[string]any)
	if !ok {
		return ""
	}
	if status, ok := obj["status"].(string); ok {
		return status
	}
	if inner, ok := obj["data"].(map[string]any); ok {
		if status, ok := inner["status"].(string); ok {
			return status
		}
	}
	return ""
}
