package report

import "fmt"

const maxExcerpt = 256

// AuthError means the credential was rejected. Never retried at the HTTP
// level: the token will not become valid by waiting.
type AuthError struct {
	Status int
	Body   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("wb api rejected credential: status=%d body=%s", e.Status, e.Body)
}

// RetryExhausted wraps the last retriable failure after the attempt budget
// is spent.
type RetryExhausted struct {
	Attempts int
	Last     error
}

func (e *RetryExhausted) Error() string {
	return fmt.Sprintf("wb api retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetryExhausted) Unwrap() error { return e.Last }

// ProtocolError means the response did not have the expected structure.
// Not retried: the same request would produce the same malformed answer.
type ProtocolError struct {
	Hint    string
	Excerpt string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("wb api protocol violation: %s: %s", e.Hint, e.Excerpt)
}

// TaskFailedError means the remote side reported the report job itself as
// error/failed. Fatal for that window within the current attempt.
type TaskFailedError struct {
	TaskID string
	Status string
}

func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("wb report task %s ended with status %q", e.TaskID, e.Status)
}

func excerpt(body []byte) string {
	if len(body) > maxExcerpt {
		return string(body[:maxExcerpt]) + "..."
	}
	return string(body)
}
