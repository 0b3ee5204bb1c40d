package speechmatics

import (
	"errors"
	"fmt"
)

// ErrForceEndSession can be returned by an event handler or middleware to
// force the realtime session to end early. The session drains and closes
// gracefully; Run does not report it as a failure.
var ErrForceEndSession = errors.New("session ended forcefully by handler")

// ConnectionError indicates the transport could not be established or the
// websocket handshake failed.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ConfigurationError indicates the server rejected the transcription
// configuration before the session started.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration rejected: %s", e.Reason)
}

// TranscriptionError is a terminal Error message reported by the server
// during a recognition session or a batch job.
type TranscriptionError struct {
	Reason string
}

func (e *TranscriptionError) Error() string { return e.Reason }

// JobNotFoundError indicates a batch job ID was not found (HTTP 404).
type JobNotFoundError struct {
	JobID string
}

func (e *JobNotFoundError) Error() string {
	return fmt.Sprintf("job %s not found", e.JobID)
}

// HTTPStatusError is a non-2xx response from the batch API. StatusCode lets
// callers branch on 400 (bad request) and 401 (auth) specifically.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status code: %d, response body: %s", e.StatusCode, e.Body)
}

// TimeoutError indicates a wait or poll budget was exceeded. The remote job
// or session is left as-is; the caller owns any cancellation.
type TimeoutError struct {
	Op      string
	Elapsed string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.Elapsed)
}

// ValidationError indicates a locally detected configuration problem, found
// before any network request is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
