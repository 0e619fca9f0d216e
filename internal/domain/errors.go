package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrNoBrief         = errors.New("brief not created")
	ErrNoPrompt        = errors.New("prompt not ready")
	ErrNoGeneration    = errors.New("no generation")
	ErrUnknownResult   = errors.New("unknown result")
	ErrCancelled       = errors.New("polling cancelled")
	ErrBackendFailure  = errors.New("backend failure")
	ErrTimeout         = errors.New("polling timed out")
	ErrUpstreamUnready = errors.New("upstream unavailable")
)

// TransportError reports a failure to reach the backend or a non-2xx reply.
// StatusCode is zero when no HTTP response was received.
type TransportError struct {
	Op         string
	StatusCode int
	Detail     string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Detail != "":
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Detail)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op + ": transport error"
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// BackendFailure is a job the backend explicitly reported as failed.
type BackendFailure struct {
	JobID   string
	Message string
}

func (e *BackendFailure) Error() string {
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Message)
}

func (e *BackendFailure) Is(target error) bool { return target == ErrBackendFailure }

// TimeoutError is returned once the attempt budget is spent without a
// terminal status. LastErr holds the most recent transport error, if any.
type TimeoutError struct {
	JobID    string
	Attempts int
	LastErr  error
}

func (e *TimeoutError) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf("job %s: no terminal status after %d attempts: %v", e.JobID, e.Attempts, e.LastErr)
	}
	return fmt.Sprintf("job %s: no terminal status after %d attempts", e.JobID, e.Attempts)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

func (e *TimeoutError) Unwrap() error { return e.LastErr }
