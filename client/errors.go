package client

import (
	"fmt"
	"time"
)

// ConnectionError reports that the backend could not be reached at all.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("cannot reach backend at %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError reports an HTTP response the client could not interpret:
// an unparsable status line or response framing.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("protocol error: %s", e.Reason)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// SubmissionError reports a rejected graph submission: a non-2xx status, or
// a response without a job identifier.
type SubmissionError struct {
	Status int
	Reason string
}

func (e *SubmissionError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("graph submission failed (HTTP %d): %s", e.Status, e.Reason)
	}
	return fmt.Sprintf("graph submission failed: %s", e.Reason)
}

// WaitTimeoutError reports that a job produced no outputs within the
// caller's maximum wait.  Distinct from ProtocolError: the backend answered
// every poll, it just never finished the job in time.
type WaitTimeoutError struct {
	JobID string
	Wait  time.Duration
}

func (e *WaitTimeoutError) Error() string {
	return fmt.Sprintf("job %s produced no outputs within %s", e.JobID, e.Wait)
}

// DownloadError reports a failed artifact download: the transfer failed, or
// the destination file is absent or empty afterwards.
type DownloadError struct {
	Path string
	Err  error
}

func (e *DownloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("artifact download to %s failed: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("artifact download to %s failed: file absent or empty", e.Path)
}

func (e *DownloadError) Unwrap() error { return e.Err }
