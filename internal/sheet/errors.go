package sheet

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrNotConfigured signals that no fetch can be attempted because the
// document id or API key is missing. It is surfaced as its own condition so
// callers do not confuse misconfiguration with a remote failure.
var ErrNotConfigured = errors.New("sheet: document id and api key not configured")

// RemoteError wraps a failed call to the tabular source. Status 0 means the
// request never produced an HTTP response (network failure or timeout).
type RemoteError struct {
	Status int
	Op     string
	Reason string
	Err    error
}

func (e *RemoteError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("sheet: %s: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("sheet: %s: status %d: %s", e.Op, e.Status, e.Reason)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Transient reports whether the failure is worth retrying: throttling,
// server-side errors, and transport-level failures qualify; other client
// faults do not.
func (e *RemoteError) Transient() bool {
	if e.Status == 0 {
		return true
	}
	return e.Status == 429 || e.Status >= 500
}

// ExhaustedError marks a transient failure that survived every retry
// attempt. It is distinct from a client fault so the orchestrator can map
// the two to different external responses.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("sheet: retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// remoteReason maps a failing status code to the likely operator-facing cause.
func remoteReason(status int) string {
	switch status {
	case 400:
		return "bad request (check the configured range)"
	case 401, 403:
		return "permission denied (check the API key and sheet sharing)"
	case 404:
		return "not found (check the document id)"
	case 429:
		return "rate limited"
	default:
		if status >= 500 {
			return "remote server error"
		}
		return "unexpected response"
	}
}

// IsRetryable classifies an error for the retry policy.
func IsRetryable(err error) bool {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Transient()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsClientFault reports whether the error is a non-retryable remote fault
// (bad range, permission denied, wrong identifier).
func IsClientFault(err error) bool {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Status != 0 && !remote.Transient()
	}
	return false
}

// IsNotConfigured reports whether the error is the missing-configuration
// condition.
func IsNotConfigured(err error) bool {
	return errors.Is(err, ErrNotConfigured)
}

// IsExhausted reports whether retries ran out on a transient failure.
func IsExhausted(err error) bool {
	var exhausted *ExhaustedError
	return errors.As(err, &exhausted)
}
