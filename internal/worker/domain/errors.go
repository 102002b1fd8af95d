package domain

import "errors"

var (
	// ErrNoTab is returned when no browser tab can host the job
	ErrNoTab = errors.New("no matching tab open")

	// ErrTabLoadTimeout is returned when a navigated tab never finishes loading
	ErrTabLoadTimeout = errors.New("timed out waiting for tab to load")

	// ErrAdapterNotReady is returned when the page adapter never answers PING
	ErrAdapterNotReady = errors.New("page adapter not ready")

	// ErrSendFailed is returned when a start message cannot be delivered
	ErrSendFailed = errors.New("failed to send message to tab")

	// ErrEmptyPayload is returned for a completed video with no bytes
	ErrEmptyPayload = errors.New("empty video payload")

	// ErrStaleJob is returned when a message names a job that is no longer current
	ErrStaleJob = errors.New("job is not the current job")

	// ErrJobInFlight is returned when a new job would replace an unfinished one
	ErrJobInFlight = errors.New("another job is already processing")

	// ErrModeDisabled is returned when a polled job's mode was switched off
	// before the job could be recorded
	ErrModeDisabled = errors.New("mode is no longer enabled")

	ErrUnknownMessage = errors.New("unknown adapter message type")
	ErrUnknownControl = errors.New("unknown control message type")
	ErrInvalidMode    = errors.New("invalid mode")
)

// DispatchError carries the user-facing reason a job could not be started
type DispatchError struct {
	Reason string
	Err    error
}

func (e *DispatchError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return e.Reason + ": " + e.Err.Error()
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// NewDispatchError creates a dispatch error reported to the job source as reason
func NewDispatchError(reason string, err error) error {
	return &DispatchError{Reason: reason, Err: err}
}

// FailureReason extracts the message the job source should see for err
func FailureReason(err error) string {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Reason
	}
	return err.Error()
}
