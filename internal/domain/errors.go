package domain

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrEmptyWorkset           = errors.New("empty workset")
	ErrDispatchPartialFailure = errors.New("dispatch partial failure")
	ErrInvalidPayload         = errors.New("invalid payload")
	ErrUnknownJobKind         = errors.New("unknown job kind")
	ErrPollTimeout            = errors.New("poll timeout")
	ErrPollCancelled          = errors.New("poll cancelled")
	ErrIncompleteArtifact     = errors.New("incomplete artifact")
	ErrArtifactPersistFailure = errors.New("artifact persist failure")
	ErrProviderFailure        = errors.New("provider failure")
)

// permanentError wraps an error that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// AsPermanent marks err so the worker fails the job immediately instead of
// consuming a retry attempt.
func AsPermanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err (or anything it wraps) must not be retried.
// Validation failures and unknown kinds are permanent regardless of wrapping.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var pe *permanentError
	if errors.As(err, &pe) {
		return true
	}
	return errors.Is(err, ErrInvalidPayload) ||
		errors.Is(err, ErrUnknownJobKind) ||
		errors.Is(err, ErrProviderFailure) ||
		errors.Is(err, ErrArtifactPersistFailure)
}
