package llm

import "errors"

// Backend failures fall into two classes. Retryable ones (rate limits, 5xx,
// dropped connections) are worth another attempt and, failing that, the next
// endpoint in the capability's fallback chain. Fatal ones (bad credentials,
// malformed requests) would fail identically everywhere, so the client
// surfaces them immediately instead of burning the chain.
type backendError struct {
	err       error
	retryable bool
}

func (e *backendError) Error() string { return e.err.Error() }
func (e *backendError) Unwrap() error { return e.err }

// NewTransientError marks err as retryable.
func NewTransientError(err error) error {
	return &backendError{err: err, retryable: true}
}

// NewFatalError marks err as permanent; retries and fallback are skipped.
func NewFatalError(err error) error {
	return &backendError{err: err}
}

// IsTransient reports whether err was classified as retryable.
func IsTransient(err error) bool {
	var be *backendError
	return errors.As(err, &be) && be.retryable
}

// IsFatal reports whether err was classified as permanent.
func IsFatal(err error) bool {
	var be *backendError
	return errors.As(err, &be) && !be.retryable
}
