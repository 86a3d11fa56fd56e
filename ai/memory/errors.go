package memory

import (
	"github.com/pkg/errors"

	"github.com/hrygo/mnemo/store"
)

// ErrInvalidInput marks a request rejected before it reached the backend.
var ErrInvalidInput = errors.New("invalid memory request")

// ErrUnknownScope is returned by Read for a scope it does not know.
var ErrUnknownScope = errors.Wrap(ErrInvalidInput, "unknown scope")

// transientError marks a backend failure the caller may retry.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }

func (e *transientError) Unwrap() error { return e.err }

// IsTransient reports whether err is a retryable backend failure.
func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

// IsInvalidInput reports whether err was caused by a malformed request.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

func invalidf(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidInput, format, args...)
}

// wrapBackend annotates a driver error. Sentinels stay matchable through errors.Is,
// store validation failures become ErrInvalidInput and anything else is treated
// as a transient backend failure.
func wrapBackend(err error, op string) error {
	if err == nil {
		return nil
	}
	if store.IsInvalidArgument(err) {
		return errors.Wrapf(ErrInvalidInput, "%s: %v", op, err)
	}
	wrapped := errors.Wrap(err, op)
	if store.IsCapabilityUnsupported(err) || errors.Is(err, store.ErrNotFound) {
		return wrapped
	}
	return &transientError{err: wrapped}
}
