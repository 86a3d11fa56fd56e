package store

import (
	"github.com/pkg/errors"
)

var (
	// ErrCapabilityUnsupported is returned by drivers for operations they cannot serve,
	// e.g. conversation capture or vector search on the flat-file driver.
	ErrCapabilityUnsupported = errors.New("capability not supported by memory driver")

	// ErrNotFound is returned when a memory entry or job does not exist.
	ErrNotFound = errors.New("not found")

	// ErrLeaseLost is returned when a job is completed or failed with a claim token
	// that no longer owns it (lease expired and another worker reclaimed it).
	ErrLeaseLost = errors.New("embedding job lease lost")

	// ErrInvalidArgument is wrapped by request validation failures. Retrying
	// the same request cannot succeed.
	ErrInvalidArgument = errors.New("invalid argument")
)

// MaxSearchLimit caps the limit of vector searches and job claims.
const MaxSearchLimit = 1000

// IsCapabilityUnsupported reports whether err wraps ErrCapabilityUnsupported.
func IsCapabilityUnsupported(err error) bool {
	return errors.Is(err, ErrCapabilityUnsupported)
}

// Unsupported wraps ErrCapabilityUnsupported with the operation and driver name.
func Unsupported(driver, operation string) error {
	return errors.Wrapf(ErrCapabilityUnsupported, "%s not supported by %s driver", operation, driver)
}

// IsInvalidArgument reports whether err wraps ErrInvalidArgument.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

func invalidArgf(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidArgument, format, args...)
}
