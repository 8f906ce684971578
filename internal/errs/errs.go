// Package errs attaches sentinel errors and stack traces to failures.
//
// [Wrap] pairs a package-level sentinel with the underlying cause, so callers
// can match either with errors.Is while the message keeps both. The returned
// error carries a stack trace, printed with the "%+v" verb in debug mode.
//
// Example usage:
//
//	if err := os.MkdirAll(dir, 0755); err != nil {
//	    return errs.Wrap(ErrFileSystemOperation, err)
//	}
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Pairs a sentinel with its cause.
type wrapped struct {
	sentinel error
	cause    error
}

func (w *wrapped) Error() string {
	return w.sentinel.Error() + ": " + w.cause.Error()
}

func (w *wrapped) Unwrap() []error {
	return []error{w.sentinel, w.cause}
}

// Wraps err with a sentinel and a stack trace.
//
// Returns nil if err is nil.
func Wrap(sentinel, err error) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(&wrapped{sentinel: sentinel, cause: err})
}

// Wraps a formatted cause with a sentinel and a stack trace.
//
// The format may use %w to keep an inner error matchable.
func Wrapf(sentinel error, format string, args ...any) error {
	return errors.WithStack(&wrapped{sentinel: sentinel, cause: fmt.Errorf(format, args...)})
}
