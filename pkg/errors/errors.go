// Package errors wraps github.com/pkg/errors with printf-style helpers so
// callers can write errors.New("unsupported type: %v", t) without pulling in
// fmt everywhere.
package errors

import (
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

// New returns an error with the supplied message, formatted when args are given.
func New(format string, args ...interface{}) error {
	if len(args) == 0 {
		return errors.New(format)
	}
	return errors.Errorf(format, args...)
}

// Wrap returns an error annotating err with a stack trace and message.
// Returns nil if err is nil.
func Wrap(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	if len(args) == 0 {
		return errors.Wrap(err, format)
	}
	return errors.Wrapf(err, format, args...)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// Cause returns the underlying cause of the error, if possible.
func Cause(err error) error {
	return errors.Cause(err)
}

// Sentinel is an error type for constant errors.
type Sentinel string

func (s Sentinel) Error() string {
	return string(s)
}

var _ error = Sentinel("")

// Errorf is kept for parity with the fmt API.
func Errorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
