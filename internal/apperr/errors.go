// Package apperr defines the error kinds surfaced by the record store.
package apperr

import (
	"errors"
	"strings"
)

var (
	ErrUnsupportedKind = errors.New("unsupported file type")
	ErrValidation      = errors.New("validation failed")
	ErrInvalidInput    = errors.New("invalid input")
	ErrNotFound        = errors.New("not found")
)

// Message returns the client-facing text of err. For wrapped sentinels of
// the form "<sentinel>: <detail>" only the detail is kept.
func Message(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, s := range []error{ErrUnsupportedKind, ErrValidation, ErrInvalidInput, ErrNotFound} {
		if !errors.Is(err, s) {
			continue
		}
		if detail, ok := strings.CutPrefix(msg, s.Error()+": "); ok {
			return detail
		}
	}
	return msg
}
