package convert

import (
	"errors"
	"fmt"

	"github.com/kailas-cloud/omhash/internal/bucket"
)

// Sentinel errors for conversion.
var (
	ErrTypeMismatch        = errors.New("type mismatch")
	ErrMalformedPath       = bucket.ErrMalformedPath
	ErrMaxDepth            = errors.New("maximum nesting depth exceeded")
	ErrUnresolvedReference = errors.New("unresolved reference")
)

// Error names the field path a conversion failed at.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return "convert: " + e.Err.Error()
	}
	return "convert: " + e.Path + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func mismatch(path, format string, args ...any) error {
	return &Error{Path: path, Err: fmt.Errorf("%w: "+format, append([]any{ErrTypeMismatch}, args...)...)}
}

func codecFailure(path string, err error) error {
	return &Error{Path: path, Err: fmt.Errorf("%w: %w", ErrTypeMismatch, err)}
}
