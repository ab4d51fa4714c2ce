package api

import (
	"errors"
	"fmt"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
	ErrNotFound   = errors.New("not found")
)

// opError tags an error with the handler operation that produced it.
type opError struct {
	op   string
	kind error
	err  error
}

func (e *opError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("%s: %v", e.op, e.kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.op, e.kind, e.err)
}

func (e *opError) Unwrap() []error {
	if e.err == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.err}
}

// NewKind returns an error of kind for op.
func NewKind(op string, kind error) error { return &opError{op: op, kind: kind} }

// WrapKind wraps err as kind for op.
func WrapKind(op string, kind, err error) error { return &opError{op: op, kind: kind, err: err} }

// Wrap prefixes err with op.
func Wrap(op string, err error) error { return fmt.Errorf("%s: %w", op, err) }
