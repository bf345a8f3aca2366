package services

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for the HTTP layer.
type Kind int

const (
	KindInputValidation Kind = iota + 1
	KindUpstream
	KindIndexUnavailable
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindInputValidation:
		return "input_validation"
	case KindUpstream:
		return "upstream_failure"
	case KindIndexUnavailable:
		return "index_unavailable"
	case KindIO:
		return "io_failure"
	}
	return "unknown"
}

// Error is a classified service failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
