// Package result defines the uniform tri-state outcome returned by every
// public shmvars operation, plus the error kinds those outcomes carry.
//
// Operations never panic across the public boundary; callers that want
// fail-fast behavior use the unwrap family (MustData, DataAs with error
// checks dropped) to convert a non-success outcome into a raised error.
package result

import (
	"errors"
	"fmt"
)

// Status is the tri-state outcome discriminator.
type Status uint8

const (
	StatusSuccess Status = iota
	StatusFailure
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Result carries the outcome of an operation: a status, a human-readable
// message, the operation context it originated from, and an optional
// payload. Results are value types and safe to copy.
type Result struct {
	Status  Status
	Message string
	Context string
	Data    any

	err error
}

// OK returns a success outcome carrying data.
func OK(data any) Result {
	return Result{Status: StatusSuccess, Data: data}
}

// OKMsg returns a success outcome with a message and data.
func OKMsg(msg string, data any) Result {
	return Result{Status: StatusSuccess, Message: msg, Data: data}
}

// Fail returns a failure outcome wrapping err, attributed to context.
func Fail(err error, context string) Result {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Result{Status: StatusFailure, Message: msg, Context: context, err: err}
}

// Failf returns a failure outcome from a formatted message. The kind
// sentinel, if any, should be wrapped with %w so Is() keeps working.
func Failf(context, format string, a ...any) Result {
	return Fail(fmt.Errorf(format, a...), context)
}

// Cancelled returns a cancelled outcome.
func Cancelled(msg, context string) Result {
	return Result{Status: StatusCancelled, Message: msg, Context: context, err: ErrCancelled}
}

// Success reports whether the operation succeeded.
func (r Result) Success() bool { return r.Status == StatusSuccess }

// Err is part of the unwrap family: it returns nil on success and the
// underlying error otherwise. Cancelled outcomes yield ErrCancelled.
func (r Result) Err() error {
	switch r.Status {
	case StatusSuccess:
		return nil
	default:
		if r.err != nil {
			return r.err
		}
		return errors.New(r.Message)
	}
}

// MustData is part of the unwrap family: it returns the payload on success
// and panics with the underlying error otherwise.
func (r Result) MustData() any {
	if err := r.Err(); err != nil {
		panic(err)
	}
	return r.Data
}

// Is reports whether the outcome's underlying error matches target.
func (r Result) Is(target error) bool {
	return r.err != nil && errors.Is(r.err, target)
}

// DataAs returns the payload converted to T. A non-success outcome or a
// payload of the wrong dynamic type yields an error.
func DataAs[T any](r Result) (T, error) {
	var zero T
	if err := r.Err(); err != nil {
		return zero, err
	}
	v, ok := r.Data.(T)
	if !ok {
		return zero, fmt.Errorf("result payload is %T, not %T", r.Data, zero)
	}
	return v, nil
}
