package detect

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure. ImageLoad failures are client
// errors and never retried; the rest are retryable up to the attempt
// bound.
type Kind int

const (
	KindInternal Kind = iota
	KindTimeout
	KindImageLoad
	KindInference
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindImageLoad:
		return "image_load"
	case KindInference:
		return "inference"
	default:
		return "internal"
	}
}

// Error is a classified pipeline failure.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// ErrTimeout marks an attempt abandoned by the wall-clock deadline.
var ErrTimeout = &Error{Kind: KindTimeout, Msg: "image processing timed out"}

func imageLoadErr(msg string, err error) *Error {
	return &Error{Kind: KindImageLoad, Msg: msg, Err: err}
}

func inferenceErr(err error) *Error {
	return &Error{Kind: KindInference, Msg: "model inference failed", Err: err}
}

func internalErr(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Msg: msg, Err: err}
}

// KindOf extracts the failure class from err, defaulting to internal.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}
