package afcore

import (
	"errors"
	"fmt"
)

// ErrorCode is the six-kind error taxonomy from the framework's error
// handling design: every entry point returns one of these, never a bare
// errno or an ad-hoc string.
type ErrorCode string

const (
	ErrInvalidPointer ErrorCode = "invalid pointer"
	ErrInvalidValue   ErrorCode = "invalid value"
	ErrAPIMisuse      ErrorCode = "api misuse"
	ErrRouting        ErrorCode = "routing error"
	ErrMemory         ErrorCode = "memory error"
	ErrRTOS           ErrorCode = "rtos error"
)

// Error is the structured error type returned by every operation in this
// module. Op names the failing operation (e.g. "comp_create",
// "device_open"); Code is the taxonomy kind; Inner, if set, is the
// underlying cause.
type Error struct {
	Op    string
	Code  ErrorCode
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Op != "" {
		return fmt.Sprintf("afcore: %s: %s", e.Op, msg)
	}
	return fmt.Sprintf("afcore: %s", msg)
}

func (e *Error) Unwrap() error {
	return e.Inner
}

// Is supports errors.Is comparison against a sentinel *Error built with
// just a Code (e.g. errors.Is(err, &Error{Code: ErrMemory})).
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// NewError builds an Error with no wrapped cause.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// WrapError attaches op/code context to an existing error. A nil inner
// error yields a nil *Error (so callers can do `return WrapError(...)`
// unconditionally after an `if err != nil` check without double-wrapping
// a nil).
func WrapError(op string, code ErrorCode, inner error) *Error {
	if inner == nil {
		return nil
	}
	if ae, ok := inner.(*Error); ok {
		return &Error{Op: op, Code: ae.Code, Msg: ae.Msg, Inner: ae.Inner}
	}
	return &Error{Op: op, Code: code, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err carries the given taxonomy code.
func IsCode(err error, code ErrorCode) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}
