package ctxengine

import (
	"errors"
	"fmt"
)

// Code is a stable, transport-independent error classification.
type Code string

// Error codes shared by the engine and its collaborators.
const (
	CodeNotFound                 Code = "NOT_FOUND"
	CodeParseError               Code = "PARSE_ERROR"
	CodeConflict                 Code = "CONFLICT"
	CodeAssemblyBudgetImpossible Code = "ASSEMBLY_BUDGET_IMPOSSIBLE"
	CodeIOError                  Code = "IO_ERROR"
	CodeInvalidArgument          Code = "INVALID_ARGUMENT"
	CodeInternal                 Code = "INTERNAL"
)

// ErrBudgetImpossible is matched by every *AssemblyError.
var ErrBudgetImpossible = errors.New("ctxengine: assembly budget impossible")

// Error carries a Code alongside a message and an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an *Error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches code and message to err. A nil err returns nil.
func Wrap(code Code, err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// AssemblyError reports that the required fragments alone exceed the
// global token limit.
type AssemblyError struct {
	RequiredTokens int
	TotalLimit     int
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("ctxengine: assembly budget impossible: required fragments need %d tokens, limit is %d",
		e.RequiredTokens, e.TotalLimit)
}

// Unwrap lets errors.Is match ErrBudgetImpossible.
func (e *AssemblyError) Unwrap() error { return ErrBudgetImpossible }

// CodeOf extracts the Code from err, or CodeInternal when none is attached.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var ae *AssemblyError
	if errors.As(err, &ae) {
		return CodeAssemblyBudgetImpossible
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CodeInternal
}
