// Package errs defines the caller-visible error taxonomy.
//
// Every failure raised by the layer is an *Error carrying a Code:
//   - VALIDATION: unsupported operator/function, bad pipeline, missing payload
//   - NOT_FOUND: orFail lookups and restores that match nothing
//   - CONFLICT: uniqueness violations reported by a backend
//   - BACKEND: any other backend failure, wrapped unchanged
//   - TRANSACTION: transaction state violations
//
// Use the Is* predicates rather than comparing messages. They use errors.As
// so wrapped errors are matched too.
package errs

import (
	"errors"
	"fmt"
)

// Code categorizes an Error.
type Code string

const (
	CodeValidation  Code = "VALIDATION"
	CodeNotFound    Code = "NOT_FOUND"
	CodeConflict    Code = "CONFLICT"
	CodeBackend     Code = "BACKEND"
	CodeTransaction Code = "TRANSACTION"
)

// Messages callers match on. They are part of the public contract.
const (
	MsgUpdateRequired    = "Update options are required"
	MsgTxInProgress      = "A transaction is already in progress"
	MsgTxMismatch        = "Transaction mismatch"
	MsgTxNotActive       = "Transaction is not active"
	MsgNotFoundOrRestore = "Entity not found or already restored"
	MsgNotFound          = "Entity not found"
)

// Error is the single error type of the layer.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is the human-readable description.
	Message string

	// Op names the operation that failed (e.g. "updateMany"), if known.
	Op string

	// Err is the wrapped cause, typically a backend error.
	Err error
}

// Error implements the error interface. The message comes first so that
// callers printing the error see exactly the contract text.
func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Message
	}
}

func (e *Error) Unwrap() error { return e.Err }

// WithOp returns a copy of e tagged with the failing operation.
func (e *Error) WithOp(op string) *Error {
	c := *e
	c.Op = op
	return &c
}

// Validation creates a VALIDATION error.
func Validation(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// UnsupportedOperator creates a VALIDATION error for an operator the
// translator or compiler has no primitive for.
func UnsupportedOperator(op any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf("Unsupported operator: %v", op)}
}

// UnsupportedFunction creates a VALIDATION error for an unmapped function.
func UnsupportedFunction(fn any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf("Unsupported function: %v", fn)}
}

// NotFound creates a NOT_FOUND error with the given message.
func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

// Conflict wraps a backend uniqueness violation.
func Conflict(err error) *Error {
	return &Error{Code: CodeConflict, Message: "unique constraint violated", Err: err}
}

// Backend wraps an unrecognized backend failure.
func Backend(err error) *Error {
	return &Error{Code: CodeBackend, Err: err}
}

// Transaction creates a TRANSACTION error.
func Transaction(msg string) *Error {
	return &Error{Code: CodeTransaction, Message: msg}
}

// CodeOf returns the Code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func IsValidation(err error) bool  { return CodeOf(err) == CodeValidation }
func IsNotFound(err error) bool    { return CodeOf(err) == CodeNotFound }
func IsConflict(err error) bool    { return CodeOf(err) == CodeConflict }
func IsBackend(err error) bool     { return CodeOf(err) == CodeBackend }
func IsTransaction(err error) bool { return CodeOf(err) == CodeTransaction }
