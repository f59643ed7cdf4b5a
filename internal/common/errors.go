package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
)

// Failure kinds of the bill lifecycle. Callers classify with errors.Is; the
// first two are expected outcomes that a run counts without logging as errors.
var (
	ErrNotABill         = errors.New("not a bill statement")
	ErrNotAConfirmation = errors.New("not a payment confirmation")
	ErrNoAmount         = errors.New("no amount found")
	ErrNoDueDate        = errors.New("no due date found")
	ErrDuplicateBill    = errors.New("duplicate bill")
	ErrNoMatch          = errors.New("no matching bill")
	ErrDelivery         = errors.New("notification delivery failed")
)

func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}
