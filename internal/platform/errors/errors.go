// Package errors provides the structured error type shared by every layer of
// the service. Each error carries a stable machine-readable code, a human
// message and optional extras that transports forward to the caller.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code identifies a failure class. Codes are part of the public contract.
type Code string

const (
	ErrCodeInternal     Code = "INTERNAL"
	ErrCodeNotFound     Code = "NOT_FOUND"
	ErrCodeInvalidInput Code = "INVALID_INPUT"
	ErrCodeUnauthorized Code = "UNAUTHORIZED"
	ErrCodeForbidden    Code = "FORBIDDEN"
	ErrCodeConflict     Code = "CONFLICT"

	// Allocation and approval rules.
	ErrCodePeriodLocked           Code = "PERIOD_LOCKED"
	ErrCodeInvalidTransition      Code = "INVALID_TRANSITION"
	ErrCodeDemandXor              Code = "DEMAND_XOR"
	ErrCodeFteInvalid             Code = "FTE_INVALID"
	ErrCodePlaceholderBlocked4MFC Code = "PLACEHOLDER_BLOCKED_4MFC"
	ErrCodeActualsLocked          Code = "ACTUALS_LOCKED"
	ErrCodeActualsOver100         Code = "ACTUALS_OVER_100"
	ErrCodeApproverNotConfigured  Code = "APPROVER_NOT_CONFIGURED"
	ErrCodeNotApprover            Code = "NOT_APPROVER"
	ErrCodeStepNotPending         Code = "STEP_NOT_PENDING"
	ErrCodeStepOutOfOrder         Code = "STEP_OUT_OF_ORDER"
	ErrCodeExplanationRequired    Code = "EXPLANATION_REQUIRED"
)

// Error is the structured failure returned by services.
type Error struct {
	Code    Code
	Message string
	Extras  map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithExtra attaches a key/value pair that transports expose next to the code.
func (e *Error) WithExtra(key string, value any) *Error {
	if e.Extras == nil {
		e.Extras = make(map[string]any)
	}
	e.Extras[key] = value
	return e
}

// New creates an error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a code and message. A nil err yields nil.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// NotFound reports a missing entity of the given kind.
func NotFound(kind, id string) *Error {
	return Newf(ErrCodeNotFound, "%s %s not found", kind, id).WithExtra("entity", kind)
}

// InvalidInput reports a malformed field.
func InvalidInput(field, message string) *Error {
	return New(ErrCodeInvalidInput, message).WithExtra("field", field)
}

// Forbidden reports a caller that lacks the capability for an operation.
func Forbidden(message string) *Error {
	return New(ErrCodeForbidden, message)
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the code of err, ErrCodeInternal for foreign errors and ""
// for nil.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	if e, ok := As(err); ok {
		return e.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
