package domain

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindInvalidInput         ErrorKind = "INVALID_INPUT"
	KindNotFound             ErrorKind = "NOT_FOUND"
	KindInvalidTransition    ErrorKind = "INVALID_TRANSITION"
	KindNotAuthorized        ErrorKind = "NOT_AUTHORIZED"
	KindSelfBorrowNotAllowed ErrorKind = "SELF_BORROW_NOT_ALLOWED"
	KindToolUnavailable      ErrorKind = "TOOL_UNAVAILABLE"
	KindSelfVerification     ErrorKind = "SELF_VERIFICATION"
	KindExpired              ErrorKind = "EXPIRED"
	KindMismatch             ErrorKind = "MISMATCH"
	KindNoActiveCode         ErrorKind = "NO_ACTIVE_CODE"
	KindTooManyAttempts      ErrorKind = "TOO_MANY_ATTEMPTS"
	KindAlreadyRated         ErrorKind = "ALREADY_RATED"
	KindAlreadyHeld          ErrorKind = "ALREADY_HELD"
	KindAlreadySettled       ErrorKind = "ALREADY_SETTLED"
	KindConflict             ErrorKind = "CONFLICT"
	KindPaymentProvider      ErrorKind = "PAYMENT_PROVIDER_ERROR"
)

// Error is an expected business outcome. Compare with errors.Is against
// the Err* values below, which match any Error of the same kind.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func NewError(kind ErrorKind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Message == "" && t.Kind == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

var (
	ErrInvalidInput         = &Error{Kind: KindInvalidInput}
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrInvalidTransition    = &Error{Kind: KindInvalidTransition}
	ErrNotAuthorized        = &Error{Kind: KindNotAuthorized}
	ErrSelfBorrowNotAllowed = &Error{Kind: KindSelfBorrowNotAllowed}
	ErrToolUnavailable      = &Error{Kind: KindToolUnavailable}
	ErrSelfVerification     = &Error{Kind: KindSelfVerification}
	ErrExpired              = &Error{Kind: KindExpired}
	ErrMismatch             = &Error{Kind: KindMismatch}
	ErrNoActiveCode         = &Error{Kind: KindNoActiveCode}
	ErrTooManyAttempts      = &Error{Kind: KindTooManyAttempts}
	ErrAlreadyRated         = &Error{Kind: KindAlreadyRated}
	ErrAlreadyHeld          = &Error{Kind: KindAlreadyHeld}
	ErrAlreadySettled       = &Error{Kind: KindAlreadySettled}
	ErrConflict             = &Error{Kind: KindConflict}
	ErrPaymentProvider      = &Error{Kind: KindPaymentProvider}
)

// KindOf returns the business kind of err, if it is one.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

func IsBusiness(err error) bool {
	_, ok := KindOf(err)
	return ok
}

// InfrastructureError wraps storage or transport failures so callers can
// tell an outage apart from a business rejection.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error {
	return e.Err
}

// Infrastructure wraps err unless it is nil, already a business error, or
// already wrapped.
func Infrastructure(op string, err error) error {
	if err == nil || IsBusiness(err) || IsInfrastructure(err) {
		return err
	}
	return &InfrastructureError{Op: op, Err: err}
}

func IsInfrastructure(err error) bool {
	var e *InfrastructureError
	return errors.As(err, &e)
}
