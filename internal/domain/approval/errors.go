package approval

import (
	"errors"
	"fmt"
)

var (
	// ErrExpenseNotFound is returned when an expense is missing or belongs to another tenant
	ErrExpenseNotFound = errors.New("expense not found")

	// ErrWorkflowNotFound is returned when a workflow is missing, inactive or cross-tenant
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrUserNotFound is returned when a directory lookup finds no active user
	ErrUserNotFound = errors.New("user not found")

	// ErrReportNotFound is returned when a stored report is missing for the tenant
	ErrReportNotFound = errors.New("report not found")

	// ErrNotEligibleApprover is returned when the actor may not act on the chain right now
	ErrNotEligibleApprover = errors.New("not eligible approver")

	// ErrAlreadyResolved is returned when acting on an expense that is not actionable
	ErrAlreadyResolved = errors.New("expense already resolved")

	// ErrNotAuthorized is returned when a privileged operation is attempted by a non-admin
	ErrNotAuthorized = errors.New("not authorized")

	// ErrValidation is the root of all definition and input validation failures
	ErrValidation = errors.New("validation failed")

	// ErrConcurrentModification is returned when an expense changed between load and save
	ErrConcurrentModification = errors.New("concurrent modification")
)

// Kind classifies engine errors for callers that map them onto a transport
type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindValidation          Kind = "validation"
	KindNotEligibleApprover Kind = "not_eligible_approver"
	KindAlreadyResolved     Kind = "already_resolved"
	KindNotAuthorized       Kind = "not_authorized"
	KindConflict            Kind = "conflict"
	KindInternal            Kind = "internal"
)

// Error decorates a sentinel with the operation that failed
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Err, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds an *Error for op around sentinel err
func E(op string, err error, format string, args ...interface{}) error {
	return &Error{
		Kind: KindOf(err),
		Op:   op,
		Msg:  fmt.Sprintf(format, args...),
		Err:  err,
	}
}

// KindOf returns the kind of an error produced by the engine
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) && e.Kind != "" {
		return e.Kind
	}

	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrExpenseNotFound),
		errors.Is(err, ErrWorkflowNotFound),
		errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrReportNotFound):
		return KindNotFound
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotEligibleApprover):
		return KindNotEligibleApprover
	case errors.Is(err, ErrAlreadyResolved):
		return KindAlreadyResolved
	case errors.Is(err, ErrNotAuthorized):
		return KindNotAuthorized
	case errors.Is(err, ErrConcurrentModification):
		return KindConflict
	default:
		return KindInternal
	}
}

// ValidationError describes a malformed workflow definition or request field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrValidation
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
