package shared

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind is the stable classification carried by every core failure.
type ErrorKind string

const (
	KindMalformedCode                 ErrorKind = "MalformedCode"
	KindDuplicateCode                 ErrorKind = "DuplicateCode"
	KindUnknownEntity                 ErrorKind = "UnknownEntity"
	KindCrossTenantEdge               ErrorKind = "CrossTenantEdge"
	KindEntityInUse                   ErrorKind = "EntityInUse"
	KindInvalidFieldType              ErrorKind = "InvalidFieldType"
	KindUnbalancedLines               ErrorKind = "UnbalancedLines"
	KindTotalMismatch                 ErrorKind = "TotalMismatch"
	KindInvalidStatusTransition       ErrorKind = "InvalidStatusTransition"
	KindPermissionDenied              ErrorKind = "PermissionDenied"
	KindOrganizationBoundaryViolation ErrorKind = "OrganizationBoundaryViolation"
	KindSessionExpired                ErrorKind = "SessionExpired"
	KindInvalidAccount                ErrorKind = "InvalidAccount"
	KindValidation                    ErrorKind = "Validation"
	KindNotFound                      ErrorKind = "NotFound"
	KindPersistence                   ErrorKind = "Persistence"
)

// Error is the concrete error type returned by the core packages.
type Error struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same kind so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrMalformedCode                 = &Error{Kind: KindMalformedCode}
	ErrDuplicateCode                 = &Error{Kind: KindDuplicateCode}
	ErrUnknownEntity                 = &Error{Kind: KindUnknownEntity}
	ErrCrossTenantEdge               = &Error{Kind: KindCrossTenantEdge}
	ErrEntityInUse                   = &Error{Kind: KindEntityInUse}
	ErrInvalidFieldType              = &Error{Kind: KindInvalidFieldType}
	ErrUnbalancedLines               = &Error{Kind: KindUnbalancedLines}
	ErrTotalMismatch                 = &Error{Kind: KindTotalMismatch}
	ErrInvalidStatusTransition       = &Error{Kind: KindInvalidStatusTransition}
	ErrPermissionDenied              = &Error{Kind: KindPermissionDenied}
	ErrOrganizationBoundaryViolation = &Error{Kind: KindOrganizationBoundaryViolation}
	ErrSessionExpired                = &Error{Kind: KindSessionExpired}
	ErrInvalidAccount                = &Error{Kind: KindInvalidAccount}
	ErrValidation                    = &Error{Kind: KindValidation}
	ErrNotFound                      = &Error{Kind: KindNotFound}
	ErrPersistence                   = &Error{Kind: KindPersistence}
)

// Errorf builds an Error of the given kind with a formatted reason.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// WrapPersistence classifies a store failure. Domain errors and context
// cancellation pass through untouched.
func WrapPersistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var coreErr *Error
	if errors.As(err, &coreErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &Error{Kind: KindPersistence, Reason: op, Err: err}
}

// KindOf extracts the error kind, or "" when err is not a core error.
func KindOf(err error) ErrorKind {
	var coreErr *Error
	if errors.As(err, &coreErr) {
		return coreErr.Kind
	}
	return ""
}

// Reason returns the human-readable reason attached to a core error.
func Reason(err error) string {
	var coreErr *Error
	if errors.As(err, &coreErr) {
		return coreErr.Reason
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// Retryable reports whether a failure may be retried with backoff. Only
// persistence failures and deadline expiry qualify.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return KindOf(err) == KindPersistence
}

// SecurityKind reports kinds that must always be audited.
func SecurityKind(kind ErrorKind) bool {
	return kind == KindPermissionDenied || kind == KindOrganizationBoundaryViolation || kind == KindSessionExpired
}
