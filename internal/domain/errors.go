package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition      = errors.New("invalid transition")
	ErrForbidden              = errors.New("forbidden")
	ErrRoleMismatch           = errors.New("actor is not a party to the order")
	ErrValidation             = errors.New("validation failed")
	ErrDuplicateTransaction   = errors.New("transaction id already used")
	ErrConcurrentModification = errors.New("order was modified concurrently")
	ErrNotFound               = errors.New("not found")
	ErrNotEligible            = errors.New("renter is not eligible to create an order")
)

// ValidationError names the payload field that failed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// TransitionError reports an action that is not defined for the order's current status.
type TransitionError struct {
	Status OrderStatus
	Action Action
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s is not allowed from %s", e.Action, e.Status)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// ErrorCode returns a stable machine-readable code for err, or "internal".
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrRoleMismatch):
		return "role_mismatch"
	case errors.Is(err, ErrDuplicateTransaction):
		return "duplicate_transaction"
	case errors.Is(err, ErrConcurrentModification):
		return "concurrent_modification"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNotEligible):
		return "not_eligible"
	default:
		return "internal"
	}
}
