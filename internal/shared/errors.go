package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the referenced entity does not exist or is
	// outside the tenant's scope.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyPaid indicates a pay attempt on an invoice already paid.
	ErrAlreadyPaid = errors.New("invoice already paid")
	// ErrCanceledInvoice indicates a pay attempt on a canceled invoice.
	ErrCanceledInvoice = errors.New("invoice canceled")
	// ErrPlanPricingNotFound indicates a plan has no pricing rows at all.
	ErrPlanPricingNotFound = errors.New("plan pricing not found")
	// ErrConcurrentModification indicates the caller lost a race on a
	// transition or a document number allocation.
	ErrConcurrentModification = errors.New("concurrent modification")
)

// ValidationError reports malformed or inconsistent monetary input. It is a
// client error; the enclosing transition is never attempted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %s", e.Reason)
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for the given field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// InvalidTransitionError reports an operation that is not legal from the
// entity's current state. The current state is named so the caller can see
// why the transition was refused.
type InvalidTransitionError struct {
	Entity string
	State  string
	Event  string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s: cannot %s from state %q", e.Entity, e.Event, e.State)
}
