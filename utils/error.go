package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

// ValidationError reports malformed input (negative price, out-of-range percent,
// non-positive quantity). Raised before any mutation; values are never clamped.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IllegalTransitionError is returned when a status change is not allowed
// from the document's current status.
type IllegalTransitionError struct {
	From string
	To   string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("cannot transition from %s to %s", e.From, e.To)
}

// InvalidOperationError is returned when an operation's type/state precondition
// is violated (e.g. receiving a non-purchase invoice).
type InvalidOperationError struct {
	Operation string
	Reason    string
}

func (e *InvalidOperationError) Error() string {
	return fmt.Sprintf("%s not allowed: %s", e.Operation, e.Reason)
}

// LockedStateError is returned when a mutation is attempted on a document
// whose status no longer permits edits.
type LockedStateError struct {
	Status string
}

func (e *LockedStateError) Error() string {
	return fmt.Sprintf("document is locked in status %s; edits are only allowed in DRAFT", e.Status)
}

// ConsistencyError aborts the whole batch (duplicate book in one receipt,
// zero resulting quantity). Nothing is applied when one is returned.
type ConsistencyError struct {
	Reason string
}

func (e *ConsistencyError) Error() string {
	return "consistency violation: " + e.Reason
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsLockedStateError(err error) bool {
	var le *LockedStateError
	return errors.As(err, &le)
}
