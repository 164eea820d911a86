// Package booking runs the slot state machine: booking, cancelling and
// rescheduling appointments against the row store, gated by identity
// verification.
package booking

import (
	"fmt"

	"github.com/kairos-clinic/scheduling/internal/schedule"
)

// ValidationError reports a request that can never succeed as given.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("booking: invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports a missing record.
type NotFoundError struct {
	Kind string // "slot", "appointment", "patient"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("booking: %s %s not found", e.Kind, e.ID)
}

// InvalidStateError reports a transition the state machine forbids, including
// writes lost to a concurrent transition.
type InvalidStateError struct {
	RowID   string
	Current schedule.Status
	Wanted  schedule.Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("booking: slot %s is %s, not %s", e.RowID, e.Current, e.Wanted)
}

// VerificationError reports a failed identity check. Message is safe to read
// back to the caller; Escalate means the conversation must go to the front
// desk.
type VerificationError struct {
	Message  string
	Escalate bool
}

func (e *VerificationError) Error() string {
	return "booking: verification failed: " + e.Message
}

// TransientStoreError wraps a store failure the caller may retry.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("booking: store %s failed: %v", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error { return e.Err }

// PartialFailureError reports a reschedule that committed one half and could
// not complete or undo the other. Committed names what is on the books so a
// human can reconcile.
type PartialFailureError struct {
	Committed string
	Err       error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("booking: partial failure, %s: %v", e.Committed, e.Err)
}

func (e *PartialFailureError) Unwrap() error { return e.Err }
