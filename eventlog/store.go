package eventlog

import (
	"context"
	"time"
)

// EventKind names the type of a service event.
type EventKind string

const (
	// KindBoundsUpdated records a change of the global bounds, including
	// the initial bounds set at construction.
	KindBoundsUpdated EventKind = "bounds_updated"

	// KindRangeChecked records a completed range check.
	KindRangeChecked EventKind = "range_checked"

	// KindOwnershipTransferred records a change of the bounds owner.
	KindOwnershipTransferred EventKind = "ownership_transferred"
)

// Event is one record in the append-only service log. Exactly which fields
// are set depends on Kind. Principals are hex-encoded public keys and
// result handles are hex-encoded ciphertext handles, so records stay
// readable in any storage backend.
type Event struct {
	Seq  uint64    `json:"seq"`
	Time time.Time `json:"time"`
	Kind EventKind `json:"kind"`

	// Lower and Upper are the bounds written (bounds_updated) or the
	// bounds actually used for a check (range_checked).
	Lower uint32 `json:"lower,omitempty"`
	Upper uint32 `json:"upper,omitempty"`

	// Caller is the principal whose check completed (range_checked).
	Caller string `json:"caller,omitempty"`

	// ResultHandle names the encrypted result of a check (range_checked).
	ResultHandle string `json:"result_handle,omitempty"`

	// PreviousOwner and NewOwner record an ownership handover
	// (ownership_transferred).
	PreviousOwner string `json:"previous_owner,omitempty"`
	NewOwner      string `json:"new_owner,omitempty"`
}

// NewBoundsUpdated creates a bounds_updated event.
func NewBoundsUpdated(lower, upper uint32) *Event {
	return &Event{
		Time:  time.Now().UTC(),
		Kind:  KindBoundsUpdated,
		Lower: lower,
		Upper: upper,
	}
}

// NewRangeChecked creates a range_checked event. Lower and upper must be
// the bounds the check actually used, which for per-call bounds differ
// from the global ones.
func NewRangeChecked(caller string, lower, upper uint32, resultHandle string) *Event {
	return &Event{
		Time:         time.Now().UTC(),
		Kind:         KindRangeChecked,
		Lower:        lower,
		Upper:        upper,
		Caller:       caller,
		ResultHandle: resultHandle,
	}
}

// NewOwnershipTransferred creates an ownership_transferred event.
func NewOwnershipTransferred(previousOwner, newOwner string) *Event {
	return &Event{
		Time:          time.Now().UTC(),
		Kind:          KindOwnershipTransferred,
		PreviousOwner: previousOwner,
		NewOwner:      newOwner,
	}
}

// Store is an append-only event log. Appends assign strictly increasing
// sequence numbers starting at 1; records are never updated or deleted.
type Store interface {
	// Append persists event and assigns it the next sequence number,
	// written back into event.Seq.
	Append(ctx context.Context, event *Event) error

	// List returns events with sequence numbers greater than afterSeq in
	// ascending order, at most limit of them. A limit <= 0 means no limit.
	List(ctx context.Context, afterSeq uint64, limit int) ([]*Event, error)

	// Close releases the store's resources.
	Close() error
}
