// Package booking holds the durable booking ledger and the orchestrator
// that turns a held slot lock into a confirmed booking.
package booking

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/carebook/carebook/internal/domain/availability"
)

var (
	// ErrSlotContended means another patient currently holds the lock.
	ErrSlotContended = errors.New("slot is held by another patient")
	// ErrSlotExpired means the caller's lock timed out mid-flow.
	ErrSlotExpired = errors.New("slot lock has expired")
	// ErrSlotNoLongerAvailable means the ledger's final overlap check
	// failed even though a lock was held.
	ErrSlotNoLongerAvailable = errors.New("slot is no longer available")
	// ErrConfirmationFailed means the payment collaborator declined.
	ErrConfirmationFailed = errors.New("booking confirmation failed")
	// ErrInvalidTransition rejects a lifecycle change the current status
	// does not permit.
	ErrInvalidTransition = errors.New("invalid booking status transition")
	// ErrForbidden means the caller is not a participant in the booking.
	ErrForbidden = errors.New("not a participant in this booking")
	// ErrNotFound is returned when a booking does not exist.
	ErrNotFound = errors.New("booking not found")
)

// Status is a booking's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// Active reports whether the status occupies the slot. Only active
// bookings participate in the overlap invariant.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

// transitions lists the permitted status changes.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled, StatusNoShow},
}

// CanTransition reports whether a booking may move from s to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ConsultationType describes how the consultation is delivered.
type ConsultationType string

const (
	ConsultationVideo    ConsultationType = "video"
	ConsultationInPerson ConsultationType = "in_person"
	ConsultationPhone    ConsultationType = "phone"
)

func (t ConsultationType) Valid() bool {
	switch t {
	case ConsultationVideo, ConsultationInPerson, ConsultationPhone:
		return true
	}
	return false
}

// Booking is the durable record of a consultation. Start and End are
// minutes from midnight on Date, matching the slot grid.
type Booking struct {
	ID               uuid.UUID              `db:"id" json:"id"`
	ProviderID       uuid.UUID              `db:"provider_id" json:"provider_id"`
	PatientID        uuid.UUID              `db:"patient_id" json:"patient_id"`
	Date             string                 `db:"date" json:"date"`
	Start            availability.TimeOfDay `db:"start_minutes" json:"start"`
	End              availability.TimeOfDay `db:"end_minutes" json:"end"`
	Status           Status                 `db:"status" json:"status"`
	ConsultationType ConsultationType       `db:"consultation_type" json:"consultation_type"`
	PaymentIntentID  string                 `db:"payment_intent_id" json:"payment_intent_id,omitempty"`
	CreatedAt        time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time              `db:"updated_at" json:"updated_at"`
}

// Overlaps reports whether the booking's window intersects [start, end)
// on the same date.
func (b *Booking) Overlaps(date string, start, end availability.TimeOfDay) bool {
	return b.Date == date && b.Start < end && start < b.End
}
