package websocket

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the closed set of real-time event kinds. Consumers
// can switch over these exhaustively; exactly one payload field is set for
// each type.
type EventType string

const (
	// EventSlotLocked fires when a patient claims a slot.
	EventSlotLocked EventType = "slot-locked"
	// EventSlotUnlocked fires when a lock is released, expires, or a
	// booking is cancelled and the slot becomes bookable again.
	EventSlotUnlocked EventType = "slot-unlocked"
	// EventBookingConfirmed fires when a booking is durably written.
	EventBookingConfirmed EventType = "booking-confirmed"
	// EventAvailabilityUpdated fires when a provider edits their schedule.
	EventAvailabilityUpdated EventType = "availability-updated"
	// EventStatusUpdated fires when a provider's online status changes.
	EventStatusUpdated EventType = "status-updated"
)

// SlotPayload describes the slot a lock event refers to.
type SlotPayload struct {
	ProviderID uuid.UUID `json:"provider_id"`
	Date       string    `json:"date"`
	Start      string    `json:"start"`
}

// BookingPayload describes a confirmed or cancelled booking.
type BookingPayload struct {
	BookingID  uuid.UUID `json:"booking_id"`
	ProviderID uuid.UUID `json:"provider_id"`
	PatientID  uuid.UUID `json:"patient_id"`
	Date       string    `json:"date"`
	Start      string    `json:"start"`
	Status     string    `json:"status"`
}

// StatusPayload carries a provider's presence change.
type StatusPayload struct {
	ProviderID uuid.UUID `json:"provider_id"`
	Online     bool      `json:"online"`
}

// Event is a tagged union: Type selects which payload pointer is non-nil.
type Event struct {
	Type      EventType       `json:"type"`
	Topic     string          `json:"topic"`
	Timestamp time.Time       `json:"timestamp"`
	Slot      *SlotPayload    `json:"slot,omitempty"`
	Booking   *BookingPayload `json:"booking,omitempty"`
	Status    *StatusPayload  `json:"status,omitempty"`
}

// ProviderTopic is the calendar room for one provider; every client viewing
// that provider's calendar subscribes here.
func ProviderTopic(providerID uuid.UUID) string {
	return fmt.Sprintf("provider:%s", providerID)
}

// PatientTopic is a patient's personal channel.
func PatientTopic(patientID uuid.UUID) string {
	return fmt.Sprintf("patient:%s", patientID)
}

// BookingTopic carries events about one specific booking.
func BookingTopic(bookingID uuid.UUID) string {
	return fmt.Sprintf("booking:%s", bookingID)
}
