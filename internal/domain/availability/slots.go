package availability

import (
	"github.com/google/uuid"
)

// Slot is a computed candidate appointment interval. Slots are never
// stored; they are derived from the profile on every query and identified
// by (provider, date, start).
type Slot struct {
	ProviderID uuid.UUID `json:"provider_id"`
	Date       string    `json:"date"`
	Start      TimeOfDay `json:"start"`
	End        TimeOfDay `json:"end"`
	Minutes    int       `json:"minutes"`
}

// SlotStatus annotates a candidate slot with its live state.
type SlotStatus string

const (
	StatusAvailable SlotStatus = "available"
	StatusBooked    SlotStatus = "booked"
	StatusLocked    SlotStatus = "locked"
)

// AnnotatedSlot is the resolver's output. HeldByYou is set when the
// requesting patient holds the lock on this slot themselves.
type AnnotatedSlot struct {
	Slot
	Status    SlotStatus `json:"status"`
	HeldByYou bool       `json:"held_by_you,omitempty"`
}

// GenerateSlots walks a day's working window in slotMinutes steps and
// returns the candidate slots in start order. A step that would cross the
// end of the window or intersect a break is dropped, not truncated.
// Non-working days yield nil. Pure; no I/O, no clock access.
func GenerateSlots(providerID uuid.UUID, day DaySchedule, date string, slotMinutes int) []Slot {
	if !day.Working || slotMinutes <= 0 {
		return nil
	}

	var out []Slot
	for start := day.Start; start+TimeOfDay(slotMinutes) <= day.End; start += TimeOfDay(slotMinutes) {
		end := start + TimeOfDay(slotMinutes)
		if intersectsBreak(start, end, day.Breaks) {
			continue
		}
		out = append(out, Slot{
			ProviderID: providerID,
			Date:       date,
			Start:      start,
			End:        end,
			Minutes:    slotMinutes,
		})
	}
	return out
}

// intersectsBreak reports whether [start, end) overlaps any break.
func intersectsBreak(start, end TimeOfDay, breaks []Break) bool {
	for _, b := range breaks {
		if start < b.End && b.Start < end {
			return true
		}
	}
	return false
}
