// Package availability owns provider working-hours profiles, derives
// bookable slots from them, and annotates those slots with live booking
// and lock state.
package availability

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrScheduleInvalid is returned when a schedule write fails validation.
// Invalid schedules are rejected here and never reach slot generation.
var ErrScheduleInvalid = errors.New("invalid schedule")

// ErrNotFound is returned when no profile exists for a provider.
var ErrNotFound = errors.New("availability profile not found")

// TimeOfDay is a local clock time expressed as minutes from midnight.
// It marshals as "HH:MM".
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM" into minutes from midnight.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("parse time %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("time %q out of range", s)
	}
	return TimeOfDay(h*60 + m), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("time must be a %q string", "HH:MM")
	}
	parsed, err := ParseTimeOfDay(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Break is a pause inside a working day during which no slots are offered.
type Break struct {
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
}

// DaySchedule is one weekday's working hours. Breaks must be ordered,
// non-overlapping, and fall inside [Start, End].
type DaySchedule struct {
	Working bool      `json:"working"`
	Start   TimeOfDay `json:"start"`
	End     TimeOfDay `json:"end"`
	Breaks  []Break   `json:"breaks,omitempty"`
}

func (d DaySchedule) validate() error {
	if !d.Working {
		return nil
	}
	if d.End <= d.Start {
		return fmt.Errorf("%w: end %s not after start %s", ErrScheduleInvalid, d.End, d.Start)
	}
	prev := d.Start
	for i, b := range d.Breaks {
		if b.End <= b.Start {
			return fmt.Errorf("%w: break %d end %s not after start %s", ErrScheduleInvalid, i, b.End, b.Start)
		}
		if b.Start < prev {
			if i > 0 && b.Start < d.Breaks[i-1].End {
				return fmt.Errorf("%w: break %d overlaps break %d", ErrScheduleInvalid, i, i-1)
			}
			return fmt.Errorf("%w: break %d starts before the working window", ErrScheduleInvalid, i)
		}
		if b.End > d.End {
			return fmt.Errorf("%w: break %d extends past end of day", ErrScheduleInvalid, i)
		}
		prev = b.End
	}
	return nil
}

// Profile maps to the availability_profile table. Days is indexed by
// time.Weekday (Sunday = 0).
type Profile struct {
	ID          uuid.UUID      `db:"id" json:"id"`
	ProviderID  uuid.UUID      `db:"provider_id" json:"provider_id"`
	Days        [7]DaySchedule `db:"days" json:"days"`
	SlotMinutes int            `db:"slot_minutes" json:"slot_minutes"`
	Online      bool           `db:"online" json:"online"`
	Active      bool           `db:"active" json:"active"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// DefaultProfile is the lazy profile created on a provider's first access:
// Mon-Fri 09:00-17:00 with a 12:00-13:00 lunch break, 30-minute slots.
func DefaultProfile(providerID uuid.UUID) *Profile {
	p := &Profile{
		ProviderID:  providerID,
		SlotMinutes: 30,
		Online:      false,
		Active:      true,
	}
	workday := DaySchedule{
		Working: true,
		Start:   9 * 60,
		End:     17 * 60,
		Breaks:  []Break{{Start: 12 * 60, End: 13 * 60}},
	}
	for wd := time.Monday; wd <= time.Friday; wd++ {
		p.Days[wd] = workday
	}
	return p
}

// Validate checks the whole profile before it is written.
func (p *Profile) Validate() error {
	if p.ProviderID == uuid.Nil {
		return fmt.Errorf("%w: provider_id is required", ErrScheduleInvalid)
	}
	if p.SlotMinutes <= 0 {
		return fmt.Errorf("%w: slot_minutes must be positive", ErrScheduleInvalid)
	}
	for wd, day := range p.Days {
		if err := day.validate(); err != nil {
			return fmt.Errorf("%s: %w", time.Weekday(wd), err)
		}
	}
	return nil
}
