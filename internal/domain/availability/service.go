package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebook/carebook/internal/platform/locks"
	"github.com/carebook/carebook/internal/platform/websocket"
)

// Service owns availability profiles and resolves live slot state.
type Service struct {
	profiles ProfileRepository
	bookings BookingReader
	locks    locks.Table
	hub      websocket.EventPublisher
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(profiles ProfileRepository, bookings BookingReader, lockTable locks.Table, hub websocket.EventPublisher, logger zerolog.Logger) *Service {
	return &Service{
		profiles: profiles,
		bookings: bookings,
		locks:    lockTable,
		hub:      hub,
		logger:   logger.With().Str("component", "availability").Logger(),
		now:      time.Now,
	}
}

// GetProfile returns the provider's profile, creating the default one on
// first access.
func (s *Service) GetProfile(ctx context.Context, providerID uuid.UUID) (*Profile, error) {
	p, err := s.profiles.GetByProvider(ctx, providerID)
	if err == nil {
		return p, nil
	}
	if err != ErrNotFound {
		return nil, err
	}

	p = DefaultProfile(providerID)
	if err := s.profiles.Create(ctx, p); err != nil {
		// Another request may have created it concurrently; re-read.
		if existing, getErr := s.profiles.GetByProvider(ctx, providerID); getErr == nil {
			return existing, nil
		}
		return nil, err
	}
	s.logger.Info().Str("provider_id", providerID.String()).Msg("created default availability profile")
	return p, nil
}

// SlotDuration returns the provider's configured slot length in minutes.
func (s *Service) SlotDuration(ctx context.Context, providerID uuid.UUID) (int, error) {
	p, err := s.GetProfile(ctx, providerID)
	if err != nil {
		return 0, err
	}
	return p.SlotMinutes, nil
}

// SlotExists reports whether the generator yields a slot starting at start
// for the provider on date. A time the generator does not yield cannot be
// locked or booked.
func (s *Service) SlotExists(ctx context.Context, providerID uuid.UUID, date string, start TimeOfDay) (bool, error) {
	day, err := s.dayFor(ctx, providerID, date)
	if err != nil {
		return false, err
	}
	if day == nil {
		return false, nil
	}
	for _, slot := range GenerateSlots(providerID, day.schedule, date, day.slotMinutes) {
		if slot.Start == start {
			return true, nil
		}
	}
	return false, nil
}

// UpdateSchedule replaces the provider's weekly schedule and slot duration.
// The new schedule is validated before anything is written, and an
// availability-updated event is broadcast on success.
func (s *Service) UpdateSchedule(ctx context.Context, providerID uuid.UUID, days [7]DaySchedule, slotMinutes int) (*Profile, error) {
	p, err := s.GetProfile(ctx, providerID)
	if err != nil {
		return nil, err
	}

	updated := *p
	updated.Days = days
	if slotMinutes > 0 {
		updated.SlotMinutes = slotMinutes
	}
	if err := updated.Validate(); err != nil {
		return nil, err
	}

	if err := s.profiles.Update(ctx, &updated); err != nil {
		return nil, err
	}

	s.publish(ctx, websocket.Event{
		Type:      websocket.EventAvailabilityUpdated,
		Topic:     websocket.ProviderTopic(providerID),
		Timestamp: s.now().UTC(),
		Status:    &websocket.StatusPayload{ProviderID: providerID, Online: updated.Online},
	})
	return &updated, nil
}

// SetOnline toggles the provider's presence and broadcasts the change.
func (s *Service) SetOnline(ctx context.Context, providerID uuid.UUID, online bool) (*Profile, error) {
	p, err := s.GetProfile(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if p.Online == online {
		return p, nil
	}

	p.Online = online
	if err := s.profiles.Update(ctx, p); err != nil {
		return nil, err
	}

	s.publish(ctx, websocket.Event{
		Type:      websocket.EventStatusUpdated,
		Topic:     websocket.ProviderTopic(providerID),
		Timestamp: s.now().UTC(),
		Status:    &websocket.StatusPayload{ProviderID: providerID, Online: online},
	})
	return p, nil
}

// Deactivate soft-disables a provider's profile. Profiles are never
// hard-deleted.
func (s *Service) Deactivate(ctx context.Context, providerID uuid.UUID) error {
	p, err := s.GetProfile(ctx, providerID)
	if err != nil {
		return err
	}
	if !p.Active {
		return nil
	}
	p.Active = false
	return s.profiles.Update(ctx, p)
}

// Resolve computes the provider's candidate slots for a date and annotates
// each one available, booked, or locked. The requester's own lock is
// reported as available with held_by_you set, so their UI keeps the slot
// selectable. Lock state is read live on every call.
func (s *Service) Resolve(ctx context.Context, providerID uuid.UUID, date string, requester uuid.UUID) ([]AnnotatedSlot, error) {
	day, err := s.dayFor(ctx, providerID, date)
	if err != nil {
		return nil, err
	}
	if day == nil {
		return []AnnotatedSlot{}, nil
	}

	slots := GenerateSlots(providerID, day.schedule, date, day.slotMinutes)
	if len(slots) == 0 {
		return []AnnotatedSlot{}, nil
	}

	booked, err := s.bookings.ActiveIntervals(ctx, providerID, date)
	if err != nil {
		return nil, fmt.Errorf("fetch bookings: %w", err)
	}

	live, err := s.locks.ListForDay(ctx, providerID, date)
	if err != nil {
		return nil, fmt.Errorf("fetch locks: %w", err)
	}
	lockByStart := make(map[TimeOfDay]locks.Lock, len(live))
	for _, l := range live {
		lockByStart[TimeOfDay(l.Key.Start)] = l
	}

	out := make([]AnnotatedSlot, 0, len(slots))
	for _, slot := range slots {
		annotated := AnnotatedSlot{Slot: slot, Status: StatusAvailable}

		for _, b := range booked {
			if slot.Start < b.End && b.Start < slot.End {
				annotated.Status = StatusBooked
				break
			}
		}

		if annotated.Status == StatusAvailable {
			if l, ok := lockByStart[slot.Start]; ok {
				if requester != uuid.Nil && l.HolderID == requester {
					annotated.HeldByYou = true
				} else {
					annotated.Status = StatusLocked
				}
			}
		}

		out = append(out, annotated)
	}
	return out, nil
}

type resolvedDay struct {
	schedule    DaySchedule
	slotMinutes int
}

// dayFor loads the profile and picks the schedule for the date's weekday.
// Returns nil for inactive profiles and non-working days.
func (s *Service) dayFor(ctx context.Context, providerID uuid.UUID, date string) (*resolvedDay, error) {
	parsed, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", date, err)
	}

	p, err := s.GetProfile(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, nil
	}

	day := p.Days[parsed.Weekday()]
	if !day.Working {
		return nil, nil
	}
	return &resolvedDay{schedule: day, slotMinutes: p.SlotMinutes}, nil
}

func (s *Service) publish(ctx context.Context, event websocket.Event) {
	if s.hub == nil {
		return
	}
	if err := s.hub.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("topic", event.Topic).Msg("failed to publish event")
	}
}
