package availability

import (
	"context"

	"github.com/google/uuid"
)

// ProfileRepository persists availability profiles, one per provider.
type ProfileRepository interface {
	Create(ctx context.Context, p *Profile) error
	GetByProvider(ctx context.Context, providerID uuid.UUID) (*Profile, error)
	Update(ctx context.Context, p *Profile) error
}

// BookedInterval is an active booking's occupied window on a date.
type BookedInterval struct {
	Start TimeOfDay
	End   TimeOfDay
}

// BookingReader is the resolver's view of the booking ledger: the active
// (pending or confirmed) intervals for one provider and date.
type BookingReader interface {
	ActiveIntervals(ctx context.Context, providerID uuid.UUID, date string) ([]BookedInterval, error)
}
