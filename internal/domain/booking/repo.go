package booking

import (
	"context"

	"github.com/google/uuid"

	"github.com/carebook/carebook/internal/domain/availability"
	"github.com/carebook/carebook/pkg/pagination"
)

// Repository persists bookings. Create must enforce the overlap invariant
// atomically: no two active bookings for one provider may intersect on a
// date, regardless of what locks the callers held.
type Repository interface {
	Create(ctx context.Context, b *Booking) error
	Get(ctx context.Context, id uuid.UUID) (*Booking, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, p pagination.Params) ([]Booking, int, error)
	ListByProviderDay(ctx context.Context, providerID uuid.UUID, date string, p pagination.Params) ([]Booking, int, error)

	// ActiveIntervals satisfies availability.BookingReader so the
	// resolver can mark occupied slots without importing this package.
	ActiveIntervals(ctx context.Context, providerID uuid.UUID, date string) ([]availability.BookedInterval, error)
}
