package booking

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebook/carebook/internal/platform/notification"
)

// Directory resolves a party's email address. The booking engine only
// knows UUIDs; the surrounding deployment supplies contact details.
type Directory interface {
	Email(ctx context.Context, id uuid.UUID) (string, error)
}

// StaticDirectory is a map-backed Directory for development and tests.
type StaticDirectory struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]string
}

func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{entries: make(map[uuid.UUID]string)}
}

func (d *StaticDirectory) Set(id uuid.UUID, email string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[id] = email
}

func (d *StaticDirectory) Email(_ context.Context, id uuid.UUID) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	email, ok := d.entries[id]
	if !ok {
		return "", ErrNotFound
	}
	return email, nil
}

// EmailNotifier sends templated booking emails to both parties. Lookup or
// delivery failures are logged and dropped; confirmations never gate the
// booking itself.
type EmailNotifier struct {
	manager   *notification.Manager
	directory Directory
	logger    zerolog.Logger
}

func NewEmailNotifier(manager *notification.Manager, directory Directory, logger zerolog.Logger) *EmailNotifier {
	return &EmailNotifier{
		manager:   manager,
		directory: directory,
		logger:    logger.With().Str("component", "booking-notify").Logger(),
	}
}

func (n *EmailNotifier) BookingConfirmed(ctx context.Context, b *Booking) {
	data := templateData(b)
	n.send(ctx, "booking-confirmed", data, b.PatientID)
	n.send(ctx, "provider-new-booking", data, b.ProviderID)
}

func (n *EmailNotifier) BookingCancelled(ctx context.Context, b *Booking) {
	data := templateData(b)
	n.send(ctx, "booking-cancelled", data, b.PatientID)
	n.send(ctx, "booking-cancelled", data, b.ProviderID)
}

func (n *EmailNotifier) send(ctx context.Context, templateID string, data map[string]string, recipient uuid.UUID) {
	email, err := n.directory.Email(ctx, recipient)
	if err != nil {
		n.logger.Debug().Str("recipient", recipient.String()).Str("template", templateID).
			Msg("no email on file, skipping")
		return
	}
	if _, err := n.manager.SendFromTemplate(ctx, templateID, data, email); err != nil {
		n.logger.Warn().Err(err).Str("template", templateID).Msg("booking email failed")
	}
}

func templateData(b *Booking) map[string]string {
	return map[string]string{
		"booking_id":        b.ID.String(),
		"date":              b.Date,
		"start":             b.Start.String(),
		"end":               b.End.String(),
		"consultation_type": string(b.ConsultationType),
	}
}
