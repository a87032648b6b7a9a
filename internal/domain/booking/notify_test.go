package booking

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebook/carebook/internal/platform/notification"
)

func TestEmailNotifier_BookingConfirmed(t *testing.T) {
	email := &notification.MockEmailSender{}
	mgr := notification.NewManager(email, nil, notification.NewTemplateEngine(), "bookings@carebook.local", zerolog.Nop())

	directory := NewStaticDirectory()
	patientID := uuid.New()
	providerID := uuid.New()
	directory.Set(patientID, "patient@example.com")
	directory.Set(providerID, "provider@example.com")

	n := NewEmailNotifier(mgr, directory, zerolog.Nop())
	n.BookingConfirmed(context.Background(), &Booking{
		ID:               uuid.New(),
		ProviderID:       providerID,
		PatientID:        patientID,
		Date:             day,
		Start:            10 * 60,
		End:              10*60 + 30,
		Status:           StatusConfirmed,
		ConsultationType: ConsultationVideo,
	})

	calls := email.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 emails (patient + provider), got %d", len(calls))
	}
	recipients := map[string]bool{}
	for _, call := range calls {
		recipients[call.To] = true
		if !strings.Contains(call.Body, "10:00") {
			t.Fatalf("email body missing start time: %q", call.Body)
		}
	}
	if !recipients["patient@example.com"] || !recipients["provider@example.com"] {
		t.Fatalf("wrong recipients: %v", recipients)
	}
}

func TestEmailNotifier_UnknownRecipientSkipped(t *testing.T) {
	email := &notification.MockEmailSender{}
	mgr := notification.NewManager(email, nil, notification.NewTemplateEngine(), "bookings@carebook.local", zerolog.Nop())

	n := NewEmailNotifier(mgr, NewStaticDirectory(), zerolog.Nop())
	n.BookingCancelled(context.Background(), &Booking{
		ID:         uuid.New(),
		ProviderID: uuid.New(),
		PatientID:  uuid.New(),
		Date:       day,
		Start:      10 * 60,
	})

	if calls := email.Calls(); len(calls) != 0 {
		t.Fatalf("expected no emails for unknown recipients, got %d", len(calls))
	}
}
