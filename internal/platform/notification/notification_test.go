package notification

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func newTestManager(email EmailSender, sms SMSSender) *Manager {
	return NewManager(email, sms, NewTemplateEngine(), "bookings@carebook.local", zerolog.Nop())
}

func TestTemplateEngine_RenderBookingConfirmed(t *testing.T) {
	e := NewTemplateEngine()

	subject, body, err := e.Render("booking-confirmed", map[string]string{
		"consultation_type": "video",
		"date":              "2025-03-01",
		"start":             "10:00",
		"booking_id":        "bk-123",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(subject, "2025-03-01") {
		t.Fatalf("subject missing date: %q", subject)
	}
	for _, want := range []string{"video", "10:00", "bk-123"} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %q: %q", want, body)
		}
	}
	if strings.Contains(body, "{{") {
		t.Fatalf("unreplaced placeholder in body: %q", body)
	}
}

func TestTemplateEngine_MissingKeysLeftAsIs(t *testing.T) {
	e := NewTemplateEngine()

	_, body, err := e.Render("booking-reminder", map[string]string{"date": "2025-03-01"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(body, "{{start}}") {
		t.Fatalf("expected absent key to remain as placeholder, got %q", body)
	}
}

func TestTemplateEngine_UnknownTemplate(t *testing.T) {
	e := NewTemplateEngine()
	if _, _, err := e.Render("no-such-template", nil); err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func TestManager_SendFromTemplate(t *testing.T) {
	email := &MockEmailSender{}
	mgr := newTestManager(email, nil)

	msg, err := mgr.SendFromTemplate(context.Background(), "booking-confirmed", map[string]string{
		"date":  "2025-03-01",
		"start": "10:00",
	}, "ada@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Status != "sent" {
		t.Fatalf("expected sent, got %s", msg.Status)
	}
	if msg.SentAt == nil {
		t.Fatal("expected SentAt to be set")
	}

	calls := email.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 email call, got %d", len(calls))
	}
	if calls[0].To != "ada@example.com" {
		t.Fatalf("wrong recipient: %s", calls[0].To)
	}
	if calls[0].From != "bookings@carebook.local" {
		t.Fatalf("wrong sender address: %s", calls[0].From)
	}
	if msg.From != "bookings@carebook.local" {
		t.Fatalf("expected configured sender stamped on the message, got %q", msg.From)
	}
}

func TestManager_FailedSendIsRecorded(t *testing.T) {
	email := &MockEmailSender{ShouldFail: true, FailError: "smtp timeout"}
	mgr := newTestManager(email, nil)

	msg, err := mgr.SendFromTemplate(context.Background(), "booking-cancelled", nil, "ada@example.com")
	if err == nil {
		t.Fatal("expected send error")
	}
	if msg.Status != "failed" || msg.Error != "smtp timeout" {
		t.Fatalf("expected failed status with error recorded, got %+v", msg)
	}

	stats := mgr.Stats(context.Background())
	if stats["failed"] != 1 {
		t.Fatalf("expected 1 failed message in stats, got %v", stats)
	}
}

func TestManager_RetryFailedMessage(t *testing.T) {
	email := &MockEmailSender{ShouldFail: true, FailError: "smtp timeout"}
	mgr := newTestManager(email, nil)

	msg, _ := mgr.SendFromTemplate(context.Background(), "booking-reminder", nil, "ada@example.com")

	email.ShouldFail = false
	if err := mgr.Retry(context.Background(), msg.ID); err != nil {
		t.Fatalf("retry should succeed once the sender recovers: %v", err)
	}

	got, err := mgr.Get(context.Background(), msg.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != "sent" || got.Error != "" {
		t.Fatalf("expected sent with error cleared, got %+v", got)
	}
}

func TestManager_RetrySentMessageRejected(t *testing.T) {
	email := &MockEmailSender{}
	mgr := newTestManager(email, nil)

	msg, _ := mgr.SendFromTemplate(context.Background(), "booking-confirmed", nil, "ada@example.com")
	if err := mgr.Retry(context.Background(), msg.ID); err == nil {
		t.Fatal("expected error retrying a sent message")
	}
}

func TestManager_SMSWithoutGateway(t *testing.T) {
	mgr := newTestManager(&MockEmailSender{}, nil)

	err := mgr.Send(context.Background(), &Message{
		Channel:   ChannelSMS,
		Recipient: "+15550100",
		Body:      "hi",
	})
	if err == nil {
		t.Fatal("expected error when no SMS gateway is configured")
	}
}
