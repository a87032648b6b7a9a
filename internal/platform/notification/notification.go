// Package notification delivers booking lifecycle messages to patients and
// providers over email or SMS, with template rendering and retry support.
package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Channel is the delivery medium for a message.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Message is a single outbound notification.
type Message struct {
	ID           string            `json:"id"`
	Channel      Channel           `json:"channel"`
	From         string            `json:"from,omitempty"`
	Recipient    string            `json:"recipient"`
	Subject      string            `json:"subject,omitempty"`
	Body         string            `json:"body"`
	TemplateID   string            `json:"template_id,omitempty"`
	TemplateData map[string]string `json:"template_data,omitempty"`
	Status       string            `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
	SentAt       *time.Time        `json:"sent_at,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// EmailSender delivers email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, from, to, subject, body string) error
}

// SMSSender delivers SMS messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// LogSender writes messages to the structured log instead of delivering
// them. Used in development, where no mail or SMS gateway is configured.
type LogSender struct {
	Logger zerolog.Logger
}

func (s *LogSender) SendEmail(_ context.Context, from, to, subject, body string) error {
	s.Logger.Info().Str("from", from).Str("to", to).Str("subject", subject).Str("body", body).Msg("email (dev)")
	return nil
}

func (s *LogSender) SendSMS(_ context.Context, to, body string) error {
	s.Logger.Info().Str("to", to).Str("body", body).Msg("sms (dev)")
	return nil
}

// Template is a reusable message with {{key}} placeholders.
type Template struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Subject string  `json:"subject"`
	Body    string  `json:"body"`
	Channel Channel `json:"channel"`
}

// TemplateEngine stores templates and renders them with data maps.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates an engine with the booking templates
// pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      "booking-confirmed",
			Name:    "Booking Confirmed",
			Subject: "Your consultation on {{date}} is confirmed",
			Body:    "Your {{consultation_type}} consultation on {{date}} at {{start}} is confirmed. Booking reference: {{booking_id}}.",
			Channel: ChannelEmail,
		},
		{
			ID:      "booking-cancelled",
			Name:    "Booking Cancelled",
			Subject: "Your consultation on {{date}} was cancelled",
			Body:    "The consultation on {{date}} at {{start}} has been cancelled. The slot has been released. Booking reference: {{booking_id}}.",
			Channel: ChannelEmail,
		},
		{
			ID:      "booking-reminder",
			Name:    "Booking Reminder",
			Subject: "Reminder: consultation on {{date}} at {{start}}",
			Body:    "This is a reminder of your {{consultation_type}} consultation on {{date}} at {{start}}.",
			Channel: ChannelEmail,
		},
		{
			ID:      "provider-new-booking",
			Name:    "New Booking for Provider",
			Subject: "New booking on {{date}} at {{start}}",
			Body:    "A patient has booked a {{consultation_type}} consultation with you on {{date}} at {{start}}. Booking reference: {{booking_id}}.",
			Channel: ChannelEmail,
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render performs {{key}} replacement on the template's subject and body.
// Keys present in the template but absent from data are left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

func (e *TemplateEngine) channelOf(templateID string) Channel {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if t, ok := e.templates[templateID]; ok {
		return t.Channel
	}
	return ChannelEmail
}

// Manager dispatches messages and keeps an in-memory record so failed
// sends can be retried.
type Manager struct {
	emailSender EmailSender
	smsSender   SMSSender
	templates   *TemplateEngine
	from        string
	logger      zerolog.Logger

	mu       sync.RWMutex
	messages map[string]*Message
}

// NewManager constructs a Manager. from is the sender address stamped on
// outgoing email. smsSender may be nil when no SMS gateway is configured;
// SMS sends then fail with a descriptive error.
func NewManager(email EmailSender, sms SMSSender, tpl *TemplateEngine, from string, logger zerolog.Logger) *Manager {
	return &Manager{
		emailSender: email,
		smsSender:   sms,
		templates:   tpl,
		from:        from,
		logger:      logger.With().Str("component", "notification").Logger(),
		messages:    make(map[string]*Message),
	}
}

// Send dispatches a message through its channel, assigns an ID and
// timestamps, and records the result.
func (m *Manager) Send(ctx context.Context, msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.From == "" {
		msg.From = m.from
	}
	msg.CreatedAt = time.Now().UTC()
	msg.Status = "pending"

	sendErr := m.dispatch(ctx, msg)

	if sendErr != nil {
		msg.Status = "failed"
		msg.Error = sendErr.Error()
		m.logger.Warn().Err(sendErr).Str("message_id", msg.ID).Str("channel", string(msg.Channel)).Msg("notification send failed")
	} else {
		msg.Status = "sent"
		sentAt := time.Now().UTC()
		msg.SentAt = &sentAt
	}

	m.mu.Lock()
	m.messages[msg.ID] = msg
	m.mu.Unlock()

	return sendErr
}

func (m *Manager) dispatch(ctx context.Context, msg *Message) error {
	switch msg.Channel {
	case ChannelEmail:
		return m.emailSender.SendEmail(ctx, msg.From, msg.Recipient, msg.Subject, msg.Body)
	case ChannelSMS:
		if m.smsSender == nil {
			return fmt.Errorf("no SMS gateway configured")
		}
		return m.smsSender.SendSMS(ctx, msg.Recipient, msg.Body)
	default:
		return fmt.Errorf("unsupported channel: %s", msg.Channel)
	}
}

// SendFromTemplate renders a template and sends the result.
func (m *Manager) SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) (*Message, error) {
	subject, body, err := m.templates.Render(templateID, data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	msg := &Message{
		Channel:      m.templates.channelOf(templateID),
		Recipient:    recipient,
		Subject:      subject,
		Body:         body,
		TemplateID:   templateID,
		TemplateData: data,
	}

	if err := m.Send(ctx, msg); err != nil {
		return msg, err
	}
	return msg, nil
}

// Get retrieves a recorded message by ID.
func (m *Manager) Get(_ context.Context, id string) (*Message, error) {
	m.mu.RLock()
	msg, ok := m.messages[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("notification %q not found", id)
	}
	return msg, nil
}

// Retry re-sends a failed message. It is an error to retry a message that
// is not in failed status.
func (m *Manager) Retry(ctx context.Context, id string) error {
	m.mu.RLock()
	msg, ok := m.messages[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("notification %q not found", id)
	}
	if msg.Status != "failed" {
		return fmt.Errorf("notification %q is not in failed status (current: %s)", id, msg.Status)
	}

	sendErr := m.dispatch(ctx, msg)

	m.mu.Lock()
	if sendErr != nil {
		msg.Status = "failed"
		msg.Error = sendErr.Error()
	} else {
		msg.Status = "sent"
		sentAt := time.Now().UTC()
		msg.SentAt = &sentAt
		msg.Error = ""
	}
	m.mu.Unlock()

	return sendErr
}

// Stats returns message counts grouped by status.
func (m *Manager) Stats(_ context.Context) map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]int)
	for _, msg := range m.messages {
		stats[msg.Status]++
	}
	return stats
}
