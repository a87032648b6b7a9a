package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebook/carebook/internal/domain/availability"
	"github.com/carebook/carebook/internal/platform/auth"
	"github.com/carebook/carebook/internal/platform/locks"
	"github.com/carebook/carebook/internal/platform/payment"
	"github.com/carebook/carebook/internal/platform/websocket"
	"github.com/carebook/carebook/pkg/pagination"
)

// ErrInvalidRequest rejects malformed slot references and confirmation
// requests before any state is touched.
var ErrInvalidRequest = errors.New("invalid booking request")

// ScheduleReader answers questions about a provider's schedule. Satisfied
// by availability.Service.
type ScheduleReader interface {
	// SlotDuration returns the provider's configured slot length in minutes.
	SlotDuration(ctx context.Context, providerID uuid.UUID) (int, error)
	// SlotExists reports whether the provider's schedule yields a slot
	// starting at start on date.
	SlotExists(ctx context.Context, providerID uuid.UUID, date string, start availability.TimeOfDay) (bool, error)
}

// Notifier delivers booking emails. Calls are fire-and-forget from the
// orchestrator; failures never affect the booking outcome.
type Notifier interface {
	BookingConfirmed(ctx context.Context, b *Booking)
	BookingCancelled(ctx context.Context, b *Booking)
}

// defaultFeeCents is the base (video) consultation charge when no fee is
// configured.
const defaultFeeCents int64 = 5000

const defaultCurrency = "usd"

// Options carries the deployment-tunable knobs of the booking service.
// Zero values fall back to the defaults above and locks.DefaultTTL.
type Options struct {
	LockTTL  time.Duration
	FeeCents int64
	Currency string
}

// Service drives a booking from slot selection through confirmation.
// The lock table guards against concurrent lock holders; the repository's
// Create is the last line of defense against double booking.
type Service struct {
	repo      Repository
	locks     locks.Table
	schedules ScheduleReader
	payments  payment.Provider
	hub       websocket.EventPublisher
	notifier  Notifier
	logger    zerolog.Logger
	lockTTL   time.Duration
	feeCents  int64
	currency  string
	now       func() time.Time
}

func NewService(repo Repository, lockTable locks.Table, schedules ScheduleReader, payments payment.Provider, hub websocket.EventPublisher, notifier Notifier, logger zerolog.Logger, opts Options) *Service {
	if opts.LockTTL <= 0 {
		opts.LockTTL = locks.DefaultTTL
	}
	if opts.FeeCents <= 0 {
		opts.FeeCents = defaultFeeCents
	}
	if opts.Currency == "" {
		opts.Currency = defaultCurrency
	}
	return &Service{
		repo:      repo,
		locks:     lockTable,
		schedules: schedules,
		payments:  payments,
		hub:       hub,
		notifier:  notifier,
		logger:    logger.With().Str("component", "booking").Logger(),
		lockTTL:   opts.LockTTL,
		feeCents:  opts.FeeCents,
		currency:  opts.Currency,
		now:       time.Now,
	}
}

func slotKey(providerID uuid.UUID, date string, start availability.TimeOfDay) locks.Key {
	return locks.Key{ProviderID: providerID, Date: date, Start: int(start)}
}

func validDate(date string) bool {
	_, err := time.Parse("2006-01-02", date)
	return err == nil
}

// AcquireSlot claims the slot for the patient. Re-acquisition by the same
// patient refreshes the TTL. A slot held by someone else is reported as
// ErrSlotContended, never retried here.
func (s *Service) AcquireSlot(ctx context.Context, providerID uuid.UUID, date string, start availability.TimeOfDay, patientID uuid.UUID) (locks.Lock, error) {
	if !validDate(date) || start < 0 {
		return locks.Lock{}, fmt.Errorf("%w: bad date or start time", ErrInvalidRequest)
	}
	exists, err := s.schedules.SlotExists(ctx, providerID, date, start)
	if err != nil {
		return locks.Lock{}, fmt.Errorf("check slot: %w", err)
	}
	if !exists {
		return locks.Lock{}, fmt.Errorf("%w: no slot at %s on %s", ErrInvalidRequest, start, date)
	}

	lock, err := s.locks.TryAcquire(ctx, slotKey(providerID, date, start), patientID, s.lockTTL)
	if err != nil {
		if errors.Is(err, locks.ErrContended) {
			return locks.Lock{}, ErrSlotContended
		}
		return locks.Lock{}, err
	}

	s.publish(ctx, websocket.Event{
		Type:  websocket.EventSlotLocked,
		Topic: websocket.ProviderTopic(providerID),
		Slot:  &websocket.SlotPayload{ProviderID: providerID, Date: date, Start: start.String()},
	})
	return lock, nil
}

// ReleaseSlot gives the slot back. A release by a non-holder, or of a lock
// that already expired, is a silent no-op.
func (s *Service) ReleaseSlot(ctx context.Context, providerID uuid.UUID, date string, start availability.TimeOfDay, patientID uuid.UUID) error {
	key := slotKey(providerID, date, start)
	lock, held, err := s.locks.Get(ctx, key)
	if err != nil {
		return err
	}
	if !held || lock.HolderID != patientID {
		return nil
	}
	if err := s.locks.Release(ctx, key, patientID); err != nil {
		return err
	}
	s.publish(ctx, websocket.Event{
		Type:  websocket.EventSlotUnlocked,
		Topic: websocket.ProviderTopic(providerID),
		Slot:  &websocket.SlotPayload{ProviderID: providerID, Date: date, Start: start.String()},
	})
	return nil
}

// price scales the configured base fee by consultation type: in-person
// visits cost half again as much as video, phone three fifths.
func (s *Service) price(ctype ConsultationType) int64 {
	switch ctype {
	case ConsultationInPerson:
		return s.feeCents * 3 / 2
	case ConsultationPhone:
		return s.feeCents * 3 / 5
	default:
		return s.feeCents
	}
}

// StartPayment opens a charge intent for a slot the patient has locked.
// The lock is re-validated so a patient cannot pay for a slot that
// already slipped away.
func (s *Service) StartPayment(ctx context.Context, providerID uuid.UUID, date string, start availability.TimeOfDay, patientID uuid.UUID, ctype ConsultationType) (*payment.Intent, error) {
	if s.payments == nil {
		return nil, fmt.Errorf("%w: payments are not configured", ErrInvalidRequest)
	}
	if !ctype.Valid() {
		return nil, fmt.Errorf("%w: unknown consultation type %q", ErrInvalidRequest, ctype)
	}

	lock, held, err := s.locks.Get(ctx, slotKey(providerID, date, start))
	if err != nil {
		return nil, err
	}
	if !held || lock.HolderID != patientID || lock.Expired(s.now()) {
		return nil, ErrSlotExpired
	}

	return s.payments.CreateIntent(ctx, s.price(ctype), s.currency, map[string]string{
		"provider_id": providerID.String(),
		"patient_id":  patientID.String(),
		"date":        date,
		"start":       start.String(),
	})
}

// ConfirmRequest carries everything needed to finalize a booking.
type ConfirmRequest struct {
	ProviderID       uuid.UUID
	PatientID        uuid.UUID
	Date             string
	Start            availability.TimeOfDay
	ConsultationType ConsultationType
	PaymentIntent    string
}

// Confirm finalizes a booking for a slot the patient has locked. The lock
// is re-validated first because UI flows can outlive the TTL, then the
// payment collaborator must report success, then the ledger write performs
// its own overlap check. Only after the durable write does the lock go
// away and the confirmation broadcast fire.
func (s *Service) Confirm(ctx context.Context, req ConfirmRequest) (*Booking, error) {
	if !validDate(req.Date) {
		return nil, fmt.Errorf("%w: bad date", ErrInvalidRequest)
	}
	if !req.ConsultationType.Valid() {
		return nil, fmt.Errorf("%w: unknown consultation type %q", ErrInvalidRequest, req.ConsultationType)
	}
	exists, err := s.schedules.SlotExists(ctx, req.ProviderID, req.Date, req.Start)
	if err != nil {
		return nil, fmt.Errorf("check slot: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: no slot at %s on %s", ErrInvalidRequest, req.Start, req.Date)
	}

	key := slotKey(req.ProviderID, req.Date, req.Start)
	lock, held, err := s.locks.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !held || lock.HolderID != req.PatientID || lock.Expired(s.now()) {
		return nil, ErrSlotExpired
	}

	if s.payments != nil {
		if req.PaymentIntent == "" {
			return nil, fmt.Errorf("%w: payment intent is required", ErrInvalidRequest)
		}
		if _, err := s.payments.Verify(ctx, req.PaymentIntent); err != nil {
			// Do not hold the slot hostage after a decline.
			s.releaseAndBroadcast(ctx, key, req.PatientID)
			return nil, fmt.Errorf("%w: %v", ErrConfirmationFailed, err)
		}
	}

	minutes, err := s.schedules.SlotDuration(ctx, req.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("resolve slot duration: %w", err)
	}

	b := &Booking{
		ProviderID:       req.ProviderID,
		PatientID:        req.PatientID,
		Date:             req.Date,
		Start:            req.Start,
		End:              req.Start + availability.TimeOfDay(minutes),
		Status:           StatusConfirmed,
		ConsultationType: req.ConsultationType,
		PaymentIntentID:  req.PaymentIntent,
	}
	if err := s.repo.Create(ctx, b); err != nil {
		if errors.Is(err, ErrSlotNoLongerAvailable) {
			s.releaseAndBroadcast(ctx, key, req.PatientID)
		}
		return nil, err
	}

	if err := s.locks.Release(ctx, key, req.PatientID); err != nil {
		s.logger.Warn().Err(err).Str("key", key.String()).Msg("release after confirm failed")
	}

	event := websocket.Event{
		Type: websocket.EventBookingConfirmed,
		Booking: &websocket.BookingPayload{
			BookingID:  b.ID,
			ProviderID: b.ProviderID,
			PatientID:  b.PatientID,
			Date:       b.Date,
			Start:      b.Start.String(),
			Status:     string(b.Status),
		},
	}
	for _, topic := range []string{
		websocket.ProviderTopic(b.ProviderID),
		websocket.PatientTopic(b.PatientID),
		websocket.BookingTopic(b.ID),
	} {
		event.Topic = topic
		s.publish(ctx, event)
	}

	if s.notifier != nil {
		go s.notifier.BookingConfirmed(context.WithoutCancel(ctx), b)
	}

	s.logger.Info().
		Str("booking_id", b.ID.String()).
		Str("provider_id", b.ProviderID.String()).
		Str("date", b.Date).
		Str("start", b.Start.String()).
		Msg("booking confirmed")
	return b, nil
}

// Cancel moves a pending or confirmed booking to cancelled and announces
// the freed slot.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, ident auth.Identity) (*Booking, error) {
	b, err := s.authorized(ctx, id, ident, true)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, b, StatusCancelled, func(b *Booking) {
		s.publish(ctx, websocket.Event{
			Type:  websocket.EventSlotUnlocked,
			Topic: websocket.ProviderTopic(b.ProviderID),
			Slot:  &websocket.SlotPayload{ProviderID: b.ProviderID, Date: b.Date, Start: b.Start.String()},
		})
		if s.notifier != nil {
			go s.notifier.BookingCancelled(context.WithoutCancel(ctx), b)
		}
	})
}

// Complete marks a confirmed booking as completed. Provider side only.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, ident auth.Identity) (*Booking, error) {
	b, err := s.authorized(ctx, id, ident, false)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, b, StatusCompleted, nil)
}

// MarkNoShow records that the patient did not attend. Provider side only.
func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID, ident auth.Identity) (*Booking, error) {
	b, err := s.authorized(ctx, id, ident, false)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, b, StatusNoShow, nil)
}

// Get returns a booking to one of its participants.
func (s *Service) Get(ctx context.Context, id uuid.UUID, ident auth.Identity) (*Booking, error) {
	return s.authorized(ctx, id, ident, true)
}

func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID, ident auth.Identity, p pagination.Params) ([]Booking, int, error) {
	if ident.Role != auth.RoleAdmin && ident.SubjectID != patientID.String() {
		return nil, 0, ErrForbidden
	}
	return s.repo.ListByPatient(ctx, patientID, p)
}

func (s *Service) ListForProviderDay(ctx context.Context, providerID uuid.UUID, date string, ident auth.Identity, p pagination.Params) ([]Booking, int, error) {
	if !validDate(date) {
		return nil, 0, fmt.Errorf("%w: bad date", ErrInvalidRequest)
	}
	if ident.Role != auth.RoleAdmin && ident.SubjectID != providerID.String() {
		return nil, 0, ErrForbidden
	}
	return s.repo.ListByProviderDay(ctx, providerID, date, p)
}

// authorized loads the booking and checks the caller is a participant.
// The patient side is included only when patientToo is set; admins always
// pass.
func (s *Service) authorized(ctx context.Context, id uuid.UUID, ident auth.Identity, patientToo bool) (*Booking, error) {
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ident.Role == auth.RoleAdmin || ident.SubjectID == b.ProviderID.String() {
		return b, nil
	}
	if patientToo && ident.SubjectID == b.PatientID.String() {
		return b, nil
	}
	return nil, ErrForbidden
}

func (s *Service) transition(ctx context.Context, b *Booking, next Status, after func(*Booking)) (*Booking, error) {
	if !b.Status.CanTransition(next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, next)
	}
	if err := s.repo.UpdateStatus(ctx, b.ID, next); err != nil {
		return nil, err
	}
	b.Status = next
	if after != nil {
		after(b)
	}
	return b, nil
}

func (s *Service) releaseAndBroadcast(ctx context.Context, key locks.Key, holder uuid.UUID) {
	if err := s.locks.Release(ctx, key, holder); err != nil {
		s.logger.Warn().Err(err).Str("key", key.String()).Msg("lock release failed")
		return
	}
	s.publish(ctx, websocket.Event{
		Type:  websocket.EventSlotUnlocked,
		Topic: websocket.ProviderTopic(key.ProviderID),
		Slot: &websocket.SlotPayload{
			ProviderID: key.ProviderID,
			Date:       key.Date,
			Start:      availability.TimeOfDay(key.Start).String(),
		},
	})
}

func (s *Service) publish(ctx context.Context, event websocket.Event) {
	if s.hub == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	if err := s.hub.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("type", string(event.Type)).Msg("event publish failed")
	}
}
