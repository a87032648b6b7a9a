package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
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

// -- Mocks --

// mockRepo enforces the overlap invariant under a single mutex, the same
// guarantee the Postgres transaction plus unique index provides.
type mockRepo struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]*Booking
}

func newMockRepo() *mockRepo {
	return &mockRepo{bookings: make(map[uuid.UUID]*Booking)}
}

func (m *mockRepo) Create(_ context.Context, b *Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.bookings {
		if existing.ProviderID == b.ProviderID && existing.Status.Active() &&
			existing.Overlaps(b.Date, b.Start, b.End) {
			return ErrSlotNoLongerAvailable
		}
	}
	b.ID = uuid.New()
	b.CreatedAt = time.Now()
	b.UpdatedAt = time.Now()
	cp := *b
	m.bookings[b.ID] = &cp
	return nil
}

func (m *mockRepo) Get(_ context.Context, id uuid.UUID) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *mockRepo) UpdateStatus(_ context.Context, id uuid.UUID, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return ErrNotFound
	}
	b.Status = status
	b.UpdatedAt = time.Now()
	return nil
}

func (m *mockRepo) ListByPatient(_ context.Context, patientID uuid.UUID, _ pagination.Params) ([]Booking, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Booking
	for _, b := range m.bookings {
		if b.PatientID == patientID {
			out = append(out, *b)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) ListByProviderDay(_ context.Context, providerID uuid.UUID, date string, _ pagination.Params) ([]Booking, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Booking
	for _, b := range m.bookings {
		if b.ProviderID == providerID && b.Date == date {
			out = append(out, *b)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) ActiveIntervals(_ context.Context, providerID uuid.UUID, date string) ([]availability.BookedInterval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []availability.BookedInterval
	for _, b := range m.bookings {
		if b.ProviderID == providerID && b.Date == date && b.Status.Active() {
			out = append(out, availability.BookedInterval{Start: b.Start, End: b.End})
		}
	}
	return out, nil
}

type fixedSchedule struct{ minutes int }

func (f fixedSchedule) SlotDuration(context.Context, uuid.UUID) (int, error) {
	return f.minutes, nil
}

// SlotExists mimics the generator's grid: any non-negative start aligned to
// the slot duration.
func (f fixedSchedule) SlotExists(_ context.Context, _ uuid.UUID, _ string, start availability.TimeOfDay) (bool, error) {
	return start >= 0 && int(start)%f.minutes == 0, nil
}

type capturingHub struct {
	mu     sync.Mutex
	events []websocket.Event
}

func (h *capturingHub) Publish(_ context.Context, event websocket.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	return nil
}

func (h *capturingHub) ofType(t websocket.EventType) []websocket.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []websocket.Event
	for _, e := range h.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type channelNotifier struct {
	confirmed chan *Booking
	cancelled chan *Booking
}

func newChannelNotifier() *channelNotifier {
	return &channelNotifier{
		confirmed: make(chan *Booking, 8),
		cancelled: make(chan *Booking, 8),
	}
}

func (n *channelNotifier) BookingConfirmed(_ context.Context, b *Booking) { n.confirmed <- b }
func (n *channelNotifier) BookingCancelled(_ context.Context, b *Booking) { n.cancelled <- b }

type bookingEnv struct {
	svc      *Service
	repo     *mockRepo
	locks    locks.Table
	payments *payment.DevProvider
	hub      *capturingHub
	notifier *channelNotifier
}

func newBookingEnv() *bookingEnv {
	repo := newMockRepo()
	table := locks.NewMemoryTable(nil)
	payments := payment.NewDevProvider()
	hub := &capturingHub{}
	notifier := newChannelNotifier()
	return &bookingEnv{
		svc:      NewService(repo, table, fixedSchedule{minutes: 30}, payments, hub, notifier, zerolog.Nop(), Options{}),
		repo:     repo,
		locks:    table,
		payments: payments,
		hub:      hub,
		notifier: notifier,
	}
}

const day = "2025-03-03"

func (e *bookingEnv) paidIntent(t *testing.T) string {
	t.Helper()
	intent, err := e.payments.CreateIntent(context.Background(), 5000, "usd", nil)
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	return intent.ID
}

func (e *bookingEnv) confirm(t *testing.T, providerID, patientID uuid.UUID, start availability.TimeOfDay) (*Booking, error) {
	t.Helper()
	return e.svc.Confirm(context.Background(), ConfirmRequest{
		ProviderID:       providerID,
		PatientID:        patientID,
		Date:             day,
		Start:            start,
		ConsultationType: ConsultationVideo,
		PaymentIntent:    e.paidIntent(t),
	})
}

// -- Tests --

func TestAcquireSlot_MutualExclusion(t *testing.T) {
	env := newBookingEnv()
	providerID := uuid.New()
	patientA := uuid.New()
	patientB := uuid.New()

	if _, err := env.svc.AcquireSlot(context.Background(), providerID, day, 10*60, patientA); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if _, err := env.svc.AcquireSlot(context.Background(), providerID, day, 10*60, patientB); !errors.Is(err, ErrSlotContended) {
		t.Fatalf("expected ErrSlotContended, got %v", err)
	}

	// Same holder refreshes rather than contends.
	if _, err := env.svc.AcquireSlot(context.Background(), providerID, day, 10*60, patientA); err != nil {
		t.Fatalf("re-acquire by holder: %v", err)
	}

	lockedEvents := env.hub.ofType(websocket.EventSlotLocked)
	if len(lockedEvents) != 2 {
		t.Fatalf("expected 2 slot-locked events (acquire + refresh), got %d", len(lockedEvents))
	}
}

func TestAcquireSlot_BadDate(t *testing.T) {
	env := newBookingEnv()
	if _, err := env.svc.AcquireSlot(context.Background(), uuid.New(), "03/01/2025", 10*60, uuid.New()); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestConfirm_HappyPath(t *testing.T) {
	env := newBookingEnv()
	providerID := uuid.New()
	patientID := uuid.New()

	if _, err := env.svc.AcquireSlot(context.Background(), providerID, day, 10*60, patientID); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	b, err := env.confirm(t, providerID, patientID, 10*60)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if b.Status != StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", b.Status)
	}
	if b.End != 10*60+30 {
		t.Fatalf("expected end 10:30, got %s", b.End)
	}

	// The lock is gone after the durable write.
	_, held, _ := env.locks.Get(context.Background(), locks.Key{ProviderID: providerID, Date: day, Start: 10 * 60})
	if held {
		t.Fatal("lock should be released after confirmation")
	}

	// The slot immediately reads as booked to the resolver's view.
	intervals, _ := env.repo.ActiveIntervals(context.Background(), providerID, day)
	if len(intervals) != 1 || intervals[0].Start != 10*60 {
		t.Fatalf("expected one active interval at 10:00, got %+v", intervals)
	}

	confirmed := env.hub.ofType(websocket.EventBookingConfirmed)
	if len(confirmed) != 3 {
		t.Fatalf("expected confirmation on provider, patient, and booking topics, got %d events", len(confirmed))
	}
	topics := map[string]bool{}
	for _, e := range confirmed {
		topics[e.Topic] = true
	}
	for _, want := range []string{
		websocket.ProviderTopic(providerID),
		websocket.PatientTopic(patientID),
		websocket.BookingTopic(b.ID),
	} {
		if !topics[want] {
			t.Fatalf("missing confirmation on topic %s", want)
		}
	}

	select {
	case got := <-env.notifier.confirmed:
		if got.ID != b.ID {
			t.Fatalf("notifier received wrong booking: %s", got.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("notifier was not invoked")
	}
}

func TestConfirm_WithoutLock(t *testing.T) {
	env := newBookingEnv()
	if _, err := env.confirm(t, uuid.New(), uuid.New(), 10*60); !errors.Is(err, ErrSlotExpired) {
		t.Fatalf("expected ErrSlotExpired, got %v", err)
	}
}

func TestConfirm_LockHeldByAnotherPatient(t *testing.T) {
	env := newBookingEnv()
	providerID := uuid.New()
	patientA := uuid.New()
	patientB := uuid.New()

	if _, err := env.svc.AcquireSlot(context.Background(), providerID, day, 10*60, patientA); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := env.confirm(t, providerID, patientB, 10*60); !errors.Is(err, ErrSlotExpired) {
		t.Fatalf("expected ErrSlotExpired for non-holder, got %v", err)
	}
}

func TestConfirm_ExpiredLock(t *testing.T) {
	env := newBookingEnv()
	env.svc.lockTTL = 20 * time.Millisecond
	providerID := uuid.New()
	patientID := uuid.New()

	if _, err := env.svc.AcquireSlot(context.Background(), providerID, day, 10*60, patientID); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if _, err := env.confirm(t, providerID, patientID, 10*60); !errors.Is(err, ErrSlotExpired) {
		t.Fatalf("expected ErrSlotExpired, got %v", err)
	}
}

func TestConfirm_PaymentDeclinedReleasesLock(t *testing.T) {
	env := newBookingEnv()
	providerID := uuid.New()
	patientID := uuid.New()
	otherPatient := uuid.New()

	if _, err := env.svc.AcquireSlot(context.Background(), providerID, day, 10*60, patientID); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	env.payments.FailNext()
	intentID := env.paidIntent(t)
	_, err := env.svc.Confirm(context.Background(), ConfirmRequest{
		ProviderID:       providerID,
		PatientID:        patientID,
		Date:             day,
		Start:            10 * 60,
		ConsultationType: ConsultationVideo,
		PaymentIntent:    intentID,
	})
	if !errors.Is(err, ErrConfirmationFailed) {
		t.Fatalf("expected ErrConfirmationFailed, got %v", err)
	}

	// The slot must not be held hostage after a decline.
	if _, err := env.svc.AcquireSlot(context.Background(), providerID, day, 10*60, otherPatient); err != nil {
		t.Fatalf("slot should be free after a declined payment: %v", err)
	}
	if len(env.hub.ofType(websocket.EventSlotUnlocked)) == 0 {
		t.Fatal("expected a slot-unlocked broadcast after the decline")
	}
}

func TestConfirm_LedgerDefense(t *testing.T) {
	env := newBookingEnv()
	providerID := uuid.New()
	patientID := uuid.New()

	// A booking written through a path that bypassed locking.
	if err := env.repo.Create(context.Background(), &Booking{
		ProviderID:       providerID,
		PatientID:        uuid.New(),
		Date:             day,
		Start:            10 * 60,
		End:              10*60 + 30,
		Status:           StatusConfirmed,
		ConsultationType: ConsultationVideo,
	}); err != nil {
		t.Fatalf("seed booking: %v", err)
	}

	if _, err := env.svc.AcquireSlot(context.Background(), providerID, day, 10*60, patientID); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := env.confirm(t, providerID, patientID, 10*60); !errors.Is(err, ErrSlotNoLongerAvailable) {
		t.Fatalf("expected ErrSlotNoLongerAvailable, got %v", err)
	}

	// The now-useless lock is released.
	_, held, _ := env.locks.Get(context.Background(), locks.Key{ProviderID: providerID, Date: day, Start: 10 * 60})
	if held {
		t.Fatal("lock should be released after the ledger rejected the write")
	}
}

func TestConfirm_NoDoubleBookingUnderConcurrency(t *testing.T) {
	env := newBookingEnv()
	providerID := uuid.New()

	const attempts = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	var confirmed int

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			patientID := uuid.New()
			ctx := context.Background()
			if _, err := env.svc.AcquireSlot(ctx, providerID, day, 10*60, patientID); err != nil {
				if !errors.Is(err, ErrSlotContended) {
					t.Errorf("unexpected acquire error: %v", err)
				}
				return
			}
			intent, err := env.payments.CreateIntent(ctx, 5000, "usd", nil)
			if err != nil {
				t.Errorf("create intent: %v", err)
				return
			}
			_, err = env.svc.Confirm(ctx, ConfirmRequest{
				ProviderID:       providerID,
				PatientID:        patientID,
				Date:             day,
				Start:            10 * 60,
				ConsultationType: ConsultationVideo,
				PaymentIntent:    intent.ID,
			})
			if err != nil {
				if !errors.Is(err, ErrSlotExpired) && !errors.Is(err, ErrSlotNoLongerAvailable) {
					t.Errorf("unexpected confirm error: %v", err)
				}
				return
			}
			mu.Lock()
			confirmed++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if confirmed != 1 {
		t.Fatalf("expected exactly 1 confirmed booking, got %d", confirmed)
	}
	intervals, _ := env.repo.ActiveIntervals(context.Background(), providerID, day)
	if len(intervals) != 1 {
		t.Fatalf("ledger holds %d active intervals for the slot, want 1", len(intervals))
	}
}

func TestCancel_FreesTheSlot(t *testing.T) {
	env := newBookingEnv()
	providerID := uuid.New()
	patientID := uuid.New()

	if _, err := env.svc.AcquireSlot(context.Background(), providerID, day, 10*60, patientID); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	b, err := env.confirm(t, providerID, patientID, 10*60)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}

	ident := auth.Identity{SubjectID: patientID.String(), Role: auth.RolePatient}
	cancelled, err := env.svc.Cancel(context.Background(), b.ID, ident)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}

	intervals, _ := env.repo.ActiveIntervals(context.Background(), providerID, day)
	if len(intervals) != 0 {
		t.Fatalf("cancelled booking should not occupy the slot, got %+v", intervals)
	}
	if len(env.hub.ofType(websocket.EventSlotUnlocked)) == 0 {
		t.Fatal("expected slot-unlocked broadcast after cancellation")
	}

	// Cancelling twice is an invalid transition.
	if _, err := env.svc.Cancel(context.Background(), b.ID, ident); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestCancel_StrangerForbidden(t *testing.T) {
	env := newBookingEnv()
	providerID := uuid.New()
	patientID := uuid.New()

	if _, err := env.svc.AcquireSlot(context.Background(), providerID, day, 10*60, patientID); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	b, err := env.confirm(t, providerID, patientID, 10*60)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}

	stranger := auth.Identity{SubjectID: uuid.NewString(), Role: auth.RolePatient}
	if _, err := env.svc.Cancel(context.Background(), b.ID, stranger); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestLifecycle_ProviderTransitions(t *testing.T) {
	env := newBookingEnv()
	providerID := uuid.New()
	patientID := uuid.New()

	makeBooking := func(start availability.TimeOfDay) *Booking {
		if _, err := env.svc.AcquireSlot(context.Background(), providerID, day, start, patientID); err != nil {
			t.Fatalf("acquire: %v", err)
		}
		b, err := env.confirm(t, providerID, patientID, start)
		if err != nil {
			t.Fatalf("confirm: %v", err)
		}
		return b
	}

	providerIdent := auth.Identity{SubjectID: providerID.String(), Role: auth.RoleProvider}
	patientIdent := auth.Identity{SubjectID: patientID.String(), Role: auth.RolePatient}

	b1 := makeBooking(9 * 60)
	done, err := env.svc.Complete(context.Background(), b1.ID, providerIdent)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", done.Status)
	}

	b2 := makeBooking(11 * 60)
	missed, err := env.svc.MarkNoShow(context.Background(), b2.ID, providerIdent)
	if err != nil {
		t.Fatalf("no-show: %v", err)
	}
	if missed.Status != StatusNoShow {
		t.Fatalf("expected no_show, got %s", missed.Status)
	}

	// The patient side cannot run provider transitions.
	b3 := makeBooking(13 * 60)
	if _, err := env.svc.Complete(context.Background(), b3.ID, patientIdent); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	// A completed booking cannot be cancelled.
	if _, err := env.svc.Cancel(context.Background(), b1.ID, providerIdent); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestReleaseSlot_NonHolderIsNoop(t *testing.T) {
	env := newBookingEnv()
	providerID := uuid.New()
	patientA := uuid.New()
	patientB := uuid.New()

	if _, err := env.svc.AcquireSlot(context.Background(), providerID, day, 10*60, patientA); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := env.svc.ReleaseSlot(context.Background(), providerID, day, 10*60, patientB); err != nil {
		t.Fatalf("non-holder release should be a no-op: %v", err)
	}

	// A's lock still stands.
	_, held, _ := env.locks.Get(context.Background(), locks.Key{ProviderID: providerID, Date: day, Start: 10 * 60})
	if !held {
		t.Fatal("holder's lock must survive a stranger's release")
	}

	if err := env.svc.ReleaseSlot(context.Background(), providerID, day, 10*60, patientA); err != nil {
		t.Fatalf("holder release: %v", err)
	}
	_, held, _ = env.locks.Get(context.Background(), locks.Key{ProviderID: providerID, Date: day, Start: 10 * 60})
	if held {
		t.Fatal("lock should be gone after the holder released it")
	}
}

func TestStartPayment_RequiresLiveLock(t *testing.T) {
	env := newBookingEnv()
	providerID := uuid.New()
	patientID := uuid.New()

	if _, err := env.svc.StartPayment(context.Background(), providerID, day, 10*60, patientID, ConsultationVideo); !errors.Is(err, ErrSlotExpired) {
		t.Fatalf("expected ErrSlotExpired without a lock, got %v", err)
	}

	if _, err := env.svc.AcquireSlot(context.Background(), providerID, day, 10*60, patientID); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	intent, err := env.svc.StartPayment(context.Background(), providerID, day, 10*60, patientID, ConsultationVideo)
	if err != nil {
		t.Fatalf("start payment: %v", err)
	}
	if intent.AmountCents != defaultFeeCents {
		t.Fatalf("expected amount %d, got %d", defaultFeeCents, intent.AmountCents)
	}
}

func TestStartPayment_UsesConfiguredFeeAndCurrency(t *testing.T) {
	repo := newMockRepo()
	table := locks.NewMemoryTable(nil)
	payments := payment.NewDevProvider()
	svc := NewService(repo, table, fixedSchedule{minutes: 30}, payments, nil, nil, zerolog.Nop(), Options{
		FeeCents: 10000,
		Currency: "eur",
	})

	providerID := uuid.New()
	patientID := uuid.New()
	if _, err := svc.AcquireSlot(context.Background(), providerID, day, 10*60, patientID); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	intent, err := svc.StartPayment(context.Background(), providerID, day, 10*60, patientID, ConsultationInPerson)
	if err != nil {
		t.Fatalf("start payment: %v", err)
	}
	if intent.AmountCents != 15000 {
		t.Fatalf("expected in-person fee scaled from the configured base, got %d", intent.AmountCents)
	}
	if intent.Currency != "eur" {
		t.Fatalf("expected configured currency, got %q", intent.Currency)
	}
}

func TestAcquireSlot_ConfiguredTTLIsHonored(t *testing.T) {
	repo := newMockRepo()
	table := locks.NewMemoryTable(nil)
	svc := NewService(repo, table, fixedSchedule{minutes: 30}, payment.NewDevProvider(), nil, nil, zerolog.Nop(), Options{
		LockTTL: 25 * time.Millisecond,
	})

	providerID := uuid.New()
	if _, err := svc.AcquireSlot(context.Background(), providerID, day, 10*60, uuid.New()); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	time.Sleep(60 * time.Millisecond)

	if _, err := svc.AcquireSlot(context.Background(), providerID, day, 10*60, uuid.New()); err != nil {
		t.Fatalf("lock should have expired per the configured TTL: %v", err)
	}
}

func TestAcquireSlot_OffScheduleRejected(t *testing.T) {
	env := newBookingEnv()
	providerID := uuid.New()
	patientID := uuid.New()

	// 10:07 is not on the 30-minute grid; it must not be lockable.
	if _, err := env.svc.AcquireSlot(context.Background(), providerID, day, 10*60+7, patientID); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for an off-schedule start, got %v", err)
	}
	if _, held, _ := env.locks.Get(context.Background(), locks.Key{ProviderID: providerID, Date: day, Start: 10*60 + 7}); held {
		t.Fatal("no lock should exist for a slot the schedule does not yield")
	}

	if _, err := env.confirm(t, providerID, patientID, 10*60+7); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest confirming an off-schedule slot, got %v", err)
	}
}

func TestList_Authorization(t *testing.T) {
	env := newBookingEnv()
	providerID := uuid.New()
	patientID := uuid.New()

	if _, err := env.svc.AcquireSlot(context.Background(), providerID, day, 10*60, patientID); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := env.confirm(t, providerID, patientID, 10*60); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	page := pagination.Params{Limit: 20}
	self := auth.Identity{SubjectID: patientID.String(), Role: auth.RolePatient}
	items, total, err := env.svc.ListForPatient(context.Background(), patientID, self, page)
	if err != nil || total != 1 || len(items) != 1 {
		t.Fatalf("patient list: items=%d total=%d err=%v", len(items), total, err)
	}

	stranger := auth.Identity{SubjectID: uuid.NewString(), Role: auth.RolePatient}
	if _, _, err := env.svc.ListForPatient(context.Background(), patientID, stranger, page); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	admin := auth.Identity{SubjectID: uuid.NewString(), Role: auth.RoleAdmin}
	if _, total, err := env.svc.ListForProviderDay(context.Background(), providerID, day, admin, page); err != nil || total != 1 {
		t.Fatalf("admin provider list: total=%d err=%v", total, err)
	}
}
