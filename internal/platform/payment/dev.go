package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// DevProvider is an in-memory gateway for local development and tests.
// Every intent settles immediately unless FailNext has been armed.
type DevProvider struct {
	mu       sync.Mutex
	intents  map[string]*Intent
	failNext bool
}

func NewDevProvider() *DevProvider {
	return &DevProvider{intents: make(map[string]*Intent)}
}

// FailNext makes the next CreateIntent produce an intent that Verify
// will report as declined.
func (p *DevProvider) FailNext() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failNext = true
}

func (p *DevProvider) CreateIntent(_ context.Context, amountCents int64, currency string, _ map[string]string) (*Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	status := "succeeded"
	if p.failNext {
		status = "canceled"
		p.failNext = false
	}

	id := fmt.Sprintf("pi_dev_%s", uuid.NewString())
	intent := &Intent{
		ID:           id,
		ClientSecret: id + "_secret",
		AmountCents:  amountCents,
		Currency:     currency,
		Status:       status,
	}
	p.intents[id] = intent
	return intent, nil
}

func (p *DevProvider) Verify(_ context.Context, intentID string) (*Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	intent, ok := p.intents[intentID]
	if !ok {
		return nil, fmt.Errorf("unknown payment intent %s", intentID)
	}
	if intent.Status == "canceled" {
		return intent, ErrDeclined
	}
	return intent, nil
}
