// Package payment abstracts the payment gateway used to charge the
// consultation fee before a booking is confirmed.
package payment

import (
	"context"
	"errors"
)

var (
	// ErrDeclined is returned when the gateway rejects the charge.
	ErrDeclined = errors.New("payment declined")
	// ErrNotSettled is returned when an intent exists but has not
	// completed yet, e.g. the client never confirmed it.
	ErrNotSettled = errors.New("payment not settled")
)

// Intent is a pending charge created before the patient confirms their slot.
type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret,omitempty"`
	AmountCents  int64  `json:"amount_cents"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
}

// Provider is the gateway interface. Implementations must be safe for
// concurrent use.
type Provider interface {
	// CreateIntent opens a charge for the given amount. The returned
	// client secret is handed to the frontend to collect the payment.
	CreateIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (*Intent, error)

	// Verify checks that the intent with the given ID has settled.
	// Returns ErrDeclined or ErrNotSettled when it has not.
	Verify(ctx context.Context, intentID string) (*Intent, error)
}
