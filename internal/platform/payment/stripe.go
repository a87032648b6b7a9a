package payment

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// StripeProvider charges through Stripe PaymentIntents.
type StripeProvider struct {
	api    *client.API
	logger zerolog.Logger
}

// NewStripeProvider builds a provider with its own API client so the
// global stripe.Key is never touched.
func NewStripeProvider(apiKey string, logger zerolog.Logger) *StripeProvider {
	api := &client.API{}
	api.Init(apiKey, nil)
	return &StripeProvider{
		api:    api,
		logger: logger.With().Str("component", "stripe").Logger(),
	}
}

func (p *StripeProvider) CreateIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Params:   stripe.Params{Context: ctx},
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		p.logger.Error().Err(err).Int64("amount_cents", amountCents).Msg("failed to create payment intent")
		return nil, mapStripeErr(err)
	}

	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		AmountCents:  pi.Amount,
		Currency:     string(pi.Currency),
		Status:       string(pi.Status),
	}, nil
}

func (p *StripeProvider) Verify(ctx context.Context, intentID string) (*Intent, error) {
	pi, err := p.api.PaymentIntents.Get(intentID, &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, mapStripeErr(err)
	}

	intent := &Intent{
		ID:          pi.ID,
		AmountCents: pi.Amount,
		Currency:    string(pi.Currency),
		Status:      string(pi.Status),
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return intent, nil
	case stripe.PaymentIntentStatusCanceled:
		return intent, ErrDeclined
	default:
		return intent, ErrNotSettled
	}
}

func mapStripeErr(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
		return ErrDeclined
	}
	return err
}
