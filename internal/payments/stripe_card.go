package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeLogger defines the logging contract for Stripe card operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeCardConfig configures the StripeCardProvider.
type StripeCardConfig struct {
	APIKey  string
	Logger  StripeLogger
	Clock   func() time.Time
	Intents stripeIntentAPI
}

// StripeCardProvider implements the card path of the Provider contract on top
// of Stripe payment intents.
type StripeCardProvider struct {
	intents stripeIntentAPI
	clock   func() time.Time
	logger  StripeLogger
}

// NewStripeCardProvider constructs a StripeCardProvider.
func NewStripeCardProvider(cfg StripeCardConfig) (*StripeCardProvider, error) {
	intents := cfg.Intents
	if intents == nil {
		apiKey := strings.TrimSpace(cfg.APIKey)
		if apiKey == "" {
			return nil, errors.New("payments: stripe api key is required")
		}
		sc := client.New(apiKey, nil)
		intents = sc.PaymentIntents
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeCardProvider{
		intents: intents,
		clock:   func() time.Time { return clock().UTC() },
		logger:  logger,
	}, nil
}

// CreatePayment implements Provider by opening a card payment intent in BRL.
func (p *StripeCardProvider) CreatePayment(ctx context.Context, req CreatePaymentRequest) (PaymentIntent, error) {
	if p == nil {
		return PaymentIntent{}, errors.New("payments: stripe provider is nil")
	}

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(Centavos(req.Amount)),
		Currency:           stripe.String(string(stripe.CurrencyBRL)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if desc := strings.TrimSpace(req.Description); desc != "" {
		params.Description = stripe.String(desc)
	}
	if email := strings.TrimSpace(req.Payer.Email); email != "" {
		params.ReceiptEmail = stripe.String(email)
	}
	metadata := make(map[string]string, len(req.Metadata)+1)
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	if ref := strings.TrimSpace(req.ExternalReference); ref != "" {
		metadata["external_reference"] = ref
	}
	if len(metadata) > 0 {
		params.Metadata = metadata
	}

	intent, err := p.intents.New(params)
	if err != nil {
		return PaymentIntent{}, fmt.Errorf("payments: stripe create intent: %w", err)
	}

	p.logger(ctx, "payments.stripe.intent_created", map[string]any{
		"paymentIntent": intent.ID,
		"amount":        intent.Amount,
	})

	return PaymentIntent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       stripeIntentStatus(intent),
		Method:       "card",
		ExpiresAt:    p.clock().Add(30 * time.Minute),
	}, nil
}

// CheckStatus implements Provider.
func (p *StripeCardProvider) CheckStatus(ctx context.Context, paymentID string) (Status, error) {
	if p == nil {
		return "", errors.New("payments: stripe provider is nil")
	}
	id := strings.TrimSpace(paymentID)
	if id == "" {
		return "", errors.New("payments: payment id is required")
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	intent, err := p.intents.Get(id, params)
	if err != nil {
		return "", fmt.Errorf("payments: stripe lookup intent: %w", err)
	}
	return stripeIntentStatus(intent), nil
}

func stripeIntentStatus(intent *stripe.PaymentIntent) Status {
	if intent == nil {
		return StatusPending
	}
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusApproved
	case stripe.PaymentIntentStatusCanceled:
		return StatusCancelled
	default:
		if intent.LastPaymentError != nil {
			return StatusRejected
		}
		return StatusPending
	}
}
