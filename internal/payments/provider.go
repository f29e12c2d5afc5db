// Package payments is the boundary to the external payment collaborator. The
// core only depends on two operations: create a payment and poll its status.
// Providers normalise their responses into the shared Status set; transport
// and provider-specific failures surface as errors for the checkout flow to
// convert into user-visible state.
package payments

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Status enumerates the normalised payment states shared across providers.
type Status string

const (
	// StatusPending indicates the payment awaits customer action or
	// provider confirmation (PIX not yet paid, boleto not yet settled).
	StatusPending Status = "pending"
	// StatusApproved indicates the provider reports the payment as settled.
	StatusApproved Status = "approved"
	// StatusCancelled indicates the payment was cancelled or expired.
	StatusCancelled Status = "cancelled"
	// StatusRejected indicates the provider refused the payment.
	StatusRejected Status = "rejected"
)

// Terminal reports whether no further status change is expected.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusCancelled || s == StatusRejected
}

// ErrUnsupportedMethod is returned when no provider handles a payment method.
var ErrUnsupportedMethod = errors.New("payments: unsupported payment method")

// Payer identifies who is paying.
type Payer struct {
	Name  string
	Email string
	CPF   string
	Phone string
}

// LineItem describes one billable line of the payment.
type LineItem struct {
	Title     string
	Quantity  int
	UnitPrice float64
}

// BackURLs tells hosted payment pages where to send the customer afterwards.
type BackURLs struct {
	Success string
	Failure string
	Pending string
}

// CreatePaymentRequest is the payload handed to a provider. Amount is in BRL.
type CreatePaymentRequest struct {
	Method            string
	Amount            float64
	Description       string
	ExternalReference string
	Payer             Payer
	Items             []LineItem
	BackURLs          BackURLs
	Metadata          map[string]string
	IdempotencyKey    string
}

// PaymentIntent is the provider's answer to a create request.
type PaymentIntent struct {
	ID               string
	PreferenceID     string
	PublicKey        string
	ClientSecret     string
	RedirectURL      string
	PixCode          string
	PixQRCodeBase64  string
	BoletoURL        string
	Status           Status
	Method           string
	ExpiresAt        time.Time
}

// Provider is the contract every payment adapter implements.
type Provider interface {
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (PaymentIntent, error)
	CheckStatus(ctx context.Context, paymentID string) (Status, error)
}

// Manager routes create and status calls to the provider registered for the
// payment method.
type Manager struct {
	providers    map[string]Provider
	methodRoutes map[string]string
	defaultKey   string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the provider used for unrouted methods.
func WithDefaultProvider(key string) ManagerOption {
	return func(m *Manager) {
		m.defaultKey = strings.ToLower(strings.TrimSpace(key))
	}
}

// WithMethodRoutes maps payment methods to provider keys.
func WithMethodRoutes(routes map[string]string) ManagerOption {
	return func(m *Manager) {
		for method, key := range routes {
			m.methodRoutes[strings.ToLower(strings.TrimSpace(method))] = strings.ToLower(strings.TrimSpace(key))
		}
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	copied := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := strings.ToLower(strings.TrimSpace(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		copied[key] = v
	}
	m := &Manager{
		providers:    copied,
		methodRoutes: make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Manager) resolve(method string) (string, Provider, error) {
	if m == nil || len(m.providers) == 0 {
		return "", nil, errors.New("payments: no providers registered")
	}
	key := m.methodRoutes[strings.ToLower(strings.TrimSpace(method))]
	if key == "" {
		key = m.defaultKey
	}
	if key == "" && len(m.providers) == 1 {
		for k := range m.providers {
			key = k
		}
	}
	if provider, ok := m.providers[key]; ok {
		return key, provider, nil
	}
	return "", nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
}

// CreatePayment delegates to the provider routed for the request's method.
func (m *Manager) CreatePayment(ctx context.Context, req CreatePaymentRequest) (PaymentIntent, error) {
	_, provider, err := m.resolve(req.Method)
	if err != nil {
		return PaymentIntent{}, err
	}
	return provider.CreatePayment(ctx, req)
}

// CheckStatus delegates to the provider routed for the given method.
func (m *Manager) CheckStatus(ctx context.Context, method, paymentID string) (Status, error) {
	_, provider, err := m.resolve(method)
	if err != nil {
		return "", err
	}
	return provider.CheckStatus(ctx, paymentID)
}

// Centavos converts a BRL amount to integer centavos, rounding half up.
func Centavos(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
