package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultGatewayTimeout = 15 * time.Second

// GatewayLogger defines the logging contract for gateway operations.
type GatewayLogger func(ctx context.Context, event string, fields map[string]any)

// GatewayConfig configures the GatewayProvider.
type GatewayConfig struct {
	BaseURL     string
	AccessToken string
	PublicKey   string
	HTTPClient  *http.Client
	Logger      GatewayLogger
	Clock       func() time.Time
}

// GatewayProvider speaks the JSON contract of the hosted payment gateway that
// handles PIX and boleto: create a payment preference, then poll the payment
// until it reaches a terminal status.
type GatewayProvider struct {
	baseURL   string
	token     string
	publicKey string
	client    *http.Client
	logger    GatewayLogger
	clock     func() time.Time
}

// NewGatewayProvider constructs a GatewayProvider from the configuration.
func NewGatewayProvider(cfg GatewayConfig) (*GatewayProvider, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("payments: gateway base url is required")
	}
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, errors.New("payments: gateway access token is required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultGatewayTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &GatewayProvider{
		baseURL:   baseURL,
		token:     strings.TrimSpace(cfg.AccessToken),
		publicKey: strings.TrimSpace(cfg.PublicKey),
		client:    client,
		logger:    logger,
		clock:     func() time.Time { return clock().UTC() },
	}, nil
}

type gatewayPayer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	CPF   string `json:"cpf,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type gatewayItem struct {
	Title     string `json:"title"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
}

type gatewayBackURLs struct {
	Success string `json:"success,omitempty"`
	Failure string `json:"failure,omitempty"`
	Pending string `json:"pending,omitempty"`
}

type gatewayCreateRequest struct {
	Method            string            `json:"method"`
	Amount            int64             `json:"amount"`
	Description       string            `json:"description,omitempty"`
	ExternalReference string            `json:"externalReference,omitempty"`
	Payer             gatewayPayer      `json:"payer"`
	Items             []gatewayItem     `json:"items,omitempty"`
	BackURLs          gatewayBackURLs   `json:"backUrls"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

type gatewayCreateResponse struct {
	Success         bool   `json:"success"`
	PaymentID       string `json:"paymentId"`
	PreferenceID    string `json:"preferenceId"`
	PublicKey       string `json:"publicKey"`
	Status          string `json:"status"`
	RedirectURL     string `json:"redirectUrl"`
	PixCode         string `json:"pixCode"`
	PixQRCodeBase64 string `json:"pixQrCodeBase64"`
	BoletoURL       string `json:"boletoUrl"`
	ExpiresAt       int64  `json:"expiresAt"`
	Error           string `json:"error"`
}

type gatewayStatusResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
	Error   string `json:"error"`
}

// CreatePayment implements Provider.
func (p *GatewayProvider) CreatePayment(ctx context.Context, req CreatePaymentRequest) (PaymentIntent, error) {
	if p == nil {
		return PaymentIntent{}, errors.New("payments: gateway provider is nil")
	}

	items := make([]gatewayItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, gatewayItem{
			Title:     item.Title,
			Quantity:  item.Quantity,
			UnitPrice: Centavos(item.UnitPrice),
		})
	}

	payload := gatewayCreateRequest{
		Method:            strings.ToLower(strings.TrimSpace(req.Method)),
		Amount:            Centavos(req.Amount),
		Description:       req.Description,
		ExternalReference: req.ExternalReference,
		Payer: gatewayPayer{
			Name:  req.Payer.Name,
			Email: req.Payer.Email,
			CPF:   req.Payer.CPF,
			Phone: req.Payer.Phone,
		},
		Items: items,
		BackURLs: gatewayBackURLs{
			Success: req.BackURLs.Success,
			Failure: req.BackURLs.Failure,
			Pending: req.BackURLs.Pending,
		},
		Metadata: req.Metadata,
	}

	var resp gatewayCreateResponse
	if err := p.do(ctx, http.MethodPost, "/v1/payments", req.IdempotencyKey, payload, &resp); err != nil {
		return PaymentIntent{}, err
	}
	if !resp.Success {
		message := strings.TrimSpace(resp.Error)
		if message == "" {
			message = "payment was not created"
		}
		return PaymentIntent{}, fmt.Errorf("payments: gateway: %s", message)
	}

	publicKey := resp.PublicKey
	if publicKey == "" {
		publicKey = p.publicKey
	}
	expiresAt := time.Time{}
	if resp.ExpiresAt > 0 {
		expiresAt = time.UnixMilli(resp.ExpiresAt).UTC()
	}

	p.logger(ctx, "payments.gateway.created", map[string]any{
		"paymentId": resp.PaymentID,
		"method":    payload.Method,
		"amount":    payload.Amount,
	})

	return PaymentIntent{
		ID:              resp.PaymentID,
		PreferenceID:    resp.PreferenceID,
		PublicKey:       publicKey,
		RedirectURL:     resp.RedirectURL,
		PixCode:         resp.PixCode,
		PixQRCodeBase64: resp.PixQRCodeBase64,
		BoletoURL:       resp.BoletoURL,
		Status:          normaliseGatewayStatus(resp.Status),
		Method:          payload.Method,
		ExpiresAt:       expiresAt,
	}, nil
}

// CheckStatus implements Provider.
func (p *GatewayProvider) CheckStatus(ctx context.Context, paymentID string) (Status, error) {
	if p == nil {
		return "", errors.New("payments: gateway provider is nil")
	}
	id := strings.TrimSpace(paymentID)
	if id == "" {
		return "", errors.New("payments: payment id is required")
	}

	var resp gatewayStatusResponse
	if err := p.do(ctx, http.MethodGet, "/v1/payments/"+id, "", nil, &resp); err != nil {
		return "", err
	}
	if !resp.Success {
		message := strings.TrimSpace(resp.Error)
		if message == "" {
			message = "status lookup failed"
		}
		return "", fmt.Errorf("payments: gateway: %s", message)
	}
	return normaliseGatewayStatus(resp.Status), nil
}

func (p *GatewayProvider) do(ctx context.Context, method, path, idempotencyKey string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("payments: encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("payments: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key := strings.TrimSpace(idempotencyKey); key != "" {
		req.Header.Set("X-Idempotency-Key", key)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("payments: gateway request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("payments: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("payments: gateway returned %d", resp.StatusCode)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("payments: decode response: %w", err)
	}
	return nil
}

func normaliseGatewayStatus(status string) Status {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "approved", "paid", "settled":
		return StatusApproved
	case "cancelled", "canceled", "expired":
		return StatusCancelled
	case "rejected", "refused", "declined":
		return StatusRejected
	default:
		return StatusPending
	}
}
