package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/visa2any/checkout-api/internal/catalog"
	"github.com/visa2any/checkout-api/internal/checkout"
	"github.com/visa2any/checkout-api/internal/domain"
	"github.com/visa2any/checkout-api/internal/payments"
	"github.com/visa2any/checkout-api/internal/platform/httpx"
	"github.com/visa2any/checkout-api/internal/pricing"
)

const maxCheckoutRequestBody = 8 * 1024

// CheckoutFlow is the slice of the checkout flow the handlers depend on.
type CheckoutFlow interface {
	Start(ctx context.Context, clientKey string) (checkout.View, error)
	Get(ctx context.Context, sessionID string) (checkout.View, error)
	SetQuantities(ctx context.Context, sessionID string, adults, children *int) (checkout.View, error)
	SelectProduct(ctx context.Context, sessionID, productID string) (checkout.View, error)
	UpdateCustomer(ctx context.Context, sessionID string, patch checkout.CustomerPatch) (checkout.View, error)
	ChoosePaymentMethod(ctx context.Context, sessionID string, method domain.PaymentMethod) (checkout.View, error)
	AcceptContract(ctx context.Context, sessionID string, accepted bool, signature string) (checkout.View, error)
	Advance(ctx context.Context, sessionID string) (checkout.View, error)
	Back(ctx context.Context, sessionID string) (checkout.View, error)
	SubmitPayment(ctx context.Context, sessionID string) (checkout.View, error)
	RefreshPayment(ctx context.Context, sessionID string) (checkout.View, error)
	CancelWait(ctx context.Context, sessionID string) (checkout.View, error)
	Reset(ctx context.Context, sessionID string) (checkout.View, error)
}

// CheckoutHandlers exposes the checkout wizard over HTTP. Every mutation
// returns the full session view so clients never need a follow-up read.
type CheckoutHandlers struct {
	flow CheckoutFlow
}

// NewCheckoutHandlers constructs checkout handlers.
func NewCheckoutHandlers(flow CheckoutFlow) *CheckoutHandlers {
	return &CheckoutHandlers{flow: flow}
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/sessions", h.startSession)
	r.Route("/sessions/{sessionId}", func(s chi.Router) {
		s.Get("/", h.getSession)
		s.Patch("/quantities", h.setQuantities)
		s.Put("/product", h.selectProduct)
		s.Patch("/customer", h.updateCustomer)
		s.Put("/payment-method", h.choosePaymentMethod)
		s.Post("/contract", h.acceptContract)
		s.Post("/advance", h.advance)
		s.Post("/back", h.back)
		s.Post("/payment", h.submitPayment)
		s.Post("/payment/refresh", h.refreshPayment)
		s.Post("/payment/cancel", h.cancelWait)
		s.Post("/reset", h.reset)
	})
}

type startSessionRequest struct {
	ClientKey string `json:"clientKey"`
}

type quantitiesRequest struct {
	Adults   *int `json:"adults"`
	Children *int `json:"children"`
}

type selectProductRequest struct {
	ProductID string `json:"productId"`
}

type paymentMethodRequest struct {
	Method string `json:"method"`
}

type contractRequest struct {
	Accepted  bool   `json:"accepted"`
	Signature string `json:"signature"`
}

func (h *CheckoutHandlers) startSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req startSessionRequest
	if !h.decodeOptional(ctx, w, r, &req) {
		return
	}
	view, err := h.flow.Start(ctx, strings.TrimSpace(req.ClientKey))
	if err != nil {
		h.writeFlowError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, view)
}

func (h *CheckoutHandlers) getSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view, err := h.flow.Get(ctx, sessionID(r))
	if err != nil {
		h.writeFlowError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, view)
}

func (h *CheckoutHandlers) setQuantities(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req quantitiesRequest
	if !h.decodeRequired(ctx, w, r, &req) {
		return
	}
	view, err := h.flow.SetQuantities(ctx, sessionID(r), req.Adults, req.Children)
	if err != nil {
		h.writeFlowError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, view)
}

func (h *CheckoutHandlers) selectProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req selectProductRequest
	if !h.decodeRequired(ctx, w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ProductID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "productId is required", http.StatusBadRequest))
		return
	}
	view, err := h.flow.SelectProduct(ctx, sessionID(r), strings.TrimSpace(req.ProductID))
	if err != nil {
		h.writeFlowError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, view)
}

func (h *CheckoutHandlers) updateCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var patch checkout.CustomerPatch
	if !h.decodeRequired(ctx, w, r, &patch) {
		return
	}
	view, err := h.flow.UpdateCustomer(ctx, sessionID(r), patch)
	if err != nil {
		h.writeFlowError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, view)
}

func (h *CheckoutHandlers) choosePaymentMethod(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req paymentMethodRequest
	if !h.decodeRequired(ctx, w, r, &req) {
		return
	}
	method := domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.Method)))
	view, err := h.flow.ChoosePaymentMethod(ctx, sessionID(r), method)
	if err != nil {
		h.writeFlowError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, view)
}

func (h *CheckoutHandlers) acceptContract(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req contractRequest
	if !h.decodeRequired(ctx, w, r, &req) {
		return
	}
	view, err := h.flow.AcceptContract(ctx, sessionID(r), req.Accepted, req.Signature)
	if err != nil {
		h.writeFlowError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, view)
}

func (h *CheckoutHandlers) advance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view, err := h.flow.Advance(ctx, sessionID(r))
	if err != nil {
		h.writeFlowError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, view)
}

func (h *CheckoutHandlers) back(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view, err := h.flow.Back(ctx, sessionID(r))
	if err != nil {
		h.writeFlowError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, view)
}

func (h *CheckoutHandlers) submitPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view, err := h.flow.SubmitPayment(ctx, sessionID(r))
	if err != nil {
		h.writeFlowError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, view)
}

func (h *CheckoutHandlers) refreshPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view, err := h.flow.RefreshPayment(ctx, sessionID(r))
	if err != nil {
		h.writeFlowError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, view)
}

func (h *CheckoutHandlers) cancelWait(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view, err := h.flow.CancelWait(ctx, sessionID(r))
	if err != nil {
		h.writeFlowError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, view)
}

func (h *CheckoutHandlers) reset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view, err := h.flow.Reset(ctx, sessionID(r))
	if err != nil {
		h.writeFlowError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, view)
}

// decodeRequired parses a mandatory JSON body into dst.
func (h *CheckoutHandlers) decodeRequired(ctx context.Context, w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := readLimitedBody(r, maxCheckoutRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

// decodeOptional parses the JSON body into dst when one is present.
func (h *CheckoutHandlers) decodeOptional(ctx context.Context, w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := readLimitedBody(r, maxCheckoutRequestBody)
	if errors.Is(err, errEmptyBody) {
		return true
	}
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

func (h *CheckoutHandlers) writeFlowError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, checkout.ErrSessionNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("session_not_found", "checkout session not found", http.StatusNotFound))
	case errors.Is(err, catalog.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, checkout.ErrStepLocked):
		httpx.WriteError(ctx, w, httpx.NewError("step_locked", err.Error(), http.StatusConflict))
	case errors.Is(err, checkout.ErrNoPaymentAttempt):
		httpx.WriteError(ctx, w, httpx.NewError("no_payment_attempt", "no payment has been submitted", http.StatusConflict))
	case errors.Is(err, payments.ErrUnsupportedMethod):
		httpx.WriteError(ctx, w, httpx.NewError("unsupported_method", "unsupported payment method", http.StatusBadRequest))
	case errors.Is(err, checkout.ErrPaymentFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", "payment could not be created", http.StatusBadGateway))
	case errors.Is(err, pricing.ErrInvalidInput), errors.Is(err, pricing.ErrUnknownPolicy):
		httpx.WriteError(ctx, w, httpx.NewError("pricing_error", "unable to price the order", http.StatusUnprocessableEntity))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
	}
}

func sessionID(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "sessionId"))
}
