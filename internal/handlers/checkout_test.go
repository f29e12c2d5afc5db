package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/visa2any/checkout-api/internal/catalog"
	"github.com/visa2any/checkout-api/internal/checkout"
	"github.com/visa2any/checkout-api/internal/domain"
	"github.com/visa2any/checkout-api/internal/payments"
)

type flowStub struct {
	startFunc    func(ctx context.Context, clientKey string) (checkout.View, error)
	getFunc      func(ctx context.Context, sessionID string) (checkout.View, error)
	selectFunc   func(ctx context.Context, sessionID, productID string) (checkout.View, error)
	customerFunc func(ctx context.Context, sessionID string, patch checkout.CustomerPatch) (checkout.View, error)
	methodFunc   func(ctx context.Context, sessionID string, method domain.PaymentMethod) (checkout.View, error)
	advanceFunc  func(ctx context.Context, sessionID string) (checkout.View, error)
	submitFunc   func(ctx context.Context, sessionID string) (checkout.View, error)
	refreshFunc  func(ctx context.Context, sessionID string) (checkout.View, error)
}

func okView(sessionID string) (checkout.View, error) {
	return checkout.View{SessionID: sessionID, State: domain.InitialCheckoutState()}, nil
}

func (s *flowStub) Start(ctx context.Context, clientKey string) (checkout.View, error) {
	if s.startFunc != nil {
		return s.startFunc(ctx, clientKey)
	}
	return okView("sess-1")
}

func (s *flowStub) Get(ctx context.Context, sessionID string) (checkout.View, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, sessionID)
	}
	return okView(sessionID)
}

func (s *flowStub) SetQuantities(_ context.Context, sessionID string, _, _ *int) (checkout.View, error) {
	return okView(sessionID)
}

func (s *flowStub) SelectProduct(ctx context.Context, sessionID, productID string) (checkout.View, error) {
	if s.selectFunc != nil {
		return s.selectFunc(ctx, sessionID, productID)
	}
	return okView(sessionID)
}

func (s *flowStub) UpdateCustomer(ctx context.Context, sessionID string, patch checkout.CustomerPatch) (checkout.View, error) {
	if s.customerFunc != nil {
		return s.customerFunc(ctx, sessionID, patch)
	}
	return okView(sessionID)
}

func (s *flowStub) ChoosePaymentMethod(ctx context.Context, sessionID string, method domain.PaymentMethod) (checkout.View, error) {
	if s.methodFunc != nil {
		return s.methodFunc(ctx, sessionID, method)
	}
	return okView(sessionID)
}

func (s *flowStub) AcceptContract(_ context.Context, sessionID string, _ bool, _ string) (checkout.View, error) {
	return okView(sessionID)
}

func (s *flowStub) Advance(ctx context.Context, sessionID string) (checkout.View, error) {
	if s.advanceFunc != nil {
		return s.advanceFunc(ctx, sessionID)
	}
	return okView(sessionID)
}

func (s *flowStub) Back(_ context.Context, sessionID string) (checkout.View, error) {
	return okView(sessionID)
}

func (s *flowStub) SubmitPayment(ctx context.Context, sessionID string) (checkout.View, error) {
	if s.submitFunc != nil {
		return s.submitFunc(ctx, sessionID)
	}
	return okView(sessionID)
}

func (s *flowStub) RefreshPayment(ctx context.Context, sessionID string) (checkout.View, error) {
	if s.refreshFunc != nil {
		return s.refreshFunc(ctx, sessionID)
	}
	return okView(sessionID)
}

func (s *flowStub) CancelWait(_ context.Context, sessionID string) (checkout.View, error) {
	return okView(sessionID)
}

func (s *flowStub) Reset(_ context.Context, sessionID string) (checkout.View, error) {
	return okView(sessionID)
}

func newCheckoutRouter(stub CheckoutFlow) chi.Router {
	r := chi.NewRouter()
	NewCheckoutHandlers(stub).Routes(r)
	return r
}

func doRequest(t *testing.T, handler http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("expected JSON error envelope, got %q", rec.Body.String())
	}
	code, _ := payload["error"].(string)
	return code
}

func TestStartSessionReturnsCreated(t *testing.T) {
	var gotKey string
	router := newCheckoutRouter(&flowStub{
		startFunc: func(_ context.Context, clientKey string) (checkout.View, error) {
			gotKey = clientKey
			return okView("sess-1")
		},
	})

	rec := doRequest(t, router, http.MethodPost, "/sessions", `{"clientKey":" cliente-1 "}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if gotKey != "cliente-1" {
		t.Fatalf("expected trimmed client key, got %q", gotKey)
	}

	var view checkout.View
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if view.SessionID != "sess-1" {
		t.Fatalf("expected session id in response, got %q", view.SessionID)
	}
}

func TestStartSessionAcceptsEmptyBody(t *testing.T) {
	router := newCheckoutRouter(&flowStub{})
	rec := doRequest(t, router, http.MethodPost, "/sessions", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 without a body, got %d", rec.Code)
	}
}

func TestStartSessionRejectsInvalidJSON(t *testing.T) {
	router := newCheckoutRouter(&flowStub{})
	rec := doRequest(t, router, http.MethodPost, "/sessions", `{"clientKey":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "invalid_request" {
		t.Fatalf("expected invalid_request, got %q", code)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	router := newCheckoutRouter(&flowStub{
		getFunc: func(context.Context, string) (checkout.View, error) {
			return checkout.View{}, checkout.ErrSessionNotFound
		},
	})
	rec := doRequest(t, router, http.MethodGet, "/sessions/desconhecida/", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "session_not_found" {
		t.Fatalf("expected session_not_found, got %q", code)
	}
}

func TestSelectProductRequiresID(t *testing.T) {
	router := newCheckoutRouter(&flowStub{})
	rec := doRequest(t, router, http.MethodPut, "/sessions/sess-1/product", `{"productId":"  "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSelectProductNotFound(t *testing.T) {
	router := newCheckoutRouter(&flowStub{
		selectFunc: func(context.Context, string, string) (checkout.View, error) {
			return checkout.View{}, catalog.ErrProductNotFound
		},
	})
	rec := doRequest(t, router, http.MethodPut, "/sessions/sess-1/product", `{"productId":"nope"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "product_not_found" {
		t.Fatalf("expected product_not_found, got %q", code)
	}
}

func TestUpdateCustomerForwardsPatch(t *testing.T) {
	var got checkout.CustomerPatch
	router := newCheckoutRouter(&flowStub{
		customerFunc: func(_ context.Context, _ string, patch checkout.CustomerPatch) (checkout.View, error) {
			got = patch
			return okView("sess-1")
		},
	})
	rec := doRequest(t, router, http.MethodPatch, "/sessions/sess-1/customer",
		`{"name":"Maria Silva","terms":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got.Name == nil || *got.Name != "Maria Silva" {
		t.Fatalf("expected name in patch, got %+v", got)
	}
	if got.Terms == nil || !*got.Terms {
		t.Fatalf("expected terms in patch, got %+v", got)
	}
	if got.Email != nil {
		t.Fatal("expected absent fields to stay nil")
	}
}

func TestChoosePaymentMethodNormalisesCase(t *testing.T) {
	var got domain.PaymentMethod
	router := newCheckoutRouter(&flowStub{
		methodFunc: func(_ context.Context, _ string, method domain.PaymentMethod) (checkout.View, error) {
			got = method
			return okView("sess-1")
		},
	})
	rec := doRequest(t, router, http.MethodPut, "/sessions/sess-1/payment-method", `{"method":" PIX "}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got != domain.PaymentMethodPIX {
		t.Fatalf("expected pix, got %q", got)
	}
}

func TestChoosePaymentMethodUnsupported(t *testing.T) {
	router := newCheckoutRouter(&flowStub{
		methodFunc: func(context.Context, string, domain.PaymentMethod) (checkout.View, error) {
			return checkout.View{}, payments.ErrUnsupportedMethod
		},
	})
	rec := doRequest(t, router, http.MethodPut, "/sessions/sess-1/payment-method", `{"method":"cheque"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "unsupported_method" {
		t.Fatalf("expected unsupported_method, got %q", code)
	}
}

func TestAdvanceStepLocked(t *testing.T) {
	router := newCheckoutRouter(&flowStub{
		advanceFunc: func(context.Context, string) (checkout.View, error) {
			return checkout.View{}, checkout.ErrStepLocked
		},
	})
	rec := doRequest(t, router, http.MethodPost, "/sessions/sess-1/advance", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "step_locked" {
		t.Fatalf("expected step_locked, got %q", code)
	}
}

func TestSubmitPaymentFailure(t *testing.T) {
	router := newCheckoutRouter(&flowStub{
		submitFunc: func(context.Context, string) (checkout.View, error) {
			return checkout.View{}, checkout.ErrPaymentFailed
		},
	})
	rec := doRequest(t, router, http.MethodPost, "/sessions/sess-1/payment", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "payment_failed" {
		t.Fatalf("expected payment_failed, got %q", code)
	}
}

func TestRefreshWithoutAttempt(t *testing.T) {
	router := newCheckoutRouter(&flowStub{
		refreshFunc: func(context.Context, string) (checkout.View, error) {
			return checkout.View{}, checkout.ErrNoPaymentAttempt
		},
	})
	rec := doRequest(t, router, http.MethodPost, "/sessions/sess-1/payment/refresh", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "no_payment_attempt" {
		t.Fatalf("expected no_payment_attempt, got %q", code)
	}
}

func TestQuantitiesRequireBody(t *testing.T) {
	router := newCheckoutRouter(&flowStub{})
	rec := doRequest(t, router, http.MethodPatch, "/sessions/sess-1/quantities", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing body, got %d", rec.Code)
	}
}

func TestOversizedBodyRejected(t *testing.T) {
	router := newCheckoutRouter(&flowStub{})
	body := `{"name":"` + strings.Repeat("a", maxCheckoutRequestBody) + `"}`
	rec := doRequest(t, router, http.MethodPatch, "/sessions/sess-1/customer", body)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}
