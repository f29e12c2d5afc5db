package checkout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/visa2any/checkout-api/internal/catalog"
	"github.com/visa2any/checkout-api/internal/contract"
	"github.com/visa2any/checkout-api/internal/domain"
	"github.com/visa2any/checkout-api/internal/notify"
	"github.com/visa2any/checkout-api/internal/payments"
	"github.com/visa2any/checkout-api/internal/persistence"
	"github.com/visa2any/checkout-api/internal/pricing"
	"github.com/visa2any/checkout-api/internal/validation"
)

const (
	// DefaultPollInterval is how often a pending PIX or boleto payment is
	// re-checked against the provider.
	DefaultPollInterval = 5 * time.Second

	// DefaultPollCeiling bounds how long a status watch may run before the
	// wait is marked as timed out.
	DefaultPollCeiling = 15 * time.Minute
)

var (
	// ErrPaymentFailed is returned when the provider rejects or cannot
	// create a payment. The session keeps the customer's data and error
	// message so they can retry.
	ErrPaymentFailed = errors.New("checkout: payment submission failed")

	// ErrNoPaymentAttempt is returned when a status refresh or wait
	// cancellation arrives before any payment was submitted.
	ErrNoPaymentAttempt = errors.New("checkout: no payment attempt")
)

// PaymentGateway is the slice of the payments manager the flow depends on.
type PaymentGateway interface {
	CreatePayment(ctx context.Context, req payments.CreatePaymentRequest) (payments.PaymentIntent, error)
	CheckStatus(ctx context.Context, method, paymentID string) (payments.Status, error)
}

// View is the read model returned by every flow operation: the raw state plus
// everything derived from it, so callers never recompute pricing or
// validation themselves.
type View struct {
	SessionID  string                `json:"sessionId"`
	State      domain.CheckoutState  `json:"state"`
	Pricing    *domain.PricingResult `json:"pricing,omitempty"`
	Validation validation.Result     `json:"validation"`
	Contract   string                `json:"contract,omitempty"`
	Payment    *PaymentAttempt       `json:"payment,omitempty"`
}

// FlowDeps wires the flow's collaborators.
type FlowDeps struct {
	Sessions     *SessionStore
	Catalog      *catalog.Catalog
	Pricing      *pricing.Registry
	Snapshots    *persistence.Adapter
	Payments     PaymentGateway
	Notifier     notify.Notifier
	Clock        func() time.Time
	Logger       func(ctx context.Context, event string, fields map[string]any)
	PollInterval time.Duration
	PollCeiling  time.Duration
	BackURLs     payments.BackURLs
}

// Flow orchestrates the checkout state machine: it owns the side effects
// (catalog lookups, persistence, payment calls, status watches) and funnels
// every state change through the reducer.
type Flow struct {
	sessions     *SessionStore
	catalog      *catalog.Catalog
	pricing      *pricing.Registry
	snapshots    *persistence.Adapter
	payments     PaymentGateway
	notifier     notify.Notifier
	now          func() time.Time
	logger       func(ctx context.Context, event string, fields map[string]any)
	pollInterval time.Duration
	pollCeiling  time.Duration
	backURLs     payments.BackURLs
}

// NewFlow validates dependencies and constructs a Flow.
func NewFlow(deps FlowDeps) (*Flow, error) {
	if deps.Sessions == nil {
		return nil, errors.New("checkout: session store is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("checkout: catalog is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("checkout: pricing registry is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("checkout: payment gateway is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	pollInterval := deps.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	pollCeiling := deps.PollCeiling
	if pollCeiling <= 0 {
		pollCeiling = DefaultPollCeiling
	}
	return &Flow{
		sessions:     deps.Sessions,
		catalog:      deps.Catalog,
		pricing:      deps.Pricing,
		snapshots:    deps.Snapshots,
		payments:     deps.Payments,
		notifier:     notifier,
		now:          func() time.Time { return clock().UTC() },
		logger:       logger,
		pollInterval: pollInterval,
		pollCeiling:  pollCeiling,
		backURLs:     deps.BackURLs,
	}, nil
}

// Start creates a session and, when the client key has a fresh snapshot,
// rehydrates the saved customer data and party counts. Consent flags always
// start cleared.
func (f *Flow) Start(ctx context.Context, clientKey string) (View, error) {
	session := f.sessions.Create(clientKey)
	if f.snapshots != nil && session.ClientKey != "" {
		if snapshot, ok := f.snapshots.Load(ctx, session.ClientKey); ok {
			session.dispatch(f.now(),
				UpdateCustomer{Patch: patchFromCustomer(snapshot.CustomerData())},
				SetAdults{Count: snapshot.Adults},
				SetChildren{Count: snapshot.Children},
			)
			f.logger(ctx, "checkout.session_rehydrated", map[string]any{
				"sessionId": session.ID,
				"savedAt":   snapshot.SavedAt,
			})
		}
	}
	f.logger(ctx, "checkout.session_started", map[string]any{"sessionId": session.ID})
	return f.view(session), nil
}

// Get returns the current view of a session.
func (f *Flow) Get(_ context.Context, sessionID string) (View, error) {
	session, err := f.sessions.Get(sessionID)
	if err != nil {
		return View{}, err
	}
	return f.view(session), nil
}

// SetQuantities updates the adult and child counts. Nil leaves a count
// untouched; the reducer clamps out-of-range values.
func (f *Flow) SetQuantities(ctx context.Context, sessionID string, adults, children *int) (View, error) {
	session, err := f.sessions.Get(sessionID)
	if err != nil {
		return View{}, err
	}
	var actions []Action
	if adults != nil {
		actions = append(actions, SetAdults{Count: *adults})
	}
	if children != nil {
		actions = append(actions, SetChildren{Count: *children})
	}
	if len(actions) > 0 {
		state, _ := session.dispatch(f.now(), actions...)
		f.scheduleSave(ctx, session, state)
	}
	return f.view(session), nil
}

// SelectProduct resolves a catalog product and selects it, clearing any
// stale error.
func (f *Flow) SelectProduct(ctx context.Context, sessionID, productID string) (View, error) {
	session, err := f.sessions.Get(sessionID)
	if err != nil {
		return View{}, err
	}
	product, err := f.catalog.Get(productID)
	if err != nil {
		return f.view(session), err
	}
	session.dispatch(f.now(), SelectProduct{Product: &product}, SetError{})
	f.logger(ctx, "checkout.product_selected", map[string]any{
		"sessionId": session.ID,
		"productId": product.ID,
	})
	return f.view(session), nil
}

// UpdateCustomer shallow-merges the patch into the customer data and
// schedules a debounced snapshot save.
func (f *Flow) UpdateCustomer(ctx context.Context, sessionID string, patch CustomerPatch) (View, error) {
	session, err := f.sessions.Get(sessionID)
	if err != nil {
		return View{}, err
	}
	state, _ := session.dispatch(f.now(), UpdateCustomer{Patch: patch})
	f.scheduleSave(ctx, session, state)
	return f.view(session), nil
}

// ChoosePaymentMethod records the selected payment method.
func (f *Flow) ChoosePaymentMethod(_ context.Context, sessionID string, method domain.PaymentMethod) (View, error) {
	session, err := f.sessions.Get(sessionID)
	if err != nil {
		return View{}, err
	}
	if !method.Known() {
		return f.view(session), fmt.Errorf("%w: %q", payments.ErrUnsupportedMethod, method)
	}
	session.dispatch(f.now(), SetPaymentMethod{Method: method})
	return f.view(session), nil
}

// AcceptContract records contract acceptance together with the typed
// signature.
func (f *Flow) AcceptContract(_ context.Context, sessionID string, accepted bool, signature string) (View, error) {
	session, err := f.sessions.Get(sessionID)
	if err != nil {
		return View{}, err
	}
	session.dispatch(f.now(), UpdateCustomer{Patch: CustomerPatch{
		ContractAccepted: &accepted,
		Signature:        &signature,
	}})
	return f.view(session), nil
}

// Advance moves the wizard forward one step when the current step's guard
// passes. Guard and transition run atomically on the session.
func (f *Flow) Advance(_ context.Context, sessionID string) (View, error) {
	session, err := f.sessions.Get(sessionID)
	if err != nil {
		return View{}, err
	}
	_, err = session.dispatchIf(f.now(), func(state domain.CheckoutState) ([]Action, error) {
		if err := CanAdvance(state); err != nil {
			return nil, err
		}
		return []Action{SetStep{Step: state.Step + 1}, SetError{}}, nil
	})
	return f.view(session), err
}

// Back moves the wizard back one step. Entered data is preserved; the
// processing flag and error message are cleared, and any running status
// watch is stopped.
func (f *Flow) Back(_ context.Context, sessionID string) (View, error) {
	session, err := f.sessions.Get(sessionID)
	if err != nil {
		return View{}, err
	}
	session.stopWatch()
	session.dispatchIf(f.now(), func(state domain.CheckoutState) ([]Action, error) {
		if state.Step <= domain.StepProduct {
			return nil, nil
		}
		return []Action{SetStep{Step: state.Step - 1}, SetProcessing{}, SetError{}}, nil
	})
	return f.view(session), nil
}

// SubmitPayment runs the final gate, prices the order for the chosen method,
// and creates the payment. Card payments hand a client secret back for
// confirmation; PIX and boleto start a background status watch. Failures
// leave the customer on the payment step with their data intact.
func (f *Flow) SubmitPayment(ctx context.Context, sessionID string) (View, error) {
	session, err := f.sessions.Get(sessionID)
	if err != nil {
		return View{}, err
	}
	// Claiming the processing flag inside the guard makes the submission
	// exclusive: a second submit on the same session sees the flag and is
	// refused instead of creating a duplicate payment.
	state, err := session.dispatchIf(f.now(), func(state domain.CheckoutState) ([]Action, error) {
		if state.IsProcessing {
			return nil, fmt.Errorf("%w: a payment is already in flight", ErrStepLocked)
		}
		if state.IsComplete {
			return nil, fmt.Errorf("%w: checkout already completed", ErrStepLocked)
		}
		if err := CanSubmit(state); err != nil {
			return nil, err
		}
		return []Action{SetProcessing{Processing: true}, SetError{}}, nil
	})
	if err != nil {
		return f.view(session), err
	}

	policy, err := f.pricing.ForProduct(state.SelectedProduct)
	if err != nil {
		session.dispatch(f.now(), SetProcessing{})
		return f.view(session), err
	}
	quote, err := policy.Price(state.SelectedProduct, state.Adults, state.Children, state.PaymentMethod)
	if err != nil {
		session.dispatch(f.now(), SetProcessing{})
		return f.view(session), err
	}

	req := f.buildPaymentRequest(session, state, quote)
	intent, err := f.payments.CreatePayment(ctx, req)
	if err != nil {
		session.dispatch(f.now(), SetProcessing{},
			SetError{Message: "Não foi possível iniciar o pagamento. Tente novamente."})
		f.logger(ctx, "checkout.payment_create_failed", map[string]any{
			"sessionId": session.ID,
			"method":    string(state.PaymentMethod),
			"error":     err.Error(),
		})
		return f.view(session), fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}

	attempt := attemptFromIntent(state.PaymentMethod, intent, f.now())
	session.setPayment(&attempt)
	f.logger(ctx, "checkout.payment_created", map[string]any{
		"sessionId": session.ID,
		"paymentId": intent.ID,
		"method":    string(state.PaymentMethod),
		"status":    string(intent.Status),
	})

	switch {
	case intent.Status == payments.StatusApproved:
		f.complete(ctx, session)
	case intent.Status.Terminal():
		f.applyStatus(ctx, session, intent.Status)
	case state.PaymentMethod == domain.PaymentMethodPIX || state.PaymentMethod == domain.PaymentMethodBoleto:
		if state.PaymentMethod == domain.PaymentMethodPIX && intent.PixCode != "" {
			f.notifyPixCode(ctx, session, state, quote, intent)
		}
		f.watch(session, state.PaymentMethod, intent.ID)
	}
	return f.view(session), nil
}

// RefreshPayment re-checks the latest payment attempt against the provider
// immediately, outside the poll interval. Used after a card confirmation and
// after a watch timeout.
func (f *Flow) RefreshPayment(ctx context.Context, sessionID string) (View, error) {
	session, err := f.sessions.Get(sessionID)
	if err != nil {
		return View{}, err
	}
	attempt := session.Payment()
	if attempt == nil {
		return f.view(session), ErrNoPaymentAttempt
	}
	status, err := f.payments.CheckStatus(ctx, string(attempt.Method), attempt.PaymentID)
	if err != nil {
		f.logger(ctx, "checkout.status_check_failed", map[string]any{
			"sessionId": session.ID,
			"paymentId": attempt.PaymentID,
			"error":     err.Error(),
		})
		return f.view(session), err
	}
	f.applyStatus(ctx, session, status)
	return f.view(session), nil
}

// CancelWait stops the status watch and returns the customer to payment
// method selection. All entered data survives.
func (f *Flow) CancelWait(_ context.Context, sessionID string) (View, error) {
	session, err := f.sessions.Get(sessionID)
	if err != nil {
		return View{}, err
	}
	if session.Payment() == nil {
		return f.view(session), ErrNoPaymentAttempt
	}
	session.stopWatch()
	session.dispatch(f.now(), SetProcessing{}, SetError{})
	return f.view(session), nil
}

// Reset abandons the checkout: watch stopped, state back to the initial
// record, snapshot cleared.
func (f *Flow) Reset(ctx context.Context, sessionID string) (View, error) {
	session, err := f.sessions.Get(sessionID)
	if err != nil {
		return View{}, err
	}
	session.stopWatch()
	session.dispatch(f.now(), Reset{})
	if f.snapshots != nil && session.ClientKey != "" {
		f.snapshots.Clear(ctx, session.ClientKey)
	}
	return f.view(session), nil
}

// view assembles the derived read model for the session's current state.
func (f *Flow) view(session *Session) View {
	state := session.State()
	v := View{
		SessionID:  session.ID,
		State:      state,
		Validation: validation.Validate(state.CustomerData),
		Payment:    session.Payment(),
	}
	if state.SelectedProduct != nil {
		if policy, err := f.pricing.ForProduct(state.SelectedProduct); err == nil {
			if quote, err := policy.Price(state.SelectedProduct, state.Adults, state.Children, state.PaymentMethod); err == nil {
				v.Pricing = &quote
			}
		}
		if state.Step >= domain.StepContract && v.Pricing != nil {
			v.Contract = contract.Render(state.CustomerData, *state.SelectedProduct, *v.Pricing,
				state.Adults, state.Children, f.now())
		}
	}
	return v
}

func (f *Flow) scheduleSave(ctx context.Context, session *Session, state domain.CheckoutState) {
	if f.snapshots == nil || session.ClientKey == "" {
		return
	}
	f.snapshots.Save(ctx, session.ClientKey, state.CustomerData, state.Adults, state.Children)
}

func (f *Flow) buildPaymentRequest(session *Session, state domain.CheckoutState, quote domain.PricingResult) payments.CreatePaymentRequest {
	product := state.SelectedProduct
	items := []payments.LineItem{{
		Title:     product.Name,
		Quantity:  state.Adults,
		UnitPrice: product.Price,
	}}
	if state.Children > 0 {
		items = append(items, payments.LineItem{
			Title:     product.Name + " (criança)",
			Quantity:  state.Children,
			UnitPrice: product.ChildUnitPrice(),
		})
	}
	return payments.CreatePaymentRequest{
		Method:            string(state.PaymentMethod),
		Amount:            quote.Total,
		Description:       fmt.Sprintf("%s - %d adulto(s), %d criança(s)", product.Name, state.Adults, state.Children),
		ExternalReference: session.ID,
		Payer: payments.Payer{
			Name:  state.CustomerData.Name,
			Email: state.CustomerData.Email,
			CPF:   state.CustomerData.CPF,
			Phone: DialablePhone(state.CustomerData),
		},
		Items:    items,
		BackURLs: f.backURLs,
		Metadata: map[string]string{
			"productId": product.ID,
			"adults":    strconv.Itoa(state.Adults),
			"children":  strconv.Itoa(state.Children),
		},
		IdempotencyKey: session.ID + ":" + strconv.Itoa(session.nextAttempt()),
	}
}

func (f *Flow) notifyPixCode(ctx context.Context, session *Session, state domain.CheckoutState, quote domain.PricingResult, intent payments.PaymentIntent) {
	err := f.notifier.SendPixCode(ctx, notify.PixCodeNotification{
		Email:     state.CustomerData.Email,
		Name:      state.CustomerData.Name,
		PixCode:   intent.PixCode,
		ProductID: state.SelectedProduct.ID,
		Amount:    quote.Total,
	})
	if err != nil {
		f.logger(ctx, "checkout.pix_notify_failed", map[string]any{
			"sessionId": session.ID,
			"error":     err.Error(),
		})
	}
}

// watch polls the provider until the payment reaches a terminal status, the
// ceiling elapses, or the watch is cancelled. A late result after the session
// ended is dropped by the session's disposed guard.
func (f *Flow) watch(session *Session, method domain.PaymentMethod, paymentID string) {
	ctx, cancel := context.WithTimeout(context.Background(), f.pollCeiling)
	session.beginWatch(cancel)
	go func() {
		defer cancel()
		ticker := time.NewTicker(f.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					session.updatePayment(func(a *PaymentAttempt) { a.TimedOut = true })
					session.dispatch(f.now(), SetProcessing{},
						SetError{Message: "Tempo de confirmação esgotado. Verifique o pagamento ou tente novamente."})
					f.logger(context.WithoutCancel(ctx), "checkout.watch_timed_out", map[string]any{
						"sessionId": session.ID,
						"paymentId": paymentID,
					})
				}
				return
			case <-ticker.C:
				status, err := f.payments.CheckStatus(ctx, string(method), paymentID)
				if err != nil {
					f.logger(ctx, "checkout.status_check_failed", map[string]any{
						"sessionId": session.ID,
						"paymentId": paymentID,
						"error":     err.Error(),
					})
					continue
				}
				f.applyStatus(context.WithoutCancel(ctx), session, status)
				if status.Terminal() {
					return
				}
			}
		}
	}()
}

// applyStatus folds a provider status into session state.
func (f *Flow) applyStatus(ctx context.Context, session *Session, status payments.Status) {
	session.updatePayment(func(a *PaymentAttempt) { a.Status = status })
	switch status {
	case payments.StatusApproved:
		f.complete(ctx, session)
	case payments.StatusRejected:
		session.stopWatch()
		session.dispatch(f.now(), SetProcessing{},
			SetError{Message: "Pagamento recusado. Tente novamente ou escolha outra forma de pagamento."})
	case payments.StatusCancelled:
		session.stopWatch()
		session.dispatch(f.now(), SetProcessing{},
			SetError{Message: "Pagamento cancelado ou expirado."})
	}
}

// complete marks the checkout finished and clears the stored snapshot so a
// new visit starts clean.
func (f *Flow) complete(ctx context.Context, session *Session) {
	session.stopWatch()
	if _, ok := session.dispatch(f.now(), SetProcessing{}, SetComplete{Complete: true}, SetError{}); !ok {
		return
	}
	if f.snapshots != nil && session.ClientKey != "" {
		f.snapshots.Clear(ctx, session.ClientKey)
	}
	f.logger(ctx, "checkout.completed", map[string]any{"sessionId": session.ID})
}

// DialablePhone joins the country prefix and the national digits into one
// dialable string, defaulting the prefix to +55.
func DialablePhone(data domain.CustomerData) string {
	country := strings.TrimSpace(data.PhoneCountry)
	if country == "" {
		country = "+55"
	}
	var digits strings.Builder
	for _, r := range data.Phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return ""
	}
	return country + digits.String()
}

func patchFromCustomer(data domain.CustomerData) CustomerPatch {
	return CustomerPatch{
		Name:          &data.Name,
		Email:         &data.Email,
		Phone:         &data.Phone,
		PhoneCountry:  &data.PhoneCountry,
		CPF:           &data.CPF,
		TargetCountry: &data.TargetCountry,
		Newsletter:    &data.Newsletter,
	}
}

func attemptFromIntent(method domain.PaymentMethod, intent payments.PaymentIntent, now time.Time) PaymentAttempt {
	return PaymentAttempt{
		Method:          method,
		PaymentID:       intent.ID,
		PreferenceID:    intent.PreferenceID,
		PublicKey:       intent.PublicKey,
		ClientSecret:    intent.ClientSecret,
		RedirectURL:     intent.RedirectURL,
		PixCode:         intent.PixCode,
		PixQRCodeBase64: intent.PixQRCodeBase64,
		BoletoURL:       intent.BoletoURL,
		Status:          intent.Status,
		StartedAt:       now,
	}
}
