package checkout

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/visa2any/checkout-api/internal/catalog"
	"github.com/visa2any/checkout-api/internal/domain"
	"github.com/visa2any/checkout-api/internal/payments"
	"github.com/visa2any/checkout-api/internal/persistence"
	"github.com/visa2any/checkout-api/internal/pricing"
)

type gatewayStub struct {
	createFunc func(ctx context.Context, req payments.CreatePaymentRequest) (payments.PaymentIntent, error)
	statusFunc func(ctx context.Context, method, paymentID string) (payments.Status, error)
}

func (s *gatewayStub) CreatePayment(ctx context.Context, req payments.CreatePaymentRequest) (payments.PaymentIntent, error) {
	if s.createFunc == nil {
		return payments.PaymentIntent{ID: "pay_1", Status: payments.StatusPending}, nil
	}
	return s.createFunc(ctx, req)
}

func (s *gatewayStub) CheckStatus(ctx context.Context, method, paymentID string) (payments.Status, error) {
	if s.statusFunc == nil {
		return payments.StatusPending, nil
	}
	return s.statusFunc(ctx, method, paymentID)
}

type flowFixture struct {
	flow     *Flow
	sessions *SessionStore
	store    *persistence.MemoryStore
	adapter  *persistence.Adapter
}

func newFlowFixture(t *testing.T, gateway PaymentGateway, opts ...func(*FlowDeps)) *flowFixture {
	t.Helper()

	registry := pricing.NewRegistry()
	cat, err := catalog.Load(registry.Names())
	if err != nil {
		t.Fatalf("failed to load catalog: %v", err)
	}

	store := persistence.NewMemoryStore()
	adapter, err := persistence.NewAdapter(persistence.AdapterDeps{
		Store:    store,
		Debounce: 5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to build adapter: %v", err)
	}
	t.Cleanup(adapter.Close)

	sessions := NewSessionStore(time.Now)
	deps := FlowDeps{
		Sessions:     sessions,
		Catalog:      cat,
		Pricing:      registry,
		Snapshots:    adapter,
		Payments:     gateway,
		PollInterval: time.Hour,
		PollCeiling:  time.Hour,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	flow, err := NewFlow(deps)
	if err != nil {
		t.Fatalf("failed to build flow: %v", err)
	}
	return &flowFixture{flow: flow, sessions: sessions, store: store, adapter: adapter}
}

func validPatch() CustomerPatch {
	return CustomerPatch{
		Name:          strPtr("Maria Silva"),
		Email:         strPtr("maria@example.com"),
		Phone:         strPtr("11999998888"),
		PhoneCountry:  strPtr("+55"),
		CPF:           strPtr("529.982.247-25"),
		TargetCountry: strPtr("Canada"),
		Terms:         boolPtr(true),
	}
}

// reachPaymentStep walks a fresh session to the payment step with a selected
// product, valid customer data, and an accepted contract.
func reachPaymentStep(t *testing.T, f *flowFixture) string {
	t.Helper()
	ctx := context.Background()

	view, err := f.flow.Start(ctx, "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	id := view.SessionID

	if _, err := f.flow.SelectProduct(ctx, id, "vaga-express-premium"); err != nil {
		t.Fatalf("select product: %v", err)
	}
	if _, err := f.flow.Advance(ctx, id); err != nil {
		t.Fatalf("advance to customer step: %v", err)
	}
	if _, err := f.flow.UpdateCustomer(ctx, id, validPatch()); err != nil {
		t.Fatalf("update customer: %v", err)
	}
	if _, err := f.flow.Advance(ctx, id); err != nil {
		t.Fatalf("advance to contract step: %v", err)
	}
	if _, err := f.flow.AcceptContract(ctx, id, true, "Maria Silva"); err != nil {
		t.Fatalf("accept contract: %v", err)
	}
	if _, err := f.flow.Advance(ctx, id); err != nil {
		t.Fatalf("advance to payment step: %v", err)
	}
	if _, err := f.flow.ChoosePaymentMethod(ctx, id, domain.PaymentMethodPIX); err != nil {
		t.Fatalf("choose payment method: %v", err)
	}
	return id
}

func TestFlowStartHydratesFromSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(t, &gatewayStub{})

	saved := domain.CustomerData{Name: "Maria Silva", Email: "maria@example.com", Newsletter: true}
	f.adapter.SaveNow(ctx, "cliente-1", saved, 2, 1)

	view, err := f.flow.Start(ctx, "cliente-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if view.State.CustomerData.Name != "Maria Silva" {
		t.Fatalf("expected rehydrated name, got %q", view.State.CustomerData.Name)
	}
	if view.State.Adults != 2 || view.State.Children != 1 {
		t.Fatalf("expected party 2+1, got %d+%d", view.State.Adults, view.State.Children)
	}
	if view.State.CustomerData.Terms || view.State.CustomerData.ContractAccepted {
		t.Fatal("consent flags must not be rehydrated")
	}
}

func TestFlowStartWithoutSnapshotUsesInitialState(t *testing.T) {
	f := newFlowFixture(t, &gatewayStub{})
	view, err := f.flow.Start(context.Background(), "cliente-novo")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if view.State.Step != domain.StepProduct || view.State.Adults != 1 || view.State.Children != 0 {
		t.Fatalf("expected initial state, got %+v", view.State)
	}
}

func TestFlowUnknownSession(t *testing.T) {
	f := newFlowFixture(t, &gatewayStub{})
	if _, err := f.flow.Get(context.Background(), "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestFlowSelectUnknownProduct(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(t, &gatewayStub{})
	view, _ := f.flow.Start(ctx, "")
	if _, err := f.flow.SelectProduct(ctx, view.SessionID, "nope"); !errors.Is(err, catalog.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestFlowAdvanceBlockedByInvalidCustomer(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(t, &gatewayStub{})
	view, _ := f.flow.Start(ctx, "")
	id := view.SessionID

	f.flow.SelectProduct(ctx, id, "vaga-express-premium")
	f.flow.Advance(ctx, id)

	patch := validPatch()
	patch.Terms = boolPtr(false)
	f.flow.UpdateCustomer(ctx, id, patch)
	f.flow.Advance(ctx, id)

	// Leaving the contract step requires fully valid customer data.
	if _, err := f.flow.Advance(ctx, id); !errors.Is(err, ErrStepLocked) {
		t.Fatalf("expected ErrStepLocked, got %v", err)
	}
	got, _ := f.flow.Get(ctx, id)
	if got.State.Step != domain.StepContract {
		t.Fatalf("expected to stay on contract step, got %d", got.State.Step)
	}

	f.flow.UpdateCustomer(ctx, id, CustomerPatch{Terms: boolPtr(true)})
	if _, err := f.flow.Advance(ctx, id); err != nil {
		t.Fatalf("expected advance after fixing terms, got %v", err)
	}
}

func TestFlowBackPreservesData(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(t, &gatewayStub{})
	view, _ := f.flow.Start(ctx, "")
	id := view.SessionID

	f.flow.SelectProduct(ctx, id, "vaga-express-premium")
	f.flow.Advance(ctx, id)
	f.flow.UpdateCustomer(ctx, id, validPatch())

	got, err := f.flow.Back(ctx, id)
	if err != nil {
		t.Fatalf("back: %v", err)
	}
	if got.State.Step != domain.StepProduct {
		t.Fatalf("expected product step, got %d", got.State.Step)
	}
	if got.State.CustomerData.Name != "Maria Silva" {
		t.Fatal("expected customer data preserved when stepping back")
	}
}

func TestFlowSubmitRequiresContractAcceptance(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(t, &gatewayStub{})
	view, _ := f.flow.Start(ctx, "")
	id := view.SessionID

	f.flow.SelectProduct(ctx, id, "vaga-express-premium")
	f.flow.Advance(ctx, id)
	f.flow.UpdateCustomer(ctx, id, validPatch())
	f.flow.Advance(ctx, id)
	f.flow.Advance(ctx, id)
	f.flow.ChoosePaymentMethod(ctx, id, domain.PaymentMethodPIX)

	if _, err := f.flow.SubmitPayment(ctx, id); !errors.Is(err, ErrStepLocked) {
		t.Fatalf("expected ErrStepLocked without contract acceptance, got %v", err)
	}
}

func TestFlowSubmitRequiresMatchingSignature(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(t, &gatewayStub{})
	id := reachPaymentStep(t, f)

	f.flow.AcceptContract(ctx, id, true, "Outra Pessoa")
	if _, err := f.flow.SubmitPayment(ctx, id); !errors.Is(err, ErrStepLocked) {
		t.Fatalf("expected ErrStepLocked for mismatched signature, got %v", err)
	}

	// Case and spacing differences are tolerated.
	f.flow.AcceptContract(ctx, id, true, "  maria   SILVA ")
	if _, err := f.flow.SubmitPayment(ctx, id); err != nil {
		t.Fatalf("expected normalised signature to pass, got %v", err)
	}
}

func TestFlowSubmitApprovedCompletesCheckout(t *testing.T) {
	ctx := context.Background()
	gateway := &gatewayStub{
		createFunc: func(_ context.Context, req payments.CreatePaymentRequest) (payments.PaymentIntent, error) {
			if req.Payer.Phone != "+5511999998888" {
				return payments.PaymentIntent{}, errors.New("unexpected payer phone " + req.Payer.Phone)
			}
			return payments.PaymentIntent{ID: "pay_ok", Status: payments.StatusApproved}, nil
		},
	}
	f := newFlowFixture(t, gateway)
	id := reachPaymentStep(t, f)

	view, err := f.flow.SubmitPayment(ctx, id)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !view.State.IsComplete {
		t.Fatal("expected checkout complete")
	}
	if view.State.IsProcessing {
		t.Fatal("expected processing flag cleared")
	}
	if view.Payment == nil || view.Payment.Status != payments.StatusApproved {
		t.Fatalf("expected approved payment attempt, got %+v", view.Payment)
	}
}

func TestFlowSubmitFailureKeepsCustomerData(t *testing.T) {
	ctx := context.Background()
	gateway := &gatewayStub{
		createFunc: func(context.Context, payments.CreatePaymentRequest) (payments.PaymentIntent, error) {
			return payments.PaymentIntent{}, errors.New("gateway down")
		},
	}
	f := newFlowFixture(t, gateway)
	id := reachPaymentStep(t, f)

	view, err := f.flow.SubmitPayment(ctx, id)
	if !errors.Is(err, ErrPaymentFailed) {
		t.Fatalf("expected ErrPaymentFailed, got %v", err)
	}
	if view.State.Error == "" {
		t.Fatal("expected user-visible error message")
	}
	if view.State.IsProcessing {
		t.Fatal("expected processing flag cleared after failure")
	}
	if view.State.Step != domain.StepPayment {
		t.Fatalf("expected to remain on payment step, got %d", view.State.Step)
	}
	if view.State.CustomerData.Name != "Maria Silva" {
		t.Fatal("expected customer data intact after failure")
	}
}

func TestFlowPixPendingThenApproved(t *testing.T) {
	ctx := context.Background()
	gateway := &gatewayStub{
		createFunc: func(context.Context, payments.CreatePaymentRequest) (payments.PaymentIntent, error) {
			return payments.PaymentIntent{
				ID:      "pay_pix",
				Status:  payments.StatusPending,
				PixCode: "00020126pixcode",
			}, nil
		},
		statusFunc: func(context.Context, string, string) (payments.Status, error) {
			return payments.StatusApproved, nil
		},
	}
	f := newFlowFixture(t, gateway)
	id := reachPaymentStep(t, f)

	view, err := f.flow.SubmitPayment(ctx, id)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if view.Payment == nil || view.Payment.PixCode == "" {
		t.Fatalf("expected pix code on pending attempt, got %+v", view.Payment)
	}
	if !view.State.IsProcessing {
		t.Fatal("expected processing flag while waiting for pix confirmation")
	}

	view, err = f.flow.RefreshPayment(ctx, id)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !view.State.IsComplete {
		t.Fatal("expected checkout complete after approval")
	}
	if view.Payment.Status != payments.StatusApproved {
		t.Fatalf("expected approved attempt, got %s", view.Payment.Status)
	}
}

func TestFlowRejectedPaymentSetsError(t *testing.T) {
	ctx := context.Background()
	gateway := &gatewayStub{
		statusFunc: func(context.Context, string, string) (payments.Status, error) {
			return payments.StatusRejected, nil
		},
	}
	f := newFlowFixture(t, gateway)
	id := reachPaymentStep(t, f)

	if _, err := f.flow.SubmitPayment(ctx, id); err != nil {
		t.Fatalf("submit: %v", err)
	}
	view, err := f.flow.RefreshPayment(ctx, id)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if view.State.IsComplete {
		t.Fatal("rejected payment must not complete checkout")
	}
	if view.State.Error == "" {
		t.Fatal("expected error message after rejection")
	}
	if view.State.IsProcessing {
		t.Fatal("expected processing flag cleared after rejection")
	}
}

func TestFlowCancelWaitKeepsState(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(t, &gatewayStub{})
	id := reachPaymentStep(t, f)

	if _, err := f.flow.SubmitPayment(ctx, id); err != nil {
		t.Fatalf("submit: %v", err)
	}
	view, err := f.flow.CancelWait(ctx, id)
	if err != nil {
		t.Fatalf("cancel wait: %v", err)
	}
	if view.State.IsProcessing {
		t.Fatal("expected processing flag cleared after cancelling the wait")
	}
	if view.State.Step != domain.StepPayment {
		t.Fatalf("expected payment step retained, got %d", view.State.Step)
	}
	if view.State.CustomerData.Name != "Maria Silva" {
		t.Fatal("expected customer data intact after cancelling the wait")
	}
}

func TestFlowWatchPollsUntilApproved(t *testing.T) {
	ctx := context.Background()
	gateway := &gatewayStub{
		statusFunc: func(context.Context, string, string) (payments.Status, error) {
			return payments.StatusApproved, nil
		},
	}
	f := newFlowFixture(t, gateway, func(deps *FlowDeps) {
		deps.PollInterval = 5 * time.Millisecond
		deps.PollCeiling = time.Second
	})
	id := reachPaymentStep(t, f)

	if _, err := f.flow.SubmitPayment(ctx, id); err != nil {
		t.Fatalf("submit: %v", err)
	}

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		view, err := f.flow.Get(ctx, id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if view.State.IsComplete {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected watch to complete the checkout")
}

func TestFlowWatchTimesOut(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(t, &gatewayStub{}, func(deps *FlowDeps) {
		deps.PollInterval = 5 * time.Millisecond
		deps.PollCeiling = 25 * time.Millisecond
	})
	id := reachPaymentStep(t, f)

	if _, err := f.flow.SubmitPayment(ctx, id); err != nil {
		t.Fatalf("submit: %v", err)
	}

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		view, err := f.flow.Get(ctx, id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if view.Payment != nil && view.Payment.TimedOut {
			if view.State.IsProcessing {
				t.Fatal("expected processing flag cleared after timeout")
			}
			if view.State.Error == "" {
				t.Fatal("expected timeout error message")
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected watch to time out")
}

func TestFlowResetClearsEverything(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(t, &gatewayStub{})

	view, _ := f.flow.Start(ctx, "cliente-reset")
	id := view.SessionID
	f.adapter.SaveNow(ctx, "cliente-reset", domain.CustomerData{Name: "Maria Silva", Email: "maria@example.com"}, 2, 0)
	f.flow.UpdateCustomer(ctx, id, validPatch())

	got, err := f.flow.Reset(ctx, id)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if got.State.CustomerData.Name != "" || got.State.Step != domain.StepProduct {
		t.Fatalf("expected initial state after reset, got %+v", got.State)
	}
	if _, ok := f.adapter.Load(ctx, "cliente-reset"); ok {
		t.Fatal("expected snapshot cleared on reset")
	}
}

func TestFlowViewIncludesPricingAndContract(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(t, &gatewayStub{})
	id := reachPaymentStep(t, f)

	view, err := f.flow.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if view.Pricing == nil {
		t.Fatal("expected pricing in the view")
	}
	if view.Pricing.Total <= 0 {
		t.Fatalf("expected positive total, got %v", view.Pricing.Total)
	}
	if view.Contract == "" {
		t.Fatal("expected contract text at the contract step and beyond")
	}
	if !view.Validation.IsValid {
		t.Fatalf("expected valid customer data, got %v", view.Validation.Errors)
	}
}

func TestFlowRejectsUnknownPaymentMethod(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(t, &gatewayStub{})
	view, _ := f.flow.Start(ctx, "")
	if _, err := f.flow.ChoosePaymentMethod(ctx, view.SessionID, "cheque"); !errors.Is(err, payments.ErrUnsupportedMethod) {
		t.Fatalf("expected ErrUnsupportedMethod, got %v", err)
	}
}

func TestFlowSubmitPaymentRefusesConcurrentSubmit(t *testing.T) {
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	var calls int32
	gateway := &gatewayStub{
		createFunc: func(context.Context, payments.CreatePaymentRequest) (payments.PaymentIntent, error) {
			if atomic.AddInt32(&calls, 1) == 1 {
				close(entered)
				<-release
			}
			return payments.PaymentIntent{ID: "pay_1", Status: payments.StatusApproved}, nil
		},
	}
	f := newFlowFixture(t, gateway)
	id := reachPaymentStep(t, f)

	done := make(chan error, 1)
	go func() {
		_, err := f.flow.SubmitPayment(ctx, id)
		done <- err
	}()
	<-entered

	if _, err := f.flow.SubmitPayment(ctx, id); !errors.Is(err, ErrStepLocked) {
		t.Fatalf("expected ErrStepLocked while a payment is in flight, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first submission: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected exactly one payment creation, got %d", got)
	}

	view, err := f.flow.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !view.State.IsComplete {
		t.Fatal("expected completed checkout after the single approved payment")
	}
}

func TestFlowAdvanceGuardsUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(t, &gatewayStub{})

	view, err := f.flow.Start(ctx, "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	id := view.SessionID
	if _, err := f.flow.SelectProduct(ctx, id, "vaga-express-premium"); err != nil {
		t.Fatalf("select product: %v", err)
	}

	// With incomplete customer data the furthest reachable step is the
	// contract step, no matter how many advances race.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.flow.Advance(ctx, id)
		}()
	}
	wg.Wait()

	got, err := f.flow.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State.Step > domain.StepContract {
		t.Fatalf("advanced past the gated step, got %v", got.State.Step)
	}
}
