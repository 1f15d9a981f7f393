//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"video-subscription-storefront/internal/domain"
	"video-subscription-storefront/internal/domain/model"
	"video-subscription-storefront/internal/domain/ports/adapter"
	"video-subscription-storefront/internal/usecase"
)

// spyLedger wraps the real ledger and counts activations.
type spyLedger struct {
	usecase.SubscriptionUseCase
	mu          sync.Mutex
	activations int
	fail        bool
}

func (s *spyLedger) Activate(ctx context.Context, userID, planName, orderID, trackingID string) bool {
	s.mu.Lock()
	s.activations++
	s.mu.Unlock()
	if s.fail {
		return false
	}
	return s.SubscriptionUseCase.Activate(ctx, userID, planName, orderID, trackingID)
}

// callbackTestDeps holds all the mock dependencies for the reconciler tests.
type callbackTestDeps struct {
	store   *FlakyDocumentStore
	gateway *MockPaymentGateway
	pending *MockPendingStore
	results *MockResultCache
	claims  *MockClaimSet
	alerts  *MockAlerter
	ledger  *spyLedger
}

func newCallbackDeps() *callbackTestDeps {
	store := NewFlakyDocumentStore()
	return &callbackTestDeps{
		store:   store,
		gateway: &MockPaymentGateway{},
		pending: NewMockPendingStore(),
		results: NewMockResultCache(),
		claims:  NewMockClaimSet(),
		alerts:  &MockAlerter{},
		ledger:  &spyLedger{SubscriptionUseCase: usecase.NewSubscriptionUseCase(store, newTestLogger())},
	}
}

func (d *callbackTestDeps) uc() usecase.PaymentCallbackUseCase {
	return usecase.NewPaymentCallbackUseCase(d.gateway, d.ledger, d.pending, d.results, d.claims, d.alerts, 0, newTestLogger())
}

func (d *callbackTestDeps) checkout(t *testing.T, session, plan string) *usecase.CheckoutResult {
	t.Helper()
	uc := usecase.NewCheckoutUseCase(d.gateway, d.pending, usecase.CheckoutConfig{Brand: "Luo Ancient", CallbackURL: "https://shop.example.test/payment/callback"}, newTestLogger())
	res, err := uc.SelectPlan(context.Background(), usecase.CheckoutRequest{Identity: testIdentity, SessionID: session, PlanName: plan})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	return res
}

func withStatus(code int, message string) func(context.Context, string, string) (adapter.TransactionStatus, error) {
	return func(context.Context, string, string) (adapter.TransactionStatus, error) {
		return adapter.TransactionStatus{StatusCode: code, Message: message, ConfirmationCode: "CONF-9"}, nil
	}
}

func callbackReq(session string, res *usecase.CheckoutResult) usecase.ReconcileRequest {
	return usecase.ReconcileRequest{
		SessionID: session,
		Identity:  testIdentity,
		Params: usecase.CallbackParams{
			OrderTrackingID:        res.TrackingID,
			OrderMerchantReference: res.OrderID,
			OrderNotificationType:  "CALLBACKURL",
		},
	}
}

func TestPaymentCallback_ScenarioA_HappyPath(t *testing.T) {
	// --- Arrange ---
	ctx := context.Background()
	deps := newCallbackDeps()
	res := deps.checkout(t, "sess-1", "1 Month")
	started := time.Now()

	// --- Act ---
	out := deps.uc().Reconcile(ctx, callbackReq("sess-1", res))

	// --- Assert ---
	if out.State != model.CallbackSuccess {
		t.Fatalf("expected success, got %+v", out)
	}
	if out.Message != "Your 1 Month subscription is now active!" || out.ConfirmationCode != "CONF-1" {
		t.Errorf("unexpected outcome %+v", out)
	}
	sub, err := deps.ledger.CheckActive(ctx, "u1")
	if err != nil || sub == nil {
		t.Fatalf("expected active subscription, got %v %v", sub, err)
	}
	if sub.Plan != "1 Month" || !sub.Active {
		t.Errorf("unexpected subscription %+v", sub)
	}
	if d := sub.ExpiresAt.Sub(started.AddDate(0, 0, 30)); d < -time.Minute || d > time.Minute {
		t.Errorf("expected expiry about 30 days out, off by %v", d)
	}
	if rec, _ := deps.pending.Get(ctx, "sess-1"); rec != nil {
		t.Error("expected pending record to be cleared")
	}
	if deps.results.Puts != 1 {
		t.Errorf("expected success to be latched once, got %d", deps.results.Puts)
	}
}

func TestPaymentCallback_ScenarioB_MerchantReferenceMismatch(t *testing.T) {
	ctx := context.Background()
	deps := newCallbackDeps()
	res := deps.checkout(t, "sess-1", "1 Week")
	req := callbackReq("sess-1", res)
	req.Params.OrderMerchantReference = "LUA-SOMETHING-ELSE"

	out := deps.uc().Reconcile(ctx, req)

	if out.State != model.CallbackFailed || out.Message != "Order verification failed. Please contact support." {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if deps.ledger.activations != 0 {
		t.Errorf("activate must not be called, got %d calls", deps.ledger.activations)
	}
	if rec, _ := deps.pending.Get(ctx, "sess-1"); rec == nil {
		t.Error("pending record must stay for support follow-up")
	}
}

func TestPaymentCallback_ScenarioC_NoLocalRecord(t *testing.T) {
	ctx := context.Background()
	deps := newCallbackDeps()

	out := deps.uc().Reconcile(ctx, usecase.ReconcileRequest{
		SessionID: "other-browser",
		Identity:  testIdentity,
		Params:    usecase.CallbackParams{OrderTrackingID: "trk-x"},
	})

	if out.State != model.CallbackSuccess || out.Message != "Payment confirmed. Your subscription access should be active." {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if deps.ledger.activations != 0 {
		t.Error("no ledger write may be attempted without a local record")
	}
	if deps.results.Puts != 1 {
		t.Errorf("expected the confirmation to be latched, got %d puts", deps.results.Puts)
	}

	t.Run("should keep the latched success when the gateway later fails", func(t *testing.T) {
		deps.gateway.GetTransactionStatusFunc = func(context.Context, string, string) (adapter.TransactionStatus, error) {
			return adapter.TransactionStatus{}, errBoom
		}
		again := deps.uc().Reconcile(ctx, usecase.ReconcileRequest{
			SessionID: "other-browser",
			Identity:  testIdentity,
			Params:    usecase.CallbackParams{OrderTrackingID: "trk-x"},
		})
		if again.State != model.CallbackSuccess || again.Message != out.Message {
			t.Fatalf("expected cached success, got %+v", again)
		}
	})

	t.Run("should show the gateway's status description", func(t *testing.T) {
		deps.gateway.GetTransactionStatusFunc = func(context.Context, string, string) (adapter.TransactionStatus, error) {
			return adapter.TransactionStatus{StatusCode: 0, Description: "Awaiting Mobile Money PIN"}, nil
		}
		out := deps.uc().Reconcile(ctx, usecase.ReconcileRequest{
			SessionID: "other-browser",
			Identity:  testIdentity,
			Params:    usecase.CallbackParams{OrderTrackingID: "trk-z"},
		})
		if out.State != model.CallbackPending || !strings.Contains(out.Message, "Payment status: Awaiting Mobile Money PIN.") {
			t.Fatalf("unexpected outcome %+v", out)
		}
	})

	t.Run("should stay pending for other statuses", func(t *testing.T) {
		deps.gateway.GetTransactionStatusFunc = withStatus(0, "")
		out := deps.uc().Reconcile(ctx, usecase.ReconcileRequest{
			SessionID: "other-browser",
			Identity:  testIdentity,
			Params:    usecase.CallbackParams{OrderTrackingID: "trk-y"},
		})
		if out.State != model.CallbackPending || !strings.Contains(out.Message, "Payment status: INVALID") {
			t.Fatalf("unexpected outcome %+v", out)
		}
	})
}

func TestPaymentCallback_StatusMapping(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		code    int
		message string
		state   model.CallbackState
		text    string
	}{
		{0, "", model.CallbackPending, "Your payment is being processed. Please wait a few minutes and check again."},
		{1, "", model.CallbackSuccess, "Your 1 Week subscription is now active!"},
		{2, "Insufficient funds", model.CallbackFailed, "Payment failed: Insufficient funds"},
		{2, "", model.CallbackFailed, "Payment failed: Please try again or contact support."},
		{3, "", model.CallbackFailed, "Payment was reversed. Please contact support if you believe this is an error."},
		{99, "", model.CallbackPending, "Payment status: UNKNOWN. Please wait or contact support."},
	}
	for _, c := range cases {
		deps := newCallbackDeps()
		res := deps.checkout(t, "sess", "1 Week")
		deps.gateway.GetTransactionStatusFunc = withStatus(c.code, c.message)

		out := deps.uc().Reconcile(ctx, callbackReq("sess", res))

		if out.State != c.state || out.Message != c.text {
			t.Errorf("code %d: got %s %q, want %s %q", c.code, out.State, out.Message, c.state, c.text)
		}
		wantActivations := 0
		if c.code == 1 {
			wantActivations = 1
		}
		if deps.ledger.activations != wantActivations {
			t.Errorf("code %d: expected %d activations, got %d", c.code, wantActivations, deps.ledger.activations)
		}
		if c.code != 1 {
			if rec, _ := deps.pending.Get(ctx, "sess"); rec == nil {
				t.Errorf("code %d: pending record must survive a non-success outcome", c.code)
			}
		}
	}
}

func TestPaymentCallback_Latch(t *testing.T) {
	ctx := context.Background()
	deps := newCallbackDeps()
	res := deps.checkout(t, "sess-1", "1 Week")
	first := deps.uc().Reconcile(ctx, callbackReq("sess-1", res))
	if first.State != model.CallbackSuccess {
		t.Fatalf("setup: expected success, got %+v", first)
	}

	// The gateway is now down; the cached success must win.
	deps.gateway.GetTransactionStatusFunc = func(context.Context, string, string) (adapter.TransactionStatus, error) {
		return adapter.TransactionStatus{}, errBoom
	}
	calls := deps.gateway.StatusCalls
	again := deps.uc().Reconcile(ctx, callbackReq("sess-1", res))

	if again.State != model.CallbackSuccess || again.Message != first.Message {
		t.Fatalf("expected cached success, got %+v", again)
	}
	if deps.gateway.StatusCalls != calls {
		t.Error("cached success must not re-verify")
	}
	if deps.ledger.activations != 1 {
		t.Errorf("expected a single activation, got %d", deps.ledger.activations)
	}
}

func TestPaymentCallback_Guards(t *testing.T) {
	ctx := context.Background()

	t.Run("should fail without a tracking id", func(t *testing.T) {
		deps := newCallbackDeps()
		out := deps.uc().Reconcile(ctx, usecase.ReconcileRequest{SessionID: "s", Identity: testIdentity})
		if out.State != model.CallbackFailed || out.Message != "Payment was not completed. Please try again." {
			t.Fatalf("unexpected outcome %+v", out)
		}
	})

	t.Run("should keep anonymous visitors pending and ask them to log in", func(t *testing.T) {
		deps := newCallbackDeps()
		res := deps.checkout(t, "s", "1 Week")
		req := callbackReq("s", res)
		req.Identity = nil

		out := deps.uc().Reconcile(ctx, req)

		if out.State != model.CallbackPending || out.Message != "Please log in to complete your subscription activation." {
			t.Fatalf("unexpected outcome %+v", out)
		}
		if deps.gateway.StatusCalls != 0 {
			t.Error("expected no verification for anonymous visitors")
		}
	})

	t.Run("should not run twice for a claimed tracking id", func(t *testing.T) {
		deps := newCallbackDeps()
		res := deps.checkout(t, "s", "1 Week")
		deps.claims.Hold(res.TrackingID)

		out := deps.uc().Reconcile(ctx, callbackReq("s", res))

		if out.State != model.CallbackVerifying {
			t.Fatalf("expected verifying, got %+v", out)
		}
		if deps.gateway.StatusCalls != 0 || deps.ledger.activations != 0 {
			t.Error("a concurrent run must not touch the gateway or the ledger")
		}
	})

	t.Run("should release the claim so pending stays retriable", func(t *testing.T) {
		deps := newCallbackDeps()
		res := deps.checkout(t, "s", "1 Week")
		deps.gateway.GetTransactionStatusFunc = withStatus(0, "")
		_ = deps.uc().Reconcile(ctx, callbackReq("s", res))

		deps.gateway.GetTransactionStatusFunc = withStatus(1, "")
		out := deps.uc().Reconcile(ctx, callbackReq("s", res))

		if out.State != model.CallbackSuccess {
			t.Fatalf("expected retry to succeed, got %+v", out)
		}
	})

	t.Run("should map verification errors to pending with the order id", func(t *testing.T) {
		deps := newCallbackDeps()
		res := deps.checkout(t, "s", "1 Week")
		deps.gateway.GetTransactionStatusFunc = func(context.Context, string, string) (adapter.TransactionStatus, error) {
			return adapter.TransactionStatus{}, errors.New("connection reset")
		}

		out := deps.uc().Reconcile(ctx, callbackReq("s", res))

		if out.State != model.CallbackPending || !strings.HasSuffix(out.Message, "with order ID: "+res.OrderID) {
			t.Fatalf("unexpected outcome %+v", out)
		}
	})

	t.Run("should flag ledger failures for support", func(t *testing.T) {
		deps := newCallbackDeps()
		res := deps.checkout(t, "s", "1 Week")
		deps.ledger.fail = true

		out := deps.uc().Reconcile(ctx, callbackReq("s", res))

		if out.State != model.CallbackFailed || out.Message != "Failed to activate subscription. Please contact support with your order ID: "+res.OrderID {
			t.Fatalf("unexpected outcome %+v", out)
		}
		if len(deps.alerts.Reports) != 1 {
			t.Fatalf("expected one alert, got %d", len(deps.alerts.Reports))
		}
		var ledgerErr *domain.LedgerActivationError
		if !errors.As(deps.alerts.Reports[0], &ledgerErr) || ledgerErr.OrderID != res.OrderID {
			t.Errorf("unexpected alert %v", deps.alerts.Reports[0])
		}
		if deps.results.Puts != 0 {
			t.Error("failures must never be latched")
		}
	})

	t.Run("should give up waiting when the request is cancelled", func(t *testing.T) {
		deps := newCallbackDeps()
		uc := usecase.NewPaymentCallbackUseCase(deps.gateway, deps.ledger, deps.pending, deps.results, deps.claims, deps.alerts, time.Hour, newTestLogger())
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		out := uc.Reconcile(cctx, usecase.ReconcileRequest{SessionID: "s", Identity: testIdentity, Params: usecase.CallbackParams{OrderTrackingID: "t"}})

		if out.State != model.CallbackPending {
			t.Fatalf("expected pending, got %+v", out)
		}
	})
}

func TestPaymentCallback_VerifyNotification(t *testing.T) {
	ctx := context.Background()
	deps := newCallbackDeps()
	deps.gateway.GetTransactionStatusFunc = withStatus(2, "declined")

	out, err := deps.uc().VerifyNotification(ctx, usecase.CallbackParams{OrderTrackingID: "trk", OrderNotificationType: "IPNCHANGE"})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.State != model.CallbackFailed || out.PaymentStatus != model.PaymentStatusFailed {
		t.Errorf("unexpected outcome %+v", out)
	}
	if deps.ledger.activations != 0 {
		t.Error("notifications never activate")
	}

	_, err = deps.uc().VerifyNotification(ctx, usecase.CallbackParams{})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}
