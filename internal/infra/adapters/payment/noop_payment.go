package payment

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"video-subscription-storefront/internal/domain/model"
	"video-subscription-storefront/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*NoopPaymentGateway)(nil)

// NoopPaymentGateway is an in-memory gateway for dev mode and tests. Orders
// "redirect" straight back to their callback URL and complete unless a
// different status was scripted with SetStatus.
type NoopPaymentGateway struct {
	mu       sync.Mutex
	seq      int64
	orders   map[string]adapter.OrderRequest // tracking id -> order
	statuses map[string]int
	fallback int
}

func NewNoopPaymentGateway() *NoopPaymentGateway {
	return &NoopPaymentGateway{
		orders:   make(map[string]adapter.OrderRequest),
		statuses: make(map[string]int),
		fallback: 1,
	}
}

func (g *NoopPaymentGateway) Name() string { return "noop" }

func (g *NoopPaymentGateway) next() string {
	g.seq++
	return fmt.Sprintf("noop-%d", g.seq)
}

// SetStatus scripts the status code reported for trackingID.
func (g *NoopPaymentGateway) SetStatus(trackingID string, code int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[trackingID] = code
}

// SetDefaultStatus scripts the status code for orders without an explicit one.
func (g *NoopPaymentGateway) SetDefaultStatus(code int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fallback = code
}

func (g *NoopPaymentGateway) Authenticate(ctx context.Context) (model.GatewayToken, error) {
	return model.GatewayToken{Token: "noop-token", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (g *NoopPaymentGateway) RegisterCallback(ctx context.Context, token, callbackURL string) (string, error) {
	if _, err := url.Parse(callbackURL); err != nil {
		return "", err
	}
	return "noop-ipn", nil
}

func (g *NoopPaymentGateway) SubmitOrder(ctx context.Context, token string, order adapter.OrderRequest) (adapter.OrderResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	trackingID := g.next()
	g.orders[trackingID] = order

	redirect, err := url.Parse(order.CallbackURL)
	if err != nil {
		return adapter.OrderResponse{}, err
	}
	q := redirect.Query()
	q.Set("OrderTrackingId", trackingID)
	q.Set("OrderMerchantReference", order.ID)
	q.Set("OrderNotificationType", "CALLBACKURL")
	redirect.RawQuery = q.Encode()

	return adapter.OrderResponse{
		OrderTrackingID:   trackingID,
		MerchantReference: order.ID,
		RedirectURL:       redirect.String(),
	}, nil
}

func (g *NoopPaymentGateway) GetTransactionStatus(ctx context.Context, token, trackingID string) (adapter.TransactionStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	order, ok := g.orders[trackingID]
	if !ok {
		return adapter.TransactionStatus{}, fmt.Errorf("noop: tracking id %s not found", trackingID)
	}
	code, ok := g.statuses[trackingID]
	if !ok {
		code = g.fallback
	}
	st := adapter.TransactionStatus{
		StatusCode:        code,
		Description:       string(model.StatusFromCode(code)),
		PaymentMethod:     "noop",
		Amount:            float64(order.Amount),
		Currency:          order.Currency,
		MerchantReference: order.ID,
	}
	if code == 1 {
		st.ConfirmationCode = "NOOP-" + trackingID
	}
	return st, nil
}
