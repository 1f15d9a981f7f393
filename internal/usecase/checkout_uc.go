package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"video-subscription-storefront/internal/domain"
	"video-subscription-storefront/internal/domain/model"
	"video-subscription-storefront/internal/domain/ports/adapter"
	"video-subscription-storefront/internal/domain/ports/repository"
	"video-subscription-storefront/internal/infra/logging"
	"video-subscription-storefront/internal/infra/metrics"
)

// Compile-time check
var _ CheckoutUseCase = (*checkoutUC)(nil)

const maxOrderDescriptionLen = 100

// CheckoutRequest is a plan selection from the storefront.
type CheckoutRequest struct {
	Identity    *model.Identity
	SessionID   string
	PlanName    string
	PhoneNumber string
}

// CheckoutResult is the state the storefront lands in after a selection.
// On failure State is back to plan selection and Error holds the message to
// show.
type CheckoutResult struct {
	State         model.CheckoutState `json:"state"`
	OrderID       string              `json:"order_id,omitempty"`
	TrackingID    string              `json:"order_tracking_id,omitempty"`
	RedirectURL   string              `json:"redirect_url,omitempty"`
	RedirectAfter time.Duration       `json:"-"`
	Error         string              `json:"error,omitempty"`
}

// CheckoutConfig carries the storefront-specific order parameters.
type CheckoutConfig struct {
	Brand         string
	CallbackURL   string
	RedirectDelay time.Duration
}

// CheckoutUseCase drives plan selection through order submission.
type CheckoutUseCase interface {
	SelectPlan(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error)
}

type checkoutUC struct {
	gateway adapter.PaymentGateway
	pending repository.PendingPaymentStore
	cfg     CheckoutConfig
	log     *zerolog.Logger
}

func NewCheckoutUseCase(gateway adapter.PaymentGateway, pending repository.PendingPaymentStore, cfg CheckoutConfig, logger *zerolog.Logger) *checkoutUC {
	l := logger.With().Str("component", "Checkout").Logger()
	return &checkoutUC{
		gateway: gateway,
		pending: pending,
		cfg:     cfg,
		log:     &l,
	}
}

func (u *checkoutUC) SelectPlan(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	defer logging.TraceDuration(u.log, "CheckoutUC.SelectPlan")()
	log := logging.With(ctx, u.log)

	if req.Identity == nil || req.Identity.ID == "" {
		metrics.IncCheckout("login_required")
		return failed("Please log in to subscribe."), domain.ErrLoginRequired
	}
	plan, ok := model.FindPlan(req.PlanName)
	if !ok {
		metrics.IncCheckout("unknown_plan")
		return failed("Invalid plan selected."), fmt.Errorf("%w: %q", domain.ErrUnknownPlan, req.PlanName)
	}
	if plan.AdminOnly {
		metrics.IncCheckout("not_purchasable")
		return failed("This plan cannot be purchased."), fmt.Errorf("%w: %q", domain.ErrPlanNotPurchasable, req.PlanName)
	}

	state, err := model.NextCheckoutState(model.CheckoutSelectingPlan, model.CheckoutEventPlanSelected)
	if err != nil {
		return failed("Please try again."), err
	}

	orderID := GenerateOrderID()
	first, last := model.SplitName(req.Identity.Name)
	order := adapter.OrderRequest{
		ID:          orderID,
		Currency:    model.Currency,
		Amount:      plan.Price,
		Description: orderDescription(u.cfg.Brand, plan.Name),
		CallbackURL: u.cfg.CallbackURL,
		Billing: adapter.BillingAddress{
			Email:       req.Identity.Email,
			PhoneNumber: req.PhoneNumber,
			CountryCode: model.CountryCode,
			FirstName:   first,
			LastName:    last,
		},
	}

	resp, err := u.submit(ctx, order)
	if err != nil {
		state, _ = model.NextCheckoutState(state, model.CheckoutEventFailed)
		metrics.IncCheckout(checkoutFailureLabel(err))
		log.Error().Err(err).Str("order_id", orderID).Str("plan", plan.Name).Msg("checkout failed")
		res := failed("Failed to process payment. Please try again.")
		res.State = state
		return res, err
	}

	record := &model.PendingPayment{
		OrderID:         orderID,
		OrderTrackingID: resp.OrderTrackingID,
		UserID:          req.Identity.ID,
		PlanName:        plan.Name,
		PlanDays:        plan.DurationDays,
		Amount:          plan.Price,
		PhoneNumber:     req.PhoneNumber,
		CreatedAt:       time.Now(),
	}
	if err := u.pending.Save(ctx, req.SessionID, record); err != nil {
		// Without the record the callback cannot activate anything, so do
		// not send the customer to pay.
		metrics.IncCheckout("persist_error")
		log.Error().Err(err).Str("order_id", orderID).Msg("failed to save pending payment")
		return failed("Failed to process payment. Please try again."), fmt.Errorf("save pending payment: %w", err)
	}

	state, err = model.NextCheckoutState(state, model.CheckoutEventSubmitted)
	if err != nil {
		return failed("Please try again."), err
	}
	metrics.IncCheckout("redirected")
	log.Info().
		Str("order_id", orderID).
		Str("tracking_id", resp.OrderTrackingID).
		Str("plan", plan.Name).
		Msg("order submitted, redirecting to gateway")

	return &CheckoutResult{
		State:         state,
		OrderID:       orderID,
		TrackingID:    resp.OrderTrackingID,
		RedirectURL:   resp.RedirectURL,
		RedirectAfter: u.cfg.RedirectDelay,
	}, nil
}

func (u *checkoutUC) submit(ctx context.Context, order adapter.OrderRequest) (adapter.OrderResponse, error) {
	token, err := u.gateway.Authenticate(ctx)
	if err != nil {
		return adapter.OrderResponse{}, err
	}
	ipnID, err := u.gateway.RegisterCallback(ctx, token.Token, order.CallbackURL)
	if err != nil {
		return adapter.OrderResponse{}, err
	}
	order.NotificationID = ipnID
	resp, err := u.gateway.SubmitOrder(ctx, token.Token, order)
	if err != nil {
		return adapter.OrderResponse{}, err
	}
	if resp.RedirectURL == "" {
		return adapter.OrderResponse{}, &domain.OrderSubmissionError{OrderID: order.ID, Raw: "missing redirect url"}
	}
	return resp, nil
}

func failed(msg string) *CheckoutResult {
	return &CheckoutResult{State: model.CheckoutSelectingPlan, Error: msg}
}

func orderDescription(brand, plan string) string {
	d := fmt.Sprintf("%s - %s Subscription", brand, plan)
	if utf8.RuneCountInString(d) > maxOrderDescriptionLen {
		d = string([]rune(d)[:maxOrderDescriptionLen])
	}
	return d
}

func checkoutFailureLabel(err error) string {
	var authErr *domain.GatewayAuthError
	var cfgErr *domain.GatewayConfigError
	var orderErr *domain.OrderSubmissionError
	switch {
	case errors.As(err, &authErr):
		return "gateway_auth_error"
	case errors.As(err, &cfgErr):
		return "gateway_config_error"
	case errors.As(err, &orderErr):
		return "order_rejected"
	default:
		return "gateway_error"
	}
}
