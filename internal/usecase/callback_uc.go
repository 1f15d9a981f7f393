package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"video-subscription-storefront/internal/domain"
	"video-subscription-storefront/internal/domain/model"
	"video-subscription-storefront/internal/domain/ports/adapter"
	"video-subscription-storefront/internal/domain/ports/repository"
	"video-subscription-storefront/internal/infra/logging"
	"video-subscription-storefront/internal/infra/metrics"
)

// Compile-time check
var _ PaymentCallbackUseCase = (*paymentCallbackUC)(nil)

const (
	msgNotCompleted     = "Payment was not completed. Please try again."
	msgLoginToActivate  = "Please log in to complete your subscription activation."
	msgConfirmedNoLocal = "Payment confirmed. Your subscription access should be active."
	msgVerifyFailed     = "Could not verify payment status. Please try again in a few minutes or contact support."
	msgOrderMismatch    = "Order verification failed. Please contact support."
	msgProcessing       = "Your payment is being processed. Please wait a few minutes and check again."
	msgFailedDefault    = "Please try again or contact support."
	msgReversed         = "Payment was reversed. Please contact support if you believe this is an error."
	msgAlreadyVerifying = "Your payment is already being verified. Please wait a moment."
)

// CallbackParams are the query parameters the gateway appends to the callback URL.
type CallbackParams struct {
	OrderTrackingID        string
	OrderMerchantReference string
	OrderNotificationType  string
}

// ReconcileRequest is one visit of the callback page.
type ReconcileRequest struct {
	Params    CallbackParams
	SessionID string
	Identity  *model.Identity
}

// ReconcileOutcome is what the callback page shows.
type ReconcileOutcome struct {
	State            model.CallbackState `json:"state"`
	Message          string              `json:"message"`
	OrderID          string              `json:"order_id,omitempty"`
	ConfirmationCode string              `json:"confirmation_code,omitempty"`
	PaymentStatus    model.PaymentStatus `json:"payment_status,omitempty"`
}

// PaymentCallbackUseCase turns a gateway redirect into an activated subscription.
type PaymentCallbackUseCase interface {
	Reconcile(ctx context.Context, req ReconcileRequest) *ReconcileOutcome
	// VerifyNotification handles a server-to-server notification. It only
	// queries the gateway; activation needs the browsing session.
	VerifyNotification(ctx context.Context, params CallbackParams) (*ReconcileOutcome, error)
}

type paymentCallbackUC struct {
	gateway     adapter.PaymentGateway
	ledger      SubscriptionUseCase
	pending     repository.PendingPaymentStore
	results     repository.CallbackResultCache
	claims      repository.ClaimSet
	alerts      adapter.Alerter
	settleDelay time.Duration
	log         *zerolog.Logger
}

func NewPaymentCallbackUseCase(
	gateway adapter.PaymentGateway,
	ledger SubscriptionUseCase,
	pending repository.PendingPaymentStore,
	results repository.CallbackResultCache,
	claims repository.ClaimSet,
	alerts adapter.Alerter,
	settleDelay time.Duration,
	logger *zerolog.Logger,
) *paymentCallbackUC {
	l := logger.With().Str("component", "PaymentCallback").Logger()
	return &paymentCallbackUC{
		gateway:     gateway,
		ledger:      ledger,
		pending:     pending,
		results:     results,
		claims:      claims,
		alerts:      alerts,
		settleDelay: settleDelay,
		log:         &l,
	}
}

func (u *paymentCallbackUC) Reconcile(ctx context.Context, req ReconcileRequest) *ReconcileOutcome {
	defer logging.TraceDuration(u.log, "PaymentCallbackUC.Reconcile")()
	out := u.reconcile(ctx, req)
	metrics.IncCallbackOutcome(string(out.State))
	return out
}

func (u *paymentCallbackUC) reconcile(ctx context.Context, req ReconcileRequest) *ReconcileOutcome {
	log := logging.With(ctx, u.log)
	trackingID := req.Params.OrderTrackingID

	// Give the identity provider a moment to settle after the redirect.
	if u.settleDelay > 0 {
		select {
		case <-time.After(u.settleDelay):
		case <-ctx.Done():
			return &ReconcileOutcome{State: model.CallbackPending, Message: msgVerifyFailed}
		}
	}

	if trackingID == "" {
		return &ReconcileOutcome{State: model.CallbackFailed, Message: msgNotCompleted}
	}

	if cached, err := u.results.Get(ctx, req.SessionID, trackingID); err != nil {
		log.Warn().Err(err).Str("tracking_id", trackingID).Msg("callback result cache read failed")
	} else if cached != nil && cached.Status == model.CallbackResultSuccess {
		return &ReconcileOutcome{
			State:            model.CallbackSuccess,
			Message:          cached.Message,
			ConfirmationCode: cached.ConfirmationCode,
		}
	}

	// Identity may still be resolving after the redirect; stay retriable.
	if req.Identity == nil || req.Identity.ID == "" {
		return &ReconcileOutcome{State: model.CallbackPending, Message: msgLoginToActivate}
	}

	release, ok, err := u.claims.Claim(ctx, trackingID)
	if err != nil {
		log.Error().Err(err).Str("tracking_id", trackingID).Msg("claim failed")
		return &ReconcileOutcome{State: model.CallbackPending, Message: msgVerifyFailed}
	}
	if !ok {
		return &ReconcileOutcome{State: model.CallbackVerifying, Message: msgAlreadyVerifying}
	}
	defer release()

	record, err := u.pending.Get(ctx, req.SessionID)
	if err != nil {
		log.Warn().Err(err).Msg("pending payment read failed")
		record = nil
	}
	if record == nil {
		return u.verifyWithoutRecord(ctx, req.SessionID, trackingID)
	}
	return u.verifyAndActivate(ctx, req, record)
}

// verifyWithoutRecord covers a callback opened in another browser: the
// gateway is asked for the status but nothing is activated here.
func (u *paymentCallbackUC) verifyWithoutRecord(ctx context.Context, sessionID, trackingID string) *ReconcileOutcome {
	log := logging.With(ctx, u.log)
	status, err := u.verify(ctx, trackingID)
	if err != nil {
		log.Warn().Err(err).Str("tracking_id", trackingID).Msg("verification failed without local record")
		return &ReconcileOutcome{State: model.CallbackPending, Message: msgVerifyFailed}
	}
	if status.Status() == model.PaymentStatusCompleted {
		result := &model.CallbackResult{
			Status:           model.CallbackResultSuccess,
			Message:          msgConfirmedNoLocal,
			ConfirmationCode: status.ConfirmationCode,
		}
		if err := u.results.PutSuccess(ctx, sessionID, trackingID, result); err != nil {
			log.Warn().Err(err).Str("tracking_id", trackingID).Msg("failed to cache callback result")
		}
		return &ReconcileOutcome{
			State:            model.CallbackSuccess,
			Message:          msgConfirmedNoLocal,
			ConfirmationCode: status.ConfirmationCode,
			PaymentStatus:    model.PaymentStatusCompleted,
		}
	}
	label := status.Description
	if label == "" {
		label = string(status.Status())
	}
	return &ReconcileOutcome{
		State:         model.CallbackPending,
		Message:       fmt.Sprintf("Payment status: %s. Please wait a few minutes and check again.", label),
		PaymentStatus: status.Status(),
	}
}

func (u *paymentCallbackUC) verifyAndActivate(ctx context.Context, req ReconcileRequest, record *model.PendingPayment) *ReconcileOutcome {
	log := logging.With(ctx, u.log).With().
		Str("order_id", record.OrderID).
		Str("tracking_id", req.Params.OrderTrackingID).
		Logger()

	if ref := req.Params.OrderMerchantReference; ref != "" && ref != record.OrderID {
		log.Warn().Str("merchant_reference", ref).Msg("merchant reference does not match pending order")
		return &ReconcileOutcome{State: model.CallbackFailed, Message: msgOrderMismatch, OrderID: record.OrderID}
	}

	status, err := u.verify(ctx, req.Params.OrderTrackingID)
	if err != nil {
		log.Warn().Err(err).Msg("verification failed")
		return &ReconcileOutcome{
			State:   model.CallbackPending,
			Message: fmt.Sprintf("Could not verify payment status. Please try again in a few minutes or contact support with order ID: %s", record.OrderID),
			OrderID: record.OrderID,
		}
	}

	switch st := status.Status(); st {
	case model.PaymentStatusCompleted:
		return u.activate(ctx, &log, req, record, status)
	case model.PaymentStatusInvalid:
		return &ReconcileOutcome{State: model.CallbackPending, Message: msgProcessing, OrderID: record.OrderID, PaymentStatus: st}
	case model.PaymentStatusFailed:
		reason := status.Message
		if reason == "" {
			reason = msgFailedDefault
		}
		return &ReconcileOutcome{State: model.CallbackFailed, Message: "Payment failed: " + reason, OrderID: record.OrderID, PaymentStatus: st}
	case model.PaymentStatusReversed:
		return &ReconcileOutcome{State: model.CallbackFailed, Message: msgReversed, OrderID: record.OrderID, PaymentStatus: st}
	default:
		label := status.Description
		if label == "" {
			label = string(st)
		}
		return &ReconcileOutcome{
			State:         model.CallbackPending,
			Message:       fmt.Sprintf("Payment status: %s. Please wait or contact support.", label),
			OrderID:       record.OrderID,
			PaymentStatus: st,
		}
	}
}

func (u *paymentCallbackUC) activate(ctx context.Context, log *zerolog.Logger, req ReconcileRequest, record *model.PendingPayment, status adapter.TransactionStatus) *ReconcileOutcome {
	if !u.ledger.Activate(ctx, record.UserID, record.PlanName, record.OrderID, req.Params.OrderTrackingID) {
		err := &domain.LedgerActivationError{UserID: record.UserID, OrderID: record.OrderID, Plan: record.PlanName}
		log.Error().Err(err).Msg("payment collected but subscription not activated")
		if u.alerts != nil {
			u.alerts.Report(ctx, err, map[string]string{
				"order_id":    record.OrderID,
				"tracking_id": req.Params.OrderTrackingID,
				"user_id":     record.UserID,
			})
		}
		return &ReconcileOutcome{
			State:         model.CallbackFailed,
			Message:       "Failed to activate subscription. Please contact support with your order ID: " + record.OrderID,
			OrderID:       record.OrderID,
			PaymentStatus: model.PaymentStatusCompleted,
		}
	}

	msg := fmt.Sprintf("Your %s subscription is now active!", record.PlanName)
	result := &model.CallbackResult{
		Status:           model.CallbackResultSuccess,
		Message:          msg,
		ConfirmationCode: status.ConfirmationCode,
	}
	if err := u.results.PutSuccess(ctx, req.SessionID, req.Params.OrderTrackingID, result); err != nil {
		log.Warn().Err(err).Msg("failed to cache callback result")
	}
	if err := u.pending.Clear(ctx, req.SessionID); err != nil {
		log.Warn().Err(err).Msg("failed to clear pending payment")
	}
	metrics.AddPaymentRevenue(model.Currency, record.Amount)
	log.Info().Str("confirmation_code", status.ConfirmationCode).Msg("payment reconciled")

	return &ReconcileOutcome{
		State:            model.CallbackSuccess,
		Message:          msg,
		OrderID:          record.OrderID,
		ConfirmationCode: status.ConfirmationCode,
		PaymentStatus:    model.PaymentStatusCompleted,
	}
}

func (u *paymentCallbackUC) VerifyNotification(ctx context.Context, params CallbackParams) (*ReconcileOutcome, error) {
	defer logging.TraceDuration(u.log, "PaymentCallbackUC.VerifyNotification")()
	if params.OrderTrackingID == "" {
		return nil, fmt.Errorf("%w: missing OrderTrackingId", domain.ErrInvalidArgument)
	}
	status, err := u.verify(ctx, params.OrderTrackingID)
	if err != nil {
		return nil, err
	}
	logging.With(ctx, u.log).Info().
		Str("tracking_id", params.OrderTrackingID).
		Str("merchant_reference", params.OrderMerchantReference).
		Str("notification_type", params.OrderNotificationType).
		Str("status", string(status.Status())).
		Msg("gateway notification verified")
	return &ReconcileOutcome{
		State:            notificationState(status.Status()),
		ConfirmationCode: status.ConfirmationCode,
		PaymentStatus:    status.Status(),
	}, nil
}

func (u *paymentCallbackUC) verify(ctx context.Context, trackingID string) (adapter.TransactionStatus, error) {
	token, err := u.gateway.Authenticate(ctx)
	if err != nil {
		return adapter.TransactionStatus{}, &domain.VerificationError{TrackingID: trackingID, Err: err}
	}
	status, err := u.gateway.GetTransactionStatus(ctx, token.Token, trackingID)
	if err != nil {
		return adapter.TransactionStatus{}, &domain.VerificationError{TrackingID: trackingID, Err: err}
	}
	return status, nil
}

func notificationState(st model.PaymentStatus) model.CallbackState {
	switch st {
	case model.PaymentStatusCompleted:
		return model.CallbackSuccess
	case model.PaymentStatusFailed, model.PaymentStatusReversed:
		return model.CallbackFailed
	default:
		return model.CallbackPending
	}
}
