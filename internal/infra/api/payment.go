package api

import (
	"errors"
	"net/http"

	"video-subscription-storefront/internal/domain"
	"video-subscription-storefront/internal/infra/logging"
	"video-subscription-storefront/internal/usecase"
)

func callbackParams(r *http.Request) usecase.CallbackParams {
	q := r.URL.Query()
	return usecase.CallbackParams{
		OrderTrackingID:        q.Get("OrderTrackingId"),
		OrderMerchantReference: q.Get("OrderMerchantReference"),
		OrderNotificationType:  q.Get("OrderNotificationType"),
	}
}

func (s *Server) reconcile(r *http.Request) *usecase.ReconcileOutcome {
	ctx := r.Context()
	return s.Callback.Reconcile(ctx, usecase.ReconcileRequest{
		Params:    callbackParams(r),
		SessionID: logging.SessionID(ctx),
		Identity:  IdentityFrom(ctx),
	})
}

// handleCallbackPage is where the gateway sends the browser after payment.
func (s *Server) handleCallbackPage(w http.ResponseWriter, r *http.Request) {
	s.renderCallback(w, r, s.reconcile(r))
}

func (s *Server) handleCallbackJSON(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.reconcile(r))
}

type ipnAck struct {
	OrderNotificationType  string `json:"orderNotificationType"`
	OrderTrackingID        string `json:"orderTrackingId"`
	OrderMerchantReference string `json:"orderMerchantReference"`
	Status                 int    `json:"status"`
}

// handleIPN acknowledges server-to-server notifications. The gateway retries
// while the acknowledged status is not 200.
func (s *Server) handleIPN(w http.ResponseWriter, r *http.Request) {
	params := callbackParams(r)
	ack := ipnAck{
		OrderNotificationType:  params.OrderNotificationType,
		OrderTrackingID:        params.OrderTrackingID,
		OrderMerchantReference: params.OrderMerchantReference,
		Status:                 http.StatusOK,
	}
	_, err := s.Callback.VerifyNotification(r.Context(), params)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, ack)
	case errors.Is(err, domain.ErrInvalidArgument):
		ack.Status = http.StatusInternalServerError
		writeJSON(w, http.StatusBadRequest, ack)
	default:
		logging.With(r.Context(), s.log).Warn().Err(err).Str("tracking_id", params.OrderTrackingID).Msg("notification verification failed")
		ack.Status = http.StatusInternalServerError
		writeJSON(w, http.StatusOK, ack)
	}
}
