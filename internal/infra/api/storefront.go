package api

import (
	"errors"
	"net/http"

	"video-subscription-storefront/internal/domain"
	"video-subscription-storefront/internal/domain/model"
	"video-subscription-storefront/internal/infra/logging"
	"video-subscription-storefront/internal/usecase"
)

func (s *Server) handlePlans(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"currency": model.Currency,
		"plans":    model.PurchasablePlans(),
	})
}

// handleEnsureProfile is called by the storefront right after sign-in.
func (s *Server) handleEnsureProfile(w http.ResponseWriter, r *http.Request) {
	id := IdentityFrom(r.Context())
	if id == nil {
		writeError(w, http.StatusUnauthorized, "Please log in.")
		return
	}
	u, err := s.Users.EnsureProfile(r.Context(), id)
	if err != nil {
		logging.With(r.Context(), s.log).Error().Err(err).Msg("ensure profile failed")
		writeError(w, http.StatusInternalServerError, "Could not load your profile.")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleMySubscription(w http.ResponseWriter, r *http.Request) {
	id := IdentityFrom(r.Context())
	if id == nil {
		writeError(w, http.StatusUnauthorized, "Please log in.")
		return
	}
	sub, err := s.Ledger.CheckActive(r.Context(), id.ID)
	if err != nil {
		logging.With(r.Context(), s.log).Error().Err(err).Msg("subscription check failed")
		writeError(w, http.StatusInternalServerError, "Could not check your subscription.")
		return
	}
	writeJSON(w, http.StatusOK, SubscriptionStatus{
		Active:       sub != nil,
		StatusText:   model.StatusText(sub, s.Ledger.Now()),
		Subscription: sub,
	})
}

type checkoutRequest struct {
	Plan        string `json:"plan" validate:"required"`
	PhoneNumber string `json:"phone_number" validate:"omitempty,min=9,max=16"`
}

type checkoutResponse struct {
	*usecase.CheckoutResult
	RedirectAfterMS int64 `json:"redirect_after_ms,omitempty"`
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	res, err := s.Checkout.SelectPlan(ctx, usecase.CheckoutRequest{
		Identity:    IdentityFrom(ctx),
		SessionID:   logging.SessionID(ctx),
		PlanName:    req.Plan,
		PhoneNumber: req.PhoneNumber,
	})
	code := http.StatusOK
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrLoginRequired):
		code = http.StatusUnauthorized
	case errors.Is(err, domain.ErrUnknownPlan), errors.Is(err, domain.ErrPlanNotPurchasable):
		code = http.StatusBadRequest
	default:
		code = http.StatusBadGateway
	}
	writeJSON(w, code, checkoutResponse{
		CheckoutResult:  res,
		RedirectAfterMS: res.RedirectAfter.Milliseconds(),
	})
}
