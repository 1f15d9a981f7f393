package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"video-subscription-storefront/internal/domain"
	"video-subscription-storefront/internal/domain/model"
	"video-subscription-storefront/internal/infra/logging"
)

type adminLoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if !s.decode(w, r, &req) {
		return
	}
	if !s.Admin.CheckPassword(req.Username, req.Password) {
		logging.With(r.Context(), s.log).Warn().Str("username", logging.Redact(req.Username, s.opts.Dev)).Msg("admin login rejected")
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	token, err := s.Admin.Mint(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Could not start session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleAdminLogout(w http.ResponseWriter, _ *http.Request) {
	s.Admin.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

type adminGrantRequest struct {
	Plan string `json:"plan"`
	Days int    `json:"days" validate:"omitempty,min=1"`
}

func (s *Server) handleAdminGrant(w http.ResponseWriter, r *http.Request) {
	var req adminGrantRequest
	if !s.decode(w, r, &req) {
		return
	}
	userID := chi.URLParam(r, "id")
	sub, err := s.Ledger.Grant(r.Context(), userID, req.Plan, req.Days, model.ActorAdmin)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, sub)
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrUnknownPlan):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logging.With(r.Context(), s.log).Error().Err(err).Str("user_id", userID).Msg("admin grant failed")
		writeError(w, http.StatusInternalServerError, "Failed to grant subscription")
	}
}

func (s *Server) handleAdminDeactivate(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	err := s.Ledger.Deactivate(r.Context(), userID, model.ActorAdmin)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logging.With(r.Context(), s.log).Error().Err(err).Str("user_id", userID).Msg("admin deactivate failed")
		writeError(w, http.StatusInternalServerError, "Failed to deactivate subscription")
	}
}

type adminStats struct {
	Users               int `json:"users"`
	ActiveSubscriptions int `json:"active_subscriptions"`
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	var st adminStats
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		n, err := s.Users.Count(ctx)
		st.Users = n
		return err
	})
	g.Go(func() error {
		n, err := s.Ledger.CountActive(ctx)
		st.ActiveSubscriptions = n
		return err
	})
	if err := g.Wait(); err != nil {
		logging.With(r.Context(), s.log).Error().Err(err).Msg("stats failed")
		writeError(w, http.StatusInternalServerError, "Failed to get totals")
		return
	}
	writeJSON(w, http.StatusOK, st)
}
