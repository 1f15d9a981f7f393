package api

import (
	"errors"
	"mime"
	"net/http"

	"video-subscription-storefront/internal/domain"
	"video-subscription-storefront/internal/infra/logging"
	red "video-subscription-storefront/internal/infra/redis"
)

const defaultDownloadFilename = "video.mp4"

type createDownloadRequest struct {
	ContentID string `json:"content_id" validate:"required"`
	Title     string `json:"title" validate:"required"`
	AssetURL  string `json:"asset_url" validate:"required,url"`
}

func (s *Server) handleCreateDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := IdentityFrom(ctx)
	if id == nil {
		writeError(w, http.StatusUnauthorized, "Please log in to download.")
		return
	}
	var req createDownloadRequest
	if !s.decode(w, r, &req) {
		return
	}
	log := logging.With(ctx, s.log)

	sub, err := s.Ledger.CheckActive(ctx, id.ID)
	if err != nil {
		log.Error().Err(err).Msg("subscription check failed")
		writeError(w, http.StatusInternalServerError, "Could not check your subscription.")
		return
	}
	if sub == nil {
		writeError(w, http.StatusForbidden, "An active subscription is required to download.")
		return
	}

	ok, err := s.DownloadLimits.Allow(ctx, red.DownloadGrantKey(id.ID))
	if err != nil {
		log.Warn().Err(err).Msg("download rate limiter unavailable")
	} else if !ok {
		writeError(w, http.StatusTooManyRequests, "Too many download requests. Please try again later.")
		return
	}

	link, err := s.Downloads.CreateGrant(ctx, req.ContentID, req.Title, req.AssetURL, id.ID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, link)
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "Invalid download URL.")
	default:
		log.Error().Err(err).Str("content_id", req.ContentID).Msg("create download link failed")
		writeError(w, http.StatusInternalServerError, "Failed to create download link.")
	}
}

func (s *Server) handleActiveDownload(w http.ResponseWriter, r *http.Request) {
	id := IdentityFrom(r.Context())
	if id == nil {
		writeError(w, http.StatusUnauthorized, "Please log in.")
		return
	}
	contentID := r.URL.Query().Get("content_id")
	if contentID == "" {
		writeError(w, http.StatusBadRequest, "content_id is required")
		return
	}
	has, err := s.Downloads.HasActiveGrant(r.Context(), contentID, id.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Could not check download links.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"active": has})
}

// handleDownload redeems a single-use token and sends the browser to the file.
// The attachment name comes from the grant; the filename query parameter is
// only a display hint and is never echoed.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		s.renderDownloadError(w, http.StatusBadRequest, "Invalid download link. No token provided.")
		return
	}

	res := s.Downloads.Redeem(r.Context(), token)
	if !res.Valid {
		s.renderDownloadError(w, grantStatus(res.Err.Kind), res.Err.UserMessage())
		return
	}
	filename := res.Filename
	if filename == "" {
		filename = defaultDownloadFilename
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	http.Redirect(w, r, s.Downloads.AssetURL(res.FileID), http.StatusFound)
}

func grantStatus(kind domain.GrantKind) int {
	switch kind {
	case domain.GrantUsed, domain.GrantExpired:
		return http.StatusGone
	case domain.GrantFailure:
		return http.StatusInternalServerError
	default:
		return http.StatusNotFound
	}
}
