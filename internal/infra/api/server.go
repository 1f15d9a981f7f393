// Package api is the storefront HTTP surface: catalog, checkout, payment
// callback, download links and the administrator endpoints.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"video-subscription-storefront/internal/domain/ports/repository"
	"video-subscription-storefront/internal/usecase"
)

// Deps are the collaborators the HTTP layer routes to.
type Deps struct {
	Checkout  usecase.CheckoutUseCase
	Callback  usecase.PaymentCallbackUseCase
	Ledger    usecase.SubscriptionUseCase
	Users     usecase.UserUseCase
	Downloads usecase.DownloadUseCase

	Identity       IdentityResolver
	Admin          *AuthManager
	DownloadLimits repository.RateLimiter
}

// Options are the transport settings.
type Options struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
	SecureCookies  bool
	SessionTTL     time.Duration
	CallbackPath   string
	HomeURL        string
	// Dev logs credentials unredacted.
	Dev bool
}

type Server struct {
	Deps
	opts     Options
	hub      *SubscriptionHub
	validate *validator.Validate
	homeURL  string
	log      *zerolog.Logger
}

func NewServer(deps Deps, opts Options, logger *zerolog.Logger) *Server {
	if opts.CallbackPath == "" {
		opts.CallbackPath = "/payment/callback"
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 30 * 24 * time.Hour
	}
	if opts.HomeURL == "" {
		opts.HomeURL = "/"
	}
	l := logger.With().Str("component", "HTTP").Logger()
	return &Server{
		Deps:     deps,
		opts:     opts,
		hub:      NewSubscriptionHub(deps.Users, deps.Ledger.Now, &l),
		validate: validator.New(),
		homeURL:  opts.HomeURL,
		log:      &l,
	}
}

// Handler builds the router wrapped in the request middleware chain.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Long-lived stream; no request timeout.
	r.Get("/api/subscription/events", s.handleSubscriptionEvents)

	r.Group(func(r chi.Router) {
		r.Use(Timeout(s.opts.RequestTimeout))

		r.Get("/api/plans", s.handlePlans)
		r.Post("/api/me/profile", s.handleEnsureProfile)
		r.Get("/api/me/subscription", s.handleMySubscription)
		r.Post("/api/checkout", s.handleCheckout)

		r.Get(s.opts.CallbackPath, s.handleCallbackPage)
		r.Get("/api/payment/callback", s.handleCallbackJSON)
		r.Get("/api/payment/ipn", s.handleIPN)

		r.Post("/api/downloads", s.handleCreateDownload)
		r.Get("/api/downloads/active", s.handleActiveDownload)
		r.Get("/api/download", s.handleDownload)

		r.Route("/api/admin", func(r chi.Router) {
			r.Post("/login", s.handleAdminLogin)
			r.Post("/logout", s.handleAdminLogout)
			r.Group(func(r chi.Router) {
				r.Use(s.Admin.RequireAdmin)
				r.Post("/users/{id}/subscription", s.handleAdminGrant)
				r.Delete("/users/{id}/subscription", s.handleAdminDeactivate)
				r.Get("/stats", s.handleAdminStats)
			})
		})
	})

	return Chain(r,
		TraceID(s.log),
		Session(s.opts.SecureCookies, s.opts.SessionTTL),
		Identity(s.Identity),
		RequestLog(s.log),
		Recover(s.log),
	)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

// decode reads a JSON body into dst and validates it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return false
	}
	return true
}
