// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"video-subscription-storefront/internal/config"
	"video-subscription-storefront/internal/domain/ports/adapter"
	"video-subscription-storefront/internal/domain/ports/repository"
	"video-subscription-storefront/internal/infra/adapters/identity"
	payAdapters "video-subscription-storefront/internal/infra/adapters/payment"
	"video-subscription-storefront/internal/infra/alerting"
	"video-subscription-storefront/internal/infra/api"
	"video-subscription-storefront/internal/infra/db/memory"
	pg "video-subscription-storefront/internal/infra/db/postgres"
	"video-subscription-storefront/internal/infra/logging"
	"video-subscription-storefront/internal/infra/metrics"
	red "video-subscription-storefront/internal/infra/redis"
	"video-subscription-storefront/internal/infra/sched"
	"video-subscription-storefront/internal/infra/security"
	"video-subscription-storefront/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("config")
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("storefront stopped")
	}
}

func run(cfg *config.Config, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Alerting ----
	alerts, flush, err := alerting.NewSentryReporter(cfg.Sentry, logger)
	if err != nil {
		return err
	}
	defer flush()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	// ---- Encryption ----
	encSvc, err := security.NewEncryptionService(cfg.Security.EncryptionKey)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	// ---- Document store ----
	var (
		docs repository.DocumentStore
		pool sched.PoolObserver
	)
	if cfg.Database.URL == "" {
		logger.Warn().Msg("database.url not set; using the in-memory document store")
		docs = memory.NewDocumentStore()
	} else {
		if cfg.Database.RunMigration {
			if err := pg.Migrate(cfg.Database.URL); err != nil {
				return err
			}
			logger.Info().Msg("migrations applied")
		}
		pgPool, err := pg.Connect(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pgPool.Close()
		store := pg.NewDocumentStore(pgPool, logger)
		g.Go(func() error { return store.Listen(ctx) })
		docs = pg.NewDocumentCacheDecorator(store, redisClient, cfg.Redis.TTL, logger)
		pool = store
	}

	// ---- Payment gateway ----
	var gateway adapter.PaymentGateway
	if cfg.Payment.Pesapal.ConsumerKey == "" && cfg.Runtime.Dev {
		logger.Warn().Msg("pesapal credentials not set; using the noop gateway")
		gateway = payAdapters.NewNoopPaymentGateway()
	} else {
		pesapal, err := payAdapters.NewPesapalGateway(payAdapters.PesapalOptions{
			ConsumerKey:       cfg.Payment.Pesapal.ConsumerKey,
			ConsumerSecret:    cfg.Payment.Pesapal.ConsumerSecret,
			Production:        cfg.Payment.Pesapal.Environment == "production",
			BaseURL:           cfg.Payment.Pesapal.BaseURL,
			Timeout:           cfg.Payment.Pesapal.Timeout,
			RequestsPerSecond: cfg.Payment.Pesapal.RequestsPerSecond,
		})
		if err != nil {
			return err
		}
		gateway = payAdapters.NewCachingGateway(pesapal, red.NewGatewayTokenCache(redisClient, pesapal.Name()), logger)
	}

	// ---- Session state ----
	pending := red.NewPendingPaymentStore(redisClient, encSvc, cfg.Checkout.PendingTTL)
	results := red.NewCallbackResultCache(redisClient, cfg.Callback.ResultTTL)
	claims := red.NewClaimSet(redisClient, "callback_claim:", cfg.Callback.ClaimTTL)
	downloadLimits := red.NewRateLimiter(redisClient, "rl:downloads:", cfg.Download.RateLimit, cfg.Download.RateWindow)

	// ---- Use cases ----
	ledger := usecase.NewSubscriptionUseCase(docs, logger)
	users := usecase.NewUserUseCase(docs, logger)
	checkout := usecase.NewCheckoutUseCase(gateway, pending, usecase.CheckoutConfig{
		Brand:         cfg.Checkout.Brand,
		CallbackURL:   cfg.CallbackURL(),
		RedirectDelay: cfg.Checkout.RedirectDelay,
	}, logger)
	callback := usecase.NewPaymentCallbackUseCase(gateway, ledger, pending, results, claims, alerts, cfg.Callback.SettleDelay, logger)
	downloads := usecase.NewDownloadUseCase(docs, cfg.HTTP.PublicBaseURL, logger)

	// ---- HTTP ----
	srv := api.NewServer(api.Deps{
		Checkout:       checkout,
		Callback:       callback,
		Ledger:         ledger,
		Users:          users,
		Downloads:      downloads,
		Identity:       identity.NewJWTProvider(cfg.Auth.JWTSecret, cfg.Auth.CookieName),
		Admin:          api.NewAuthManager(cfg.Admin.Username, cfg.Admin.PasswordHash, cfg.Admin.JWTSecret, cfg.HTTP.SecureCookies, cfg.Admin.SessionTTL),
		DownloadLimits: downloadLimits,
	}, api.Options{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		SecureCookies:  cfg.HTTP.SecureCookies,
		SessionTTL:     cfg.HTTP.SessionTTL,
		CallbackPath:   cfg.Checkout.CallbackPath,
		Dev:            cfg.Runtime.Dev,
	}, logger)

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Str("callback", cfg.CallbackURL()).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	// ---- Stats worker ----
	worker := sched.NewStatsWorker(cfg.Scheduler.StatsInterval, ledger, pool, logger)
	g.Go(func() error {
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	return g.Wait()
}
