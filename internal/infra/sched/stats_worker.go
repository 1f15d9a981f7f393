package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"video-subscription-storefront/internal/infra/metrics"
	"video-subscription-storefront/internal/usecase"
)

// PoolObserver exports connection pool gauges. The Postgres store is one.
type PoolObserver interface {
	ObservePool()
}

// StatsWorker periodically refreshes the subscriptions_active gauge.
type StatsWorker struct {
	interval time.Duration
	subUC    usecase.SubscriptionUseCase
	pool     PoolObserver
	log      *zerolog.Logger
}

// NewStatsWorker builds the worker. pool may be nil.
func NewStatsWorker(interval time.Duration, subUC usecase.SubscriptionUseCase, pool PoolObserver, logger *zerolog.Logger) *StatsWorker {
	compLog := logger.With().Str("component", "StatsWorker").Logger()
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &StatsWorker{
		interval: interval,
		subUC:    subUC,
		pool:     pool,
		log:      &compLog,
	}
}

func (w *StatsWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting stats worker")
	// Run once on startup, then on every tick
	w.refresh(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping stats worker")
			return ctx.Err()
		case <-ticker.C:
			w.refresh(ctx)
		}
	}
}

func (w *StatsWorker) refresh(ctx context.Context) {
	if w.pool != nil {
		w.pool.ObservePool()
	}
	n, err := w.subUC.CountActive(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("stats worker error")
		return
	}
	metrics.SetSubscriptionsActive(n)
	w.log.Debug().Int("active", n).Msg("active subscriptions counted")
}
