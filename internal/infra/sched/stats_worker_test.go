//go:build !integration

package sched

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"video-subscription-storefront/internal/infra/metrics"
	"video-subscription-storefront/internal/usecase"
)

type mockLedger struct {
	usecase.SubscriptionUseCase
	CountActiveFunc func(ctx context.Context) (int, error)
}

func (m *mockLedger) CountActive(ctx context.Context) (int, error) { return m.CountActiveFunc(ctx) }

type countingPool struct{ n int32 }

func (p *countingPool) ObservePool() { atomic.AddInt32(&p.n, 1) }

func activeGauge(t *testing.T) float64 {
	t.Helper()
	metrics.MustRegister()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() == "subscriptions_active" {
			return f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatal("subscriptions_active not registered")
	return 0
}

func TestStatsWorker(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("should publish the active count on start", func(t *testing.T) {
		// --- Arrange ---
		ledger := &mockLedger{CountActiveFunc: func(context.Context) (int, error) { return 7, nil }}
		pool := &countingPool{}
		w := NewStatsWorker(time.Hour, ledger, pool, &logger)
		ctx, cancel := context.WithCancel(context.Background())

		// --- Act ---
		done := make(chan error)
		go func() { done <- w.Run(ctx) }()
		deadline := time.Now().Add(2 * time.Second)
		for atomic.LoadInt32(&pool.n) == 0 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		time.Sleep(20 * time.Millisecond)
		cancel()

		// --- Assert ---
		if err := <-done; !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if got := activeGauge(t); got != 7 {
			t.Errorf("expected gauge 7, got %v", got)
		}
	})

	t.Run("should keep the previous value on error", func(t *testing.T) {
		metrics.SetSubscriptionsActive(3)
		ledger := &mockLedger{CountActiveFunc: func(context.Context) (int, error) { return 0, errors.New("store down") }}
		w := NewStatsWorker(time.Hour, ledger, nil, &logger)

		w.refresh(context.Background())

		if got := activeGauge(t); got != 3 {
			t.Errorf("expected gauge 3, got %v", got)
		}
	})
}
