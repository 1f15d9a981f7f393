// Package alerting reports failures that need a human, such as payments
// collected without a recorded subscription.
package alerting

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"

	"video-subscription-storefront/internal/config"
	"video-subscription-storefront/internal/domain/ports/adapter"
	"video-subscription-storefront/internal/infra/logging"
)

var (
	_ adapter.Alerter = (*SentryReporter)(nil)
	_ adapter.Alerter = (*LogReporter)(nil)
)

// SentryReporter sends alerts to Sentry and mirrors them to the log.
type SentryReporter struct {
	hub *sentry.Hub
	log *zerolog.Logger
}

// NewSentryReporter initialises the Sentry client. With an empty DSN it
// returns a LogReporter.
func NewSentryReporter(cfg config.SentryConfig, logger *zerolog.Logger) (adapter.Alerter, func(), error) {
	l := logger.With().Str("component", "Alerting").Logger()
	if cfg.DSN == "" {
		return &LogReporter{log: &l}, func() {}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		SampleRate:  cfg.SampleRate,
	})
	if err != nil {
		return nil, nil, err
	}
	flush := func() { sentry.Flush(2 * time.Second) }
	return &SentryReporter{hub: sentry.CurrentHub(), log: &l}, flush, nil
}

func (s *SentryReporter) Report(ctx context.Context, err error, tags map[string]string) {
	logging.With(ctx, s.log).Error().Err(err).Fields(tagFields(tags)).Msg("alert")
	hub := s.hub.Clone()
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		if id := logging.TraceID(ctx); id != "" {
			scope.SetTag("trace_id", id)
		}
		hub.CaptureException(err)
	})
}

// LogReporter only logs. Used when no DSN is configured.
type LogReporter struct {
	log *zerolog.Logger
}

func NewLogReporter(logger *zerolog.Logger) *LogReporter {
	return &LogReporter{log: logger}
}

func (r *LogReporter) Report(ctx context.Context, err error, tags map[string]string) {
	logging.With(ctx, r.log).Error().Err(err).Fields(tagFields(tags)).Msg("alert")
}

func tagFields(tags map[string]string) map[string]any {
	out := make(map[string]any, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}
