package payment

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"video-subscription-storefront/internal/domain/model"
	"video-subscription-storefront/internal/domain/ports/adapter"
	"video-subscription-storefront/internal/domain/ports/repository"
	"video-subscription-storefront/internal/infra/metrics"
)

var _ adapter.PaymentGateway = (*CachingGateway)(nil)

// TokenRefreshMargin is how long before expiry a cached token is replaced.
const TokenRefreshMargin = 5 * time.Minute

// CachingGateway reuses the bearer token until shortly before it expires and
// remembers the notification id of every registered callback URL.
// Cache failures fall through to the wrapped gateway.
type CachingGateway struct {
	next  adapter.PaymentGateway
	cache repository.GatewayTokenCache
	now   func() time.Time
	log   *zerolog.Logger
}

func NewCachingGateway(next adapter.PaymentGateway, cache repository.GatewayTokenCache, logger *zerolog.Logger) *CachingGateway {
	l := logger.With().Str("component", "CachingGateway").Logger()
	return &CachingGateway{next: next, cache: cache, now: time.Now, log: &l}
}

func (g *CachingGateway) Name() string { return g.next.Name() }

func (g *CachingGateway) Authenticate(ctx context.Context) (model.GatewayToken, error) {
	cached, err := g.cache.GetToken(ctx)
	if err != nil {
		g.log.Warn().Err(err).Msg("token cache read failed")
	}
	if cached.ValidFor(g.now(), TokenRefreshMargin) {
		metrics.IncCacheRequest("gateway_token", metrics.CacheHit)
		return *cached, nil
	}
	metrics.IncCacheRequest("gateway_token", metrics.CacheMiss)

	tok, err := g.next.Authenticate(ctx)
	if err != nil {
		return model.GatewayToken{}, err
	}
	if err := g.cache.PutToken(ctx, tok); err != nil {
		g.log.Warn().Err(err).Msg("token cache write failed")
	}
	return tok, nil
}

func (g *CachingGateway) RegisterCallback(ctx context.Context, token, callbackURL string) (string, error) {
	id, err := g.cache.GetNotificationID(ctx, callbackURL)
	if err != nil {
		g.log.Warn().Err(err).Msg("notification id cache read failed")
	}
	if id != "" {
		metrics.IncCacheRequest("gateway_ipn", metrics.CacheHit)
		return id, nil
	}
	metrics.IncCacheRequest("gateway_ipn", metrics.CacheMiss)

	id, err = g.next.RegisterCallback(ctx, token, callbackURL)
	if err != nil {
		return "", err
	}
	if err := g.cache.PutNotificationID(ctx, callbackURL, id); err != nil {
		g.log.Warn().Err(err).Msg("notification id cache write failed")
	}
	return id, nil
}

func (g *CachingGateway) SubmitOrder(ctx context.Context, token string, order adapter.OrderRequest) (adapter.OrderResponse, error) {
	return g.next.SubmitOrder(ctx, token, order)
}

func (g *CachingGateway) GetTransactionStatus(ctx context.Context, token, trackingID string) (adapter.TransactionStatus, error) {
	return g.next.GetTransactionStatus(ctx, token, trackingID)
}
