package repository

import (
	"context"

	"video-subscription-storefront/internal/domain/model"
)

// PendingPaymentStore keeps at most one pending payment per browsing session.
type PendingPaymentStore interface {
	Save(ctx context.Context, sessionID string, p *model.PendingPayment) error
	// Get returns (nil, nil) when the session has no pending payment.
	Get(ctx context.Context, sessionID string) (*model.PendingPayment, error)
	Clear(ctx context.Context, sessionID string) error
}

// CallbackResultCache latches confirmed payments per session and tracking id.
// Only successes are ever written.
type CallbackResultCache interface {
	// Get returns (nil, nil) when no success was recorded.
	Get(ctx context.Context, sessionID, trackingID string) (*model.CallbackResult, error)
	PutSuccess(ctx context.Context, sessionID, trackingID string, r *model.CallbackResult) error
}

// ClaimSet guards a key so that only one holder works on it at a time.
type ClaimSet interface {
	// Claim returns ok=false when another holder owns key. release gives it back.
	Claim(ctx context.Context, key string) (release func(), ok bool, err error)
}

// GatewayTokenCache keeps the gateway bearer token and notification ids.
type GatewayTokenCache interface {
	// GetToken returns (nil, nil) when nothing is cached.
	GetToken(ctx context.Context) (*model.GatewayToken, error)
	PutToken(ctx context.Context, t model.GatewayToken) error
	// GetNotificationID returns "" when the callback URL was never registered.
	GetNotificationID(ctx context.Context, callbackURL string) (string, error)
	PutNotificationID(ctx context.Context, callbackURL, id string) error
}

// RateLimiter counts events per key inside fixed windows.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}
