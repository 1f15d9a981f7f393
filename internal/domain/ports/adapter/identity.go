package adapter

import (
	"context"

	"video-subscription-storefront/internal/domain/model"
)

// IdentityProvider verifies credentials issued by the external sign-in provider.
type IdentityProvider interface {
	// Verify returns the identity carried by rawToken, or an error when the
	// token is missing, malformed or expired.
	Verify(ctx context.Context, rawToken string) (*model.Identity, error)
}

// Alerter forwards failures that need a human to an error tracker.
type Alerter interface {
	Report(ctx context.Context, err error, tags map[string]string)
}
