// File: internal/infra/redis/claim_set.go
package redis

import (
	"context"
	"time"

	"github.com/google/uuid"

	"video-subscription-storefront/internal/domain/ports/repository"
)

var _ repository.ClaimSet = (*ClaimSet)(nil)

// ClaimSet hands out short-lived exclusive claims on keys. A claim expires on
// its own after ttl so a crashed holder cannot block the key forever.
type ClaimSet struct {
	client RedisClient
	prefix string
	ttl    time.Duration
}

func NewClaimSet(client RedisClient, prefix string, ttl time.Duration) *ClaimSet {
	return &ClaimSet{client: client, prefix: prefix, ttl: ttl}
}

func (s *ClaimSet) Claim(ctx context.Context, key string) (func(), bool, error) {
	k := s.prefix + key
	token := uuid.NewString()
	ok, err := s.client.SetNX(ctx, k, token, s.ttl)
	if err != nil {
		return func() {}, false, err
	}
	if !ok {
		return func() {}, false, nil
	}
	release := func() {
		// the request context may already be cancelled
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = s.client.CompareAndDelete(rctx, k, token)
	}
	return release, true, nil
}
