package redis

import (
	"context"
	"fmt"
	"time"

	"video-subscription-storefront/internal/domain/ports/repository"
)

var _ repository.RateLimiter = (*RateLimiter)(nil)

// RateLimiter admits at most limit events per key in each fixed window. The
// window starts at the first event and the counter expires with it.
type RateLimiter struct {
	client RedisClient
	prefix string
	limit  int64
	window time.Duration
}

func NewRateLimiter(client RedisClient, prefix string, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{client: client, prefix: prefix, limit: int64(limit), window: window}
}

func (r *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	n, err := r.client.IncrWindow(ctx, r.prefix+key, r.window)
	if err != nil {
		return false, fmt.Errorf("rate limit %s: %w", key, err)
	}
	return n <= r.limit, nil
}

// DownloadGrantKey scopes download link creation to one user.
func DownloadGrantKey(userID string) string {
	return "user:" + userID
}
