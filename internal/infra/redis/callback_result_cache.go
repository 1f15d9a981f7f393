package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"video-subscription-storefront/internal/domain/model"
	"video-subscription-storefront/internal/domain/ports/repository"
)

var _ repository.CallbackResultCache = (*CallbackResultCache)(nil)

// CallbackResultCache latches confirmed payments per session and tracking id.
type CallbackResultCache struct {
	client RedisClient
	ttl    time.Duration
}

func NewCallbackResultCache(client RedisClient, ttl time.Duration) *CallbackResultCache {
	return &CallbackResultCache{client: client, ttl: ttl}
}

func (c *CallbackResultCache) key(sessionID, trackingID string) string {
	return fmt.Sprintf("callback_result:%s:%s", sessionID, trackingID)
}

func (c *CallbackResultCache) Get(ctx context.Context, sessionID, trackingID string) (*model.CallbackResult, error) {
	data, err := c.client.Get(ctx, c.key(sessionID, trackingID))
	if IsMiss(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var r model.CallbackResult
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *CallbackResultCache) PutSuccess(ctx context.Context, sessionID, trackingID string, r *model.CallbackResult) error {
	if r == nil || r.Status != model.CallbackResultSuccess {
		return fmt.Errorf("only successful results are cached")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(sessionID, trackingID), data, c.ttl)
}
