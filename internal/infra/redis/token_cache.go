package redis

import (
	"context"
	"encoding/json"
	"time"

	"video-subscription-storefront/internal/domain/model"
	"video-subscription-storefront/internal/domain/ports/repository"
)

var _ repository.GatewayTokenCache = (*GatewayTokenCache)(nil)

// GatewayTokenCache shares the gateway bearer token and notification ids
// between instances.
type GatewayTokenCache struct {
	client RedisClient
	prefix string
}

func NewGatewayTokenCache(client RedisClient, gateway string) *GatewayTokenCache {
	return &GatewayTokenCache{client: client, prefix: "gateway:" + gateway + ":"}
}

func (c *GatewayTokenCache) GetToken(ctx context.Context) (*model.GatewayToken, error) {
	data, err := c.client.Get(ctx, c.prefix+"token")
	if IsMiss(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var t model.GatewayToken
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *GatewayTokenCache) PutToken(ctx context.Context, t model.GatewayToken) error {
	ttl := time.Until(t.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+"token", data, ttl)
}

func (c *GatewayTokenCache) GetNotificationID(ctx context.Context, callbackURL string) (string, error) {
	id, err := c.client.Get(ctx, c.prefix+"ipn:"+callbackURL)
	if IsMiss(err) {
		return "", nil
	}
	return id, err
}

func (c *GatewayTokenCache) PutNotificationID(ctx context.Context, callbackURL, id string) error {
	return c.client.Set(ctx, c.prefix+"ipn:"+callbackURL, id, 0)
}
