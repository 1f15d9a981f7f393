package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"video-subscription-storefront/internal/domain/model"
	"video-subscription-storefront/internal/domain/ports/repository"
	"video-subscription-storefront/internal/infra/security"
)

var _ repository.PendingPaymentStore = (*PendingPaymentStore)(nil)

// PendingPaymentStore keeps the pending payment of each browsing session,
// encrypted at rest and bound to its session key.
type PendingPaymentStore struct {
	client RedisClient
	enc    *security.EncryptionService
	ttl    time.Duration
}

func NewPendingPaymentStore(client RedisClient, enc *security.EncryptionService, ttl time.Duration) *PendingPaymentStore {
	return &PendingPaymentStore{
		client: client,
		enc:    enc,
		ttl:    ttl,
	}
}

func (s *PendingPaymentStore) key(sessionID string) string {
	return fmt.Sprintf("pending_payment:%s", sessionID)
}

func (s *PendingPaymentStore) Save(ctx context.Context, sessionID string, p *model.PendingPayment) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	key := s.key(sessionID)
	sealed, err := s.enc.Seal(data, key)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, sealed, s.ttl)
}

func (s *PendingPaymentStore) Get(ctx context.Context, sessionID string) (*model.PendingPayment, error) {
	key := s.key(sessionID)
	sealed, err := s.client.Get(ctx, key)
	if IsMiss(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	data, err := s.enc.Open(sealed, key)
	if err != nil {
		return nil, fmt.Errorf("pending payment: %w", err)
	}
	var p model.PendingPayment
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PendingPaymentStore) Clear(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.key(sessionID))
}
