//go:build !integration

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-subscription-storefront/internal/config"
	"video-subscription-storefront/internal/domain/model"
	"video-subscription-storefront/internal/infra/security"
)

func setupTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(func() { mr.Close() })

	cli, err := NewClient(context.Background(), &config.RedisConfig{URL: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cli.Close() })
	return cli, mr
}

func TestClient_CompareAndDelete(t *testing.T) {
	ctx := context.Background()
	cli, _ := setupTestClient(t)

	require.NoError(t, cli.Set(ctx, "k", "mine", time.Minute))

	ok, err := cli.CompareAndDelete(ctx, "k", "theirs")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = cli.CompareAndDelete(ctx, "k", "mine")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = cli.Get(ctx, "k")
	assert.True(t, IsMiss(err))
}

func TestClaimSet(t *testing.T) {
	ctx := context.Background()
	cli, mr := setupTestClient(t)
	claims := NewClaimSet(cli, "claim:", time.Minute)

	release, ok, err := claims.Claim(ctx, "trk-1")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = claims.Claim(ctx, "trk-1")
	require.NoError(t, err)
	assert.False(t, ok, "a held claim must not be granted twice")

	_, ok, _ = claims.Claim(ctx, "trk-2")
	assert.True(t, ok, "claims are per key")

	release()
	_, ok, _ = claims.Claim(ctx, "trk-1")
	assert.True(t, ok, "a released claim can be taken again")

	mr.FastForward(2 * time.Minute)
	_, ok, _ = claims.Claim(ctx, "trk-2")
	assert.True(t, ok, "claims expire")
}

func TestClaimSet_StaleRelease(t *testing.T) {
	ctx := context.Background()
	cli, mr := setupTestClient(t)
	claims := NewClaimSet(cli, "claim:", time.Minute)

	staleRelease, _, _ := claims.Claim(ctx, "trk")
	mr.FastForward(2 * time.Minute)
	_, ok, _ := claims.Claim(ctx, "trk")
	require.True(t, ok)

	staleRelease()

	_, ok, _ = claims.Claim(ctx, "trk")
	assert.False(t, ok, "an expired holder must not release the new holder's claim")
}

func TestRateLimiter(t *testing.T) {
	ctx := context.Background()
	cli, mr := setupTestClient(t)
	rl := NewRateLimiter(cli, "rl:downloads:", 2, time.Hour)

	for i := 0; i < 2; i++ {
		ok, err := rl.Allow(ctx, DownloadGrantKey("u1"))
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := rl.Allow(ctx, DownloadGrantKey("u1"))
	assert.False(t, ok)
	assert.Equal(t, time.Hour, mr.TTL("rl:downloads:user:u1"), "the window starts at the first hit")

	require.NoError(t, mr.Set("rl:downloads:user:u3", "5"))
	ok, _ = rl.Allow(ctx, DownloadGrantKey("u3"))
	assert.False(t, ok)
	assert.Equal(t, time.Hour, mr.TTL("rl:downloads:user:u3"), "a counter without expiry gets one")

	ok, _ = rl.Allow(ctx, DownloadGrantKey("u2"))
	assert.True(t, ok)

	mr.FastForward(time.Hour + time.Second)
	ok, _ = rl.Allow(ctx, DownloadGrantKey("u1"))
	assert.True(t, ok, "window resets")
}

func TestPendingPaymentStore(t *testing.T) {
	ctx := context.Background()
	cli, mr := setupTestClient(t)
	enc, err := security.NewEncryptionService("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	store := NewPendingPaymentStore(cli, enc, time.Hour)

	got, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	p := &model.PendingPayment{
		OrderID:         "LUA-1",
		OrderTrackingID: "trk-1",
		UserID:          "u1",
		PlanName:        "1 Week",
		PlanDays:        7,
		Amount:          10000,
		PhoneNumber:     "+256700000000",
		CreatedAt:       time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Save(ctx, "sess-1", p))

	raw, err := mr.Get("pending_payment:sess-1")
	require.NoError(t, err)
	assert.NotContains(t, raw, "+256700000000", "record must be encrypted at rest")

	got, err = store.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, p, got)

	other, _ := store.Get(ctx, "sess-2")
	assert.Nil(t, other, "records are scoped to their session")

	require.NoError(t, mr.Set("pending_payment:sess-2", raw))
	_, err = store.Get(ctx, "sess-2")
	assert.ErrorIs(t, err, security.ErrTampered, "a record copied to another session does not open")

	require.NoError(t, store.Clear(ctx, "sess-1"))
	got, _ = store.Get(ctx, "sess-1")
	assert.Nil(t, got)
}

func TestCallbackResultCache(t *testing.T) {
	ctx := context.Background()
	cli, _ := setupTestClient(t)
	cache := NewCallbackResultCache(cli, time.Hour)

	err := cache.PutSuccess(ctx, "s", "trk", &model.CallbackResult{Status: "failed"})
	assert.Error(t, err, "only successes are latched")

	res := &model.CallbackResult{Status: model.CallbackResultSuccess, Message: "Your 1 Week subscription is now active!", ConfirmationCode: "C1"}
	require.NoError(t, cache.PutSuccess(ctx, "s", "trk", res))

	got, err := cache.Get(ctx, "s", "trk")
	require.NoError(t, err)
	assert.Equal(t, res, got)

	got, err = cache.Get(ctx, "other", "trk")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGatewayTokenCache(t *testing.T) {
	ctx := context.Background()
	cli, mr := setupTestClient(t)
	cache := NewGatewayTokenCache(cli, "pesapal")

	tok, err := cache.GetToken(ctx)
	require.NoError(t, err)
	assert.Nil(t, tok)

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	require.NoError(t, cache.PutToken(ctx, model.GatewayToken{Token: "t1", ExpiresAt: exp}))
	tok, err = cache.GetToken(ctx)
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.Equal(t, "t1", tok.Token)
	assert.True(t, tok.ExpiresAt.Equal(exp))

	mr.FastForward(2 * time.Hour)
	tok, _ = cache.GetToken(ctx)
	assert.Nil(t, tok, "token entries expire with the token")

	id, err := cache.GetNotificationID(ctx, "https://shop.example.test/payment/callback")
	require.NoError(t, err)
	assert.Empty(t, id)
	require.NoError(t, cache.PutNotificationID(ctx, "https://shop.example.test/payment/callback", "ipn-1"))
	id, _ = cache.GetNotificationID(ctx, "https://shop.example.test/payment/callback")
	assert.Equal(t, "ipn-1", id)
}
