//go:build integration

package postgres

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-subscription-storefront/internal/domain"
	"video-subscription-storefront/internal/domain/ports/repository"
)

func newTestStore(t *testing.T) *DocumentStore {
	t.Helper()
	cleanup(t)
	logger := zerolog.Nop()
	return NewDocumentStore(testPool, &logger)
}

func TestDocumentStore_GetSetCreate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Get(ctx, "users/u1")
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.Set(ctx, "users/u1", repository.Document{"email": "ada@example.test", "n": 1}))
	doc, err := s.Get(ctx, "users/u1")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.test", doc["email"])
	assert.Equal(t, float64(1), doc["n"])

	created, err := s.Create(ctx, "users/u1", repository.Document{"email": "other@example.test"})
	require.NoError(t, err)
	assert.False(t, created)

	created, err = s.Create(ctx, "users/u2", repository.Document{"email": "bob@example.test"})
	require.NoError(t, err)
	assert.True(t, created)

	require.ErrorIs(t, s.Set(ctx, "users", repository.Document{}), domain.ErrInvalidArgument)
}

func TestDocumentStore_MergeUpdate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.MergeUpdate(ctx, "users/u1", repository.Document{
		"email":        "ada@example.test",
		"subscription": map[string]any{"plan": "1 Month", "isActive": true},
	}))
	require.NoError(t, s.MergeUpdate(ctx, "users/u1", repository.Document{"subscription.isActive": false}))

	doc, err := s.Get(ctx, "users/u1")
	require.NoError(t, err)
	sub := doc["subscription"].(map[string]any)
	assert.Equal(t, "1 Month", sub["plan"])
	assert.Equal(t, false, sub["isActive"])
	assert.Equal(t, "ada@example.test", doc["email"])
}

func TestDocumentStore_CompareAndMerge(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.CompareAndMerge(ctx, "downloadLinks/missing", "used", false, repository.Document{"used": true})
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.Set(ctx, "downloadLinks/t1", repository.Document{"used": false}))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.CompareAndMerge(ctx, "downloadLinks/t1", "used", false, repository.Document{"used": true})
			if err == nil && ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

func TestDocumentStore_QueryAndList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Set(ctx, "downloadLinks/a", repository.Document{"userId": "u1", "used": false}))
	require.NoError(t, s.Set(ctx, "downloadLinks/b", repository.Document{"userId": "u2", "used": false}))
	require.NoError(t, s.Set(ctx, "users/u1", repository.Document{"userId": "u1"}))

	got, err := s.Query(ctx, "downloadLinks", "userId", "u1")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Contains(t, got, "downloadLinks/a")

	all, err := s.List(ctx, "downloadLinks")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestDocumentStore_Subscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newTestStore(t)
	go func() { _ = s.Listen(ctx) }()

	changes := make(chan repository.Document, 4)
	stop, err := s.Subscribe(ctx, "users/u1", func(d repository.Document) { changes <- d })
	require.NoError(t, err)
	defer stop()

	select {
	case d := <-changes:
		assert.Nil(t, d, "snapshot of a missing document is nil")
	case <-time.After(time.Second):
		t.Fatal("no snapshot")
	}

	// The listener needs its LISTEN in place before the write.
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, s.MergeUpdate(ctx, "users/u1", repository.Document{"subscription.isActive": true}))

	select {
	case d := <-changes:
		require.NotNil(t, d)
		assert.Equal(t, true, d["subscription"].(map[string]any)["isActive"])
	case <-time.After(5 * time.Second):
		t.Fatal("change not delivered")
	}
}
