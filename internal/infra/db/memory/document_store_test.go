//go:build !integration

package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-subscription-storefront/internal/domain"
	"video-subscription-storefront/internal/domain/ports/repository"
)

func TestDocumentStore_GetSet(t *testing.T) {
	ctx := context.Background()
	s := NewDocumentStore()

	_, err := s.Get(ctx, "users/u1")
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.Set(ctx, "users/u1", repository.Document{"name": "Ada"}))
	doc, err := s.Get(ctx, "users/u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", doc["name"])

	doc["name"] = "mutated"
	again, _ := s.Get(ctx, "users/u1")
	assert.Equal(t, "Ada", again["name"], "returned documents are copies")

	require.ErrorIs(t, s.Set(ctx, "users", repository.Document{}), domain.ErrInvalidArgument)
}

func TestDocumentStore_Create(t *testing.T) {
	ctx := context.Background()
	s := NewDocumentStore()

	created, err := s.Create(ctx, "subscriptions/u1_o1", repository.Document{"plan": "1 Week"})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.Create(ctx, "subscriptions/u1_o1", repository.Document{"plan": "Lifetime"})
	require.NoError(t, err)
	assert.False(t, created)

	doc, _ := s.Get(ctx, "subscriptions/u1_o1")
	assert.Equal(t, "1 Week", doc["plan"], "create never overwrites")
}

func TestDocumentStore_MergeUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewDocumentStore()

	require.NoError(t, s.MergeUpdate(ctx, "users/u1", repository.Document{
		"email":        "a@b.test",
		"subscription": map[string]any{"plan": "1 Week", "isActive": true},
	}))
	require.NoError(t, s.MergeUpdate(ctx, "users/u1", repository.Document{"subscription.isActive": false}))

	doc, err := s.Get(ctx, "users/u1")
	require.NoError(t, err)
	sub := doc["subscription"].(map[string]any)
	assert.Equal(t, "1 Week", sub["plan"])
	assert.Equal(t, false, sub["isActive"])
	assert.Equal(t, "a@b.test", doc["email"])
}

func TestDocumentStore_CompareAndMerge(t *testing.T) {
	ctx := context.Background()
	s := NewDocumentStore()

	_, err := s.CompareAndMerge(ctx, "downloadLinks/missing", "used", false, repository.Document{"used": true})
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.Set(ctx, "downloadLinks/t1", repository.Document{"used": false}))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
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
	assert.Equal(t, int32(1), wins, "exactly one writer flips the flag")
}

func TestDocumentStore_QueryAndList(t *testing.T) {
	ctx := context.Background()
	s := NewDocumentStore()
	require.NoError(t, s.Set(ctx, "downloadLinks/a", repository.Document{"contentId": "c1", "userId": "u1"}))
	require.NoError(t, s.Set(ctx, "downloadLinks/b", repository.Document{"contentId": "c2", "userId": "u1"}))
	require.NoError(t, s.Set(ctx, "users/u1", repository.Document{"contentId": "c1"}))

	got, err := s.Query(ctx, "downloadLinks", "contentId", "c1")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Contains(t, got, "downloadLinks/a")

	all, err := s.List(ctx, "downloadLinks")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestDocumentStore_Subscribe(t *testing.T) {
	ctx := context.Background()
	s := NewDocumentStore()

	var seen []repository.Document
	cancel, err := s.Subscribe(ctx, "users/u1", func(d repository.Document) { seen = append(seen, d) })
	require.NoError(t, err)

	require.NoError(t, s.MergeUpdate(ctx, "users/u1", repository.Document{"name": "Ada"}))
	cancel()
	require.NoError(t, s.MergeUpdate(ctx, "users/u1", repository.Document{"name": "Grace"}))

	require.Len(t, seen, 2)
	assert.Nil(t, seen[0], "initial snapshot of a missing document is nil")
	assert.Equal(t, "Ada", seen[1]["name"])
}
