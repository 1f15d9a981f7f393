package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"video-subscription-storefront/internal/domain/ports/repository"
	"video-subscription-storefront/internal/infra/metrics"
	red "video-subscription-storefront/internal/infra/redis"
)

var _ repository.DocumentStore = (*documentCacheDecorator)(nil)

// documentCacheDecorator caches single document reads. Every write drops
// the cached copy before it reaches the inner store.
type documentCacheDecorator struct {
	inner repository.DocumentStore
	cache red.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

func NewDocumentCacheDecorator(inner repository.DocumentStore, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.DocumentStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &documentCacheDecorator{inner: inner, cache: cache, ttl: ttl, log: logger}
}

func docKey(path string) string { return "doc:" + path }

func (d *documentCacheDecorator) Get(ctx context.Context, path string) (repository.Document, error) {
	key := docKey(path)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var doc repository.Document
		if json.Unmarshal([]byte(val), &doc) == nil {
			metrics.IncCacheRequest("document", metrics.CacheHit)
			return doc, nil
		}
	} else if !red.IsMiss(err) {
		metrics.IncCacheRequest("document", metrics.CacheError)
		d.log.Warn().Err(err).Str("key", key).Msg("document cache read failed")
	} else {
		metrics.IncCacheRequest("document", metrics.CacheMiss)
	}

	doc, err := d.inner.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(doc); err == nil {
		_ = d.cache.Set(ctx, key, b, d.ttl)
	}
	return doc, nil
}

// Writes invalidate on both sides so a read racing the write cannot leave
// the old document cached.
func (d *documentCacheDecorator) Set(ctx context.Context, path string, doc repository.Document) error {
	d.invalidate(ctx, path)
	defer d.invalidate(ctx, path)
	return d.inner.Set(ctx, path, doc)
}

func (d *documentCacheDecorator) Create(ctx context.Context, path string, doc repository.Document) (bool, error) {
	d.invalidate(ctx, path)
	defer d.invalidate(ctx, path)
	return d.inner.Create(ctx, path, doc)
}

func (d *documentCacheDecorator) MergeUpdate(ctx context.Context, path string, partial repository.Document) error {
	d.invalidate(ctx, path)
	defer d.invalidate(ctx, path)
	return d.inner.MergeUpdate(ctx, path, partial)
}

func (d *documentCacheDecorator) CompareAndMerge(ctx context.Context, path, field string, expected any, partial repository.Document) (bool, error) {
	d.invalidate(ctx, path)
	defer d.invalidate(ctx, path)
	return d.inner.CompareAndMerge(ctx, path, field, expected, partial)
}

func (d *documentCacheDecorator) Query(ctx context.Context, collection, field string, value any) (map[string]repository.Document, error) {
	return d.inner.Query(ctx, collection, field, value)
}

func (d *documentCacheDecorator) List(ctx context.Context, collection string) (map[string]repository.Document, error) {
	return d.inner.List(ctx, collection)
}

func (d *documentCacheDecorator) Subscribe(ctx context.Context, path string, onChange func(repository.Document)) (func(), error) {
	return d.inner.Subscribe(ctx, path, onChange)
}

func (d *documentCacheDecorator) invalidate(ctx context.Context, path string) {
	if err := d.cache.Del(ctx, docKey(path)); err != nil {
		d.log.Warn().Err(err).Str("path", path).Msg("document cache invalidation failed")
	}
}
