package translation

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"

	"github.com/adverant/nexus/doctranslate-worker/internal/logging"
	"github.com/adverant/nexus/doctranslate-worker/internal/metrics"
)

// Store is a shared second-tier cache.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// CacheOptions configures a CachedTranslator.
type CacheOptions struct {
	TTL      time.Duration
	Capacity uint64 // zero means unbounded
	Remote   Store  // optional
}

// CachedTranslator wraps a translator with an in-process TTL cache, an
// optional shared store, and request coalescing. Keys are computed over
// the text as sent to the provider, so masked lines that differ only in
// the terms they hide share an entry.
type CachedTranslator struct {
	inner    Translator
	provider string
	cache    *ttlcache.Cache[string, string]
	remote   Store
	ttl      time.Duration
	sfGroup  singleflight.Group
	logger   *logging.Logger

	hits       atomic.Uint64
	remoteHits atomic.Uint64
	misses     atomic.Uint64
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Hits       uint64
	RemoteHits uint64
	Misses     uint64
	Size       int
}

// NewCachedTranslator wraps inner with caching
func NewCachedTranslator(inner Translator, opts CacheOptions, logger *logging.Logger) *CachedTranslator {
	cacheOpts := []ttlcache.Option[string, string]{
		ttlcache.WithTTL[string, string](opts.TTL),
	}
	if opts.Capacity > 0 {
		cacheOpts = append(cacheOpts, ttlcache.WithCapacity[string, string](opts.Capacity))
	}

	provider := "translator"
	if n, ok := inner.(Named); ok {
		provider = n.Name()
	}

	return &CachedTranslator{
		inner:    inner,
		provider: provider,
		cache:    ttlcache.New(cacheOpts...),
		remote:   opts.Remote,
		ttl:      opts.TTL,
		logger:   logger,
	}
}

// Name reports the wrapped provider.
func (c *CachedTranslator) Name() string {
	return c.provider
}

// Translate returns a cached translation or calls the provider once for
// concurrent identical requests.
func (c *CachedTranslator) Translate(ctx context.Context, text, targetLang string) (string, error) {
	if text == "" {
		return "", nil
	}
	key := c.cacheKey(text, targetLang)

	if v, ok := c.lookup(ctx, key); ok {
		return v, nil
	}

	result, err, _ := c.sfGroup.Do(key, func() (any, error) {
		c.misses.Add(1)
		metrics.RecordCacheMiss()

		out, err := c.inner.Translate(ctx, text, targetLang)
		if err != nil {
			return "", err
		}
		c.store(ctx, key, out)
		return out, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// TranslateBatch serves hits from the cache and sends only the misses to
// the provider, in one batch when the provider supports it.
func (c *CachedTranslator) TranslateBatch(ctx context.Context, texts []string, targetLang string) ([]string, error) {
	out := make([]string, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		if text == "" {
			continue
		}
		if v, ok := c.lookup(ctx, c.cacheKey(text, targetLang)); ok {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	batcher, ok := c.inner.(BatchTranslator)
	if !ok {
		for j, i := range missIdx {
			v, err := c.Translate(ctx, missTexts[j], targetLang)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}

	c.misses.Add(uint64(len(missTexts)))
	translated, err := batcher.TranslateBatch(ctx, missTexts, targetLang)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		out[i] = translated[j]
		c.store(ctx, c.cacheKey(missTexts[j], targetLang), translated[j])
	}
	return out, nil
}

// Stats returns cache statistics.
func (c *CachedTranslator) Stats() CacheStats {
	return CacheStats{
		Hits:       c.hits.Load(),
		RemoteHits: c.remoteHits.Load(),
		Misses:     c.misses.Load(),
		Size:       c.cache.Len(),
	}
}

func (c *CachedTranslator) lookup(ctx context.Context, key string) (string, bool) {
	if item := c.cache.Get(key); item != nil {
		c.hits.Add(1)
		metrics.RecordCacheHit("memory")
		return item.Value(), true
	}
	if c.remote == nil {
		return "", false
	}
	v, ok, err := c.remote.Get(ctx, key)
	if err != nil {
		c.logger.Warn("Remote translation cache read failed", "error", err)
		return "", false
	}
	if !ok {
		return "", false
	}
	c.remoteHits.Add(1)
	metrics.RecordCacheHit("redis")
	c.cache.Set(key, v, ttlcache.DefaultTTL)
	return v, true
}

func (c *CachedTranslator) store(ctx context.Context, key, value string) {
	c.cache.Set(key, value, ttlcache.DefaultTTL)
	if c.remote == nil {
		return
	}
	if err := c.remote.Set(ctx, key, value, c.ttl); err != nil {
		c.logger.Warn("Remote translation cache write failed", "error", err)
	}
}

func (c *CachedTranslator) cacheKey(text, targetLang string) string {
	h := xxhash.New()
	_, _ = h.WriteString(c.provider)
	_, _ = h.WriteString("|")
	_, _ = h.WriteString(targetLang)
	_, _ = h.WriteString("|")
	_, _ = h.WriteString(text)
	return strconv.FormatUint(h.Sum64(), 16)
}
