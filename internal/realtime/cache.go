package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"vessel-monitor/internal/observability/metrics"
)

// ErrCodeNotFound is returned when an equipment id has no registered
// external code.
var ErrCodeNotFound = errors.New("realtime: equipment code not found")

const defaultCacheTTL = time.Hour

// CodeLister resolves internal equipment ids to external device codes
// in bulk. Unknown ids are omitted from the result.
type CodeLister interface {
	ListCodes(ctx context.Context, ids []string) (map[string]string, error)
}

type cacheEntry struct {
	code      string
	expiresAt time.Time
}

// CodeCache maps internal equipment ids to external device codes with a
// time-based TTL and bulk backfill from storage. Writes are
// last-write-wins; concurrent misses for the same id may each query
// storage and each rewrite the entry, which is accepted because writes
// are idempotent.
type CodeCache struct {
	store CodeLister
	ttl   time.Duration
	clock func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// CacheOption configures the cache.
type CacheOption func(*CodeCache)

// WithTTL overrides the default one hour entry lifetime.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *CodeCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCacheClock overrides the time source, for tests.
func WithCacheClock(clock func() time.Time) CacheOption {
	return func(c *CodeCache) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// NewCodeCache constructs a cache backed by store.
func NewCodeCache(store CodeLister, opts ...CacheOption) (*CodeCache, error) {
	if store == nil {
		return nil, errors.New("realtime: nil code lister")
	}
	cache := &CodeCache{
		store:   store,
		ttl:     defaultCacheTTL,
		clock:   func() time.Time { return time.Now().UTC() },
		entries: make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(cache)
	}
	return cache, nil
}

// Lookup returns the cached code for an id, if present and fresh.
func (c *CodeCache) Lookup(id string) (string, bool) {
	c.mu.RLock()
	entry, ok := c.entries[id]
	c.mu.RUnlock()
	if !ok || c.clock().After(entry.expiresAt) {
		metrics.IncCacheLookup(metrics.CacheMiss)
		return "", false
	}
	metrics.IncCacheLookup(metrics.CacheHit)
	return entry.code, true
}

// ResolveMany translates ids to codes, serving hits from the cache and
// backfilling misses with a single bulk storage query. Ids with no
// registered equipment are omitted from the result.
func (c *CodeCache) ResolveMany(ctx context.Context, ids []string) (map[string]string, error) {
	resolved := make(map[string]string, len(ids))
	var misses []string
	for _, id := range ids {
		if code, ok := c.Lookup(id); ok {
			resolved[id] = code
			continue
		}
		misses = append(misses, id)
	}
	if len(misses) == 0 {
		return resolved, nil
	}

	fetched, err := c.store.ListCodes(ctx, misses)
	if err != nil {
		return nil, err
	}

	expiresAt := c.clock().Add(c.ttl)
	c.mu.Lock()
	for id, code := range fetched {
		c.entries[id] = cacheEntry{code: code, expiresAt: expiresAt}
	}
	c.mu.Unlock()

	for id, code := range fetched {
		resolved[id] = code
	}
	return resolved, nil
}

// ResolveOne translates a single id, filling the cache on a miss.
func (c *CodeCache) ResolveOne(ctx context.Context, id string) (string, error) {
	resolved, err := c.ResolveMany(ctx, []string{id})
	if err != nil {
		return "", err
	}
	code, ok := resolved[id]
	if !ok {
		return "", ErrCodeNotFound
	}
	return code, nil
}
