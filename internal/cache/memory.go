// Package cache provides shortener.Cache backends: an in-process TTL map,
// a capacity-bounded LRU and Redis.
package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/sundayezeilo/shortlink/internal/shortener"
)

const DefaultCleanupInterval = 10 * time.Minute

// Memory is an unbounded in-process cache with per-entry expiry. A janitor
// sweeps expired entries every cleanup interval; Get never returns them.
type Memory struct {
	c *gocache.Cache
}

var _ shortener.Cache = (*Memory)(nil)

func NewMemory(cleanupInterval time.Duration) *Memory {
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}
	return &Memory{c: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

func (m *Memory) Get(ctx context.Context, slug string) (shortener.CacheEntry, bool, error) {
	v, ok := m.c.Get(slug)
	if !ok {
		return shortener.CacheEntry{}, false, nil
	}
	entry, ok := v.(shortener.CacheEntry)
	return entry, ok, nil
}

func (m *Memory) Put(ctx context.Context, slug string, entry shortener.CacheEntry, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.c.Set(slug, entry, ttl)
	return nil
}

func (m *Memory) Invalidate(ctx context.Context, slug string) error {
	m.c.Delete(slug)
	return nil
}

// Len reports the number of stored entries, expired ones included until the
// janitor runs.
func (m *Memory) Len() int { return m.c.ItemCount() }
