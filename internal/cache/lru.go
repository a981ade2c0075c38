package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sundayezeilo/shortlink/internal/shortener"
)

const DefaultCapacity = 10_000

type lruEntry struct {
	entry    shortener.CacheEntry
	deadline time.Time
}

// LRU holds at most capacity entries, evicting the least recently used.
// Entries past their deadline are dropped when read.
type LRU struct {
	c   *lru.Cache[string, lruEntry]
	now func() time.Time
}

var _ shortener.Cache = (*LRU)(nil)

func NewLRU(capacity int) (*LRU, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c, err := lru.New[string, lruEntry](capacity)
	if err != nil {
		return nil, err
	}
	return &LRU{c: c, now: time.Now}, nil
}

func (l *LRU) Get(ctx context.Context, slug string) (shortener.CacheEntry, bool, error) {
	e, ok := l.c.Get(slug)
	if !ok {
		return shortener.CacheEntry{}, false, nil
	}
	if !l.now().Before(e.deadline) {
		l.c.Remove(slug)
		return shortener.CacheEntry{}, false, nil
	}
	return e.entry, true, nil
}

func (l *LRU) Put(ctx context.Context, slug string, entry shortener.CacheEntry, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	l.c.Add(slug, lruEntry{entry: entry, deadline: l.now().Add(ttl)})
	return nil
}

func (l *LRU) Invalidate(ctx context.Context, slug string) error {
	l.c.Remove(slug)
	return nil
}

func (l *LRU) Len() int { return l.c.Len() }
