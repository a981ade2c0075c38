package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sundayezeilo/shortlink/internal/errx"
	"github.com/sundayezeilo/shortlink/internal/shortener"
)

const DefaultKeyPrefix = "link:"

// RedisClient is the part of *redis.Client the cache uses.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Redis stores JSON-encoded entries under prefix+slug with a native TTL.
type Redis struct {
	client RedisClient
	prefix string
}

var _ shortener.Cache = (*Redis)(nil)

func NewRedis(client RedisClient, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(slug string) string { return r.prefix + slug }

func (r *Redis) Get(ctx context.Context, slug string) (shortener.CacheEntry, bool, error) {
	const op = "cache.Redis.Get"

	raw, err := r.client.Get(ctx, r.key(slug)).Bytes()
	if errors.Is(err, redis.Nil) {
		return shortener.CacheEntry{}, false, nil
	}
	if err != nil {
		return shortener.CacheEntry{}, false, errx.E(op, errx.Unavailable, err)
	}

	var entry shortener.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return shortener.CacheEntry{}, false, errx.E(op, errx.Internal, fmt.Errorf("decode entry for %q: %w", slug, err))
	}
	return entry, true, nil
}

func (r *Redis) Put(ctx context.Context, slug string, entry shortener.CacheEntry, ttl time.Duration) error {
	const op = "cache.Redis.Put"

	// Redis expiries have millisecond resolution.
	if ttl < time.Millisecond {
		return nil
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return errx.E(op, errx.Internal, err)
	}
	if err := r.client.Set(ctx, r.key(slug), raw, ttl).Err(); err != nil {
		return errx.E(op, errx.Unavailable, err)
	}
	return nil
}

func (r *Redis) Invalidate(ctx context.Context, slug string) error {
	const op = "cache.Redis.Invalidate"

	if err := r.client.Del(ctx, r.key(slug)).Err(); err != nil {
		return errx.E(op, errx.Unavailable, err)
	}
	return nil
}
