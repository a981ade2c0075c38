package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/sundayezeilo/shortlink/internal/errx"
)

/***************
 * Mocks
 ***************/

type setCall struct {
	key string
	ttl time.Duration
}

// fakeRedis keeps values in a map and ignores expiry.
type fakeRedis struct {
	values map[string]string
	sets   []setCall
	err    error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: make(map[string]string)}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.sets = append(f.sets, setCall{key: key, ttl: expiration})
	f.values[key] = string(value.([]byte))
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.values[k]; ok {
			delete(f.values, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

/***************
 * Tests
 ***************/

func TestRedis_Contract(t *testing.T) {
	runContract(t, NewRedis(newFakeRedis(), ""))
}

func TestRedis_KeysAndTTL(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	c := NewRedis(fake, "")

	require.NoError(t, c.Put(ctx, "abc123", testEntry(), 90*time.Second))
	require.Len(t, fake.sets, 1)
	assert.Equal(t, "link:abc123", fake.sets[0].key)
	assert.Equal(t, 90*time.Second, fake.sets[0].ttl)

	require.NoError(t, c.Put(ctx, "tiny01", testEntry(), 500*time.Microsecond))
	assert.Len(t, fake.sets, 1, "sub-millisecond ttl is skipped")

	custom := NewRedis(fake, "short:")
	require.NoError(t, custom.Put(ctx, "abc123", testEntry(), time.Minute))
	assert.Equal(t, "short:abc123", fake.sets[1].key)
}

func TestRedis_BackendErrors(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	fake.err = errors.New("connection refused")
	c := NewRedis(fake, "")

	_, ok, err := c.Get(ctx, "abc123")
	assert.False(t, ok)
	assert.Equal(t, errx.Unavailable, errx.KindOf(err))

	err = c.Put(ctx, "abc123", testEntry(), time.Minute)
	assert.Equal(t, errx.Unavailable, errx.KindOf(err))

	err = c.Invalidate(ctx, "abc123")
	assert.Equal(t, errx.Unavailable, errx.KindOf(err))
}

func TestRedis_CorruptEntry(t *testing.T) {
	fake := newFakeRedis()
	fake.values["link:bad001"] = "{not json"

	_, ok, err := NewRedis(fake, "").Get(context.Background(), "bad001")
	assert.False(t, ok)
	assert.Equal(t, errx.Internal, errx.KindOf(err))
}

func TestRedis_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err, "failed to start redis container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	c := NewRedis(client, "")
	runContract(t, c)

	t.Run("native expiry", func(t *testing.T) {
		require.NoError(t, c.Put(ctx, "short1", testEntry(), 50*time.Millisecond))
		require.Eventually(t, func() bool {
			_, ok, err := c.Get(ctx, "short1")
			return err == nil && !ok
		}, 2*time.Second, 20*time.Millisecond)
	})
}
