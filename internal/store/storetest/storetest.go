// Package storetest holds the behaviour every shortener.Store backend must
// share. Backends call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sundayezeilo/shortlink/internal/errx"
	"github.com/sundayezeilo/shortlink/internal/shortener"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) shortener.Store

func Run(t *testing.T, newStore Factory) {
	t.Run("Create", func(t *testing.T) { testCreate(t, newStore(t)) })
	t.Run("CreateDuplicateSlug", func(t *testing.T) { testCreateDuplicate(t, newStore(t)) })
	t.Run("ConcurrentCreateSameSlug", func(t *testing.T) { testConcurrentCreate(t, newStore(t)) })
	t.Run("GetBySlugMissing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("GetBySlugReturnsExpired", func(t *testing.T) { testGetExpired(t, newStore(t)) })
	t.Run("IncrementClicks", func(t *testing.T) { testIncrement(t, newStore(t)) })
	t.Run("ConcurrentIncrement", func(t *testing.T) { testConcurrentIncrement(t, newStore(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("ListByOwner", func(t *testing.T) { testListByOwner(t, newStore(t)) })
	t.Run("PurgeExpired", func(t *testing.T) { testPurge(t, newStore(t)) })
	t.Run("Deactivate", func(t *testing.T) { testDeactivate(t, newStore(t)) })
}

func draft(slug, owner string) shortener.LinkDraft {
	return shortener.LinkDraft{
		ID:          uuid.Must(uuid.NewV7()),
		OriginalURL: "https://example.com/" + slug,
		Slug:        slug,
		OwnerID:     owner,
	}
}

func testCreate(t *testing.T, s shortener.Store) {
	ctx := context.Background()
	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Microsecond)

	d := draft("abc123", "owner-1")
	d.ExpiresAt = &expires

	created, err := s.Create(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, d.ID, created.ID)
	assert.Equal(t, "abc123", created.Slug)
	assert.Equal(t, "https://example.com/abc123", created.OriginalURL)
	assert.Equal(t, "owner-1", created.OwnerID)
	assert.Equal(t, int64(0), created.Clicks)
	assert.True(t, created.IsActive)
	assert.False(t, created.CreatedAt.IsZero())
	require.NotNil(t, created.ExpiresAt)
	assert.WithinDuration(t, expires, *created.ExpiresAt, time.Millisecond)

	got, err := s.GetBySlug(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, created.OriginalURL, got.OriginalURL)
	assert.Equal(t, created.OwnerID, got.OwnerID)
	require.NotNil(t, got.ExpiresAt)
	assert.WithinDuration(t, expires, *got.ExpiresAt, time.Millisecond)

	anon, err := s.Create(ctx, draft("anon01", ""))
	require.NoError(t, err)
	assert.Empty(t, anon.OwnerID)
	assert.Nil(t, anon.ExpiresAt)
}

func testCreateDuplicate(t *testing.T, s shortener.Store) {
	ctx := context.Background()

	_, err := s.Create(ctx, draft("taken1", "owner-1"))
	require.NoError(t, err)

	_, err = s.Create(ctx, draft("taken1", "owner-2"))
	require.Error(t, err)
	assert.ErrorIs(t, err, shortener.ErrDuplicateSlug)
	assert.Equal(t, errx.Conflict, errx.KindOf(err))
}

func testConcurrentCreate(t *testing.T, s shortener.Store) {
	ctx := context.Background()
	const writers = 16

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Create(ctx, draft("race01", "owner-1"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, dup int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, shortener.ErrDuplicateSlug):
			dup++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok, "exactly one writer must win the slug")
	assert.Equal(t, writers-1, dup)
}

func testGetMissing(t *testing.T, s shortener.Store) {
	_, err := s.GetBySlug(context.Background(), "nope42")
	require.Error(t, err)
	assert.ErrorIs(t, err, shortener.ErrNotFound)
	assert.Equal(t, errx.NotFound, errx.KindOf(err))
}

func testGetExpired(t *testing.T, s shortener.Store) {
	ctx := context.Background()
	past := time.Now().Add(-time.Minute).UTC()

	d := draft("old001", "owner-1")
	d.ExpiresAt = &past
	_, err := s.Create(ctx, d)
	require.NoError(t, err)

	got, err := s.GetBySlug(ctx, "old001")
	require.NoError(t, err)
	assert.True(t, got.Expired(time.Now()))
}

func testIncrement(t *testing.T, s shortener.Store) {
	ctx := context.Background()

	created, err := s.Create(ctx, draft("click1", ""))
	require.NoError(t, err)

	for want := int64(1); want <= 3; want++ {
		n, err := s.IncrementClicks(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	got, err := s.GetBySlug(ctx, "click1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Clicks)

	_, err = s.IncrementClicks(ctx, uuid.Must(uuid.NewV7()))
	assert.ErrorIs(t, err, shortener.ErrNotFound)
	assert.Equal(t, errx.NotFound, errx.KindOf(err))
}

func testConcurrentIncrement(t *testing.T, s shortener.Store) {
	ctx := context.Background()
	const n = 50

	created, err := s.Create(ctx, draft("busy01", ""))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.IncrementClicks(ctx, created.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.GetBySlug(ctx, "busy01")
	require.NoError(t, err)
	assert.Equal(t, int64(n), got.Clicks)
}

func testDelete(t *testing.T, s shortener.Store) {
	ctx := context.Background()

	created, err := s.Create(ctx, draft("mine01", "owner-1"))
	require.NoError(t, err)
	anon, err := s.Create(ctx, draft("anon02", ""))
	require.NoError(t, err)

	_, err = s.Delete(ctx, created.ID, "owner-2")
	assert.ErrorIs(t, err, shortener.ErrForbidden)
	assert.Equal(t, errx.Forbidden, errx.KindOf(err))

	_, err = s.Delete(ctx, anon.ID, "")
	assert.Equal(t, errx.Forbidden, errx.KindOf(err), "ownerless links cannot be deleted")

	deleted, err := s.Delete(ctx, created.ID, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, "mine01", deleted.Slug)

	_, err = s.GetBySlug(ctx, "mine01")
	assert.ErrorIs(t, err, shortener.ErrNotFound)

	_, err = s.Delete(ctx, created.ID, "owner-1")
	assert.ErrorIs(t, err, shortener.ErrNotFound)

	// The slug is free again after a hard delete.
	_, err = s.Create(ctx, draft("mine01", "owner-3"))
	assert.NoError(t, err)
}

func testListByOwner(t *testing.T, s shortener.Store) {
	ctx := context.Background()

	var want []string
	for i := range 3 {
		slug := fmt.Sprintf("own%03d", i)
		_, err := s.Create(ctx, draft(slug, "owner-1"))
		require.NoError(t, err)
		want = append([]string{slug}, want...)
		time.Sleep(2 * time.Millisecond)
	}
	_, err := s.Create(ctx, draft("other1", "owner-2"))
	require.NoError(t, err)

	links, err := s.ListByOwner(ctx, "owner-1")
	require.NoError(t, err)

	got := make([]string, 0, len(links))
	for _, l := range links {
		got = append(got, l.Slug)
	}
	assert.Equal(t, want, got, "links must be newest first")

	none, err := s.ListByOwner(ctx, "owner-9")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testPurge(t *testing.T, s shortener.Store) {
	p, ok := s.(shortener.Purger)
	if !ok {
		t.Skip("store does not purge")
	}
	ctx := context.Background()
	past := time.Now().Add(-time.Minute).UTC()
	future := time.Now().Add(time.Hour).UTC()

	d := draft("gone01", "owner-1")
	d.ExpiresAt = &past
	_, err := s.Create(ctx, d)
	require.NoError(t, err)

	d = draft("live01", "owner-1")
	d.ExpiresAt = &future
	_, err = s.Create(ctx, d)
	require.NoError(t, err)

	_, err = s.Create(ctx, draft("live02", "owner-1"))
	require.NoError(t, err)

	n, err := p.PurgeExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.GetBySlug(ctx, "gone01")
	assert.ErrorIs(t, err, shortener.ErrNotFound)
	_, err = s.GetBySlug(ctx, "live01")
	assert.NoError(t, err)
}

func testDeactivate(t *testing.T, s shortener.Store) {
	d, ok := s.(shortener.Deactivator)
	if !ok {
		t.Skip("store does not deactivate")
	}
	ctx := context.Background()

	link, err := s.Create(ctx, draft("off001", "owner-1"))
	require.NoError(t, err)
	require.True(t, link.IsActive)

	require.NoError(t, d.Deactivate(ctx, link.ID))

	got, err := s.GetBySlug(ctx, "off001")
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, link.ID, got.ID)

	err = d.Deactivate(ctx, uuid.Must(uuid.NewV7()))
	assert.Equal(t, errx.NotFound, errx.KindOf(err))
	assert.ErrorIs(t, err, shortener.ErrNotFound)
}
