// Package memory is a process-local link store for development and tests.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sundayezeilo/shortlink/internal/errx"
	"github.com/sundayezeilo/shortlink/internal/shortener"
)

// Store keeps links in maps guarded by one mutex, so slug insertion and click
// increments are atomic with respect to each other.
type Store struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]*shortener.Link
	bySlug map[string]uuid.UUID
	now    func() time.Time
}

var (
	_ shortener.Store       = (*Store)(nil)
	_ shortener.Deactivator = (*Store)(nil)
)

func New() *Store {
	return &Store{
		byID:   make(map[uuid.UUID]*shortener.Link),
		bySlug: make(map[string]uuid.UUID),
		now:    time.Now,
	}
}

func (s *Store) Create(ctx context.Context, draft shortener.LinkDraft) (shortener.Link, error) {
	const op = "store.memory.Create"

	id := draft.ID
	if id == uuid.Nil {
		var err error
		if id, err = uuid.NewV7(); err != nil {
			return shortener.Link{}, errx.E(op, errx.Internal, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.bySlug[draft.Slug]; taken {
		return shortener.Link{}, errx.E(op, errx.Conflict, fmt.Errorf("%w: %q", shortener.ErrDuplicateSlug, draft.Slug))
	}
	if _, taken := s.byID[id]; taken {
		return shortener.Link{}, errx.E(op, errx.Conflict, fmt.Errorf("link id %s already stored", id))
	}

	link := &shortener.Link{
		ID:          id,
		OriginalURL: draft.OriginalURL,
		Slug:        draft.Slug,
		OwnerID:     draft.OwnerID,
		CreatedAt:   s.now().UTC(),
		ExpiresAt:   copyTime(draft.ExpiresAt),
		IsActive:    true,
	}
	s.byID[id] = link
	s.bySlug[draft.Slug] = id
	return clone(link), nil
}

func (s *Store) GetBySlug(ctx context.Context, slug string) (shortener.Link, error) {
	const op = "store.memory.GetBySlug"

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.bySlug[slug]
	if !ok {
		return shortener.Link{}, errx.E(op, errx.NotFound, fmt.Errorf("%w: %q", shortener.ErrNotFound, slug))
	}
	return clone(s.byID[id]), nil
}

func (s *Store) IncrementClicks(ctx context.Context, id uuid.UUID) (int64, error) {
	const op = "store.memory.IncrementClicks"

	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.byID[id]
	if !ok {
		return 0, errx.E(op, errx.NotFound, fmt.Errorf("%w: %s", shortener.ErrNotFound, id))
	}
	link.Clicks++
	return link.Clicks, nil
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID, ownerID string) (shortener.Link, error) {
	const op = "store.memory.Delete"

	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.byID[id]
	if !ok {
		return shortener.Link{}, errx.E(op, errx.NotFound, fmt.Errorf("%w: %s", shortener.ErrNotFound, id))
	}
	if ownerID == "" || link.OwnerID != ownerID {
		return shortener.Link{}, errx.E(op, errx.Forbidden, shortener.ErrForbidden)
	}

	delete(s.byID, id)
	delete(s.bySlug, link.Slug)
	return clone(link), nil
}

func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]shortener.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	links := make([]shortener.Link, 0)
	for _, l := range s.byID {
		if l.OwnerID == ownerID {
			links = append(links, clone(l))
		}
	}
	slices.SortFunc(links, func(a, b shortener.Link) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		// v7 ids break ties between links created in the same instant.
		return cmp.Compare(b.ID.String(), a.ID.String())
	})
	return links, nil
}

// PurgeExpired removes links whose expiry is at or before now.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, l := range s.byID {
		if l.Expired(now) {
			delete(s.byID, id)
			delete(s.bySlug, l.Slug)
			n++
		}
	}
	return n, nil
}

// Deactivate clears the active flag of a link.
func (s *Store) Deactivate(ctx context.Context, id uuid.UUID) error {
	const op = "store.memory.Deactivate"

	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.byID[id]
	if !ok {
		return errx.E(op, errx.NotFound, fmt.Errorf("%w: %s", shortener.ErrNotFound, id))
	}
	link.IsActive = false
	return nil
}

func clone(l *shortener.Link) shortener.Link {
	out := *l
	out.ExpiresAt = copyTime(l.ExpiresAt)
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
