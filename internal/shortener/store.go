package shortener

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the authoritative record of links. Implementations must make
// Create an atomic insert-if-absent on the slug and IncrementClicks a single
// atomic increment, and must return errors carrying an errx kind: NotFound
// wrapping ErrNotFound, Conflict wrapping ErrDuplicateSlug, Forbidden
// wrapping ErrForbidden.
type Store interface {
	Create(ctx context.Context, draft LinkDraft) (Link, error)
	// GetBySlug returns the raw record, inactive or expired included.
	GetBySlug(ctx context.Context, slug string) (Link, error)
	IncrementClicks(ctx context.Context, id uuid.UUID) (int64, error)
	// Delete removes the link when ownerID owns it and returns the removed record.
	Delete(ctx context.Context, id uuid.UUID, ownerID string) (Link, error)
	// ListByOwner returns the owner's links, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]Link, error)
}

// Purger is implemented by stores that can drop expired links in bulk.
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Deactivator is implemented by stores that can take a link out of service
// without deleting it. Inactive links resolve as not found.
type Deactivator interface {
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// Cache is the read-through resolution cache. It is never authoritative and
// may drop entries at any time. A ttl <= 0 makes Put a no-op.
type Cache interface {
	Get(ctx context.Context, slug string) (CacheEntry, bool, error)
	Put(ctx context.Context, slug string, entry CacheEntry, ttl time.Duration) error
	Invalidate(ctx context.Context, slug string) error
}

// ClickEvent describes one successful redirect.
type ClickEvent struct {
	LinkID    uuid.UUID `json:"link_id"`
	Slug      string    `json:"slug"`
	Clicks    int64     `json:"clicks"`
	CachedHit bool      `json:"cached_hit"`
	At        time.Time `json:"at"`
}

// ClickPublisher receives click events after a redirect.
type ClickPublisher interface {
	PublishClick(ctx context.Context, ev ClickEvent) error
}
