package shortener

import (
	"time"

	"github.com/google/uuid"
)

type Link struct {
	ID          uuid.UUID
	OriginalURL string
	Slug        string
	OwnerID     string
	CreatedAt   time.Time
	ExpiresAt   *time.Time
	Clicks      int64
	IsActive    bool
}

// Expired reports whether the link's expiry is at or before now.
func (l Link) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && !l.ExpiresAt.After(now)
}

// Resolvable reports whether a redirect may serve the link.
func (l Link) Resolvable(now time.Time) bool {
	return l.IsActive && !l.Expired(now)
}

// LinkDraft holds the caller-controlled fields of a link that has not been
// stored yet. The store assigns everything else.
type LinkDraft struct {
	ID          uuid.UUID
	OriginalURL string
	Slug        string
	OwnerID     string
	ExpiresAt   *time.Time
}

// CacheEntry is what the resolution cache keeps per slug.
type CacheEntry struct {
	LinkID uuid.UUID `json:"link_id"`
	URL    string    `json:"url"`
}

// ShortLink is a created link together with its public short URL.
type ShortLink struct {
	Link
	ShortURL string
}

// OwnerStats summarizes the links of one owner.
type OwnerStats struct {
	TotalLinks   int
	TotalClicks  int64
	ActiveLinks  int
	ExpiredLinks int
}
