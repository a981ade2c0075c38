package shortener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sundayezeilo/shortlink/internal/errx"
	"github.com/sundayezeilo/shortlink/internal/idgen"
	"github.com/sundayezeilo/shortlink/sluggen"
)

const (
	MaxURLLength    = 2048
	DefaultCacheTTL = time.Hour
)

// CreateLinkRequest represents the parameters for creating a new link.
type CreateLinkRequest struct {
	OriginalURL string
	CustomSlug  string // Optional: if empty, a slug will be generated
	OwnerID     string // Optional: empty creates an anonymous link

	// At most one of ExpiresAt and ExpiresIn may be set. With neither, the
	// configured default TTL applies.
	ExpiresAt *time.Time
	ExpiresIn time.Duration
}

// Service defines the business logic operations for URL shortening.
type Service interface {
	Create(ctx context.Context, req CreateLinkRequest) (ShortLink, error)
	Resolve(ctx context.Context, slug string) (string, error)
	Stats(ctx context.Context, slug, ownerID string) (Link, error)
	Delete(ctx context.Context, id uuid.UUID, ownerID string) error
	ListByOwner(ctx context.Context, ownerID string) ([]Link, error)
	OwnerStats(ctx context.Context, ownerID string) (OwnerStats, error)
}

// ServiceConfig holds configuration for the service.
type ServiceConfig struct {
	SlugSource      sluggen.Source
	SlugLength      int
	SlugMaxAttempts int

	// Cache is optional. Without it every redirect reads the store.
	Cache    Cache
	CacheTTL time.Duration

	// DefaultTTL applies to owned links created without an explicit expiry,
	// AnonymousTTL to ownerless ones. Zero means never expire.
	DefaultTTL   time.Duration
	AnonymousTTL time.Duration

	BaseURL   string
	IDs       idgen.Generator
	Publisher ClickPublisher
	Logger    *slog.Logger
	Now       func() time.Time
}

type service struct {
	store        Store
	slugs        *sluggen.Generator
	cache        Cache
	cacheTTL     time.Duration
	defaultTTL   time.Duration
	anonymousTTL time.Duration
	baseURL      string
	ids          idgen.Generator
	publisher    ClickPublisher
	logger       *slog.Logger
	now          func() time.Time
}

// NewService creates a new service instance.
func NewService(store Store, config *ServiceConfig) Service {
	if config == nil {
		config = &ServiceConfig{}
	}

	s := &service{
		store:        store,
		cache:        config.Cache,
		cacheTTL:     config.CacheTTL,
		defaultTTL:   config.DefaultTTL,
		anonymousTTL: config.AnonymousTTL,
		baseURL:      strings.TrimRight(config.BaseURL, "/"),
		ids:          config.IDs,
		publisher:    config.Publisher,
		logger:       config.Logger,
		now:          config.Now,
	}
	if s.cacheTTL <= 0 {
		s.cacheTTL = DefaultCacheTTL
	}
	if s.ids == nil {
		s.ids = idgen.NewV7()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}

	s.slugs = sluggen.NewGenerator(sluggen.LookupFunc(s.slugTaken), sluggen.Config{
		Source:      config.SlugSource,
		Length:      config.SlugLength,
		MaxAttempts: config.SlugMaxAttempts,
	})
	return s
}

// Create creates a new short link with optional custom slug.
func (s *service) Create(ctx context.Context, req CreateLinkRequest) (ShortLink, error) {
	const op = "shortener.service.Create"

	target, err := NormalizeURL(req.OriginalURL)
	if err != nil {
		return ShortLink{}, errx.E(op, errx.Invalid, err)
	}

	expiresAt, err := s.expiry(req)
	if err != nil {
		return ShortLink{}, errx.E(op, errx.Invalid, err)
	}

	id, err := s.ids.Generate()
	if err != nil {
		return ShortLink{}, errx.E(op, errx.Internal, err)
	}

	draft := LinkDraft{
		ID:          id,
		OriginalURL: target,
		OwnerID:     req.OwnerID,
		ExpiresAt:   expiresAt,
	}

	// A lost insert race gets one fresh slug; a custom slug is never changed.
	var link Link
	for attempt := 0; ; attempt++ {
		draft.Slug, err = s.slugs.Generate(ctx, req.CustomSlug)
		if err != nil {
			return ShortLink{}, errx.Wrap(op, err)
		}

		link, err = s.store.Create(ctx, draft)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrDuplicateSlug) {
			return ShortLink{}, errx.Wrap(op, err)
		}
		if req.CustomSlug != "" {
			return ShortLink{}, errx.E(op, errx.Conflict, fmt.Errorf("%w: %q", ErrSlugConflict, draft.Slug))
		}
		if attempt >= 1 {
			return ShortLink{}, errx.E(op, errx.Unavailable, err)
		}
	}

	s.cachePut(ctx, link)

	return ShortLink{
		Link:     link,
		ShortURL: s.baseURL + "/" + link.Slug,
	}, nil
}

func (s *service) Resolve(ctx context.Context, slug string) (string, error) {
	const op = "shortener.service.Resolve"

	if slug == "" {
		return "", errx.E(op, errx.Invalid, errors.New("slug cannot be empty"))
	}

	if entry, ok := s.cacheGet(ctx, slug); ok {
		s.countCachedHit(ctx, slug, entry)
		return entry.URL, nil
	}

	link, err := s.store.GetBySlug(ctx, slug)
	if err != nil {
		return "", errx.Wrap(op, err)
	}
	if !link.Resolvable(s.now()) {
		if !link.IsActive {
			return "", errx.E(op, errx.NotFound, fmt.Errorf("%w: %q", ErrNotFound, slug))
		}
		return "", errx.E(op, errx.Gone, fmt.Errorf("%w: %q", ErrExpired, slug))
	}

	clicks, err := s.store.IncrementClicks(ctx, link.ID)
	if err != nil {
		return "", errx.Wrap(op, err)
	}

	s.cachePut(ctx, link)
	s.publish(ctx, ClickEvent{
		LinkID: link.ID,
		Slug:   slug,
		Clicks: clicks,
		At:     s.now(),
	})
	return link.OriginalURL, nil
}

// Stats returns the raw record of an owned link, expired or not.
func (s *service) Stats(ctx context.Context, slug, ownerID string) (Link, error) {
	const op = "shortener.service.Stats"

	if slug == "" {
		return Link{}, errx.E(op, errx.Invalid, errors.New("slug cannot be empty"))
	}

	link, err := s.store.GetBySlug(ctx, slug)
	if err != nil {
		return Link{}, errx.Wrap(op, err)
	}
	if ownerID == "" || link.OwnerID != ownerID {
		return Link{}, errx.E(op, errx.Forbidden, ErrForbidden)
	}
	return link, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID, ownerID string) error {
	const op = "shortener.service.Delete"

	if id == uuid.Nil {
		return errx.E(op, errx.Invalid, errors.New("link id cannot be empty"))
	}
	if ownerID == "" {
		return errx.E(op, errx.Forbidden, ErrForbidden)
	}

	link, err := s.store.Delete(ctx, id, ownerID)
	if err != nil {
		return errx.Wrap(op, err)
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, link.Slug); err != nil {
			s.logger.WarnContext(ctx, "cache invalidation failed",
				"slug", link.Slug,
				"link_id", link.ID.String(),
				"error", err.Error(),
			)
		}
	}
	return nil
}

func (s *service) ListByOwner(ctx context.Context, ownerID string) ([]Link, error) {
	const op = "shortener.service.ListByOwner"

	if ownerID == "" {
		return nil, errx.E(op, errx.Invalid, errors.New("owner id cannot be empty"))
	}

	links, err := s.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, errx.Wrap(op, err)
	}
	return links, nil
}

func (s *service) OwnerStats(ctx context.Context, ownerID string) (OwnerStats, error) {
	const op = "shortener.service.OwnerStats"

	links, err := s.ListByOwner(ctx, ownerID)
	if err != nil {
		return OwnerStats{}, errx.Wrap(op, err)
	}

	now := s.now()
	stats := OwnerStats{TotalLinks: len(links)}
	for _, l := range links {
		stats.TotalClicks += l.Clicks
		switch {
		case l.Expired(now):
			stats.ExpiredLinks++
		case l.IsActive:
			stats.ActiveLinks++
		}
	}
	return stats, nil
}

func (s *service) slugTaken(ctx context.Context, slug string) (bool, error) {
	_, err := s.store.GetBySlug(ctx, slug)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (s *service) expiry(req CreateLinkRequest) (*time.Time, error) {
	now := s.now()

	var at time.Time
	switch {
	case req.ExpiresAt != nil && req.ExpiresIn != 0:
		return nil, fmt.Errorf("%w: set either an expiry time or a duration, not both", ErrInvalidExpiry)
	case req.ExpiresAt != nil:
		if !req.ExpiresAt.After(now) {
			return nil, fmt.Errorf("%w: expiry must be in the future", ErrInvalidExpiry)
		}
		at = *req.ExpiresAt
	case req.ExpiresIn < 0:
		return nil, fmt.Errorf("%w: duration must be positive", ErrInvalidExpiry)
	case req.ExpiresIn > 0:
		at = now.Add(req.ExpiresIn)
	case req.OwnerID == "" && s.anonymousTTL > 0:
		at = now.Add(s.anonymousTTL)
	case req.OwnerID != "" && s.defaultTTL > 0:
		at = now.Add(s.defaultTTL)
	default:
		return nil, nil
	}

	at = at.UTC().Truncate(time.Microsecond)
	return &at, nil
}

// cacheGet treats a failing cache as a miss.
func (s *service) cacheGet(ctx context.Context, slug string) (CacheEntry, bool) {
	if s.cache == nil {
		return CacheEntry{}, false
	}
	entry, ok, err := s.cache.Get(ctx, slug)
	if err != nil {
		s.logger.WarnContext(ctx, "cache lookup failed",
			"slug", slug,
			"error", err.Error(),
		)
		return CacheEntry{}, false
	}
	return entry, ok
}

// cachePut never lets an entry outlive its link.
func (s *service) cachePut(ctx context.Context, link Link) {
	if s.cache == nil {
		return
	}

	ttl := s.cacheTTL
	if link.ExpiresAt != nil {
		ttl = min(ttl, link.ExpiresAt.Sub(s.now()))
	}
	if ttl <= 0 {
		return
	}

	err := s.cache.Put(ctx, link.Slug, CacheEntry{LinkID: link.ID, URL: link.OriginalURL}, ttl)
	if err != nil {
		s.logger.WarnContext(ctx, "cache write failed",
			"slug", link.Slug,
			"error", err.Error(),
		)
	}
}

// countCachedHit records the click behind a cache hit. The redirect already
// has its answer, so failures here are logged and dropped.
func (s *service) countCachedHit(ctx context.Context, slug string, entry CacheEntry) {
	clicks, err := s.store.IncrementClicks(ctx, entry.LinkID)
	switch {
	case errors.Is(err, ErrNotFound):
		s.logger.DebugContext(ctx, "cached slug no longer stored",
			"slug", slug,
			"link_id", entry.LinkID.String(),
		)
	case err != nil:
		s.logger.WarnContext(ctx, "click increment failed on cache hit",
			"slug", slug,
			"link_id", entry.LinkID.String(),
			"error", err.Error(),
		)
	default:
		s.publish(ctx, ClickEvent{
			LinkID:    entry.LinkID,
			Slug:      slug,
			Clicks:    clicks,
			CachedHit: true,
			At:        s.now(),
		})
	}
}

func (s *service) publish(ctx context.Context, ev ClickEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishClick(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "click event publish failed",
			"slug", ev.Slug,
			"error", err.Error(),
		)
	}
}

// NormalizeURL trims rawURL, defaults a missing scheme to https and checks
// that the result is an absolute http or https URL with a host.
func NormalizeURL(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", fmt.Errorf("%w: url cannot be empty", ErrInvalidURL)
	}
	if leadingScheme(rawURL) == "" {
		rawURL = "https://" + rawURL
	}
	if len(rawURL) > MaxURLLength {
		return "", fmt.Errorf("%w: url too long (max %d characters)", ErrInvalidURL, MaxURLLength)
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: invalid url format", ErrInvalidURL)
	}
	scheme := strings.ToLower(parsedURL.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: url scheme must be http or https", ErrInvalidURL)
	}
	if parsedURL.Hostname() == "" {
		return "", fmt.Errorf("%w: url must include host", ErrInvalidURL)
	}
	return rawURL, nil
}

// leadingScheme returns the scheme rawURL starts with, or "" when it has
// none. Only a prefix counts: a scheme-less URL may carry another URL in its
// query or fragment.
func leadingScheme(rawURL string) string {
	i := strings.Index(rawURL, "://")
	if i <= 0 {
		return ""
	}
	for j, c := range rawURL[:i] {
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		case j > 0 && ('0' <= c && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return ""
		}
	}
	return rawURL[:i]
}
