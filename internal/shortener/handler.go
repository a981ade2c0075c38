package shortener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sundayezeilo/shortlink/internal/errx"
	"github.com/sundayezeilo/shortlink/internal/httpx"
	"github.com/sundayezeilo/shortlink/sluggen"
)

// HTTPCreateLinkRequest represents the JSON request body for creating a link.
type HTTPCreateLinkRequest struct {
	URL              string     `json:"url"`
	CustomSlug       string     `json:"custom_slug,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	ExpiresInSeconds int64      `json:"expires_in_seconds,omitempty"`
}

// LinkResponse is the JSON shape of a link.
type LinkResponse struct {
	ID          string  `json:"id"`
	Slug        string  `json:"slug"`
	OriginalURL string  `json:"original_url"`
	ShortURL    string  `json:"short_url"`
	Clicks      int64   `json:"clicks"`
	IsActive    bool    `json:"is_active"`
	CreatedAt   string  `json:"created_at"`
	ExpiresAt   *string `json:"expires_at"`
}

// ListLinksResponse is returned by GET /api/links.
type ListLinksResponse struct {
	Links []LinkResponse `json:"links"`
	Total int            `json:"total"`
}

// OwnerStatsResponse is returned by GET /api/stats.
type OwnerStatsResponse struct {
	TotalLinks   int   `json:"total_links"`
	TotalClicks  int64 `json:"total_clicks"`
	ActiveLinks  int   `json:"active_links"`
	ExpiredLinks int   `json:"expired_links"`
}

// Handler provides HTTP handlers for the URL shortener service.
type Handler struct {
	service Service
	logger  *slog.Logger
	baseURL string
}

// HandlerConfig holds configuration for the handler.
type HandlerConfig struct {
	Service Service
	Logger  *slog.Logger
	BaseURL string // Base URL for constructing short URLs (e.g., "https://short.ly")
}

// NewHandler creates a new Handler instance.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		service: cfg.Service,
		logger:  logger,
		baseURL: cfg.BaseURL,
	}
}

// CreateLink handles POST requests to create a new short link. Authenticated
// callers own the link; anonymous callers get an ownerless one.
func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	req, err := httpx.DecodeJSON[HTTPCreateLinkRequest](w, r)
	if err != nil {
		logger.WarnContext(ctx, "failed to decode request",
			"error", err.Error(),
		)
		status := http.StatusBadRequest
		switch {
		case errors.Is(err, httpx.ErrUnsupportedMedia):
			status = http.StatusUnsupportedMediaType
		case errors.Is(err, httpx.ErrBodyTooLarge):
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(w, status, "invalid_request", err.Error(), nil)
		return
	}

	if err := validateCreateRequest(req); err != nil {
		logger.WarnContext(ctx, "request validation failed",
			"error", err.Error(),
			"url", req.URL,
			"custom_slug", req.CustomSlug,
		)
		httpx.WriteError(w, http.StatusBadRequest, "validation_failed", err.Error(), nil)
		return
	}

	link, err := h.service.Create(ctx, CreateLinkRequest{
		OriginalURL: req.URL,
		CustomSlug:  req.CustomSlug,
		OwnerID:     httpx.GetOwnerID(ctx),
		ExpiresAt:   req.ExpiresAt,
		ExpiresIn:   time.Duration(req.ExpiresInSeconds) * time.Second,
	})
	if err != nil {
		h.handleCreateError(ctx, logger, w, err)
		return
	}

	logger.InfoContext(ctx, "link created successfully",
		"link_id", link.ID.String(),
		"slug", link.Slug,
		"custom_slug", req.CustomSlug != "",
		"owned", link.OwnerID != "",
	)

	resp := h.toResponse(link.Link)
	resp.ShortURL = link.ShortURL
	httpx.WriteJSON(w, http.StatusCreated, resp)
}

// ResolveLink handles GET /{slug} and redirects to the original URL.
func (h *Handler) ResolveLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	slug := r.PathValue("slug")
	if err := validateSlugFormat(slug); err != nil {
		logger.WarnContext(ctx, "invalid slug format",
			"slug", slug,
			"error", err.Error(),
		)
		httpx.WriteError(w, http.StatusNotFound, "not_found", "short link doesn't exist", nil)
		return
	}

	originalURL, err := h.service.Resolve(ctx, slug)
	if err != nil {
		h.handleResolveError(ctx, logger, w, err, slug)
		return
	}

	logger.InfoContext(ctx, "slug resolved successfully",
		"slug", slug,
		"original_url", originalURL,
		"user_agent", r.UserAgent(),
		"referer", r.Referer(),
	)

	httpx.Redirect(w, r, originalURL)
}

// GetLinkStats handles GET /api/links/{slug} for the link's owner.
func (h *Handler) GetLinkStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)
	slug := r.PathValue("slug")

	link, err := h.service.Stats(ctx, slug, httpx.GetOwnerID(ctx))
	if err != nil {
		h.handleOwnerError(ctx, logger, w, err, "unable to load link stats")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, h.toResponse(link))
}

// ListLinks handles GET /api/links.
func (h *Handler) ListLinks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	links, err := h.service.ListByOwner(ctx, httpx.GetOwnerID(ctx))
	if err != nil {
		h.handleOwnerError(ctx, logger, w, err, "unable to list links")
		return
	}

	resp := ListLinksResponse{
		Links: make([]LinkResponse, 0, len(links)),
		Total: len(links),
	}
	for _, l := range links {
		resp.Links = append(resp.Links, h.toResponse(l))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// DeleteLink handles DELETE /api/links/{id}.
func (h *Handler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "link id must be a UUID", nil)
		return
	}

	if err := h.service.Delete(ctx, id, httpx.GetOwnerID(ctx)); err != nil {
		h.handleOwnerError(ctx, logger, w, err, "unable to delete link")
		return
	}

	logger.InfoContext(ctx, "link deleted", "link_id", id.String())
	w.WriteHeader(http.StatusNoContent)
}

// OwnerStats handles GET /api/stats.
func (h *Handler) OwnerStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	stats, err := h.service.OwnerStats(ctx, httpx.GetOwnerID(ctx))
	if err != nil {
		h.handleOwnerError(ctx, logger, w, err, "unable to load stats")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, OwnerStatsResponse{
		TotalLinks:   stats.TotalLinks,
		TotalClicks:  stats.TotalClicks,
		ActiveLinks:  stats.ActiveLinks,
		ExpiredLinks: stats.ExpiredLinks,
	})
}

func (h *Handler) requestLogger(r *http.Request) *slog.Logger {
	return h.logger.With(
		"request_id", httpx.GetRequestID(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
	)
}

func (h *Handler) toResponse(l Link) LinkResponse {
	resp := LinkResponse{
		ID:          l.ID.String(),
		Slug:        l.Slug,
		OriginalURL: l.OriginalURL,
		ShortURL:    h.baseURL + "/" + l.Slug,
		Clicks:      l.Clicks,
		IsActive:    l.IsActive,
		CreatedAt:   l.CreatedAt.UTC().Format(time.RFC3339),
	}
	if l.ExpiresAt != nil {
		exp := l.ExpiresAt.UTC().Format(time.RFC3339)
		resp.ExpiresAt = &exp
	}
	return resp
}

// handleCreateError handles errors from the Create service method.
func (h *Handler) handleCreateError(ctx context.Context, logger *slog.Logger, w http.ResponseWriter, err error) {
	logAttrs := errx.LogAttrs(err)

	switch {
	case errx.Is(err, errx.Conflict):
		logger.WarnContext(ctx, "slug conflict", logAttrs...)
		httpx.WriteError(w, http.StatusConflict, "conflict",
			"This slug is already taken",
			map[string]string{
				"hint": "Try a different custom slug or let us generate one for you",
			})

	case errx.Is(err, errx.Invalid):
		logger.WarnContext(ctx, "invalid link request", logAttrs...)
		httpx.WriteError(w, http.StatusBadRequest, "invalid_input", userMessage(err), nil)

	case errors.Is(err, ErrGenerationExhausted):
		logger.ErrorContext(ctx, "slug space exhausted, check slug length and alphabet", logAttrs...)
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error",
			"Unable to create short link at this time. Please try again.", nil)

	case errx.Is(err, errx.Unavailable):
		logger.ErrorContext(ctx, "service unavailable", logAttrs...)
		httpx.WriteError(w, http.StatusServiceUnavailable, "unavailable",
			"Unable to create short link at this time. Please try again.", nil)

	default:
		logger.ErrorContext(ctx, "unexpected error creating link", logAttrs...)
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error",
			"Unable to create short link at this time. Please try again.", nil)
	}
}

// handleResolveError handles errors from the Resolve service method.
func (h *Handler) handleResolveError(ctx context.Context, logger *slog.Logger, w http.ResponseWriter, err error, slug string) {
	kind := errx.KindOf(err)
	logAttrs := append(errx.LogAttrs(err), "slug", slug)

	switch kind {
	case errx.NotFound:
		logger.WarnContext(ctx, "slug not found", logAttrs...)
		httpx.WriteError(w, http.StatusNotFound, "not_found",
			"short link doesn't exist", nil)

	case errx.Gone:
		logger.InfoContext(ctx, "slug expired", logAttrs...)
		httpx.WriteError(w, http.StatusGone, "gone",
			"short link has expired", nil)

	case errx.Invalid:
		logger.WarnContext(ctx, "invalid slug", logAttrs...)
		httpx.WriteError(w, http.StatusBadRequest, "invalid_slug", err.Error(), nil)

	default:
		logger.ErrorContext(ctx, "unexpected error resolving link", logAttrs...)
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error",
			"Unable to resolve this link at this time", nil)
	}
}

// handleOwnerError maps errors from the owner-scoped endpoints.
func (h *Handler) handleOwnerError(ctx context.Context, logger *slog.Logger, w http.ResponseWriter, err error, fallback string) {
	kind := errx.KindOf(err)
	logAttrs := errx.LogAttrs(err)

	switch kind {
	case errx.NotFound:
		logger.InfoContext(ctx, "link not found", logAttrs...)
		httpx.WriteKindError(w, err, "link not found", nil)
	case errx.Forbidden:
		logger.WarnContext(ctx, "owner mismatch", logAttrs...)
		httpx.WriteKindError(w, err, "link belongs to another owner", nil)
	case errx.Invalid:
		logger.WarnContext(ctx, "invalid owner request", logAttrs...)
		httpx.WriteKindError(w, err, userMessage(err), nil)
	default:
		logger.ErrorContext(ctx, fallback, logAttrs...)
		httpx.WriteKindError(w, err, fallback, nil)
	}
}

// userMessage strips errx operation prefixes from err so only the
// innermost message reaches the client.
func userMessage(err error) string {
	for {
		var e *errx.Error
		if !errors.As(err, &e) {
			return err.Error()
		}
		if e.Err == nil {
			return e.Error()
		}
		err = e.Err
	}
}

// maxExpiresInSeconds is the largest lifetime that fits in a time.Duration.
const maxExpiresInSeconds = math.MaxInt64 / int64(time.Second)

// validateCreateRequest validates the HTTPCreateLinkRequest.
func validateCreateRequest(req HTTPCreateLinkRequest) error {
	if req.URL == "" {
		return errors.New("url is required")
	}
	if req.ExpiresInSeconds < 0 {
		return errors.New("expires_in_seconds must be positive")
	}
	if req.ExpiresInSeconds > maxExpiresInSeconds {
		return fmt.Errorf("expires_in_seconds must not exceed %d", maxExpiresInSeconds)
	}
	if req.ExpiresAt != nil && req.ExpiresInSeconds != 0 {
		return errors.New("set either expires_at or expires_in_seconds, not both")
	}
	return nil
}

// validateSlugFormat is a cheap shape check before the service is called.
func validateSlugFormat(slug string) error {
	if slug == "" || len(slug) > sluggen.MaxLength {
		return errors.New("invalid link")
	}
	return nil
}
