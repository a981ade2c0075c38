package shortener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sundayezeilo/shortlink/internal/errx"
	"github.com/sundayezeilo/shortlink/internal/httpx"
)

/***************
 * Mocks
 ***************/

// mockService implements Service for testing.
type mockService struct {
	createFunc     func(ctx context.Context, req CreateLinkRequest) (ShortLink, error)
	resolveFunc    func(ctx context.Context, slug string) (string, error)
	statsFunc      func(ctx context.Context, slug, ownerID string) (Link, error)
	deleteFunc     func(ctx context.Context, id uuid.UUID, ownerID string) error
	listFunc       func(ctx context.Context, ownerID string) ([]Link, error)
	ownerStatsFunc func(ctx context.Context, ownerID string) (OwnerStats, error)

	lastCreate   CreateLinkRequest
	resolveCalls int
}

func (m *mockService) Create(ctx context.Context, req CreateLinkRequest) (ShortLink, error) {
	m.lastCreate = req
	if m.createFunc != nil {
		return m.createFunc(ctx, req)
	}
	return ShortLink{}, errors.New("create not configured")
}

func (m *mockService) Resolve(ctx context.Context, slug string) (string, error) {
	m.resolveCalls++
	if m.resolveFunc != nil {
		return m.resolveFunc(ctx, slug)
	}
	return "", errors.New("resolve not configured")
}

func (m *mockService) Stats(ctx context.Context, slug, ownerID string) (Link, error) {
	if m.statsFunc != nil {
		return m.statsFunc(ctx, slug, ownerID)
	}
	return Link{}, errors.New("stats not configured")
}

func (m *mockService) Delete(ctx context.Context, id uuid.UUID, ownerID string) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, id, ownerID)
	}
	return nil
}

func (m *mockService) ListByOwner(ctx context.Context, ownerID string) ([]Link, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, ownerID)
	}
	return nil, nil
}

func (m *mockService) OwnerStats(ctx context.Context, ownerID string) (OwnerStats, error) {
	if m.ownerStatsFunc != nil {
		return m.ownerStatsFunc(ctx, ownerID)
	}
	return OwnerStats{}, nil
}

/***************
 * Helpers
 ***************/

func newTestMux(svc Service) *http.ServeMux {
	h := NewHandler(HandlerConfig{Service: svc, Logger: discardLogger(), BaseURL: "https://sho.rt"})
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/links", h.CreateLink)
	mux.HandleFunc("GET /api/links", h.ListLinks)
	mux.HandleFunc("GET /api/links/{slug}", h.GetLinkStats)
	mux.HandleFunc("DELETE /api/links/{id}", h.DeleteLink)
	mux.HandleFunc("GET /api/stats", h.OwnerStats)
	mux.HandleFunc("GET /{slug}", h.ResolveLink)
	return mux
}

func serve(mux http.Handler, method, path, body, owner string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if owner != "" {
		req = req.WithContext(httpx.WithOwnerID(req.Context(), owner))
	}
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) httpx.ErrorResponse {
	t.Helper()
	var resp httpx.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error body %q: %v", rr.Body.String(), err)
	}
	return resp
}

/***************
 * CreateLink
 ***************/

func TestHandler_CreateLink(t *testing.T) {
	id := uuid.Must(uuid.NewV7())
	expires := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)

	svc := &mockService{
		createFunc: func(ctx context.Context, req CreateLinkRequest) (ShortLink, error) {
			return ShortLink{
				Link: Link{
					ID:          id,
					OriginalURL: "https://example.com/a/b",
					Slug:        "x1Y2z3",
					OwnerID:     req.OwnerID,
					CreatedAt:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
					ExpiresAt:   &expires,
					IsActive:    true,
				},
				ShortURL: "https://sho.rt/x1Y2z3",
			}, nil
		},
	}
	mux := newTestMux(svc)

	rr := serve(mux, http.MethodPost, "/api/links", `{"url":"example.com/a/b","expires_in_seconds":600}`, "user-1")

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", rr.Code, rr.Body.String())
	}
	var resp LinkResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID != id.String() || resp.Slug != "x1Y2z3" || resp.ShortURL != "https://sho.rt/x1Y2z3" {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.ExpiresAt == nil || *resp.ExpiresAt != "2030-01-02T03:04:05Z" {
		t.Errorf("ExpiresAt = %v", resp.ExpiresAt)
	}
	if svc.lastCreate.OwnerID != "user-1" {
		t.Errorf("OwnerID = %q, want user-1", svc.lastCreate.OwnerID)
	}
	if svc.lastCreate.ExpiresIn != 10*time.Minute {
		t.Errorf("ExpiresIn = %v, want 10m", svc.lastCreate.ExpiresIn)
	}
}

func TestHandler_CreateLink_Anonymous(t *testing.T) {
	svc := &mockService{
		createFunc: func(ctx context.Context, req CreateLinkRequest) (ShortLink, error) {
			return ShortLink{Link: Link{Slug: "anon01"}, ShortURL: "https://sho.rt/anon01"}, nil
		},
	}

	rr := serve(newTestMux(svc), http.MethodPost, "/api/links", `{"url":"https://example.com"}`, "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rr.Code)
	}
	if svc.lastCreate.OwnerID != "" {
		t.Errorf("OwnerID = %q, want anonymous", svc.lastCreate.OwnerID)
	}
}

func TestHandler_CreateLink_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{
			name:       "malformed body",
			body:       `{"url":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
		{
			name:       "unknown field",
			body:       `{"url":"https://example.com","owner_id":"someone"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
		{
			name:       "missing url",
			body:       `{"custom_slug":"abc123"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "validation_failed",
			wantMsg:    "url is required",
		},
		{
			name:       "invalid url from service",
			body:       `{"url":"ftp://example.com"}`,
			err:        errx.E("shortener.service.Create", errx.Invalid, fmt.Errorf("%w: url scheme must be http or https", ErrInvalidURL)),
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_input",
			wantMsg:    "invalid url: url scheme must be http or https",
		},
		{
			name:       "slug conflict",
			body:       `{"url":"https://example.com","custom_slug":"abc123"}`,
			err:        errx.E("shortener.service.Create", errx.Conflict, ErrSlugConflict),
			wantStatus: http.StatusConflict,
			wantCode:   "conflict",
		},
		{
			name:       "generation exhausted",
			body:       `{"url":"https://example.com"}`,
			err:        errx.E("sluggen.Generate", errx.Internal, ErrGenerationExhausted),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "internal_error",
		},
		{
			name:       "store unavailable",
			body:       `{"url":"https://example.com"}`,
			err:        errx.E("store.postgres.Create", errx.Unavailable, errors.New("dial tcp: refused")),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "unavailable",
		},
		{
			name:       "unexpected",
			body:       `{"url":"https://example.com"}`,
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockService{
				createFunc: func(ctx context.Context, req CreateLinkRequest) (ShortLink, error) {
					return ShortLink{}, tt.err
				},
			}

			rr := serve(newTestMux(svc), http.MethodPost, "/api/links", tt.body, "")

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
			resp := decodeError(t, rr)
			if resp.Error != tt.wantCode {
				t.Errorf("code = %q, want %q", resp.Error, tt.wantCode)
			}
			if tt.wantMsg != "" && resp.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", resp.Message, tt.wantMsg)
			}
		})
	}
}

func TestHandler_CreateLink_WrongContentType(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/links", strings.NewReader("url=https://example.com"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()

	newTestMux(&mockService{}).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d, want 415", rr.Code)
	}
}

/***************
 * ResolveLink
 ***************/

func TestHandler_ResolveLink(t *testing.T) {
	tests := []struct {
		name         string
		path         string
		target       string
		err          error
		wantStatus   int
		wantLocation string
		wantResolve  bool
	}{
		{
			name:         "redirects",
			path:         "/abc123",
			target:       "https://example.com/a/b",
			wantStatus:   http.StatusFound,
			wantLocation: "https://example.com/a/b",
			wantResolve:  true,
		},
		{
			name:        "unknown slug",
			path:        "/nope99",
			err:         errx.E("shortener.service.Resolve", errx.NotFound, ErrNotFound),
			wantStatus:  http.StatusNotFound,
			wantResolve: true,
		},
		{
			name:        "expired slug",
			path:        "/old123",
			err:         errx.E("shortener.service.Resolve", errx.Gone, ErrExpired),
			wantStatus:  http.StatusGone,
			wantResolve: true,
		},
		{
			name:        "store failure",
			path:        "/abc123",
			err:         errx.E("store.postgres.GetBySlug", errx.Unavailable, errors.New("timeout")),
			wantStatus:  http.StatusInternalServerError,
			wantResolve: true,
		},
		{
			name:        "oversized slug never reaches the service",
			path:        "/" + strings.Repeat("a", 65),
			wantStatus:  http.StatusNotFound,
			wantResolve: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockService{
				resolveFunc: func(ctx context.Context, slug string) (string, error) {
					return tt.target, tt.err
				},
			}

			rr := serve(newTestMux(svc), http.MethodGet, tt.path, "", "")

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if got := rr.Header().Get("Location"); got != tt.wantLocation {
				t.Errorf("Location = %q, want %q", got, tt.wantLocation)
			}
			if (svc.resolveCalls > 0) != tt.wantResolve {
				t.Errorf("resolve calls = %d, wantResolve %v", svc.resolveCalls, tt.wantResolve)
			}
		})
	}
}

/***************
 * Owner endpoints
 ***************/

func TestHandler_GetLinkStats(t *testing.T) {
	svc := &mockService{
		statsFunc: func(ctx context.Context, slug, ownerID string) (Link, error) {
			if ownerID != "user-1" {
				return Link{}, errx.E("shortener.service.Stats", errx.Forbidden, ErrForbidden)
			}
			return Link{ID: uuid.Must(uuid.NewV7()), Slug: slug, OwnerID: ownerID, Clicks: 12, IsActive: true}, nil
		},
	}
	mux := newTestMux(svc)

	rr := serve(mux, http.MethodGet, "/api/links/abc123", "", "user-1")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var resp LinkResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Clicks != 12 || resp.ShortURL != "https://sho.rt/abc123" || resp.ExpiresAt != nil {
		t.Errorf("unexpected response %+v", resp)
	}

	rr = serve(mux, http.MethodGet, "/api/links/abc123", "", "user-2")
	if rr.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rr.Code)
	}
}

func TestHandler_ListLinks(t *testing.T) {
	svc := &mockService{
		listFunc: func(ctx context.Context, ownerID string) ([]Link, error) {
			return []Link{{Slug: "new001"}, {Slug: "old001"}}, nil
		},
	}

	rr := serve(newTestMux(svc), http.MethodGet, "/api/links", "", "user-1")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var resp ListLinksResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 2 || resp.Links[0].Slug != "new001" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestHandler_ListLinks_Empty(t *testing.T) {
	rr := serve(newTestMux(&mockService{}), http.MethodGet, "/api/links", "", "user-1")
	if !strings.Contains(rr.Body.String(), `"links":[]`) {
		t.Errorf("expected empty array, got %s", rr.Body.String())
	}
}

func TestHandler_DeleteLink(t *testing.T) {
	id := uuid.Must(uuid.NewV7())

	tests := []struct {
		name       string
		path       string
		err        error
		wantStatus int
	}{
		{"deleted", "/api/links/" + id.String(), nil, http.StatusNoContent},
		{"not a uuid", "/api/links/abc123", nil, http.StatusBadRequest},
		{"missing", "/api/links/" + id.String(), errx.E("store.memory.Delete", errx.NotFound, ErrNotFound), http.StatusNotFound},
		{"foreign", "/api/links/" + id.String(), errx.E("store.memory.Delete", errx.Forbidden, ErrForbidden), http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotID uuid.UUID
			svc := &mockService{
				deleteFunc: func(ctx context.Context, id uuid.UUID, ownerID string) error {
					gotID = id
					return tt.err
				},
			}

			rr := serve(newTestMux(svc), http.MethodDelete, tt.path, "", "user-1")

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusNoContent && gotID != id {
				t.Errorf("deleted %v, want %v", gotID, id)
			}
		})
	}
}

func TestHandler_OwnerStats(t *testing.T) {
	svc := &mockService{
		ownerStatsFunc: func(ctx context.Context, ownerID string) (OwnerStats, error) {
			return OwnerStats{TotalLinks: 3, TotalClicks: 40, ActiveLinks: 2, ExpiredLinks: 1}, nil
		},
	}

	rr := serve(newTestMux(svc), http.MethodGet, "/api/stats", "", "user-1")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var resp OwnerStatsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := OwnerStatsResponse{TotalLinks: 3, TotalClicks: 40, ActiveLinks: 2, ExpiredLinks: 1}
	if resp != want {
		t.Errorf("response = %+v, want %+v", resp, want)
	}
}
