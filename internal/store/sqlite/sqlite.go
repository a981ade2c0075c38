// Package sqlite implements shortener.Store on SQLite. Local files and
// in-memory databases use the pure-Go modernc driver; libsql:// and wss://
// URLs go to a remote libSQL (Turso) database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"

	"github.com/sundayezeilo/shortlink/internal/errx"
	"github.com/sundayezeilo/shortlink/internal/migrations"
	"github.com/sundayezeilo/shortlink/internal/shortener"
)

// Options configures Open.
type Options struct {
	// AutoMigrate applies the embedded schema after connecting.
	AutoMigrate bool
	Logger      *slog.Logger
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ shortener.Store       = (*Store)(nil)
	_ shortener.Deactivator = (*Store)(nil)
)

// DriverName picks the database/sql driver for dsn.
func DriverName(dsn string) string {
	if strings.Contains(dsn, "libsql://") || strings.Contains(dsn, "wss://") {
		return "libsql"
	}
	return "sqlite"
}

// Open connects to dsn and returns a Store that owns the handle.
func Open(ctx context.Context, dsn string, opts Options) (*Store, error) {
	driver := DriverName(dsn)

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	if driver == "sqlite" {
		// One connection keeps writers serialized and in-memory databases whole.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)

		for _, pragma := range []string{
			"PRAGMA busy_timeout = 5000",
			"PRAGMA journal_mode = WAL",
			"PRAGMA foreign_keys = ON",
		} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
			}
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", driver, err)
	}

	if opts.AutoMigrate {
		if err := migrations.Apply(db, migrations.SQLite, opts.Logger); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return New(db), nil
}

// New wraps an open handle whose schema is already migrated.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Close() error { return s.db.Close() }

const linkColumns = `id, original_url, slug, owner_id, created_at, expires_at, clicks, is_active`

const createLink = `
INSERT INTO links (id, original_url, slug, owner_id, created_at, expires_at, clicks, is_active)
VALUES (?, ?, ?, ?, ?, ?, 0, 1)`

const getLinkBySlug = `SELECT ` + linkColumns + ` FROM links WHERE slug = ?`

const incrementClicks = `UPDATE links SET clicks = clicks + 1 WHERE id = ? RETURNING clicks`

const deleteOwnedLink = `DELETE FROM links WHERE id = ? AND owner_id = ? RETURNING ` + linkColumns

const linkOwner = `SELECT owner_id FROM links WHERE id = ?`

const deactivateLink = `UPDATE links SET is_active = 0 WHERE id = ? RETURNING id`

const listLinksByOwner = `
SELECT ` + linkColumns + `
FROM links
WHERE owner_id = ?
ORDER BY created_at DESC, id DESC`

const purgeExpired = `DELETE FROM links WHERE expires_at IS NOT NULL AND expires_at <= ?`

func (s *Store) Create(ctx context.Context, draft shortener.LinkDraft) (shortener.Link, error) {
	const op = "store.sqlite.Create"

	id := draft.ID
	if id == uuid.Nil {
		var err error
		if id, err = uuid.NewV7(); err != nil {
			return shortener.Link{}, errx.E(op, errx.Internal, err)
		}
	}

	link := shortener.Link{
		ID:          id,
		OriginalURL: draft.OriginalURL,
		Slug:        draft.Slug,
		OwnerID:     draft.OwnerID,
		// Stored at microsecond precision.
		CreatedAt: s.now().UTC().Truncate(time.Microsecond),
		ExpiresAt: fromMicros(toMicros(draft.ExpiresAt)),
		IsActive:  true,
	}

	_, err := s.db.ExecContext(ctx, createLink,
		link.ID.String(),
		link.OriginalURL,
		link.Slug,
		nullString(link.OwnerID),
		link.CreatedAt.UnixMicro(),
		toMicros(link.ExpiresAt),
	)
	if err != nil {
		return shortener.Link{}, mapStoreError(op, err)
	}
	return link, nil
}

func (s *Store) GetBySlug(ctx context.Context, slug string) (shortener.Link, error) {
	const op = "store.sqlite.GetBySlug"

	link, err := scanLink(s.db.QueryRowContext(ctx, getLinkBySlug, slug))
	if err != nil {
		return shortener.Link{}, mapStoreError(op, err)
	}
	return link, nil
}

func (s *Store) IncrementClicks(ctx context.Context, id uuid.UUID) (int64, error) {
	const op = "store.sqlite.IncrementClicks"

	var clicks int64
	if err := s.db.QueryRowContext(ctx, incrementClicks, id.String()).Scan(&clicks); err != nil {
		return 0, mapStoreError(op, err)
	}
	return clicks, nil
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID, ownerID string) (shortener.Link, error) {
	const op = "store.sqlite.Delete"

	if ownerID != "" {
		link, err := scanLink(s.db.QueryRowContext(ctx, deleteOwnedLink, id.String(), ownerID))
		if err == nil {
			return link, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return shortener.Link{}, mapStoreError(op, err)
		}
	}

	var owner sql.NullString
	if err := s.db.QueryRowContext(ctx, linkOwner, id.String()).Scan(&owner); err != nil {
		return shortener.Link{}, mapStoreError(op, err)
	}
	return shortener.Link{}, errx.E(op, errx.Forbidden, shortener.ErrForbidden)
}

func (s *Store) Deactivate(ctx context.Context, id uuid.UUID) error {
	const op = "store.sqlite.Deactivate"

	var got string
	if err := s.db.QueryRowContext(ctx, deactivateLink, id.String()).Scan(&got); err != nil {
		return mapStoreError(op, err)
	}
	return nil
}

func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]shortener.Link, error) {
	const op = "store.sqlite.ListByOwner"

	rows, err := s.db.QueryContext(ctx, listLinksByOwner, ownerID)
	if err != nil {
		return nil, mapStoreError(op, err)
	}
	defer rows.Close()

	links := make([]shortener.Link, 0)
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, mapStoreError(op, err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, mapStoreError(op, err)
	}
	return links, nil
}

// PurgeExpired deletes links whose expiry is at or before now.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	const op = "store.sqlite.PurgeExpired"

	res, err := s.db.ExecContext(ctx, purgeExpired, now.UnixMicro())
	if err != nil {
		return 0, mapStoreError(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapStoreError(op, err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLink(row scanner) (shortener.Link, error) {
	var (
		link      shortener.Link
		id        string
		owner     sql.NullString
		createdAt int64
		expiresAt sql.NullInt64
	)
	err := row.Scan(
		&id,
		&link.OriginalURL,
		&link.Slug,
		&owner,
		&createdAt,
		&expiresAt,
		&link.Clicks,
		&link.IsActive,
	)
	if err != nil {
		return shortener.Link{}, err
	}

	link.ID, err = uuid.Parse(id)
	if err != nil {
		return shortener.Link{}, fmt.Errorf("stored link id %q: %w", id, err)
	}
	link.OwnerID = owner.String
	link.CreatedAt = time.UnixMicro(createdAt).UTC()
	link.ExpiresAt = fromMicros(expiresAt)
	return link, nil
}

func toMicros(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMicro(), Valid: true}
}

func fromMicros(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMicro(v.Int64).UTC()
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
