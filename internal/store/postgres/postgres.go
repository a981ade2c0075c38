// Package postgres implements shortener.Store on PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/sundayezeilo/shortlink/internal/errx"
	"github.com/sundayezeilo/shortlink/internal/shortener"
)

// SlugConstraint is the unique constraint guarding slugs.
const SlugConstraint = "links_slug_key"

// DBTX is the subset of *pgxpool.Pool, *pgx.Conn and pgx.Tx the store uses.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db DBTX
}

var (
	_ shortener.Store       = (*Store)(nil)
	_ shortener.Deactivator = (*Store)(nil)
)

func New(db DBTX) *Store {
	return &Store{db: db}
}

const linkColumns = `id, original_url, slug, owner_id, created_at, expires_at, clicks, is_active`

const createLink = `
INSERT INTO links (id, original_url, slug, owner_id, expires_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + linkColumns

const getLinkBySlug = `
SELECT ` + linkColumns + `
FROM links
WHERE slug = $1`

const incrementClicks = `
UPDATE links
SET clicks = clicks + 1
WHERE id = $1
RETURNING clicks`

const deleteOwnedLink = `
DELETE FROM links
WHERE id = $1 AND owner_id = $2
RETURNING ` + linkColumns

const linkOwner = `SELECT owner_id FROM links WHERE id = $1`

const deactivateLink = `
UPDATE links
SET is_active = false
WHERE id = $1
RETURNING id`

const listLinksByOwner = `
SELECT ` + linkColumns + `
FROM links
WHERE owner_id = $1
ORDER BY created_at DESC, id DESC`

const purgeExpired = `
DELETE FROM links
WHERE expires_at IS NOT NULL AND expires_at <= $1`

func (s *Store) Create(ctx context.Context, draft shortener.LinkDraft) (shortener.Link, error) {
	const op = "store.postgres.Create"

	id := draft.ID
	if id == uuid.Nil {
		var err error
		if id, err = uuid.NewV7(); err != nil {
			return shortener.Link{}, errx.E(op, errx.Internal, err)
		}
	}

	row := s.db.QueryRow(ctx, createLink,
		id,
		draft.OriginalURL,
		draft.Slug,
		ownerParam(draft.OwnerID),
		timestampParam(draft.ExpiresAt),
	)
	link, err := scanLink(row)
	if err != nil {
		return shortener.Link{}, mapStoreError(op, err)
	}
	return link, nil
}

func (s *Store) GetBySlug(ctx context.Context, slug string) (shortener.Link, error) {
	const op = "store.postgres.GetBySlug"

	link, err := scanLink(s.db.QueryRow(ctx, getLinkBySlug, slug))
	if err != nil {
		return shortener.Link{}, mapStoreError(op, err)
	}
	return link, nil
}

func (s *Store) IncrementClicks(ctx context.Context, id uuid.UUID) (int64, error) {
	const op = "store.postgres.IncrementClicks"

	var clicks int64
	if err := s.db.QueryRow(ctx, incrementClicks, id).Scan(&clicks); err != nil {
		return 0, mapStoreError(op, err)
	}
	return clicks, nil
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID, ownerID string) (shortener.Link, error) {
	const op = "store.postgres.Delete"

	if ownerID != "" {
		link, err := scanLink(s.db.QueryRow(ctx, deleteOwnedLink, id, ownerID))
		if err == nil {
			return link, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return shortener.Link{}, mapStoreError(op, err)
		}
	}

	// Nothing deleted: tell a missing link from someone else's.
	var owner pgtype.Text
	if err := s.db.QueryRow(ctx, linkOwner, id).Scan(&owner); err != nil {
		return shortener.Link{}, mapStoreError(op, err)
	}
	return shortener.Link{}, errx.E(op, errx.Forbidden, shortener.ErrForbidden)
}

func (s *Store) Deactivate(ctx context.Context, id uuid.UUID) error {
	const op = "store.postgres.Deactivate"

	var got uuid.UUID
	if err := s.db.QueryRow(ctx, deactivateLink, id).Scan(&got); err != nil {
		return mapStoreError(op, err)
	}
	return nil
}

func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]shortener.Link, error) {
	const op = "store.postgres.ListByOwner"

	rows, err := s.db.Query(ctx, listLinksByOwner, ownerID)
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
	const op = "store.postgres.PurgeExpired"

	tag, err := s.db.Exec(ctx, purgeExpired, now)
	if err != nil {
		return 0, mapStoreError(op, err)
	}
	return tag.RowsAffected(), nil
}

func scanLink(row pgx.Row) (shortener.Link, error) {
	var (
		link      shortener.Link
		owner     pgtype.Text
		createdAt pgtype.Timestamptz
		expiresAt pgtype.Timestamptz
	)
	err := row.Scan(
		&link.ID,
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

	link.CreatedAt, err = mustTime(createdAt, "created_at")
	if err != nil {
		return shortener.Link{}, err
	}
	link.ExpiresAt = timePtr(expiresAt)
	link.OwnerID = owner.String
	return link, nil
}

func mustTime(ts pgtype.Timestamptz, field string) (time.Time, error) {
	if !ts.Valid {
		return time.Time{}, fmt.Errorf("%s unexpectedly NULL", field)
	}
	return ts.Time.UTC(), nil
}

func timePtr(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time.UTC()
	return &t
}

func timestampParam(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

// ownerParam stores anonymous links with a NULL owner.
func ownerParam(ownerID string) pgtype.Text {
	return pgtype.Text{String: ownerID, Valid: ownerID != ""}
}
