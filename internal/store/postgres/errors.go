package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sundayezeilo/shortlink/internal/errx"
	"github.com/sundayezeilo/shortlink/internal/shortener"
)

const uniqueViolation = "23505"

func isSlugUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == uniqueViolation &&
		pgErr.ConstraintName == SlugConstraint
}

func mapStoreError(op string, err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return errx.E(op, errx.NotFound, fmt.Errorf("%w: %w", shortener.ErrNotFound, err))

	case isSlugUniqueViolation(err):
		return errx.E(op, errx.Conflict, fmt.Errorf("%w: %w", shortener.ErrDuplicateSlug, err))

	default:
		return errx.E(op, errx.Unavailable, err)
	}
}
