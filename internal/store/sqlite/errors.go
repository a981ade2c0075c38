package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sqlitedriver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sundayezeilo/shortlink/internal/errx"
	"github.com/sundayezeilo/shortlink/internal/shortener"
)

const slugViolation = "UNIQUE constraint failed: links.slug"

// isSlugUniqueViolation recognizes the modernc extended result code and the
// plain-text errors libsql returns for the same failure.
func isSlugUniqueViolation(err error) bool {
	var sqliteErr *sqlitedriver.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code() != sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return false
	}
	return strings.Contains(err.Error(), slugViolation)
}

func mapStoreError(op string, err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return errx.E(op, errx.NotFound, fmt.Errorf("%w: %w", shortener.ErrNotFound, err))

	case isSlugUniqueViolation(err):
		return errx.E(op, errx.Conflict, fmt.Errorf("%w: %w", shortener.ErrDuplicateSlug, err))

	default:
		return errx.E(op, errx.Unavailable, err)
	}
}
