package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/sundayezeilo/shortlink/internal/errx"
	"github.com/sundayezeilo/shortlink/internal/shortener"
)

/***************
 * Mocks / Stubs
 ***************/

type fakeRow struct {
	scan func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

func noRows() pgx.Row {
	return fakeRow{scan: func(...any) error { return pgx.ErrNoRows }}
}

// mockDB implements DBTX; queryRow sees each statement in order.
type mockDB struct {
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	execFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	statements   []string
}

func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.statements = append(m.statements, sql)
	if m.execFunc != nil {
		return m.execFunc(ctx, sql, args...)
	}
	return pgconn.NewCommandTag("DELETE 0"), nil
}

func (m *mockDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	m.statements = append(m.statements, sql)
	return nil, errors.New("not implemented")
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	m.statements = append(m.statements, sql)
	if m.queryRowFunc != nil {
		return m.queryRowFunc(ctx, sql, args...)
	}
	return noRows()
}

/***************
 * Unit tests: helpers
 ***************/

func TestMustTime(t *testing.T) {
	t.Run("returns UTC time when timestamp is valid", func(t *testing.T) {
		now := time.Now()
		got, err := mustTime(pgtype.Timestamptz{Time: now, Valid: true}, "created_at")
		if err != nil {
			t.Fatalf("mustTime() unexpected error: %v", err)
		}
		if !got.Equal(now) {
			t.Errorf("mustTime() = %v, want %v", got, now)
		}
		if got.Location() != time.UTC {
			t.Errorf("mustTime() location = %v, want UTC", got.Location())
		}
	})

	t.Run("returns error naming the field when NULL", func(t *testing.T) {
		_, err := mustTime(pgtype.Timestamptz{}, "created_at")
		if err == nil {
			t.Fatal("mustTime() expected error, got nil")
		}
		if !strings.Contains(err.Error(), "created_at") {
			t.Errorf("error %q does not name the field", err.Error())
		}
	})
}

func TestTimePtrAndParam(t *testing.T) {
	if got := timePtr(pgtype.Timestamptz{}); got != nil {
		t.Errorf("timePtr(NULL) = %v, want nil", got)
	}

	now := time.Now()
	got := timePtr(timestampParam(&now))
	if got == nil || !got.Equal(now) {
		t.Errorf("round trip = %v, want %v", got, now)
	}

	if timestampParam(nil).Valid {
		t.Error("timestampParam(nil) should be NULL")
	}
}

func TestOwnerParam(t *testing.T) {
	if ownerParam("").Valid {
		t.Error("empty owner should be NULL")
	}
	if p := ownerParam("user-1"); !p.Valid || p.String != "user-1" {
		t.Errorf("ownerParam() = %+v", p)
	}
}

func TestMapStoreError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind errx.Kind
		wantIs   error
	}{
		{
			name:     "no rows is not found",
			err:      pgx.ErrNoRows,
			wantKind: errx.NotFound,
			wantIs:   shortener.ErrNotFound,
		},
		{
			name:     "slug unique violation is duplicate",
			err:      &pgconn.PgError{Code: "23505", ConstraintName: SlugConstraint},
			wantKind: errx.Conflict,
			wantIs:   shortener.ErrDuplicateSlug,
		},
		{
			name:     "primary key violation is not a slug conflict",
			err:      &pgconn.PgError{Code: "23505", ConstraintName: "links_pkey"},
			wantKind: errx.Unavailable,
		},
		{
			name:     "connection failure is unavailable",
			err:      errors.New("connection refused"),
			wantKind: errx.Unavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapStoreError("store.postgres.Test", tt.err)
			if errx.KindOf(err) != tt.wantKind {
				t.Errorf("KindOf() = %v, want %v", errx.KindOf(err), tt.wantKind)
			}
			if tt.wantIs != nil && !errors.Is(err, tt.wantIs) {
				t.Errorf("errors.Is(%v, %v) = false", err, tt.wantIs)
			}
			if !errors.Is(err, tt.err) {
				t.Error("driver error is not preserved in the chain")
			}
			if errx.OpOf(err) != "store.postgres.Test" {
				t.Errorf("OpOf() = %q", errx.OpOf(err))
			}
		})
	}
}

/***************
 * Unit tests: store
 ***************/

func TestStore_Delete_DistinguishesMissingFromForeign(t *testing.T) {
	ctx := context.Background()
	id := uuid.Must(uuid.NewV7())

	t.Run("missing link", func(t *testing.T) {
		db := &mockDB{}
		_, err := New(db).Delete(ctx, id, "owner-1")
		if errx.KindOf(err) != errx.NotFound {
			t.Errorf("KindOf() = %v, want %v", errx.KindOf(err), errx.NotFound)
		}
		if len(db.statements) != 2 {
			t.Errorf("ran %d statements, want 2", len(db.statements))
		}
	})

	t.Run("link owned by someone else", func(t *testing.T) {
		db := &mockDB{
			queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
				if sql == linkOwner {
					return fakeRow{scan: func(dest ...any) error {
						*dest[0].(*pgtype.Text) = pgtype.Text{String: "owner-2", Valid: true}
						return nil
					}}
				}
				return noRows()
			},
		}
		_, err := New(db).Delete(ctx, id, "owner-1")
		if !errors.Is(err, shortener.ErrForbidden) {
			t.Errorf("Delete() error = %v, want ErrForbidden", err)
		}
	})

	t.Run("anonymous caller skips the delete statement", func(t *testing.T) {
		db := &mockDB{
			queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
				return fakeRow{scan: func(dest ...any) error { return nil }}
			},
		}
		_, err := New(db).Delete(ctx, id, "")
		if errx.KindOf(err) != errx.Forbidden {
			t.Errorf("KindOf() = %v, want %v", errx.KindOf(err), errx.Forbidden)
		}
		if len(db.statements) != 1 || db.statements[0] != linkOwner {
			t.Errorf("statements = %v, want only the owner lookup", db.statements)
		}
	})
}

func TestStore_IncrementClicks_Missing(t *testing.T) {
	_, err := New(&mockDB{}).IncrementClicks(context.Background(), uuid.Must(uuid.NewV7()))
	if !errors.Is(err, shortener.ErrNotFound) {
		t.Errorf("IncrementClicks() error = %v, want ErrNotFound", err)
	}
}

func TestStore_PurgeExpired(t *testing.T) {
	var gotCutoff time.Time
	db := &mockDB{
		execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			gotCutoff = args[0].(time.Time)
			return pgconn.NewCommandTag("DELETE 3"), nil
		},
	}

	now := time.Now()
	n, err := New(db).PurgeExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("PurgeExpired() unexpected error: %v", err)
	}
	if n != 3 {
		t.Errorf("PurgeExpired() = %d, want 3", n)
	}
	if !gotCutoff.Equal(now) {
		t.Errorf("cutoff = %v, want %v", gotCutoff, now)
	}
}
