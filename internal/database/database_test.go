package database_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-backend/internal/database"
	"library-backend/internal/testutil"
)

func insertBook(t *testing.T, db *database.DB, q database.Querier, title string, copies int) int64 {
	t.Helper()
	now := time.Now().UTC()
	id, err := db.Insert(context.Background(), q, db.Builder().Insert("books").Rows(goqu.Record{
		"title":            title,
		"author":           "author",
		"title_key":        strings.ToLower(title),
		"author_key":       "author",
		"available_copies": copies,
		"created_at":       now,
		"updated_at":       now,
	}))
	require.NoError(t, err)
	return id
}

func countBooks(t *testing.T, db *database.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.Find(context.Background(), db, &n, db.Builder().From("books").Select(goqu.COUNT("*"))))
	return n
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := database.Open(context.Background(), "mysql", "whatever")
	assert.ErrorIs(t, err, database.ErrUnsupportedDriver)
}

func TestMigrate_UpIsIdempotentAndDownDrops(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")

	require.NoError(t, database.Migrate(database.DriverSQLite, path, database.Up))
	require.NoError(t, database.Migrate(database.DriverSQLite, path, database.Up))

	db, err := database.Open(context.Background(), database.DriverSQLite, path)
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, 0, countBooks(t, db))

	require.NoError(t, database.Migrate(database.DriverSQLite, path, database.Down))
	var n int
	err = db.Find(context.Background(), db, &n, db.Builder().From("books").Select(goqu.COUNT("*")))
	assert.Error(t, err, "books table should be gone after down")
}

func TestInsertAndFind(t *testing.T) {
	db := testutil.NewDB(t)

	id := insertBook(t, db, db, "Dune", 3)
	assert.Positive(t, id)

	var copies int
	err := db.Find(context.Background(), db, &copies, db.Builder().
		From("books").Select("available_copies").Where(goqu.C("id").Eq(id)))
	require.NoError(t, err)
	assert.Equal(t, 3, copies)
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	db := testutil.NewDB(t)

	err := db.WithTx(context.Background(), func(ctx context.Context, tx *sqlx.Tx) error {
		insertBook(t, db, tx, "Emma", 1)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countBooks(t, db))
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	db := testutil.NewDB(t)
	boom := errors.New("boom")

	err := db.WithTx(context.Background(), func(ctx context.Context, tx *sqlx.Tx) error {
		insertBook(t, db, tx, "Emma", 1)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, countBooks(t, db))
}

func TestWithTx_RetriesConflicts(t *testing.T) {
	db := testutil.NewDB(t)
	db.SetRetry(4, time.Millisecond)

	calls := 0
	err := db.WithTx(context.Background(), func(ctx context.Context, tx *sqlx.Tx) error {
		calls++
		insertBook(t, db, tx, "Persuasion", 1)
		if calls < 3 {
			return database.ErrTxConflict
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 1, countBooks(t, db), "failed attempts must not leave rows behind")
}

func TestWithTx_GivesUpAfterMaxAttempts(t *testing.T) {
	db := testutil.NewDB(t)
	db.SetRetry(3, 0)

	calls := 0
	err := db.WithTx(context.Background(), func(ctx context.Context, tx *sqlx.Tx) error {
		calls++
		return &pq.Error{Code: "40001"}
	})
	assert.ErrorIs(t, err, database.ErrTxConflict)
	assert.Equal(t, 3, calls)
}

func TestWithTx_DoesNotRetryOtherErrors(t *testing.T) {
	db := testutil.NewDB(t)

	calls := 0
	err := db.WithTx(context.Background(), func(ctx context.Context, tx *sqlx.Tx) error {
		calls++
		return errors.New("permanent")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestIsUniqueViolation(t *testing.T) {
	db := testutil.NewDB(t)
	insertBook(t, db, db, "Dune", 1)

	now := time.Now().UTC()
	_, err := db.Insert(context.Background(), db, db.Builder().Insert("books").Rows(goqu.Record{
		"title":            "DUNE",
		"author":           "Author",
		"title_key":        "dune",
		"author_key":       "author",
		"available_copies": 1,
		"created_at":       now,
		"updated_at":       now,
	}))
	require.Error(t, err)
	assert.True(t, database.IsUniqueViolation(err), "duplicate key should be rejected: %v", err)

	assert.True(t, database.IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.True(t, database.IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, database.IsUniqueViolation(errors.New("other")))
}

func TestIsSerializationFailure(t *testing.T) {
	assert.True(t, database.IsSerializationFailure(&pq.Error{Code: "40001"}))
	assert.True(t, database.IsSerializationFailure(&pgconn.PgError{Code: "40P01"}))
	assert.False(t, database.IsSerializationFailure(&pgconn.PgError{Code: "23505"}))
	assert.False(t, database.IsSerializationFailure(nil))
}
