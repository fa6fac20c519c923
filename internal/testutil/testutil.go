// Package testutil provides a migrated SQLite database per test.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"library-backend/internal/database"
)

// NewDB migrates a fresh SQLite file under t.TempDir and opens it. The
// handle is closed when the test ends.
func NewDB(t *testing.T) *database.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "library.db")
	require.NoError(t, database.Migrate(database.DriverSQLite, path, database.Up), "migrate test database")

	db, err := database.Open(context.Background(), database.DriverSQLite, path)
	require.NoError(t, err, "open test database")
	t.Cleanup(func() { db.Close() })

	return db
}
