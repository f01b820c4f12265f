package sqlite

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// NewTestDB creates a migrated in-memory database closed at test cleanup.
func NewTestDB(t testing.TB) *DB {
	t.Helper()

	db, err := New(":memory:")
	require.NoError(t, err, "failed to create test database")
	require.NoError(t, db.RunMigrations(), "failed to run migrations")

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}
