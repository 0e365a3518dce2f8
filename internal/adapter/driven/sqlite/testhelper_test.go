package sqlite

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

// setupTestDB returns a migrated, named in-memory database private to t.
// Both pools see the same data through cache=shared.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	params := url.Values{"mode": {"memory"}, "cache": {"shared"}}
	dsn := buildDSN(url.PathEscape(t.Name()), params, []string{"busy_timeout(5000)"})

	db, err := open(context.Background(), dsn)
	require.NoError(t, err, "open test db")
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, RunMigrations(db.Writer), "run migrations")
	return db
}
