// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/iliyamo/agriplan/internal/config"
	"github.com/iliyamo/agriplan/internal/database"
)

// OpenDB creates a SQLite database in a per-test directory and applies the
// migrations.  The database is closed when the test ends.
func OpenDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "agriplan.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := database.Migrate(context.Background(), db, config.DriverSQLite); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}
