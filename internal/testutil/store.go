package testutil

import (
	"testing"

	"tcl-go/internal/database"
	"tcl-go/internal/database/migrations"
	"tcl-go/internal/ledger"
)

// NewTestStore creates an in-memory SQLite store with the full schema
// applied. The store is automatically closed when the test completes.
func NewTestStore(t *testing.T) ledger.Store {
	t.Helper()

	db, err := database.OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		t.Fatalf("failed to apply migrations: %v", err)
	}

	store := database.NewSQLiteStoreFromDB(db)
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
