package database

import (
	"fmt"
	"path/filepath"

	"tcl-go/internal/config"
	"tcl-go/internal/ledger"
)

// NewStoreFromConfig creates a ledger.Store based on the database config
// type. "memory" is a throwaway in-memory SQLite database, useful for
// experiments; migrations still apply to it.
func NewStoreFromConfig(cfg config.DatabaseConfig) (ledger.Store, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		return NewSQLiteStore(filepath.Join(cfg.DataDir, "ledger.db"))
	case "memory":
		return NewSQLiteStore(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
