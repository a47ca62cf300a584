package app

import (
	"fmt"
	"os"
	"time"

	"tcl-go/internal/config"
	"tcl-go/internal/database"
	"tcl-go/internal/database/migrations"
	"tcl-go/internal/ledger"
	"tcl-go/internal/vault"
)

// LedgerApp is the application layer between the CLI and the ledger Service.
// It constructs all dependencies from config and manages the store lifecycle
// on Close.
type LedgerApp struct {
	cfg     *config.Config
	store   ledger.Store
	vault   ledger.Vault
	service *ledger.Service
	logFile *os.File
}

// NewLedgerApp creates a fully wired LedgerApp from the given config.
// operation identifies the CLI command being run (e.g. "Record", "Verify").
// The caller must call Close when done.
func NewLedgerApp(cfg *config.Config, operation string) (*LedgerApp, error) {
	store, err := database.NewStoreFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}

	if ss, ok := store.(*database.SQLiteStore); ok {
		if err := migrations.MigrateUp(ss.DB()); err != nil {
			store.Close()
			return nil, fmt.Errorf("migrating database: %w", err)
		}
	}

	v, err := vault.NewVaultFromConfig(cfg.Vault)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating vault: %w", err)
	}

	opID := time.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger = logger.With("operation", operation)

	svc := ledger.NewService(store, v, &slogAdapter{l: logger}, ledger.RealClock{}, ledger.UUIDGenerator{})

	return &LedgerApp{
		cfg:     cfg,
		store:   store,
		vault:   v,
		service: svc,
		logFile: logFile,
	}, nil
}

// Service returns the wired ledger service for command handlers.
func (a *LedgerApp) Service() *ledger.Service { return a.service }

// TenantID returns the configured default tenant.
func (a *LedgerApp) TenantID() string { return a.cfg.TenantID }

// Close releases the store and the log file.
func (a *LedgerApp) Close() error {
	var firstErr error
	if err := a.store.Close(); err != nil {
		firstErr = err
	}
	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
