package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tcl-go/internal/config"
	"tcl-go/internal/ledger"
	"tcl-go/internal/model"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	return &config.Config{
		TenantID: "acme",
		BaseDir:  base,
		LogDir:   filepath.Join(base, "log"),
		Database: config.DatabaseConfig{Type: "memory"},
		Vault:    config.VaultConfig{Type: "memory", Name: "test"},
	}
}

func TestNewLedgerApp(t *testing.T) {
	a, err := NewLedgerApp(testConfig(t), "Test")
	if err != nil {
		t.Fatalf("NewLedgerApp() error = %v", err)
	}
	defer a.Close()

	if a.TenantID() != "acme" {
		t.Errorf("TenantID() = %q, want acme", a.TenantID())
	}

	// The wired service must be usable end to end: migrations applied,
	// store and vault live.
	entry, err := a.Service().RecordEvent(context.Background(), ledger.EventInput{
		TenantID:   "acme",
		EmployeeID: "emp-1",
		EventType:  model.EventCheckIn,
		Timestamp:  time.Now().UTC(),
		Source:     model.SourceManual,
	}, ledger.Actor{Name: "tester"})
	if err != nil {
		t.Fatalf("RecordEvent() error = %v", err)
	}
	if entry.NSR != 1 {
		t.Errorf("NSR = %d, want 1", entry.NSR)
	}

	// The log file was created.
	if _, err := os.Stat(filepath.Join(a.cfg.LogDir, "tcl.log")); err != nil {
		t.Errorf("log file missing: %v", err)
	}
}

func TestNewLedgerApp_BadVault(t *testing.T) {
	cfg := testConfig(t)
	cfg.Vault.Type = "tape"
	if _, err := NewLedgerApp(cfg, "Test"); err == nil {
		t.Error("NewLedgerApp() accepted unknown vault type")
	}
}

func TestResolvePassphrase_File(t *testing.T) {
	cfg := testConfig(t)
	passFile := filepath.Join(t.TempDir(), "passphrase")
	if err := os.WriteFile(passFile, []byte("hunter2\n"), 0600); err != nil {
		t.Fatalf("writing passphrase file: %v", err)
	}
	cfg.Keys.PassphraseFile = passFile

	a, err := NewLedgerApp(cfg, "Test")
	if err != nil {
		t.Fatalf("NewLedgerApp() error = %v", err)
	}
	defer a.Close()

	pass, err := a.ResolvePassphrase()
	if err != nil {
		t.Fatalf("ResolvePassphrase() error = %v", err)
	}
	if pass != "hunter2" {
		t.Errorf("ResolvePassphrase() = %q, want trimmed file contents", pass)
	}
}

func TestResolvePassphrase_EmptyFile(t *testing.T) {
	cfg := testConfig(t)
	passFile := filepath.Join(t.TempDir(), "passphrase")
	if err := os.WriteFile(passFile, []byte("  \n"), 0600); err != nil {
		t.Fatalf("writing passphrase file: %v", err)
	}
	cfg.Keys.PassphraseFile = passFile

	a, err := NewLedgerApp(cfg, "Test")
	if err != nil {
		t.Fatalf("NewLedgerApp() error = %v", err)
	}
	defer a.Close()

	if _, err := a.ResolvePassphrase(); err == nil {
		t.Error("ResolvePassphrase() accepted an empty passphrase file")
	}
}
