package database_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"tcl-go/internal/config"
	"tcl-go/internal/database"
	"tcl-go/internal/database/migrations"
	"tcl-go/internal/ledger"
	"tcl-go/internal/model"
)

func newStore(t *testing.T) *database.SQLiteStore {
	t.Helper()

	db, err := database.OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("OpenConnection() error = %v", err)
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		t.Fatalf("MigrateUp() error = %v", err)
	}
	store := database.NewSQLiteStoreFromDB(db)
	t.Cleanup(func() { store.Close() })
	return store
}

// appendOne inserts entry nsr with a correctly chained audit record.
func appendOne(t *testing.T, store *database.SQLiteStore, tenant string, nsr int64, at time.Time) *model.TimecardEntry {
	t.Helper()
	ctx := context.Background()

	head, err := store.ChainHead(ctx, tenant, model.ScopeLedger)
	if err != nil {
		t.Fatalf("ChainHead() error = %v", err)
	}
	auditHead, err := store.ChainHead(ctx, tenant, model.ScopeAudit)
	if err != nil {
		t.Fatalf("ChainHead(audit) error = %v", err)
	}

	entry := &model.TimecardEntry{
		ID:           fmt.Sprintf("%s-entry-%d", tenant, nsr),
		TenantID:     tenant,
		EmployeeID:   "emp-1",
		EventType:    model.EventCheckIn,
		Timestamp:    at,
		Source:       model.SourceManual,
		NSR:          nsr,
		PreviousHash: head.LastHash,
		Status:       model.StatusPending,
		CreatedAt:    at,
	}
	entry.CurrentHash = ledger.EntryHash(entry.PreviousHash, entry)

	audit := &model.AuditLogEntry{
		ID:          entry.ID + "-audit",
		TenantID:    tenant,
		Seq:         auditHead.LastNSR + 1,
		Action:      model.ActionCreate,
		PerformedBy: "tester",
		PerformedAt: at,
		NSR:         &entry.NSR,
		PrevHash:    auditHead.LastHash,
	}
	audit.AuditHash = ledger.AuditHash(audit.PrevHash, audit)

	if err := store.AppendEntry(ctx, entry, audit); err != nil {
		t.Fatalf("AppendEntry(NSR %d) error = %v", nsr, err)
	}
	return entry
}

func TestSQLiteStore_ChainHead_Genesis(t *testing.T) {
	store := newStore(t)

	head, err := store.ChainHead(context.Background(), "t1", model.ScopeLedger)
	if err != nil {
		t.Fatalf("ChainHead() error = %v", err)
	}
	if head.LastNSR != 0 {
		t.Errorf("LastNSR = %d, want 0", head.LastNSR)
	}
	if head.LastHash != model.GenesisHash {
		t.Errorf("LastHash = %q, want genesis", head.LastHash)
	}
}

func TestSQLiteStore_AppendEntry_AdvancesBothHeads(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	at := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	entry := appendOne(t, store, "t1", 1, at)

	head, err := store.ChainHead(ctx, "t1", model.ScopeLedger)
	if err != nil {
		t.Fatalf("ChainHead() error = %v", err)
	}
	if head.LastNSR != 1 || head.LastHash != entry.CurrentHash {
		t.Errorf("ledger head = (%d, %.12s), want (1, %.12s)", head.LastNSR, head.LastHash, entry.CurrentHash)
	}

	auditHead, err := store.ChainHead(ctx, "t1", model.ScopeAudit)
	if err != nil {
		t.Fatalf("ChainHead(audit) error = %v", err)
	}
	if auditHead.LastNSR != 1 {
		t.Errorf("audit head seq = %d, want 1", auditHead.LastNSR)
	}
}

func TestSQLiteStore_TimestampFidelity(t *testing.T) {
	store := newStore(t)

	// Nanosecond precision must survive storage, and ordering must hold
	// across values whose textual RFC 3339 forms would sort wrong without
	// fixed-width fractions.
	at := time.Date(2025, 3, 10, 8, 0, 0, 123456789, time.UTC)
	appendOne(t, store, "t1", 1, at)

	entries, _, err := store.SnapshotEntries(context.Background(), "t1")
	if err != nil {
		t.Fatalf("SnapshotEntries() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if !entries[0].Timestamp.Equal(at) {
		t.Errorf("Timestamp = %v, want %v", entries[0].Timestamp, at)
	}
}

func TestSQLiteStore_EntriesInPeriod(t *testing.T) {
	store := newStore(t)
	base := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	for i := int64(1); i <= 4; i++ {
		appendOne(t, store, "t1", i, base.AddDate(0, 0, int(i-1)))
	}

	// Day 2 through day 3 inclusive.
	entries, err := store.EntriesInPeriod(context.Background(), "t1", base.AddDate(0, 0, 1), base.AddDate(0, 0, 2))
	if err != nil {
		t.Fatalf("EntriesInPeriod() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].NSR != 2 || entries[1].NSR != 3 {
		t.Errorf("NSRs = %d, %d, want 2, 3", entries[0].NSR, entries[1].NSR)
	}
}

func TestSQLiteStore_QueryAudit_Pagination(t *testing.T) {
	store := newStore(t)
	base := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	for i := int64(1); i <= 5; i++ {
		appendOne(t, store, "t1", i, base.Add(time.Duration(i)*time.Minute))
	}

	page, err := store.QueryAudit(context.Background(), ledger.AuditFilter{TenantID: "t1", Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("QueryAudit() error = %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("got %d entries, want 2", len(page))
	}
	// Newest first: seqs 5,4 on page one, 3,2 here.
	if page[0].Seq != 3 || page[1].Seq != 2 {
		t.Errorf("seqs = %d, %d, want 3, 2", page[0].Seq, page[1].Seq)
	}
}

func TestSQLiteStore_RewriteHashes(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	for i := int64(1); i <= 3; i++ {
		appendOne(t, store, "t1", i, base.Add(time.Duration(i)*time.Minute))
	}

	auditHead, err := store.ChainHead(ctx, "t1", model.ScopeAudit)
	if err != nil {
		t.Fatalf("ChainHead(audit) error = %v", err)
	}
	audit := &model.AuditLogEntry{
		ID:          "rw-audit",
		TenantID:    "t1",
		Seq:         auditHead.LastNSR + 1,
		Action:      model.ActionRebuild,
		PerformedBy: "tester",
		PerformedAt: base,
		Reason:      "test rewrite",
		PrevHash:    auditHead.LastHash,
	}
	audit.AuditHash = ledger.AuditHash(audit.PrevHash, audit)

	newHash := "1111111111111111111111111111111111111111111111111111111111111111"
	fixes := []ledger.HashFix{{NSR: 2, PreviousHash: newHash, CurrentHash: newHash}}
	head := &model.ChainHead{TenantID: "t1", Scope: model.ScopeLedger, LastNSR: 3, LastHash: newHash, UpdatedAt: base}

	if err := store.RewriteHashes(ctx, "t1", fixes, head, audit); err != nil {
		t.Fatalf("RewriteHashes() error = %v", err)
	}

	entries, storedHead, err := store.SnapshotEntries(ctx, "t1")
	if err != nil {
		t.Fatalf("SnapshotEntries() error = %v", err)
	}
	if entries[1].CurrentHash != newHash || entries[1].PreviousHash != newHash {
		t.Errorf("NSR 2 hashes not rewritten: %+v", entries[1])
	}
	if entries[0].CurrentHash == newHash {
		t.Error("NSR 1 rewritten but was not in the fix list")
	}
	if storedHead.LastHash != newHash {
		t.Errorf("head hash = %.12s, want rewritten value", storedHead.LastHash)
	}
}

func TestNewStoreFromConfig(t *testing.T) {
	t.Run("unknown type", func(t *testing.T) {
		if _, err := database.NewStoreFromConfig(config.DatabaseConfig{Type: "oracle"}); err == nil {
			t.Error("NewStoreFromConfig() accepted unknown type")
		}
	})

	t.Run("sqlite requires data dir", func(t *testing.T) {
		if _, err := database.NewStoreFromConfig(config.DatabaseConfig{Type: "sqlite"}); err == nil {
			t.Error("NewStoreFromConfig() accepted sqlite without data_dir")
		}
	})

	t.Run("memory", func(t *testing.T) {
		store, err := database.NewStoreFromConfig(config.DatabaseConfig{Type: "memory"})
		if err != nil {
			t.Fatalf("NewStoreFromConfig() error = %v", err)
		}
		store.Close()
	})
}
