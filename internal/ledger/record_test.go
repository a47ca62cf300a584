package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tcl-go/internal/ledger"
	"tcl-go/internal/model"
	"tcl-go/internal/testutil"
)

func TestService_RecordEvent(t *testing.T) {
	t.Run("assigns sequential NSRs and links hashes", func(t *testing.T) {
		ts := testutil.NewTestService(t)
		entries := seedEntries(t, ts, 5)

		prev := model.GenesisHash
		for i, e := range entries {
			if e.NSR != int64(i+1) {
				t.Errorf("entry %d: NSR = %d, want %d", i, e.NSR, i+1)
			}
			if e.PreviousHash != prev {
				t.Errorf("NSR %d: PreviousHash = %.12s, want %.12s", e.NSR, e.PreviousHash, prev)
			}
			if want := ledger.EntryHash(prev, e); e.CurrentHash != want {
				t.Errorf("NSR %d: CurrentHash = %.12s, want %.12s", e.NSR, e.CurrentHash, want)
			}
			prev = e.CurrentHash
		}
	})

	t.Run("first entry chains from genesis", func(t *testing.T) {
		ts := testutil.NewTestService(t)
		entries := seedEntries(t, ts, 1)

		if entries[0].PreviousHash != model.GenesisHash {
			t.Errorf("PreviousHash = %q, want genesis", entries[0].PreviousHash)
		}
		if entries[0].Status != model.StatusPending {
			t.Errorf("Status = %q, want %q", entries[0].Status, model.StatusPending)
		}
	})

	t.Run("writes a CREATE audit entry per append", func(t *testing.T) {
		ts := testutil.NewTestService(t)
		seedEntries(t, ts, 3)

		audits, err := ts.Service.QueryAudit(context.Background(), ledger.AuditFilter{
			TenantID: testTenant,
			Action:   model.ActionCreate,
		})
		if err != nil {
			t.Fatalf("QueryAudit() error = %v", err)
		}
		if len(audits) != 3 {
			t.Fatalf("got %d CREATE audit entries, want 3", len(audits))
		}
		// Newest first: the latest CREATE refers to NSR 3.
		if audits[0].NSR == nil || *audits[0].NSR != 3 {
			t.Errorf("latest audit NSR = %v, want 3", audits[0].NSR)
		}
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		ts := testutil.NewTestService(t)
		lat := 48.85

		cases := []struct {
			name string
			in   ledger.EventInput
		}{
			{"missing tenant", ledger.EventInput{EmployeeID: "e", EventType: model.EventCheckIn, Timestamp: ts.Clock.Now(), Source: model.SourceManual}},
			{"missing employee", ledger.EventInput{TenantID: testTenant, EventType: model.EventCheckIn, Timestamp: ts.Clock.Now(), Source: model.SourceManual}},
			{"unknown event type", ledger.EventInput{TenantID: testTenant, EmployeeID: "e", EventType: "lunch", Timestamp: ts.Clock.Now(), Source: model.SourceManual}},
			{"zero timestamp", ledger.EventInput{TenantID: testTenant, EmployeeID: "e", EventType: model.EventCheckIn, Source: model.SourceManual}},
			{"unknown source", ledger.EventInput{TenantID: testTenant, EmployeeID: "e", EventType: model.EventCheckIn, Timestamp: ts.Clock.Now(), Source: "fax"}},
			{"latitude without longitude", ledger.EventInput{TenantID: testTenant, EmployeeID: "e", EventType: model.EventCheckIn, Timestamp: ts.Clock.Now(), Source: model.SourceManual, Latitude: &lat}},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := ts.Service.RecordEvent(context.Background(), tc.in, testActor())
				var verr *ledger.ValidationError
				if !errors.As(err, &verr) {
					t.Errorf("RecordEvent() error = %v, want ValidationError", err)
				}
			})
		}

		// Nothing must have been appended.
		result, err := ts.Service.Verify(context.Background(), testTenant)
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if result.LastNSR != 0 {
			t.Errorf("LastNSR = %d after rejected inputs, want 0", result.LastNSR)
		}
	})

	t.Run("rejects anonymous actor", func(t *testing.T) {
		ts := testutil.NewTestService(t)
		_, err := ts.Service.RecordEvent(context.Background(), ledger.EventInput{
			TenantID:   testTenant,
			EmployeeID: "emp-1",
			EventType:  model.EventCheckIn,
			Timestamp:  ts.Clock.Now(),
			Source:     model.SourceManual,
		}, ledger.Actor{})
		var verr *ledger.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("RecordEvent() error = %v, want ValidationError", err)
		}
	})

	t.Run("concurrent appends stay contiguous", func(t *testing.T) {
		ts := testutil.NewTestService(t)

		const writers = 10
		var wg sync.WaitGroup
		errs := make([]error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = ts.Service.RecordEvent(context.Background(), ledger.EventInput{
					TenantID:   testTenant,
					EmployeeID: "emp-1",
					EventType:  model.EventCheckIn,
					Timestamp:  ts.Clock.Now().Add(time.Duration(i) * time.Minute),
					Source:     model.SourceAutomatic,
				}, testActor())
			}(i)
		}
		wg.Wait()

		for i, err := range errs {
			if err != nil {
				t.Fatalf("writer %d: RecordEvent() error = %v", i, err)
			}
		}

		result, err := ts.Service.Verify(context.Background(), testTenant)
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if !result.IsValid {
			t.Errorf("chain invalid after concurrent appends: %+v", result.Errors)
		}
		if result.LastNSR != writers {
			t.Errorf("LastNSR = %d, want %d", result.LastNSR, writers)
		}
	})

	t.Run("tenants do not share a chain", func(t *testing.T) {
		ts := testutil.NewTestService(t)

		for _, tenant := range []string{"tenant-a", "tenant-b"} {
			entry, err := ts.Service.RecordEvent(context.Background(), ledger.EventInput{
				TenantID:   tenant,
				EmployeeID: "emp-1",
				EventType:  model.EventCheckIn,
				Timestamp:  ts.Clock.Now(),
				Source:     model.SourceManual,
			}, testActor())
			if err != nil {
				t.Fatalf("RecordEvent(%s) error = %v", tenant, err)
			}
			if entry.NSR != 1 {
				t.Errorf("tenant %s: first NSR = %d, want 1", tenant, entry.NSR)
			}
		}
	})
}

// TestStore_AppendEntry_HeadConflict exercises the store-level optimistic
// check that protects against writers outside this process: two entries
// computed against the same head cannot both commit.
func TestStore_AppendEntry_HeadConflict(t *testing.T) {
	ts := testutil.NewTestService(t)
	ctx := context.Background()
	now := ts.Clock.Now()

	build := func(id string, seq int64) (*model.TimecardEntry, *model.AuditLogEntry) {
		entry := &model.TimecardEntry{
			ID:           id,
			TenantID:     testTenant,
			EmployeeID:   "emp-1",
			EventType:    model.EventCheckIn,
			Timestamp:    now,
			Source:       model.SourceManual,
			NSR:          1,
			PreviousHash: model.GenesisHash,
			Status:       model.StatusPending,
			CreatedAt:    now,
		}
		entry.CurrentHash = ledger.EntryHash(entry.PreviousHash, entry)
		audit := &model.AuditLogEntry{
			ID:          id + "-audit",
			TenantID:    testTenant,
			Seq:         seq,
			Action:      model.ActionCreate,
			PerformedBy: "hr-system",
			PerformedAt: now,
			NSR:         &entry.NSR,
			PrevHash:    model.GenesisHash,
		}
		audit.AuditHash = ledger.AuditHash(audit.PrevHash, audit)
		return entry, audit
	}

	first, firstAudit := build("e1", 1)
	if err := ts.Store.AppendEntry(ctx, first, firstAudit); err != nil {
		t.Fatalf("first AppendEntry() error = %v", err)
	}

	// Same stale head: NSR 1 again, previous hash genesis.
	second, secondAudit := build("e2", 2)
	err := ts.Store.AppendEntry(ctx, second, secondAudit)
	if !errors.Is(err, ledger.ErrChainHeadConflict) {
		t.Errorf("second AppendEntry() error = %v, want ErrChainHeadConflict", err)
	}
}
