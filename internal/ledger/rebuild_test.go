package ledger_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"tcl-go/internal/ledger"
	"tcl-go/internal/model"
	"tcl-go/internal/testutil"
)

func TestService_Rebuild(t *testing.T) {
	t.Run("repairs tampered hash columns", func(t *testing.T) {
		ts := testutil.NewTestService(t)
		seedEntries(t, ts, 5)

		tamperEntry(t, ts, 2, "current_hash", strings.Repeat("ab", 32))

		res, err := ts.Service.Rebuild(context.Background(), testTenant, testActor(), "hash column damaged during storage migration")
		if err != nil {
			t.Fatalf("Rebuild() error = %v", err)
		}
		if len(res.CorrectedNSRs) != 1 || res.CorrectedNSRs[0] != 2 {
			t.Errorf("CorrectedNSRs = %v, want [2]", res.CorrectedNSRs)
		}
		if !res.Result.IsValid {
			t.Errorf("chain still invalid after rebuild: %+v", res.Result.Errors)
		}
	})

	t.Run("repairs a fully re-linked chain", func(t *testing.T) {
		ts := testutil.NewTestService(t)
		seedEntries(t, ts, 5)

		// Damage an early link so every later record's link is stale too.
		tamperEntry(t, ts, 1, "current_hash", strings.Repeat("cd", 32))
		tamperEntry(t, ts, 2, "previous_hash", strings.Repeat("cd", 32))

		res, err := ts.Service.Rebuild(context.Background(), testTenant, testActor(), "restoring chain after disk corruption")
		if err != nil {
			t.Fatalf("Rebuild() error = %v", err)
		}
		if !res.Result.IsValid {
			t.Errorf("chain still invalid after rebuild: %+v", res.Result.Errors)
		}

		result, err := ts.Service.Verify(context.Background(), testTenant)
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if !result.IsValid {
			t.Errorf("independent verify failed after rebuild: %+v", result.Errors)
		}
	})

	t.Run("idempotent on an intact chain", func(t *testing.T) {
		ts := testutil.NewTestService(t)
		seedEntries(t, ts, 3)

		res, err := ts.Service.Rebuild(context.Background(), testTenant, testActor(), "routine integrity sweep")
		if err != nil {
			t.Fatalf("Rebuild() error = %v", err)
		}
		if len(res.CorrectedNSRs) != 0 {
			t.Errorf("CorrectedNSRs = %v on intact chain, want none", res.CorrectedNSRs)
		}

		// Repeating changes nothing.
		res, err = ts.Service.Rebuild(context.Background(), testTenant, testActor(), "routine integrity sweep")
		if err != nil {
			t.Fatalf("second Rebuild() error = %v", err)
		}
		if len(res.CorrectedNSRs) != 0 {
			t.Errorf("second rebuild corrected %v, want none", res.CorrectedNSRs)
		}
	})

	t.Run("requires a reason", func(t *testing.T) {
		ts := testutil.NewTestService(t)
		seedEntries(t, ts, 1)

		_, err := ts.Service.Rebuild(context.Background(), testTenant, testActor(), "")
		var verr *ledger.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("Rebuild() error = %v, want ValidationError", err)
		}
	})

	t.Run("fails closed on payload corruption", func(t *testing.T) {
		ts := testutil.NewTestService(t)
		seedEntries(t, ts, 3)

		tamperEntry(t, ts, 2, "event_type", "teleport")

		_, err := ts.Service.Rebuild(context.Background(), testTenant, testActor(), "attempting repair")
		var ierr *ledger.IrrecoverableChainError
		if !errors.As(err, &ierr) {
			t.Fatalf("Rebuild() error = %v, want IrrecoverableChainError", err)
		}
		if ierr.NSR != 2 {
			t.Errorf("IrrecoverableChainError.NSR = %d, want 2", ierr.NSR)
		}

		// The aborted attempt leaves its trace in the audit log.
		audits, err := ts.Service.QueryAudit(context.Background(), ledger.AuditFilter{
			TenantID: testTenant,
			Action:   model.ActionRebuild,
		})
		if err != nil {
			t.Fatalf("QueryAudit() error = %v", err)
		}
		if len(audits) == 0 {
			t.Fatal("no REBUILD audit entry for the aborted attempt")
		}
		if !strings.Contains(audits[0].Reason, "aborted") {
			t.Errorf("audit reason = %q, want mention of the abort", audits[0].Reason)
		}
	})

	t.Run("records the corrected NSRs in the audit log", func(t *testing.T) {
		ts := testutil.NewTestService(t)
		seedEntries(t, ts, 4)

		tamperEntry(t, ts, 3, "current_hash", strings.Repeat("ef", 32))

		if _, err := ts.Service.Rebuild(context.Background(), testTenant, testActor(), "corruption found by nightly sweep"); err != nil {
			t.Fatalf("Rebuild() error = %v", err)
		}

		audits, err := ts.Service.QueryAudit(context.Background(), ledger.AuditFilter{
			TenantID: testTenant,
			Action:   model.ActionRebuild,
		})
		if err != nil {
			t.Fatalf("QueryAudit() error = %v", err)
		}
		if len(audits) != 1 {
			t.Fatalf("got %d REBUILD audit entries, want 1", len(audits))
		}
		reason := audits[0].Reason
		if !strings.Contains(reason, "corruption found by nightly sweep") || !strings.Contains(reason, "3") {
			t.Errorf("audit reason = %q, want original reason and corrected NSR list", reason)
		}
	})

	t.Run("does not touch payloads", func(t *testing.T) {
		ts := testutil.NewTestService(t)
		entries := seedEntries(t, ts, 3)

		tamperEntry(t, ts, 1, "current_hash", strings.Repeat("01", 32))

		if _, err := ts.Service.Rebuild(context.Background(), testTenant, testActor(), "repair"); err != nil {
			t.Fatalf("Rebuild() error = %v", err)
		}

		var employee string
		db := rawDB(t, ts).DB()
		if err := db.QueryRow("SELECT employee_id FROM timecard_entries WHERE tenant_id = ? AND nsr = 1", testTenant).Scan(&employee); err != nil {
			t.Fatalf("reading entry: %v", err)
		}
		if employee != entries[0].EmployeeID {
			t.Errorf("employee_id = %q after rebuild, want %q untouched", employee, entries[0].EmployeeID)
		}
	})
}
