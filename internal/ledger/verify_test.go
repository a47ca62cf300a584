package ledger_test

import (
	"context"
	"testing"

	"tcl-go/internal/model"
	"tcl-go/internal/testutil"
)

func TestService_Verify(t *testing.T) {
	t.Run("empty chain is valid", func(t *testing.T) {
		ts := testutil.NewTestService(t)

		result, err := ts.Service.Verify(context.Background(), testTenant)
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if !result.IsValid {
			t.Errorf("empty chain invalid: %+v", result.Errors)
		}
		if result.LastNSR != 0 {
			t.Errorf("LastNSR = %d, want 0", result.LastNSR)
		}
	})

	t.Run("intact chain is valid", func(t *testing.T) {
		ts := testutil.NewTestService(t)
		seedEntries(t, ts, 5)

		result, err := ts.Service.Verify(context.Background(), testTenant)
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if !result.IsValid {
			t.Errorf("chain invalid: %+v", result.Errors)
		}
		if result.LastNSR != 5 {
			t.Errorf("LastNSR = %d, want 5", result.LastNSR)
		}
	})

	t.Run("tampered payload invalidates that record and everything after", func(t *testing.T) {
		ts := testutil.NewTestService(t)
		seedEntries(t, ts, 5)

		tamperEntry(t, ts, 3, "employee_id", "emp-999")

		result, err := ts.Service.Verify(context.Background(), testTenant)
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if result.IsValid {
			t.Fatal("tampered chain reported valid")
		}

		// First finding is the tampered record itself.
		if result.Errors[0].NSR != 3 || result.Errors[0].Kind != model.IntegrityHashMismatch {
			t.Errorf("first finding = NSR %d %s, want NSR 3 %s",
				result.Errors[0].NSR, result.Errors[0].Kind, model.IntegrityHashMismatch)
		}

		// Recomputed hashes are carried forward, so NSRs 4 and 5 are
		// flagged too even though their rows are untouched.
		affected := map[int64]bool{}
		for _, e := range result.Errors {
			affected[e.NSR] = true
		}
		for _, nsr := range []int64{3, 4, 5} {
			if !affected[nsr] {
				t.Errorf("NSR %d not flagged after upstream tampering", nsr)
			}
		}
		if affected[1] || affected[2] {
			t.Error("records before the tamper point were flagged")
		}
	})

	t.Run("missing record is a sequence gap", func(t *testing.T) {
		ts := testutil.NewTestService(t)
		seedEntries(t, ts, 5)

		db := rawDB(t, ts).DB()
		if _, err := db.Exec("DELETE FROM timecard_entries WHERE tenant_id = ? AND nsr = 3", testTenant); err != nil {
			t.Fatalf("deleting entry: %v", err)
		}

		result, err := ts.Service.Verify(context.Background(), testTenant)
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if result.IsValid {
			t.Fatal("chain with missing record reported valid")
		}

		found := false
		for _, e := range result.Errors {
			if e.Kind == model.IntegritySequenceGap && e.NSR == 4 {
				found = true
			}
		}
		if !found {
			t.Errorf("no sequence_gap finding at NSR 4: %+v", result.Errors)
		}
	})

	t.Run("dropped tail is a head mismatch", func(t *testing.T) {
		ts := testutil.NewTestService(t)
		seedEntries(t, ts, 5)

		db := rawDB(t, ts).DB()
		if _, err := db.Exec("DELETE FROM timecard_entries WHERE tenant_id = ? AND nsr = 5", testTenant); err != nil {
			t.Fatalf("deleting entry: %v", err)
		}

		result, err := ts.Service.Verify(context.Background(), testTenant)
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if result.IsValid {
			t.Fatal("chain with dropped tail reported valid")
		}

		found := false
		for _, e := range result.Errors {
			if e.Kind == model.IntegrityHeadMismatch {
				found = true
			}
		}
		if !found {
			t.Errorf("no head_mismatch finding: %+v", result.Errors)
		}
	})

	t.Run("verification does not stop at the first finding", func(t *testing.T) {
		ts := testutil.NewTestService(t)
		seedEntries(t, ts, 5)

		tamperEntry(t, ts, 1, "employee_id", "x")
		tamperEntry(t, ts, 4, "source", model.SourceManual)

		result, err := ts.Service.Verify(context.Background(), testTenant)
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if len(result.Errors) < 2 {
			t.Errorf("got %d finding(s), want every damaged record enumerated", len(result.Errors))
		}
	})
}
