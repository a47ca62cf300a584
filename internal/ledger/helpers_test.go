package ledger_test

import (
	"context"
	"testing"
	"time"

	"tcl-go/internal/database"
	"tcl-go/internal/ledger"
	"tcl-go/internal/model"
	"tcl-go/internal/testutil"
)

const testTenant = "tenant-1"

func testActor() ledger.Actor {
	return ledger.Actor{Name: "hr-system", SourceIP: "10.0.0.5"}
}

// seedEntries appends n alternating check_in/check_out punches for one
// employee, one hour apart, starting at the stub clock's time.
func seedEntries(t *testing.T, ts *testutil.TestService, n int) []*model.TimecardEntry {
	t.Helper()

	out := make([]*model.TimecardEntry, 0, n)
	base := ts.Clock.Now()
	for i := 0; i < n; i++ {
		eventType := model.EventCheckIn
		if i%2 == 1 {
			eventType = model.EventCheckOut
		}
		entry, err := ts.Service.RecordEvent(context.Background(), ledger.EventInput{
			TenantID:   testTenant,
			EmployeeID: "emp-1",
			EventType:  eventType,
			Timestamp:  base.Add(time.Duration(i) * time.Hour),
			Source:     model.SourceAutomatic,
		}, testActor())
		if err != nil {
			t.Fatalf("RecordEvent() error = %v", err)
		}
		out = append(out, entry)
	}
	return out
}

// rawDB reaches past the store interface so tests can tamper with rows the
// way an attacker with database access would.
func rawDB(t *testing.T, ts *testutil.TestService) *database.SQLiteStore {
	t.Helper()

	s, ok := ts.Store.(*database.SQLiteStore)
	if !ok {
		t.Fatalf("store is %T, want *database.SQLiteStore", ts.Store)
	}
	return s
}

// tamperEntry overwrites one column of a stored timecard entry directly,
// bypassing the service and its hash maintenance.
func tamperEntry(t *testing.T, ts *testutil.TestService, nsr int64, column, value string) {
	t.Helper()

	db := rawDB(t, ts).DB()
	res, err := db.Exec(
		"UPDATE timecard_entries SET "+column+" = ? WHERE tenant_id = ? AND nsr = ?",
		value, testTenant, nsr)
	if err != nil {
		t.Fatalf("tampering entry: %v", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		t.Fatalf("tampering entry: affected %d rows, want 1", n)
	}
}
