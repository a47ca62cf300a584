package testutil

import (
	"testing"

	"tcl-go/internal/ledger"
	"tcl-go/internal/vault"
)

// TestService bundles a wired ledger.Service with the fakes behind it, so
// tests can reach past the service when they need to tamper with state.
type TestService struct {
	Service *ledger.Service
	Store   ledger.Store
	Vault   *vault.MemoryVault
	Clock   *StubClock
}

// NewTestService wires a Service over an in-memory store and vault, a fixed
// clock and sequential IDs.
func NewTestService(t *testing.T) *TestService {
	t.Helper()

	store := NewTestStore(t)
	v := NewTestVault()
	clock := FixedClock()
	svc := ledger.NewService(store, v, ledger.NewNopLogger(), clock, NewStubIDGenerator())

	return &TestService{Service: svc, Store: store, Vault: v, Clock: clock}
}
