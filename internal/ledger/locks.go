package ledger

import "sync"

// tenantLocks serializes chain-mutating operations per tenant. Appends,
// rebuilds, key rotations and snapshot captures for the same tenant must not
// interleave; operations on different tenants proceed independently.
type tenantLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newTenantLocks() *tenantLocks {
	return &tenantLocks{locks: make(map[string]*sync.Mutex)}
}

// get returns the mutex for a tenant, creating it on first use.
// Mutexes are never removed: the set of tenants is small and stable.
func (t *tenantLocks) get(tenantID string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.locks[tenantID]
	if !ok {
		l = &sync.Mutex{}
		t.locks[tenantID] = l
	}
	return l
}
