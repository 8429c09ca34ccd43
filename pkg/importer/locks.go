package importer

import "sync"

// tenantLocks hands out one mutex per tenant so at most one catalog replace
// per tenant is in flight. Locks are held only for the persisting stage.
// Unrelated tenants never contend.
type tenantLocks struct {
	locks sync.Map // tenantID -> *sync.Mutex
}

// tryAcquire attempts to take the tenant's replace lock without blocking. A
// false return means another replace for this tenant is in flight.
func (t *tenantLocks) tryAcquire(tenantID string) (func(), bool) {
	v, _ := t.locks.LoadOrStore(tenantID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	if !mu.TryLock() {
		return nil, false
	}
	return mu.Unlock, true
}
