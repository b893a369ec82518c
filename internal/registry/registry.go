// Package registry maps connection ids to live transport handles. Handles
// are not serializable, so this state is process-local by design: a miss on
// lookup usually means the connection lives on another gateway instance.
package registry

import (
	"sort"
	"sync"
)

// Handle is the sendable side of a transport connection.
type Handle interface {
	Send(payload []byte) error
}

// Registry is a process-wide lookup table from connection id to handle.
// Lifetime equals process memory; it is rebuilt empty on restart.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]Handle
}

// New constructs an empty registry.
func New() *Registry {
	return &Registry{handles: make(map[string]Handle)}
}

// Put records the handle for a connection id, replacing any previous entry.
func (r *Registry) Put(connID string, handle Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[connID] = handle
}

// Get returns the handle for a connection id. A false result is a routine
// outcome during fan-out, not an error.
func (r *Registry) Get(connID string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handle, ok := r.handles[connID]
	return handle, ok
}

// Remove drops the entry for a connection id. Removing an absent id is a
// no-op.
func (r *Registry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, connID)
}

// Size returns the number of live handles.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// Snapshot returns the registered connection ids, sorted, for diagnostics.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.handles))
	for connID := range r.handles {
		ids = append(ids, connID)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}
