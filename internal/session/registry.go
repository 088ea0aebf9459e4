package session

import "sync"

// Registry is the process-wide set of live connection ids. A participant
// whose connection id is not registered is a ghost.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]struct{}
}

func NewRegistry() *Registry { return &Registry{conns: make(map[string]struct{})} }

func (r *Registry) Add(connID string) {
	r.mu.Lock()
	r.conns[connID] = struct{}{}
	r.mu.Unlock()
}

func (r *Registry) Remove(connID string) {
	r.mu.Lock()
	delete(r.conns, connID)
	r.mu.Unlock()
}

func (r *Registry) Has(connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[connID]
	return ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
