package swarm

import (
	"fmt"
	"sync"

	"github.com/zlx-network/swarmd/internal/domain"
)

// Identified is anything addressable by a peer id.
type Identified interface {
	ID() string
}

// Registry is the process-wide peer id → session lookup. It is the single
// source of truth for whether a peer is still connected.
type Registry[T Identified] struct {
	mu    sync.RWMutex
	peers map[string]T
}

// NewRegistry creates an empty registry.
func NewRegistry[T Identified]() *Registry[T] {
	return &Registry[T]{peers: make(map[string]T)}
}

// Add registers v under its id and returns that id. An id that is already
// present is rejected with domain.ErrDuplicatePeer.
func (r *Registry[T]) Add(v T) (string, error) {
	id := v.ID()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.peers[id]; ok {
		return "", fmt.Errorf("add %s: %w", id, domain.ErrDuplicatePeer)
	}
	r.peers[id] = v
	return id, nil
}

// Get returns the entry for id.
func (r *Registry[T]) Get(id string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.peers[id]
	return v, ok
}

// Remove deletes id. It reports whether an entry was present; removing a
// missing id is a no-op.
func (r *Registry[T]) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.peers[id]; !ok {
		return false
	}
	delete(r.peers, id)
	return true
}

// Len returns the number of registered peers.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Snapshot returns the registered entries in no particular order.
func (r *Registry[T]) Snapshot() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, 0, len(r.peers))
	for _, v := range r.peers {
		out = append(out, v)
	}
	return out
}
