package chat

import (
	"sync"

	"github.com/marketlink/sellchat/service/metrics"
)

// Registry maps identity keys to live sockets for one gateway process.
// Invariant: at most one conn per key; a later registration silently
// replaces an earlier one and the replaced socket is not signaled.
type Registry struct {
	mu    sync.RWMutex
	byKey map[string]*conn
}

func NewRegistry() *Registry {
	return &Registry{byKey: make(map[string]*conn)}
}

// add registers c under key and returns the conn it replaced, if any.
func (r *Registry) add(key string, c *conn) *conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.byKey[key]
	r.byKey[key] = c
	metrics.IdentitiesRegistered.Set(float64(len(r.byKey)))
	return prev
}

// remove deletes the entry only while it still points at c, so closing a
// replaced socket never evicts its replacement.
func (r *Registry) remove(key string, c *conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byKey[key] == c {
		delete(r.byKey, key)
	}
	metrics.IdentitiesRegistered.Set(float64(len(r.byKey)))
}

// get is a quick synchronized read; the caller sends on the returned conn
// after the lock is released.
func (r *Registry) get(key string) *conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byKey[key]
}

func (r *Registry) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKey)
}
