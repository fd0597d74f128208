package core

import (
	"sync"

	"github.com/lisuiheng/wsbridge/pkg/interfaces"
)

// SocketHandle is the caller's weak reference to a live socket: identity
// plus address. It never owns the connection.
type SocketHandle struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type entry struct {
	handle SocketHandle
	socket interfaces.Socket
	state  interfaces.ReadyState
}

// Registry tracks live sockets by handle id.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

func (r *Registry) insert(e *entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[e.handle.ID]; ok {
		return false
	}
	r.entries[e.handle.ID] = e
	return true
}

// remove is a no-op for unknown ids.
func (r *Registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

func (r *Registry) lookup(id string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

func (r *Registry) Contains(id string) bool {
	_, ok := r.lookup(id)
	return ok
}

func (r *Registry) HasURL(url string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if e.handle.URL == url {
			return true
		}
	}
	return false
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Snapshot returns the handles of every live socket.
func (r *Registry) Snapshot() []SocketHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handles := make([]SocketHandle, 0, len(r.entries))
	for _, e := range r.entries {
		handles = append(handles, e.handle)
	}
	return handles
}

func (r *Registry) entriesCopy() []*entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out
}
