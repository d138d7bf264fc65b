package link

import (
	"github.com/brianly1003/notilink/internal/sync"
)

// Registry tracks active links by connection ID. It holds references only:
// Put displaces a previous entry without closing it (callers still holding
// the old ref keep a usable client) and Remove drops the reference without
// touching the socket. Closing is always the caller's move, outside the lock.
type Registry struct {
	mu    sync.RWMutex
	links map[string]*Client
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		links: make(map[string]*Client),
	}
}

// Put stores a client under its connection ID, replacing any previous entry.
// The displaced client, if any, is returned so the caller can decide its
// fate.
func (r *Registry) Put(client *Client) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous := r.links[client.ConnectionID()]
	r.links[client.ConnectionID()] = client
	return previous
}

// Get returns the client registered under id.
func (r *Registry) Get(id string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, ok := r.links[id]
	return client, ok
}

// Remove drops the entry for id and returns the removed client, or nil if
// none was registered.
func (r *Registry) Remove(id string) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	client := r.links[id]
	delete(r.links, id)
	return client
}

// IDs returns the connection IDs of all registered links.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.links))
	for id := range r.links {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of registered links.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.links)
}
