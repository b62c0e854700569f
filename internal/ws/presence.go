package ws

import (
	"sort"
	"sync"
)

// Conn is an outbound handle to one socket connection.
type Conn interface {
	ID() string
	// Send queues an event for the connection. It fails when the connection
	// is closed or its queue is full.
	Send(event string, data any) error
	Close()
}

// Registry maps each online user to the connection that joined last.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Conn)}
}

// Join registers conn as the active connection for userID, replacing any
// earlier one.
func (r *Registry) Join(userID string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[userID] = conn
}

// Leave removes the mapping for userID if present.
func (r *Registry) Leave(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, userID)
}

// Disconnect removes the entry whose connection is conn and reports the user
// it belonged to. A superseded connection matches nothing.
func (r *Registry) Disconnect(conn Conn) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for userID, c := range r.conns {
		if c == conn {
			delete(r.conns, userID)
			return userID, true
		}
	}
	return "", false
}

// Resolve returns the active connection for userID.
func (r *Registry) Resolve(userID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[userID]
	return c, ok
}

// ListOnline returns the online user ids in sorted order.
func (r *Registry) ListOnline() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clear empties the registry and returns the connections it held.
func (r *Registry) Clear() []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns := make([]Conn, 0, len(r.conns))
	for id, c := range r.conns {
		conns = append(conns, c)
		delete(r.conns, id)
	}
	return conns
}
