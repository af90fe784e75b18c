// Package registry tracks which live connection currently speaks for a
// durable identity. It is process-local scratch space: the coordinator
// rebuilds every binding from the room record on reconnect, so losing this
// state (process restart) never loses a game.
package registry

import (
	"sync"

	"github.com/xfactor-puzzles/triviatoe/internal/room"
)

// TerminateFunc force-closes a stale connection by its ID. It is called
// without the registry lock held.
type TerminateFunc func(connID string)

// Binding is the session view attached to a connection after it joined a
// room over the realtime channel.
type Binding struct {
	RoomCode string
	Symbol   room.Symbol
	IsHost   bool
}

// Registry maps connection IDs to identities and room bindings. It is
// constructed once per server instance and injected; it holds no durable
// truth.
type Registry struct {
	mu        sync.Mutex
	byConn    map[string]string // connID -> identity
	byIdent   map[string]string // identity -> connID
	bindings  map[string]Binding
	terminate TerminateFunc
}

func New(terminate TerminateFunc) *Registry {
	return &Registry{
		byConn:    make(map[string]string),
		byIdent:   make(map[string]string),
		bindings:  make(map[string]Binding),
		terminate: terminate,
	}
}

// Register records connID as the live connection for identity. If the
// identity already had a different live connection (a second tab, a zombie
// socket) that one is terminated first, so at most one connection per
// identity is ever live.
func (r *Registry) Register(connID, identity string) {
	var stale string

	r.mu.Lock()
	if old, ok := r.byIdent[identity]; ok && old != connID {
		stale = old
		delete(r.byConn, old)
		delete(r.bindings, old)
	}
	r.byConn[connID] = identity
	r.byIdent[identity] = connID
	r.mu.Unlock()

	if stale != "" && r.terminate != nil {
		r.terminate(stale)
	}
}

// Bind attaches a room session view to an already registered connection.
func (r *Registry) Bind(connID string, b Binding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byConn[connID]; !ok {
		return
	}
	r.bindings[connID] = b
}

// Resolve returns the identity behind connID.
func (r *Registry) Resolve(connID string) (identity string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	identity, ok = r.byConn[connID]
	return identity, ok
}

// BindingOf returns the room binding of connID, if it joined a room.
func (r *Registry) BindingOf(connID string) (Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bindings[connID]
	return b, ok
}

// ConnOf returns the live connection for identity.
func (r *Registry) ConnOf(identity string) (connID string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	connID, ok = r.byIdent[identity]
	return connID, ok
}

// Unregister forgets connID. It is a no-op when the identity has already
// been claimed by a newer connection.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	identity, ok := r.byConn[connID]
	if !ok {
		return
	}
	delete(r.byConn, connID)
	delete(r.bindings, connID)
	if r.byIdent[identity] == connID {
		delete(r.byIdent, identity)
	}
}
