// Package registry owns the set of live peer connections for one side of a
// room, keyed by remote user identity.
package registry

import (
	"errors"
	"sort"
	"sync"

	"github.com/fireside-hq/campcast/internal/rtc"
)

// ErrDuplicateConnection is returned when a connection already exists for
// the given user. It signals a protocol invariant violation; the caller
// logs and rejects the operation without mutating the registry.
var ErrDuplicateConnection = errors.New("duplicate peer connection")

// State is the negotiation state of a single peer connection.
type State int

const (
	StateCreated State = iota
	StateOfferSent
	StateOfferReceived
	StateAnswered
	StateEstablished
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateOfferSent:
		return "offer-sent"
	case StateOfferReceived:
		return "offer-received"
	case StateAnswered:
		return "answered"
	case StateEstablished:
		return "established"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Conn pairs a remote user identity with its peer connection and tracks the
// negotiation state. State is mutated only by the session coordinator
// goroutine; the mutex makes reads from other goroutines (UI, callbacks)
// safe.
type Conn struct {
	UserID string
	Peer   rtc.Peer

	mu    sync.RWMutex
	state State
}

// State returns the current negotiation state.
func (c *Conn) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// SetState records a new negotiation state. Transitions out of the closed
// state are ignored: a connection that has been removed stays closed no
// matter what late callbacks report.
func (c *Conn) SetState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return
	}
	c.state = s
}

// Registry is the keyed map of live connections. At most one entry exists
// per remote user.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Conn
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{conns: make(map[string]*Conn)}
}

// Create inserts a connection for userID in the created state. It fails
// with ErrDuplicateConnection if one already exists; the existing entry is
// left untouched and the caller keeps ownership of peer.
func (r *Registry) Create(userID string, peer rtc.Peer) (*Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[userID]; ok {
		return nil, ErrDuplicateConnection
	}
	conn := &Conn{UserID: userID, Peer: peer, state: StateCreated}
	r.conns[userID] = conn
	return conn, nil
}

// Get looks up the connection for userID.
func (r *Registry) Get(userID string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[userID]
	return conn, ok
}

// Remove deletes the connection for userID and closes its underlying
// transport. Removing an absent entry is a no-op — repeated user-left
// envelopes for the same user are expected under join/leave races.
func (r *Registry) Remove(userID string) {
	r.mu.Lock()
	conn, ok := r.conns[userID]
	delete(r.conns, userID)
	r.mu.Unlock()
	if !ok {
		return
	}
	conn.SetState(StateClosed)
	_ = conn.Peer.Close()
}

// All returns the live connections sorted by user identity.
func (r *Registry) All() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]*Conn, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	sort.Slice(conns, func(i, j int) bool { return conns[i].UserID < conns[j].UserID })
	return conns
}

// Users returns the user identities with a live connection, sorted.
func (r *Registry) Users() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]string, 0, len(r.conns))
	for userID := range r.conns {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Clear removes and closes every connection. Used at session teardown.
func (r *Registry) Clear() {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]*Conn)
	r.mu.Unlock()
	for _, conn := range conns {
		conn.SetState(StateClosed)
		_ = conn.Peer.Close()
	}
}
