package app

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
)

var ErrUnknownSession = errors.New("unknown session")

// RosterBroadcaster is invoked with the registry lock held, so broadcasts are
// delivered in mutation order. It must not block and must not call back into
// the registry. It returns the sessions that could not take the message.
type RosterBroadcaster func(roster []domain.ClientID, targets map[core.SessionID]core.SignalConnection) []core.SessionID

type sessionEntry struct {
	Client domain.ClientID
	Conn   core.SignalConnection
	Cancel context.CancelFunc
}

// Registry is the presence table: which client id is reachable over which
// signaling connection. A client id is bound to at most one connection.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
	clients  map[domain.ClientID]core.SessionID

	broadcast RosterBroadcaster
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]*sessionEntry),
		clients:  make(map[domain.ClientID]core.SessionID),
	}
}

func (r *Registry) SetBroadcaster(b RosterBroadcaster) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcast = b
}

// Bind tracks a fresh connection that has not registered yet.
func (r *Registry) Bind(sid core.SessionID, conn core.SignalConnection, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sid] = &sessionEntry{Conn: conn, Cancel: cancel}
	log.Info().Str("module", "app.presence").Str("sid", string(sid)).Msg("bound signal")
}

// Register binds id to the session. A second connection registering the same
// id takes the binding over; the roster does not change so nothing is
// broadcast. changed reports whether a broadcast went out.
func (r *Registry) Register(sid core.SessionID, id domain.ClientID) (changed bool, slow []core.SessionID, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[sid]
	if !ok {
		return false, nil, ErrUnknownSession
	}
	l := log.With().Str("module", "app.presence").Str("sid", string(sid)).Str("client", string(id)).Logger()

	if e.Client == id {
		return false, nil, nil
	}
	if e.Client != "" {
		// renaming a session releases the old id
		if r.clients[e.Client] == sid {
			delete(r.clients, e.Client)
			changed = true
		}
	}
	if prev, taken := r.clients[id]; taken && prev != sid {
		if pe, ok := r.sessions[prev]; ok {
			pe.Client = ""
		}
		l.Warn().Str("previous_sid", string(prev)).Msg("registration taken over")
	} else {
		changed = true
	}
	r.clients[id] = sid
	e.Client = id
	l.Info().Msg("registered")

	if changed {
		slow = r.broadcastLocked()
	}
	return changed, slow, nil
}

// Deregister drops id from the roster. Its connection stays bound.
func (r *Registry) Deregister(id domain.ClientID) []core.SessionID {
	r.mu.Lock()
	defer r.mu.Unlock()
	sid, ok := r.clients[id]
	if !ok {
		return nil
	}
	delete(r.clients, id)
	if e, ok := r.sessions[sid]; ok {
		e.Client = ""
	}
	log.Info().Str("module", "app.presence").Str("client", string(id)).Msg("deregistered")
	return r.broadcastLocked()
}

// Unbind forgets a closed connection. The id it was registered under is
// deregistered only if this connection still owns it.
func (r *Registry) Unbind(sid core.SessionID) (id domain.ClientID, owned bool, slow []core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return "", false, nil
	}
	delete(r.sessions, sid)
	log.Info().Str("module", "app.presence").Str("sid", string(sid)).Msg("unbind session")

	if e.Client == "" || r.clients[e.Client] != sid {
		return e.Client, false, nil
	}
	delete(r.clients, e.Client)
	return e.Client, true, r.broadcastLocked()
}

func (r *Registry) broadcastLocked() []core.SessionID {
	if r.broadcast == nil {
		return nil
	}
	targets := make(map[core.SessionID]core.SignalConnection, len(r.sessions))
	for sid, e := range r.sessions {
		targets[sid] = e.Conn
	}
	return r.broadcast(r.rosterLocked(), targets)
}

func (r *Registry) Roster() []domain.ClientID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rosterLocked()
}

func (r *Registry) rosterLocked() []domain.ClientID {
	out := make([]domain.ClientID, 0, len(r.clients))
	for id := range r.clients {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) Online() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Lookup resolves a registered id to its current connection.
func (r *Registry) Lookup(id domain.ClientID) (core.SessionID, core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.clients[id]
	if !ok {
		return "", nil, false
	}
	e, ok := r.sessions[sid]
	if !ok {
		return "", nil, false
	}
	return sid, e.Conn, true
}

// ClientOf returns the id the session is registered under, if any.
func (r *Registry) ClientOf(sid core.SessionID) (domain.ClientID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok || e.Client == "" {
		return "", false
	}
	return e.Client, true
}

func (r *Registry) GetSession(sid core.SessionID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Conn, true
	}
	return nil, false
}

func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.presence").Str("sid", string(sid)).Msg("canceled session")
	return true
}
