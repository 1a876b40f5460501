package app

import (
	"context"
	"sync"

	"github.com/dkeye/DetectBench/internal/core"
	"github.com/dkeye/DetectBench/internal/domain"
	"github.com/rs/zerolog/log"
)

// Binding is the room association of a connection. Zero value means unbound.
type Binding struct {
	RoomID domain.RoomID
	Role   domain.Role
}

func (b Binding) Bound() bool { return b.RoomID != "" }

type sessionEntry struct {
	Session core.MemberSession
	Binding Binding
	Cancel  context.CancelFunc
}

// Registry tracks every live connection, bound to a room or not.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]*sessionEntry),
	}
}

func (r *Registry) BindSignal(sess core.MemberSession, cancel context.CancelFunc) {
	sid := sess.ID()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sid] = &sessionEntry{Session: sess, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("bound signal")
}

func (r *Registry) GetSession(sid core.SessionID) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Session, true
	}
	return nil, false
}

func (r *Registry) Binding(sid core.SessionID) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok {
		return Binding{}, false
	}
	return e.Binding, true
}

func (r *Registry) SetBinding(sid core.SessionID, b Binding) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return false
	}
	e.Binding = b
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(b.RoomID)).Str("role", string(b.Role)).Msg("updated binding")
	return true
}

func (r *Registry) Unbind(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
}

// All returns a snapshot of every live session.
func (r *Registry) All() []core.MemberSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.MemberSession, 0, len(r.sessions))
	for _, e := range r.sessions {
		out = append(out, e.Session)
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
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
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}
