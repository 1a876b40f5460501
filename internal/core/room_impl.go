package core

import (
	"sync"

	"github.com/dkeye/DetectBench/internal/domain"
	"github.com/rs/zerolog/log"
)

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	room  *domain.Room
	mu    sync.RWMutex
	bySID map[SessionID]MemberSession
	roles map[SessionID]domain.Role
}

func NewRoomService(room *domain.Room) RoomService {
	return &roomImpl{
		room:  room,
		bySID: make(map[SessionID]MemberSession),
		roles: make(map[SessionID]domain.Role),
	}
}

func (r *roomImpl) Room() *domain.Room { return r.room }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySID)
}

func (r *roomImpl) Role(sid SessionID) (domain.Role, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	role, ok := r.roles[sid]
	return role, ok
}

func (r *roomImpl) AddMember(sid SessionID, ms MemberSession, role domain.Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bySID[sid] = ms
	r.roles[sid] = role
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("sid", string(sid)).Str("role", string(role)).Msg("member added")
}

// RemoveMember drops membership and role together.
func (r *roomImpl) RemoveMember(sid SessionID) (domain.Role, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	role, ok := r.roles[sid]
	if _, member := r.bySID[sid]; !member {
		return "", false
	}
	delete(r.bySID, sid)
	delete(r.roles, sid)
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("sid", string(sid)).Msg("member removed")
	return role, ok
}

// Broadcast fans data out to every member except from. A failed TrySend only
// skips that member.
func (r *roomImpl) Broadcast(from SessionID, data Frame) PublishResult {
	r.mu.RLock()
	targets := make([]MemberSession, 0, len(r.bySID))
	for sid, m := range r.bySID {
		if sid == from {
			continue
		}
		targets = append(targets, m)
	}
	r.mu.RUnlock()

	res := PublishResult{}
	for _, m := range targets {
		if err := m.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("room", string(r.room.ID)).Str("from", string(from)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *roomImpl) MembersSnapshot() []MemberDTO {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MemberDTO, 0, len(r.bySID))
	for sid, ms := range r.bySID {
		out = append(out, MemberDTO{ID: ms.Meta().ID, Role: r.roles[sid]})
	}
	return out
}
