package app

import (
	"sync"

	"github.com/dkeye/DetectBench/internal/core"
	"github.com/dkeye/DetectBench/internal/domain"
	"github.com/rs/zerolog/log"
)

// RoomManagerImpl owns every room and the sid -> room index.
// Lock order is manager then room.
type RoomManagerImpl struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]core.RoomService
	index map[core.SessionID]domain.RoomID
}

func NewRoomManager() *RoomManagerImpl {
	return &RoomManagerImpl{
		rooms: make(map[domain.RoomID]core.RoomService),
		index: make(map[core.SessionID]domain.RoomID),
	}
}

func (f *RoomManagerImpl) GetOrCreate(id domain.RoomID) core.RoomService {
	f.mu.RLock()
	room, ok := f.rooms[id]
	f.mu.RUnlock()
	if ok {
		return room
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getOrCreateLocked(id)
}

func (f *RoomManagerImpl) getOrCreateLocked(id domain.RoomID) core.RoomService {
	if room, ok := f.rooms[id]; ok {
		return room
	}
	room := core.NewRoomService(&domain.Room{ID: id})
	f.rooms[id] = room
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room created")
	return room
}

func (f *RoomManagerImpl) Get(id domain.RoomID) (core.RoomService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	room, ok := f.rooms[id]
	return room, ok
}

// Join moves ms into room id, detaching it from its previous room first.
func (f *RoomManagerImpl) Join(id domain.RoomID, ms core.MemberSession, role domain.Role) core.RoomService {
	sid := ms.ID()
	f.mu.Lock()
	defer f.mu.Unlock()
	if prev, ok := f.index[sid]; ok {
		if old, ok := f.rooms[prev]; ok {
			old.RemoveMember(sid)
		}
	}
	room := f.getOrCreateLocked(id)
	room.AddMember(sid, ms, role)
	f.index[sid] = id
	return room
}

// Remove detaches sid from whatever room holds it. Unknown sids are a no-op.
func (f *RoomManagerImpl) Remove(sid core.SessionID) (core.RoomService, domain.Role, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.index[sid]
	if !ok {
		return nil, "", false
	}
	delete(f.index, sid)
	room, ok := f.rooms[id]
	if !ok {
		return nil, "", false
	}
	role, _ := room.RemoveMember(sid)
	return room, role, true
}

func (f *RoomManagerImpl) RoomOf(sid core.SessionID) (core.RoomService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	id, ok := f.index[sid]
	if !ok {
		return nil, false
	}
	room, ok := f.rooms[id]
	return room, ok
}

func (f *RoomManagerImpl) List() []core.RoomInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(f.rooms))
	for id, r := range f.rooms {
		out = append(out, core.RoomInfo{ID: id, MemberCount: r.MemberCount(), Members: r.MembersSnapshot()})
	}
	return out
}

// Prune deletes rooms without members and returns how many were removed.
func (f *RoomManagerImpl) Prune() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for id, r := range f.rooms {
		if r.MemberCount() == 0 {
			delete(f.rooms, id)
			n++
		}
	}
	if n > 0 {
		log.Info().Str("module", "app.rooms").Int("pruned", n).Msg("removed empty rooms")
	}
	return n
}
