package core

import (
	"github.com/dkeye/DetectBench/internal/domain"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	ID   domain.ConnID `json:"id"`
	Role domain.Role   `json:"role"`
}

// RoomService is the core-facing API of a room.
// It owns the membership set and role mapping but never touches transport resources.
type RoomService interface {
	Room() *domain.Room
	MemberCount() int
	MembersSnapshot() []MemberDTO
	Role(sid SessionID) (domain.Role, bool)

	AddMember(sid SessionID, ms MemberSession, role domain.Role)
	RemoveMember(sid SessionID) (domain.Role, bool)
	Broadcast(from SessionID, data Frame) PublishResult
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"client_count"`
	Members     []MemberDTO   `json:"members"`
}

// RoomManager is the room registry shared by all connections.
type RoomManager interface {
	GetOrCreate(id domain.RoomID) RoomService
	Get(id domain.RoomID) (RoomService, bool)
	Join(id domain.RoomID, ms MemberSession, role domain.Role) RoomService
	Remove(sid SessionID) (RoomService, domain.Role, bool)
	RoomOf(sid SessionID) (RoomService, bool)
	List() []RoomInfo
	Prune() int
}
