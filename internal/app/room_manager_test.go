package app

import (
	"sync"
	"testing"

	"github.com/dkeye/DetectBench/internal/core"
	"github.com/dkeye/DetectBench/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateIsIdempotent(t *testing.T) {
	m := NewRoomManager()
	a := m.GetOrCreate("abc")
	b := m.GetOrCreate("abc")
	assert.Same(t, a, b)
	assert.Len(t, m.List(), 1)
}

func TestConcurrentJoinCreatesSingleRoom(t *testing.T) {
	const n = 64
	m := NewRoomManager()
	sessions := make([]core.MemberSession, n)
	for i := range sessions {
		sessions[i] = newSession()
	}

	var wg sync.WaitGroup
	rooms := make([]core.RoomService, n)
	for i := range sessions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rooms[i] = m.Join("abc", sessions[i], domain.RoleViewer)
		}(i)
	}
	wg.Wait()

	list := m.List()
	require.Len(t, list, 1)
	assert.Equal(t, n, list[0].MemberCount)
	for _, r := range rooms {
		assert.Same(t, rooms[0], r)
	}
}

func TestJoinMovesBetweenRooms(t *testing.T) {
	m := NewRoomManager()
	s := newSession()
	first := m.Join("one", s, domain.RolePhone)
	second := m.Join("two", s, domain.RolePhone)

	assert.Equal(t, 0, first.MemberCount())
	assert.Equal(t, 1, second.MemberCount())
	got, ok := m.RoomOf(s.ID())
	require.True(t, ok)
	assert.Same(t, second, got)
}

func TestRemove(t *testing.T) {
	m := NewRoomManager()
	a, b := newSession(), newSession()
	room := m.Join("abc", a, domain.RolePhone)
	m.Join("abc", b, domain.RoleViewer)

	got, role, ok := m.Remove(a.ID())
	require.True(t, ok)
	assert.Same(t, room, got)
	assert.Equal(t, domain.RolePhone, role)
	assert.Equal(t, 1, room.MemberCount())

	_, _, ok = m.Remove(a.ID())
	assert.False(t, ok)
	_, _, ok = m.Remove("unknown")
	assert.False(t, ok)

	res := room.Broadcast(a.ID(), core.Frame("x"))
	assert.Equal(t, 1, res.SendTo)
}

func TestPruneKeepsOccupiedRooms(t *testing.T) {
	m := NewRoomManager()
	m.GetOrCreate("empty")
	m.Join("busy", newSession(), domain.RoleViewer)

	assert.Equal(t, 1, m.Prune())
	_, ok := m.Get("empty")
	assert.False(t, ok)
	_, ok = m.Get("busy")
	assert.True(t, ok)
}

func TestPolicyByName(t *testing.T) {
	assert.IsType(t, KickPolicy{}, PolicyByName("kick"))
	assert.IsType(t, DropPolicy{}, PolicyByName("drop"))
	assert.IsType(t, DropPolicy{}, PolicyByName(""))
}
