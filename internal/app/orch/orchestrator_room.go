package orch

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/DetectBench/internal/app"
	"github.com/dkeye/DetectBench/internal/core"
	"github.com/dkeye/DetectBench/internal/domain"
	"github.com/dkeye/DetectBench/internal/metrics"
)

func (o *Orchestrator) handleHello(sid core.SessionID, data []byte) {
	var msg domain.Hello
	if err := json.Unmarshal(data, &msg); err != nil {
		metrics.RecordMessage(string(domain.TypeHello), "dropped")
		return
	}
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return
	}

	raw := msg.RoomID
	if raw == "" {
		raw = msg.Room
	}
	roomID := domain.NormalizeRoomID(raw)
	role := domain.ParseRole(msg.Role)

	if roomID == "" {
		o.leaveRoom(sid)
		o.Registry.SetBinding(sid, app.Binding{})
		o.sendJSON(sess, domain.HelloAck{Type: domain.TypeHelloAck, RoomID: roomID, Role: role, Mode: o.Mode})
		metrics.RecordMessage(string(domain.TypeHello), "unbound")
		log.Info().Str("module", "orch").Str("sid", string(sid)).Msg("hello without room")
		return
	}

	if prev, ok := o.Registry.Binding(sid); ok && prev.Bound() && prev.RoomID != roomID {
		o.leaveRoom(sid)
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("from_room", string(prev.RoomID)).Msg("moved out of room")
	}
	room := o.Rooms.Join(roomID, sess, role)
	o.Registry.SetBinding(sid, app.Binding{RoomID: roomID, Role: role})

	o.sendJSON(sess, domain.HelloAck{Type: domain.TypeHelloAck, RoomID: roomID, Role: role, Mode: o.Mode})
	o.relay(room, sid, domain.TypePeerJoin, domain.PeerJoin{Type: domain.TypePeerJoin, Role: role})
	metrics.RecordMessage(string(domain.TypeHello), "ok")
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(roomID)).Str("role", string(role)).Msg("joined room")
}

// leaveRoom detaches sid from its room, announcing it when configured to.
func (o *Orchestrator) leaveRoom(sid core.SessionID) {
	room, role, ok := o.Rooms.Remove(sid)
	if !ok {
		return
	}
	if o.NotifyPeerLeave {
		o.relay(room, sid, domain.TypePeerLeave, domain.PeerLeave{Type: domain.TypePeerLeave, Role: role})
	}
}

// Kick closes a connection. Its read pump then runs the normal disconnect.
func (o *Orchestrator) Kick(sid core.SessionID) {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return
	}
	o.leaveRoom(sid)
	o.Registry.SetBinding(sid, app.Binding{})
	o.Registry.Cancel(sid)
	sess.Signal().Close()
	log.Warn().Str("module", "orch").Str("sid", string(sid)).Msg("kicked")
}

// Janitor drops empty rooms. Returns how many were removed.
func (o *Orchestrator) Janitor() int {
	n := o.Rooms.Prune()
	if n > 0 {
		log.Info().Str("module", "orch").Int("pruned", n).Msg("removed empty rooms")
	}
	return n
}
