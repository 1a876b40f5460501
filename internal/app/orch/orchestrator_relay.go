package orch

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/DetectBench/internal/app"
	"github.com/dkeye/DetectBench/internal/core"
	"github.com/dkeye/DetectBench/internal/domain"
	"github.com/dkeye/DetectBench/internal/infer"
	"github.com/dkeye/DetectBench/internal/metrics"
)

// boundRoom returns the room of sid, or false for unbound connections.
func (o *Orchestrator) boundRoom(sid core.SessionID, t domain.MessageType) (core.RoomService, domain.Role, bool) {
	b, ok := o.Registry.Binding(sid)
	if !ok || !b.Bound() {
		metrics.RecordMessage(string(t), "unbound")
		return nil, "", false
	}
	room, ok := o.Rooms.RoomOf(sid)
	if !ok {
		metrics.RecordMessage(string(t), "unbound")
		return nil, "", false
	}
	return room, b.Role, true
}

func (o *Orchestrator) relay(room core.RoomService, from core.SessionID, t domain.MessageType, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("type", string(t)).Msg("relay marshal")
		return
	}
	o.relayFrame(room, from, t, b)
}

func (o *Orchestrator) relayFrame(room core.RoomService, from core.SessionID, t domain.MessageType, frame core.Frame) {
	res := room.Broadcast(from, frame)
	metrics.RecordDropped(string(t), len(res.Dropped))
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(room, slow) {
		case app.KickMember:
			o.Kick(slow.ID())
		case app.DropFrame, app.NoAction:
		}
	}
}

func (o *Orchestrator) handleSignal(sid core.SessionID, data []byte) {
	var msg domain.Signal
	if err := json.Unmarshal(data, &msg); err != nil {
		metrics.RecordMessage(string(domain.TypeSignal), "dropped")
		return
	}
	room, role, ok := o.boundRoom(sid, domain.TypeSignal)
	if !ok {
		return
	}
	if o.Inspector != nil {
		kind := o.Inspector.Kind(msg.Payload)
		metrics.RecordSignalKind(kind)
		log.Debug().Str("module", "orch").Str("sid", string(sid)).Str("kind", kind).Msg("signal")
	}
	o.relay(room, sid, domain.TypeSignal, domain.Signal{Type: domain.TypeSignal, From: role, Payload: msg.Payload})
	metrics.RecordMessage(string(domain.TypeSignal), "ok")
}

func (o *Orchestrator) handleBenchPing(sid core.SessionID, data []byte) {
	var msg domain.BenchPing
	if err := json.Unmarshal(data, &msg); err != nil {
		metrics.RecordMessage(string(domain.TypeBenchPing), "dropped")
		return
	}
	room, _, ok := o.boundRoom(sid, domain.TypeBenchPing)
	if !ok {
		return
	}
	o.relay(room, sid, domain.TypeBenchPong, domain.BenchPing{Type: domain.TypeBenchPong, T: msg.T})
	metrics.RecordMessage(string(domain.TypeBenchPing), "ok")
}

func (o *Orchestrator) handleDetections(sid core.SessionID, data []byte) {
	var msg domain.Detections
	if err := json.Unmarshal(data, &msg); err != nil {
		metrics.RecordMessage(string(domain.TypeDetections), "dropped")
		return
	}
	room, _, ok := o.boundRoom(sid, domain.TypeDetections)
	if !ok {
		return
	}
	o.relay(room, sid, domain.TypeDetections, domain.Detections{Type: domain.TypeDetections, Payload: msg.Payload})
	metrics.RecordMessage(string(domain.TypeDetections), "ok")

	if o.Telemetry == nil || len(msg.Payload) == 0 {
		return
	}
	res, err := infer.ParseResult(msg.Payload)
	if err != nil {
		log.Debug().Err(err).Str("module", "orch").Msg("detections payload not a result")
		return
	}
	o.Telemetry.Observe(room.Room().ID, res)
}

func (o *Orchestrator) handlePhoneFrame(sid core.SessionID, data []byte) {
	var msg domain.PhoneFrame
	if err := json.Unmarshal(data, &msg); err != nil {
		metrics.RecordMessage(string(domain.TypePhoneFrame), "dropped")
		return
	}
	room, _, ok := o.boundRoom(sid, domain.TypePhoneFrame)
	if !ok {
		return
	}
	o.relayFrame(room, sid, domain.TypePhoneFrame, data)
	metrics.RecordMessage(string(domain.TypePhoneFrame), "ok")

	if o.Telemetry == nil {
		return
	}
	var meta domain.FrameMeta
	if err := json.Unmarshal(msg.Payload, &meta); err != nil || meta.FrameID == nil || !domain.Has(meta.CaptureTS) {
		return
	}
	o.Telemetry.Correlator().Capture(room.Room().ID, *meta.FrameID, *meta.CaptureTS)
}
