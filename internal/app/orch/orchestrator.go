package orch

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/DetectBench/internal/app"
	"github.com/dkeye/DetectBench/internal/core"
	"github.com/dkeye/DetectBench/internal/domain"
	"github.com/dkeye/DetectBench/internal/metrics"
	"github.com/dkeye/DetectBench/internal/telemetry"
)

// SignalInspector names the kind of a relayed signal payload for logs.
type SignalInspector interface {
	Kind(payload json.RawMessage) string
}

type Orchestrator struct {
	Registry  *app.Registry
	Rooms     core.RoomManager
	Policy    app.Policy
	Telemetry *telemetry.Aggregator
	Inspector SignalInspector

	// Mode is echoed in hello:ack.
	Mode            string
	NotifyPeerLeave bool
}

// OnConnect registers a fresh, unbound connection.
func (o *Orchestrator) OnConnect(sess core.MemberSession, cancel context.CancelFunc) {
	o.Registry.BindSignal(sess, cancel)
	metrics.ConnectionOpened()
}

// OnDisconnect removes the connection from its room and the registry.
func (o *Orchestrator) OnDisconnect(sid core.SessionID) {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return
	}
	o.leaveRoom(sid)
	o.Registry.Unbind(sid)
	sess.Signal().Close()
	metrics.ConnectionClosed()
}

// HandleMessage dispatches one inbound text frame. Anything unparseable or
// unknown is dropped and the connection stays open.
func (o *Orchestrator) HandleMessage(sid core.SessionID, data []byte) {
	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		metrics.RecordMessage("invalid", "dropped")
		log.Debug().Err(err).Str("module", "orch").Str("sid", string(sid)).Msg("bad json")
		return
	}

	switch env.Type {
	case domain.TypeHello:
		o.handleHello(sid, data)
	case domain.TypeSignal:
		o.handleSignal(sid, data)
	case domain.TypeBenchPing:
		o.handleBenchPing(sid, data)
	case domain.TypeDetections:
		o.handleDetections(sid, data)
	case domain.TypePhoneFrame:
		o.handlePhoneFrame(sid, data)
	default:
		metrics.RecordMessage("unknown", "dropped")
		log.Debug().Str("module", "orch").Str("sid", string(sid)).Str("type", string(env.Type)).Msg("unknown message")
	}
}

// BroadcastAll delivers frame to every live connection, bound or not.
func (o *Orchestrator) BroadcastAll(frame core.Frame) int {
	sent := 0
	for _, sess := range o.Registry.All() {
		if err := sess.Signal().TrySend(frame); err != nil {
			log.Debug().Err(err).Str("module", "orch").Str("sid", string(sess.ID())).Msg("global broadcast skipped")
			continue
		}
		sent++
	}
	return sent
}

// BroadcastJSON marshals v and sends it to every live connection.
func (o *Orchestrator) BroadcastJSON(v any) (int, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	return o.BroadcastAll(b), nil
}

func (o *Orchestrator) sendJSON(sess core.MemberSession, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("sendJSON marshal")
		return
	}
	if err := sess.Signal().TrySend(b); err != nil {
		log.Debug().Err(err).Str("module", "orch").Str("sid", string(sess.ID())).Msg("sendJSON dropped")
	}
}
