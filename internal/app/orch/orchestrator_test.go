package orch

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/DetectBench/internal/app"
	"github.com/dkeye/DetectBench/internal/core"
	"github.com/dkeye/DetectBench/internal/domain"
	"github.com/dkeye/DetectBench/internal/telemetry"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrClosed
	}
	if c.full {
		return core.ErrBackpressure
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) messages(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.frames))
	for _, f := range c.frames {
		var m map[string]any
		require.NoError(t, json.Unmarshal(f, &m))
		out = append(out, m)
	}
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

type kindRecorder struct{ kinds []string }

func (k *kindRecorder) Kind(json.RawMessage) string {
	k.kinds = append(k.kinds, "offer")
	return "offer"
}

func newOrch() *Orchestrator {
	return &Orchestrator{
		Registry:  app.NewRegistry(),
		Rooms:     app.NewRoomManager(),
		Policy:    app.DropPolicy{},
		Telemetry: telemetry.NewAggregator(),
		Mode:      "wasm",
	}
}

func connect(o *Orchestrator) (core.SessionID, *fakeConn) {
	conn := &fakeConn{}
	sess := core.NewMemberSession(domain.NewMember("token", "127.0.0.1"), conn)
	o.OnConnect(sess, nil)
	return sess.ID(), conn
}

func hello(o *Orchestrator, sid core.SessionID, room, role string) {
	o.HandleMessage(sid, []byte(`{"type":"hello","roomId":"`+room+`","role":"`+role+`"}`))
}

func TestHelloAckAndPeerJoin(t *testing.T) {
	o := newOrch()
	viewer, vc := connect(o)
	phone, pc := connect(o)

	hello(o, viewer, "abc", "viewer")
	msgs := vc.messages(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, map[string]any{"type": "hello:ack", "roomId": "abc", "role": "viewer", "mode": "wasm"}, msgs[0])

	hello(o, phone, "abc", "phone")
	msgs = vc.messages(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, map[string]any{"type": "peer:join", "role": "phone"}, msgs[1])

	phoneMsgs := pc.messages(t)
	require.Len(t, phoneMsgs, 1)
	assert.Equal(t, "hello:ack", phoneMsgs[0]["type"])
}

func TestSignalReachesOnlyRoommates(t *testing.T) {
	o := newOrch()
	viewer, vc := connect(o)
	phone, pc := connect(o)
	stranger, sc := connect(o)
	hello(o, viewer, "abc", "viewer")
	hello(o, phone, "abc", "phone")
	hello(o, stranger, "zzz", "viewer")
	vc.reset()
	pc.reset()
	sc.reset()

	o.HandleMessage(phone, []byte(`{"type":"signal","payload":{"sdp":"v=0","type":"offer"}}`))

	msgs := vc.messages(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, "signal", msgs[0]["type"])
	assert.Equal(t, "phone", msgs[0]["from"])
	assert.Equal(t, map[string]any{"sdp": "v=0", "type": "offer"}, msgs[0]["payload"])
	assert.Empty(t, pc.messages(t))
	assert.Empty(t, sc.messages(t))
}

func TestRoomIDTruncatedAndRoleDefaulted(t *testing.T) {
	o := newOrch()
	sid, conn := connect(o)

	o.HandleMessage(sid, []byte(`{"type":"hello","roomId":"abcdefghij"}`))
	msgs := conn.messages(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, "abcdefgh", msgs[0]["roomId"])
	assert.Equal(t, "other", msgs[0]["role"])

	b, ok := o.Registry.Binding(sid)
	require.True(t, ok)
	assert.Equal(t, domain.RoomID("abcdefgh"), b.RoomID)
}

func TestHelloRoomFallbackField(t *testing.T) {
	o := newOrch()
	sid, _ := connect(o)
	o.HandleMessage(sid, []byte(`{"type":"hello","room":"r1","role":"viewer"}`))

	room, ok := o.Rooms.RoomOf(sid)
	require.True(t, ok)
	assert.Equal(t, domain.RoomID("r1"), room.Room().ID)
}

func TestHelloWithoutRoomStaysUnbound(t *testing.T) {
	o := newOrch()
	a, ac := connect(o)
	b, bc := connect(o)
	hello(o, a, "", "phone")
	hello(o, b, "", "viewer")

	require.Len(t, ac.messages(t), 1)
	bc.reset()
	o.HandleMessage(a, []byte(`{"type":"signal","payload":{}}`))
	assert.Empty(t, bc.messages(t))

	_, ok := o.Rooms.RoomOf(a)
	assert.False(t, ok)
}

func TestUnboundAndMalformedAreDropped(t *testing.T) {
	o := newOrch()
	a, ac := connect(o)
	b, bc := connect(o)
	hello(o, b, "abc", "viewer")
	bc.reset()

	o.HandleMessage(a, []byte(`{"type":"signal","payload":{}}`))
	o.HandleMessage(a, []byte(`not json`))
	o.HandleMessage(b, []byte(`{"type":"mystery"}`))
	o.HandleMessage(b, []byte(`{"type":"signal","payload":`))

	assert.Empty(t, ac.messages(t))
	assert.Empty(t, bc.messages(t))
	_, ok := o.Registry.GetSession(a)
	assert.True(t, ok)
}

func TestRehelloMovesRooms(t *testing.T) {
	o := newOrch()
	a, _ := connect(o)
	b, bc := connect(o)
	c, cc := connect(o)
	hello(o, a, "one", "phone")
	hello(o, b, "one", "viewer")
	hello(o, c, "two", "viewer")
	hello(o, a, "two", "phone")
	bc.reset()
	cc.reset()

	o.HandleMessage(a, []byte(`{"type":"signal","payload":1}`))
	assert.Empty(t, bc.messages(t))
	require.Len(t, cc.messages(t), 1)

	one, _ := o.Rooms.Get("one")
	assert.Equal(t, 1, one.MemberCount())
}

func TestBenchPingBecomesPong(t *testing.T) {
	o := newOrch()
	a, _ := connect(o)
	b, bc := connect(o)
	hello(o, a, "abc", "phone")
	hello(o, b, "abc", "viewer")
	bc.reset()

	o.HandleMessage(a, []byte(`{"type":"bench:ping","t":1700000000123}`))
	msgs := bc.messages(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, "bench:pong", msgs[0]["type"])
	assert.Equal(t, float64(1700000000123), msgs[0]["t"])
}

func TestBroadcastAllIncludesUnbound(t *testing.T) {
	o := newOrch()
	a, ac := connect(o)
	_, bc := connect(o)
	hello(o, a, "abc", "viewer")
	ac.reset()

	n, err := o.BroadcastJSON(domain.BenchStart{Type: domain.TypeBenchStart, Duration: 30, Mode: "wasm"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	for _, c := range []*fakeConn{ac, bc} {
		msgs := c.messages(t)
		require.Len(t, msgs, 1)
		assert.Equal(t, map[string]any{"type": "bench:start", "duration": float64(30), "mode": "wasm"}, msgs[0])
	}
}

func TestDisconnectIsSilentByDefault(t *testing.T) {
	o := newOrch()
	a, _ := connect(o)
	b, bc := connect(o)
	hello(o, a, "abc", "phone")
	hello(o, b, "abc", "viewer")
	bc.reset()

	o.OnDisconnect(a)
	assert.Empty(t, bc.messages(t))
	room, _ := o.Rooms.Get("abc")
	assert.Equal(t, 1, room.MemberCount())
	assert.Equal(t, 1, o.Registry.Count())

	o.OnDisconnect(a)
	assert.Equal(t, 1, o.Registry.Count())
}

func TestDisconnectNotifiesWhenEnabled(t *testing.T) {
	o := newOrch()
	o.NotifyPeerLeave = true
	a, _ := connect(o)
	b, bc := connect(o)
	hello(o, a, "abc", "phone")
	hello(o, b, "abc", "viewer")
	bc.reset()

	o.OnDisconnect(a)
	msgs := bc.messages(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, map[string]any{"type": "peer:leave", "role": "phone"}, msgs[0])
}

func TestSlowPeerDoesNotBlockOthers(t *testing.T) {
	o := newOrch()
	a, _ := connect(o)
	b, bc := connect(o)
	c, cc := connect(o)
	hello(o, a, "abc", "phone")
	hello(o, b, "abc", "viewer")
	hello(o, c, "abc", "other")
	bc.full = true
	cc.reset()

	o.HandleMessage(a, []byte(`{"type":"signal","payload":1}`))
	require.Len(t, cc.messages(t), 1)
	_, ok := o.Rooms.RoomOf(b)
	assert.True(t, ok)
}

func TestKickPolicyRemovesSlowPeer(t *testing.T) {
	o := newOrch()
	o.Policy = app.KickPolicy{}
	a, _ := connect(o)
	b, bc := connect(o)
	hello(o, a, "abc", "phone")
	hello(o, b, "abc", "viewer")
	bc.full = true

	o.HandleMessage(a, []byte(`{"type":"signal","payload":1}`))
	_, ok := o.Rooms.RoomOf(b)
	assert.False(t, ok)
	assert.True(t, bc.closed)
}

func TestPhoneFrameRelayedAndCorrelated(t *testing.T) {
	o := newOrch()
	phone, _ := connect(o)
	viewer, vc := connect(o)
	hello(o, phone, "abc", "phone")
	hello(o, viewer, "abc", "viewer")
	vc.reset()

	raw := `{"type":"phone:frame","payload":{"frame_id":7,"capture_ts":1000}}`
	o.HandleMessage(phone, []byte(raw))

	vc.mu.Lock()
	require.Len(t, vc.frames, 1)
	assert.JSONEq(t, raw, string(vc.frames[0]))
	vc.mu.Unlock()

	rec, ok := o.Telemetry.Correlator().Latest("abc")
	require.True(t, ok)
	assert.Equal(t, int64(7), rec.FrameID)
	assert.Equal(t, 1000.0, rec.CaptureTS)
}

func TestDetectionsRelayedAndObserved(t *testing.T) {
	o := newOrch()
	o.Telemetry.Begin()
	a, _ := connect(o)
	b, bc := connect(o)
	hello(o, a, "abc", "viewer")
	hello(o, b, "abc", "other")
	bc.reset()

	o.HandleMessage(a, []byte(`{"type":"detections","payload":{"frame_id":1,"capture_ts":1000,"detections":[]}}`))
	msgs := bc.messages(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, "detections", msgs[0]["type"])
	assert.Equal(t, 1, o.Telemetry.SampleCount())
}

func TestSignalKindInspected(t *testing.T) {
	o := newOrch()
	rec := &kindRecorder{}
	o.Inspector = rec
	a, _ := connect(o)
	hello(o, a, "abc", "phone")

	o.HandleMessage(a, []byte(`{"type":"signal","payload":{"type":"offer","sdp":"v=0"}}`))
	assert.Equal(t, []string{"offer"}, rec.kinds)
}

func TestJanitorPrunesEmptyRooms(t *testing.T) {
	o := newOrch()
	a, _ := connect(o)
	hello(o, a, "abc", "phone")
	o.Rooms.GetOrCreate("empty")

	assert.Equal(t, 1, o.Janitor())
	_, ok := o.Rooms.Get("abc")
	assert.True(t, ok)
}
