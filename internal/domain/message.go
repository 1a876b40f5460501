package domain

import "encoding/json"

type MessageType string

const (
	TypeHello      MessageType = "hello"
	TypeHelloAck   MessageType = "hello:ack"
	TypePeerJoin   MessageType = "peer:join"
	TypePeerLeave  MessageType = "peer:leave"
	TypeSignal     MessageType = "signal"
	TypeBenchPing  MessageType = "bench:ping"
	TypeBenchPong  MessageType = "bench:pong"
	TypeBenchStart MessageType = "bench:start"
	TypeDetections MessageType = "detections"
	TypePhoneFrame MessageType = "phone:frame"
)

// Envelope is decoded first to pick a handler by type.
type Envelope struct {
	Type MessageType `json:"type"`
}

type Hello struct {
	Type   MessageType `json:"type"`
	RoomID string      `json:"roomId"`
	Room   string      `json:"room,omitempty"`
	Role   string      `json:"role"`
}

type HelloAck struct {
	Type   MessageType `json:"type"`
	RoomID RoomID      `json:"roomId"`
	Role   Role        `json:"role"`
	Mode   string      `json:"mode"`
}

type PeerJoin struct {
	Type MessageType `json:"type"`
	Role Role        `json:"role"`
}

type PeerLeave struct {
	Type MessageType `json:"type"`
	Role Role        `json:"role"`
}

// Signal carries connection setup payloads. Payload is never interpreted by the relay.
type Signal struct {
	Type    MessageType     `json:"type"`
	From    Role            `json:"from,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type BenchPing struct {
	Type MessageType     `json:"type"`
	T    json.RawMessage `json:"t,omitempty"`
}

type BenchStart struct {
	Type     MessageType `json:"type"`
	Duration float64     `json:"duration"`
	Mode     string      `json:"mode"`
}

type Detections struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type PhoneFrame struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// FrameMeta is the payload of a phone:frame message.
type FrameMeta struct {
	FrameID   *int64   `json:"frame_id,omitempty"`
	CaptureTS *float64 `json:"capture_ts,omitempty"`
}
