// Package infer carries frames to a remote inference service and decodes
// what comes back.
package infer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Delimiter separates the JSON header from the binary payload of a frame.
var Delimiter = []byte("\n\n")

var (
	ErrNoDelimiter = errors.New("frame delimiter not found")
	ErrBadHeader   = errors.New("invalid frame header")
)

// FrameHeader precedes every binary frame.
type FrameHeader struct {
	Type      string   `json:"type"`
	FrameID   *int64   `json:"frame_id,omitempty"`
	CaptureTS *float64 `json:"capture_ts,omitempty"`
}

// EncodeFrame builds header JSON + "\n\n" + payload.
func EncodeFrame(h FrameHeader, payload []byte) ([]byte, error) {
	if h.Type == "" {
		h.Type = "frame"
	}
	head, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("marshal header: %w", err)
	}
	buf := make([]byte, 0, len(head)+len(Delimiter)+len(payload))
	buf = append(buf, head...)
	buf = append(buf, Delimiter...)
	return append(buf, payload...), nil
}

// DecodeFrame splits at the first delimiter. The payload aliases b.
func DecodeFrame(b []byte) (FrameHeader, []byte, error) {
	var h FrameHeader
	i := bytes.Index(b, Delimiter)
	if i < 0 {
		return h, nil, ErrNoDelimiter
	}
	if err := json.Unmarshal(b[:i], &h); err != nil {
		return h, nil, fmt.Errorf("%w: %v", ErrBadHeader, err)
	}
	return h, b[i+len(Delimiter):], nil
}
