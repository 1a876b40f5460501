// Package rtc classifies WebRTC negotiation payloads passing through the relay.
// Payloads are only read, never rewritten.
package rtc

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const (
	KindCandidate       = "candidate"
	KindEndOfCandidates = "end-of-candidates"
	KindUnknown         = "unknown"
)

// wirePayload is the shape browsers relay: {sdp: {...}} or {candidate: {...}}.
type wirePayload struct {
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

type Inspector struct{}

func NewInspector() *Inspector { return &Inspector{} }

// Kind returns offer, answer, pranswer, rollback, candidate,
// end-of-candidates or unknown.
func (i *Inspector) Kind(payload json.RawMessage) string {
	if len(payload) == 0 {
		return KindUnknown
	}
	var p wirePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return KindUnknown
	}
	switch {
	case p.SDP != nil:
		return describeSDP(p.SDP)
	case p.Candidate != nil:
		if p.Candidate.Candidate == "" {
			return KindEndOfCandidates
		}
		return KindCandidate
	}
	return KindUnknown
}

func describeSDP(desc *webrtc.SessionDescription) string {
	if desc.Type == webrtc.SDPTypeUnknown {
		return KindUnknown
	}
	kind := desc.Type.String()
	parsed, err := desc.Unmarshal()
	if err != nil {
		log.Debug().Err(err).Str("module", "rtc").Str("kind", kind).Msg("unparseable sdp")
		return kind
	}
	log.Debug().Str("module", "rtc").Str("kind", kind).Int("media", len(parsed.MediaDescriptions)).Msg("sdp")
	return kind
}
