package infer

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/DetectBench/internal/detect"
	"github.com/dkeye/DetectBench/internal/domain"
)

// wireResult is what the inference service answers with. Services either
// return decoded detections or a raw output tensor with letterbox metadata.
type wireResult struct {
	domain.FrameResult
	Output *detect.Tensor    `json:"output,omitempty"`
	Meta   *detect.Letterbox `json:"meta,omitempty"`
}

// ParseResult decodes a service answer, decoding a raw tensor when present.
// A missing or malformed tensor yields no detections rather than an error.
func ParseResult(b []byte) (domain.FrameResult, error) {
	var w wireResult
	if err := json.Unmarshal(b, &w); err != nil {
		return domain.FrameResult{}, fmt.Errorf("parse result: %w", err)
	}
	res := w.FrameResult
	if w.Output != nil {
		lb := detect.Letterbox{}
		if w.Meta != nil {
			lb = *w.Meta
		}
		res.Detections = detect.Decode(*w.Output, lb)
	}
	if res.Detections == nil {
		res.Detections = []domain.Detection{}
	}
	return res, nil
}
