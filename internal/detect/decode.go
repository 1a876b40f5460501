// Package detect decodes raw YOLO style output tensors into normalized boxes.
package detect

import (
	"github.com/dkeye/DetectBench/internal/domain"
)

const (
	MinObjectness = 0.25
	MinScore      = 0.30
)

// Tensor is a flat float tensor with its shape.
type Tensor struct {
	Dims []int     `json:"dims"`
	Data []float64 `json:"data"`
}

// Letterbox describes how the source image was fitted into the square model input.
type Letterbox struct {
	DX    float64 `json:"dx"`
	DY    float64 `json:"dy"`
	Scale float64 `json:"scale"`
	Size  float64 `json:"size"`
}

// Decode turns rows of [cx, cy, w, h, objectness, class scores...] into
// detections. Unsupported shapes yield an empty list. Overlapping boxes are
// kept as is, there is no suppression step.
func Decode(t Tensor, lb Letterbox) []domain.Detection {
	out := []domain.Detection{}
	var num, step int
	switch {
	case len(t.Dims) == 3 && t.Dims[0] == 1:
		num, step = t.Dims[1], t.Dims[2]
	case len(t.Dims) == 2:
		num, step = t.Dims[0], t.Dims[1]
	default:
		return out
	}
	denom := lb.Size * lb.Scale
	if step < 5 || denom == 0 {
		return out
	}

	data := t.Data
	for i := 0; i < num; i++ {
		off := i * step
		if off+4 >= len(data) {
			break
		}
		obj := data[off+4]
		if obj < MinObjectness {
			continue
		}
		bestC, bestS := -1, 0.0
		for c := 5; c < step && off+c < len(data); c++ {
			if s := data[off+c]; s > bestS {
				bestS, bestC = s, c-5
			}
		}
		score := obj * bestS
		if score < MinScore {
			continue
		}
		cx, cy, w, h := data[off], data[off+1], data[off+2], data[off+3]
		out = append(out, domain.Detection{
			Label: Label(bestC),
			Score: score,
			Xmin:  clamp01((cx - w/2 - lb.DX) / denom),
			Ymin:  clamp01((cy - h/2 - lb.DY) / denom),
			Xmax:  clamp01((cx + w/2 - lb.DX) / denom),
			Ymax:  clamp01((cy + h/2 - lb.DY) / denom),
		})
	}
	return out
}

func clamp01(x float64) float64 {
	return max(0, min(1, x))
}
