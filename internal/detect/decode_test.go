package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var square = Letterbox{DX: 0, DY: 0, Scale: 1, Size: 320}

func row(cx, cy, w, h, obj float64, scores ...float64) []float64 {
	return append([]float64{cx, cy, w, h, obj}, scores...)
}

func tensorOf(rows ...[]float64) Tensor {
	var data []float64
	for _, r := range rows {
		data = append(data, r...)
	}
	return Tensor{Dims: []int{1, len(rows), len(rows[0])}, Data: data}
}

func TestDecodeScoreThreshold(t *testing.T) {
	rejected := tensorOf(row(160, 160, 32, 32, 0.5, 0.5, 0.1))
	assert.Empty(t, Decode(rejected, square))

	accepted := tensorOf(row(160, 160, 32, 32, 0.5, 0.7, 0.1))
	dets := Decode(accepted, square)
	require.Len(t, dets, 1)
	assert.Equal(t, "person", dets[0].Label)
	assert.InDelta(t, 0.35, dets[0].Score, 1e-9)
}

func TestDecodeObjectnessThreshold(t *testing.T) {
	assert.Empty(t, Decode(tensorOf(row(160, 160, 32, 32, 0.2, 1.0)), square))
}

func TestDecodeUndoesLetterbox(t *testing.T) {
	lb := Letterbox{DX: 0, DY: 40, Scale: 0.5, Size: 320}
	dets := Decode(tensorOf(row(80, 120, 40, 40, 0.9, 0, 0.9)), lb)
	require.Len(t, dets, 1)
	d := dets[0]
	assert.Equal(t, "bicycle", d.Label)
	assert.InDelta(t, 60.0/160, d.Xmin, 1e-9)
	assert.InDelta(t, 60.0/160, d.Ymin, 1e-9)
	assert.InDelta(t, 100.0/160, d.Xmax, 1e-9)
	assert.InDelta(t, 100.0/160, d.Ymax, 1e-9)
}

func TestDecodeClampsCoordinates(t *testing.T) {
	dets := Decode(tensorOf(row(0, 330, 40, 40, 0.9, 0.9)), square)
	require.Len(t, dets, 1)
	assert.Equal(t, 0.0, dets[0].Xmin)
	assert.Equal(t, 1.0, dets[0].Ymax)
}

func TestDecodeKeepsOverlappingBoxes(t *testing.T) {
	r := row(160, 160, 32, 32, 0.9, 0.9)
	assert.Len(t, Decode(tensorOf(r, r), square), 2)
}

func TestDecodeFlatShapeAndUnknownClass(t *testing.T) {
	scores := make([]float64, 82)
	scores[81] = 0.9
	r := row(160, 160, 32, 32, 0.9, scores...)
	dets := Decode(Tensor{Dims: []int{1, len(r)}, Data: r}, square)
	require.Len(t, dets, 1)
	assert.Equal(t, "81", dets[0].Label)
}

func TestDecodeMalformed(t *testing.T) {
	assert.Empty(t, Decode(Tensor{}, square))
	assert.Empty(t, Decode(Tensor{Dims: []int{2, 3, 85}}, square))
	assert.Empty(t, Decode(Tensor{Dims: []int{1, 10, 85}, Data: []float64{1, 2}}, square))
	assert.Empty(t, Decode(tensorOf(row(1, 1, 1, 1, 0.9, 0.9)), Letterbox{}))
	assert.NotNil(t, Decode(Tensor{}, square))
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "toothbrush", Label(79))
	assert.Equal(t, "80", Label(80))
}
