package domain

// Detection is a single decoded box in normalized image coordinates.
type Detection struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
	Xmin  float64 `json:"xmin"`
	Ymin  float64 `json:"ymin"`
	Xmax  float64 `json:"xmax"`
	Ymax  float64 `json:"ymax"`
}

// FrameResult is a completed detection result. Timestamps are unix milliseconds
// taken by independently clocked actors; any of them may be missing.
type FrameResult struct {
	FrameID     *int64      `json:"frame_id,omitempty"`
	CaptureTS   *float64    `json:"capture_ts,omitempty"`
	RecvTS      *float64    `json:"recv_ts,omitempty"`
	InferenceTS *float64    `json:"inference_ts,omitempty"`
	Detections  []Detection `json:"detections"`
}

// Has reports whether a timestamp was provided. Zero counts as absent.
func Has(ts *float64) bool {
	return ts != nil && *ts != 0
}
