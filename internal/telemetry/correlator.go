package telemetry

import (
	"sync"

	"github.com/dkeye/DetectBench/internal/domain"
)

const defaultCorrelatorSize = 512

type frameKey struct {
	room    domain.RoomID
	frameID int64
}

// Record is what is known about one frame so far.
type Record struct {
	FrameID     int64
	CaptureTS   float64
	RecvTS      float64
	InferenceTS float64
}

// Correlator stitches capture, receive and inference timestamps of a frame
// arriving from different sources and in any order. It keeps the most recent
// frames only.
type Correlator struct {
	mu      sync.Mutex
	size    int
	records map[frameKey]*Record
	order   []frameKey
	latest  map[domain.RoomID]Record
}

func NewCorrelator(size int) *Correlator {
	if size <= 0 {
		size = defaultCorrelatorSize
	}
	return &Correlator{
		size:    size,
		records: make(map[frameKey]*Record, size),
		latest:  make(map[domain.RoomID]Record),
	}
}

func (c *Correlator) record(k frameKey) *Record {
	if r, ok := c.records[k]; ok {
		return r
	}
	if len(c.order) == c.size {
		delete(c.records, c.order[0])
		c.order = c.order[1:]
	}
	r := &Record{FrameID: k.frameID}
	c.records[k] = r
	c.order = append(c.order, k)
	return r
}

// Capture records the producer-side capture time of a frame.
func (c *Correlator) Capture(room domain.RoomID, frameID int64, ts float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.record(frameKey{room, frameID})
	r.CaptureTS = ts
	c.latest[room] = *r
}

// Received records when a frame reached the inference boundary.
func (c *Correlator) Received(room domain.RoomID, frameID int64, ts float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(frameKey{room, frameID}).RecvTS = ts
}

// Latest returns the most recent captured frame of a room.
func (c *Correlator) Latest(room domain.RoomID) (Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.latest[room]
	return r, ok
}

// Fill completes missing timestamps of res from what was recorded for its frame
// and stores what res carries. Results without a frame id are left untouched.
func (c *Correlator) Fill(room domain.RoomID, res *domain.FrameResult) {
	if res.FrameID == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.record(frameKey{room, *res.FrameID})
	merge(&res.CaptureTS, &r.CaptureTS)
	merge(&res.RecvTS, &r.RecvTS)
	merge(&res.InferenceTS, &r.InferenceTS)
}

func merge(dst **float64, known *float64) {
	if domain.Has(*dst) {
		*known = **dst
		return
	}
	if *known != 0 {
		v := *known
		*dst = &v
	}
}
