package telemetry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/DetectBench/internal/domain"
	"github.com/dkeye/DetectBench/internal/metrics"
)

const (
	SeriesE2E     = "e2e"
	SeriesServer  = "server"
	SeriesNetwork = "network"
)

// Aggregator derives end-to-end, inference and network latency series from
// completed results and accounts uplink/downlink bytes.
type Aggregator struct {
	now  func() time.Time
	corr *Correlator

	mu     sync.Mutex
	live   map[string]*Window
	run    map[string][]float64
	active bool
	shown  int64
	t0     time.Time

	bytesUp   atomic.Int64
	bytesDown atomic.Int64
}

type Option func(*Aggregator)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

func WithCorrelator(c *Correlator) Option {
	return func(a *Aggregator) {
		a.corr = c
	}
}

func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		now: time.Now,
		live: map[string]*Window{
			SeriesE2E:     NewWindow(LiveWindowSize),
			SeriesServer:  NewWindow(LiveWindowSize),
			SeriesNetwork: NewWindow(LiveWindowSize),
		},
		run: make(map[string][]float64, 3),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.corr == nil {
		a.corr = NewCorrelator(0)
	}
	a.t0 = a.now()
	return a
}

func (a *Aggregator) Correlator() *Correlator { return a.corr }

func nowMs(t time.Time) float64 {
	return float64(t.UnixMilli())
}

// Observe consumes a completed result and returns it with timestamps filled
// from the correlator. The display time is taken now. A result without
// capture_ts contributes nothing.
func (a *Aggregator) Observe(room domain.RoomID, res domain.FrameResult) domain.FrameResult {
	a.corr.Fill(room, &res)
	if !domain.Has(res.CaptureTS) {
		return res
	}
	display := nowMs(a.now())

	a.mu.Lock()
	defer a.mu.Unlock()
	a.pushLocked(SeriesE2E, display-*res.CaptureTS)
	if domain.Has(res.RecvTS) && domain.Has(res.InferenceTS) {
		a.pushLocked(SeriesServer, *res.InferenceTS-*res.RecvTS)
		a.pushLocked(SeriesNetwork, *res.RecvTS-*res.CaptureTS)
	}
	a.shown++
	return res
}

func (a *Aggregator) pushLocked(series string, ms float64) {
	a.live[series].Push(ms)
	if a.active {
		a.run[series] = append(a.run[series], ms)
	}
	metrics.RecordLatency(series, ms)
}

func (a *Aggregator) AddUplink(n int) {
	a.bytesUp.Add(int64(n))
}

func (a *Aggregator) AddDownlink(n int) {
	a.bytesDown.Add(int64(n))
}

// Begin resets every series and counter and opens a benchmark window.
func (a *Aggregator) Begin() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, w := range a.live {
		w.Reset()
	}
	a.run = make(map[string][]float64, 3)
	a.shown = 0
	a.bytesUp.Store(0)
	a.bytesDown.Store(0)
	a.t0 = a.now()
	a.active = true
}

// End closes the benchmark window and returns its report.
func (a *Aggregator) End(durationSec float64, mode string) Report {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.active = false
	return a.reportLocked(durationSec, mode)
}

func (a *Aggregator) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// SampleCount is the number of end-to-end samples of the current benchmark window.
func (a *Aggregator) SampleCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.run[SeriesE2E])
}

func (a *Aggregator) elapsedLocked() float64 {
	return a.now().Sub(a.t0).Seconds()
}

// SeriesStats is p50/p95 of one series.
type SeriesStats struct {
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	Count int     `json:"count"`
}

func statsOf(xs []float64) SeriesStats {
	return SeriesStats{P50: roundHalfUp(Median(xs)), P95: roundHalfUp(P95(xs)), Count: len(xs)}
}

// LiveStats is computed over the sliding windows.
type LiveStats struct {
	E2E          SeriesStats `json:"e2e"`
	Server       SeriesStats `json:"server"`
	Network      SeriesStats `json:"network"`
	FPS          float64     `json:"fps"`
	UplinkKbps   float64     `json:"uplink_kbps"`
	DownlinkKbps float64     `json:"downlink_kbps"`
	BenchActive  bool        `json:"bench_active"`
}

func (a *Aggregator) Live() LiveStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	secs := a.elapsedLocked()
	return LiveStats{
		E2E:          statsOf(a.live[SeriesE2E].Values()),
		Server:       statsOf(a.live[SeriesServer].Values()),
		Network:      statsOf(a.live[SeriesNetwork].Values()),
		FPS:          round2(float64(a.shown) / maxOne(secs)),
		UplinkKbps:   round2(Kbps(a.bytesUp.Load(), secs)),
		DownlinkKbps: round2(Kbps(a.bytesDown.Load(), secs)),
		BenchActive:  a.active,
	}
}

func maxOne(secs float64) float64 {
	if secs < 1 {
		return 1
	}
	return secs
}
