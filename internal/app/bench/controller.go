// Package bench runs benchmark windows: it opens a telemetry window, announces
// it to every connection and closes it on a timer, persisting the report.
package bench

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/DetectBench/internal/domain"
	"github.com/dkeye/DetectBench/internal/metrics"
	"github.com/dkeye/DetectBench/internal/telemetry"
)

const (
	DefaultDuration = 30

	ClientReportName = "metrics.json"
	ServerReportName = "server_metrics.json"

	saveTimeout = 10 * time.Second
)

var ErrInvalidReport = errors.New("report is not valid json")

type Broadcaster interface {
	BroadcastJSON(v any) (int, error)
}

type Recorder interface {
	Begin()
	End(durationSec float64, mode string) telemetry.Report
}

type Sink interface {
	Save(ctx context.Context, name string, doc []byte) (string, error)
}

// FinishFunc observes every automatic stop once persistence completed.
type FinishFunc func(r telemetry.Report, location string, err error)

type Status struct {
	Active     bool              `json:"active"`
	Duration   float64           `json:"duration"`
	Mode       string            `json:"mode"`
	StartedAt  *time.Time        `json:"started_at,omitempty"`
	LastReport *telemetry.Report `json:"last_report,omitempty"`
}

type Controller struct {
	bus         Broadcaster
	rec         Recorder
	sink        Sink
	defaultMode string
	unit        time.Duration
	now         func() time.Time
	onFinish    FinishFunc

	mu     sync.Mutex
	gen    uint64
	timer  *time.Timer
	status Status

	saves sync.WaitGroup
}

type Option func(*Controller)

// WithTimeUnit scales durations. Default is one second.
func WithTimeUnit(d time.Duration) Option {
	return func(c *Controller) {
		c.unit = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

func WithOnFinish(fn FinishFunc) Option {
	return func(c *Controller) {
		c.onFinish = fn
	}
}

func NewController(bus Broadcaster, rec Recorder, sink Sink, defaultMode string, opts ...Option) *Controller {
	c := &Controller{
		bus:         bus,
		rec:         rec,
		sink:        sink,
		defaultMode: defaultMode,
		unit:        time.Second,
		now:         time.Now,
		status:      Status{Duration: DefaultDuration, Mode: defaultMode},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ParseDuration coerces a request field to seconds. Absent, zero and
// unparseable values become DefaultDuration.
func ParseDuration(raw json.RawMessage) float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return DefaultDuration
	}
	var v float64
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return DefaultDuration
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return DefaultDuration
		}
		v = f
	default:
		if err := json.Unmarshal(raw, &v); err != nil {
			return DefaultDuration
		}
	}
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return DefaultDuration
	}
	return v
}

// Start opens a new benchmark window. A running window is superseded and its
// timer never fires.
func (c *Controller) Start(duration float64, mode string) Status {
	if duration == 0 || math.IsNaN(duration) {
		duration = DefaultDuration
	}
	if mode == "" {
		mode = c.defaultMode
	}

	c.mu.Lock()
	c.gen++
	gen := c.gen
	if c.timer != nil {
		c.timer.Stop()
	}
	started := c.now()
	c.status.Active = true
	c.status.Duration = duration
	c.status.Mode = mode
	c.status.StartedAt = &started
	c.rec.Begin()
	c.timer = time.AfterFunc(time.Duration(duration*float64(c.unit)), func() { c.expire(gen) })
	st := c.status
	c.mu.Unlock()

	n, err := c.bus.BroadcastJSON(domain.BenchStart{Type: domain.TypeBenchStart, Duration: duration, Mode: mode})
	if err != nil {
		log.Error().Err(err).Str("module", "bench").Msg("broadcast bench:start")
	}
	metrics.RecordBenchRun("started")
	log.Info().Str("module", "bench").Float64("duration", duration).Str("mode", mode).Int("peers", n).Msg("benchmark started")
	return st
}

func (c *Controller) expire(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || !c.status.Active {
		c.mu.Unlock()
		return
	}
	c.status.Active = false
	c.timer = nil
	report := c.rec.End(c.status.Duration, c.status.Mode)
	c.status.LastReport = &report
	c.saves.Add(1)
	c.mu.Unlock()

	metrics.RecordBenchRun("completed")
	log.Info().Str("module", "bench").Int("samples", report.Samples).Float64("median_e2e_ms", report.MedianE2EMs).Msg("benchmark finished")
	go c.persist(report)
}

func (c *Controller) persist(report telemetry.Report) {
	defer c.saves.Done()
	loc, err := c.save(report)
	if err != nil {
		metrics.RecordBenchRun("save_failed")
		log.Error().Err(err).Str("module", "bench").Msg("persist server report")
	} else {
		log.Info().Str("module", "bench").Str("saved", loc).Msg("server report saved")
	}
	if c.onFinish != nil {
		c.onFinish(report, loc, err)
	}
}

func (c *Controller) save(report telemetry.Report) (string, error) {
	b, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	return c.sink.Save(ctx, ServerReportName, b)
}

// Finish stores a client-computed report verbatim, pretty-printed.
func (c *Controller) Finish(ctx context.Context, raw []byte) (string, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = []byte("{}")
	}
	if !json.Valid(raw) {
		return "", ErrInvalidReport
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return "", ErrInvalidReport
	}
	loc, err := c.sink.Save(ctx, ClientReportName, buf.Bytes())
	if err != nil {
		metrics.RecordBenchRun("save_failed")
		return "", err
	}
	metrics.RecordBenchRun("client_report")
	log.Info().Str("module", "bench").Str("saved", loc).Msg("client report saved")
	return loc, nil
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Close disarms the timer and waits for pending saves.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.saves.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
