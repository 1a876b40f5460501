package telemetry

// LiveWindowSize is the number of recent samples kept for live statistics.
const LiveWindowSize = 100

// Window keeps the most recent samples, dropping the oldest first.
// Not safe for concurrent use.
type Window struct {
	size int
	buf  []float64
}

func NewWindow(size int) *Window {
	return &Window{size: size, buf: make([]float64, 0, size)}
}

func (w *Window) Push(v float64) {
	if len(w.buf) == w.size {
		copy(w.buf, w.buf[1:])
		w.buf = w.buf[:w.size-1]
	}
	w.buf = append(w.buf, v)
}

func (w *Window) Values() []float64 {
	out := make([]float64, len(w.buf))
	copy(out, w.buf)
	return out
}

func (w *Window) Len() int { return len(w.buf) }

func (w *Window) Reset() { w.buf = w.buf[:0] }
