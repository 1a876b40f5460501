// Package telemetry correlates frame timestamps from independently clocked
// actors and turns them into latency and bandwidth figures.
package telemetry

import (
	"math"
	"slices"
)

// Median of xs; the mean of the two central values for even counts, 0 when empty.
func Median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := slices.Clone(xs)
	slices.Sort(s)
	m := len(s) / 2
	if len(s)%2 == 1 {
		return s[m]
	}
	return (s[m-1] + s[m]) / 2
}

// P95 returns the element at floor(0.95*(n-1)) of the sorted samples, 0 when empty.
// No interpolation.
func P95(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := slices.Clone(xs)
	slices.Sort(s)
	return s[int(math.Floor(0.95*float64(len(s)-1)))]
}

// roundHalfUp rounds .5 toward positive infinity.
func roundHalfUp(x float64) float64 {
	return math.Floor(x + 0.5)
}

func round2(x float64) float64 {
	return math.Floor(x*100+0.5) / 100
}

// Kbps converts a byte count over elapsed seconds, flooring elapsed at one second.
func Kbps(bytes int64, elapsedSec float64) float64 {
	return float64(bytes) * 8 / 1000 / math.Max(1, elapsedSec)
}
