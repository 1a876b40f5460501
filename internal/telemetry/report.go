package telemetry

// Report is the aggregate outcome of one benchmark window.
type Report struct {
	DurationSec     float64 `json:"duration_sec"`
	Mode            string  `json:"mode"`
	MedianE2EMs     float64 `json:"median_e2e_ms"`
	P95E2EMs        float64 `json:"p95_e2e_ms"`
	MedianServerMs  float64 `json:"median_server_ms"`
	P95ServerMs     float64 `json:"p95_server_ms"`
	MedianNetworkMs float64 `json:"median_network_ms"`
	P95NetworkMs    float64 `json:"p95_network_ms"`
	ProcessedFPS    float64 `json:"processed_fps"`
	UplinkKbps      float64 `json:"uplink_kbps"`
	DownlinkKbps    float64 `json:"downlink_kbps"`
	Samples         int     `json:"samples"`
	TimestampMs     int64   `json:"timestamp_ms"`
}

func (a *Aggregator) reportLocked(durationSec float64, mode string) Report {
	e2e := a.run[SeriesE2E]
	server := a.run[SeriesServer]
	network := a.run[SeriesNetwork]
	secs := a.elapsedLocked()
	return Report{
		DurationSec:     durationSec,
		Mode:            mode,
		MedianE2EMs:     roundHalfUp(Median(e2e)),
		P95E2EMs:        roundHalfUp(P95(e2e)),
		MedianServerMs:  roundHalfUp(Median(server)),
		P95ServerMs:     roundHalfUp(P95(server)),
		MedianNetworkMs: roundHalfUp(Median(network)),
		P95NetworkMs:    roundHalfUp(P95(network)),
		ProcessedFPS:    round2(float64(a.shown) / maxOne(secs)),
		UplinkKbps:      round2(Kbps(a.bytesUp.Load(), secs)),
		DownlinkKbps:    round2(Kbps(a.bytesDown.Load(), secs)),
		Samples:         len(e2e),
		TimestampMs:     a.now().UnixMilli(),
	}
}
