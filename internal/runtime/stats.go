package runtime

import (
	"math"
	"slices"
	"sync"
	"time"

	metricspkg "github.com/drblury/reactorflow/internal/runtime/metrics"
)

const (
	latencySampleSize    = 256
	throughputWindowSize = time.Minute
)

// FrameStats summarises consumption for the admin API. Counters are per
// process; Prometheus carries the long-lived series.
type FrameStats struct {
	Processed      uint64            `json:"processed"`
	Failed         uint64            `json:"failed"`
	Results        map[string]uint64 `json:"results"`
	LastResult     string            `json:"last_result,omitempty"`
	LastFailure    string            `json:"last_failure,omitempty"`
	LastFailureAt  time.Time         `json:"last_failure_at,omitzero"`
	LastConsumedAt time.Time         `json:"last_consumed_at,omitzero"`

	Latency    LatencyMetrics    `json:"latency"`
	Throughput ThroughputMetrics `json:"throughput"`
}

// LatencyMetrics are computed over the most recent frames.
type LatencyMetrics struct {
	AverageNs  int64 `json:"average_ns"`
	P50Ns      int64 `json:"p50_ns"`
	P95Ns      int64 `json:"p95_ns"`
	P99Ns      int64 `json:"p99_ns"`
	LastNs     int64 `json:"last_ns"`
	SampleSize int   `json:"sample_size"`
}

// ThroughputMetrics count frames over the last minute.
type ThroughputMetrics struct {
	CurrentRPS       float64 `json:"current_rps"`
	WindowSeconds    float64 `json:"window_seconds"`
	MessagesInWindow uint64  `json:"messages_in_window"`
}

type frameStats struct {
	mu         sync.Mutex
	stats      FrameStats
	results    [metricspkg.ResultRejected + 1]uint64
	latency    *latencyWindow
	throughput *throughputWindow
}

func newFrameStats() *frameStats {
	return &frameStats{
		latency:    newLatencyWindow(latencySampleSize),
		throughput: newThroughputWindow(throughputWindowSize),
	}
}

func (f *frameStats) record(result metricspkg.Result, d time.Duration) {
	now := time.Now().UTC()

	f.mu.Lock()
	defer f.mu.Unlock()

	f.stats.Processed++
	if result >= 0 && int(result) < len(f.results) {
		f.results[result]++
	}
	f.stats.LastResult = result.String()
	f.stats.LastConsumedAt = now
	if result != metricspkg.ResultOK {
		f.stats.Failed++
		f.stats.LastFailure = result.String()
		f.stats.LastFailureAt = now
	}

	f.latency.add(d)
	f.throughput.add(now)
}

func (f *frameStats) snapshot() FrameStats {
	now := time.Now().UTC()

	f.mu.Lock()
	defer f.mu.Unlock()

	out := f.stats
	out.Results = make(map[string]uint64, len(f.results))
	for r, n := range f.results {
		out.Results[metricspkg.Result(r).String()] = n
	}
	out.Latency = f.latency.snapshot()
	out.Throughput = f.throughput.snapshot(now)
	return out
}

type latencyWindow struct {
	samples []int64
	next    int
	filled  int
	last    int64
}

func newLatencyWindow(size int) *latencyWindow {
	return &latencyWindow{samples: make([]int64, size)}
}

func (lw *latencyWindow) add(d time.Duration) {
	lw.samples[lw.next] = int64(d)
	lw.last = int64(d)
	lw.next = (lw.next + 1) % len(lw.samples)
	if lw.filled < len(lw.samples) {
		lw.filled++
	}
}

func (lw *latencyWindow) snapshot() LatencyMetrics {
	m := LatencyMetrics{LastNs: lw.last}
	if lw.filled == 0 {
		return m
	}
	sorted := slices.Clone(lw.samples[:lw.filled])
	slices.Sort(sorted)

	var sum int64
	for _, v := range sorted {
		sum += v
	}
	m.SampleSize = len(sorted)
	m.AverageNs = sum / int64(len(sorted))
	m.P50Ns = percentile(sorted, 0.50)
	m.P95Ns = percentile(sorted, 0.95)
	m.P99Ns = percentile(sorted, 0.99)
	return m
}

// percentile interpolates linearly between the closest ranks of sorted.
func percentile(sorted []int64, q float64) int64 {
	switch {
	case len(sorted) == 0:
		return 0
	case q <= 0:
		return sorted[0]
	case q >= 1:
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}
	frac := pos - float64(lower)
	return sorted[lower] + int64(float64(sorted[upper]-sorted[lower])*frac)
}

type throughputWindow struct {
	horizon time.Duration
	samples []time.Time
}

func newThroughputWindow(horizon time.Duration) *throughputWindow {
	return &throughputWindow{horizon: horizon, samples: make([]time.Time, 0, 64)}
}

func (tw *throughputWindow) add(now time.Time) {
	tw.samples = append(tw.samples, now)
	tw.trim(now)
}

func (tw *throughputWindow) trim(now time.Time) {
	cutoff := now.Add(-tw.horizon)
	idx := 0
	for idx < len(tw.samples) && tw.samples[idx].Before(cutoff) {
		idx++
	}
	if idx > 0 {
		tw.samples = slices.Delete(tw.samples, 0, idx)
	}
}

func (tw *throughputWindow) snapshot(now time.Time) ThroughputMetrics {
	tw.trim(now)
	if len(tw.samples) == 0 {
		return ThroughputMetrics{}
	}
	span := now.Sub(tw.samples[0])
	if span <= 0 {
		span = time.Nanosecond
	}
	return ThroughputMetrics{
		CurrentRPS:       float64(len(tw.samples)) / span.Seconds(),
		WindowSeconds:    span.Seconds(),
		MessagesInWindow: uint64(len(tw.samples)),
	}
}
