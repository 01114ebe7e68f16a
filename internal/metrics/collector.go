package metrics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// StatusCoder is implemented by errors that carry an HTTP status. A zero
// status means no response was received.
type StatusCoder interface {
	HTTPStatus() int
}

type opStats struct {
	hist       *hdrhistogram.Histogram
	successes  int64
	failures   int64
	minLatency time.Duration
	maxLatency time.Duration
	sumLatency time.Duration
	errors     map[string]int64
	statuses   map[string]int64
}

func newOpStats() *opStats {
	// Track latencies from 1µs up to 60s with 3 significant figures.
	return &opStats{
		hist:     hdrhistogram.New(1, 60_000_000, 3),
		errors:   make(map[string]int64),
		statuses: make(map[string]int64),
	}
}

// Collector records per-operation call metrics in a thread-safe manner.
type Collector struct {
	mu    sync.Mutex
	ops   map[string]*opStats
	total *opStats
	start time.Time
	now   func() time.Time
}

// Stats represents aggregated metrics for one operation or for all calls.
type Stats struct {
	Total          int64         `json:"total"`
	Successes      int64         `json:"successes"`
	Failures       int64         `json:"failures"`
	MinLatency     time.Duration `json:"-"`
	MaxLatency     time.Duration `json:"-"`
	MeanLatency    time.Duration `json:"-"`
	P50Latency     time.Duration `json:"-"`
	P90Latency     time.Duration `json:"-"`
	P99Latency     time.Duration `json:"-"`
	Duration       time.Duration `json:"-"`
	RequestsPerSec float64       `json:"requests_per_sec"`

	// JSON-friendly millisecond fields.
	MinLatencyMs  float64        `json:"min_latency_ms"`
	MaxLatencyMs  float64        `json:"max_latency_ms"`
	MeanLatencyMs float64        `json:"mean_latency_ms"`
	P50LatencyMs  float64        `json:"p50_latency_ms"`
	P90LatencyMs  float64        `json:"p90_latency_ms"`
	P99LatencyMs  float64        `json:"p99_latency_ms"`
	DurationMs    float64        `json:"duration_ms"`
	Errors        map[string]int `json:"errors,omitempty"`
}

// Report is a snapshot of everything the Collector saw.
type Report struct {
	Overall    Stats            `json:"overall"`
	Operations map[string]Stats `json:"operations,omitempty"`
	Statuses   []StatusBucket   `json:"status_buckets,omitempty"`
}

// OperationNames returns the recorded operation names in sorted order.
func (r Report) OperationNames() []string {
	names := make([]string, 0, len(r.Operations))
	for name := range r.Operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func NewCollector() *Collector {
	return &Collector{
		ops:   make(map[string]*opStats),
		total: newOpStats(),
		start: time.Now(),
		now:   time.Now,
	}
}

// RecordCall records one API call. It satisfies cloudapi.Recorder.
func (c *Collector) RecordCall(op string, latency time.Duration, err error) {
	if op == "" {
		op = "unknown"
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.ops[op]
	if !ok {
		s = newOpStats()
		c.ops[op] = s
	}
	kind, status := classify(err)
	s.record(latency, err, kind, status)
	c.total.record(latency, err, kind, status)
}

func (s *opStats) record(latency time.Duration, err error, kind, status string) {
	if latency > 0 {
		us := latency.Microseconds()
		if us < s.hist.LowestTrackableValue() {
			us = s.hist.LowestTrackableValue()
		}
		if us > s.hist.HighestTrackableValue() {
			us = s.hist.HighestTrackableValue()
		}
		_ = s.hist.RecordValue(us)
	}
	s.sumLatency += latency

	if s.minLatency == 0 || latency < s.minLatency {
		s.minLatency = latency
	}
	if latency > s.maxLatency {
		s.maxLatency = latency
	}

	if err == nil {
		s.successes++
		return
	}
	s.failures++
	s.errors[kind]++
	if status != "" {
		s.statuses[status]++
	}
}

// classify returns a readable error bucket and, when known, the HTTP status.
func classify(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	var sc StatusCoder
	if errors.As(err, &sc) && sc.HTTPStatus() > 0 {
		code := strconv.Itoa(sc.HTTPStatus())
		return "HTTP " + code, code
	}
	if errors.Is(err, context.Canceled) {
		return "Context canceled", ""
	}
	var label string
	innermost := err
	for target := err; target != nil; target = errors.Unwrap(target) {
		if known, ok := knownErrors[typeName(target)]; ok {
			label = known
		}
		innermost = target
	}
	if label != "" {
		return label, ""
	}
	return FriendlyErrorName(typeName(innermost)), ""
}

func typeName(err error) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
}

// Report computes aggregated statistics since the Collector was created.
func (c *Collector) Report() Report {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := c.now().Sub(c.start)
	report := Report{
		Overall:    c.total.stats(elapsed),
		Operations: make(map[string]Stats, len(c.ops)),
	}
	buckets := make(map[string]map[string]int)
	for name, s := range c.ops {
		report.Operations[name] = s.stats(elapsed)
		for code, count := range s.statuses {
			if buckets[name] == nil {
				buckets[name] = make(map[string]int)
			}
			buckets[name][code] = int(count)
		}
	}
	report.Statuses = FlattenStatusBuckets(buckets)
	return report
}

// Stats returns the statistics of all calls over the given elapsed time.
func (c *Collector) Stats(elapsed time.Duration) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total.stats(elapsed)
}

func (s *opStats) stats(elapsed time.Duration) Stats {
	total := s.successes + s.failures
	stats := Stats{
		Total:      total,
		Successes:  s.successes,
		Failures:   s.failures,
		MinLatency: s.minLatency,
		MaxLatency: s.maxLatency,
	}

	if total > 0 {
		stats.MeanLatency = time.Duration(int64(s.sumLatency) / total)
	}

	if s.hist.TotalCount() > 0 {
		stats.P50Latency = time.Duration(s.hist.ValueAtQuantile(50)) * time.Microsecond
		stats.P90Latency = time.Duration(s.hist.ValueAtQuantile(90)) * time.Microsecond
		stats.P99Latency = time.Duration(s.hist.ValueAtQuantile(99)) * time.Microsecond
	}

	stats.MinLatencyMs = toMs(stats.MinLatency)
	stats.MaxLatencyMs = toMs(stats.MaxLatency)
	stats.MeanLatencyMs = toMs(stats.MeanLatency)
	stats.P50LatencyMs = toMs(stats.P50Latency)
	stats.P90LatencyMs = toMs(stats.P90Latency)
	stats.P99LatencyMs = toMs(stats.P99Latency)

	stats.Duration = elapsed
	stats.DurationMs = toMs(elapsed)
	if elapsed > 0 && total > 0 {
		stats.RequestsPerSec = float64(total) / elapsed.Seconds()
	}

	if len(s.errors) > 0 {
		stats.Errors = make(map[string]int, len(s.errors))
		for k, v := range s.errors {
			stats.Errors[k] = int(v)
		}
	}
	return stats
}

func toMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
