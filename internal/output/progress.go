package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/torosent/lrcctl/internal/metrics"
)

// ProgressReporter redraws a one-line polling status while a run starts up.
type ProgressReporter struct {
	collector *metrics.Collector
	operation string
	label     string
	ticker    *time.Ticker
	done      chan struct{}
	finished  chan struct{}
	writer    io.Writer
	active    int32
	start     time.Time
}

// NewProgressReporter creates a reporter that shows the calls recorded for
// operation every interval.
func NewProgressReporter(collector *metrics.Collector, operation, label string, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		collector: collector,
		operation: operation,
		label:     label,
		ticker:    time.NewTicker(interval),
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
		writer:    writer,
		start:     time.Now(),
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates and ends the line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	drawn := false
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, p.line())
			drawn = true
		case <-p.done:
			if drawn {
				fmt.Fprintln(p.writer)
			}
			return
		}
	}
}

func (p *ProgressReporter) line() string {
	op := p.collector.Report().Operations[p.operation]
	line := fmt.Sprintf("\r%s | Polls: %d | Failures: %d | Elapsed: %s",
		p.label, op.Total, op.Failures, time.Since(p.start).Round(time.Second))
	if op.Total > 0 {
		line += fmt.Sprintf(" | P99 %.1fms", op.P99LatencyMs)
	}
	return line
}
