package output

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/torosent/lrcctl/internal/metrics"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestProgressReporterShowsPolls(t *testing.T) {
	collector := metrics.NewCollector()
	collector.RecordCall("ListActiveRuns", 30*time.Millisecond, nil)
	collector.RecordCall("ListActiveRuns", 30*time.Millisecond, nil)
	collector.RecordCall("StartRun", 30*time.Millisecond, nil)

	var buf syncBuffer
	reporter := NewProgressReporter(collector, "ListActiveRuns", "Waiting for run 42", 20*time.Millisecond, &buf)
	reporter.Start()
	time.Sleep(60 * time.Millisecond)
	reporter.Stop()

	out := buf.String()
	if !strings.Contains(out, "Waiting for run 42 | Polls: 2 | Failures: 0") {
		t.Fatalf("unexpected progress output %q", out)
	}
	if !strings.HasSuffix(out, "\n") {
		t.Fatalf("expected progress line to be terminated")
	}
}

func TestProgressReporterStopWithoutStart(t *testing.T) {
	reporter := NewProgressReporter(metrics.NewCollector(), "ListActiveRuns", "x", time.Second, nil)
	reporter.Stop()
	reporter.Start()
	reporter.Start()
	reporter.Stop()
	reporter.Stop()
}
