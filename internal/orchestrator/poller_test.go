package orchestrator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/torosent/lrcctl/internal/cloudapi"
	"github.com/torosent/lrcctl/internal/events"
)

type scriptedLister struct {
	mu      sync.Mutex
	replies []func() ([]cloudapi.ActiveRun, error)
	calls   int
	delay   time.Duration
	ctxs    []context.Context
}

func (s *scriptedLister) ListActiveRuns(ctx context.Context, projectID string) ([]cloudapi.ActiveRun, error) {
	s.mu.Lock()
	idx := s.calls
	if idx >= len(s.replies) {
		idx = len(s.replies) - 1
	}
	s.calls++
	s.ctxs = append(s.ctxs, ctx)
	reply := s.replies[idx]
	delay := s.delay
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	return reply()
}

func (s *scriptedLister) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func status(runID int64, st cloudapi.RunStatus) func() ([]cloudapi.ActiveRun, error) {
	return func() ([]cloudapi.ActiveRun, error) {
		return []cloudapi.ActiveRun{
			{RunID: runID + 1, Status: cloudapi.StatusRunning},
			{RunID: runID, Status: st},
		}, nil
	}
}

func fail(err error) func() ([]cloudapi.ActiveRun, error) {
	return func() ([]cloudapi.ActiveRun, error) { return nil, err }
}

var testHandle = cloudapi.RunHandle{ProjectID: "1", LoadTestID: "2", RunID: 42}

func TestPollerRunningAfterInitializing(t *testing.T) {
	lister := &scriptedLister{replies: []func() ([]cloudapi.ActiveRun, error){
		status(42, cloudapi.StatusInitializing),
		status(42, cloudapi.StatusInitializing),
		status(42, cloudapi.StatusRunning),
	}}
	bus := &events.MemoryBus{}
	p := &Poller{API: lister, Bus: bus, Interval: 5 * time.Millisecond, MaxDuration: time.Second}

	if got := p.Run(context.Background(), testHandle); got != OutcomeRunning {
		t.Fatalf("expected running, got %s", got)
	}
	if lister.Calls() != 3 {
		t.Fatalf("expected 3 polls, got %d", lister.Calls())
	}
	if bus.Count(events.KindGo) != 1 || bus.Count(events.KindStop) != 0 {
		t.Fatalf("expected exactly one Go event, got %+v", bus.Events())
	}
}

func TestPollerMatchesRunListedWithStringIDs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth":
			_, _ = w.Write([]byte(`{"token":"t"}`))
		default:
			_, _ = w.Write([]byte(`[{"runId":"41","status":"RUNNING"},{"runId":"42","testId":"2","status":"RUNNING"}]`))
		}
	}))
	defer server.Close()

	client, err := cloudapi.New(server.URL, cloudapi.Options{})
	if err != nil {
		t.Fatalf("cloudapi.New error = %v", err)
	}
	if err := client.InitSession(context.Background(), "pp", "hello", "123"); err != nil {
		t.Fatalf("InitSession error = %v", err)
	}
	bus := &events.MemoryBus{}
	p := &Poller{API: client, Bus: bus, Interval: 5 * time.Millisecond, MaxDuration: time.Second}

	if got := p.Run(context.Background(), testHandle); got != OutcomeRunning {
		t.Fatalf("expected running, got %s", got)
	}
	if bus.Count(events.KindGo) != 1 {
		t.Fatalf("expected one Go event, got %+v", bus.Events())
	}
}

func TestPollerIgnoresOtherRunsThatAreRunning(t *testing.T) {
	lister := &scriptedLister{replies: []func() ([]cloudapi.ActiveRun, error){
		func() ([]cloudapi.ActiveRun, error) {
			return []cloudapi.ActiveRun{{RunID: 7, Status: cloudapi.StatusRunning}}, nil
		},
	}}
	bus := &events.MemoryBus{}
	p := &Poller{API: lister, Bus: bus, Interval: 2 * time.Millisecond, MaxDuration: 20 * time.Millisecond}

	if got := p.Run(context.Background(), testHandle); got != OutcomeTimeout {
		t.Fatalf("expected timeout, got %s", got)
	}
	if bus.Count(events.KindGo) != 0 {
		t.Fatalf("unexpected Go event for a foreign run")
	}
}

func TestPollerTimeoutPublishesOneStop(t *testing.T) {
	lister := &scriptedLister{replies: []func() ([]cloudapi.ActiveRun, error){
		status(42, cloudapi.StatusInitializing),
	}}
	bus := &events.MemoryBus{}

	clock := time.Unix(0, 0)
	var mu sync.Mutex
	p := &Poller{API: lister, Bus: bus, Interval: time.Millisecond, MaxDuration: 10 * time.Second}
	p.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(4 * time.Second)
		return clock
	}

	if got := p.Run(context.Background(), testHandle); got != OutcomeTimeout {
		t.Fatalf("expected timeout, got %s", got)
	}
	// deadline is taken at t=4s (deadline 14s); checks run at 8s, 12s, 16s.
	if lister.Calls() != 3 {
		t.Fatalf("expected 3 polls before the deadline, got %d", lister.Calls())
	}
	evs := bus.Events()
	if len(evs) != 1 || evs[0].Kind != events.KindStop || evs[0].Reason != "timeout" {
		t.Fatalf("expected one Stop(timeout), got %+v", evs)
	}
}

func TestPollerAbsorbsTransientFailures(t *testing.T) {
	boom := errors.New("connection reset")
	lister := &scriptedLister{replies: []func() ([]cloudapi.ActiveRun, error){
		fail(boom),
		fail(boom),
		status(42, cloudapi.StatusRunning),
	}}
	bus := &events.MemoryBus{}
	p := &Poller{API: lister, Bus: bus, Interval: time.Millisecond, MaxDuration: time.Second, MaxConsecutiveFailures: 3}

	if got := p.Run(context.Background(), testHandle); got != OutcomeRunning {
		t.Fatalf("expected running, got %s", got)
	}
	if bus.Count(events.KindGo) != 1 {
		t.Fatalf("expected one Go event")
	}
}

func TestPollerFailureCap(t *testing.T) {
	lister := &scriptedLister{replies: []func() ([]cloudapi.ActiveRun, error){
		fail(errors.New("503")),
	}}
	bus := &events.MemoryBus{}
	p := &Poller{API: lister, Bus: bus, Interval: time.Millisecond, MaxDuration: time.Minute, MaxConsecutiveFailures: 4}

	if got := p.Run(context.Background(), testHandle); got != OutcomeFailed {
		t.Fatalf("expected failed, got %s", got)
	}
	if lister.Calls() != 4 {
		t.Fatalf("expected 4 polls, got %d", lister.Calls())
	}
	evs := bus.Events()
	if len(evs) != 1 || evs[0].Kind != events.KindStop || evs[0].Reason != "failed" {
		t.Fatalf("expected one Stop(failed), got %+v", evs)
	}
}

func TestPollerUnlimitedFailuresRunsToDeadline(t *testing.T) {
	lister := &scriptedLister{replies: []func() ([]cloudapi.ActiveRun, error){
		fail(errors.New("503")),
	}}
	p := &Poller{API: lister, Interval: time.Millisecond, MaxDuration: 30 * time.Millisecond}
	if got := p.Run(context.Background(), testHandle); got != OutcomeTimeout {
		t.Fatalf("expected timeout with unlimited failures, got %s", got)
	}
}

func TestPollerCancelDuringSleep(t *testing.T) {
	lister := &scriptedLister{replies: []func() ([]cloudapi.ActiveRun, error){
		status(42, cloudapi.StatusInitializing),
	}}
	bus := &events.MemoryBus{}
	p := &Poller{API: lister, Bus: bus, Interval: time.Hour, MaxDuration: 2 * time.Hour}

	h := p.Start(context.Background(), testHandle, nil)
	deadline := time.Now().Add(time.Second)
	for lister.Calls() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	h.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := h.Wait(ctx)
	if err != nil {
		t.Fatalf("poller did not stop after cancel: %v", err)
	}
	if got != OutcomeCancelled {
		t.Fatalf("expected cancelled, got %s", got)
	}
	if bus.Count(events.KindStop) != 1 {
		t.Fatalf("expected one Stop event, got %+v", bus.Events())
	}
}

func TestPollerCancelDuringCallWinsOverRunning(t *testing.T) {
	lister := &scriptedLister{
		replies: []func() ([]cloudapi.ActiveRun, error){status(42, cloudapi.StatusRunning)},
		delay:   50 * time.Millisecond,
	}
	bus := &events.MemoryBus{}
	p := &Poller{API: lister, Bus: bus, Interval: time.Millisecond, MaxDuration: time.Second}

	h := p.Start(context.Background(), testHandle, nil)
	time.Sleep(10 * time.Millisecond)
	h.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := h.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait error = %v", err)
	}
	if got != OutcomeCancelled {
		t.Fatalf("expected cancelled, got %s", got)
	}
	if bus.Count(events.KindGo) != 0 || bus.Count(events.KindStop) != 1 {
		t.Fatalf("expected a single Stop, got %+v", bus.Events())
	}
	lister.mu.Lock()
	callCtx := lister.ctxs[0]
	lister.mu.Unlock()
	if callCtx.Err() != nil {
		t.Fatalf("in-flight poll call should not observe cancellation")
	}
}

func TestPollerOutlivesStartContext(t *testing.T) {
	lister := &scriptedLister{replies: []func() ([]cloudapi.ActiveRun, error){
		status(42, cloudapi.StatusInitializing),
		status(42, cloudapi.StatusRunning),
	}}
	p := &Poller{API: lister, Interval: 5 * time.Millisecond, MaxDuration: time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	var notified Outcome
	h := p.Start(ctx, testHandle, func(o Outcome) { notified = o })
	cancel()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	got, err := h.Wait(waitCtx)
	if err != nil {
		t.Fatalf("Wait error = %v", err)
	}
	if got != OutcomeRunning || notified != OutcomeRunning {
		t.Fatalf("expected running outcome after caller ctx ended, got %s / %s", got, notified)
	}
	if h.Run() != testHandle {
		t.Fatalf("unexpected handle %+v", h.Run())
	}
}

type failingBus struct{}

func (failingBus) Publish(context.Context, events.Event) error { return errors.New("sink down") }

func TestPollerPublishFailureDoesNotChangeOutcome(t *testing.T) {
	lister := &scriptedLister{replies: []func() ([]cloudapi.ActiveRun, error){status(42, cloudapi.StatusRunning)}}
	p := &Poller{API: lister, Bus: failingBus{}, Interval: time.Millisecond, MaxDuration: time.Second}
	if got := p.Run(context.Background(), testHandle); got != OutcomeRunning {
		t.Fatalf("expected running, got %s", got)
	}
}

func TestOutcomeEvent(t *testing.T) {
	if e := OutcomeRunning.Event(1); e.Kind != events.KindGo {
		t.Fatalf("expected Go, got %s", e.Kind)
	}
	for _, o := range []Outcome{OutcomeTimeout, OutcomeCancelled, OutcomeFailed} {
		e := o.Event(1)
		if e.Kind != events.KindStop || e.Reason != o.String() {
			t.Fatalf("%s: expected Stop with reason, got %+v", o, e)
		}
	}
}
