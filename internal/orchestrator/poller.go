package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/torosent/lrcctl/internal/cloudapi"
	"github.com/torosent/lrcctl/internal/events"
	"github.com/torosent/lrcctl/internal/tracing"
)

// Outcome is how a poll loop ended.
type Outcome int32

const (
	OutcomePending Outcome = iota
	OutcomeRunning
	OutcomeTimeout
	OutcomeCancelled
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRunning:
		return "running"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Event returns the terminal notification for o.
func (o Outcome) Event(runID int64) events.Event {
	if o == OutcomeRunning {
		return events.Go(runID)
	}
	return events.Stop(runID, o.String())
}

// RunLister lists the active runs of a project.
type RunLister interface {
	ListActiveRuns(ctx context.Context, projectID string) ([]cloudapi.ActiveRun, error)
}

const publishTimeout = 10 * time.Second

// Poller waits for a run to report RUNNING.
type Poller struct {
	API         RunLister
	Bus         events.Bus
	Interval    time.Duration
	MaxDuration time.Duration
	// MaxConsecutiveFailures ends the loop with OutcomeFailed after that
	// many failed polls in a row. 0 keeps polling until the deadline.
	MaxConsecutiveFailures int
	Logger                 *slog.Logger
	Tracer                 trace.Tracer

	now func() time.Time
}

func (p *Poller) defaults() {
	if p.Interval <= 0 {
		p.Interval = 10 * time.Second
	}
	if p.MaxDuration <= 0 {
		p.MaxDuration = 300 * time.Second
	}
	if p.Bus == nil {
		p.Bus = events.Discard
	}
	if p.Logger == nil {
		p.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if p.Tracer == nil {
		p.Tracer = noop.NewTracerProvider().Tracer("lrcctl")
	}
	if p.now == nil {
		p.now = time.Now
	}
}

// Run polls until the run is RUNNING, the deadline passes, ctx is cancelled
// or too many polls fail in a row. It publishes exactly one terminal event
// and returns the outcome. A cancellation that arrives while a poll call is
// in flight is acted on once the call returns.
func (p *Poller) Run(ctx context.Context, handle cloudapi.RunHandle) Outcome {
	p.defaults()

	ctx, span := tracing.StartPhaseSpan(ctx, p.Tracer, "poll",
		attribute.Int64("lrcctl.run_id", handle.RunID),
		attribute.String("lrcctl.project_id", handle.ProjectID),
	)

	outcome := p.loop(ctx, handle)

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := p.Bus.Publish(pubCtx, outcome.Event(handle.RunID)); err != nil {
		p.Logger.Warn("terminal notification not delivered", "run_id", handle.RunID, "outcome", outcome.String(), "error", err)
	}

	tracing.EndSpan(span, nil, attribute.String("lrcctl.outcome", outcome.String()))
	return outcome
}

func (p *Poller) loop(ctx context.Context, handle cloudapi.RunHandle) Outcome {
	deadline := p.now().Add(p.MaxDuration)
	log := p.Logger.With("run_id", handle.RunID, "project_id", handle.ProjectID)
	failures := 0

	for cycle := 1; ; cycle++ {
		runs, err := p.API.ListActiveRuns(context.WithoutCancel(ctx), handle.ProjectID)
		if ctx.Err() != nil {
			log.Info("polling cancelled", "cycle", cycle)
			return OutcomeCancelled
		}

		if err != nil {
			failures++
			log.Warn("poll failed", "cycle", cycle, "consecutive_failures", failures, "error", err)
			if p.MaxConsecutiveFailures > 0 && failures >= p.MaxConsecutiveFailures {
				log.Error("giving up after consecutive poll failures", "failures", failures)
				return OutcomeFailed
			}
		} else {
			failures = 0
			status, found := findRun(runs, handle.RunID)
			log.Debug("polled active runs", "cycle", cycle, "found", found, "status", string(status))
			if found && status == cloudapi.StatusRunning {
				log.Info("run is running", "cycle", cycle)
				return OutcomeRunning
			}
		}

		timer := time.NewTimer(p.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info("polling cancelled", "cycle", cycle)
			return OutcomeCancelled
		case <-timer.C:
		}

		if p.now().After(deadline) {
			log.Warn("run did not reach RUNNING in time", "max_duration", p.MaxDuration, "cycles", cycle)
			return OutcomeTimeout
		}
	}
}

func findRun(runs []cloudapi.ActiveRun, runID int64) (cloudapi.RunStatus, bool) {
	for _, r := range runs {
		if r.RunID == runID {
			return r.Status, true
		}
	}
	return "", false
}

// PollHandle controls a poller running in the background.
type PollHandle struct {
	run     cloudapi.RunHandle
	cancel  context.CancelFunc
	done    chan struct{}
	outcome atomic.Int32
}

// Start runs the poller in its own goroutine. The poller outlives ctx: only
// Cancel, the deadline or the failure cap stop it. onDone, when set, runs
// after the terminal event was published and before Done is closed.
func (p *Poller) Start(ctx context.Context, handle cloudapi.RunHandle, onDone func(Outcome)) *PollHandle {
	pctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h := &PollHandle{run: handle, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(h.done)
		defer cancel()
		outcome := p.Run(pctx, handle)
		h.outcome.Store(int32(outcome))
		if onDone != nil {
			onDone(outcome)
		}
	}()
	return h
}

// Run returns the handle of the polled run.
func (h *PollHandle) Run() cloudapi.RunHandle { return h.run }

// Cancel asks the poller to stop. It returns immediately.
func (h *PollHandle) Cancel() { h.cancel() }

// Done is closed once the terminal notification has been published.
func (h *PollHandle) Done() <-chan struct{} { return h.done }

// Outcome returns OutcomePending until the poller finished.
func (h *PollHandle) Outcome() Outcome { return Outcome(h.outcome.Load()) }

// Wait blocks until the poller finished or ctx is done.
func (h *PollHandle) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-h.done:
		return h.Outcome(), nil
	case <-ctx.Done():
		return OutcomePending, ctx.Err()
	}
}
