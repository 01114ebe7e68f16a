// Package orchestrator drives one remote load test run: authenticate, tag the
// scripts with a correlation id, start the run, then wait in the background
// for it to reach RUNNING and notify the bus.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/torosent/lrcctl/internal/cloudapi"
	"github.com/torosent/lrcctl/internal/events"
	"github.com/torosent/lrcctl/internal/tracing"
)

// Default names of the script attribute carrying the correlation id and of the
// header scripts are told to forward it in. Scripts written against the
// original plugin read perfanaTestRunId.
const (
	DefaultTracingAttributeName = "perfanaTestRunId"
	DefaultTracingHeaderName    = "perfana-test-run-id"
)

var (
	// ErrAlreadyStarted is returned by BeforeTest on an orchestrator that left Idle.
	ErrAlreadyStarted = errors.New("orchestrator: run already started")
	// ErrNotAuthenticated is returned by AbortTest before authentication.
	ErrNotAuthenticated = errors.New("orchestrator: not authenticated")
	// ErrNoRun is returned by AbortTest when no run was started.
	ErrNoRun = errors.New("orchestrator: no run to stop")
)

// API is the part of the control plane client the orchestrator uses.
type API interface {
	RunLister
	InitSession(ctx context.Context, user, password, tenantID string) error
	BroadcastAttributes(ctx context.Context, projectID, loadTestID string, attrs []cloudapi.Attribute) error
	StartRun(ctx context.Context, projectID, loadTestID string) (cloudapi.RunHandle, error)
	StopRun(ctx context.Context, runID int64) (cloudapi.RunResult, error)
}

// Hooks is the lifecycle surface a test runner calls.
type Hooks interface {
	BeforeTest(ctx context.Context) error
	AbortTest(ctx context.Context) error
}

var _ Hooks = (*Orchestrator)(nil)

// State is a step of the orchestration.
type State int

const (
	StateIdle State = iota
	StateAuthenticated
	StateRunStarted
	StatePolling
	StateNotified
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAuthenticated:
		return "authenticated"
	case StateRunStarted:
		return "run started"
	case StatePolling:
		return "polling"
	case StateNotified:
		return "notified"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Settings describe the run to orchestrate.
type Settings struct {
	User       string
	Password   string
	TenantID   string
	ProjectID  string
	LoadTestID string
	// CorrelationID is attached to every script when UseTracingAttribute is
	// set. A ULID is generated when empty.
	CorrelationID       string
	UseTracingAttribute bool
	// TracingAttributeName and TracingHeaderName default to
	// DefaultTracingAttributeName and DefaultTracingHeaderName.
	TracingAttributeName string
	TracingHeaderName    string

	PollInterval    time.Duration
	PollMaxDuration time.Duration
	MaxPollFailures int
}

// Options carries collaborators. Nil fields get no-op implementations.
type Options struct {
	Bus    events.Bus
	Logger *slog.Logger
	Tracer trace.Tracer
}

// Orchestrator runs the state machine for one run.
type Orchestrator struct {
	api      API
	settings Settings
	bus      events.Bus
	logger   *slog.Logger
	tracer   trace.Tracer

	mu       sync.Mutex
	state    State
	starting bool
	handle   *cloudapi.RunHandle
	poll     *PollHandle
	outcome  Outcome
}

func New(api API, settings Settings, opts Options) *Orchestrator {
	if settings.CorrelationID == "" {
		settings.CorrelationID = ulid.Make().String()
	}
	if settings.TracingAttributeName == "" {
		settings.TracingAttributeName = DefaultTracingAttributeName
	}
	if settings.TracingHeaderName == "" {
		settings.TracingHeaderName = DefaultTracingHeaderName
	}
	o := &Orchestrator{
		api:      api,
		settings: settings,
		bus:      opts.Bus,
		logger:   opts.Logger,
		tracer:   opts.Tracer,
	}
	if o.bus == nil {
		o.bus = events.Discard
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.tracer == nil {
		o.tracer = noop.NewTracerProvider().Tracer("lrcctl")
	}
	return o
}

// TracingAttribute builds the attribute that hands the correlation id to
// the scripts of a load test, telling them which header to send it in.
func TracingAttribute(name, header, correlationID string) cloudapi.Attribute {
	return cloudapi.Attribute{
		Name:        name,
		Value:       correlationID,
		Description: fmt.Sprintf(`Use in web_add_header("%s", lr_get_attrib_string("%s"))`, header, name),
	}
}

// CorrelationID returns the id attached to the scripts.
func (o *Orchestrator) CorrelationID() string { return o.settings.CorrelationID }

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Handle returns the started run, if any.
func (o *Orchestrator) Handle() (cloudapi.RunHandle, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.handle == nil {
		return cloudapi.RunHandle{}, false
	}
	return *o.handle, true
}

// Poll returns the background poller, or nil before the run started.
func (o *Orchestrator) Poll() *PollHandle {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.poll
}

// Outcome returns the terminal outcome once notified.
func (o *Orchestrator) Outcome() Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.outcome
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// BeforeTest authenticates, optionally tags every script with the
// correlation id, starts the run and launches the poller. It returns once
// the poller is running. Authentication and run start failures are returned;
// a failed script tagging is only logged.
func (o *Orchestrator) BeforeTest(ctx context.Context) (err error) {
	o.mu.Lock()
	if o.state != StateIdle || o.starting {
		o.mu.Unlock()
		return ErrAlreadyStarted
	}
	o.starting = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.starting = false
		o.mu.Unlock()
	}()

	s := o.settings
	if s.ProjectID == "" {
		return &cloudapi.ValidationError{Field: "projectId"}
	}
	if s.LoadTestID == "" {
		return &cloudapi.ValidationError{Field: "loadTestId"}
	}

	ctx, span := tracing.StartPhaseSpan(ctx, o.tracer, "before test",
		attribute.String("lrcctl.project_id", s.ProjectID),
		attribute.String("lrcctl.load_test_id", s.LoadTestID),
		attribute.String("lrcctl.correlation_id", s.CorrelationID),
	)
	defer func() { tracing.EndSpan(span, err) }()

	log := o.logger.With("project_id", s.ProjectID, "load_test_id", s.LoadTestID)
	log.Info("before test", "correlation_id", s.CorrelationID)

	if err := o.api.InitSession(ctx, s.User, s.Password, s.TenantID); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}
	o.setState(StateAuthenticated)

	if s.UseTracingAttribute {
		attrs := []cloudapi.Attribute{TracingAttribute(s.TracingAttributeName, s.TracingHeaderName, s.CorrelationID)}
		if err := o.api.BroadcastAttributes(ctx, s.ProjectID, s.LoadTestID, attrs); err != nil {
			log.Warn("could not attach tracing attribute to scripts, starting run anyway", "error", err)
		}
	}

	handle, err := o.api.StartRun(ctx, s.ProjectID, s.LoadTestID)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	o.mu.Lock()
	o.handle = &handle
	o.state = StateRunStarted
	o.mu.Unlock()
	span.SetAttributes(attribute.Int64("lrcctl.run_id", handle.RunID))
	log.Info("started run", "run_id", handle.RunID, "at", time.Now().UTC().Format(time.RFC3339))

	if err := o.bus.Publish(ctx, events.RunStarted(s.TenantID, s.ProjectID, handle.RunID)); err != nil {
		log.Warn("run started notification not delivered", "error", err)
	}

	poller := &Poller{
		API:                    o.api,
		Bus:                    o.bus,
		Interval:               s.PollInterval,
		MaxDuration:            s.PollMaxDuration,
		MaxConsecutiveFailures: s.MaxPollFailures,
		Logger:                 o.logger,
		Tracer:                 o.tracer,
	}
	o.mu.Lock()
	o.state = StatePolling
	o.poll = poller.Start(ctx, handle, o.notified)
	o.mu.Unlock()
	return nil
}

func (o *Orchestrator) notified(outcome Outcome) {
	o.mu.Lock()
	o.state = StateNotified
	o.outcome = outcome
	o.mu.Unlock()
}

// AbortTest stops the started run. It does not cancel the poller.
func (o *Orchestrator) AbortTest(ctx context.Context) error {
	o.mu.Lock()
	state, handle := o.state, o.handle
	o.mu.Unlock()

	if state == StateIdle {
		return ErrNotAuthenticated
	}
	if handle == nil {
		return ErrNoRun
	}
	return o.AbortRun(ctx, handle.RunID)
}

// AbortRun stops any run by id once the session exists.
func (o *Orchestrator) AbortRun(ctx context.Context, runID int64) error {
	if o.State() == StateIdle {
		return ErrNotAuthenticated
	}
	o.logger.Info("abort test", "run_id", runID, "correlation_id", o.settings.CorrelationID)
	result, err := o.api.StopRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("stop run %d: %w", runID, err)
	}
	o.logger.Info("stop requested", "run_id", result.RunID, "status", result.Status)
	return nil
}
