package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/torosent/lrcctl/internal/config"
	"github.com/torosent/lrcctl/internal/events"
	"github.com/torosent/lrcctl/internal/orchestrator"
	"github.com/torosent/lrcctl/internal/output"
	"github.com/torosent/lrcctl/internal/state"
)

const (
	progressInterval = time.Second
	pollOperation    = "ListActiveRuns"
)

type startOptions struct {
	abortOnCancel bool
	htmlOutput    string
	progress      bool
}

func newStartCmd() *cobra.Command {
	var opts startOptions
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a run and wait until it reports RUNNING",
		Long: `Start a run of the configured load test and poll the active runs until it
reports RUNNING ("Go!"), the polling max duration passes or the command is
interrupted ("Stop!"). Exits non-zero unless the run reached RUNNING.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStart(cmd, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.abortOnCancel, "abort-on-cancel", false, "Stop the remote run when interrupted")
	cmd.Flags().StringVar(&opts.htmlOutput, "html-output", "", "Write an HTML run report to this path")
	cmd.Flags().BoolVar(&opts.progress, "progress", true, "Show a polling progress line on stderr")
	return cmd
}

func runStart(cmd *cobra.Command, opts startOptions) error {
	ctx := cmd.Context()
	a, err := newApp(cmd, config.NeedProject, config.NeedLoadTest)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	timeline := &events.MemoryBus{}
	cfg := a.cfg
	o := orchestrator.New(a.client, orchestrator.Settings{
		User:                 cfg.User,
		Password:             cfg.Password,
		TenantID:             cfg.TenantID,
		ProjectID:            cfg.ProjectID,
		LoadTestID:           cfg.LoadTestID,
		CorrelationID:        cfg.CorrelationID,
		UseTracingAttribute:  cfg.UseTracingAttribute,
		TracingAttributeName: cfg.TracingAttributeName,
		TracingHeaderName:    cfg.TracingHeaderName,
		PollInterval:         cfg.PollInterval,
		PollMaxDuration:      cfg.PollMaxDuration,
		MaxPollFailures:      cfg.MaxPollFailures,
	}, orchestrator.Options{
		Bus:    a.bus(timeline),
		Logger: a.logger,
		Tracer: a.tracing.Tracer(),
	})

	started := time.Now()
	if err := o.BeforeTest(ctx); err != nil {
		return credentialsHint(err)
	}
	handle, _ := o.Handle()
	poll := o.Poll()

	store := state.NewStore(cfg.StateFile)
	if err := store.Save(ctx, state.Run{
		BaseURL:       a.client.BaseURL(),
		TenantID:      cfg.TenantID,
		ProjectID:     handle.ProjectID,
		LoadTestID:    handle.LoadTestID,
		RunID:         handle.RunID,
		CorrelationID: o.CorrelationID(),
		StartedAt:     started.UTC(),
	}); err != nil {
		a.logger.Warn("could not record run", "state_file", store.Path(), "error", err)
	}

	var progress *output.ProgressReporter
	if opts.progress && !cfg.JSONOutput && !cfg.Verbose {
		label := fmt.Sprintf("Waiting for run %d", handle.RunID)
		progress = output.NewProgressReporter(a.collector, pollOperation, label, progressInterval, a.stderr)
		progress.Start()
	}

	select {
	case <-poll.Done():
	case <-ctx.Done():
		a.logger.Info("interrupted, cancelling poller", "run_id", handle.RunID)
		poll.Cancel()
		if opts.abortOnCancel {
			abortCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Timeouts.Request)
			if err := o.AbortTest(abortCtx); err != nil {
				a.logger.Error("abort failed", "run_id", handle.RunID, "error", err)
			} else if err := store.Clear(abortCtx); err != nil {
				a.logger.Warn("could not clear recorded run", "error", err)
			}
			cancel()
		}
		<-poll.Done()
	}
	if progress != nil {
		progress.Stop()
	}

	outcome := poll.Outcome()
	elapsed := time.Since(started)
	summary := output.RunSummary{
		RunID:         handle.RunID,
		ProjectID:     handle.ProjectID,
		LoadTestID:    handle.LoadTestID,
		CorrelationID: o.CorrelationID(),
		Outcome:       outcome.String(),
		Elapsed:       elapsed,
		ElapsedMs:     float64(elapsed) / float64(time.Millisecond),
		Calls:         a.collector.Report(),
	}
	if err := writeSummary(a, summary, timeline.Events(), opts.htmlOutput); err != nil {
		return err
	}

	if outcome != orchestrator.OutcomeRunning {
		return fmt.Errorf("run %d did not reach RUNNING: %s", handle.RunID, outcome)
	}
	return nil
}

func writeSummary(a *app, summary output.RunSummary, timeline []events.Event, htmlPath string) error {
	if a.cfg.JSONOutput {
		if err := output.PrintJSONReport(a.stdout, summary); err != nil {
			return err
		}
	} else {
		output.PrintRunSummary(a.stdout, summary)
	}

	if htmlPath == "" {
		return nil
	}
	f, err := os.Create(htmlPath)
	if err != nil {
		return fmt.Errorf("html report: %w", err)
	}
	err = output.GenerateHTMLReport(f, summary, timeline)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("html report %s: %w", htmlPath, err)
	}
	a.logger.Info("wrote HTML report", "path", htmlPath)
	return nil
}
