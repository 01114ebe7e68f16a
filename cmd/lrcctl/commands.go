package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/torosent/lrcctl/internal/config"
	"github.com/torosent/lrcctl/internal/output"
	"github.com/torosent/lrcctl/internal/state"
)

func newStopCmd() *cobra.Command {
	var runID int64
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a run",
		Long: `Stop a run by id. Without --run-id the run recorded by the last "start"
in the state file is stopped and the record is cleared.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			store := state.NewStore(a.cfg.StateFile)
			fromState := runID == 0
			if fromState {
				recorded, err := store.Load(ctx)
				if errors.Is(err, state.ErrNoRun) {
					return fmt.Errorf("no --run-id given and no run recorded in %s", store.Path())
				}
				if err != nil {
					return err
				}
				if recorded.BaseURL != "" && recorded.BaseURL != a.client.BaseURL() {
					a.logger.Warn("recorded run belongs to another base URL", "recorded", recorded.BaseURL, "configured", a.client.BaseURL())
				}
				runID = recorded.RunID
			}

			if err := a.login(ctx); err != nil {
				return err
			}
			result, err := a.client.StopRun(ctx, runID)
			if err != nil {
				return fmt.Errorf("stop run %d: %w", runID, err)
			}
			if fromState {
				if err := store.Clear(ctx); err != nil {
					a.logger.Warn("could not clear recorded run", "error", err)
				}
			}

			if a.cfg.JSONOutput {
				return output.PrintJSONReport(a.stdout, result)
			}
			fmt.Fprintf(a.stdout, "Run %d: %s\n", result.RunID, result.Status)
			return nil
		},
	}
	cmd.Flags().Int64Var(&runID, "run-id", 0, "Run to stop (defaults to the recorded run)")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List the active runs of the project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(cmd, config.NeedProject)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			if err := a.login(ctx); err != nil {
				return err
			}
			runs, err := a.client.ListActiveRuns(ctx, a.cfg.ProjectID)
			if err != nil {
				return err
			}
			if a.cfg.JSONOutput {
				return output.PrintJSONReport(a.stdout, runs)
			}
			return output.PrintActiveRuns(a.stdout, runs)
		},
	}
}

func newScriptsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scripts",
		Short: "List the scripts of the load test",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(cmd, config.NeedProject, config.NeedLoadTest)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			if err := a.login(ctx); err != nil {
				return err
			}
			scripts, err := a.client.ListScripts(ctx, a.cfg.ProjectID, a.cfg.LoadTestID)
			if err != nil {
				return err
			}
			if a.cfg.JSONOutput {
				return output.PrintJSONReport(a.stdout, scripts)
			}
			return output.PrintScripts(a.stdout, scripts)
		},
	}
}

func newScheduleCmd() *cobra.Command {
	var (
		in time.Duration
		at string
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Schedule a run of the load test",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(cmd, config.NeedProject, config.NeedLoadTest)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			startAt := time.Now().Add(in)
			if at != "" {
				startAt, err = time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
			}
			if in <= 0 && at == "" {
				return fmt.Errorf("--in must be > 0")
			}

			if err := a.login(ctx); err != nil {
				return err
			}
			reply, err := a.client.CreateSchedule(ctx, a.cfg.ProjectID, a.cfg.LoadTestID, startAt)
			if err != nil {
				return err
			}
			if a.cfg.JSONOutput {
				return output.PrintJSONReport(a.stdout, map[string]string{
					"schedule_id": strconv.FormatInt(reply.ScheduleID, 10),
					"start_at":    startAt.UTC().Format(time.RFC3339),
				})
			}
			fmt.Fprintf(a.stdout, "Schedule %d starts at %s\n", reply.ScheduleID, startAt.UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().DurationVar(&in, "in", time.Minute, "Start the run this long from now")
	cmd.Flags().StringVar(&at, "at", "", "Start the run at this RFC3339 time (overrides --in)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "lrcctl %s\n", version)
		},
	}
}
