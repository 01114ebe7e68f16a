package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/torosent/lrcctl/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "lrcctl",
		Short: "Start, watch and stop runs of a cloud load test",
		Long: `lrcctl drives runs of a load test hosted on a cloud load testing service.

It authenticates against the control API, optionally tags every script of
the load test with a correlation id, starts a run and waits until the run
reports RUNNING. Notifications ("run started", "Go!", "Stop!") go to the
console, a webhook or a websocket endpoint.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	config.RegisterFlags(root)

	root.AddCommand(
		newStartCmd(),
		newStopCmd(),
		newStatusCmd(),
		newScriptsCmd(),
		newScheduleCmd(),
		newVersionCmd(),
	)
	return root
}
