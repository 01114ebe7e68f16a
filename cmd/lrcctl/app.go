package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/torosent/lrcctl/internal/cloudapi"
	"github.com/torosent/lrcctl/internal/config"
	"github.com/torosent/lrcctl/internal/events"
	"github.com/torosent/lrcctl/internal/httpclient"
	"github.com/torosent/lrcctl/internal/metrics"
	"github.com/torosent/lrcctl/internal/tracing"
)

const shutdownTimeout = 5 * time.Second

// app holds what every command needs once flags are parsed.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	tracing   *tracing.Provider
	collector *metrics.Collector
	client    *cloudapi.Client
	stdout    io.Writer
	stderr    io.Writer
	closers   []func(context.Context) error
}

func newApp(cmd *cobra.Command, needs ...config.Requirement) (_ *app, err error) {
	cfg, err := config.NewLoader().Load(cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(needs...); err != nil {
		return nil, err
	}

	a := &app{
		cfg:       cfg,
		logger:    newLogger(cfg, cmd.ErrOrStderr()),
		collector: metrics.NewCollector(),
		stdout:    cmd.OutOrStdout(),
		stderr:    cmd.ErrOrStderr(),
	}

	provider, err := tracing.Init(cmd.Context(), cfg.Tracing)
	if err != nil {
		return nil, err
	}
	a.tracing = provider
	a.closers = append(a.closers, provider.Shutdown)
	defer func() {
		if err != nil {
			a.close(cmd.Context())
		}
	}()

	transport := httpclient.Options{
		ConnectTimeout: cfg.Timeouts.Connect,
		ReadTimeout:    cfg.Timeouts.Read,
		RequestTimeout: cfg.Timeouts.Request,
	}
	if cfg.Proxy.Enabled {
		proxy, err := httpclient.ProxyURL(cfg.Proxy.Host, cfg.Proxy.Port)
		if err != nil {
			return nil, err
		}
		transport.Proxy = proxy
		a.logger.Debug("routing API calls through proxy", "proxy", cfg.Proxy.Address())
	}

	client, err := cloudapi.New(cfg.BaseURL, cloudapi.Options{
		Transport:     transport,
		RatePerSecond: cfg.MaxRPS,
		Tracer:        provider.Tracer(),
		Propagate:     provider.ShouldPropagate(),
		Recorder:      a.collector,
		Logger:        a.logger,
	})
	if err != nil {
		return nil, err
	}
	a.client = client
	return a, nil
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// login opens the API session with the configured credentials.
func (a *app) login(ctx context.Context) error {
	if err := a.client.InitSession(ctx, a.cfg.User, a.cfg.Password, a.cfg.TenantID); err != nil {
		return credentialsHint(fmt.Errorf("authenticate: %w", err))
	}
	return nil
}

// credentialsHint points at the credential settings when the control plane
// rejected them.
func credentialsHint(err error) error {
	if cloudapi.IsStatus(err, http.StatusUnauthorized) || cloudapi.IsStatus(err, http.StatusForbidden) {
		return fmt.Errorf("%w (check user, password and tenant_id)", err)
	}
	return err
}

// bus assembles the configured notification sinks. extra buses are added
// as they are.
func (a *app) bus(extra ...events.Bus) events.Bus {
	var buses events.MultiBus
	if a.cfg.Bus.Console {
		buses = append(buses, events.NewConsoleBus(a.stdout))
	}
	if a.cfg.Bus.WebhookURL != "" {
		buses = append(buses, events.NewWebhookBus(a.cfg.Bus.WebhookURL, nil))
	}
	if a.cfg.Bus.WebSocketURL != "" {
		ws := events.NewWebSocketBus(a.cfg.Bus.WebSocketURL)
		buses = append(buses, ws)
		a.closers = append(a.closers, func(context.Context) error {
			m := ws.Metrics()
			a.logger.Debug("websocket sink closed", "messages", m.MessagesSent, "bytes", m.BytesSent, "reconnects", m.Reconnects, "errors", m.Errors)
			return ws.Close()
		})
	}
	buses = append(buses, extra...)
	return buses
}

// close releases sinks and flushes spans, even after ctx was cancelled.
func (a *app) close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("shutdown", "error", err)
		}
	}
}
