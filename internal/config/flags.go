package config

import (
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers the shared flags as persistent flags of the root command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.PersistentFlags())
}

// configureFlags sets up all shared CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to configuration file (YAML, JSON or TOML)")

	// Control plane
	flags.String("base-url", DefaultBaseURL, "Base URL of the load test control API")
	flags.String("user", "", "API user")
	flags.String("password", "", "API password (prefer LRCCTL_PASSWORD)")
	flags.String("tenant-id", "", "Tenant id sent as TENANTID on every call")
	flags.String("project-id", "", "Project id")
	flags.String("load-test-id", "", "Load test id")
	flags.Float64("max-rps", 0, "Client side limit on API calls per second (0 means unlimited)")

	// Run orchestration
	flags.String("correlation-id", "", "Correlation id attached to scripts (generated when empty)")
	flags.Bool("tracing-attribute", false, "Attach the correlation id to every script of the load test before starting")
	flags.String("tracing-attribute-name", DefaultTracingAttributeName, "Name of the script attribute carrying the correlation id")
	flags.String("tracing-header-name", DefaultTracingHeaderName, "Header scripts are told to send the correlation id in")
	flags.Duration("polling-interval", DefaultPollInterval, "Interval between active run polls")
	flags.Duration("polling-max-duration", DefaultPollMaxDuration, "Give up waiting for RUNNING after this long")
	flags.Int("max-poll-failures", 0, "Stop polling after this many consecutive failed polls (0 means never)")

	// Transport
	flags.Duration("connect-timeout", DefaultConnectTimeout, "TCP connect timeout")
	flags.Duration("read-timeout", DefaultReadTimeout, "Time to wait for response headers")
	flags.Duration("request-timeout", DefaultRequestTimeout, "Overall per-call timeout")
	flags.Bool("proxy", false, "Route API traffic through the outbound proxy")
	flags.String("proxy-host", DefaultProxyHost, "Outbound proxy host")
	flags.Int("proxy-port", DefaultProxyPort, "Outbound proxy port")

	// Notifications
	flags.Bool("quiet", false, "Do not print notifications to stdout")
	flags.String("webhook-url", "", "POST notifications as JSON to this URL")
	flags.String("websocket-url", "", "Publish notifications to this websocket endpoint")

	// Tracing
	flags.String("tracing-endpoint", "", "OTLP endpoint for spans (host:port)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: 'grpc' or 'http'")
	flags.String("tracing-service-name", "", "Service name reported on spans")
	flags.Float64("tracing-sample-rate", 1.0, "Span sample rate between 0.0 and 1.0")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Bool("tracing-propagate", false, "Inject W3C trace headers into API calls")

	// Output
	flags.String("state-file", DefaultStateFile, "File recording the last started run")
	flags.Bool("json-output", false, "Emit JSON formatted output")
	flags.String("log-format", "text", "Log format: 'text' or 'json'")
	flags.BoolP("verbose", "v", false, "Enable debug logging")
}

// applyFlagOverrides copies explicitly set flags over file and environment values.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	strs := []struct {
		name string
		dst  *string
	}{
		{"base-url", &cfg.BaseURL},
		{"user", &cfg.User},
		{"password", &cfg.Password},
		{"tenant-id", &cfg.TenantID},
		{"project-id", &cfg.ProjectID},
		{"load-test-id", &cfg.LoadTestID},
		{"correlation-id", &cfg.CorrelationID},
		{"tracing-attribute-name", &cfg.TracingAttributeName},
		{"tracing-header-name", &cfg.TracingHeaderName},
		{"proxy-host", &cfg.Proxy.Host},
		{"webhook-url", &cfg.Bus.WebhookURL},
		{"websocket-url", &cfg.Bus.WebSocketURL},
		{"tracing-endpoint", &cfg.Tracing.Endpoint},
		{"tracing-protocol", &cfg.Tracing.Protocol},
		{"tracing-service-name", &cfg.Tracing.ServiceName},
		{"state-file", &cfg.StateFile},
		{"log-format", &cfg.LogFormat},
	}
	for _, s := range strs {
		if fs.Lookup(s.name) == nil || !fs.Changed(s.name) {
			continue
		}
		val, err := fs.GetString(s.name)
		if err != nil {
			return err
		}
		if s.name != "password" {
			val = strings.TrimSpace(val)
		}
		*s.dst = val
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{"tracing-attribute", &cfg.UseTracingAttribute},
		{"proxy", &cfg.Proxy.Enabled},
		{"tracing-insecure", &cfg.Tracing.Insecure},
		{"tracing-propagate", &cfg.Tracing.Propagate},
		{"json-output", &cfg.JSONOutput},
		{"verbose", &cfg.Verbose},
	}
	for _, b := range bools {
		if fs.Lookup(b.name) == nil || !fs.Changed(b.name) {
			continue
		}
		val, err := fs.GetBool(b.name)
		if err != nil {
			return err
		}
		*b.dst = val
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"polling-interval", &cfg.PollInterval},
		{"polling-max-duration", &cfg.PollMaxDuration},
		{"connect-timeout", &cfg.Timeouts.Connect},
		{"read-timeout", &cfg.Timeouts.Read},
		{"request-timeout", &cfg.Timeouts.Request},
	}
	for _, d := range durations {
		if fs.Lookup(d.name) == nil || !fs.Changed(d.name) {
			continue
		}
		val, err := fs.GetDuration(d.name)
		if err != nil {
			return err
		}
		*d.dst = val
	}

	if fs.Lookup("quiet") != nil && fs.Changed("quiet") {
		val, err := fs.GetBool("quiet")
		if err != nil {
			return err
		}
		cfg.Bus.Console = !val
	}
	if fs.Lookup("max-poll-failures") != nil && fs.Changed("max-poll-failures") {
		val, err := fs.GetInt("max-poll-failures")
		if err != nil {
			return err
		}
		cfg.MaxPollFailures = val
	}
	if fs.Lookup("proxy-port") != nil && fs.Changed("proxy-port") {
		val, err := fs.GetInt("proxy-port")
		if err != nil {
			return err
		}
		cfg.Proxy.Port = val
	}
	if fs.Lookup("max-rps") != nil && fs.Changed("max-rps") {
		val, err := fs.GetFloat64("max-rps")
		if err != nil {
			return err
		}
		cfg.MaxRPS = val
	}
	if fs.Lookup("tracing-sample-rate") != nil && fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}

	return nil
}
