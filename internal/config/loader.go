package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment variables read by the loader, e.g. LRCCTL_PASSWORD.
const EnvPrefix = "LRCCTL"

// envKeys are the settings that may be supplied through the environment.
var envKeys = []string{
	"base_url",
	"user",
	"password",
	"tenant_id",
	"project_id",
	"load_test_id",
	"correlation_id",
	"bus.webhook_url",
	"bus.websocket_url",
	"tracing.endpoint",
}

// Loader handles loading configuration from files, environment and flags.
type Loader struct{}

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Defaults returns a Config populated with the built-in defaults.
func Defaults() *Config {
	return &Config{
		BaseURL:              DefaultBaseURL,
		TracingAttributeName: DefaultTracingAttributeName,
		TracingHeaderName:    DefaultTracingHeaderName,
		PollInterval:         DefaultPollInterval,
		PollMaxDuration:      DefaultPollMaxDuration,
		Timeouts: TimeoutConfig{
			Connect: DefaultConnectTimeout,
			Read:    DefaultReadTimeout,
			Request: DefaultRequestTimeout,
		},
		Proxy: ProxyConfig{
			Host: DefaultProxyHost,
			Port: DefaultProxyPort,
		},
		Bus:       BusConfig{Console: true},
		Tracing:   TracingConfig{Protocol: "grpc", SampleRate: 1.0},
		StateFile: DefaultStateFile,
		LogFormat: "text",
	}
}

// Load resolves configuration in order: defaults, config file, environment,
// then flags that were explicitly set on fs.
func (Loader) Load(fs *pflag.FlagSet) (*Config, error) {
	var configPath string
	if flag := fs.Lookup("config"); flag != nil {
		configPath = strings.TrimSpace(flag.Value.String())
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	cfg := Defaults()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(cfg, v.AllSettings()); err != nil {
		return nil, err
	}
	if err := applyFlagOverrides(cfg, fs); err != nil {
		return nil, err
	}

	cfg.BaseURL = strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	cfg.Tracing.Protocol = strings.ToLower(cfg.Tracing.Protocol)

	return cfg, nil
}

// applyConfigSettings applies settings from a config file (and bound
// environment variables) to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	strs := []struct {
		dst   *string
		label string
		keys  []string
	}{
		{&cfg.BaseURL, "base_url", []string{"base_url", "baseurl", "base-url"}},
		{&cfg.User, "user", []string{"user", "loadrunneruser"}},
		{&cfg.TenantID, "tenant_id", []string{"tenant_id", "tenantid", "tenant-id", "loadrunnertenantid"}},
		{&cfg.ProjectID, "project_id", []string{"project_id", "projectid", "project-id", "loadrunnerprojectid"}},
		{&cfg.LoadTestID, "load_test_id", []string{"load_test_id", "loadtestid", "load-test-id", "loadrunnerloadtestid"}},
		{&cfg.CorrelationID, "correlation_id", []string{"correlation_id", "correlationid", "correlation-id"}},
		{&cfg.TracingAttributeName, "tracing_attribute_name", []string{"tracing_attribute_name", "tracingattributename", "tracing-attribute-name"}},
		{&cfg.TracingHeaderName, "tracing_header_name", []string{"tracing_header_name", "tracingheadername", "tracing-header-name"}},
		{&cfg.StateFile, "state_file", []string{"state_file", "statefile", "state-file"}},
		{&cfg.LogFormat, "log_format", []string{"log_format", "logformat", "log-format"}},
	}
	for _, s := range strs {
		raw, ok := lookupSetting(settings, s.keys...)
		if !ok {
			continue
		}
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", s.label, err)
		}
		if trimmed := strings.TrimSpace(val); trimmed != "" {
			*s.dst = trimmed
		}
	}

	if raw, ok := lookupSetting(settings, "password", "loadrunnerpassword"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("password: %w", err)
		}
		if val != "" {
			cfg.Password = val
		}
	}

	bools := []struct {
		dst   *bool
		label string
		keys  []string
	}{
		{&cfg.UseTracingAttribute, "use_tracing_attribute", []string{"use_tracing_attribute", "usetracingattribute", "loadrunnerusetracingheader"}},
		{&cfg.JSONOutput, "json_output", []string{"json_output", "jsonoutput", "json-output"}},
		{&cfg.Verbose, "verbose", []string{"verbose"}},
	}
	for _, b := range bools {
		raw, ok := lookupSetting(settings, b.keys...)
		if !ok {
			continue
		}
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", b.label, err)
		}
		*b.dst = val
	}

	durations := []struct {
		dst   *time.Duration
		label string
		keys  []string
	}{
		{&cfg.PollInterval, "polling_interval", []string{"polling_interval", "pollinginterval", "pollingperiodinseconds"}},
		{&cfg.PollMaxDuration, "polling_max_duration", []string{"polling_max_duration", "pollingmaxduration", "pollingmaxdurationinseconds"}},
	}
	for _, d := range durations {
		raw, ok := lookupSetting(settings, d.keys...)
		if !ok {
			continue
		}
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.label, err)
		}
		*d.dst = val
	}

	if raw, ok := lookupSetting(settings, "max_poll_failures", "maxpollfailures"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("max_poll_failures: %w", err)
		}
		cfg.MaxPollFailures = val
	}

	if raw, ok := lookupSetting(settings, "max_rps", "maxrps"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("max_rps: %w", err)
		}
		cfg.MaxRPS = val
	}

	if raw, ok := lookupSetting(settings, "timeouts"); ok {
		if err := applyTimeouts(&cfg.Timeouts, raw); err != nil {
			return fmt.Errorf("timeouts: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "proxy"); ok {
		if err := applyProxy(&cfg.Proxy, raw); err != nil {
			return fmt.Errorf("proxy: %w", err)
		}
	}
	// Flat legacy keys.
	if raw, ok := lookupSetting(settings, "useproxy", "use_proxy"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("use_proxy: %w", err)
		}
		cfg.Proxy.Enabled = val
	}
	if raw, ok := lookupSetting(settings, "proxyport", "proxy_port"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("proxy_port: %w", err)
		}
		cfg.Proxy.Port = val
	}

	if raw, ok := lookupSetting(settings, "bus"); ok {
		if err := applyBus(&cfg.Bus, raw); err != nil {
			return fmt.Errorf("bus: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "tracing"); ok {
		if err := applyTracing(&cfg.Tracing, raw); err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}

	return nil
}

func applyTimeouts(t *TimeoutConfig, value interface{}) error {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	for _, entry := range []struct {
		dst *time.Duration
		key string
	}{
		{&t.Connect, "connect"},
		{&t.Read, "read"},
		{&t.Request, "request"},
	} {
		raw, ok := lookupSetting(settings, entry.key)
		if !ok {
			continue
		}
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", entry.key, err)
		}
		*entry.dst = dur
	}
	return nil
}

func applyProxy(p *ProxyConfig, value interface{}) error {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(settings, "enabled"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("enabled: %w", err)
		}
		p.Enabled = val
	}
	if raw, ok := lookupSetting(settings, "host"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("host: %w", err)
		}
		p.Host = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "port"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("port: %w", err)
		}
		p.Port = val
	}
	return nil
}

func applyBus(b *BusConfig, value interface{}) error {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(settings, "console"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("console: %w", err)
		}
		b.Console = val
	}
	if raw, ok := lookupSetting(settings, "webhook_url", "webhookurl", "webhook-url"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("webhook_url: %w", err)
		}
		b.WebhookURL = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "websocket_url", "websocketurl", "websocket-url"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("websocket_url: %w", err)
		}
		b.WebSocketURL = strings.TrimSpace(val)
	}
	return nil
}

func applyTracing(t *TracingConfig, value interface{}) error {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	for _, entry := range []struct {
		dst *string
		key string
	}{
		{&t.Endpoint, "endpoint"},
		{&t.Protocol, "protocol"},
		{&t.ServiceName, "service_name"},
	} {
		raw, ok := lookupSetting(settings, entry.key, strings.ReplaceAll(entry.key, "_", ""))
		if !ok {
			continue
		}
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", entry.key, err)
		}
		*entry.dst = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "sample_rate", "samplerate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("sample_rate: %w", err)
		}
		t.SampleRate = val
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("insecure: %w", err)
		}
		t.Insecure = val
	}
	if raw, ok := lookupSetting(settings, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("propagate: %w", err)
		}
		t.Propagate = val
	}
	return nil
}
