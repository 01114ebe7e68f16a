package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func newTestFlagSet(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	configureFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return fs
}

func TestAsDuration(t *testing.T) {
	tests := []struct {
		input interface{}
		want  time.Duration
	}{
		{"15s", 15 * time.Second},
		{"10", 10 * time.Second},
		{300, 300 * time.Second},
		{float64(2), 2 * time.Second},
		{2 * time.Minute, 2 * time.Minute},
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asDuration(tt.input)
		if err != nil {
			t.Errorf("asDuration(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asDuration(%v) = %s, want %s", tt.input, got, tt.want)
		}
	}
}

func TestAsBool(t *testing.T) {
	tests := []struct {
		input interface{}
		want  bool
	}{
		{true, true},
		{"true", true},
		{"1", true},
		{"false", false},
		{nil, false},
	}

	for _, tt := range tests {
		got, err := asBool(tt.input)
		if err != nil {
			t.Errorf("asBool(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asBool(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load(newTestFlagSet(t))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BaseURL != DefaultBaseURL {
		t.Fatalf("expected default base URL, got %q", cfg.BaseURL)
	}
	if cfg.PollInterval != 10*time.Second {
		t.Fatalf("expected polling interval 10s, got %s", cfg.PollInterval)
	}
	if cfg.PollMaxDuration != 300*time.Second {
		t.Fatalf("expected polling max duration 300s, got %s", cfg.PollMaxDuration)
	}
	if cfg.Proxy.Enabled || cfg.Proxy.Address() != "localhost:8888" {
		t.Fatalf("expected disabled proxy at localhost:8888, got %+v", cfg.Proxy)
	}
	if cfg.UseTracingAttribute {
		t.Fatalf("expected tracing attribute off by default")
	}
	if cfg.TracingAttributeName != "perfanaTestRunId" || cfg.TracingHeaderName != "perfana-test-run-id" {
		t.Fatalf("unexpected tracing attribute defaults: %q / %q", cfg.TracingAttributeName, cfg.TracingHeaderName)
	}
	if !cfg.Bus.Console {
		t.Fatalf("expected console notifications on by default")
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lrcctl.yaml")
	content := `
base_url: http://localhost:8568/
user: pp
password: hello
tenant_id: "123"
project_id: "1"
load_test_id: "2"
use_tracing_attribute: true
polling_interval: 2s
polling_max_duration: 60
max_poll_failures: 5
timeouts:
  connect: 3s
  read: 7s
proxy:
  enabled: true
  port: 9999
bus:
  console: false
  webhook_url: http://hooks.example.com/lrc
tracing:
  endpoint: localhost:4317
  protocol: HTTP
  sample_rate: 0.5
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := NewLoader().Load(newTestFlagSet(t, "--config", path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BaseURL != "http://localhost:8568" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.BaseURL)
	}
	if cfg.User != "pp" || cfg.Password != "hello" || cfg.TenantID != "123" {
		t.Fatalf("unexpected credentials: %+v", cfg)
	}
	if cfg.ProjectID != "1" || cfg.LoadTestID != "2" {
		t.Fatalf("unexpected ids: project=%q loadTest=%q", cfg.ProjectID, cfg.LoadTestID)
	}
	if !cfg.UseTracingAttribute {
		t.Fatalf("expected tracing attribute enabled")
	}
	if cfg.PollInterval != 2*time.Second || cfg.PollMaxDuration != time.Minute {
		t.Fatalf("unexpected polling settings: %s / %s", cfg.PollInterval, cfg.PollMaxDuration)
	}
	if cfg.MaxPollFailures != 5 {
		t.Fatalf("expected max poll failures 5, got %d", cfg.MaxPollFailures)
	}
	if cfg.Timeouts.Connect != 3*time.Second || cfg.Timeouts.Read != 7*time.Second {
		t.Fatalf("unexpected timeouts: %+v", cfg.Timeouts)
	}
	if cfg.Timeouts.Request != DefaultRequestTimeout {
		t.Fatalf("expected request timeout default to survive, got %s", cfg.Timeouts.Request)
	}
	if !cfg.Proxy.Enabled || cfg.Proxy.Address() != "localhost:9999" {
		t.Fatalf("unexpected proxy: %+v", cfg.Proxy)
	}
	if cfg.Bus.Console || cfg.Bus.WebhookURL != "http://hooks.example.com/lrc" {
		t.Fatalf("unexpected bus: %+v", cfg.Bus)
	}
	if cfg.Tracing.Protocol != "http" || cfg.Tracing.SampleRate != 0.5 {
		t.Fatalf("unexpected tracing: %+v", cfg.Tracing)
	}
	if err := cfg.Validate(NeedProject, NeedLoadTest); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestFlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lrcctl.json")
	if err := os.WriteFile(path, []byte(`{"user":"file-user","polling_interval":"30s","proxy":{"port":1234}}`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	fs := newTestFlagSet(t,
		"--config", path,
		"--user", "flag-user",
		"--polling-interval", "5s",
		"--proxy-port", "4321",
		"--tracing-attribute-name", "testRunId",
		"--quiet",
	)
	cfg, err := NewLoader().Load(fs)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.User != "flag-user" {
		t.Fatalf("expected flag user to win, got %q", cfg.User)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Fatalf("expected flag polling interval, got %s", cfg.PollInterval)
	}
	if cfg.Proxy.Port != 4321 {
		t.Fatalf("expected flag proxy port, got %d", cfg.Proxy.Port)
	}
	if cfg.Bus.Console {
		t.Fatalf("expected --quiet to disable console notifications")
	}
	if cfg.TracingAttributeName != "testRunId" || cfg.TracingHeaderName != DefaultTracingHeaderName {
		t.Fatalf("unexpected tracing names: %q / %q", cfg.TracingAttributeName, cfg.TracingHeaderName)
	}
}

func TestPasswordFromEnvironment(t *testing.T) {
	t.Setenv("LRCCTL_PASSWORD", " s3cret ")
	t.Setenv("LRCCTL_TENANT_ID", "777")

	cfg, err := NewLoader().Load(newTestFlagSet(t))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Password != " s3cret " {
		t.Fatalf("expected password from env untouched, got %q", cfg.Password)
	}
	if cfg.TenantID != "777" {
		t.Fatalf("expected tenant from env, got %q", cfg.TenantID)
	}
}

func TestLegacyFlatKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "legacy.yaml")
	content := `
loadRunnerUser: pp
loadRunnerPassword: hello
loadRunnerTenantId: "123"
loadRunnerProjectId: "1"
loadRunnerLoadTestId: "2"
loadRunnerUseTracingHeader: true
pollingPeriodInSeconds: 15
pollingMaxDurationInSeconds: 120
useProxy: true
proxyPort: 8080
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := NewLoader().Load(newTestFlagSet(t, "--config", path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.User != "pp" || cfg.TenantID != "123" || cfg.LoadTestID != "2" {
		t.Fatalf("legacy keys not applied: %+v", cfg)
	}
	if !cfg.UseTracingAttribute {
		t.Fatalf("expected legacy tracing header toggle to map to tracing attribute")
	}
	if cfg.PollInterval != 15*time.Second || cfg.PollMaxDuration != 2*time.Minute {
		t.Fatalf("unexpected polling: %s / %s", cfg.PollInterval, cfg.PollMaxDuration)
	}
	if !cfg.Proxy.Enabled || cfg.Proxy.Port != 8080 {
		t.Fatalf("unexpected proxy: %+v", cfg.Proxy)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := NewLoader().Load(newTestFlagSet(t, "--config", filepath.Join(t.TempDir(), "missing.yaml")))
	if err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
