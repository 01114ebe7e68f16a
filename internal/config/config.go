package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	DefaultBaseURL         = "https://loadrunner-cloud.saas.microfocus.com/v1"
	DefaultPollInterval    = 10 * time.Second
	DefaultPollMaxDuration = 300 * time.Second
	DefaultConnectTimeout  = 1 * time.Second
	DefaultReadTimeout     = 5 * time.Second
	DefaultRequestTimeout  = 30 * time.Second
	DefaultProxyHost       = "localhost"
	DefaultProxyPort       = 8888
	DefaultStateFile       = ".lrcctl/run.yaml"

	DefaultTracingAttributeName = "perfanaTestRunId"
	DefaultTracingHeaderName    = "perfana-test-run-id"
)

type Config struct {
	BaseURL              string        `mapstructure:"base_url"`
	User                 string        `mapstructure:"user"`
	Password             string        `mapstructure:"password"`
	TenantID             string        `mapstructure:"tenant_id"`
	ProjectID            string        `mapstructure:"project_id"`
	LoadTestID           string        `mapstructure:"load_test_id"`
	CorrelationID        string        `mapstructure:"correlation_id"`
	UseTracingAttribute  bool          `mapstructure:"use_tracing_attribute"`
	TracingAttributeName string        `mapstructure:"tracing_attribute_name"`
	TracingHeaderName    string        `mapstructure:"tracing_header_name"`
	PollInterval         time.Duration `mapstructure:"polling_interval"`
	PollMaxDuration      time.Duration `mapstructure:"polling_max_duration"`
	MaxPollFailures      int           `mapstructure:"max_poll_failures"`
	MaxRPS               float64       `mapstructure:"max_rps"`
	Timeouts             TimeoutConfig `mapstructure:"timeouts"`
	Proxy                ProxyConfig   `mapstructure:"proxy"`
	Bus                  BusConfig     `mapstructure:"bus"`
	Tracing              TracingConfig `mapstructure:"tracing"`
	StateFile            string        `mapstructure:"state_file"`
	JSONOutput           bool          `mapstructure:"json_output"`
	LogFormat            string        `mapstructure:"log_format"`
	Verbose              bool          `mapstructure:"verbose"`
	ConfigFile           string        `mapstructure:"-"`
}

type TimeoutConfig struct {
	Connect time.Duration `mapstructure:"connect"`
	Read    time.Duration `mapstructure:"read"`
	Request time.Duration `mapstructure:"request"`
}

type ProxyConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// Address returns host:port of the outbound proxy.
func (p ProxyConfig) Address() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

type BusConfig struct {
	Console      bool   `mapstructure:"console"`
	WebhookURL   string `mapstructure:"webhook_url"`
	WebSocketURL string `mapstructure:"websocket_url"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" or "http"
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
	Propagate   bool    `mapstructure:"propagate"`
}

// Enabled reports whether spans should be exported or trace headers propagated.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || t.Propagate || os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

// ShouldPropagate reports whether W3C trace headers go out on API calls.
func (t TracingConfig) ShouldPropagate() bool {
	return t.Propagate
}

// Requirement names an identifier a command needs beyond the credentials.
type Requirement int

const (
	NeedProject Requirement = iota + 1
	NeedLoadTest
)

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate(needs ...Requirement) error {
	var issues []string

	if strings.TrimSpace(c.BaseURL) == "" {
		issues = append(issues, "base_url is required")
	} else if u, err := url.Parse(c.BaseURL); err != nil || u.Hostname() == "" {
		issues = append(issues, fmt.Sprintf("base_url %q is not a valid URL", c.BaseURL))
	}
	if strings.TrimSpace(c.User) == "" {
		issues = append(issues, "user is required (use --help for usage information)")
	}
	if c.Password == "" {
		issues = append(issues, "password is required (set LRCCTL_PASSWORD to keep it off the command line)")
	}
	if strings.TrimSpace(c.TenantID) == "" {
		issues = append(issues, "tenant_id is required")
	}
	if c.UseTracingAttribute && strings.TrimSpace(c.TracingAttributeName) == "" {
		issues = append(issues, "tracing_attribute_name is required when the tracing attribute is on")
	}

	for _, need := range needs {
		switch need {
		case NeedProject:
			if strings.TrimSpace(c.ProjectID) == "" {
				issues = append(issues, "project_id is required")
			}
		case NeedLoadTest:
			if strings.TrimSpace(c.LoadTestID) == "" {
				issues = append(issues, "load_test_id is required")
			}
		}
	}

	if c.PollInterval <= 0 {
		issues = append(issues, "polling_interval must be > 0")
	}
	if c.PollMaxDuration <= 0 {
		issues = append(issues, "polling_max_duration must be > 0")
	}
	if c.PollInterval > 0 && c.PollMaxDuration > 0 && c.PollInterval > c.PollMaxDuration {
		issues = append(issues, "polling_interval must not exceed polling_max_duration")
	}
	if c.MaxPollFailures < 0 {
		issues = append(issues, "max_poll_failures must be >= 0")
	}
	if c.MaxRPS < 0 {
		issues = append(issues, "max_rps must be >= 0")
	}

	issues = append(issues, validateTimeouts(c.Timeouts)...)
	issues = append(issues, validateProxy(c.Proxy)...)
	issues = append(issues, validateBus(c.Bus)...)
	issues = append(issues, validateTracing(c.Tracing)...)

	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		issues = append(issues, fmt.Sprintf("log_format must be 'text' or 'json', got %q", c.LogFormat))
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateTimeouts(t TimeoutConfig) []string {
	var issues []string
	if t.Connect <= 0 {
		issues = append(issues, "timeouts.connect must be > 0")
	}
	if t.Read <= 0 {
		issues = append(issues, "timeouts.read must be > 0")
	}
	if t.Request <= 0 {
		issues = append(issues, "timeouts.request must be > 0")
	}
	return issues
}

func validateProxy(p ProxyConfig) []string {
	if !p.Enabled {
		return nil
	}
	var issues []string
	if strings.TrimSpace(p.Host) == "" {
		issues = append(issues, "proxy: host is required when proxy is enabled")
	}
	if p.Port < 1 || p.Port > 65535 {
		issues = append(issues, fmt.Sprintf("proxy: port must be between 1 and 65535, got %d", p.Port))
	}
	return issues
}

func validateBus(b BusConfig) []string {
	var issues []string
	if b.WebhookURL != "" {
		u, err := url.Parse(b.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			issues = append(issues, fmt.Sprintf("bus: webhook_url must be an http(s) URL, got %q", b.WebhookURL))
		}
	}
	if b.WebSocketURL != "" {
		u, err := url.Parse(b.WebSocketURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			issues = append(issues, fmt.Sprintf("bus: websocket_url must be a ws(s) URL, got %q", b.WebSocketURL))
		}
	}
	return issues
}

func validateTracing(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol must be 'grpc' or 'http', got %q", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing: sample_rate must be between 0.0 and 1.0, got %g", t.SampleRate))
	}
	return issues
}
