package cloudapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"

	"github.com/torosent/lrcctl/internal/httpclient"
	"github.com/torosent/lrcctl/internal/tracing"
)

const (
	// CookieName carries the session token on every authenticated call.
	CookieName = "LWSSO_COOKIE_KEY"
	// TenantParam is appended to the query of every call.
	TenantParam = "TENANTID"

	maxLoggedBody   = 1024
	maxResponseBody = 16 << 20
)

// Recorder receives the latency and outcome of every API call.
type Recorder interface {
	RecordCall(op string, latency time.Duration, err error)
}

// Options tunes a Client. The zero value gives default timeouts, no proxy,
// no rate limit and no tracing.
type Options struct {
	Transport httpclient.Options
	// RatePerSecond caps API calls per second; 0 means unlimited.
	RatePerSecond float64
	Tracer        trace.Tracer
	// Propagate injects W3C trace headers into outgoing calls.
	Propagate bool
	Recorder  Recorder
	Logger    *slog.Logger
}

// Client talks to one control plane base URL with one session.
type Client struct {
	baseURL   *url.URL
	base      string
	host      string
	http      *http.Client
	jar       http.CookieJar
	session   atomic.Pointer[Session]
	limiter   *rate.Limiter
	tracer    trace.Tracer
	propagate bool
	recorder  Recorder
	logger    *slog.Logger
}

// New validates baseURL and builds a Client without a session.
func New(baseURL string, opts Options) (*Client, error) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, &MalformedBaseURLError{URL: baseURL, Err: err}
	}
	if u.Hostname() == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, &MalformedBaseURLError{URL: baseURL}
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cloudapi: cookie jar: %w", err)
	}
	transport := opts.Transport
	transport.Jar = jar

	c := &Client{
		baseURL:   u,
		base:      trimmed,
		host:      u.Hostname(),
		http:      httpclient.NewClient(transport),
		jar:       jar,
		tracer:    opts.Tracer,
		propagate: opts.Propagate,
		recorder:  opts.Recorder,
		logger:    opts.Logger,
	}
	if c.tracer == nil {
		c.tracer = noop.NewTracerProvider().Tracer("lrcctl")
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.RatePerSecond > 0 {
		burst := int(opts.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}
	return c, nil
}

// BaseURL returns the base URL without a trailing slash.
func (c *Client) BaseURL() string { return c.base }

// Host returns the host the session cookie is scoped to.
func (c *Client) Host() string { return c.host }

// Session returns a copy of the current session, or nil before InitSession.
func (c *Client) Session() *Session {
	s := c.session.Load()
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

// Cookies returns the cookies the client would send to the base URL.
func (c *Client) Cookies() []*http.Cookie {
	return c.jar.Cookies(c.baseURL)
}

// ExecuteAuthenticated issues one call with the session cookie and the
// tenant parameter and returns the reply body. Statuses outside 200-299 are
// returned as *RemoteCallError; nothing is retried.
func (c *Client) ExecuteAuthenticated(ctx context.Context, method, path string, query url.Values, body interface{}) ([]byte, error) {
	return c.execute(ctx, strings.ToUpper(method)+" "+path, method, path, query, body)
}

func (c *Client) execute(ctx context.Context, op, method, path string, query url.Values, body interface{}) ([]byte, error) {
	s := c.session.Load()
	if s == nil {
		return nil, ErrSessionNotInitialized
	}
	q := url.Values{}
	for k, v := range query {
		q[k] = append([]string(nil), v...)
	}
	q.Set(TenantParam, s.TenantID)
	data, _, err := c.do(ctx, op, method, path, q, body)
	return data, err
}

// do performs one HTTP exchange and validates the status.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body interface{}) ([]byte, int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, &RemoteCallError{Op: op, Err: fmt.Errorf("rate limit: %w", err)}
		}
	}

	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	ctx, span := tracing.StartRequestSpan(ctx, c.tracer, method, op)
	start := time.Now()

	data, status, err := c.roundTrip(ctx, op, method, target, body)

	latency := time.Since(start)
	if c.recorder != nil {
		c.recorder.RecordCall(op, latency, err)
	}
	tracing.EndSpan(span, err, attribute.Int("http.response.status_code", status))

	if err != nil {
		c.logger.Debug("api call failed", "op", op, "method", method, "status", status, "latency", latency, "error", err)
		return nil, status, err
	}
	c.logger.Debug("api call", "op", op, "method", method, "status", status, "latency", latency, "body", snippet(data))
	return data, status, nil
}

func (c *Client) roundTrip(ctx context.Context, op, method, target string, body interface{}) ([]byte, int, error) {
	src, err := httpclient.JSONBody(body)
	if err != nil {
		return nil, 0, &RemoteCallError{Op: op, Err: err}
	}
	req, err := httpclient.NewRequest(ctx, method, target, src)
	if err != nil {
		return nil, 0, &RemoteCallError{Op: op, Err: err}
	}
	if c.propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, &RemoteCallError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, resp.StatusCode, &RemoteCallError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return data, resp.StatusCode, &RemoteCallError{Op: op, StatusCode: resp.StatusCode, Body: string(data)}
	}
	return data, resp.StatusCode, nil
}

func snippet(data []byte) string {
	if len(data) > maxLoggedBody {
		return string(data[:maxLoggedBody]) + "..."
	}
	return string(data)
}

// decodeError wraps a reply that could not be decoded.
func decodeError(op string, data []byte, err error) error {
	return &RemoteCallError{Op: op, Body: string(data), Err: fmt.Errorf("decode response: %w", err)}
}

func notEmpty(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Field: field}
	}
	return nil
}

func isEmptyBody(data []byte) bool {
	return len(bytes.TrimSpace(data)) == 0
}

var errMissingField = errors.New("reply is missing field")
