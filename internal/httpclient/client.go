package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultConnectTimeout = 1 * time.Second
	DefaultReadTimeout    = 5 * time.Second
	DefaultRequestTimeout = 30 * time.Second
	DefaultMaxRedirects   = 10
)

// Options configures the transport used for control API calls.
type Options struct {
	// ConnectTimeout bounds dialing a TCP connection, including the proxy hop.
	ConnectTimeout time.Duration
	// ReadTimeout bounds the wait for response headers once the request is written.
	ReadTimeout time.Duration
	// RequestTimeout bounds the whole exchange, redirects and body read included.
	// Waiting for a pooled connection is covered by this deadline too.
	RequestTimeout time.Duration
	// Proxy routes every request through this proxy when set.
	Proxy *url.URL
	// Jar holds session cookies; nil disables cookie handling.
	Jar          http.CookieJar
	MaxRedirects int
}

// ProxyURL builds the URL of a plain HTTP proxy listening on host:port.
func ProxyURL(host string, port int) (*url.URL, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return nil, errors.New("proxy host is required")
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("invalid proxy port %d", port)
	}
	return &url.URL{Scheme: "http", Host: net.JoinHostPort(host, strconv.Itoa(port))}, nil
}

func (o *Options) normalize() {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.MaxRedirects <= 0 {
		o.MaxRedirects = DefaultMaxRedirects
	}
}

// NewClient returns an http.Client with finite timeouts on every phase and a
// redirect policy that follows 3xx responses for all verbs. 307/308 replay the
// original method and body through Request.GetBody.
func NewClient(opts Options) *http.Client {
	opts.normalize()

	dialer := &net.Dialer{
		Timeout:   opts.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}

	proxy := http.ProxyFromEnvironment
	if opts.Proxy != nil {
		proxy = http.ProxyURL(opts.Proxy)
	}

	transport := &http.Transport{
		Proxy:                 proxy,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          16,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   opts.ConnectTimeout + opts.ReadTimeout,
		ResponseHeaderTimeout: opts.ReadTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	maxRedirects := opts.MaxRedirects
	return &http.Client{
		Timeout:   opts.RequestTimeout,
		Transport: transport,
		Jar:       opts.Jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

// NewRequest builds a request whose body can be replayed on redirects.
func NewRequest(ctx context.Context, method, target string, body BodySource) (*http.Request, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if body == nil {
		body = emptyBodySource{}
	}

	reader, err := body.NewReader()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), target, reader)
	if err != nil {
		_ = reader.Close()
		return nil, err
	}

	if length, ok := body.ContentLength(); ok {
		req.ContentLength = length
	}
	req.GetBody = body.NewReader
	if ct := body.ContentType(); ct != "" {
		req.Header.Set("Content-Type", ct)
	}
	req.Header.Set("Accept", "application/json")

	return req, nil
}
