// Package httpclient builds the HTTP clients used by network tools. Every
// client shares the same pooling and dial settings; callers choose the
// timeout and whether redirects are followed.
package httpclient

import (
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/nadscan/nadscan/pkg/defaults"
)

// Config holds HTTP client configuration options.
type Config struct {
	// Timeout is the total request timeout (default: 30s)
	Timeout time.Duration

	// InsecureSkipVerify skips TLS certificate verification. Probes of
	// arbitrary targets set it; calls to the search gateway do not.
	InsecureSkipVerify bool

	// FollowRedirects follows up to 10 redirects. When false the first
	// response is returned as is.
	FollowRedirects bool

	// Proxy is the HTTP/HTTPS proxy URL (optional)
	Proxy string

	// UserAgent is sent on every request that does not set one.
	UserAgent string

	MaxIdleConns    int
	MaxConnsPerHost int
	IdleConnTimeout time.Duration
	DialTimeout     time.Duration
}

// DefaultConfig returns the settings shared by all tools.
func DefaultConfig() Config {
	return Config{
		Timeout:         30 * time.Second,
		FollowRedirects: true,
		UserAgent:       defaults.ToolName + "/" + defaults.Version,
		MaxIdleConns:    50,
		MaxConnsPerHost: 10,
		IdleConnTimeout: 90 * time.Second,
		DialTimeout:     10 * time.Second,
	}
}

// WithTimeout returns DefaultConfig with the given timeout.
func WithTimeout(timeout time.Duration) Config {
	cfg := DefaultConfig()
	cfg.Timeout = timeout
	return cfg
}

// New creates an HTTP client from cfg. Zero values fall back to DefaultConfig.
func New(cfg Config) *http.Client {
	def := DefaultConfig()
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = def.MaxIdleConns
	}
	if cfg.MaxConnsPerHost == 0 {
		cfg.MaxConnsPerHost = def.MaxConnsPerHost
	}
	if cfg.IdleConnTimeout == 0 {
		cfg.IdleConnTimeout = def.IdleConnTimeout
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = def.DialTimeout
	}

	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,

		ForceAttemptHTTP2:     true,
		ExpectContinueTimeout: 1 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		DialContext:           dialer.DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // probes target self-signed hosts
		},
	}

	// A malformed proxy URL is ignored; the client goes direct.
	if cfg.Proxy != "" {
		if proxyURL, err := url.Parse(cfg.Proxy); err == nil && proxyURL.Host != "" {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	var rt http.RoundTripper = transport
	if cfg.UserAgent != "" {
		rt = userAgent{next: transport, ua: cfg.UserAgent}
	}

	client := &http.Client{Transport: rt, Timeout: cfg.Timeout}
	if !cfg.FollowRedirects {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return client
}

type userAgent struct {
	next http.RoundTripper
	ua   string
}

func (u userAgent) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return u.next.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", u.ua)
	return u.next.RoundTrip(req)
}
