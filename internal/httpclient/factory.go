// Package httpclient builds the HTTP clients used for autodiscover probing and
// credential attempts.
package httpclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/Azure/go-ntlmssp"
	"golang.org/x/net/proxy"
)

// Config is the transport configuration injected into every network operation.
type Config struct {
	Timeout            time.Duration
	InsecureSkipVerify bool
	Proxy              string // http://, https:// or socks5:// URL
	FollowRedirects    bool
	MaxRedirects       int
	UserAgent          string
}

// DefaultConfig matches what the sprayer uses when nothing is configured:
// certificate verification off, redirects followed.
func DefaultConfig() Config {
	return Config{
		Timeout:            30 * time.Second,
		InsecureSkipVerify: true,
		FollowRedirects:    true,
		MaxRedirects:       10,
	}
}

// Option customizes a Factory.
type Option func(*Factory)

// WithRoundTripper replaces the transport constructor. Every client built by
// the factory calls fn for its base transport.
func WithRoundTripper(fn func() http.RoundTripper) Option {
	return func(f *Factory) {
		f.newTransport = fn
		f.custom = true
	}
}

// Factory builds clients that share one Config. Each call returns a client
// with its own transport so connection state never leaks between credential
// attempts.
type Factory struct {
	cfg          Config
	newTransport func() http.RoundTripper
	custom       bool
}

// NewFactory validates the proxy setting and returns a Factory.
func NewFactory(cfg Config, opts ...Option) (*Factory, error) {
	if cfg.Proxy != "" {
		if _, err := parseProxy(cfg.Proxy); err != nil {
			return nil, err
		}
	}

	f := &Factory{cfg: cfg}
	f.newTransport = func() http.RoundTripper {
		// parseProxy already succeeded above.
		t, _ := newTransport(f.cfg)
		return t
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Config returns the factory's transport configuration.
func (f *Factory) Config() Config {
	return f.cfg
}

// WithProxy returns a copy of the factory that routes through proxyURL.
// Transports injected with WithRoundTripper are kept as they are.
func (f *Factory) WithProxy(proxyURL string) (*Factory, error) {
	if proxyURL == "" || proxyURL == f.cfg.Proxy {
		return f, nil
	}
	if _, err := parseProxy(proxyURL); err != nil {
		return nil, err
	}

	clone := &Factory{cfg: f.cfg, newTransport: f.newTransport, custom: f.custom}
	clone.cfg.Proxy = proxyURL
	if !f.custom {
		clone.newTransport = func() http.RoundTripper {
			t, _ := newTransport(clone.cfg)
			return t
		}
	}
	return clone, nil
}

// Client returns a plain client. Basic credentials set on a request are sent
// as-is.
func (f *Factory) Client() *http.Client {
	return f.client(f.newTransport())
}

// NTLMClient returns a client whose transport turns Basic credentials on a
// request into an NTLM handshake.
func (f *Factory) NTLMClient() *http.Client {
	return f.client(negotiator{ntlmssp.Negotiator{RoundTripper: f.newTransport()}})
}

func (f *Factory) client(rt http.RoundTripper) *http.Client {
	if f.cfg.UserAgent != "" {
		rt = userAgentTransport{next: rt, agent: f.cfg.UserAgent}
	}

	client := &http.Client{
		Timeout:   f.cfg.Timeout,
		Transport: rt,
	}

	if !f.cfg.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	} else if f.cfg.MaxRedirects > 0 {
		limit := f.cfg.MaxRedirects
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= limit {
				return fmt.Errorf("stopped after %d redirects", limit)
			}
			return nil
		}
	}

	return client
}

func newTransport(cfg Config) (*http.Transport, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // targets routinely use self-signed certificates
		},
		MaxIdleConns:          10,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if cfg.Proxy == "" {
		return transport, nil
	}

	proxyURL, err := parseProxy(cfg.Proxy)
	if err != nil {
		return nil, err
	}

	switch proxyURL.Scheme {
	case "socks5", "socks5h":
		var auth *proxy.Auth
		if proxyURL.User != nil {
			password, _ := proxyURL.User.Password()
			auth = &proxy.Auth{User: proxyURL.User.Username(), Password: password}
		}
		dialer, err := proxy.SOCKS5("tcp", proxyURL.Host, auth, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		transport.Proxy = nil
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = cd.DialContext
		} else {
			transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
	default:
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return transport, nil
}

func parseProxy(raw string) (*url.URL, error) {
	proxyURL, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL %q: %w", raw, err)
	}
	switch proxyURL.Scheme {
	case "http", "https", "socks5", "socks5h":
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", proxyURL.Scheme)
	}
	if proxyURL.Host == "" {
		return nil, fmt.Errorf("proxy URL %q has no host", raw)
	}
	return proxyURL, nil
}

type idleCloser interface {
	CloseIdleConnections()
}

func closeIdle(rt http.RoundTripper) {
	if c, ok := rt.(idleCloser); ok {
		c.CloseIdleConnections()
	}
}

type negotiator struct {
	ntlmssp.Negotiator
}

func (n negotiator) CloseIdleConnections() {
	closeIdle(n.RoundTripper)
}

type userAgentTransport struct {
	next  http.RoundTripper
	agent string
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.agent)
	}
	return t.next.RoundTrip(req)
}

func (t userAgentTransport) CloseIdleConnections() {
	closeIdle(t.next)
}

// CloseBody drains and closes a response body so the connection can be reused.
func CloseBody(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}

	_, _ = io.Copy(io.Discard, resp.Body)

	if err := resp.Body.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close HTTP response body: %v\n", err)
	}
}
