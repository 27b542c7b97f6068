// Package proxy rotates outbound HTTP clients across a list of proxies for
// aggregator requests. With no proxies configured every caller gets the
// direct client, labelled "no proxy".
package proxy

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// NoProxy labels the direct client.
const NoProxy = "no proxy"

// Config controls proxy rotation and client transport.
type Config struct {
	URLs    []string
	Timeout time.Duration // whole-request timeout, default 30s

	ConnectTimeout      time.Duration
	TLSHandshakeTimeout time.Duration
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
}

// DefaultConfig returns transport settings tuned for short aggregator calls.
func DefaultConfig() Config {
	return Config{
		Timeout:             30 * time.Second,
		ConnectTimeout:      5 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
}

type entry struct {
	label  string
	client *http.Client
}

// Pool hands out proxied clients in round-robin order.
type Pool struct {
	mu      sync.Mutex
	entries []entry
	next    int
	direct  *http.Client
}

// New builds one client per proxy URL. Supported schemes: http, https, socks5.
func New(cfg Config) (*Pool, error) {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.TLSHandshakeTimeout <= 0 {
		cfg.TLSHandshakeTimeout = def.TLSHandshakeTimeout
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = def.MaxIdleConnsPerHost
	}
	if cfg.IdleConnTimeout <= 0 {
		cfg.IdleConnTimeout = def.IdleConnTimeout
	}

	p := &Pool{direct: newClient(cfg, nil)}
	for _, raw := range cfg.URLs {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse proxy %q: %w", raw, err)
		}
		switch u.Scheme {
		case "http", "https", "socks5":
		default:
			return nil, fmt.Errorf("proxy %q: unsupported scheme %q", u.Redacted(), u.Scheme)
		}
		if u.Host == "" {
			return nil, fmt.Errorf("proxy %q: missing host", u.Redacted())
		}
		p.entries = append(p.entries, entry{label: u.Redacted(), client: newClient(cfg, u)})
	}
	return p, nil
}

// Acquire returns the next client in rotation.
func (p *Pool) Acquire() (string, *http.Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.entries) == 0 {
		return NoProxy, p.direct
	}
	e := p.entries[p.next]
	p.next = (p.next + 1) % len(p.entries)
	return e.label, e.client
}

// Len is the number of configured proxies.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Direct returns the unproxied client, used for chain RPC.
func (p *Pool) Direct() *http.Client { return p.direct }

func newClient(cfg Config, proxyURL *url.URL) *http.Client {
	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, network, addr)
		},
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		TLSHandshakeTimeout: cfg.TLSHandshakeTimeout,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		ForceAttemptHTTP2:   true,
	}
	if proxyURL != nil {
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	return &http.Client{Transport: transport, Timeout: cfg.Timeout}
}
