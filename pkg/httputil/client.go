// Package httputil builds tuned *http.Client/*http.Transport instances for
// outbound calls to the Outlook/Graph REST surface. Trimmed from
// pkg/httputil/worker_http_client.go down to the one profile this repo
// actually needs (OutlookClientConfig's conservative connection limits,
// since Graph enforces stricter per-app throttling than e.g. Gmail) plus
// the builder that turns it into a client.
package httputil

import (
	"net"
	"net/http"
	"time"
)

// ClientConfig tunes the transport's connection pooling and timeouts.
type ClientConfig struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration
	DialTimeout         time.Duration
	TLSHandshakeTimeout time.Duration
	ResponseTimeout     time.Duration
	KeepAliveInterval   time.Duration
}

// OutlookClientConfig is conservative relative to other API profiles the
// teacher tuned (Gmail, OpenAI) since Graph enforces stricter per-app
// throttling.
func OutlookClientConfig() ClientConfig {
	return ClientConfig{
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 20,
		MaxConnsPerHost:     50,
		IdleConnTimeout:     90 * time.Second,
		DialTimeout:         10 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		ResponseTimeout:     45 * time.Second,
		KeepAliveInterval:   30 * time.Second,
	}
}

// NewClient builds an *http.Client with a dedicated transport per cfg —
// one instance is shared across every pool handle's oauth2-wrapped client,
// since they all talk to the same Graph host and benefit from one shared
// connection pool rather than one per handle.
func NewClient(cfg ClientConfig) *http.Client {
	dialer := &net.Dialer{Timeout: cfg.DialTimeout, KeepAlive: cfg.KeepAliveInterval}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ForceAttemptHTTP2:     true,
		ResponseHeaderTimeout: cfg.ResponseTimeout,
	}

	return &http.Client{Transport: transport, Timeout: cfg.ResponseTimeout}
}
