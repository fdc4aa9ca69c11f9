// Package transport owns the outbound connection pool shared by every chain
// client for the lifetime of a scan.
package transport

import (
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

type Options struct {
	ConnectTimeout time.Duration // dial timeout, default 10s
	RequestTimeout time.Duration // whole request incl. body, default 15s
	MaxConns       int           // per-host connection cap, default 10
	UserAgent      string
}

// Closer is notified before idle connections are dropped, e.g. the governor,
// so no new permits are issued once the pool is gone.
type Closer interface {
	Close()
}

type Pool struct {
	client    *http.Client
	transport *http.Transport
	userAgent string

	mu      sync.Mutex
	closers []Closer
	once    sync.Once
	closed  atomic.Bool
	closes  atomic.Int32
}

func New(o Options) *Pool {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 15 * time.Second
	}
	if o.MaxConns <= 0 {
		o.MaxConns = 10
	}
	if o.UserAgent == "" {
		o.UserAgent = "Research-Tool/1.0"
	}
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: o.ConnectTimeout, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        100,
		MaxConnsPerHost:     o.MaxConns,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: o.ConnectTimeout,
	}
	return &Pool{
		client:    &http.Client{Timeout: o.RequestTimeout, Transport: tr},
		transport: tr,
		userAgent: o.UserAgent,
	}
}

// Client returns the shared client. It must not be used after Close.
func (p *Pool) Client() *http.Client { return p.client }

func (p *Pool) UserAgent() string { return p.userAgent }

// Timeout is the total per-request budget.
func (p *Pool) Timeout() time.Duration { return p.client.Timeout }

// OnClose registers c to be closed before the pool releases its connections.
func (p *Pool) OnClose(c Closer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closers = append(p.closers, c)
}

// Close is safe to call from every exit path; only the first call acts.
func (p *Pool) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		closers := p.closers
		p.mu.Unlock()
		for _, c := range closers {
			c.Close()
		}
		p.transport.CloseIdleConnections()
		p.closed.Store(true)
		p.closes.Add(1)
	})
}

func (p *Pool) Closed() bool { return p.closed.Load() }

// CloseCount reports how many times the pool was actually torn down (0 or 1).
func (p *Pool) CloseCount() int { return int(p.closes.Load()) }
