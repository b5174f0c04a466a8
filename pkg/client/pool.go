package client

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for the connection pool.
var (
	sumoPoolConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sumo_pool_connections",
		Help: "Number of connection handles tracked by the pool",
	})

	sumoPoolOverflowTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sumo_pool_overflow_total",
		Help: "Total number of temporary handles created because the pool was full",
	})

	sumoPoolEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sumo_pool_evictions_total",
		Help: "Total number of handles discarded after an I/O error",
	})
)

// Handle is a live connection to one host/port.
type Handle interface {
	Do(req *http.Request) (*http.Response, error)
	Close() error
}

// HandleFactory opens a new Handle for host and port.
type HandleFactory func(host, port string) (Handle, error)

// httpHandle is a dedicated http.Client holding a single keep-alive connection.
type httpHandle struct {
	client    *http.Client
	transport *http.Transport
}

func (h *httpHandle) Do(req *http.Request) (*http.Response, error) {
	return h.client.Do(req)
}

func (h *httpHandle) Close() error {
	h.transport.CloseIdleConnections()
	return nil
}

// NewHTTPHandleFactory returns the default HandleFactory.
// requestTimeout bounds a whole request, dialTimeout the TCP/TLS setup.
func NewHTTPHandleFactory(requestTimeout, dialTimeout time.Duration) HandleFactory {
	return func(host, port string) (Handle, error) {
		dialer := &net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: 30 * time.Second,
		}
		transport := &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         dialer.DialContext,
			MaxIdleConns:        1,
			MaxIdleConnsPerHost: 1,
			MaxConnsPerHost:     1,
			IdleConnTimeout:     30 * time.Second,
			TLSHandshakeTimeout: dialTimeout,
			ForceAttemptHTTP2:   false,
		}
		return &httpHandle{
			client:    &http.Client{Transport: transport, Timeout: requestTimeout},
			transport: transport,
		}, nil
	}
}

type pooledConn struct {
	host      string
	port      string
	handle    Handle
	inUse     bool
	temporary bool
}

// ConnectionPool caches reusable handles keyed by host/port. It never tracks
// more than maxConns handles; when all are busy a temporary handle is created
// instead of blocking the caller.
type ConnectionPool struct {
	mu       sync.Mutex
	conns    []*pooledConn
	maxConns int
	factory  HandleFactory
	logger   zerolog.Logger
}

// NewConnectionPool creates a pool with room for maxConns tracked handles.
func NewConnectionPool(maxConns int, factory HandleFactory, logger zerolog.Logger) *ConnectionPool {
	if maxConns <= 0 {
		maxConns = 10
	}
	return &ConnectionPool{
		maxConns: maxConns,
		factory:  factory,
		logger:   logger.With().Str("component", "connection-pool").Logger(),
	}
}

// WithConnection lends a handle for u's host to fn and takes it back afterwards.
// fn must only return connection-level errors: any error it returns
// invalidates the handle, which is then closed instead of reused.
func (p *ConnectionPool) WithConnection(u *url.URL, fn func(Handle) error) (err error) {
	pc, err := p.acquire(u)
	if err != nil {
		return err
	}
	defer func() {
		p.release(pc, err)
	}()
	return fn(pc.handle)
}

// Stats returns the number of tracked handles and how many are lent out.
func (p *ConnectionPool) Stats() (total, inUse int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.conns {
		if c.inUse {
			inUse++
		}
	}
	return len(p.conns), inUse
}

// CloseAll closes every tracked handle. Close errors are logged and skipped
// so that one bad handle never blocks shutdown.
func (p *ConnectionPool) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, c := range p.conns {
		if err := c.handle.Close(); err != nil {
			p.logger.Warn().
				Err(err).
				Str("host", c.host).
				Str("port", c.port).
				Msg("Error closing connection")
		}
	}
	p.conns = nil
	sumoPoolConnections.Set(0)
	return nil
}

func (p *ConnectionPool) acquire(u *url.URL) (*pooledConn, error) {
	host, port := hostPort(u)

	p.mu.Lock()
	for _, c := range p.conns {
		if !c.inUse && c.host == host && c.port == port {
			c.inUse = true
			p.mu.Unlock()
			return c, nil
		}
	}

	if len(p.conns) < p.maxConns {
		handle, err := p.factory(host, port)
		if err != nil {
			p.mu.Unlock()
			return nil, fmt.Errorf("open connection to %s:%s: %w", host, port, err)
		}
		c := &pooledConn{host: host, port: port, handle: handle, inUse: true}
		p.conns = append(p.conns, c)
		sumoPoolConnections.Set(float64(len(p.conns)))
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	handle, err := p.factory(host, port)
	if err != nil {
		return nil, fmt.Errorf("open temporary connection to %s:%s: %w", host, port, err)
	}
	sumoPoolOverflowTotal.Inc()
	p.logger.Debug().
		Str("host", host).
		Int("max_connections", p.maxConns).
		Msg("Pool exhausted, using temporary connection")
	return &pooledConn{host: host, port: port, handle: handle, inUse: true, temporary: true}, nil
}

func (p *ConnectionPool) release(c *pooledConn, useErr error) {
	if c.temporary {
		p.closeHandle(c)
		return
	}

	p.mu.Lock()
	idx := -1
	for i, tracked := range p.conns {
		if tracked == c {
			idx = i
			break
		}
	}

	switch {
	case idx < 0:
		// Dropped by CloseAll while lent out.
		p.mu.Unlock()
		p.closeHandle(c)
	case useErr != nil:
		p.conns = append(p.conns[:idx], p.conns[idx+1:]...)
		sumoPoolConnections.Set(float64(len(p.conns)))
		p.mu.Unlock()
		sumoPoolEvictionsTotal.Inc()
		p.logger.Debug().
			Err(useErr).
			Str("host", c.host).
			Msg("Evicting connection after I/O error")
		p.closeHandle(c)
	default:
		c.inUse = false
		p.mu.Unlock()
	}
}

func (p *ConnectionPool) closeHandle(c *pooledConn) {
	if err := c.handle.Close(); err != nil {
		p.logger.Warn().Err(err).Str("host", c.host).Msg("Error closing connection")
	}
}

func hostPort(u *url.URL) (string, string) {
	port := u.Port()
	if port == "" {
		if u.Scheme == "http" {
			port = "80"
		} else {
			port = "443"
		}
	}
	return u.Hostname(), port
}
