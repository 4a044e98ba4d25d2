package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultRefetchInterval is the minimum time between two source fetches.
const DefaultRefetchInterval = 10 * time.Second

// Pool hands out proxy leases while honoring a minimum re-fetch interval
// towards its Source. Within the interval every Lease call returns the same
// proxy; after it, Lease fetches a fresh one. Pool is safe for concurrent use.
type Pool struct {
	mu       sync.Mutex
	source   Source
	limiter  *rate.Limiter
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger

	probe        bool
	probeTimeout time.Duration

	current *Lease
	stats   PoolStats
}

// PoolStats counts source fetches.
type PoolStats struct {
	Fetches      int
	FetchErrors  int
	Throttled    int
	MarkedFailed int
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithRefetchInterval sets the minimum time between source fetches.
func WithRefetchInterval(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) PoolOption {
	return func(p *Pool) {
		if now != nil {
			p.now = now
		}
	}
}

// WithLogger sets the pool's logger.
func WithLogger(logger *slog.Logger) PoolOption {
	return func(p *Pool) {
		p.logger = logger
	}
}

// WithProbe makes the pool reject fetched proxies that do not accept a TCP
// connection within timeout.
func WithProbe(timeout time.Duration) PoolOption {
	return func(p *Pool) {
		p.probe = true
		p.probeTimeout = timeout
	}
}

// NewPool creates a pool over source.
func NewPool(source Source, opts ...PoolOption) *Pool {
	p := &Pool{
		source:       source,
		interval:     DefaultRefetchInterval,
		now:          time.Now,
		probeTimeout: 3 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.limiter = rate.NewLimiter(rate.Every(p.interval), 1)
	return p
}

// Lease returns the current proxy, fetching a new one first when the
// re-fetch interval has elapsed. A failed fetch keeps the previous lease.
// ErrNoProxyAvailable means there is no proxy at all; callers should back
// off and try again.
func (p *Pool) Lease(ctx context.Context) (*Lease, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.limiter.AllowN(p.now(), 1) {
		if err := p.refresh(ctx); err != nil && p.current == nil {
			return nil, fmt.Errorf("%w: %w", ErrNoProxyAvailable, err)
		}
	} else {
		p.stats.Throttled++
	}

	if p.current == nil {
		return nil, ErrNoProxyAvailable
	}
	return p.current, nil
}

// MarkFailed drops the current lease and fetches a replacement if the
// re-fetch interval allows. Otherwise it returns ErrRefetchTooSoon and the
// next Lease after the interval fetches.
func (p *Pool) MarkFailed(ctx context.Context) (*Lease, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.MarkedFailed++
	if p.current != nil {
		p.logger.Info("proxy marked failed", "proxy", p.current.String())
	}
	p.current = nil

	if !p.limiter.AllowN(p.now(), 1) {
		p.stats.Throttled++
		return nil, ErrRefetchTooSoon
	}
	if err := p.refresh(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoProxyAvailable, err)
	}
	return p.current, nil
}

// Stats returns a snapshot of the fetch counters.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// refresh fetches one proxy from the source and makes it current.
// The caller holds p.mu.
func (p *Pool) refresh(ctx context.Context) error {
	p.stats.Fetches++
	u, err := p.source.Fetch(ctx)
	if err != nil {
		p.stats.FetchErrors++
		p.logger.Warn("failed to fetch proxy", "error", err)
		return err
	}

	if p.probe {
		if status := Probe(ctx, u.Host, p.probeTimeout); status != StatusOK {
			p.stats.FetchErrors++
			p.logger.Warn("fetched proxy failed probe", "proxy", u.Redacted(), "status", status.String())
			return status.Error()
		}
	}

	p.current = &Lease{Addr: u.Host, URL: u, AcquiredAt: p.now()}
	p.logger.Info("leased new proxy", "proxy", p.current.String())
	return nil
}
