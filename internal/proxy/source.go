package proxy

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"
)

// Lease is a proxy assigned to the crawler by a Pool.
type Lease struct {
	// Addr is the proxy's host:port.
	Addr string

	// URL is the full proxy URL, possibly with credentials in its userinfo.
	URL *url.URL

	// AcquiredAt is when the pool fetched this proxy from its source.
	AcquiredAt time.Time
}

// String returns the proxy URL with credentials removed.
func (l *Lease) String() string {
	if l == nil || l.URL == nil {
		return "direct"
	}
	return l.URL.Redacted()
}

// ProxyURL returns the lease URL, or nil for a nil lease.
func (l *Lease) ProxyURL() *url.URL {
	if l == nil {
		return nil
	}
	return l.URL
}

// Source hands out proxy URLs. Each call may return a different proxy.
type Source interface {
	Fetch(ctx context.Context) (*url.URL, error)
}

// StaticSource rotates through a fixed list of proxy URLs.
type StaticSource struct {
	mu   sync.Mutex
	urls []*url.URL
	next int
}

// NewStaticSource validates every raw URL and returns a round-robin source.
func NewStaticSource(raw []string) (*StaticSource, error) {
	if len(raw) == 0 {
		return nil, ErrNoProxyAvailable
	}
	urls := make([]*url.URL, 0, len(raw))
	for _, r := range raw {
		u, err := ParseURL(r)
		if err != nil {
			return nil, fmt.Errorf("failed to parse proxy %q: %w", redactRaw(r), err)
		}
		urls = append(urls, u)
	}
	return &StaticSource{urls: urls}, nil
}

// Fetch returns the next proxy in the list.
func (s *StaticSource) Fetch(_ context.Context) (*url.URL, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.urls[s.next%len(s.urls)]
	s.next++
	clone := *u
	return &clone, nil
}

// Len returns the number of configured proxies.
func (s *StaticSource) Len() int {
	return len(s.urls)
}

func redactRaw(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.User != nil {
		return u.Redacted()
	}
	return raw
}
