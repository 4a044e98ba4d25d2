package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/nao1215/gubacrawl/internal/proxy"
)

// DefaultMaxBodySize limits the bytes read from one response.
const DefaultMaxBodySize = 5 * 1024 * 1024

// ErrTransport marks connection-level failures (dial, TLS, timeout, reset).
var ErrTransport = errors.New("transport error")

// ErrUnexpectedStatus matches every *StatusError.
var ErrUnexpectedStatus = errors.New("unexpected http status")

// StatusError is returned for a response whose status is not 200.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected http status %d for %s", e.StatusCode, e.URL)
}

// Is makes errors.Is(err, ErrUnexpectedStatus) true for any StatusError.
func (e *StatusError) Is(target error) bool {
	return target == ErrUnexpectedStatus
}

// Response is a fully read 200 response.
type Response struct {
	URL        string
	StatusCode int
	Body       []byte

	// Attempts is how many attempts the request took.
	Attempts int
}

// ClientFunc builds the HTTP client used for a proxy URL (nil for direct).
type ClientFunc func(proxyURL *url.URL) (*http.Client, error)

// RetryHook observes each retry: the retry number, the pause before it and
// the error that caused it.
type RetryHook func(n int, delay time.Duration, cause error)

// Fetcher performs GET requests with randomized headers through an optional
// proxy, retrying transport errors according to its Policy. Non-200 responses
// are returned as *StatusError without retrying.
type Fetcher struct {
	policy      Policy
	headers     *HeaderPool
	timeout     time.Duration
	maxBodySize int64
	newClient   ClientFunc
	onRetry     RetryHook
	logger      *slog.Logger

	mu        sync.Mutex
	clientKey string
	client    *http.Client
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithPolicy sets the retry policy.
func WithPolicy(p Policy) Option {
	return func(f *Fetcher) {
		f.policy = p
	}
}

// WithHeaderPool sets the header pool.
func WithHeaderPool(h *HeaderPool) Option {
	return func(f *Fetcher) {
		if h != nil {
			f.headers = h
		}
	}
}

// WithTimeout sets the per-attempt timeout of clients built by the default ClientFunc.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithMaxBodySize limits the bytes read per response. Zero keeps the default.
func WithMaxBodySize(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBodySize = n
		}
	}
}

// WithClientFunc replaces how clients are built for a proxy URL.
func WithClientFunc(fn ClientFunc) Option {
	return func(f *Fetcher) {
		if fn != nil {
			f.newClient = fn
		}
	}
}

// WithRetryHook registers a retry observer.
func WithRetryHook(hook RetryHook) Option {
	return func(f *Fetcher) {
		f.onRetry = hook
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// New creates a Fetcher with DefaultPolicy and proxy.NewHTTPClient clients.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		policy:      DefaultPolicy(),
		timeout:     10 * time.Second,
		maxBodySize: DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.headers == nil {
		f.headers = NewHeaderPool()
	}
	if f.newClient == nil {
		timeout := f.timeout
		f.newClient = func(proxyURL *url.URL) (*http.Client, error) {
			return proxy.NewHTTPClient(proxyURL, timeout)
		}
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	return f
}

// Get fetches rawURL through proxyURL (nil for a direct connection).
//
// The returned error wraps ErrTransport when every attempt failed at the
// connection level, is a *StatusError for a non-200 status, or is the
// context's error when ctx ended.
func (f *Fetcher) Get(ctx context.Context, rawURL string, proxyURL *url.URL) (*Response, error) {
	client, err := f.clientFor(proxyURL)
	if err != nil {
		return nil, err
	}

	var (
		out       *Response
		lastCause error
	)
	err = f.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		resp, err := f.do(ctx, client, rawURL)
		if err != nil {
			lastCause = err
			return err
		}
		resp.Attempts = attempt
		out = resp
		return nil
	}, func(n int, d time.Duration) {
		f.logger.Debug("retrying request", "url", rawURL, "retry", n, "delay", d, "error", lastCause)
		if f.onRetry != nil {
			f.onRetry(n, d, lastCause)
		}
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return out, nil
}

// do performs a single attempt. Transport failures are marked retryable.
func (f *Fetcher) do(ctx context.Context, client *http.Client, rawURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	f.headers.Apply(req)

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, Retryable(fmt.Errorf("%w: %w", ErrTransport, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: rawURL}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, Retryable(fmt.Errorf("%w: failed to read body: %w", ErrTransport, err))
	}

	return &Response{URL: rawURL, StatusCode: resp.StatusCode, Body: body}, nil
}

// clientFor returns a client for proxyURL, reusing the previous one when
// the proxy has not changed.
func (f *Fetcher) clientFor(proxyURL *url.URL) (*http.Client, error) {
	key := "direct"
	if proxyURL != nil {
		key = proxyURL.String()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.client != nil && f.clientKey == key {
		return f.client, nil
	}

	client, err := f.newClient(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("failed to build http client: %w", err)
	}
	if f.client != nil {
		f.client.CloseIdleConnections()
	}
	f.client = client
	f.clientKey = key
	return client, nil
}
