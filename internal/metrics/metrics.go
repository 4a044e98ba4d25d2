// Package metrics exposes crawl counters in the Prometheus format.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nao1215/gubacrawl/internal/model"
	"github.com/nao1215/gubacrawl/internal/proxy"
)

const namespace = "gubacrawl"

// Metrics holds the crawl collectors on a private registry. It satisfies
// crawler.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	pages         *prometheus.CounterVec
	records       *prometheus.CounterVec
	persistErrors *prometheus.CounterVec
	rotations     *prometheus.CounterVec
	crawls        *prometheus.CounterVec
	retries       prometheus.Counter
	crawlDuration prometheus.Histogram
	recordsPerRun prometheus.Histogram
}

// New registers every collector on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		pages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_total",
			Help:      "Listing pages fetched, by target and outcome.",
		}, []string{"target", "outcome"}),
		records: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_persisted_total",
			Help:      "Comments handed to the record store.",
		}, []string{"target"}),
		persistErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_errors_total",
			Help:      "Pages whose comments could not be stored.",
		}, []string{"target"}),
		rotations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proxy_rotations_total",
			Help:      "Proxy lease rotations, by reason.",
		}, []string{"reason"}),
		crawls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crawls_total",
			Help:      "Finished crawls, by target and stop reason.",
		}, []string{"target", "reason"}),
		retries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_retries_total",
			Help:      "Request attempts repeated after a transport error.",
		}),
		crawlDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "crawl_duration_seconds",
			Help:      "Wall time of one crawl.",
			Buckets:   []float64{10, 30, 60, 300, 900, 1800, 3600, 7200},
		}),
		recordsPerRun: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "records_per_crawl",
			Help:      "Comments collected by one crawl.",
			Buckets:   prometheus.ExponentialBuckets(10, 4, 7),
		}),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) PageFetched(targetID string, outcome model.PageOutcome) {
	m.pages.WithLabelValues(targetID, outcome.String()).Inc()
}

func (m *Metrics) RecordsPersisted(targetID string, n int) {
	m.records.WithLabelValues(targetID).Add(float64(n))
}

func (m *Metrics) PersistFailed(targetID string) {
	m.persistErrors.WithLabelValues(targetID).Inc()
}

func (m *Metrics) ProxyRotated(reason string) {
	m.rotations.WithLabelValues(reason).Inc()
}

func (m *Metrics) CrawlFinished(targetID string, reason model.StopReason) {
	m.crawls.WithLabelValues(targetID, string(reason)).Inc()
}

// FetchRetried counts one retried request. Its signature fits fetch.RetryHook.
func (m *Metrics) FetchRetried(_ int, _ time.Duration, _ error) {
	m.retries.Inc()
}

// ObserveRun records the duration and size of a finished run. Skipped runs
// are not observed.
func (m *Metrics) ObserveRun(s *model.RunSummary) {
	if s == nil || s.StopReason == model.StopSkipped {
		return
	}
	m.crawlDuration.Observe(s.Duration().Seconds())
	m.recordsPerRun.Observe(float64(s.Records))
}

// WatchProxyPool exposes the fetch counters of a proxy pool. Call it at most
// once per Metrics.
func (m *Metrics) WatchProxyPool(stats func() proxy.PoolStats) {
	f := promauto.With(m.registry)
	for _, c := range []struct {
		name, help string
		get        func(proxy.PoolStats) int
	}{
		{"proxy_fetches_total", "Proxies requested from the proxy source.", func(s proxy.PoolStats) int { return s.Fetches }},
		{"proxy_fetch_errors_total", "Proxy source requests that failed or returned an unusable proxy.", func(s proxy.PoolStats) int { return s.FetchErrors }},
		{"proxy_throttled_total", "Lease and MarkFailed calls inside the re-fetch interval.", func(s proxy.PoolStats) int { return s.Throttled }},
		{"proxy_marked_failed_total", "Proxies reported broken by the crawler.", func(s proxy.PoolStats) int { return s.MarkedFailed }},
	} {
		f.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      c.name,
			Help:      c.help,
		}, func() float64 { return float64(c.get(stats())) })
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ListenAndServe serves /metrics on addr until ctx ends.
func (m *Metrics) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return m.Serve(ctx, ln)
}

// Serve serves /metrics on ln until ctx ends, then shuts down gracefully.
func (m *Metrics) Serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down metrics server: %w", err)
		}
		return nil
	}
}
