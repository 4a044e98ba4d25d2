package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nao1215/gubacrawl/internal/model"
	"github.com/nao1215/gubacrawl/internal/proxy"
)

func TestMetrics_Counters(t *testing.T) {
	t.Parallel()

	m := New()
	m.PageFetched("601360", model.OutcomeSuccess)
	m.PageFetched("601360", model.OutcomeSuccess)
	m.PageFetched("601360", model.OutcomeEmpty)
	m.RecordsPersisted("601360", 80)
	m.PersistFailed("601360")
	m.ProxyRotated("budget")
	m.ProxyRotated("failed")
	m.ProxyRotated("budget")
	m.CrawlFinished("601360", model.StopExhausted)
	m.FetchRetried(1, 2*time.Second, nil)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"success pages", testutil.ToFloat64(m.pages.WithLabelValues("601360", model.OutcomeSuccess.String())), 2},
		{"empty pages", testutil.ToFloat64(m.pages.WithLabelValues("601360", model.OutcomeEmpty.String())), 1},
		{"records", testutil.ToFloat64(m.records.WithLabelValues("601360")), 80},
		{"persist errors", testutil.ToFloat64(m.persistErrors.WithLabelValues("601360")), 1},
		{"budget rotations", testutil.ToFloat64(m.rotations.WithLabelValues("budget")), 2},
		{"failed rotations", testutil.ToFloat64(m.rotations.WithLabelValues("failed")), 1},
		{"crawls", testutil.ToFloat64(m.crawls.WithLabelValues("601360", "exhausted")), 1},
		{"retries", testutil.ToFloat64(m.retries), 1},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestMetrics_ObserveRun(t *testing.T) {
	t.Parallel()

	m := New()
	start := time.Date(2024, time.January, 10, 12, 0, 0, 0, time.UTC)
	s := model.NewRunSummary("601360", start)
	s.FinishedAt = start.Add(time.Minute)
	s.Records = 120
	s.StopReason = model.StopWraparound
	m.ObserveRun(s)

	skipped := model.NewRunSummary("600000", start)
	skipped.StopReason = model.StopSkipped
	m.ObserveRun(skipped)
	m.ObserveRun(nil)

	if n := testutil.CollectAndCount(m.crawlDuration); n != 1 {
		t.Fatalf("expected one histogram, got %d", n)
	}
	body := scrape(t, m.Handler())
	if !strings.Contains(body, "gubacrawl_crawl_duration_seconds_count 1") {
		t.Errorf("expected one observed run in:\n%s", body)
	}
	if !strings.Contains(body, "gubacrawl_records_per_crawl_sum 120") {
		t.Errorf("expected 120 records in:\n%s", body)
	}
}

func TestMetrics_WatchProxyPool(t *testing.T) {
	t.Parallel()

	m := New()
	stats := proxy.PoolStats{Fetches: 4, FetchErrors: 1, Throttled: 7, MarkedFailed: 2}
	m.WatchProxyPool(func() proxy.PoolStats { return stats })

	body := scrape(t, m.Handler())
	for _, want := range []string{
		"gubacrawl_proxy_fetches_total 4",
		"gubacrawl_proxy_fetch_errors_total 1",
		"gubacrawl_proxy_throttled_total 7",
		"gubacrawl_proxy_marked_failed_total 2",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in:\n%s", want, body)
		}
	}
}

func TestMetrics_Handler(t *testing.T) {
	t.Parallel()

	m := New()
	m.PageFetched("601360", model.OutcomeParseFailure)

	body := scrape(t, m.Handler())
	for _, want := range []string{
		`gubacrawl_pages_total{outcome="parse_failure",target="601360"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in output", want)
		}
	}
}

func TestMetrics_Serve(t *testing.T) {
	t.Parallel()

	m := New()
	m.ProxyRotated("budget")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), `gubacrawl_proxy_rotations_total{reason="budget"} 1`) {
		t.Errorf("unexpected body:\n%s", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	return rec.Body.String()
}
