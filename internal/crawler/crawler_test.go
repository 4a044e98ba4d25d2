package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/gubacrawl/internal/config"
	"github.com/nao1215/gubacrawl/internal/fetch"
	"github.com/nao1215/gubacrawl/internal/model"
	"github.com/nao1215/gubacrawl/internal/proxy"
)

const target = "601360"

var testNow = time.Date(2024, time.January, 10, 12, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingSleeper returns immediately and remembers every pause.
type recordingSleeper struct {
	mu     sync.Mutex
	pauses []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pauses = append(s.pauses, d)
	return ctx.Err()
}

func (s *recordingSleeper) within(lo, hi time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, d := range s.pauses {
		if d >= lo && d <= hi {
			n++
		}
	}
	return n
}

// memorySink keeps appended comments.
type memorySink struct {
	mu       sync.Mutex
	calls    int
	comments []model.Comment
	err      error
}

func (s *memorySink) Append(_ string, comments []model.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return s.err
	}
	s.comments = append(s.comments, comments...)
	return nil
}

// pageGetter answers requests from a per-page script. Pages without a script
// entry are empty listings.
type pageGetter struct {
	mu      sync.Mutex
	pages   map[int]func() (*fetch.Response, error)
	proxies []string
	urls    []string
}

func (g *pageGetter) Get(_ context.Context, rawURL string, proxyURL *url.URL) (*fetch.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.urls = append(g.urls, rawURL)
	if proxyURL == nil {
		g.proxies = append(g.proxies, "direct")
	} else {
		g.proxies = append(g.proxies, proxyURL.Host)
	}

	page := pageNumber(rawURL)
	if fn, ok := g.pages[page]; ok {
		return fn()
	}
	return &fetch.Response{URL: rawURL, StatusCode: http.StatusOK, Body: []byte(listingHTML())}, nil
}

func pageNumber(rawURL string) int {
	var page int
	if _, err := fmt.Sscanf(rawURL[strings.LastIndex(rawURL, "_")+1:], "%d.html", &page); err != nil || !strings.Contains(rawURL, "_") {
		return 1
	}
	return page
}

func okPage(rows ...fixtureRow) func() (*fetch.Response, error) {
	return func() (*fetch.Response, error) {
		return &fetch.Response{StatusCode: http.StatusOK, Body: []byte(listingHTML(rows...))}, nil
	}
}

func transportFailure() (*fetch.Response, error) {
	return nil, fmt.Errorf("%w: connection reset", fetch.ErrTransport)
}

// rowsDated returns n target rows starting at first and going back step per row.
func rowsDated(first time.Time, step time.Duration, from, n int) []fixtureRow {
	rows := make([]fixtureRow, 0, n)
	for i := from; i < from+n; i++ {
		d := first.Add(-time.Duration(i) * step)
		rows = append(rows, row(target, fmt.Sprintf("post %d", i), d.Format("01-02 15:04")))
	}
	return rows
}

// fakeLeaser hands out 10.0.0.1, 10.0.0.2, ... and records calls.
type fakeLeaser struct {
	mu          sync.Mutex
	next        int
	leases      int
	markFailed  int
	failLeases  int
	markFailErr error
}

func (l *fakeLeaser) newLease() *proxy.Lease {
	l.next++
	u := &url.URL{Scheme: "http", Host: fmt.Sprintf("10.0.0.%d:8080", l.next)}
	return &proxy.Lease{Addr: u.Host, URL: u, AcquiredAt: testNow}
}

func (l *fakeLeaser) Lease(_ context.Context) (*proxy.Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.leases++
	if l.failLeases > 0 {
		l.failLeases--
		return nil, proxy.ErrNoProxyAvailable
	}
	return l.newLease(), nil
}

func (l *fakeLeaser) MarkFailed(_ context.Context) (*proxy.Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.markFailed++
	if l.markFailErr != nil {
		return nil, l.markFailErr
	}
	return l.newLease(), nil
}

func newTestCrawler(getter Getter, sleeper *recordingSleeper, opts ...Option) *Crawler {
	base := []Option{
		WithBaseURL("https://guba.eastmoney.com"),
		WithFetcher(getter),
		WithSleeper(sleeper.Sleep),
		WithClock(func() time.Time { return testNow }),
		WithRand(rand.New(rand.NewPCG(1, 2))), //nolint:gosec // test
		WithLogger(quietLogger()),
	}
	return New(append(base, opts...)...)
}

func TestCrawler_Crawl(t *testing.T) {
	t.Parallel()

	t.Run("stops after five consecutive empty pages", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/list,601360.html" {
				fmt.Fprint(w, listingHTML(rowsDated(testNow, 12*time.Hour, 0, 10)...))
				return
			}
			fmt.Fprint(w, listingHTML())
		}))
		t.Cleanup(srv.Close)

		sleeper := &recordingSleeper{}
		sink := &memorySink{}
		c := New(
			WithBaseURL(srv.URL),
			WithFetcher(fetch.New(fetch.WithLogger(quietLogger()))),
			WithSink(sink),
			WithSleeper(sleeper.Sleep),
			WithClock(func() time.Time { return testNow }),
			WithLogger(quietLogger()),
		)

		res, err := c.Crawl(context.Background(), target)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(res.Comments) != 10 {
			t.Errorf("expected 10 comments, got %d", len(res.Comments))
		}
		s := res.Summary
		if s.StopReason != model.StopExhausted {
			t.Errorf("expected exhausted, got %s", s.StopReason)
		}
		if s.LastPage != 6 || s.PagesFetched != 6 {
			t.Errorf("expected to stop after page 6, got last=%d fetched=%d", s.LastPage, s.PagesFetched)
		}
		if s.OutcomeCount(model.OutcomeEmpty) != 5 {
			t.Errorf("expected 5 empty pages, got %d", s.OutcomeCount(model.OutcomeEmpty))
		}
		if sink.calls != 1 || len(sink.comments) != 10 {
			t.Errorf("expected one sink append of 10 comments, got %d calls and %d comments", sink.calls, len(sink.comments))
		}
		if sleeper.within(config.DefaultMinPageDelay, config.DefaultMaxPageDelay) != 1 {
			t.Errorf("expected one politeness pause, got %v", sleeper.pauses)
		}
	})

	t.Run("keeps comments in page order", func(t *testing.T) {
		t.Parallel()

		getter := &pageGetter{pages: map[int]func() (*fetch.Response, error){
			1: okPage(row(target, "a", "01-09 10:00"), row("600000", "x", "01-09 09:00"), row(target, "b", "01-09 08:00")),
			2: okPage(row(target, "c", "01-08 10:00")),
		}}
		c := newTestCrawler(getter, &recordingSleeper{})

		res, err := c.Crawl(context.Background(), target)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var titles []string
		for _, cm := range res.Comments {
			titles = append(titles, cm.Title)
		}
		if strings.Join(titles, ",") != "a,b,c" {
			t.Errorf("expected a,b,c, got %v", titles)
		}
	})

	t.Run("does not stop on 99 wrapped records", func(t *testing.T) {
		t.Parallel()

		getter := &pageGetter{pages: map[int]func() (*fetch.Response, error){
			1: okPage(rowsDated(testNow, 96*time.Hour, 0, 33)...),
			2: okPage(rowsDated(testNow, 96*time.Hour, 33, 33)...),
			3: okPage(rowsDated(testNow, 96*time.Hour, 66, 33)...),
		}}
		c := newTestCrawler(getter, &recordingSleeper{})

		res, err := c.Crawl(context.Background(), target)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(res.Comments) != 99 {
			t.Fatalf("expected 99 comments, got %d", len(res.Comments))
		}
		if res.Summary.StopReason != model.StopExhausted {
			t.Errorf("expected exhausted, got %s", res.Summary.StopReason)
		}
	})

	t.Run("stops on wraparound once 100 records are held", func(t *testing.T) {
		t.Parallel()

		pages := make(map[int]func() (*fetch.Response, error))
		for p := 1; p <= 10; p++ {
			pages[p] = okPage(rowsDated(testNow, 96*time.Hour, (p-1)*20, 20)...)
		}
		getter := &pageGetter{pages: pages}
		c := newTestCrawler(getter, &recordingSleeper{})

		res, err := c.Crawl(context.Background(), target)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Summary.StopReason != model.StopWraparound {
			t.Fatalf("expected wraparound, got %s", res.Summary.StopReason)
		}
		if len(res.Comments) != 100 || res.Summary.LastPage != 5 {
			t.Errorf("expected 100 comments after page 5, got %d after page %d", len(res.Comments), res.Summary.LastPage)
		}
	})

	t.Run("does not stop while the last record is within a year", func(t *testing.T) {
		t.Parallel()

		getter := &pageGetter{pages: map[int]func() (*fetch.Response, error){
			1: okPage(rowsDated(testNow, time.Hour, 0, 60)...),
			2: okPage(rowsDated(testNow, time.Hour, 60, 60)...),
		}}
		c := newTestCrawler(getter, &recordingSleeper{})

		res, err := c.Crawl(context.Background(), target)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Summary.StopReason != model.StopExhausted || len(res.Comments) != 120 {
			t.Errorf("expected exhausted with 120 comments, got %s with %d", res.Summary.StopReason, len(res.Comments))
		}
	})

	t.Run("pinned rows above the newest comment do not shift the year", func(t *testing.T) {
		t.Parallel()

		newest := time.Date(2024, time.January, 9, 12, 0, 0, 0, time.UTC)
		for _, pinned := range []string{"11-20 09:00", "03-01 09:00"} {
			pages := map[int]func() (*fetch.Response, error){
				1: okPage(append([]fixtureRow{row(target, "pinned", pinned)}, rowsDated(newest, 24*time.Hour, 0, 24)...)...),
			}
			for p := 2; p <= 5; p++ {
				pages[p] = okPage(rowsDated(newest, 24*time.Hour, 24+(p-2)*25, 25)...)
			}
			c := newTestCrawler(&pageGetter{pages: pages}, &recordingSleeper{})

			res, err := c.Crawl(context.Background(), target)
			if err != nil {
				t.Fatalf("pinned %s: unexpected error: %v", pinned, err)
			}
			if res.Summary.StopReason != model.StopExhausted || len(res.Comments) != 125 {
				t.Errorf("pinned %s: expected exhausted with 125 comments, got %s with %d",
					pinned, res.Summary.StopReason, len(res.Comments))
			}
		}
	})

	t.Run("failed pages advance and count as empty", func(t *testing.T) {
		t.Parallel()

		getter := &pageGetter{pages: map[int]func() (*fetch.Response, error){
			1: okPage(row(target, "a", "01-09 10:00")),
			2: func() (*fetch.Response, error) {
				return nil, &fetch.StatusError{StatusCode: http.StatusServiceUnavailable, URL: "x"}
			},
			3: transportFailure,
			4: func() (*fetch.Response, error) {
				return &fetch.Response{StatusCode: http.StatusOK, Body: []byte("blocked")}, nil
			},
			5: okPage(row(target, "b", "01-08 10:00")),
		}}
		c := newTestCrawler(getter, &recordingSleeper{})

		res, err := c.Crawl(context.Background(), target)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		s := res.Summary
		if s.LastPage != 10 {
			t.Errorf("expected last page 10, got %d", s.LastPage)
		}
		for outcome, want := range map[model.PageOutcome]int{
			model.OutcomeSuccess:          2,
			model.OutcomeHTTPFailure:      1,
			model.OutcomeTransportFailure: 1,
			model.OutcomeParseFailure:     1,
			model.OutcomeEmpty:            5,
		} {
			if got := s.OutcomeCount(outcome); got != want {
				t.Errorf("%s: expected %d, got %d", outcome, want, got)
			}
		}
		if len(getter.urls) != 10 {
			t.Errorf("expected each page fetched once, got %d requests", len(getter.urls))
		}
	})

	t.Run("five failures in a row exhaust the crawl", func(t *testing.T) {
		t.Parallel()

		pages := make(map[int]func() (*fetch.Response, error))
		for p := 1; p <= 10; p++ {
			pages[p] = transportFailure
		}
		c := newTestCrawler(&pageGetter{pages: pages}, &recordingSleeper{})

		res, err := c.Crawl(context.Background(), target)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Summary.StopReason != model.StopExhausted || res.Summary.LastPage != 5 {
			t.Errorf("expected exhausted after page 5, got %s after %d", res.Summary.StopReason, res.Summary.LastPage)
		}
	})

	t.Run("max pages bounds the crawl", func(t *testing.T) {
		t.Parallel()

		pages := make(map[int]func() (*fetch.Response, error))
		for p := 1; p <= 10; p++ {
			pages[p] = okPage(row(target, "a", "01-09 10:00"))
		}
		c := newTestCrawler(&pageGetter{pages: pages}, &recordingSleeper{}, WithMaxPages(3))

		res, err := c.Crawl(context.Background(), target)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Summary.StopReason != model.StopMaxPages || res.Summary.PagesFetched != 3 {
			t.Errorf("expected max_pages after 3 pages, got %s after %d", res.Summary.StopReason, res.Summary.PagesFetched)
		}
	})

	t.Run("persist errors are counted and do not stop the crawl", func(t *testing.T) {
		t.Parallel()

		getter := &pageGetter{pages: map[int]func() (*fetch.Response, error){
			1: okPage(row(target, "a", "01-09 10:00")),
			2: okPage(row(target, "b", "01-09 09:00")),
		}}
		sink := &memorySink{err: errors.New("disk full")}
		c := newTestCrawler(getter, &recordingSleeper{}, WithSink(sink))

		res, err := c.Crawl(context.Background(), target)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Summary.PersistErrors != 2 {
			t.Errorf("expected 2 persist errors, got %d", res.Summary.PersistErrors)
		}
		if len(res.Comments) != 2 {
			t.Errorf("expected comments to be kept in memory, got %d", len(res.Comments))
		}
	})

	t.Run("cancellation returns what was gathered", func(t *testing.T) {
		t.Parallel()

		getter := &pageGetter{pages: map[int]func() (*fetch.Response, error){
			1: okPage(row(target, "a", "01-09 10:00")),
			2: okPage(row(target, "b", "01-09 09:00")),
		}}
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sleeper := func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		}
		c := newTestCrawler(getter, &recordingSleeper{}, WithSleeper(sleeper))

		res, err := c.Crawl(ctx, target)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if res.Summary.StopReason != model.StopCancelled {
			t.Errorf("expected cancelled, got %s", res.Summary.StopReason)
		}
		if len(res.Comments) != 1 {
			t.Errorf("expected the first page's comment, got %d", len(res.Comments))
		}
	})

	t.Run("invalid target id is rejected", func(t *testing.T) {
		t.Parallel()

		c := newTestCrawler(&pageGetter{}, &recordingSleeper{})
		res, err := c.Crawl(context.Background(), "../601360")
		if !errors.Is(err, model.ErrInvalidTargetID) {
			t.Fatalf("expected ErrInvalidTargetID, got %v", err)
		}
		if res.Summary.StopReason != model.StopFailed {
			t.Errorf("expected failed, got %s", res.Summary.StopReason)
		}
	})

	t.Run("per-target overrides set the start page", func(t *testing.T) {
		t.Parallel()

		overrides := &config.File{Targets: map[string]config.TargetConfig{target: {StartPage: 3, MaxPages: 1}}}
		getter := &pageGetter{}
		c := newTestCrawler(getter, &recordingSleeper{}, WithTargetOverrides(overrides))

		res, err := c.Crawl(context.Background(), target)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(getter.urls) != 1 || getter.urls[0] != "https://guba.eastmoney.com/list,601360_3.html" {
			t.Errorf("expected a single request for page 3, got %v", getter.urls)
		}
		if res.Summary.StartPage != 3 || res.Summary.StopReason != model.StopMaxPages {
			t.Errorf("unexpected summary %+v", res.Summary)
		}
	})
}

func TestCrawler_ProxyRotation(t *testing.T) {
	t.Parallel()

	allPages := func(n int) map[int]func() (*fetch.Response, error) {
		pages := make(map[int]func() (*fetch.Response, error))
		for p := 1; p <= n; p++ {
			pages[p] = okPage(row(target, fmt.Sprintf("p%d", p), "01-09 10:00"))
		}
		return pages
	}

	t.Run("rotates after the page budget", func(t *testing.T) {
		t.Parallel()

		getter := &pageGetter{pages: allPages(10)}
		leaser := &fakeLeaser{}
		sleeper := &recordingSleeper{}
		c := newTestCrawler(getter, sleeper, WithLeaser(leaser), WithPagesPerLease(3), WithMaxPages(7))

		res, err := c.Crawl(context.Background(), target)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := "10.0.0.1:8080,10.0.0.1:8080,10.0.0.1:8080,10.0.0.2:8080,10.0.0.2:8080,10.0.0.2:8080,10.0.0.3:8080"
		if got := strings.Join(getter.proxies, ","); got != want {
			t.Errorf("unexpected proxies:\n got %s\nwant %s", got, want)
		}
		if leaser.leases != 3 || leaser.markFailed != 0 {
			t.Errorf("expected 3 leases and no failures, got %d and %d", leaser.leases, leaser.markFailed)
		}
		if res.Summary.ProxyRotations != 2 {
			t.Errorf("expected 2 rotations, got %d", res.Summary.ProxyRotations)
		}
		if n := sleeper.within(config.DefaultMinRotationDelay, config.DefaultMaxRotationDelay); n != 2 {
			t.Errorf("expected 2 long rotation pauses, got %d in %v", n, sleeper.pauses)
		}
	})

	t.Run("lease without records rotates with a short pause", func(t *testing.T) {
		t.Parallel()

		leaser := &fakeLeaser{}
		sleeper := &recordingSleeper{}
		c := newTestCrawler(&pageGetter{}, sleeper, WithLeaser(leaser), WithPagesPerLease(2), WithMaxPages(3))

		if _, err := c.Crawl(context.Background(), target); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n := sleeper.within(config.DefaultMinIdleRotationDelay, config.DefaultMaxIdleRotationDelay); n != 1 {
			t.Errorf("expected 1 short rotation pause, got %d in %v", n, sleeper.pauses)
		}
		if n := sleeper.within(config.DefaultMinRotationDelay, config.DefaultMaxRotationDelay); n != 0 {
			t.Errorf("expected no long rotation pause, got %d", n)
		}
	})

	t.Run("transport failure marks the proxy failed", func(t *testing.T) {
		t.Parallel()

		pages := allPages(3)
		pages[2] = transportFailure
		getter := &pageGetter{pages: pages}
		leaser := &fakeLeaser{}
		c := newTestCrawler(getter, &recordingSleeper{}, WithLeaser(leaser), WithMaxPages(3))

		if _, err := c.Crawl(context.Background(), target); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := "10.0.0.1:8080,10.0.0.1:8080,10.0.0.2:8080"
		if got := strings.Join(getter.proxies, ","); got != want {
			t.Errorf("unexpected proxies:\n got %s\nwant %s", got, want)
		}
		if leaser.leases != 1 || leaser.markFailed != 1 {
			t.Errorf("expected 1 lease and 1 failure, got %d and %d", leaser.leases, leaser.markFailed)
		}
	})

	t.Run("refetch too soon falls back to leasing", func(t *testing.T) {
		t.Parallel()

		pages := allPages(3)
		pages[1] = transportFailure
		getter := &pageGetter{pages: pages}
		leaser := &fakeLeaser{markFailErr: proxy.ErrRefetchTooSoon}
		c := newTestCrawler(getter, &recordingSleeper{}, WithLeaser(leaser), WithMaxPages(2))

		if _, err := c.Crawl(context.Background(), target); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if leaser.leases != 2 || leaser.markFailed != 1 {
			t.Errorf("expected 2 leases and 1 failure, got %d and %d", leaser.leases, leaser.markFailed)
		}
	})

	t.Run("backs off while no proxy is available", func(t *testing.T) {
		t.Parallel()

		leaser := &fakeLeaser{failLeases: 2}
		sleeper := &recordingSleeper{}
		c := newTestCrawler(&pageGetter{pages: allPages(1)}, sleeper, WithLeaser(leaser), WithMaxPages(1))

		if _, err := c.Crawl(context.Background(), target); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if leaser.leases != 3 {
			t.Errorf("expected 3 lease attempts, got %d", leaser.leases)
		}
		if n := sleeper.within(config.DefaultNoProxyBackoff, config.DefaultNoProxyBackoff); n != 2 {
			t.Errorf("expected 2 no-proxy backoffs, got %d in %v", n, sleeper.pauses)
		}
	})

	refused := func() (*fetch.Response, error) {
		return nil, &fetch.StatusError{StatusCode: http.StatusForbidden, URL: "x"}
	}

	t.Run("refused pages rotate the proxy", func(t *testing.T) {
		t.Parallel()

		pages := make(map[int]func() (*fetch.Response, error))
		for p := 1; p <= 10; p++ {
			pages[p] = refused
		}
		getter := &pageGetter{pages: pages}
		leaser := &fakeLeaser{}
		c := newTestCrawler(getter, &recordingSleeper{}, WithLeaser(leaser), WithBlockedPageLimit(4))

		res, err := c.Crawl(context.Background(), target)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := "10.0.0.1:8080,10.0.0.2:8080,10.0.0.3:8080,10.0.0.4:8080"
		if got := strings.Join(getter.proxies, ","); got != want {
			t.Errorf("unexpected proxies:\n got %s\nwant %s", got, want)
		}
		if leaser.leases != 1 || leaser.markFailed != 3 {
			t.Errorf("expected 1 lease and 3 failures, got %d and %d", leaser.leases, leaser.markFailed)
		}
		if res.Summary.StopReason != model.StopFailed || res.Summary.Error == "" {
			t.Errorf("expected failed with an error, got %s %q", res.Summary.StopReason, res.Summary.Error)
		}
		if res.Summary.ProxyRotations != 3 {
			t.Errorf("expected 3 rotations, got %d", res.Summary.ProxyRotations)
		}
	})

	t.Run("refused pages do not count as empty while rotating", func(t *testing.T) {
		t.Parallel()

		pages := map[int]func() (*fetch.Response, error){
			1: refused,
			2: refused,
			3: refused,
			4: okPage(row(target, "a", "01-09 10:00")),
		}
		leaser := &fakeLeaser{}
		c := newTestCrawler(&pageGetter{pages: pages}, &recordingSleeper{}, WithLeaser(leaser))

		res, err := c.Crawl(context.Background(), target)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Summary.StopReason != model.StopExhausted || len(res.Comments) != 1 {
			t.Errorf("expected exhausted with 1 comment, got %s with %d", res.Summary.StopReason, len(res.Comments))
		}
		if res.Summary.LastPage != 9 {
			t.Errorf("expected last page 9, got %d", res.Summary.LastPage)
		}
		if leaser.markFailed != 3 {
			t.Errorf("expected 3 failures, got %d", leaser.markFailed)
		}
	})

	t.Run("refused pages count as empty without a leaser", func(t *testing.T) {
		t.Parallel()

		pages := make(map[int]func() (*fetch.Response, error))
		for p := 1; p <= 10; p++ {
			pages[p] = refused
		}
		c := newTestCrawler(&pageGetter{pages: pages}, &recordingSleeper{})

		res, err := c.Crawl(context.Background(), target)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Summary.StopReason != model.StopExhausted || res.Summary.PagesFetched != 5 {
			t.Errorf("expected exhausted after 5 pages, got %s after %d", res.Summary.StopReason, res.Summary.PagesFetched)
		}
	})

	t.Run("without a leaser there are no rotation pauses", func(t *testing.T) {
		t.Parallel()

		getter := &pageGetter{pages: allPages(40)}
		sleeper := &recordingSleeper{}
		c := newTestCrawler(getter, sleeper, WithMaxPages(40))

		res, err := c.Crawl(context.Background(), target)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Summary.ProxyRotations != 0 {
			t.Errorf("expected no rotations, got %d", res.Summary.ProxyRotations)
		}
		for _, p := range getter.proxies {
			if p != "direct" {
				t.Fatalf("expected direct requests, got %s", p)
			}
		}
		if n := sleeper.within(time.Second, time.Hour); n != 0 {
			t.Errorf("expected only short pauses, got %v", sleeper.pauses)
		}
	})
}
