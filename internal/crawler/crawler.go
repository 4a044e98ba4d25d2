package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"

	"github.com/nao1215/gubacrawl/internal/config"
	"github.com/nao1215/gubacrawl/internal/fetch"
	"github.com/nao1215/gubacrawl/internal/model"
	"github.com/nao1215/gubacrawl/internal/proxy"
)

// Leaser hands out proxy leases. *proxy.Pool implements it.
type Leaser interface {
	Lease(ctx context.Context) (*proxy.Lease, error)
	MarkFailed(ctx context.Context) (*proxy.Lease, error)
}

// Sink persists the comments of one successful page.
type Sink interface {
	Append(targetID string, comments []model.Comment) error
}

// Getter performs a listing request. *fetch.Fetcher implements it.
type Getter interface {
	Get(ctx context.Context, rawURL string, proxyURL *url.URL) (*fetch.Response, error)
}

// Recorder observes crawl progress, typically for metrics.
type Recorder interface {
	PageFetched(targetID string, outcome model.PageOutcome)
	RecordsPersisted(targetID string, n int)
	PersistFailed(targetID string)
	ProxyRotated(reason string)
	CrawlFinished(targetID string, reason model.StopReason)
}

// TargetOverrides returns per-target settings. *config.File implements it.
type TargetOverrides interface {
	GetTargetConfig(targetID string) config.TargetConfig
}

// Sleeper pauses for d or until ctx ends.
type Sleeper func(ctx context.Context, d time.Duration) error

// Rotation reasons reported to the Recorder.
const (
	RotationBudget  = "budget"
	RotationFailed  = "failed"
	RotationBlocked = "blocked"
)

// blockedStatus holds the statuses that mean the forum refuses the proxy.
var blockedStatus = map[int]bool{
	http.StatusForbidden:         true,
	http.StatusProxyAuthRequired: true,
	http.StatusTooManyRequests:   true,
}

// Crawler is a crawl session. It is built once per run and crawls one
// target at a time; it is not safe for concurrent Crawl calls.
type Crawler struct {
	baseURL   string
	fetcher   Getter
	leaser    Leaser
	sink      Sink
	recorder  Recorder
	overrides TargetOverrides
	logger    *slog.Logger

	startPage            int
	maxPages             int
	emptyPageLimit       int
	blockedPageLimit     int
	wraparoundMinRecords int
	pagesPerLease        int

	pageDelay         delayRange
	rotationDelay     delayRange
	idleRotationDelay delayRange
	noProxyBackoff    time.Duration

	now   func() time.Time
	sleep Sleeper
	rnd   *rand.Rand
}

type delayRange struct {
	min, max time.Duration
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithBaseURL sets the forum host.
func WithBaseURL(u string) Option {
	return func(c *Crawler) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithFetcher sets the request performer.
func WithFetcher(g Getter) Option {
	return func(c *Crawler) {
		c.fetcher = g
	}
}

// WithLeaser enables proxy rotation through l.
func WithLeaser(l Leaser) Option {
	return func(c *Crawler) {
		c.leaser = l
	}
}

// WithSink sets where each page's comments are persisted.
func WithSink(s Sink) Option {
	return func(c *Crawler) {
		c.sink = s
	}
}

// WithRecorder sets the progress observer.
func WithRecorder(r Recorder) Option {
	return func(c *Crawler) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithTargetOverrides applies per-target start page and page bound.
func WithTargetOverrides(o TargetOverrides) Option {
	return func(c *Crawler) {
		c.overrides = o
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithStartPage sets the first page to fetch.
func WithStartPage(page int) Option {
	return func(c *Crawler) {
		if page > 0 {
			c.startPage = page
		}
	}
}

// WithMaxPages bounds the pages fetched per crawl. Zero means unbounded.
func WithMaxPages(n int) Option {
	return func(c *Crawler) {
		c.maxPages = n
	}
}

// WithEmptyPageLimit sets how many consecutive pages without records end a crawl.
func WithEmptyPageLimit(n int) Option {
	return func(c *Crawler) {
		if n > 0 {
			c.emptyPageLimit = n
		}
	}
}

// WithBlockedPageLimit sets how many consecutive refused pages end a crawl
// that rotates proxies.
func WithBlockedPageLimit(n int) Option {
	return func(c *Crawler) {
		if n > 0 {
			c.blockedPageLimit = n
		}
	}
}

// WithWraparoundMinRecords sets the record count that arms the wraparound check.
func WithWraparoundMinRecords(n int) Option {
	return func(c *Crawler) {
		if n > 0 {
			c.wraparoundMinRecords = n
		}
	}
}

// WithPagesPerLease sets the page budget of one proxy lease.
func WithPagesPerLease(n int) Option {
	return func(c *Crawler) {
		c.pagesPerLease = n
	}
}

// WithPageDelay sets the jittered pause after a page with records.
func WithPageDelay(minDelay, maxDelay time.Duration) Option {
	return func(c *Crawler) {
		c.pageDelay = delayRange{minDelay, maxDelay}
	}
}

// WithRotationDelay sets the pause after a lease that served a page with records.
func WithRotationDelay(minDelay, maxDelay time.Duration) Option {
	return func(c *Crawler) {
		c.rotationDelay = delayRange{minDelay, maxDelay}
	}
}

// WithIdleRotationDelay sets the pause after a lease that served no records.
func WithIdleRotationDelay(minDelay, maxDelay time.Duration) Option {
	return func(c *Crawler) {
		c.idleRotationDelay = delayRange{minDelay, maxDelay}
	}
}

// WithNoProxyBackoff sets the pause after the leaser had no proxy.
func WithNoProxyBackoff(d time.Duration) Option {
	return func(c *Crawler) {
		c.noProxyBackoff = d
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Crawler) {
		if now != nil {
			c.now = now
		}
	}
}

// WithSleeper replaces the context-aware sleep.
func WithSleeper(s Sleeper) Option {
	return func(c *Crawler) {
		if s != nil {
			c.sleep = s
		}
	}
}

// WithRand makes delay jitter reproducible.
func WithRand(r *rand.Rand) Option {
	return func(c *Crawler) {
		if r != nil {
			c.rnd = r
		}
	}
}

// New creates a crawl session with the default limits.
func New(opts ...Option) *Crawler {
	c := &Crawler{
		baseURL:              config.DefaultBaseURL,
		recorder:             nopRecorder{},
		logger:               slog.Default(),
		startPage:            1,
		emptyPageLimit:       config.DefaultEmptyPageLimit,
		blockedPageLimit:     config.DefaultBlockedPageLimit,
		wraparoundMinRecords: config.DefaultWraparoundMinRecords,
		pagesPerLease:        config.DefaultPagesPerProxy,
		pageDelay:            delayRange{config.DefaultMinPageDelay, config.DefaultMaxPageDelay},
		rotationDelay:        delayRange{config.DefaultMinRotationDelay, config.DefaultMaxRotationDelay},
		idleRotationDelay:    delayRange{config.DefaultMinIdleRotationDelay, config.DefaultMaxIdleRotationDelay},
		noProxyBackoff:       config.DefaultNoProxyBackoff,
		now:                  time.Now,
		sleep:                Sleep,
		rnd:                  rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), //nolint:gosec // jitter only
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.fetcher == nil {
		c.fetcher = fetch.New(fetch.WithLogger(c.logger))
	}
	return c
}

// FromConfig translates cfg into crawler options. Collaborators (fetcher,
// leaser, sink, recorder) are added by the caller.
func FromConfig(cfg *config.Config) []Option {
	opts := []Option{
		WithBaseURL(cfg.BaseURL),
		WithStartPage(cfg.StartPage),
		WithMaxPages(cfg.MaxPages),
		WithEmptyPageLimit(cfg.EmptyPageLimit),
		WithWraparoundMinRecords(cfg.WraparoundMinRecords),
		WithPageDelay(cfg.MinPageDelay, cfg.MaxPageDelay),
		WithRotationDelay(cfg.MinRotationDelay, cfg.MaxRotationDelay),
		WithIdleRotationDelay(cfg.MinIdleRotationDelay, cfg.MaxIdleRotationDelay),
		WithNoProxyBackoff(cfg.NoProxyBackoff),
		WithPagesPerLease(cfg.Proxy.PagesPerLease),
	}
	if cfg.TargetOverrides != nil {
		opts = append(opts, WithTargetOverrides(cfg.TargetOverrides))
	}
	return opts
}

// Result is what one crawl gathered.
type Result struct {
	// Comments holds every matching comment in page-fetch order.
	Comments []model.Comment
	Summary  *model.RunSummary
}

// leaseState tracks the proxy budget of the lease in use.
type leaseState struct {
	lease     *proxy.Lease
	pages     int
	successes int
}

// Crawl walks the target's listing pages until the listing wraps around to
// last year, runs dry, hits the page bound or ctx ends. Page failures never
// abort the crawl. The returned error is non-nil only for an invalid target
// id or a cancelled context; the comments gathered so far are returned
// either way.
func (c *Crawler) Crawl(ctx context.Context, targetID string) (*Result, error) {
	summary := model.NewRunSummary(targetID, c.now())
	result := &Result{Summary: summary}

	id, err := model.NormalizeTargetID(targetID)
	if err != nil {
		summary.StopReason = model.StopFailed
		summary.Error = err.Error()
		summary.FinishedAt = c.now()
		return result, err
	}
	summary.TargetID = id

	startPage, maxPages := c.startPage, c.maxPages
	if c.overrides != nil {
		tc := c.overrides.GetTargetConfig(id)
		if tc.StartPage > 0 {
			startPage = tc.StartPage
		}
		if tc.MaxPages > 0 {
			maxPages = tc.MaxPages
		}
	}
	summary.StartPage = startPage

	logger := c.logger.With("target", id, "run_id", summary.RunID)
	logger.Info("crawl started", "start_page", startPage, "max_pages", maxPages, "proxy", c.leaser != nil)

	cur := newCursor(id, startPage, summary.StartedAt)
	var ls leaseState

	reason, err := c.run(ctx, logger, cur, &ls, summary, maxPages)
	result.Comments = cur.comments
	summary.StopReason = reason
	summary.FinishedAt = c.now()
	if err != nil {
		summary.Error = err.Error()
	}
	c.recorder.CrawlFinished(id, reason)

	logger.Info("crawl finished",
		"stop_reason", string(reason),
		"pages", summary.PagesFetched,
		"records", summary.Records,
		"last_page", summary.LastPage,
		"rotations", summary.ProxyRotations,
		"duration", summary.Duration().Round(time.Millisecond),
	)
	return result, err
}

// run is the page fetch cycle.
func (c *Crawler) run(ctx context.Context, logger *slog.Logger, cur *cursor, ls *leaseState, summary *model.RunSummary, maxPages int) (model.StopReason, error) {
	for {
		if err := ctx.Err(); err != nil {
			return model.StopCancelled, err
		}

		if c.leaser != nil && ls.lease == nil {
			lease, err := c.acquire(ctx, logger)
			if err != nil {
				return model.StopCancelled, err
			}
			*ls = leaseState{lease: lease}
		}

		page := c.fetchPage(ctx, cur.targetID, cur.page, ls.lease)
		if ctxErr := ctx.Err(); ctxErr != nil && page.Outcome == model.OutcomeTransportFailure {
			return model.StopCancelled, ctxErr
		}

		summary.RecordPage(page)
		c.recorder.PageFetched(cur.targetID, page.Outcome)
		ls.pages++
		c.logPage(logger, page, ls.lease)

		blocked := c.leaser != nil && page.Outcome == model.OutcomeHTTPFailure && blockedStatus[page.StatusCode]
		cur.record(page, blocked)

		if page.Outcome == model.OutcomeSuccess {
			ls.successes++
			c.persist(logger, cur.targetID, page.Comments, summary)
			if err := c.sleep(ctx, c.jitter(c.pageDelay)); err != nil {
				return model.StopCancelled, err
			}

			wrapped, err := cur.wrappedAround(c.wraparoundMinRecords)
			if err != nil {
				logger.Warn("cannot date last comment", "update_time", cur.comments[len(cur.comments)-1].UpdateTime, "error", err)
			}
			if wrapped {
				return model.StopWraparound, nil
			}
		} else if cur.exhausted(c.emptyPageLimit) {
			return model.StopExhausted, nil
		} else if cur.blocked(c.blockedPageLimit) {
			summary.Error = fmt.Sprintf("refused on %d consecutive pages", cur.blockedPages)
			return model.StopFailed, nil
		}

		if maxPages > 0 && summary.PagesFetched >= maxPages {
			return model.StopMaxPages, nil
		}

		if err := c.maybeRotate(ctx, logger, ls, page, summary); err != nil {
			return model.StopCancelled, err
		}
	}
}

// fetchPage performs one page cycle and classifies its outcome.
func (c *Crawler) fetchPage(ctx context.Context, targetID string, page int, lease *proxy.Lease) model.PageResult {
	pageURL := PageURL(c.baseURL, targetID, page)

	resp, err := c.fetcher.Get(ctx, pageURL, lease.ProxyURL())
	if err != nil {
		var statusErr *fetch.StatusError
		if errors.As(err, &statusErr) {
			return model.HTTPFailureResult(page, pageURL, statusErr.StatusCode, err)
		}
		return model.TransportFailureResult(page, pageURL, err)
	}

	comments, err := ParseListing(resp.Body, pageURL, targetID)
	if err != nil {
		return model.ParseFailureResult(page, pageURL, err)
	}
	return model.SuccessResult(page, pageURL, comments)
}

// persist hands comments to the sink. Failures are logged and counted only.
func (c *Crawler) persist(logger *slog.Logger, targetID string, comments []model.Comment, summary *model.RunSummary) {
	if c.sink == nil {
		return
	}
	if err := c.sink.Append(targetID, comments); err != nil {
		summary.PersistErrors++
		c.recorder.PersistFailed(targetID)
		logger.Error("failed to persist comments", "count", len(comments), "error", err)
		return
	}
	c.recorder.RecordsPersisted(targetID, len(comments))
}

// acquire leases a proxy, backing off while none is available.
func (c *Crawler) acquire(ctx context.Context, logger *slog.Logger) (*proxy.Lease, error) {
	for {
		lease, err := c.leaser.Lease(ctx)
		if err == nil {
			return lease, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.Warn("no proxy available", "backoff", c.noProxyBackoff, "error", err)
		if err := c.sleep(ctx, c.noProxyBackoff); err != nil {
			return nil, err
		}
	}
}

// maybeRotate ends the lease after a transport failure, a refused page or
// when its page budget is spent, pausing longer when the lease served
// records. The first two report the proxy through MarkFailed.
func (c *Crawler) maybeRotate(ctx context.Context, logger *slog.Logger, ls *leaseState, page model.PageResult, summary *model.RunSummary) error {
	if c.leaser == nil {
		return nil
	}

	reason := ""
	switch {
	case page.Outcome == model.OutcomeTransportFailure:
		reason = RotationFailed
	case page.Outcome == model.OutcomeHTTPFailure && blockedStatus[page.StatusCode]:
		reason = RotationBlocked
	case c.pagesPerLease > 0 && ls.pages >= c.pagesPerLease:
		reason = RotationBudget
	default:
		return nil
	}

	delay := c.jitter(c.idleRotationDelay)
	if ls.successes > 0 {
		delay = c.jitter(c.rotationDelay)
	}
	summary.ProxyRotations++
	c.recorder.ProxyRotated(reason)
	logger.Info("rotating proxy", "reason", reason, "proxy", ls.lease.String(), "pages", ls.pages, "successes", ls.successes, "pause", delay.Round(time.Millisecond))

	if err := c.sleep(ctx, delay); err != nil {
		return err
	}

	if reason == RotationBudget {
		*ls = leaseState{}
		return nil
	}

	next, err := c.leaser.MarkFailed(ctx)
	if err != nil {
		logger.Debug("no replacement proxy yet", "error", err)
		*ls = leaseState{}
		return nil
	}
	*ls = leaseState{lease: next}
	return nil
}

func (c *Crawler) logPage(logger *slog.Logger, page model.PageResult, lease *proxy.Lease) {
	attrs := []any{"page", page.Page, "outcome", page.Outcome.String(), "proxy", lease.String()}
	switch page.Outcome {
	case model.OutcomeSuccess:
		logger.Info("page fetched", append(attrs, "comments", len(page.Comments))...)
	case model.OutcomeEmpty:
		logger.Info("page has no matching comments", attrs...)
	case model.OutcomeHTTPFailure:
		logger.Warn("page failed", append(attrs, "status", page.StatusCode, "error", page.Err)...)
	default:
		logger.Warn("page failed", append(attrs, "error", page.Err)...)
	}
}

// jitter returns a uniform duration in [r.min, r.max].
func (c *Crawler) jitter(r delayRange) time.Duration {
	if r.max <= r.min {
		return r.min
	}
	return r.min + time.Duration(c.rnd.Int64N(int64(r.max-r.min)+1))
}

// Sleep waits for d or until ctx ends.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type nopRecorder struct{}

func (nopRecorder) PageFetched(string, model.PageOutcome)  {}
func (nopRecorder) RecordsPersisted(string, int)           {}
func (nopRecorder) PersistFailed(string)                   {}
func (nopRecorder) ProxyRotated(string)                    {}
func (nopRecorder) CrawlFinished(string, model.StopReason) {}
