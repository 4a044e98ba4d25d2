// Package crawler walks the paginated comment listing of one forum target.
//
// # Architecture
//
// A Crawler is a session object built once per run by New. Its
// collaborators are injected as options: the Getter that performs requests,
// an optional Leaser for proxy rotation, the Sink that persists each page,
// and a Recorder for metrics. Sleeps, the clock and jitter are injectable
// too, so a crawl can be driven deterministically in tests.
//
// # Page cycle
//
// Each page is fetched once (the Getter retries transport errors), parsed
// with ParseListing and classified as a model.PageResult. The page number
// always advances. A page with matching comments resets the empty-page
// counter; every other outcome increments it. With a Leaser, a page the
// forum refuses (403, 407, 429) rotates the proxy and is counted on a
// separate blocked-page counter instead.
//
// # Stopping
//
// A crawl stops when:
//   - the empty-page counter reaches its limit (exhausted)
//   - the blocked-page counter reaches its limit (failed)
//   - at least 100 comments are held and the last one is dated a year back (wraparound)
//   - the optional page bound is reached (max_pages)
//   - the context ends (cancelled)
//
// # Proxy budget
//
// With a Leaser, one lease serves a bounded number of pages. A transport
// failure or a refused page ends the lease early and reports it through
// MarkFailed. Each
// rotation pauses longer when the lease produced records.
//
// # Usage
//
//	c := crawler.New(crawler.WithLeaser(pool), crawler.WithSink(store))
//	res, err := c.Crawl(ctx, "601360")
package crawler
