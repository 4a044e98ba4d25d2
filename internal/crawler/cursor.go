package crawler

import (
	"fmt"
	"strings"
	"time"

	"github.com/nao1215/gubacrawl/internal/model"
)

// PageURL returns the listing URL of a target page. Page 1 has no suffix;
// page N is "list,<id>_<N>.html".
func PageURL(baseURL, targetID string, page int) string {
	base := strings.TrimRight(baseURL, "/")
	if page <= 1 {
		return fmt.Sprintf("%s/list,%s.html", base, targetID)
	}
	return fmt.Sprintf("%s/list,%s_%d.html", base, targetID, page)
}

// cursor is the mutable state of one crawl run.
type cursor struct {
	targetID   string
	page       int
	emptyPages int
	// blockedPages counts consecutive pages refused while rotating proxies.
	blockedPages int
	comments     []model.Comment

	startedAt time.Time
	dates     *model.DateCorrector
	dated     bool
	lastDate  time.Time
	lastErr   error
}

func newCursor(targetID string, startPage int, startedAt time.Time) *cursor {
	if startPage < 1 {
		startPage = 1
	}
	return &cursor{
		targetID:  targetID,
		page:      startPage,
		startedAt: startedAt,
		dates:     model.NewDateCorrector(startedAt, model.DefaultDateWindow),
	}
}

// record applies one terminal page outcome and moves to the next page.
// Every outcome other than success counts as an empty page, except a blocked
// page, which is counted apart. Dating starts at the newest comment of the
// first page, so pinned rows above it are skipped.
func (c *cursor) record(r model.PageResult, blocked bool) {
	switch {
	case r.Outcome == model.OutcomeSuccess:
		c.emptyPages = 0
		c.blockedPages = 0
		c.comments = append(c.comments, r.Comments...)
		dated := r.Comments
		if !c.dated {
			dated = dated[model.NewestIndex(dated, c.startedAt):]
			c.dated = true
		}
		for _, cm := range dated {
			c.lastDate, c.lastErr = c.dates.Next(cm.UpdateTime)
		}
	case blocked:
		c.blockedPages++
	default:
		c.emptyPages++
		c.blockedPages = 0
	}
	c.page++
}

// exhausted reports whether limit consecutive pages yielded nothing.
func (c *cursor) exhausted(limit int) bool {
	return limit > 0 && c.emptyPages >= limit
}

// blocked reports whether limit consecutive pages were refused.
func (c *cursor) blocked(limit int) bool {
	return limit > 0 && c.blockedPages >= limit
}

// wrappedAround reports whether the listing has gone back a full year: at
// least minRecords comments are held and the last one is dated on or before
// the same day a year before the crawl started. An undatable last comment
// never stops the crawl; its error is returned for logging.
func (c *cursor) wrappedAround(minRecords int) (bool, error) {
	if len(c.comments) == 0 || len(c.comments) < minRecords {
		return false, nil
	}
	if c.lastErr != nil {
		return false, c.lastErr
	}
	return !c.lastDate.After(model.OneYearBefore(c.startedAt)), nil
}
