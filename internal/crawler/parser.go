package crawler

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/gubacrawl/internal/model"
)

// listingRowSelector selects one post row of a listing page.
const listingRowSelector = "li.defaultlist table.default_list tbody.listbody tr.listitem"

// ErrNotHTML is returned for a body without a single markup tag.
var ErrNotHTML = errors.New("response body is not an html document")

// digitRun finds the embedded numeric id of a post link such as
// "/news,601360,1234567890.html".
var digitRun = regexp.MustCompile(`[0-9]+`)

var htmlTag = regexp.MustCompile(`<[a-zA-Z!/]`)

// Row is one parsed listing row before target filtering.
type Row struct {
	// ID is the first decimal run of the row link's href.
	ID      string
	Comment model.Comment
}

// ParseListing parses a listing page and returns the comments whose row id
// equals targetID, in page order. Rows without a usable link are skipped.
func ParseListing(body []byte, pageURL, targetID string) ([]model.Comment, error) {
	rows, err := ParseRows(body, pageURL)
	if err != nil {
		return nil, err
	}

	comments := make([]model.Comment, 0, len(rows))
	for _, r := range rows {
		if r.ID == targetID {
			comments = append(comments, r.Comment)
		}
	}
	return comments, nil
}

// ParseRows returns every listing row with an id, whatever its target.
func ParseRows(body []byte, pageURL string) ([]Row, error) {
	if !htmlTag.Match(body) {
		return nil, ErrNotHTML
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing: %w", err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		base = nil
	}

	var rows []Row
	doc.Find(listingRowSelector).Each(func(_ int, s *goquery.Selection) {
		link := s.Find("div.title > a").First()
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		id := digitRun.FindString(href)
		if id == "" {
			return
		}
		rows = append(rows, Row{
			ID: id,
			Comment: model.Comment{
				Title:      cleanText(link.Text()),
				UpdateTime: cleanText(s.Find("div.update").First().Text()),
				ReadCount:  cleanText(s.Find("div.read").First().Text()),
				ReplyCount: cleanText(s.Find("div.reply").First().Text()),
				Author:     cleanText(s.Find("div.author > a").First().Text()),
				PostURL:    resolveURL(base, href),
			},
		})
	})
	return rows, nil
}

// cleanText collapses the whitespace runs that listing cells are padded with.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// resolveURL makes href absolute against the page URL.
func resolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return u.String()
	}
	return base.ResolveReference(u).String()
}
