package model

import "fmt"

// PageOutcome classifies the terminal result of fetching one listing page.
type PageOutcome int

const (
	// OutcomeSuccess means the page produced at least one matching comment.
	OutcomeSuccess PageOutcome = iota

	// OutcomeEmpty means the page was fetched and parsed but no row matched
	// the target id.
	OutcomeEmpty

	// OutcomeTransportFailure means every attempt failed at the connection
	// level (dial, TLS, timeout, reset).
	OutcomeTransportFailure

	// OutcomeHTTPFailure means the server answered with a status other than
	// 200. These responses are not retried.
	OutcomeHTTPFailure

	// OutcomeParseFailure means a 200 response body could not be read as a
	// listing document.
	OutcomeParseFailure
)

// String returns the label used in logs, metrics and reports.
func (o PageOutcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeEmpty:
		return "empty"
	case OutcomeTransportFailure:
		return "transport_failure"
	case OutcomeHTTPFailure:
		return "http_failure"
	case OutcomeParseFailure:
		return "parse_failure"
	default:
		return "unknown"
	}
}

// Failed reports whether the page could not be fetched or parsed.
func (o PageOutcome) Failed() bool {
	return o == OutcomeTransportFailure || o == OutcomeHTTPFailure || o == OutcomeParseFailure
}

// PageOutcomes lists every outcome in declaration order.
var PageOutcomes = []PageOutcome{
	OutcomeSuccess, OutcomeEmpty, OutcomeTransportFailure, OutcomeHTTPFailure, OutcomeParseFailure,
}

// PageResult is the result of one page fetch cycle.
type PageResult struct {
	Page    int
	URL     string
	Outcome PageOutcome

	// Comments is non-empty only for OutcomeSuccess.
	Comments []Comment

	// StatusCode is set for OutcomeHTTPFailure.
	StatusCode int

	// Err carries the cause of a failure outcome.
	Err error
}

// SuccessResult builds the result of a page with matching comments.
// A page with no comments is reported as empty.
func SuccessResult(page int, url string, comments []Comment) PageResult {
	if len(comments) == 0 {
		return EmptyResult(page, url)
	}
	return PageResult{Page: page, URL: url, Outcome: OutcomeSuccess, Comments: comments}
}

// EmptyResult builds the result of a page without matching rows.
func EmptyResult(page int, url string) PageResult {
	return PageResult{Page: page, URL: url, Outcome: OutcomeEmpty}
}

// TransportFailureResult builds the result of a page whose retries were exhausted.
func TransportFailureResult(page int, url string, err error) PageResult {
	return PageResult{Page: page, URL: url, Outcome: OutcomeTransportFailure, Err: err}
}

// HTTPFailureResult builds the result of a non-200 response.
func HTTPFailureResult(page int, url string, status int, err error) PageResult {
	return PageResult{Page: page, URL: url, Outcome: OutcomeHTTPFailure, StatusCode: status, Err: err}
}

// ParseFailureResult builds the result of an unreadable listing body.
func ParseFailureResult(page int, url string, err error) PageResult {
	return PageResult{Page: page, URL: url, Outcome: OutcomeParseFailure, Err: err}
}

func (r PageResult) String() string {
	switch r.Outcome {
	case OutcomeSuccess:
		return fmt.Sprintf("page %d: %d comments", r.Page, len(r.Comments))
	case OutcomeHTTPFailure:
		return fmt.Sprintf("page %d: %s (status %d)", r.Page, r.Outcome, r.StatusCode)
	default:
		return fmt.Sprintf("page %d: %s", r.Page, r.Outcome)
	}
}
