package model

import (
	"time"

	"github.com/google/uuid"
)

// StopReason explains why a crawl ended.
type StopReason string

const (
	// StopWraparound means the crawl walked back a full year of listings.
	StopWraparound StopReason = "wraparound"

	// StopExhausted means too many consecutive pages yielded no records.
	StopExhausted StopReason = "exhausted"

	// StopMaxPages means the configured page bound was reached.
	StopMaxPages StopReason = "max_pages"

	// StopCancelled means the context was cancelled (signal or timeout).
	StopCancelled StopReason = "cancelled"

	// StopSkipped means batch mode found complete data and did not crawl.
	StopSkipped StopReason = "skipped"

	// StopFailed means the target could not be crawled at all.
	StopFailed StopReason = "failed"
)

// RunSummary describes one crawl of one target.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	TargetID   string    `json:"target_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	StartPage  int       `json:"start_page"`
	LastPage   int       `json:"last_page"`

	// PagesFetched counts terminal page outcomes.
	PagesFetched int `json:"pages_fetched"`

	// Outcomes counts pages per PageOutcome label.
	Outcomes map[string]int `json:"outcomes"`

	Records        int        `json:"records"`
	PersistErrors  int        `json:"persist_errors"`
	ProxyRotations int        `json:"proxy_rotations"`
	StopReason     StopReason `json:"stop_reason"`
	OutputFile     string     `json:"output_file,omitempty"`
	Error          string     `json:"error,omitempty"`
}

// NewRunSummary starts a summary with a fresh run id.
func NewRunSummary(targetID string, startedAt time.Time) *RunSummary {
	return &RunSummary{
		RunID:     uuid.NewString(),
		TargetID:  targetID,
		StartedAt: startedAt,
		Outcomes:  make(map[string]int, len(PageOutcomes)),
	}
}

// RecordPage counts one terminal page outcome.
func (s *RunSummary) RecordPage(r PageResult) {
	s.PagesFetched++
	s.LastPage = r.Page
	s.Outcomes[r.Outcome.String()]++
	s.Records += len(r.Comments)
}

// Duration returns the wall time of the run.
func (s *RunSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// OutcomeCount returns the number of pages with the given outcome.
func (s *RunSummary) OutcomeCount(o PageOutcome) int {
	return s.Outcomes[o.String()]
}
