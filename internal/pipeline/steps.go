package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nao1215/gubacrawl/internal/config"
	"github.com/nao1215/gubacrawl/internal/crawler"
	"github.com/nao1215/gubacrawl/internal/model"
)

// RowStore is the part of the record store the skip check needs.
type RowStore interface {
	Count(targetID string) (int, error)
	Reset(targetID string) error
	Path(targetID string) string
}

// SkipCompleteStep skips targets whose record file already holds enough
// rows. A partial file is removed first when reset is enabled.
type SkipCompleteStep struct {
	store     RowStore
	threshold int
	reset     bool
	logger    *slog.Logger
}

// SkipCompleteOption configures a SkipCompleteStep.
type SkipCompleteOption func(*SkipCompleteStep)

// WithThreshold sets the row count that marks a target complete.
func WithThreshold(n int) SkipCompleteOption {
	return func(s *SkipCompleteStep) {
		if n > 0 {
			s.threshold = n
		}
	}
}

// WithResetIncomplete controls whether partial files are removed.
func WithResetIncomplete(reset bool) SkipCompleteOption {
	return func(s *SkipCompleteStep) {
		s.reset = reset
	}
}

// WithSkipLogger sets the logger.
func WithSkipLogger(logger *slog.Logger) SkipCompleteOption {
	return func(s *SkipCompleteStep) {
		s.logger = logger
	}
}

// NewSkipCompleteStep creates the step with the default threshold and reset on.
func NewSkipCompleteStep(store RowStore, opts ...SkipCompleteOption) *SkipCompleteStep {
	s := &SkipCompleteStep{
		store:     store,
		threshold: config.DefaultCompleteRowThreshold,
		reset:     true,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *SkipCompleteStep) Name() string {
	return "skip_complete"
}

// Do checks the record file of run.TargetID.
func (s *SkipCompleteStep) Do(_ context.Context, run *TargetRun) error {
	n, err := s.store.Count(run.TargetID)
	if err != nil {
		return fmt.Errorf("failed to count existing rows: %w", err)
	}
	run.Summary.OutputFile = s.store.Path(run.TargetID)

	if n >= s.threshold {
		s.logger.Info("target already crawled, skipping", "target", run.TargetID, "rows", n)
		run.Skipped = true
		run.Summary.StopReason = model.StopSkipped
		run.Summary.Records = n
		run.Summary.FinishedAt = run.Summary.StartedAt
		return nil
	}
	if n > 0 && s.reset {
		s.logger.Info("removing incomplete record file", "target", run.TargetID, "rows", n)
		if err := s.store.Reset(run.TargetID); err != nil {
			return fmt.Errorf("failed to reset incomplete file: %w", err)
		}
	}
	return nil
}

// Crawler runs one crawl.
type Crawler interface {
	Crawl(ctx context.Context, targetID string) (*crawler.Result, error)
}

// CrawlStep crawls the target and keeps the crawler's summary.
type CrawlStep struct {
	crawler    Crawler
	outputPath func(targetID string) string
}

// CrawlStepOption configures a CrawlStep.
type CrawlStepOption func(*CrawlStep)

// WithOutputPath names the record file of a target in the summary.
func WithOutputPath(fn func(targetID string) string) CrawlStepOption {
	return func(s *CrawlStep) {
		s.outputPath = fn
	}
}

// NewCrawlStep creates the crawl step.
func NewCrawlStep(c Crawler, opts ...CrawlStepOption) *CrawlStep {
	s := &CrawlStep{crawler: c}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return "crawl"
}

// Do runs the crawl. The summary is kept even when the crawl ends with an
// error, with the output file carried over from earlier steps.
func (s *CrawlStep) Do(ctx context.Context, run *TargetRun) error {
	res, err := s.crawler.Crawl(ctx, run.TargetID)
	if res != nil {
		if res.Summary != nil {
			switch {
			case s.outputPath != nil:
				res.Summary.OutputFile = s.outputPath(run.TargetID)
			case run.Summary != nil && res.Summary.OutputFile == "":
				res.Summary.OutputFile = run.Summary.OutputFile
			}
			run.Summary = res.Summary
		}
		run.Comments = res.Comments
	}
	if err != nil {
		return fmt.Errorf("failed to crawl %s: %w", run.TargetID, err)
	}
	return nil
}

// RunSaver stores run summaries.
type RunSaver interface {
	SaveRun(ctx context.Context, s *model.RunSummary) error
}

// RecordRunStep writes the run summary to the history database.
type RecordRunStep struct {
	history RunSaver
}

// NewRecordRunStep creates the history step.
func NewRecordRunStep(history RunSaver) *RecordRunStep {
	return &RecordRunStep{history: history}
}

// Name returns the step name.
func (s *RecordRunStep) Name() string {
	return "record_run"
}

// Do saves run.Summary.
func (s *RecordRunStep) Do(ctx context.Context, run *TargetRun) error {
	if run.Summary == nil {
		return nil
	}
	if err := s.history.SaveRun(ctx, run.Summary); err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}
