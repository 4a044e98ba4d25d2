package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/gubacrawl/internal/model"
)

// TargetRun is the state one target carries through a pipeline.
type TargetRun struct {
	TargetID string

	// Summary starts as an empty summary and is replaced by the crawler's.
	Summary *model.RunSummary

	// Comments holds the records collected by the crawl step.
	Comments []model.Comment

	// Skipped is set when a step decided the target needs no crawl.
	Skipped bool
}

// NewTargetRun prepares the state for one target.
func NewTargetRun(targetID string, now time.Time) *TargetRun {
	return &TargetRun{
		TargetID: targetID,
		Summary:  model.NewRunSummary(targetID, now),
	}
}

// Step is one stage of a target's pipeline.
type Step interface {
	// Do runs the step. A returned error stops the remaining regular steps.
	Do(ctx context.Context, run *TargetRun) error

	// Name identifies the step in logs.
	Name() string
}

// Pipeline runs steps for one target.
type Pipeline struct {
	steps      []Step
	finalSteps []Step
	logger     *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// New creates an empty Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddSteps appends regular steps.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// AddFinalSteps appends steps that run after the regular ones regardless of
// their outcome. They get a context that is not cancelled with the parent.
func (p *Pipeline) AddFinalSteps(steps ...Step) {
	p.finalSteps = append(p.finalSteps, steps...)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, 0, len(p.steps)+len(p.finalSteps))
	for _, s := range p.steps {
		names = append(names, s.Name())
	}
	for _, s := range p.finalSteps {
		names = append(names, s.Name())
	}
	return names
}

// Execute runs the pipeline for run and returns the first error of a
// regular step, or the context error when ctx ended between steps.
// Errors of final steps are logged only.
func (p *Pipeline) Execute(ctx context.Context, run *TargetRun) error {
	err := p.runSteps(ctx, run)
	if err != nil && run.Summary != nil && run.Summary.Error == "" {
		run.Summary.Error = err.Error()
	}

	final := context.WithoutCancel(ctx)
	for _, step := range p.finalSteps {
		if ferr := step.Do(final, run); ferr != nil {
			p.logger.Error("final step failed", "step", step.Name(), "target", run.TargetID, "error", ferr)
		}
	}
	return err
}

func (p *Pipeline) runSteps(ctx context.Context, run *TargetRun) error {
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("pipeline cancelled", "step", step.Name(), "target", run.TargetID, "reason", err)
			if run.Summary != nil && run.Summary.StopReason == "" {
				run.Summary.StopReason = model.StopCancelled
			}
			return err
		}

		p.logger.Debug("executing step", "step", step.Name(), "target", run.TargetID)
		if err := step.Do(ctx, run); err != nil {
			p.logger.Error("step failed", "step", step.Name(), "target", run.TargetID, "error", err)
			return err
		}
		if run.Skipped {
			return nil
		}
	}
	return nil
}
