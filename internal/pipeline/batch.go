package pipeline

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/nao1215/gubacrawl/internal/config"
	"github.com/nao1215/gubacrawl/internal/crawler"
	"github.com/nao1215/gubacrawl/internal/model"
)

// BatchProcessor crawls many targets one at a time, in groups separated by
// a randomized pause.
type BatchProcessor struct {
	pipelineFactory func() *Pipeline
	batchSize       int
	minDelay        time.Duration
	maxDelay        time.Duration
	sleep           crawler.Sleeper
	now             func() time.Time
	rnd             *rand.Rand
	onRun           func(*model.RunSummary)
	logger          *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets the logger.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithBatchSize sets how many targets run before a pause.
func WithBatchSize(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

// WithBatchDelay sets the bounds of the pause between batches.
func WithBatchDelay(minDelay, maxDelay time.Duration) BatchOption {
	return func(b *BatchProcessor) {
		b.minDelay, b.maxDelay = minDelay, maxDelay
	}
}

// WithBatchSleeper replaces the pause implementation.
func WithBatchSleeper(s crawler.Sleeper) BatchOption {
	return func(b *BatchProcessor) {
		if s != nil {
			b.sleep = s
		}
	}
}

// WithBatchClock sets the clock used for fresh run summaries.
func WithBatchClock(now func() time.Time) BatchOption {
	return func(b *BatchProcessor) {
		if now != nil {
			b.now = now
		}
	}
}

// WithBatchRand sets the random source of the pause jitter.
func WithBatchRand(r *rand.Rand) BatchOption {
	return func(b *BatchProcessor) {
		if r != nil {
			b.rnd = r
		}
	}
}

// WithOnRun registers a callback invoked after each target with its summary.
func WithOnRun(fn func(*model.RunSummary)) BatchOption {
	return func(b *BatchProcessor) {
		b.onRun = fn
	}
}

// NewBatchProcessor creates a BatchProcessor. pipelineFactory is called for
// each target so no step state leaks between targets.
func NewBatchProcessor(pipelineFactory func() *Pipeline, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: pipelineFactory,
		batchSize:       config.DefaultBatchSize,
		minDelay:        config.DefaultMinBatchDelay,
		maxDelay:        config.DefaultMaxBatchDelay,
		sleep:           crawler.Sleep,
		now:             time.Now,
		rnd:             rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), //nolint:gosec // jitter only
	}
	for _, opt := range opts {
		opt(bp)
	}
	if bp.logger == nil {
		bp.logger = slog.Default()
	}
	return bp
}

// Process runs every target in order and returns one summary per target
// that was started. A failing target is logged and the batch continues.
// The returned error is the context's error when ctx ended early.
func (bp *BatchProcessor) Process(ctx context.Context, targetIDs []string) ([]*model.RunSummary, error) {
	batches := (len(targetIDs) + bp.batchSize - 1) / bp.batchSize
	bp.logger.Info("starting batch processing",
		"total_targets", len(targetIDs),
		"batch_size", bp.batchSize,
		"batches", batches,
	)
	startTime := bp.now()

	summaries := make([]*model.RunSummary, 0, len(targetIDs))
	for b := 0; b < batches; b++ {
		lo := b * bp.batchSize
		hi := min(lo+bp.batchSize, len(targetIDs))

		bp.logger.Info("starting batch", "batch", b+1, "of", batches, "targets", targetIDs[lo:hi])
		for i := lo; i < hi; i++ {
			id := targetIDs[i]
			if err := ctx.Err(); err != nil {
				return summaries, err
			}

			bp.logger.Info("processing target", "target", id, "index", i+1, "total", len(targetIDs))
			run := NewTargetRun(id, bp.now())
			err := bp.pipelineFactory().Execute(ctx, run)
			summaries = append(summaries, run.Summary)
			if bp.onRun != nil {
				bp.onRun(run.Summary)
			}
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return summaries, ctxErr
				}
				bp.logger.Warn("target failed", "target", id, "error", err)
				continue
			}
			bp.logger.Info("target completed",
				"target", id,
				"stop_reason", string(run.Summary.StopReason),
				"records", run.Summary.Records,
			)
		}

		if b < batches-1 {
			d := bp.jitter()
			bp.logger.Info("pausing between batches", "delay", d.Round(time.Second))
			if err := bp.sleep(ctx, d); err != nil {
				return summaries, err
			}
		}
	}

	bp.logger.Info("batch processing complete",
		"total_targets", len(targetIDs),
		"elapsed", bp.now().Sub(startTime).Round(time.Millisecond),
	)
	return summaries, nil
}

func (bp *BatchProcessor) jitter() time.Duration {
	if bp.maxDelay <= bp.minDelay {
		return bp.minDelay
	}
	return bp.minDelay + time.Duration(bp.rnd.Int64N(int64(bp.maxDelay-bp.minDelay)+1))
}
