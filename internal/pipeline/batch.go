package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of sites processed at once.
const DefaultConcurrency = 3

// BatchProcessor runs the pipeline for several sites concurrently.
// Each crawl already has its own worker pool, so site concurrency stays low.
type BatchProcessor struct {
	// pipelineFactory builds the pipeline of one job. Per-site settings
	// (cookies, patterns) make pipelines job specific.
	pipelineFactory func(job *Job) *Pipeline

	concurrency int
	logger      *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent jobs.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(pipelineFactory func(job *Job) *Pipeline, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: pipelineFactory,
		concurrency:     DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(bp)
	}
	if bp.logger == nil {
		bp.logger = slog.Default()
	}
	return bp
}

// ProcessBatch runs every job and returns them in input order. A failed
// job keeps its error on Job.Err and does not stop the others. Jobs not
// yet started when ctx is cancelled are left untouched; the context error
// is returned in that case.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, jobs []*Job) ([]*Job, error) {
	err := bp.ProcessBatchWithCallback(ctx, jobs, nil)
	return jobs, err
}

// ProcessBatchWithCallback runs every job and calls callback, when not
// nil, from the goroutine that finished the job.
func (bp *BatchProcessor) ProcessBatchWithCallback(ctx context.Context, jobs []*Job, callback func(job *Job, index int)) error {
	bp.logger.Info("starting batch processing",
		"total_sites", len(jobs),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	var g errgroup.Group
	g.SetLimit(bp.concurrency)

	for i, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			bp.logger.Info("processing site",
				"target", job.Target(),
				"index", i+1,
				"total", len(jobs),
			)

			if err := bp.pipelineFactory(job).Execute(ctx, job); err != nil {
				bp.logger.Warn("site failed", "target", job.Target(), "error", err)
			}
			if callback != nil {
				callback(job, i)
			}
			return nil
		})
	}
	err := g.Wait()

	bp.logger.Info("batch processing complete",
		"total_sites", len(jobs),
		"elapsed", time.Since(startTime),
	)
	if err != nil {
		return err
	}
	return ctx.Err()
}
