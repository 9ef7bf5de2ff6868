package pipeline

import (
	"context"
	"log/slog"

	"github.com/loupix57/prospectlab-sub002/internal/model"
)

// Job is one site moving through the pipeline.
type Job struct {
	// Request is the crawl to perform.
	Request model.CrawlRequest

	// Result is set by the crawl step.
	Result *model.ScrapeResult

	// ResultID is the store identifier set by the save step.
	ResultID int64

	// Skipped is set by a step that decided the remaining steps must not run.
	Skipped bool

	// SkipReason explains Skipped.
	SkipReason string

	// Err is the first step error.
	Err error

	// PerformedSteps lists the names of the steps that ran.
	PerformedSteps []string
}

// NewJob returns a job for req.
func NewJob(req model.CrawlRequest) *Job {
	return &Job{Request: req, PerformedSteps: make([]string, 0)}
}

// Target returns the root URL of the job.
func (j *Job) Target() string {
	return j.Request.RootURL
}

// Step defines the interface that all pipeline steps must implement.
// Steps are executed in sequence and share the job.
type Step interface {
	// Do executes the step. Non-critical problems are recorded on the
	// job and nil is returned.
	Do(ctx context.Context, job *Job) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// FinalStep marks steps that still run after the context is cancelled,
// with a context that is no longer cancelled, so a partial crawl result
// is saved and reported.
type FinalStep interface {
	Step
	Final() bool
}

// Pipeline orchestrates the execution of multiple steps.
type Pipeline struct {
	steps           []Step
	logger          *slog.Logger
	continueOnError bool
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to continue execution
// even when a step fails. Only the first error is kept on the job.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates a new Pipeline with the given options.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{steps: make([]Step, 0)}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends a step to the pipeline.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs the steps in order. Once ctx is cancelled only final steps
// run. A skipped job stops the pipeline without error.
func (p *Pipeline) Execute(ctx context.Context, job *Job) error {
	for _, step := range p.steps {
		stepCtx := ctx
		if ctx.Err() != nil {
			if !isFinal(step) {
				p.logger.Warn("pipeline cancelled, skipping step",
					"step", step.Name(),
					"target", job.Target(),
					"reason", ctx.Err(),
				)
				continue
			}
			stepCtx = context.WithoutCancel(ctx)
		}

		p.logger.Info("executing step", "step", step.Name(), "target", job.Target())

		if err := step.Do(stepCtx, job); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"target", job.Target(),
				"error", err,
			)
			if job.Err == nil {
				job.Err = err
			}
			if !p.continueOnError {
				return err
			}
		} else {
			p.logger.Debug("step completed", "step", step.Name(), "target", job.Target())
		}

		job.PerformedSteps = append(job.PerformedSteps, step.Name())

		if job.Skipped {
			p.logger.Info("job skipped", "target", job.Target(), "reason", job.SkipReason)
			return nil
		}
	}

	if job.Err == nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

func isFinal(step Step) bool {
	f, ok := step.(FinalStep)
	return ok && f.Final()
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
