// Package reaper provides adapters for running the redelivery reaper.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/PratikB30/crewai-financial-doc-analyzer/config"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/core"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/observability/statsd"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/service"
)

// Runner provides a simple adapter to run the reaper loop.
// It constructs the reaper service and runs the sweep loop.
type Runner struct {
	reaper *service.ReaperService
	logger *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Queue     core.JobQueue
	Jobs      *service.JobService
	Documents core.DocumentStore
	Config    config.ReaperConfig
	Queueing  config.QueueConfig
	Logger    *slog.Logger
	Metrics   statsd.Sink
}

// NewRunner creates a new reaper runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	reaper, err := service.NewReaperService(service.ReaperServiceOptions{
		Queue:         opts.Queue,
		Jobs:          opts.Jobs,
		Documents:     opts.Documents,
		Config:        opts.Config,
		MaxDeliveries: opts.Queueing.MaxDeliveries,
		Logger:        opts.Logger,
		Metrics:       opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("wire reaper service: %w", err)
	}

	return &Runner{reaper: reaper, logger: opts.Logger}, nil
}

// validateRunnerOptions validates and sets defaults for RunnerOptions.
func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.Queue == nil {
		return errors.New("job queue is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	opts.Queueing.Sanitize()
	return nil
}

// Run starts the reaper loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting reaper runner")
	return r.reaper.Run(ctx)
}

// SweepOnce runs a single pass, for operators who want to unstick a queue by hand.
func (r *Runner) SweepOnce(ctx context.Context) (*service.SweepResult, error) {
	return r.reaper.Sweep(ctx)
}
