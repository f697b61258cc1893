// Package jobrunner runs the analysis workers that drain the broker.
package jobrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/core"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/domain/model"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/observability/metrics"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/observability/statsd"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/service"
)

// RunnerOptions configures the analysis worker adapter.
type RunnerOptions struct {
	Queue     core.JobQueue       // Required
	Analyzer  core.Analyzer       // Required
	Jobs      *service.JobService // Required
	Documents core.DocumentStore  // Required

	Concurrency  int           // number of worker goroutines; defaults to 1
	PollInterval time.Duration // wait between claims on an empty queue; defaults to 1s

	Logger  *slog.Logger
	Metrics statsd.Sink
}

// Runner claims deliveries and runs the analysis pipeline for each one.
type Runner struct {
	queue     core.JobQueue
	analyzer  core.Analyzer
	jobs      *service.JobService
	documents core.DocumentStore
	workers   int
	poll      time.Duration
	logger    *slog.Logger
	metrics   statsd.Sink
}

// NewRunner validates options and constructs a Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	switch {
	case opts.Queue == nil:
		return nil, errors.New("JobQueue is required")
	case opts.Analyzer == nil:
		return nil, errors.New("Analyzer is required")
	case opts.Jobs == nil:
		return nil, errors.New("JobService is required")
	case opts.Documents == nil:
		return nil, errors.New("DocumentStore is required")
	}

	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		queue:     opts.Queue,
		analyzer:  opts.Analyzer,
		jobs:      opts.Jobs,
		documents: opts.Documents,
		workers:   workers,
		poll:      poll,
		logger:    logger.With("component", "analysis_worker"),
		metrics:   opts.Metrics,
	}, nil
}

// Run starts worker goroutines and processes deliveries until the context is
// cancelled. A broker error stops every worker and is returned.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting analysis workers", "workers", r.workers, "poll_interval", r.poll)

	// Derive a cancellable context that we can signal on first fatal error
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	for range r.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.workerLoop(ctx); err != nil {
				// first error wins, cancels all workers
				select {
				case errCh <- err:
					cancel()
				default:
				}
			}
		}()
	}

	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

func (r *Runner) workerLoop(ctx context.Context) error {
	for ctx.Err() == nil {
		delivery, err := r.queue.Claim(ctx)
		switch {
		case err == nil:
			if delivery != nil {
				r.Process(ctx, delivery)
			}
		case errors.Is(err, model.ErrQueueEmpty):
			if !r.wait(ctx) {
				return nil
			}
		case ctx.Err() != nil:
			return nil
		default:
			return fmt.Errorf("claim delivery: %w", err)
		}
	}
	return nil
}

func (r *Runner) wait(ctx context.Context) bool {
	t := time.NewTimer(r.poll)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Process runs one delivery to completion: analysis, terminal status write,
// document removal and acknowledgement. Analysis failures become FAILURE
// results; they are never retried by redelivery. When ctx is cancelled during
// the analysis the delivery is left unacknowledged with its document in place
// so the reaper can hand it to another worker. Once an outcome exists it is
// recorded and acknowledged even if ctx is cancelled meanwhile.
func (r *Runner) Process(ctx context.Context, d *model.Delivery) {
	start := time.Now()
	msg := d.Message
	logger := r.logger.With("job_id", msg.JobID, "receipt", d.Receipt, "attempt", d.Attempt)
	settleCtx := context.WithoutCancel(ctx)

	if err := msg.Validate(); err != nil {
		logger.ErrorContext(ctx, "dropping malformed delivery", "error", err)
		if msg.DocumentHandle != "" {
			r.removeDocument(settleCtx, logger, msg.DocumentHandle)
		}
		r.ack(settleCtx, logger, d.Receipt)
		return
	}

	job, err := r.jobs.Get(ctx, msg.JobID)
	if err != nil {
		logger.ErrorContext(ctx, "failed to load job; leaving delivery for redelivery", "error", err)
		return
	}
	if job == nil || job.Status.Terminal() {
		// A redelivery of a finished (or purged) job; the first outcome stands.
		status := model.JobStatus("")
		if job != nil {
			status = job.Status
		}
		logger.InfoContext(ctx, "skipping delivery of finished job", "status", status)
		r.removeDocument(settleCtx, logger, msg.DocumentHandle)
		r.ack(settleCtx, logger, d.Receipt)
		return
	}

	logger.InfoContext(ctx, "analysis started", "document_handle", msg.DocumentHandle)

	result, runErr := r.analyze(ctx, msg)
	if runErr != nil && ctx.Err() != nil {
		logger.WarnContext(ctx, "analysis interrupted by shutdown; leaving delivery for redelivery", "error", runErr)
		return
	}

	status := model.JobStatusSuccess
	transition := metrics.TransitionCompleted
	var (
		recorded    bool
		completeErr error
	)
	if runErr != nil {
		status = model.JobStatusFailure
		transition = metrics.TransitionFailed
		logger.ErrorContext(ctx, "analysis failed", "error", runErr)
		recorded, completeErr = r.jobs.Fail(settleCtx, msg.JobID, runErr, service.FailureDetails{
			Reason:         "analysis",
			Query:          msg.Query,
			DocumentHandle: msg.DocumentHandle,
			Attempt:        d.Attempt,
		})
	} else {
		recorded, completeErr = r.jobs.Complete(settleCtx, msg.JobID, status, result)
	}
	r.removeDocument(settleCtx, logger, msg.DocumentHandle)

	if completeErr != nil {
		// Unacked deliveries come back after the visibility timeout.
		logger.ErrorContext(ctx, "failed to record job outcome", "status", status, "error", completeErr)
		metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
			Transition: transition,
			Result:     metrics.ResultError,
			Duration:   time.Since(start),
			Err:        completeErr,
		})
		return
	}

	r.ack(settleCtx, logger, d.Receipt)

	if !recorded {
		logger.InfoContext(ctx, "analysis finished after job was already completed", "status", status)
		return
	}
	res := metrics.ResultSuccess
	if runErr != nil {
		res = metrics.ResultError
	}
	metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
		Transition: transition,
		Result:     res,
		Duration:   time.Since(start),
		Err:        runErr,
	})
	logger.InfoContext(ctx, "analysis finished", "status", status, "duration", time.Since(start))
}

func (r *Runner) analyze(ctx context.Context, msg model.AnalysisMessage) (result string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("analysis panicked: %v", rec)
		}
	}()

	path, err := r.documents.Path(msg.DocumentHandle)
	if err != nil {
		return "", err
	}
	return r.analyzer.Run(ctx, core.AnalysisInput{DocumentPath: path, Query: msg.Query})
}

func (r *Runner) removeDocument(ctx context.Context, logger *slog.Logger, handle string) {
	if err := r.documents.Delete(ctx, handle); err != nil {
		logger.ErrorContext(ctx, "failed to remove document", "document_handle", handle, "error", err)
	}
}

func (r *Runner) ack(ctx context.Context, logger *slog.Logger, receipt string) {
	if err := r.queue.Ack(ctx, receipt); err != nil {
		logger.WarnContext(ctx, "ack failed; delivery may run again", "error", err)
	}
}
