package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/PratikB30/crewai-financial-doc-analyzer/config"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/core"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/domain/model"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/observability/metrics"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/observability/statsd"
)

// ErrDeliveriesExhausted is recorded on jobs whose message was dead-lettered.
var ErrDeliveriesExhausted = errors.New("delivery attempts exhausted")

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Queue         core.JobQueue       // Required
	Jobs          *JobService         // Required
	Documents     core.DocumentStore  // Required
	Config        config.ReaperConfig // Required: interval and batch size
	MaxDeliveries int                 // Required: deliveries before a message is dead-lettered
	Logger        *slog.Logger        // Optional
	Metrics       statsd.Sink         // Optional
}

// ReaperService returns deliveries whose visibility timeout expired to the queue.
// Messages that used up their deliveries are dead-lettered and their jobs failed,
// so no job stays PENDING because its worker died.
type ReaperService struct {
	queue         core.JobQueue
	jobs          *JobService
	documents     core.DocumentStore
	config        config.ReaperConfig
	maxDeliveries int
	logger        *slog.Logger
	metrics       statsd.Sink
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	switch {
	case opts.Queue == nil:
		return nil, errors.New("JobQueue is required")
	case opts.Jobs == nil:
		return nil, errors.New("JobService is required")
	case opts.Documents == nil:
		return nil, errors.New("DocumentStore is required")
	case opts.MaxDeliveries < 1:
		return nil, errors.New("MaxDeliveries must be positive")
	}
	cfg := opts.Config
	cfg.Sanitize()

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "reaper_service")
	logger.Debug("ReaperService initialized",
		"interval", cfg.Interval,
		"batch_size", cfg.BatchSize,
		"max_deliveries", opts.MaxDeliveries,
	)

	return &ReaperService{
		queue:         opts.Queue,
		jobs:          opts.Jobs,
		documents:     opts.Documents,
		config:        cfg,
		maxDeliveries: opts.MaxDeliveries,
		logger:        logger,
		metrics:       opts.Metrics,
	}, nil
}

// Run sweeps at the configured interval until ctx is cancelled.
// Returns nil on graceful shutdown.
func (s *ReaperService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)

	// Spread sweeps out when several instances start together.
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if _, err := s.Sweep(ctx); err != nil {
		s.logSweepError(ctx, err)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logSweepError(ctx, err)
			}
		}
	}
}

// SweepResult summarises one sweep.
type SweepResult struct {
	Requeued  int
	Exhausted int
}

// Sweep requeues expired deliveries in batches until a batch comes back short,
// then fails the jobs of exhausted deliveries.
func (s *ReaperService) Sweep(ctx context.Context) (*SweepResult, error) {
	total := &SweepResult{}
	var errs []error

	for {
		res, err := s.queue.RequeueExpired(ctx, s.config.BatchSize, s.maxDeliveries)
		if err != nil {
			errs = append(errs, fmt.Errorf("requeue expired: %w", err))
			break
		}
		total.Requeued += len(res.Requeued)
		total.Exhausted += len(res.Exhausted)

		for _, d := range res.Exhausted {
			if failErr := s.failExhausted(ctx, d); failErr != nil {
				errs = append(errs, failErr)
			}
		}

		if len(res.Requeued)+len(res.Exhausted) < s.config.BatchSize {
			break
		}
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
	}

	if total.Requeued > 0 || total.Exhausted > 0 {
		s.logger.InfoContext(ctx, "redelivery sweep",
			"requeued", total.Requeued,
			"exhausted", total.Exhausted,
		)
	}
	metrics.EmitRequeue(s.metrics, total.Requeued, total.Exhausted)
	s.emitQueueDepth(ctx)

	if len(errs) > 0 {
		return total, errors.Join(errs...)
	}
	return total, nil
}

func (s *ReaperService) failExhausted(ctx context.Context, d model.Delivery) error {
	msg := d.Message
	if msg.JobID == "" {
		return nil
	}
	s.logger.WarnContext(ctx, "delivery attempts exhausted; failing job",
		"job_id", msg.JobID,
		"attempts", d.Attempt,
	)

	var errs []error
	failed, err := s.jobs.Fail(ctx, msg.JobID, ErrDeliveriesExhausted, FailureDetails{
		Reason:         "exhausted",
		Query:          msg.Query,
		DocumentHandle: msg.DocumentHandle,
		Attempt:        d.Attempt,
	})
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("fail job %s: %w", msg.JobID, err))
	case failed:
		metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
			Transition: metrics.TransitionExhausted,
			Result:     metrics.ResultError,
			Err:        ErrDeliveriesExhausted,
		})
	default:
		// A worker finished the job after its lease expired; its result stands.
		s.logger.InfoContext(ctx, "exhausted delivery already completed", "job_id", msg.JobID)
	}
	if msg.DocumentHandle != "" {
		if err := s.documents.Delete(ctx, msg.DocumentHandle); err != nil {
			s.logger.ErrorContext(ctx, "failed to delete document of exhausted job",
				"job_id", msg.JobID,
				"document_handle", msg.DocumentHandle,
				"error", err,
			)
		}
	}
	return errors.Join(errs...)
}

func (s *ReaperService) emitQueueDepth(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	stats, err := s.queue.Stats(ctx)
	if err != nil {
		s.logger.DebugContext(ctx, "queue stats unavailable", "error", err)
		return
	}
	metrics.EmitQueueDepth(s.metrics, stats.Pending, stats.InFlight, stats.DeadLetter)
}

// waitWithJitter sleeps up to 10% of the interval.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		return
	}
	jitter := time.Duration(int64(binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter))) // #nosec G115 - bounded by maxJitter

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

func (s *ReaperService) logSweepError(ctx context.Context, err error) {
	if errors.Is(err, context.Canceled) {
		s.logger.DebugContext(ctx, "sweep interrupted by shutdown")
		return
	}
	s.logger.ErrorContext(ctx, "redelivery sweep failed", "error", err)
}
