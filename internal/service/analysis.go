package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/PratikB30/crewai-financial-doc-analyzer/config"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/core"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/data"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/domain/model"
	apperrors "github.com/PratikB30/crewai-financial-doc-analyzer/internal/errors"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/observability/metrics"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/observability/statsd"
)

// Messages returned to API callers.
const (
	MessageQueued  = "Analysis has been queued."
	MessagePending = "Analysis is still in progress. Please check back later."
)

// AnalysisServiceOptions groups dependencies for AnalysisService.
type AnalysisServiceOptions struct {
	Jobs         *JobService        // Required
	Documents    core.DocumentStore // Required
	Queue        core.JobQueue      // Required
	Results      core.ResultStore   // Required
	DefaultQuery string             // Optional: used when the caller sends a blank query
	TimeProvider data.TimeProvider  // Optional: stamps enqueued messages
	Logger       *slog.Logger       // Optional
	Metrics      statsd.Sink        // Optional
}

// AnalysisService is the submission and query side of the API.
type AnalysisService struct {
	jobs         *JobService
	documents    core.DocumentStore
	queue        core.JobQueue
	results      core.ResultStore
	defaultQuery string
	clock        data.TimeProvider
	logger       *slog.Logger
	metrics      statsd.Sink
}

// NewAnalysisService constructs an AnalysisService.
func NewAnalysisService(opts AnalysisServiceOptions) (*AnalysisService, error) {
	switch {
	case opts.Jobs == nil:
		return nil, errors.New("JobService is required")
	case opts.Documents == nil:
		return nil, errors.New("DocumentStore is required")
	case opts.Queue == nil:
		return nil, errors.New("JobQueue is required")
	case opts.Results == nil:
		return nil, errors.New("ResultStore is required")
	}
	defaultQuery := strings.TrimSpace(opts.DefaultQuery)
	if defaultQuery == "" {
		defaultQuery = config.DefaultAnalysisQuery
	}
	clock := opts.TimeProvider
	if clock == nil {
		clock = data.RealTimeProvider{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalysisService{
		jobs:         opts.Jobs,
		documents:    opts.Documents,
		queue:        opts.Queue,
		results:      opts.Results,
		defaultQuery: defaultQuery,
		clock:        clock,
		logger:       logger.With("component", "analysis_service"),
		metrics:      opts.Metrics,
	}, nil
}

// SubmitRequest is one upload.
type SubmitRequest struct {
	Document io.Reader
	Query    string
}

// SubmitResult identifies the queued job.
type SubmitResult struct {
	JobID   string `json:"task_id"`
	Message string `json:"message"`
}

// Submit stores the document, creates a PENDING job and enqueues it. Every error
// after the document is stored removes the document again.
func (s *AnalysisService) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		query = s.defaultQuery
	}

	handle, err := s.documents.Save(ctx, req.Document)
	if err != nil {
		if !apperrors.IsIngestion(err) {
			err = apperrors.Ingestion(err)
		}
		s.emitSubmit(err)
		return nil, err
	}

	jobID := uuid.NewString()
	if _, err = s.jobs.Create(ctx, jobID, handle); err != nil {
		s.discard(ctx, handle)
		s.emitSubmit(err)
		return nil, apperrors.Ingestion(err)
	}

	msg := model.AnalysisMessage{
		JobID:          jobID,
		Query:          query,
		DocumentHandle: handle,
		EnqueuedAt:     s.clock.Now(),
	}
	if err = s.queue.Enqueue(ctx, msg); err != nil {
		// The row exists; close it out so it cannot sit in PENDING forever.
		enqueueErr := fmt.Errorf("enqueue job: %w", err)
		if _, completeErr := s.jobs.Fail(ctx, jobID, enqueueErr, FailureDetails{
			Reason:         "enqueue",
			Query:          query,
			DocumentHandle: handle,
		}); completeErr != nil {
			s.logger.ErrorContext(ctx, "failed to mark unqueued job as failed", "job_id", jobID, "error", completeErr)
		}
		s.discard(ctx, handle)
		s.emitSubmit(enqueueErr)
		return nil, apperrors.Ingestion(enqueueErr)
	}

	s.logger.InfoContext(ctx, "analysis queued", "job_id", jobID, "document_handle", handle)
	s.emitSubmit(nil)
	return &SubmitResult{JobID: jobID, Message: MessageQueued}, nil
}

// StatusResult is what a poller sees. Exactly one of Message or Result is set.
type StatusResult struct {
	Status  model.JobStatus `json:"status"`
	Message string          `json:"message,omitempty"`
	Result  string          `json:"result,omitempty"`
}

// Status reports the job state. Unknown ids fail with a not-found error. A
// SUCCESS result is also written to the output directory; a failed write is
// logged and does not change the response.
func (s *AnalysisService) Status(ctx context.Context, jobID string) (*StatusResult, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, apperrors.NotFound("Task not found")
	}

	switch job.Status {
	case model.JobStatusPending:
		return &StatusResult{Status: job.Status, Message: MessagePending}, nil
	case model.JobStatusFailure:
		return &StatusResult{Status: job.Status, Result: job.ResultText()}, nil
	case model.JobStatusSuccess:
		result := job.ResultText()
		if writeErr := s.results.Write(ctx, job.ID, result); writeErr != nil {
			s.logger.WarnContext(ctx, "could not save result artifact", "job_id", job.ID, "error", writeErr)
		}
		return &StatusResult{Status: job.Status, Result: result}, nil
	default:
		return nil, apperrors.Internalf("job %s has unknown status %q", job.ID, job.Status)
	}
}

func (s *AnalysisService) discard(ctx context.Context, handle string) {
	if err := s.documents.Delete(ctx, handle); err != nil {
		s.logger.ErrorContext(ctx, "failed to remove orphaned document", "document_handle", handle, "error", err)
	}
}

func (s *AnalysisService) emitSubmit(err error) {
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		Transition: metrics.TransitionSubmitted,
		Result:     result,
		Err:        err,
	})
}
