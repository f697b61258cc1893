package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/core"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/data"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/domain/model"
	obserrors "github.com/PratikB30/crewai-financial-doc-analyzer/internal/observability/errors"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/observability/notify"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/service/failurenotifier"
)

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Repo            core.JobRepository       // Required: job repository
	Logger          *slog.Logger             // Optional: structured logger
	FailureNotifier *failurenotifier.Service // Optional: alerts for FAILURE transitions
}

// JobService owns the job lifecycle: PENDING on creation, then exactly one
// terminal status. The first terminal write wins; later ones are ignored.
type JobService struct {
	repo            core.JobRepository
	logger          *slog.Logger
	failureNotifier *failurenotifier.Service
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JobService{
		repo:            opts.Repo,
		logger:          logger.With("component", "job_service"),
		failureNotifier: opts.FailureNotifier,
	}, nil
}

// Create records a PENDING job. A taken id fails with a conflict error that also
// matches data.ErrDuplicateJob.
func (s *JobService) Create(ctx context.Context, jobID, documentHandle string) (*model.Job, error) {
	job, err := s.repo.Create(ctx, &model.CreateJobRequest{JobID: jobID, DocumentHandle: documentHandle})
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	s.logger.DebugContext(ctx, "job created", "job_id", job.ID, "document_handle", job.DocumentHandle)
	return job, nil
}

// Get returns the job or nil when it does not exist.
func (s *JobService) Get(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := s.repo.GetByID(ctx, jobID)
	if errors.Is(err, data.ErrJobNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Complete writes the terminal status and result of a PENDING job and reports
// whether this call recorded it. A missing job is logged and ignored. A job that
// is already terminal keeps its first result; the late write is logged and
// dropped.
func (s *JobService) Complete(ctx context.Context, jobID string, status model.JobStatus, result string) (bool, error) {
	previous, found, err := s.repo.Complete(ctx, model.CompleteJobRequest{
		JobID:  jobID,
		Status: status,
		Result: result,
	})
	if err != nil {
		return false, fmt.Errorf("complete job: %w", err)
	}
	if !found {
		s.logger.WarnContext(ctx, "no job found to complete", "job_id", jobID, "status", status)
		return false, nil
	}
	if previous.Terminal() {
		s.logger.WarnContext(ctx, "job already completed; keeping first result",
			"job_id", jobID,
			"previous_status", previous,
			"status", status,
		)
		return false, nil
	}
	s.logger.DebugContext(ctx, "job completed", "job_id", jobID, "status", status)
	return true, nil
}

// FailureDetails carries the context attached to failure alerts.
type FailureDetails struct {
	// Reason is how the job failed: "analysis", "exhausted" or "enqueue".
	Reason         string
	Query          string
	DocumentHandle string
	Attempt        int
	Severity       string
	Metadata       map[string]string
}

// Fail records FAILURE with the standard failure text for cause and, when this
// call made the transition, notifies the configured alert sinks.
func (s *JobService) Fail(ctx context.Context, jobID string, cause error, details FailureDetails) (bool, error) {
	result := model.FailureResult(cause)
	failed, err := s.Complete(ctx, jobID, model.JobStatusFailure, result)
	if err != nil || !failed {
		return failed, err
	}

	if s.failureNotifier.Enabled() {
		s.failureNotifier.NotifyJobFailure(ctx, notify.JobFailurePayload{
			JobID:          jobID,
			Query:          details.Query,
			DocumentHandle: details.DocumentHandle,
			Reason:         details.Reason,
			Attempt:        details.Attempt,
			Error:          result,
			ErrorClass:     obserrors.Classify(cause),
			Severity:       details.Severity,
			OccurredAt:     time.Now().UTC(),
			Metadata:       details.Metadata,
		})
	}
	return true, nil
}

// Counts returns the number of jobs per status.
func (s *JobService) Counts(ctx context.Context) (map[model.JobStatus]int, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	return counts, nil
}
