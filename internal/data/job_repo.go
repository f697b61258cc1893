package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/domain/model"
	apperrors "github.com/PratikB30/crewai-financial-doc-analyzer/internal/errors"
)

var (
	// ErrJobNotFound is returned when a job is not found.
	ErrJobNotFound = errors.New("job not found")
	// ErrDuplicateJob is returned when a job id is already taken.
	ErrDuplicateJob = errors.New("job already exists")
)

// RepoConfig holds configuration options for the job repository.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRepo stores analysis jobs in Postgres. Every read and write is a single
// statement so row-level locking keeps status transitions atomic.
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &JobRepo{
		DB:           db,
		timeProvider: tp,
		logger:       logger.With("component", "job_repo"),
	}
}

const jobColumns = `job_id, status, document_handle, result, created_at, updated_at, completed_at`

// Create inserts a PENDING job with an empty result.
func (r *JobRepo) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, apperrors.Validation("create job request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid job")
	}

	now := r.timeProvider.Now().UTC()
	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO analysis_jobs (job_id, status, document_handle, result, created_at, updated_at)
		VALUES ($1, $2, $3, NULL, $4, $4)
		RETURNING `+jobColumns,
		req.JobID, model.JobStatusPending, req.DocumentHandle, now,
	)

	job, err := scanJob(row)
	if err != nil {
		if apperrors.IsUniqueViolation(err) {
			return nil, apperrors.Wrap(ErrDuplicateJob, apperrors.ErrCodeConflict,
				fmt.Sprintf("job %s already exists", req.JobID))
		}
		return nil, fmt.Errorf("failed to create job: %w", apperrors.MapDBError(err))
	}
	return job, nil
}

// GetByID retrieves a job by its ID.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM analysis_jobs WHERE job_id = $1`, id)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", apperrors.MapDBError(err))
	}
	return job, nil
}

// Complete writes a terminal status and result to a PENDING job. It returns the
// status the job had before the call and false when no job matched. A job that
// is already terminal is left untouched, so the first terminal write wins; the
// caller compares the returned status to tell which case applied.
func (r *JobRepo) Complete(ctx context.Context, req model.CompleteJobRequest) (model.JobStatus, bool, error) {
	if err := req.Validate(); err != nil {
		return "", false, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid completion")
	}

	now := r.timeProvider.Now().UTC()
	var previous model.JobStatus
	// Data-modifying CTEs always run to completion, so upd applies even though
	// the outer SELECT only reads prev.
	err := r.DB.QueryRowContext(ctx, `
		WITH prev AS (
			SELECT job_id, status FROM analysis_jobs WHERE job_id = $1 FOR UPDATE
		),
		upd AS (
			UPDATE analysis_jobs AS j
			SET status = $2,
			    result = $3,
			    updated_at = $4,
			    completed_at = $4
			FROM prev
			WHERE j.job_id = prev.job_id AND prev.status = $5
			RETURNING j.job_id
		)
		SELECT status FROM prev`,
		req.JobID, req.Status, req.Result, now, model.JobStatusPending,
	).Scan(&previous)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to complete job: %w", apperrors.MapDBError(err))
	}
	return previous, true, nil
}

// CountByStatus returns the number of jobs in each status.
func (r *JobRepo) CountByStatus(ctx context.Context) (map[model.JobStatus]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM analysis_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", apperrors.MapDBError(err))
	}
	defer rows.Close()

	counts := map[model.JobStatus]int{
		model.JobStatusPending: 0,
		model.JobStatusSuccess: 0,
		model.JobStatusFailure: 0,
	}
	for rows.Next() {
		var (
			status model.JobStatus
			n      int
		)
		if scanErr := rows.Scan(&status, &n); scanErr != nil {
			return nil, fmt.Errorf("scan job count: %w", scanErr)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job counts: %w", err)
	}
	return counts, nil
}

type jobRowScanner interface {
	Scan(dest ...any) error
}

func scanJob(scanner jobRowScanner) (*model.Job, error) {
	job := &model.Job{}
	var (
		result      sql.NullString
		completedAt sql.NullTime
	)
	if err := scanner.Scan(
		&job.ID,
		&job.Status,
		&job.DocumentHandle,
		&result,
		&job.CreatedAt,
		&job.UpdatedAt,
		&completedAt,
	); err != nil {
		return nil, err
	}

	job.Result = cloneNullableString(result)
	job.CompletedAt = cloneNullableTime(completedAt)
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	return job, nil
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
