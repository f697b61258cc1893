package data

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/domain/model"
	apperrors "github.com/PratikB30/crewai-financial-doc-analyzer/internal/errors"
)

var jobRowColumns = []string{
	"job_id", "status", "document_handle", "result", "created_at", "updated_at", "completed_at",
}

func newMockRepo(t *testing.T) (*JobRepo, sqlmock.Sqlmock, time.Time) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	repo := NewJobRepo(db, RepoConfig{TimeProvider: NewFixedTimeProvider(now)})
	return repo, mock, now
}

func TestJobRepo_Create(t *testing.T) {
	repo, mock, now := newMockRepo(t)

	mock.ExpectQuery("INSERT INTO analysis_jobs").
		WithArgs("job-1", model.JobStatusPending, "financial_document_x.pdf", now).
		WillReturnRows(sqlmock.NewRows(jobRowColumns).
			AddRow("job-1", "PENDING", "financial_document_x.pdf", nil, now, now, nil))

	job, err := repo.Create(context.Background(), &model.CreateJobRequest{
		JobID:          "job-1",
		DocumentHandle: "financial_document_x.pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, model.JobStatusPending, job.Status)
	assert.Nil(t, job.Result)
	assert.Nil(t, job.CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepo_Create_Duplicate(t *testing.T) {
	repo, mock, _ := newMockRepo(t)

	mock.ExpectQuery("INSERT INTO analysis_jobs").
		WillReturnError(&pgconn.PgError{
			Code:   pgerrcode.UniqueViolation,
			Detail: "Key (job_id)=(job-1) already exists.",
		})

	_, err := repo.Create(context.Background(), &model.CreateJobRequest{JobID: "job-1", DocumentHandle: "h"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateJob))
	assert.True(t, apperrors.IsConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepo_Create_Invalid(t *testing.T) {
	repo, mock, _ := newMockRepo(t)

	_, err := repo.Create(context.Background(), &model.CreateJobRequest{JobID: "job-1"})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))

	_, err = repo.Create(context.Background(), nil)
	assert.True(t, apperrors.IsValidation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepo_GetByID(t *testing.T) {
	repo, mock, now := newMockRepo(t)
	done := now.Add(time.Minute)

	mock.ExpectQuery("SELECT (.+) FROM analysis_jobs WHERE job_id = ").
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows(jobRowColumns).
			AddRow("job-1", "SUCCESS", "h", "report", now, done, done))

	job, err := repo.GetByID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusSuccess, job.Status)
	require.NotNil(t, job.Result)
	assert.Equal(t, "report", *job.Result)
	require.NotNil(t, job.CompletedAt)
	assert.True(t, job.CompletedAt.Equal(done))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepo_GetByID_NotFound(t *testing.T) {
	repo, mock, _ := newMockRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM analysis_jobs").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	job, err := repo.GetByID(context.Background(), "missing")
	assert.Nil(t, job)
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepo_Complete(t *testing.T) {
	tests := []struct {
		name      string
		rows      *sqlmock.Rows
		err       error
		wantPrev  model.JobStatus
		wantFound bool
		wantErr   bool
	}{
		{
			name:      "pending to success",
			rows:      sqlmock.NewRows([]string{"status"}).AddRow("PENDING"),
			wantPrev:  model.JobStatusPending,
			wantFound: true,
		},
		{
			name:      "already terminal is left unchanged",
			rows:      sqlmock.NewRows([]string{"status"}).AddRow("FAILURE"),
			wantPrev:  model.JobStatusFailure,
			wantFound: true,
		},
		{
			name: "missing job",
			err:  sql.ErrNoRows,
		},
		{
			name:    "database error",
			err:     errors.New("connection reset"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock, now := newMockRepo(t)

			exp := mock.ExpectQuery("UPDATE analysis_jobs").
				WithArgs("job-1", model.JobStatusSuccess, "report", now, model.JobStatusPending)
			if tt.err != nil {
				exp.WillReturnError(tt.err)
			} else {
				exp.WillReturnRows(tt.rows)
			}

			prev, found, err := repo.Complete(context.Background(), model.CompleteJobRequest{
				JobID:  "job-1",
				Status: model.JobStatusSuccess,
				Result: "report",
			})
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantPrev, prev)
			assert.Equal(t, tt.wantFound, found)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestJobRepo_Complete_RejectsPending(t *testing.T) {
	repo, mock, _ := newMockRepo(t)

	_, found, err := repo.Complete(context.Background(), model.CompleteJobRequest{
		JobID:  "job-1",
		Status: model.JobStatusPending,
	})
	require.Error(t, err)
	assert.False(t, found)
	assert.True(t, apperrors.IsValidation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepo_CountByStatus(t *testing.T) {
	repo, mock, _ := newMockRepo(t)

	mock.ExpectQuery("SELECT status, COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("PENDING", 2).
			AddRow("SUCCESS", 5))

	counts, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, counts[model.JobStatusPending])
	assert.Equal(t, 5, counts[model.JobStatusSuccess])
	assert.Equal(t, 0, counts[model.JobStatusFailure])
	assert.NoError(t, mock.ExpectationsWereMet())
}
