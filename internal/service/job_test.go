package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/data"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/domain/model"
	apperrors "github.com/PratikB30/crewai-financial-doc-analyzer/internal/errors"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/mocks"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/observability/notify"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/service/failurenotifier"
)

func newJobService(t *testing.T) (*JobService, *mocks.MockJobRepository) {
	t.Helper()
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	svc, err := NewJobService(JobServiceOptions{Repo: repo})
	require.NoError(t, err)
	return svc, repo
}

func TestNewJobService_RequiresRepo(t *testing.T) {
	_, err := NewJobService(JobServiceOptions{})
	assert.Error(t, err)
}

func TestJobService_Create(t *testing.T) {
	svc, repo := newJobService(t)
	ctx := context.Background()

	repo.EXPECT().
		Create(ctx, &model.CreateJobRequest{JobID: "job-1", DocumentHandle: "financial_document_a.pdf"}).
		Return(&model.Job{ID: "job-1", Status: model.JobStatusPending, DocumentHandle: "financial_document_a.pdf"}, nil)

	job, err := svc.Create(ctx, "job-1", "financial_document_a.pdf")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, job.Status)
	assert.Nil(t, job.Result)
}

func TestJobService_CreateDuplicate(t *testing.T) {
	svc, repo := newJobService(t)
	dup := apperrors.Wrap(data.ErrDuplicateJob, apperrors.ErrCodeConflict, "job job-1 already exists")
	repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil, dup)

	_, err := svc.Create(context.Background(), "job-1", "h")
	require.Error(t, err)
	assert.ErrorIs(t, err, data.ErrDuplicateJob)
	assert.True(t, apperrors.IsConflict(err))
}

func TestJobService_Get(t *testing.T) {
	svc, repo := newJobService(t)
	ctx := context.Background()

	repo.EXPECT().GetByID(ctx, "missing").Return(nil, data.ErrJobNotFound)
	job, err := svc.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, job)

	repo.EXPECT().GetByID(ctx, "broken").Return(nil, errors.New("connection refused"))
	_, err = svc.Get(ctx, "broken")
	assert.ErrorContains(t, err, "connection refused")
}

func TestJobService_Complete(t *testing.T) {
	tests := []struct {
		name      string
		previous  model.JobStatus
		found     bool
		repoErr   error
		wantWrote bool
		wantErr   bool
	}{
		{name: "pending to success", previous: model.JobStatusPending, found: true, wantWrote: true},
		{name: "missing job is not an error", found: false},
		{name: "first terminal write is kept", previous: model.JobStatusFailure, found: true},
		{name: "repository failure", repoErr: errors.New("deadlock"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo := newJobService(t)
			repo.EXPECT().
				Complete(gomock.Any(), model.CompleteJobRequest{JobID: "job-1", Status: model.JobStatusSuccess, Result: "report"}).
				Return(tt.previous, tt.found, tt.repoErr)

			wrote, err := svc.Complete(context.Background(), "job-1", model.JobStatusSuccess, "report")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.wantWrote, wrote)
		})
	}
}

// captureNotifier returns a failure notifier whose only sink records payloads.
func captureNotifier() (*failurenotifier.Service, func() []notify.JobFailurePayload) {
	var (
		mu   sync.Mutex
		sent []notify.JobFailurePayload
	)
	notifier := failurenotifier.NewService(failurenotifier.Options{
		Sinks: []failurenotifier.SinkRegistration{{
			Name: "capture",
			Sink: notify.SinkFunc(func(_ context.Context, p notify.JobFailurePayload) error {
				mu.Lock()
				defer mu.Unlock()
				sent = append(sent, p)
				return nil
			}),
		}},
	})
	return notifier, func() []notify.JobFailurePayload {
		mu.Lock()
		defer mu.Unlock()
		return append([]notify.JobFailurePayload(nil), sent...)
	}
}

func newNotifyingJobService(t *testing.T) (*JobService, *mocks.MockJobRepository, func() []notify.JobFailurePayload) {
	t.Helper()
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	notifier, sent := captureNotifier()
	svc, err := NewJobService(JobServiceOptions{Repo: repo, FailureNotifier: notifier})
	require.NoError(t, err)
	return svc, repo, sent
}

func TestJobService_FailNotifiesOnTransition(t *testing.T) {
	svc, repo, sent := newNotifyingJobService(t)
	cause := errors.New("llm unavailable")

	repo.EXPECT().
		Complete(gomock.Any(), model.CompleteJobRequest{
			JobID:  "job-1",
			Status: model.JobStatusFailure,
			Result: model.FailureResult(cause),
		}).
		Return(model.JobStatusPending, true, nil)

	failed, err := svc.Fail(context.Background(), "job-1", cause, FailureDetails{
		Reason:         "analysis",
		Query:          "Summarize revenue",
		DocumentHandle: "financial_document_job-1.pdf",
		Attempt:        2,
	})
	require.NoError(t, err)
	assert.True(t, failed)

	require.Len(t, sent(), 1)
	got := sent()[0]
	assert.Equal(t, "job-1", got.JobID)
	assert.Equal(t, "analysis", got.Reason)
	assert.Equal(t, "Summarize revenue", got.Query)
	assert.Equal(t, 2, got.Attempt)
	assert.Equal(t, model.FailureResult(cause), got.Error)
	assert.NotEmpty(t, got.ErrorClass)
	assert.Equal(t, notify.SeverityCritical, got.Severity)
}

func TestJobService_FailSkipsNotificationWhenAlreadyTerminal(t *testing.T) {
	svc, repo, sent := newNotifyingJobService(t)

	repo.EXPECT().Complete(gomock.Any(), gomock.Any()).Return(model.JobStatusSuccess, true, nil)

	failed, err := svc.Fail(context.Background(), "job-1", errors.New("late"), FailureDetails{Reason: "exhausted"})
	require.NoError(t, err)
	assert.False(t, failed)
	assert.Empty(t, sent())
}

func TestJobService_FailWithoutNotifier(t *testing.T) {
	svc, repo := newJobService(t)
	repo.EXPECT().Complete(gomock.Any(), gomock.Any()).Return(model.JobStatusPending, true, nil)

	failed, err := svc.Fail(context.Background(), "job-1", errors.New("boom"), FailureDetails{})
	require.NoError(t, err)
	assert.True(t, failed)
}

func TestJobService_Counts(t *testing.T) {
	svc, repo := newJobService(t)
	want := map[model.JobStatus]int{model.JobStatusPending: 2, model.JobStatusSuccess: 5}
	repo.EXPECT().CountByStatus(gomock.Any()).Return(want, nil)

	got, err := svc.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
