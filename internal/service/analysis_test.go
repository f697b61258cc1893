package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/PratikB30/crewai-financial-doc-analyzer/config"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/data"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/domain/model"
	apperrors "github.com/PratikB30/crewai-financial-doc-analyzer/internal/errors"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/mocks"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/observability/statsd"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/service/failurenotifier"
)

type analysisFixture struct {
	svc     *AnalysisService
	repo    *mocks.MockJobRepository
	docs    *mocks.MockDocumentStore
	queue   *mocks.MockJobQueue
	results *mocks.MockResultStore
	metrics *statsd.Recorder
	now     time.Time
}

func newAnalysisFixture(t *testing.T) *analysisFixture {
	t.Helper()
	return newAnalysisFixtureWithNotifier(t, nil)
}

func newAnalysisFixtureWithNotifier(t *testing.T, notifier *failurenotifier.Service) *analysisFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &analysisFixture{
		repo:    mocks.NewMockJobRepository(ctrl),
		docs:    mocks.NewMockDocumentStore(ctrl),
		queue:   mocks.NewMockJobQueue(ctrl),
		results: mocks.NewMockResultStore(ctrl),
		metrics: &statsd.Recorder{},
		now:     time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC),
	}
	jobs, err := NewJobService(JobServiceOptions{Repo: f.repo, FailureNotifier: notifier})
	require.NoError(t, err)
	f.svc, err = NewAnalysisService(AnalysisServiceOptions{
		Jobs:         jobs,
		Documents:    f.docs,
		Queue:        f.queue,
		Results:      f.results,
		TimeProvider: data.NewFixedTimeProvider(f.now),
		Metrics:      f.metrics,
	})
	require.NoError(t, err)
	return f
}

func TestNewAnalysisService_RequiresDependencies(t *testing.T) {
	_, err := NewAnalysisService(AnalysisServiceOptions{})
	assert.Error(t, err)
}

func TestSubmit_QueuesJob(t *testing.T) {
	f := newAnalysisFixture(t)
	ctx := context.Background()
	body := strings.NewReader("%PDF-1.7")

	var createdID string
	f.docs.EXPECT().Save(ctx, body).Return("financial_document_1.pdf", nil)
	f.repo.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, req *model.CreateJobRequest) (*model.Job, error) {
			createdID = req.JobID
			assert.Equal(t, "financial_document_1.pdf", req.DocumentHandle)
			return &model.Job{ID: req.JobID, Status: model.JobStatusPending, DocumentHandle: req.DocumentHandle}, nil
		})
	f.queue.EXPECT().Enqueue(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, msg model.AnalysisMessage) error {
			assert.Equal(t, createdID, msg.JobID)
			assert.Equal(t, "Is the dividend safe?", msg.Query)
			assert.Equal(t, "financial_document_1.pdf", msg.DocumentHandle)
			assert.Equal(t, f.now, msg.EnqueuedAt)
			return nil
		})

	res, err := f.svc.Submit(ctx, SubmitRequest{Document: body, Query: "  Is the dividend safe?\n"})
	require.NoError(t, err)
	assert.Equal(t, createdID, res.JobID)
	assert.Len(t, res.JobID, 36)
	assert.Equal(t, MessageQueued, res.Message)

	require.Len(t, f.metrics.Named("job.transition"), 1)
	assert.Equal(t, "success", f.metrics.Named("job.transition")[0].Tags["result"])
}

func TestSubmit_BlankQueryUsesDefault(t *testing.T) {
	f := newAnalysisFixture(t)
	f.docs.EXPECT().Save(gomock.Any(), gomock.Any()).Return("h", nil)
	f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(&model.Job{ID: "x"}, nil)
	f.queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, msg model.AnalysisMessage) error {
			assert.Equal(t, config.DefaultAnalysisQuery, msg.Query)
			return nil
		})

	_, err := f.svc.Submit(context.Background(), SubmitRequest{Document: strings.NewReader(""), Query: "   "})
	require.NoError(t, err)
}

func TestSubmit_FreshIDs(t *testing.T) {
	f := newAnalysisFixture(t)
	f.docs.EXPECT().Save(gomock.Any(), gomock.Any()).Return("h", nil).Times(2)
	f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req *model.CreateJobRequest) (*model.Job, error) {
			return &model.Job{ID: req.JobID}, nil
		}).Times(2)
	f.queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	a, err := f.svc.Submit(context.Background(), SubmitRequest{Document: strings.NewReader("a")})
	require.NoError(t, err)
	b, err := f.svc.Submit(context.Background(), SubmitRequest{Document: strings.NewReader("b")})
	require.NoError(t, err)
	assert.NotEqual(t, a.JobID, b.JobID)
}

func TestSubmit_IngestionFailureCreatesNoJob(t *testing.T) {
	f := newAnalysisFixture(t)
	f.docs.EXPECT().Save(gomock.Any(), gomock.Any()).Return("", errors.New("disk full"))

	_, err := f.svc.Submit(context.Background(), SubmitRequest{Document: strings.NewReader("x")})
	require.Error(t, err)
	assert.True(t, apperrors.IsIngestion(err))
	assert.Equal(t, "Error processing financial document: disk full", err.Error())
}

func TestSubmit_CreateFailureRemovesDocument(t *testing.T) {
	f := newAnalysisFixture(t)
	f.docs.EXPECT().Save(gomock.Any(), gomock.Any()).Return("h", nil)
	f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil, errors.New("db down"))
	f.docs.EXPECT().Delete(gomock.Any(), "h").Return(nil)

	_, err := f.svc.Submit(context.Background(), SubmitRequest{Document: strings.NewReader("x")})
	require.Error(t, err)
	assert.True(t, apperrors.IsIngestion(err))
	assert.Contains(t, err.Error(), "db down")
}

func TestSubmit_EnqueueFailureFailsJobAndRemovesDocument(t *testing.T) {
	notifier, sent := captureNotifier()
	f := newAnalysisFixtureWithNotifier(t, notifier)
	f.docs.EXPECT().Save(gomock.Any(), gomock.Any()).Return("h", nil)
	f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req *model.CreateJobRequest) (*model.Job, error) {
			return &model.Job{ID: req.JobID}, nil
		})
	f.queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return(errors.New("redis timeout"))
	f.repo.EXPECT().Complete(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req model.CompleteJobRequest) (model.JobStatus, bool, error) {
			assert.Equal(t, model.JobStatusFailure, req.Status)
			assert.True(t, strings.HasPrefix(req.Result, model.FailurePrefix))
			assert.Contains(t, req.Result, "redis timeout")
			return model.JobStatusPending, true, nil
		})
	f.docs.EXPECT().Delete(gomock.Any(), "h").Return(errors.New("already gone"))

	_, err := f.svc.Submit(context.Background(), SubmitRequest{Query: "Rate the debt load", Document: strings.NewReader("x")})
	require.Error(t, err)
	assert.True(t, apperrors.IsIngestion(err))

	got := sent()
	require.Len(t, got, 1)
	assert.Equal(t, "enqueue", got[0].Reason)
	assert.Equal(t, "Rate the debt load", got[0].Query)
	assert.Equal(t, "h", got[0].DocumentHandle)
	assert.Contains(t, got[0].Error, "redis timeout")
}

func resultPtr(s string) *string { return &s }

func TestStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown job", func(t *testing.T) {
		f := newAnalysisFixture(t)
		f.repo.EXPECT().GetByID(ctx, "nope").Return(nil, data.ErrJobNotFound)

		_, err := f.svc.Status(ctx, "nope")
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
		assert.Equal(t, "Task not found", err.Error())
	})

	t.Run("pending", func(t *testing.T) {
		f := newAnalysisFixture(t)
		f.repo.EXPECT().GetByID(ctx, "j").Return(&model.Job{ID: "j", Status: model.JobStatusPending}, nil)

		res, err := f.svc.Status(ctx, "j")
		require.NoError(t, err)
		assert.Equal(t, &StatusResult{Status: model.JobStatusPending, Message: MessagePending}, res)
	})

	t.Run("failure", func(t *testing.T) {
		f := newAnalysisFixture(t)
		f.repo.EXPECT().GetByID(ctx, "j").Return(&model.Job{
			ID: "j", Status: model.JobStatusFailure, Result: resultPtr("Failed analyzing the document: bad pdf"),
		}, nil)

		res, err := f.svc.Status(ctx, "j")
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusFailure, res.Status)
		assert.Equal(t, "Failed analyzing the document: bad pdf", res.Result)
	})

	t.Run("success persists the artifact on every poll", func(t *testing.T) {
		f := newAnalysisFixture(t)
		job := &model.Job{ID: "j", Status: model.JobStatusSuccess, Result: resultPtr("## Executive Summary")}
		f.repo.EXPECT().GetByID(ctx, "j").Return(job, nil).Times(2)
		f.results.EXPECT().Write(ctx, "j", "## Executive Summary").Return(nil).Times(2)

		first, err := f.svc.Status(ctx, "j")
		require.NoError(t, err)
		second, err := f.svc.Status(ctx, "j")
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("artifact failure does not change the response", func(t *testing.T) {
		f := newAnalysisFixture(t)
		f.repo.EXPECT().GetByID(ctx, "j").Return(&model.Job{ID: "j", Status: model.JobStatusSuccess, Result: resultPtr("r")}, nil)
		f.results.EXPECT().Write(ctx, "j", "r").Return(errors.New("read-only fs"))

		res, err := f.svc.Status(ctx, "j")
		require.NoError(t, err)
		assert.Equal(t, "r", res.Result)
	})

	t.Run("store failure", func(t *testing.T) {
		f := newAnalysisFixture(t)
		f.repo.EXPECT().GetByID(ctx, "j").Return(nil, errors.New("timeout"))

		_, err := f.svc.Status(ctx, "j")
		require.Error(t, err)
		assert.False(t, apperrors.IsNotFound(err))
	})
}
