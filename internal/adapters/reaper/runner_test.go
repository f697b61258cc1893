package reaper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/PratikB30/crewai-financial-doc-analyzer/config"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/domain/model"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/mocks"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/service"
)

func newJobService(t *testing.T, ctrl *gomock.Controller) *service.JobService {
	t.Helper()
	jobs, err := service.NewJobService(service.JobServiceOptions{Repo: mocks.NewMockJobRepository(ctrl)})
	require.NoError(t, err)
	return jobs
}

func TestNewRunner_RequiresQueue(t *testing.T) {
	_, err := NewRunner(RunnerOptions{})
	require.EqualError(t, err, "job queue is required")
}

func TestNewRunner_DefaultsMaxDeliveries(t *testing.T) {
	ctrl := gomock.NewController(t)
	queue := mocks.NewMockJobQueue(ctrl)

	runner, err := NewRunner(RunnerOptions{
		Queue:     queue,
		Jobs:      newJobService(t, ctrl),
		Documents: mocks.NewMockDocumentStore(ctrl),
		Config:    config.ReaperConfig{Interval: time.Minute, BatchSize: 5},
	})
	require.NoError(t, err)

	queue.EXPECT().RequeueExpired(gomock.Any(), 5, 1).Return(&model.RequeueResult{}, nil)
	res, err := runner.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &service.SweepResult{}, res)
}

func TestRunner_SweepOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	queue := mocks.NewMockJobQueue(ctrl)

	runner, err := NewRunner(RunnerOptions{
		Queue:     queue,
		Jobs:      newJobService(t, ctrl),
		Documents: mocks.NewMockDocumentStore(ctrl),
		Config:    config.ReaperConfig{Interval: time.Minute, BatchSize: 5},
		Queueing:  config.QueueConfig{MaxDeliveries: 4},
	})
	require.NoError(t, err)

	requeued := []model.Delivery{{Receipt: "a"}, {Receipt: "b"}}
	queue.EXPECT().RequeueExpired(gomock.Any(), 5, 4).Return(&model.RequeueResult{Requeued: requeued}, nil)

	res, err := runner.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Requeued)
	assert.Zero(t, res.Exhausted)
}

func TestRunner_RunStopsOnCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	queue := mocks.NewMockJobQueue(ctrl)
	queue.EXPECT().RequeueExpired(gomock.Any(), gomock.Any(), gomock.Any()).Return(&model.RequeueResult{}, nil).AnyTimes()

	runner, err := NewRunner(RunnerOptions{
		Queue:     queue,
		Jobs:      newJobService(t, ctrl),
		Documents: mocks.NewMockDocumentStore(ctrl),
		Config:    config.ReaperConfig{Interval: time.Minute, BatchSize: 5},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after cancel")
	}
}
