package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/PratikB30/crewai-financial-doc-analyzer/internal/errors"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/observability/statsd"
)

func TestEmitJobLifecycle(t *testing.T) {
	var rec statsd.Recorder
	EmitJobLifecycle(&rec, JobMetric{
		Transition: TransitionFailed,
		Result:     ResultError,
		Duration:   2 * time.Second,
		Err:        apperrors.Extraction(errors.New("bad xref")),
	})

	counts := rec.Named("job.transition")
	require.Len(t, counts, 1)
	assert.Equal(t, map[string]string{
		"transition":  "failed",
		"result":      "error",
		"error_class": "extraction",
	}, counts[0].Tags)

	timings := rec.Named("job.duration")
	require.Len(t, timings, 1)
	assert.InDelta(t, 2000, timings[0].Value, 0.001)
}

func TestEmitStage_SuccessHasNoErrorClass(t *testing.T) {
	var rec statsd.Recorder
	EmitStage(&rec, StageMetric{Stage: "risk_assessment", Result: ResultSuccess, Err: errors.New("ignored")})

	counts := rec.Named("pipeline.stage")
	require.Len(t, counts, 1)
	assert.NotContains(t, counts[0].Tags, "error_class")
	assert.Empty(t, rec.Named("pipeline.stage.duration"))
}

func TestEmitRequeueAndDepth(t *testing.T) {
	var rec statsd.Recorder
	EmitRequeue(&rec, 3, 0)
	EmitRequeue(&rec, 1, 2)
	EmitQueueDepth(&rec, 5, 1, 0)

	assert.Len(t, rec.Named("queue.requeued"), 2)
	assert.Len(t, rec.Named("queue.dead_lettered"), 1)
	assert.Len(t, rec.Named("queue.depth"), 3)
}

func TestNilSinkIsNoop(t *testing.T) {
	EmitJobLifecycle(nil, JobMetric{})
	EmitStage(nil, StageMetric{})
	EmitRequeue(nil, 1, 1)
	EmitQueueDepth(nil, 1, 1, 1)
}

func TestCloneTags(t *testing.T) {
	assert.Nil(t, CloneTags(nil))
	src := map[string]string{"a": "b"}
	cp := CloneTags(src)
	cp["a"] = "c"
	assert.Equal(t, "b", src["a"])
}
