// Package metrics emits the analyzer's job, stage and queue metrics.
package metrics

import (
	"time"

	obserrors "github.com/PratikB30/crewai-financial-doc-analyzer/internal/observability/errors"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess  = "success"
	ResultError    = "error"
	ResultAbsorbed = "absorbed"
	ResultNoop     = "noop"
)

// Job transitions.
const (
	TransitionSubmitted = "submitted"
	TransitionCompleted = "completed"
	TransitionFailed    = "failed"
	TransitionExhausted = "exhausted"
)

// JobMetric captures one job lifecycle event.
type JobMetric struct {
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitJobLifecycle emits job.transition and, when a duration is known, job.duration.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{
		"transition": in.Transition,
		"result":     in.Result,
	}
	addErrorClass(tags, in.Result, in.Err)

	sink.Count("job.transition", 1, tags)
	if in.Duration > 0 {
		sink.Timing("job.duration", in.Duration, CloneTags(tags))
	}
}

// StageMetric captures the outcome of one pipeline stage.
type StageMetric struct {
	Stage    string
	Result   string
	Duration time.Duration
	Err      error
}

// EmitStage emits pipeline.stage and pipeline.stage.duration.
func EmitStage(sink statsd.Sink, in StageMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{
		"stage":  in.Stage,
		"result": in.Result,
	}
	addErrorClass(tags, in.Result, in.Err)

	sink.Count("pipeline.stage", 1, tags)
	if in.Duration > 0 {
		sink.Timing("pipeline.stage.duration", in.Duration, CloneTags(tags))
	}
}

// EmitRequeue reports a reaper sweep.
func EmitRequeue(sink statsd.Sink, requeued, exhausted int) {
	if sink == nil {
		return
	}
	sink.Count("queue.requeued", int64(requeued), nil)
	if exhausted > 0 {
		sink.Count("queue.dead_lettered", int64(exhausted), nil)
	}
}

// EmitQueueDepth reports broker gauges.
func EmitQueueDepth(sink statsd.Sink, pending, inFlight, deadLetter int64) {
	if sink == nil {
		return
	}
	sink.Gauge("queue.depth", float64(pending), map[string]string{"state": "pending"})
	sink.Gauge("queue.depth", float64(inFlight), map[string]string{"state": "in_flight"})
	sink.Gauge("queue.depth", float64(deadLetter), map[string]string{"state": "dead_letter"})
}

func addErrorClass(tags map[string]string, result string, err error) {
	if err == nil || (result != ResultError && result != ResultAbsorbed) {
		return
	}
	if class := obserrors.Classify(err); class != "" {
		tags["error_class"] = class
	}
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
