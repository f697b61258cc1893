package failurenotifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/observability/notify"
)

func TestServiceNotifyJobFailure(t *testing.T) {
	var mu sync.Mutex
	var received []notify.JobFailurePayload
	capture := notify.SinkFunc(func(_ context.Context, payload notify.JobFailurePayload) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, payload)
		return nil
	})

	svc := NewService(Options{
		Sinks: []SinkRegistration{
			{Name: "first", Sink: capture},
			{Name: "second", Sink: capture},
			{Name: "nil", Sink: nil},
		},
	})

	svc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{
		JobID:  "job-1",
		Reason: "analysis",
		Error:  "Failed analyzing the document: no text found in document",
	})

	if len(received) != 2 {
		t.Fatalf("expected 2 payloads, got %d", len(received))
	}
	for _, p := range received {
		if p.Severity != notify.SeverityCritical {
			t.Fatalf("expected severity to default to critical, got %s", p.Severity)
		}
		if p.OccurredAt.IsZero() {
			t.Fatal("expected occurred_at to be stamped")
		}
	}
}

func TestServiceDisabled(t *testing.T) {
	svc := NewService(Options{})
	if svc.Enabled() {
		t.Fatal("expected Enabled() to be false when no sinks registered")
	}
	var nilSvc *Service
	if nilSvc.Enabled() {
		t.Fatal("expected nil service to be disabled")
	}
	nilSvc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{JobID: "job-1"})
}

func TestServiceLogsErrors(t *testing.T) {
	var called bool
	svc := NewService(Options{
		Sinks: []SinkRegistration{
			{Name: "fail", Sink: notify.SinkFunc(func(context.Context, notify.JobFailurePayload) error {
				return errors.New("boom")
			})},
			{Name: "ok", Sink: notify.SinkFunc(func(context.Context, notify.JobFailurePayload) error {
				called = true
				return nil
			})},
		},
	})

	svc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{JobID: "job-1"})
	if !called {
		t.Fatal("expected healthy sink to receive the payload despite the failing one")
	}
}

func TestServiceSkipsPayloadWithoutJobID(t *testing.T) {
	var called bool
	svc := NewService(Options{
		Sinks: []SinkRegistration{{Name: "capture", Sink: notify.SinkFunc(func(context.Context, notify.JobFailurePayload) error {
			called = true
			return nil
		})}},
	})

	svc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{})
	if called {
		t.Fatal("expected sink not to be invoked without a job id")
	}
}

func TestServiceIgnoresCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var sinkErr error
	svc := NewService(Options{
		SendTimeout: time.Second,
		Sinks: []SinkRegistration{{Name: "capture", Sink: notify.SinkFunc(func(ctx context.Context, _ notify.JobFailurePayload) error {
			sinkErr = ctx.Err()
			return nil
		})}},
	})

	svc.NotifyJobFailure(ctx, notify.JobFailurePayload{JobID: "job-1"})
	if sinkErr != nil {
		t.Fatalf("expected live send context, got %v", sinkErr)
	}
}
