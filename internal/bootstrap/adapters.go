package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/PratikB30/crewai-financial-doc-analyzer/config"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/adapters/jobrunner"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/adapters/reaper"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/core"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/observability/statsd"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/service"
)

// AnalysisWorkerConfig contains configuration for the analysis worker.
type AnalysisWorkerConfig struct {
	Queue        core.JobQueue
	Analyzer     core.Analyzer
	Jobs         *service.JobService
	Documents    core.DocumentStore
	Concurrency  int
	PollInterval time.Duration
	Logger       *slog.Logger
	Metrics      statsd.Sink
}

// RunAnalysisWorker claims deliveries and runs the analysis pipeline until ctx is cancelled.
func RunAnalysisWorker(ctx context.Context, cfg AnalysisWorkerConfig) error {
	if cfg.Analyzer == nil {
		return errors.New("analysis worker requires an analyzer")
	}
	runner, err := jobrunner.NewRunner(jobrunner.RunnerOptions{
		Queue:        cfg.Queue,
		Analyzer:     cfg.Analyzer,
		Jobs:         cfg.Jobs,
		Documents:    cfg.Documents,
		Concurrency:  cfg.Concurrency,
		PollInterval: cfg.PollInterval,
		Logger:       cfg.Logger,
		Metrics:      cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create analysis runner: %w", err)
	}

	if runErr := runner.Run(ctx); runErr != nil {
		return fmt.Errorf("run analysis runner: %w", runErr)
	}
	return nil
}

// ReaperConfig contains configuration for the redelivery reaper.
type ReaperConfig struct {
	Queue     core.JobQueue
	Jobs      *service.JobService
	Documents core.DocumentStore
	Reaper    config.ReaperConfig
	Queueing  config.QueueConfig
	Logger    *slog.Logger
	Metrics   statsd.Sink
}

// NewReaperRunner builds the reaper adapter; the admin CLI uses it for one-off sweeps.
func NewReaperRunner(cfg ReaperConfig) (*reaper.Runner, error) {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		Queue:     cfg.Queue,
		Jobs:      cfg.Jobs,
		Documents: cfg.Documents,
		Config:    cfg.Reaper,
		Queueing:  cfg.Queueing,
		Logger:    cfg.Logger,
		Metrics:   cfg.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("create reaper runner: %w", err)
	}
	return runner, nil
}

// RunReaper starts the reaper service.
func RunReaper(ctx context.Context, cfg ReaperConfig) error {
	runner, err := NewReaperRunner(cfg)
	if err != nil {
		return err
	}
	return runner.Run(ctx)
}
