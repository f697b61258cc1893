package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/PratikB30/crewai-financial-doc-analyzer/config"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/core"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/data"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/extract"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/llm"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/observability/notify/pagerduty"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/observability/notify/slack"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/observability/statsd"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/pipeline"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/service"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/service/failurenotifier"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/storage"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Jobs      *service.JobService
	Analysis  *service.AnalysisService
	Documents *storage.DocumentStore
	Results   *storage.ResultStore
	Queue     *data.RedisQueue
	// Analyzer is only built when the analysis worker is enabled.
	Analyzer        core.Analyzer
	MetricsSink     *statsd.Client
	FailureNotifier *failurenotifier.Service
}

// Close releases resources owned by the container.
func (c ServiceContainer) Close() error {
	if c.MetricsSink == nil {
		return nil
	}
	return c.MetricsSink.Close()
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// buildMetricsSink returns nil when metrics are disabled or the agent cannot be dialled.
func buildMetricsSink(logger *slog.Logger, cfg config.ObservabilityMetricsConfig) *statsd.Client {
	if !cfg.IsEnabled() {
		return nil
	}
	client, err := statsd.NewClient(statsd.Config{
		Enabled: true,
		Address: cfg.StatsdAddress,
		Prefix:  cfg.Prefix,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to initialise statsd client", "error", err)
		return nil
	}
	return client
}

// metricsSink avoids handing a typed nil *statsd.Client to a statsd.Sink field.
//
//nolint:ireturn // consumers accept the Sink interface.
func metricsSink(c *statsd.Client) statsd.Sink {
	if c == nil {
		return nil
	}
	return c
}

// BuildFailureNotifier registers the enabled alert sinks. A sink that fails to
// initialise is logged and left out; the notifier with no sinks is a no-op.
func BuildFailureNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	if !cfg.Enabled {
		return failurenotifier.NewService(failurenotifier.Options{Logger: logger})
	}

	sinks := make([]failurenotifier.SinkRegistration, 0, 2)

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:       cfg.Slack.WebhookURL,
			Channel:          cfg.Slack.Channel,
			Username:         cfg.Slack.Username,
			Timeout:          cfg.Timeout,
			RetryLimit:       cfg.RetryLimit,
			ResultsURLPrefix: cfg.Slack.ResultsURLPrefix,
		})
		if err != nil {
			logger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "slack", Sink: client})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			logger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "pagerduty", Sink: client})
		}
	}

	if len(sinks) > 0 {
		logger.Info("failure notifications enabled", "sinks", len(sinks))
	}
	return failurenotifier.NewService(failurenotifier.Options{
		Logger: logger,
		Sinks:  sinks,
	})
}

func buildAnalyzer(ctx context.Context, cfg *config.AppConfig, sink statsd.Sink, logger *slog.Logger) (core.Analyzer, error) {
	gen, err := llm.New(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("build llm generator: %w", err)
	}
	if gen == nil {
		logger.Warn("no language model configured; analysis stages render templates only")
	} else {
		logger.Info("language model configured", "provider", cfg.LLM.Provider, "model", cfg.LLM.Model)
	}

	analyzer, err := pipeline.New(pipeline.Options{
		Extractor: extract.NewPDFExtractor(extract.Options{Logger: logger}),
		Generator: gen,
		Metrics:   sink,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	return analyzer, nil
}

// NewServices wires the job store, broker, document storage and, for worker
// processes, the analysis pipeline.
func NewServices(ctx context.Context, deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service config is required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sinkClient := buildMetricsSink(logger, cfg.Observability.Metrics)
	sink := metricsSink(sinkClient)
	notifier := BuildFailureNotifier(logger, cfg.Observability.Notifications)

	jobs, err := service.NewJobService(service.JobServiceOptions{
		Repo:            data.NewJobRepo(deps.DB, data.RepoConfig{Logger: logger}),
		Logger:          logger,
		FailureNotifier: notifier,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("wire job service: %w", err)
	}

	queue, err := data.NewRedisQueue(data.RedisQueueOptions{
		Client:            deps.RedisClient,
		Key:               cfg.Queue.Key,
		VisibilityTimeout: cfg.Queue.VisibilityTimeout,
		Logger:            logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("wire queue: %w", err)
	}

	docs, err := storage.NewDocumentStore(storage.DocumentStoreOptions{
		Dir:      cfg.Storage.DataDir,
		MaxBytes: cfg.HTTP.MaxUploadBytes,
		Logger:   logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("wire document store: %w", err)
	}
	results, err := storage.NewResultStore(cfg.Storage.OutputDir)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("wire result store: %w", err)
	}

	analysis, err := service.NewAnalysisService(service.AnalysisServiceOptions{
		Jobs:         jobs,
		Documents:    docs,
		Queue:        queue,
		Results:      results,
		DefaultQuery: cfg.HTTP.DefaultQuery,
		Logger:       logger,
		Metrics:      sink,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("wire analysis service: %w", err)
	}

	container := ServiceContainer{
		Jobs:        jobs,
		Analysis:    analysis,
		Documents:   docs,
		Results:     results,
		Queue:           queue,
		MetricsSink:     sinkClient,
		FailureNotifier: notifier,
	}

	if cfg.IsAnalysisWorkerEnabled() {
		analyzer, buildErr := buildAnalyzer(ctx, cfg, sink, logger)
		if buildErr != nil {
			return ServiceContainer{}, buildErr
		}
		container.Analyzer = analyzer
	}

	return container, nil
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

func startHTTPServerIfEnabled(deps *serviceStartupDeps) *http.Server {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		Logger:   deps.logger,
	})
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}
	logger := deps.logger
	if logger == nil {
		logger = slog.Default()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				logger.WarnContext(ctx, "dropping background service error", "service", descriptor.name, "error", errMsg)
			}
		}
	}()

	logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))
	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}
		handles = append(handles, backgroundServiceHandle{mode: svc.mode, name: svc.name, done: done})
	}
	return handles
}

func newAnalysisWorkerBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeAnalysisWorker,
		name: "analysis worker",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil || deps.cfg.Config == nil {
				return nil
			}
			svcs := deps.cfg.Services
			return RunAnalysisWorker(ctx, AnalysisWorkerConfig{
				Queue:        svcs.Queue,
				Analyzer:     svcs.Analyzer,
				Jobs:         svcs.Jobs,
				Documents:    svcs.Documents,
				Concurrency:  deps.cfg.Config.Worker.Concurrency,
				PollInterval: deps.cfg.Config.Queue.PollInterval,
				Logger:       deps.logger,
				Metrics:      metricsSink(svcs.MetricsSink),
			})
		},
	}
}

func newReaperBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeReaper,
		name: "reaper",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil || deps.cfg.Config == nil {
				return nil
			}
			svcs := deps.cfg.Services
			return RunReaper(ctx, ReaperConfig{
				Queue:     svcs.Queue,
				Jobs:      svcs.Jobs,
				Documents: svcs.Documents,
				Reaper:    deps.cfg.Config.Reaper,
				Queueing:  deps.cfg.Config.Queue,
				Logger:    deps.logger,
				Metrics:   metricsSink(svcs.MetricsSink),
			})
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newAnalysisWorkerBackgroundService(deps),
		newReaperBackgroundService(deps),
	}
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

func startServices(deps *serviceStartupDeps) ServiceStartupResult {
	return ServiceStartupResult{
		HTTPServer: startHTTPServerIfEnabled(deps),
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}
}

// RunServicesWithShutdown starts all enabled services and blocks until a shutdown
// signal arrives or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}
	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	result := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})

	return waitForShutdown(shutdownConfig{
		ctx:         serviceCtx,
		cancel:      cancel,
		errCh:       errCh,
		httpServer:  result.HTTPServer,
		logger:      logger,
		backgrounds: result.Background,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	count := 0
	for _, mode := range config.ValidServiceModes() {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	return errorChannelCapacity(enabled) + 1
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx         context.Context
	cancel      context.CancelFunc
	errCh       <-chan error
	httpServer  *http.Server
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
}

func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel()
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel()
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop drains the HTTP server, then waits for the background services.
// Workers interrupted mid-analysis leave their deliveries unacked for redelivery.
func gracefulStop(cfg shutdownConfig) error {
	if cfg.httpServer != nil {
		// The service context is already cancelled; the drain gets a fresh deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWaitTimeout)
		defer cancel()

		if err := ShutdownHTTPServer(ShutdownConfig{
			Context: shutdownCtx,
			Server:  cfg.httpServer,
			Logger:  cfg.logger,
		}); err != nil {
			return err
		}
	}

	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}
	return nil
}

func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
