package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/bootstrap"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/data"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/domain/model"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/service"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/storage"
)

func runQueueStats(cmdCtx *commandContext, _ []string) error {
	_, redisClient, err := connectInfra(connectInfraOptions{Logger: cmdCtx.Logger, Config: &cmdCtx.Config, WantRedis: true})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := closeInfra(nil, redisClient); closeErr != nil {
			cmdCtx.Logger.Warn("redis close failed", "error", closeErr)
		}
	}()

	queue, err := data.NewRedisQueue(data.RedisQueueOptions{
		Client: redisClient,
		Key:    cmdCtx.Config.Queue.Key,
		Logger: cmdCtx.Logger,
	})
	if err != nil {
		return err
	}
	stats, err := queue.Stats(cmdCtx.Ctx)
	if err != nil {
		return fmt.Errorf("read queue stats: %w", err)
	}
	return printQueueStats(cmdCtx.Out, cmdCtx.Config.Queue.Key, stats)
}

func printQueueStats(w io.Writer, key string, stats *model.QueueStats) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writef(tw, "Queue\t%s\n", key); err != nil {
		return err
	}
	if err := writef(tw, "Pending\t%d\n", stats.Pending); err != nil {
		return err
	}
	if err := writef(tw, "In flight\t%d\n", stats.InFlight); err != nil {
		return err
	}
	if err := writef(tw, "Dead letter\t%d\n", stats.DeadLetter); err != nil {
		return err
	}
	return tw.Flush()
}

type requeueOptions struct {
	BatchSize int
}

func parseRequeueFlags(args []string, defaultBatch int) (requeueOptions, error) {
	fs := flag.NewFlagSet("requeue-expired", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	opts := requeueOptions{}
	fs.IntVar(&opts.BatchSize, "batch", defaultBatch, "Expired deliveries handled per batch")
	if err := fs.Parse(args); err != nil {
		return requeueOptions{}, err
	}
	if opts.BatchSize < 1 {
		return requeueOptions{}, errors.New("--batch must be at least 1")
	}
	return opts, nil
}

func runRequeueExpired(cmdCtx *commandContext, args []string) error {
	cfg := cmdCtx.Config
	opts, err := parseRequeueFlags(args, cfg.Reaper.BatchSize)
	if err != nil {
		return err
	}

	db, redisClient, err := connectInfra(connectInfraOptions{
		Logger:    cmdCtx.Logger,
		Config:    &cfg,
		WantDB:    true,
		WantRedis: true,
	})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := closeInfra(db, redisClient); closeErr != nil {
			cmdCtx.Logger.Warn("infra close failed", "error", closeErr)
		}
	}()

	jobs, err := service.NewJobService(service.JobServiceOptions{
		Repo:            data.NewJobRepo(db, data.RepoConfig{Logger: cmdCtx.Logger}),
		Logger:          cmdCtx.Logger,
		FailureNotifier: bootstrap.BuildFailureNotifier(cmdCtx.Logger, cfg.Observability.Notifications),
	})
	if err != nil {
		return err
	}
	queue, err := data.NewRedisQueue(data.RedisQueueOptions{
		Client:            redisClient,
		Key:               cfg.Queue.Key,
		VisibilityTimeout: cfg.Queue.VisibilityTimeout,
		Logger:            cmdCtx.Logger,
	})
	if err != nil {
		return err
	}
	docs, err := storage.NewDocumentStore(storage.DocumentStoreOptions{Dir: cfg.Storage.DataDir, Logger: cmdCtx.Logger})
	if err != nil {
		return err
	}

	reaperCfg := cfg.Reaper
	reaperCfg.BatchSize = opts.BatchSize
	runner, err := bootstrap.NewReaperRunner(bootstrap.ReaperConfig{
		Queue:     queue,
		Jobs:      jobs,
		Documents: docs,
		Reaper:    reaperCfg,
		Queueing:  cfg.Queue,
		Logger:    cmdCtx.Logger,
	})
	if err != nil {
		return err
	}

	res, err := runner.SweepOnce(cmdCtx.Ctx)
	if res != nil {
		if printErr := writef(cmdCtx.Out, "Requeued %d deliveries, dead-lettered %d.\n", res.Requeued, res.Exhausted); printErr != nil {
			err = errors.Join(err, printErr)
		}
	}
	return err
}
