package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/data"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/domain/model"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/service"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/util"
)

type jobStatusOptions struct {
	JobID   string
	RawJSON bool
}

func parseJobStatusFlags(args []string) (jobStatusOptions, error) {
	fs := flag.NewFlagSet("job-status", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	opts := jobStatusOptions{}
	fs.StringVar(&opts.JobID, "job", "", "Job id (may also be given as the first argument)")
	fs.BoolVar(&opts.RawJSON, "json", false, "Print the job as JSON")

	if err := fs.Parse(args); err != nil {
		return jobStatusOptions{}, err
	}
	if opts.JobID == "" && fs.NArg() > 0 {
		opts.JobID = fs.Arg(0)
	}
	if opts.JobID == "" {
		return jobStatusOptions{}, errors.New("a job id is required")
	}
	return opts, nil
}

func newJobService(cmdCtx *commandContext) (*service.JobService, func(), error) {
	db, _, err := connectInfra(connectInfraOptions{Logger: cmdCtx.Logger, Config: &cmdCtx.Config, WantDB: true})
	if err != nil {
		return nil, nil, err
	}
	release := func() {
		if closeErr := closeInfra(db, nil); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}
	jobs, err := service.NewJobService(service.JobServiceOptions{
		Repo:   data.NewJobRepo(db, data.RepoConfig{Logger: cmdCtx.Logger}),
		Logger: cmdCtx.Logger,
	})
	if err != nil {
		release()
		return nil, nil, err
	}
	return jobs, release, nil
}

func runJobStatus(cmdCtx *commandContext, args []string) error {
	opts, err := parseJobStatusFlags(args)
	if err != nil {
		return err
	}
	jobs, release, err := newJobService(cmdCtx)
	if err != nil {
		return err
	}
	defer release()

	job, err := jobs.Get(cmdCtx.Ctx, opts.JobID)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %s not found", opts.JobID)
	}
	if opts.RawJSON {
		enc := json.NewEncoder(cmdCtx.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(job)
	}
	return printJobStatus(cmdCtx.Out, job)
}

func printJobStatus(w io.Writer, job *model.Job) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writef(tw, "Job\t%s\n", job.ID); err != nil {
		return err
	}
	if err := writef(tw, "Status\t%s\n", job.Status); err != nil {
		return err
	}
	if err := writef(tw, "Document\t%s\n", job.DocumentHandle); err != nil {
		return err
	}
	if err := writef(tw, "Created\t%s\n", job.CreatedAt.UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	if job.CompletedAt != nil {
		if err := writef(tw, "Completed\t%s\n", job.CompletedAt.UTC().Format(time.RFC3339)); err != nil {
			return err
		}
		if err := writef(tw, "Took\t%s\n", util.FormatElapsed(job.CreatedAt, job.CompletedAt)); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush job summary: %w", err)
	}

	if !job.Status.Terminal() {
		return nil
	}
	if err := writeln(w); err != nil {
		return err
	}
	return writeln(w, job.ResultText())
}

func runJobCounts(cmdCtx *commandContext, _ []string) error {
	jobs, release, err := newJobService(cmdCtx)
	if err != nil {
		return err
	}
	defer release()

	counts, err := jobs.Counts(cmdCtx.Ctx)
	if err != nil {
		return err
	}
	return printJobCounts(cmdCtx.Out, counts)
}

func printJobCounts(w io.Writer, counts map[model.JobStatus]int) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "Status\tJobs"); err != nil {
		return err
	}
	for _, status := range []model.JobStatus{model.JobStatusPending, model.JobStatusSuccess, model.JobStatusFailure} {
		if err := writef(tw, "%s\t%d\n", status, counts[status]); err != nil {
			return err
		}
	}
	return tw.Flush()
}
