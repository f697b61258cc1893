// Package pipeline runs the analysis stage graph: extraction, three concurrent
// analyses, then synthesis.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/core"
	apperrors "github.com/PratikB30/crewai-financial-doc-analyzer/internal/errors"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/observability/metrics"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/observability/statsd"
)

// Options wires a Pipeline.
type Options struct {
	Extractor core.TextExtractor
	// Generator is optional; without it the stages render templates only.
	Generator core.Generator
	Metrics   statsd.Sink
	Logger    *slog.Logger
	// Stages overrides the default financial, risk and investment stages, in that order.
	Stages []Stage
}

// Pipeline implements core.Analyzer.
type Pipeline struct {
	extractor   core.TextExtractor
	stages      []Stage
	synthesizer *Synthesizer
	metrics     statsd.Sink
	logger      *slog.Logger
}

var _ core.Analyzer = (*Pipeline)(nil)

// New builds the stage graph.
func New(opts Options) (*Pipeline, error) {
	if opts.Extractor == nil {
		return nil, errors.New("extractor is required")
	}
	stages := opts.Stages
	if len(stages) == 0 {
		stages = []Stage{
			NewFinancialAnalysis(opts.Generator),
			NewRiskAssessment(opts.Generator),
			NewInvestmentAnalysis(opts.Generator),
		}
	}
	if len(stages) != 3 {
		return nil, fmt.Errorf("pipeline needs exactly 3 analysis stages, got %d", len(stages))
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		extractor:   opts.Extractor,
		stages:      stages,
		synthesizer: NewSynthesizer(opts.Generator),
		metrics:     opts.Metrics,
		logger:      logger.With("component", "pipeline"),
	}, nil
}

// Run extracts the document, runs the analyses concurrently and synthesizes the
// report. Extraction and synthesis failures are returned; analysis failures are
// folded into their section of the report.
func (p *Pipeline) Run(ctx context.Context, in core.AnalysisInput) (string, error) {
	start := time.Now()
	text, err := p.extractor.Extract(ctx, in.DocumentPath)
	if err != nil {
		if !apperrors.IsExtraction(err) {
			err = apperrors.Extraction(err)
		}
		p.emit("extraction", start, err)
		return "", err
	}
	p.emit("extraction", start, nil)

	outputs := p.analyze(ctx, StageInput{Text: text, Query: in.Query})

	start = time.Now()
	report, err := p.synthesizer.Synthesize(ctx, SynthesisInput{
		Text:       text,
		Query:      in.Query,
		Financial:  outputs[0],
		Risk:       outputs[1],
		Investment: outputs[2],
	})
	p.emit("synthesis", start, err)
	if err != nil {
		return "", err
	}
	return report, nil
}

// stageRun is the outcome of one stage; each goroutine writes only its own.
type stageRun struct {
	out  string
	err  error
	took time.Duration
}

// analyze runs every stage in its own goroutine. A stage error never cancels
// its siblings; after Wait each failed slot is folded into an error section.
func (p *Pipeline) analyze(ctx context.Context, in StageInput) []string {
	runs := make([]stageRun, len(p.stages))
	var g errgroup.Group
	for i, stage := range p.stages {
		g.Go(func() error {
			runs[i] = p.runStage(ctx, stage, in)
			return runs[i].err
		})
	}
	if err := g.Wait(); err != nil {
		p.logger.DebugContext(ctx, "analysis stages finished with failures", "first_error", err)
	}

	outputs := make([]string, len(runs))
	for i, run := range runs {
		stage := p.stages[i]
		if run.err != nil {
			outputs[i] = p.absorb(ctx, stage, run)
			continue
		}
		metrics.EmitStage(p.metrics, metrics.StageMetric{
			Stage:    stage.Name(),
			Result:   metrics.ResultSuccess,
			Duration: run.took,
		})
		outputs[i] = run.out
	}
	return outputs
}

func (p *Pipeline) runStage(ctx context.Context, stage Stage, in StageInput) (run stageRun) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			run = stageRun{err: fmt.Errorf("panic: %v", r)}
		}
		run.took = time.Since(start)
	}()

	out, err := stage.Analyze(ctx, in)
	return stageRun{out: out, err: err}
}

// absorb turns a failed stage into the text of its report section.
func (p *Pipeline) absorb(ctx context.Context, stage Stage, run stageRun) string {
	err := apperrors.Stage(stage.Description(), run.err)
	p.logger.WarnContext(ctx, "analysis stage failed; continuing",
		"stage", stage.Name(),
		"error", run.err,
	)
	metrics.EmitStage(p.metrics, metrics.StageMetric{
		Stage:    stage.Name(),
		Result:   metrics.ResultAbsorbed,
		Duration: run.took,
		Err:      err,
	})
	return err.Error()
}

func (p *Pipeline) emit(stage string, start time.Time, err error) {
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.EmitStage(p.metrics, metrics.StageMetric{
		Stage:    stage,
		Result:   result,
		Duration: time.Since(start),
		Err:      err,
	})
}
