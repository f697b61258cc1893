// Package llm adapts hosted language models to core.Generator.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/PratikB30/crewai-financial-doc-analyzer/config"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/core"
)

const defaultMaxRetries = 2

// New builds the configured generator wrapped with retries and the optional
// per-call timeout. It returns nil, nil when the provider is "none".
func New(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (core.Generator, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	var (
		base core.Generator
		name string
	)
	switch cfg.Provider {
	case config.LLMProviderGemini:
		g, err := NewGemini(ctx, GeminiOptions{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
			MaxTokens:   cfg.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		base, name = g, g.Name()
	case config.LLMProviderAnthropic:
		c, err := NewClaude(ClaudeOptions{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
			MaxTokens:   cfg.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		base, name = c, c.Name()
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}

	return NewRetrying(base, RetryOptions{
		MaxRetries: defaultMaxRetries,
		Timeout:    cfg.Timeout,
		Name:       name,
		Logger:     logger,
	}), nil
}

// RetryOptions configures a Retrying generator.
type RetryOptions struct {
	MaxRetries int
	Timeout    time.Duration // per attempt; 0 means no limit
	Backoff    func(attempt int) time.Duration
	Name       string
	Logger     *slog.Logger
}

// Retrying retries failed generations with linear backoff.
type Retrying struct {
	next       core.Generator
	maxRetries int
	timeout    time.Duration
	backoff    func(int) time.Duration
	logger     *slog.Logger
}

// NewRetrying wraps next.
func NewRetrying(next core.Generator, opts RetryOptions) *Retrying {
	backoff := opts.Backoff
	if backoff == nil {
		backoff = func(attempt int) time.Duration { return time.Duration(attempt+1) * 2 * time.Second }
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Retrying{
		next:       next,
		maxRetries: maxRetries,
		timeout:    opts.Timeout,
		backoff:    backoff,
		logger:     logger.With("component", "llm", "provider", opts.Name),
	}
}

// Generate calls the wrapped generator until it succeeds, the retries run out,
// or ctx is done.
func (r *Retrying) Generate(ctx context.Context, req core.GenerateRequest) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		out, err := r.attempt(ctx, req)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil || attempt == r.maxRetries {
			break
		}

		wait := r.backoff(attempt)
		r.logger.WarnContext(ctx, "retrying generation",
			"attempt", attempt+1,
			"backoff", wait,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}
	return "", fmt.Errorf("generation failed after %d attempts: %w", r.maxRetries+1, lastErr)
}

func (r *Retrying) attempt(ctx context.Context, req core.GenerateRequest) (string, error) {
	if r.timeout <= 0 {
		return r.next.Generate(ctx, req)
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.next.Generate(ctx, req)
}
