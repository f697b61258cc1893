package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/core"
)

// ClaudeOptions configures a Claude generator.
type ClaudeOptions struct {
	APIKey      string
	Model       string
	Temperature float32
	// TopP is sent only when positive.
	TopP      float32
	MaxTokens int
	BaseURL   string
}

// Claude generates text with the Anthropic Messages API.
type Claude struct {
	client      anthropic.Client
	model       string
	temperature float32
	topP        float32
	maxTokens   int64
}

var _ core.Generator = (*Claude)(nil)

// NewClaude creates an Anthropic client. Retries are left to the caller.
func NewClaude(opts ClaudeOptions) (*Claude, error) {
	if opts.APIKey == "" {
		return nil, errors.New("anthropic api key is required")
	}
	if opts.Model == "" {
		return nil, errors.New("anthropic model is required")
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Claude{
		client:      anthropic.NewClient(reqOpts...),
		model:       opts.Model,
		temperature: opts.Temperature,
		topP:        opts.TopP,
		maxTokens:   int64(maxTokens),
	}, nil
}

// Generate sends one user message and joins the text blocks of the reply.
func (c *Claude) Generate(ctx context.Context, req core.GenerateRequest) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
		Temperature: anthropic.Float(float64(c.temperature)),
	}
	if c.topP > 0 {
		params.TopP = anthropic.Float(float64(c.topP))
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude generate: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	out := strings.TrimSpace(text.String())
	if out == "" {
		return "", errors.New("empty response from claude")
	}
	return out, nil
}

// Name identifies the provider in logs.
func (c *Claude) Name() string { return "anthropic/" + c.model }
