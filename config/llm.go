package config

import (
	"os"
	"strings"
	"time"
)

// LLMProvider names the language model backend used by the analysis stages.
type LLMProvider string

const (
	LLMProviderGemini    LLMProvider = "gemini"
	LLMProviderAnthropic LLMProvider = "anthropic"
	LLMProviderNone      LLMProvider = "none"
)

// Default models per provider.
const (
	DefaultGeminiModel    = "gemini-2.0-flash"
	DefaultAnthropicModel = "claude-sonnet-4-20250514"
)

// LLMConfig configures the optional model-backed commentary in the analysis stages.
// With provider "none" (or no API key) the stages render their templates only.
type LLMConfig struct {
	Provider    LLMProvider   `env:"LLM_PROVIDER"    envDefault:"gemini"`
	Model       string        `env:"LLM_MODEL"`
	APIKey      string        `env:"LLM_API_KEY"`
	Temperature float32       `env:"LLM_TEMPERATURE" envDefault:"0.3"`
	MaxTokens   int           `env:"LLM_MAX_TOKENS"  envDefault:"8192"`
	TopP        float32       `env:"LLM_TOP_P"       envDefault:"0.9"`
	Timeout     time.Duration `env:"LLM_TIMEOUT"     envDefault:"0s"`
}

// Sanitize resolves provider specific defaults and falls back to "none"
// when no credentials are available.
func (l *LLMConfig) Sanitize() {
	l.Provider = LLMProvider(strings.ToLower(strings.TrimSpace(string(l.Provider))))
	switch l.Provider {
	case LLMProviderGemini, LLMProviderAnthropic, LLMProviderNone:
	default:
		l.Provider = LLMProviderNone
	}

	l.APIKey = strings.TrimSpace(l.APIKey)
	if l.APIKey == "" {
		switch l.Provider {
		case LLMProviderGemini:
			l.APIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
		case LLMProviderAnthropic:
			l.APIKey = strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
		}
	}
	if l.APIKey == "" {
		l.Provider = LLMProviderNone
	}

	l.Model = strings.TrimSpace(l.Model)
	// Accept "gemini/<model>" and "anthropic/<model>" style names.
	if prefix, name, ok := strings.Cut(l.Model, "/"); ok && LLMProvider(strings.ToLower(prefix)) == l.Provider {
		l.Model = name
	}
	if l.Model == "" {
		switch l.Provider {
		case LLMProviderGemini:
			l.Model = DefaultGeminiModel
		case LLMProviderAnthropic:
			l.Model = DefaultAnthropicModel
		}
	}

	if l.Temperature < 0 || l.Temperature > 2 {
		l.Temperature = 0.3
	}
	if l.TopP <= 0 || l.TopP > 1 {
		l.TopP = 0.9
	}
	if l.MaxTokens < 1 {
		l.MaxTokens = 8192
	}
	if l.Timeout < 0 {
		l.Timeout = 0
	}
}

// Enabled reports whether a model backend is configured.
func (l *LLMConfig) Enabled() bool {
	return l.Provider != LLMProviderNone && l.Provider != "" && l.APIKey != ""
}
