package config

import "strings"

const (
	// DefaultAnalysisQuery is used when a submission does not carry a query.
	DefaultAnalysisQuery = "Analyze this financial document for investment insights"

	defaultMaxUploadBytes int64 = 32 << 20
)

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8000"`

	// MaxUploadBytes caps the size of an uploaded document.
	MaxUploadBytes int64 `env:"HTTP_MAX_UPLOAD_BYTES" envDefault:"33554432"`

	// DefaultQuery is applied to submissions without a query form field.
	DefaultQuery string `env:"HTTP_DEFAULT_QUERY" envDefault:"Analyze this financial document for investment insights"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	if h.MaxUploadBytes <= 0 {
		h.MaxUploadBytes = defaultMaxUploadBytes
	}
	h.DefaultQuery = strings.TrimSpace(h.DefaultQuery)
	if h.DefaultQuery == "" {
		h.DefaultQuery = DefaultAnalysisQuery
	}
}
