package config

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Postgres job store and Redis broker connections
//   - http.go: HTTP server and upload limits
//   - storage.go: document and output artifact directories
//   - llm.go: language model provider used by the analysis stages
//   - services.go: service modes, worker, queue and reaper tuning
type AppConfig struct {
	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// HTTP server configuration
	HTTP HTTPConfig

	// Document and result storage
	Storage StorageConfig

	// Language model configuration
	LLM LLMConfig

	// Service mode configuration
	Services string `env:"SERVICES" envDefault:"http,analysis-worker,reaper"`

	// Broker configuration
	Queue QueueConfig

	// Analysis worker configuration
	Worker WorkerConfig

	// Redelivery reaper configuration
	Reaper ReaperConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.Storage.Sanitize()
	c.LLM.Sanitize()
	c.Queue.Sanitize()
	c.Worker.Sanitize()
	c.Reaper.Sanitize()
	c.Observability.Sanitize()
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool {
	return c.isEnabled(ServiceModeHTTP)
}

// IsAnalysisWorkerEnabled returns true if the analysis worker service is enabled.
func (c *AppConfig) IsAnalysisWorkerEnabled() bool {
	return c.isEnabled(ServiceModeAnalysisWorker)
}

// IsReaperEnabled returns true if the redelivery reaper service is enabled.
func (c *AppConfig) IsReaperEnabled() bool {
	return c.isEnabled(ServiceModeReaper)
}

func (c *AppConfig) isEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}
