package config

import "strings"

// StorageConfig controls where uploaded documents and finished reports live on disk.
type StorageConfig struct {
	// DataDir holds ingested documents until the worker finishes with them.
	DataDir string `env:"STORAGE_DATA_DIR" envDefault:"data"`

	// OutputDir receives <job_id>.txt report artifacts on the first successful poll.
	OutputDir string `env:"STORAGE_OUTPUT_DIR" envDefault:"outputs"`
}

// Sanitize trims paths and restores defaults for empty values.
func (s *StorageConfig) Sanitize() {
	s.DataDir = strings.TrimSpace(s.DataDir)
	if s.DataDir == "" {
		s.DataDir = "data"
	}
	s.OutputDir = strings.TrimSpace(s.OutputDir)
	if s.OutputDir == "" {
		s.OutputDir = "outputs"
	}
}
