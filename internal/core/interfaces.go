// Package core holds the ports shared between the service layer and its adapters.
package core

import (
	"context"
	"io"

	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// Service implementations depend on these interfaces, not concrete implementations.

// JobRepository defines the interface for job data operations.
type JobRepository interface {
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
	// Complete writes a terminal status and result to a PENDING job, returning the
	// status the job had before; terminal jobs are left unchanged.
	// found is false when no row matched.
	Complete(ctx context.Context, req model.CompleteJobRequest) (previous model.JobStatus, found bool, err error)
	CountByStatus(ctx context.Context) (map[model.JobStatus]int, error)
}

// JobQueue is the at-least-once broker between the API and the workers.
type JobQueue interface {
	Enqueue(ctx context.Context, msg model.AnalysisMessage) error
	// Claim hands out the next delivery or model.ErrQueueEmpty.
	Claim(ctx context.Context) (*model.Delivery, error)
	Ack(ctx context.Context, receipt string) error
	// RequeueExpired returns deliveries whose visibility timeout passed to the
	// pending list, or dead-letters them once maxDeliveries is reached.
	RequeueExpired(ctx context.Context, limit, maxDeliveries int) (*model.RequeueResult, error)
	Stats(ctx context.Context) (*model.QueueStats, error)
}

// DocumentStore persists uploaded documents until a worker is done with them.
type DocumentStore interface {
	Save(ctx context.Context, r io.Reader) (string, error)
	Path(handle string) (string, error)
	Delete(ctx context.Context, handle string) error
	Exists(handle string) bool
}

// ResultStore persists finished reports as output artifacts.
type ResultStore interface {
	Write(ctx context.Context, jobID, result string) error
}

// TextExtractor turns a stored document into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// GenerateRequest is a single-turn prompt for a language model.
type GenerateRequest struct {
	System string
	Prompt string
}

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// AnalysisInput is what a worker hands to the stage graph.
type AnalysisInput struct {
	DocumentPath string
	Query        string
}

// Analyzer runs the full stage graph for one document.
type Analyzer interface {
	Run(ctx context.Context, in AnalysisInput) (string, error)
}
