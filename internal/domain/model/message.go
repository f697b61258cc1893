package model

import (
	"errors"
	"time"
)

// ErrQueueEmpty is returned when no delivery is available to claim.
var ErrQueueEmpty = errors.New("analysis queue is empty")

// AnalysisMessage is the broker payload that asks a worker to process one job.
type AnalysisMessage struct {
	JobID          string    `json:"job_id"`
	Query          string    `json:"query"`
	DocumentHandle string    `json:"document_handle"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
}

// Validate checks the fields a worker needs.
func (m *AnalysisMessage) Validate() error {
	if m.JobID == "" {
		return errors.New("job_id is required")
	}
	if m.DocumentHandle == "" {
		return errors.New("document_handle is required")
	}
	return nil
}

// Delivery is one hand-off of a message to a worker. The receipt identifies the
// claim so it can be acknowledged; Attempt counts deliveries starting at 1.
type Delivery struct {
	Receipt   string          `json:"receipt"`
	Attempt   int             `json:"attempt"`
	ClaimedAt time.Time       `json:"claimed_at"`
	Message   AnalysisMessage `json:"message"`
}

// QueueStats reports broker depth.
type QueueStats struct {
	Pending    int64 `json:"pending"`
	InFlight   int64 `json:"in_flight"`
	DeadLetter int64 `json:"dead_letter"`
}

// RequeueResult summarises one pass over expired deliveries.
type RequeueResult struct {
	Requeued []Delivery
	// Exhausted deliveries were moved to the dead-letter list instead of the pending list.
	Exhausted []Delivery
}
