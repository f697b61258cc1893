// Package model defines the core data types shared by the analysis job service.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobStatus represents the lifecycle state of an analysis job.
type JobStatus string

const (
	// JobStatusPending indicates the job is queued or being processed.
	JobStatusPending JobStatus = "PENDING"
	// JobStatusSuccess indicates the pipeline produced a report.
	JobStatusSuccess JobStatus = "SUCCESS"
	// JobStatusFailure indicates the pipeline failed; the result holds the error text.
	JobStatusFailure JobStatus = "FAILURE"
)

// FailurePrefix starts the result text of every FAILURE job.
const FailurePrefix = "Failed analyzing the document: "

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusPending || s == JobStatusSuccess || s == JobStatusFailure
}

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSuccess || s == JobStatusFailure
}

// Job is a single analysis request and its outcome.
type Job struct {
	ID             string     `json:"job_id"                 db:"job_id"`
	Status         JobStatus  `json:"status"                 db:"status"`
	DocumentHandle string     `json:"document_handle"        db:"document_handle"`
	Result         *string    `json:"result,omitempty"       db:"result"`
	CreatedAt      time.Time  `json:"created_at"             db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"             db:"updated_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// ResultText returns the result or the empty string while it is unset.
func (j *Job) ResultText() string {
	if j == nil || j.Result == nil {
		return ""
	}
	return *j.Result
}

// CreateJobRequest represents a request to create a new PENDING job.
type CreateJobRequest struct {
	JobID          string `json:"job_id"`
	DocumentHandle string `json:"document_handle"`
}

// Validate validates the CreateJobRequest fields.
func (r *CreateJobRequest) Validate() error {
	if strings.TrimSpace(r.JobID) == "" {
		return errors.New("job_id is required")
	}
	if strings.TrimSpace(r.DocumentHandle) == "" {
		return errors.New("document_handle is required")
	}
	return nil
}

// CompleteJobRequest moves a job into a terminal state.
type CompleteJobRequest struct {
	JobID  string    `json:"job_id"`
	Status JobStatus `json:"status"`
	Result string    `json:"result"`
}

// Validate ensures the request can never move a job back to PENDING.
func (r *CompleteJobRequest) Validate() error {
	if strings.TrimSpace(r.JobID) == "" {
		return errors.New("job_id is required")
	}
	if !r.Status.Terminal() {
		return fmt.Errorf("status %q is not terminal", r.Status)
	}
	return nil
}

// FailureResult formats the result text recorded for a failed job.
func FailureResult(cause error) string {
	if cause == nil {
		return FailurePrefix + "unknown error"
	}
	return FailurePrefix + cause.Error()
}
