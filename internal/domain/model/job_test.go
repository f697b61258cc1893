package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobStatus(t *testing.T) {
	assert.True(t, JobStatusPending.Valid())
	assert.False(t, JobStatusPending.Terminal())
	assert.True(t, JobStatusSuccess.Terminal())
	assert.True(t, JobStatusFailure.Terminal())
	assert.False(t, JobStatus("RUNNING").Valid())
}

func TestCompleteJobRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     CompleteJobRequest
		wantErr bool
	}{
		{"success", CompleteJobRequest{JobID: "a", Status: JobStatusSuccess}, false},
		{"failure", CompleteJobRequest{JobID: "a", Status: JobStatusFailure, Result: "x"}, false},
		{"pending rejected", CompleteJobRequest{JobID: "a", Status: JobStatusPending}, true},
		{"missing id", CompleteJobRequest{Status: JobStatusSuccess}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCreateJobRequest_Validate(t *testing.T) {
	assert.NoError(t, (&CreateJobRequest{JobID: "a", DocumentHandle: "h"}).Validate())
	assert.Error(t, (&CreateJobRequest{JobID: " ", DocumentHandle: "h"}).Validate())
	assert.Error(t, (&CreateJobRequest{JobID: "a"}).Validate())
}

func TestFailureResult(t *testing.T) {
	assert.Equal(t, "Failed analyzing the document: boom", FailureResult(errors.New("boom")))
	assert.Equal(t, "Failed analyzing the document: unknown error", FailureResult(nil))
}

func TestJob_ResultText(t *testing.T) {
	var nilJob *Job
	assert.Empty(t, nilJob.ResultText())

	r := "report"
	assert.Equal(t, "report", (&Job{Result: &r}).ResultText())
	assert.Empty(t, (&Job{}).ResultText())
}
