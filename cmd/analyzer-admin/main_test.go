package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/domain/model"
)

func TestPrintUsageListsCommandsSorted(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printUsage(&buf))

	out := buf.String()
	require.Contains(t, out, "Usage: analyzer-admin <command> [flags]")

	var order []int
	for _, name := range []string{"job-counts", "job-status", "migrate", "queue-stats", "requeue-expired"} {
		idx := strings.Index(out, "  "+name+" ")
		require.GreaterOrEqual(t, idx, 0, "missing %s", name)
		order = append(order, idx)
	}
	assert.IsIncreasing(t, order)
}

func TestParseJobStatusFlags(t *testing.T) {
	opts, err := parseJobStatusFlags([]string{"--json", "abc"})
	require.NoError(t, err)
	assert.Equal(t, jobStatusOptions{JobID: "abc", RawJSON: true}, opts)

	opts, err = parseJobStatusFlags([]string{"-job", "xyz"})
	require.NoError(t, err)
	assert.Equal(t, "xyz", opts.JobID)

	_, err = parseJobStatusFlags(nil)
	require.Error(t, err)
}

func TestParseMigrateFlags(t *testing.T) {
	opts, err := parseMigrateFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, defaultMigrationTimeout, opts.Timeout)
	assert.False(t, opts.Status)

	opts, err = parseMigrateFlags([]string{"--status", "--timeout", "30s"})
	require.NoError(t, err)
	assert.True(t, opts.Status)
	assert.Equal(t, 30*time.Second, opts.Timeout)

	_, err = parseMigrateFlags([]string{"--timeout", "0s"})
	require.Error(t, err)
}

func TestParseRequeueFlags(t *testing.T) {
	opts, err := parseRequeueFlags(nil, 100)
	require.NoError(t, err)
	assert.Equal(t, 100, opts.BatchSize)

	_, err = parseRequeueFlags([]string{"--batch", "0"}, 100)
	require.Error(t, err)
}

func TestPrintJobStatus(t *testing.T) {
	created := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	completed := created.Add(90 * time.Second)
	failure := model.FailurePrefix + "Error extracting text from document"

	var buf bytes.Buffer
	require.NoError(t, printJobStatus(&buf, &model.Job{
		ID:             "job-1",
		Status:         model.JobStatusFailure,
		DocumentHandle: "financial_document_1.pdf",
		Result:         &failure,
		CreatedAt:      created,
		CompletedAt:    &completed,
	}))

	out := buf.String()
	assert.Contains(t, out, "Status     FAILURE")
	assert.Contains(t, out, "Completed  2026-10-15T09:01:30Z")
	assert.Contains(t, out, "Took       1m30s")
	assert.True(t, strings.HasSuffix(out, "\n"+failure+"\n"))
}

func TestPrintJobStatus_PendingOmitsResult(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJobStatus(&buf, &model.Job{ID: "job-2", Status: model.JobStatusPending}))

	assert.Contains(t, buf.String(), "PENDING")
	assert.NotContains(t, buf.String(), "Completed")
}

func TestPrintJobCounts(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJobCounts(&buf, map[model.JobStatus]int{model.JobStatusSuccess: 4}))

	assert.Equal(t, "Status   Jobs\nPENDING  0\nSUCCESS  4\nFAILURE  0\n", buf.String())
}

func TestPrintQueueStats(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printQueueStats(&buf, "analyzer:analysis", &model.QueueStats{Pending: 3, InFlight: 1, DeadLetter: 2}))

	out := buf.String()
	assert.Contains(t, out, "Pending      3")
	assert.Contains(t, out, "In flight    1")
	assert.Contains(t, out, "Dead letter  2")
}

func TestPrintPendingMigrations(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printPendingMigrations(&buf, nil))
	assert.Equal(t, "Schema is up to date.\n", buf.String())

	buf.Reset()
	require.NoError(t, printPendingMigrations(&buf, []string{"001_create_jobs.sql"}))
	assert.Equal(t, "1 pending migration(s):\n  001_create_jobs.sql\n", buf.String())
}
