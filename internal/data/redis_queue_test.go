package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/domain/model"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/testutil"
)

func newTestQueue(t *testing.T) (*RedisQueue, *FixedTimeProvider) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	client := testutil.SetupTestRedis(t)
	clock := NewFixedTimeProvider(time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC))
	q, err := NewRedisQueue(RedisQueueOptions{
		Client:            client,
		Key:               "test:analysis",
		VisibilityTimeout: time.Minute,
		TimeProvider:      clock,
	})
	require.NoError(t, err)
	return q, clock
}

func testMessage(id string) model.AnalysisMessage {
	return model.AnalysisMessage{JobID: id, Query: "q", DocumentHandle: "financial_document_" + id + ".pdf"}
}

func TestRedisQueue_EnqueueClaimAck(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testMessage("a")))
	require.NoError(t, q.Enqueue(ctx, testMessage("b")))

	first, err := q.Claim(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", first.Message.JobID, "claims are FIFO")
	assert.Equal(t, 1, first.Attempt)
	assert.False(t, first.Message.EnqueuedAt.IsZero())

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Pending)
	assert.Equal(t, int64(1), stats.InFlight)

	require.NoError(t, q.Ack(ctx, first.Receipt))
	require.NoError(t, q.Ack(ctx, first.Receipt), "double ack is harmless")

	stats, err = q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.InFlight)
}

func TestRedisQueue_ClaimEmpty(t *testing.T) {
	q, _ := newTestQueue(t)

	_, err := q.Claim(context.Background())
	assert.ErrorIs(t, err, model.ErrQueueEmpty)
}

func TestRedisQueue_EnqueueRejectsInvalid(t *testing.T) {
	q, _ := newTestQueue(t)

	err := q.Enqueue(context.Background(), model.AnalysisMessage{Query: "q"})
	assert.Error(t, err)
}

func TestRedisQueue_RequeueExpired(t *testing.T) {
	q, clock := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testMessage("a")))
	d1, err := q.Claim(ctx)
	require.NoError(t, err)

	// Not yet expired.
	res, err := q.RequeueExpired(ctx, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, res.Requeued)

	clock.Advance(2 * time.Minute)
	res, err = q.RequeueExpired(ctx, 10, 3)
	require.NoError(t, err)
	require.Len(t, res.Requeued, 1)
	assert.Equal(t, "a", res.Requeued[0].Message.JobID)

	d2, err := q.Claim(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, d2.Attempt)
	assert.NotEqual(t, d1.Receipt, d2.Receipt)

	// Late ack of the expired claim does not touch the redelivery.
	require.NoError(t, q.Ack(ctx, d1.Receipt))
	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.InFlight)
}

func TestRedisQueue_DeadLettersAfterMaxDeliveries(t *testing.T) {
	q, clock := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testMessage("a")))

	_, err := q.Claim(ctx)
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)
	res, err := q.RequeueExpired(ctx, 10, 2)
	require.NoError(t, err)
	require.Len(t, res.Requeued, 1)

	_, err = q.Claim(ctx)
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)
	res, err = q.RequeueExpired(ctx, 10, 2)
	require.NoError(t, err)
	assert.Empty(t, res.Requeued)
	require.Len(t, res.Exhausted, 1)
	assert.Equal(t, "a", res.Exhausted[0].Message.JobID)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Pending)
	assert.Equal(t, int64(0), stats.InFlight)
	assert.Equal(t, int64(1), stats.DeadLetter)
}
