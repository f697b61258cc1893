package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/domain/model"
)

// RedisQueueOptions configures the analysis broker.
type RedisQueueOptions struct {
	Client            redis.UniversalClient
	Key               string
	VisibilityTimeout time.Duration
	TimeProvider      TimeProvider
	Logger            *slog.Logger
}

// RedisQueue is an at-least-once queue built from four Redis structures that share
// one hash slot:
//
//	{key}:pending     list of envelopes waiting for a worker (LPUSH/RPOP)
//	{key}:claims      hash receipt -> envelope for in-flight deliveries
//	{key}:visibility  sorted set receipt -> deadline (unix ms)
//	{key}:dead        list of envelopes that ran out of delivery attempts
type RedisQueue struct {
	client     redis.UniversalClient
	prefix     string
	visibility time.Duration
	clock      TimeProvider
	logger     *slog.Logger
}

// queueEnvelope is what is stored in Redis. Attempts counts prior deliveries.
type queueEnvelope struct {
	Attempts int                   `json:"attempts"`
	Message  model.AnalysisMessage `json:"message"`
}

var claimScript = redis.NewScript(`
local raw = redis.call('RPOP', KEYS[1])
if not raw then
  return false
end
redis.call('HSET', KEYS[2], ARGV[1], raw)
redis.call('ZADD', KEYS[3], ARGV[2], ARGV[1])
return raw
`)

var ackScript = redis.NewScript(`
redis.call('ZREM', KEYS[2], ARGV[1])
return redis.call('HDEL', KEYS[1], ARGV[1])
`)

// moveScript releases a claim and pushes the given payload onto the target list.
// The ZREM guard makes it a no-op when the claim was acked concurrently.
var moveScript = redis.NewScript(`
if redis.call('ZREM', KEYS[2], ARGV[1]) == 0 then
  return 0
end
redis.call('HDEL', KEYS[1], ARGV[1])
redis.call('LPUSH', KEYS[3], ARGV[2])
return 1
`)

// NewRedisQueue creates a RedisQueue. Key defaults to "analyzer:analysis" and the
// visibility timeout to 30 minutes.
func NewRedisQueue(opts RedisQueueOptions) (*RedisQueue, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	key := opts.Key
	if key == "" {
		key = "analyzer:analysis"
	}
	visibility := opts.VisibilityTimeout
	if visibility <= 0 {
		visibility = 30 * time.Minute
	}
	clock := opts.TimeProvider
	if clock == nil {
		clock = RealTimeProvider{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &RedisQueue{
		client:     opts.Client,
		prefix:     "{" + key + "}",
		visibility: visibility,
		clock:      clock,
		logger:     logger.With("component", "redis_queue"),
	}, nil
}

func (q *RedisQueue) pendingKey() string    { return q.prefix + ":pending" }
func (q *RedisQueue) claimsKey() string     { return q.prefix + ":claims" }
func (q *RedisQueue) visibilityKey() string { return q.prefix + ":visibility" }
func (q *RedisQueue) deadKey() string       { return q.prefix + ":dead" }

// Enqueue appends a message for the workers.
func (q *RedisQueue) Enqueue(ctx context.Context, msg model.AnalysisMessage) error {
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("invalid analysis message: %w", err)
	}
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = q.clock.Now().UTC()
	}

	raw, err := json.Marshal(queueEnvelope{Message: msg})
	if err != nil {
		return fmt.Errorf("encode analysis message: %w", err)
	}
	if err := q.client.LPush(ctx, q.pendingKey(), raw).Err(); err != nil {
		return fmt.Errorf("redis lpush: %w", err)
	}
	return nil
}

// Claim atomically moves the oldest pending message into the in-flight set and
// returns it. It returns model.ErrQueueEmpty when nothing is pending.
func (q *RedisQueue) Claim(ctx context.Context) (*model.Delivery, error) {
	now := q.clock.Now().UTC()
	receipt := uuid.NewString()
	deadline := now.Add(q.visibility).UnixMilli()

	raw, err := claimScript.Run(ctx, q.client,
		[]string{q.pendingKey(), q.claimsKey(), q.visibilityKey()},
		receipt, deadline,
	).Text()
	if errors.Is(err, redis.Nil) {
		return nil, model.ErrQueueEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("redis claim: %w", err)
	}

	var env queueEnvelope
	if decodeErr := json.Unmarshal([]byte(raw), &env); decodeErr != nil {
		q.logger.ErrorContext(ctx, "dead-lettering undecodable message", "receipt", receipt, "error", decodeErr)
		if moveErr := q.move(ctx, receipt, raw, q.deadKey()); moveErr != nil {
			return nil, moveErr
		}
		return nil, model.ErrQueueEmpty
	}

	return &model.Delivery{
		Receipt:   receipt,
		Attempt:   env.Attempts + 1,
		ClaimedAt: now,
		Message:   env.Message,
	}, nil
}

// Ack removes an in-flight delivery. Acking a receipt that was already requeued
// is not an error; the redelivered copy will be processed again.
func (q *RedisQueue) Ack(ctx context.Context, receipt string) error {
	removed, err := ackScript.Run(ctx, q.client, []string{q.claimsKey(), q.visibilityKey()}, receipt).Int64()
	if err != nil {
		return fmt.Errorf("redis ack: %w", err)
	}
	if removed == 0 {
		q.logger.WarnContext(ctx, "ack for unknown receipt", "receipt", receipt)
	}
	return nil
}

// RequeueExpired handles up to limit deliveries whose visibility deadline passed.
// A delivery that has been handed out maxDeliveries times goes to the dead list.
func (q *RedisQueue) RequeueExpired(ctx context.Context, limit, maxDeliveries int) (*model.RequeueResult, error) {
	if limit <= 0 {
		limit = 100
	}
	if maxDeliveries <= 0 {
		maxDeliveries = 1
	}

	now := q.clock.Now().UTC()
	receipts, err := q.client.ZRangeByScore(ctx, q.visibilityKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrangebyscore: %w", err)
	}

	result := &model.RequeueResult{}
	for _, receipt := range receipts {
		raw, getErr := q.client.HGet(ctx, q.claimsKey(), receipt).Result()
		if errors.Is(getErr, redis.Nil) {
			// Acked between the range read and now.
			q.client.ZRem(ctx, q.visibilityKey(), receipt)
			continue
		}
		if getErr != nil {
			return result, fmt.Errorf("redis hget claim: %w", getErr)
		}

		var env queueEnvelope
		if decodeErr := json.Unmarshal([]byte(raw), &env); decodeErr != nil {
			if moveErr := q.move(ctx, receipt, raw, q.deadKey()); moveErr != nil {
				return result, moveErr
			}
			continue
		}

		env.Attempts++
		delivery := model.Delivery{Receipt: receipt, Attempt: env.Attempts, Message: env.Message}
		next, encErr := json.Marshal(env)
		if encErr != nil {
			return result, fmt.Errorf("encode envelope: %w", encErr)
		}

		target := q.pendingKey()
		exhausted := env.Attempts >= maxDeliveries
		if exhausted {
			target = q.deadKey()
		}
		moved, moveErr := q.moveIfClaimed(ctx, receipt, string(next), target)
		if moveErr != nil {
			return result, moveErr
		}
		if !moved {
			continue
		}
		if exhausted {
			result.Exhausted = append(result.Exhausted, delivery)
		} else {
			result.Requeued = append(result.Requeued, delivery)
		}
	}
	return result, nil
}

// Stats reports the depth of each queue structure.
func (q *RedisQueue) Stats(ctx context.Context) (*model.QueueStats, error) {
	pipe := q.client.Pipeline()
	pending := pipe.LLen(ctx, q.pendingKey())
	inFlight := pipe.HLen(ctx, q.claimsKey())
	dead := pipe.LLen(ctx, q.deadKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis stats: %w", err)
	}
	return &model.QueueStats{
		Pending:    pending.Val(),
		InFlight:   inFlight.Val(),
		DeadLetter: dead.Val(),
	}, nil
}

func (q *RedisQueue) move(ctx context.Context, receipt, payload, target string) error {
	_, err := q.moveIfClaimed(ctx, receipt, payload, target)
	return err
}

func (q *RedisQueue) moveIfClaimed(ctx context.Context, receipt, payload, target string) (bool, error) {
	n, err := moveScript.Run(ctx, q.client,
		[]string{q.claimsKey(), q.visibilityKey(), target},
		receipt, payload,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("redis move claim: %w", err)
	}
	return n == 1, nil
}
