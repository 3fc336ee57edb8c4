package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Bus is a Redis-list queue transport. LPUSH publishes, BRPOP consumes, so
// each message is delivered to exactly one worker.
type Bus struct {
	rdb redis.UniversalClient
}

func NewBus(rdb redis.UniversalClient) *Bus {
	return &Bus{rdb: rdb}
}

// Publish serializes the event and pushes it onto the queue.
func (b *Bus) Publish(ctx context.Context, queue string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: marshal event: %w", err)
	}
	if err := b.rdb.LPush(ctx, queue, payload).Err(); err != nil {
		return fmt.Errorf("events: publish to %s: %w", queue, err)
	}
	return nil
}

// Consume blocks up to timeout for the next message on the queue. A nil
// result with nil error means the wait timed out.
func (b *Bus) Consume(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	res, err := b.rdb.BRPop(ctx, timeout, queue).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("events: consume from %s: %w", queue, err)
	}
	// BRPOP returns [queue, payload].
	if len(res) != 2 {
		return nil, fmt.Errorf("events: unexpected BRPOP reply of length %d", len(res))
	}
	return []byte(res[1]), nil
}

// PublishDelayed schedules a redelivery after the backoff by parking the
// payload in a per-queue sorted set scored by due time. PumpDelayed moves due
// entries back onto the live queue.
func (b *Bus) PublishDelayed(ctx context.Context, queue string, event any, delay time.Duration) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: marshal delayed event: %w", err)
	}
	due := float64(time.Now().Add(delay).UnixMilli())
	if err := b.rdb.ZAdd(ctx, queue+":delayed", redis.Z{Score: due, Member: payload}).Err(); err != nil {
		return fmt.Errorf("events: schedule on %s: %w", queue, err)
	}
	return nil
}

// PumpDelayed republishes every due delayed entry for the queue and returns
// how many moved.
func (b *Bus) PumpDelayed(ctx context.Context, queue string) (int, error) {
	now := fmt.Sprintf("%d", time.Now().UnixMilli())
	due, err := b.rdb.ZRangeByScore(ctx, queue+":delayed", &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		return 0, fmt.Errorf("events: read delayed for %s: %w", queue, err)
	}
	moved := 0
	for _, payload := range due {
		if err := b.rdb.LPush(ctx, queue, payload).Err(); err != nil {
			return moved, fmt.Errorf("events: requeue delayed for %s: %w", queue, err)
		}
		if err := b.rdb.ZRem(ctx, queue+":delayed", payload).Err(); err != nil {
			return moved, fmt.Errorf("events: remove delayed for %s: %w", queue, err)
		}
		moved++
	}
	return moved, nil
}

// QueueDepth reports the number of waiting messages, used by the health
// endpoint and metrics.
func (b *Bus) QueueDepth(ctx context.Context, queue string) (int64, error) {
	n, err := b.rdb.LLen(ctx, queue).Result()
	if err != nil {
		return 0, fmt.Errorf("events: queue depth of %s: %w", queue, err)
	}
	return n, nil
}

// DeadLetterOf wraps a failed event for the terminal queue.
func DeadLetterOf(taskName string, original []byte, cause error) DeadLetter {
	return DeadLetter{
		FailedTaskName: taskName,
		OriginalEvent:  string(original),
		ErrorMessage:   cause.Error(),
	}
}
