package engine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const DispatchQueueKey = "dispatch_queue"

// TriggerQueue holds event ids awaiting automatic dispatch in a Redis
// sorted set scored by enqueue time.
type TriggerQueue struct {
	redisClient *redis.Client
}

func NewTriggerQueue(redisClient *redis.Client) *TriggerQueue {
	return &TriggerQueue{redisClient: redisClient}
}

// Enqueue schedules eventID for dispatch. Enqueueing an id that is still
// waiting keeps a single entry.
func (q *TriggerQueue) Enqueue(ctx context.Context, eventID string) error {
	err := q.redisClient.ZAddNX(ctx, DispatchQueueKey, redis.Z{
		Score:  float64(time.Now().UnixMicro()),
		Member: eventID,
	}).Err()
	if err != nil {
		return fmt.Errorf("queuing event %s: %w", eventID, err)
	}
	return nil
}

// Claim removes and returns up to limit ready event ids, oldest first.
// An id removed by a concurrent consumer is skipped, so each id is handed
// to exactly one caller.
func (q *TriggerQueue) Claim(ctx context.Context, limit int64) ([]string, error) {
	now := float64(time.Now().UnixMicro())

	ids, err := q.redisClient.ZRangeByScore(ctx, DispatchQueueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatFloat(now, 'f', -1, 64),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("polling dispatch queue: %w", err)
	}

	claimed := make([]string, 0, len(ids))
	for _, id := range ids {
		removed, err := q.redisClient.ZRem(ctx, DispatchQueueKey, id).Result()
		if err != nil {
			return claimed, fmt.Errorf("claiming event %s: %w", id, err)
		}
		if removed == 0 {
			continue
		}
		claimed = append(claimed, id)
	}
	return claimed, nil
}

// Depth returns the number of event ids waiting.
func (q *TriggerQueue) Depth(ctx context.Context) (int64, error) {
	return q.redisClient.ZCard(ctx, DispatchQueueKey).Result()
}
