// Package queue parks failed publish chunks on a Redis stream so a run can
// re-attempt them once before it finishes. Publishing stays best-effort:
// when Redis is not configured the queue is nil and failures are only
// logged and counted.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"discounthub/harvester/internal/domain/task"
)

const retryStream = "harvester:stream:PublishRetryTask"

// Queue is the retry-queue contract the publisher uses.
type Queue interface {
	AddTask(ctx context.Context, t task.Task) (string, error)
	GetTask(ctx context.Context, consumer string) (*redis.XMessage, error)
	AckTask(ctx context.Context, msgID string) error
}

// RedisQueue implements Queue on a Redis stream with one consumer group.
type RedisQueue struct {
	redisClient *redis.Client
	groupName   string
}

// NewRedisQueue ensures the stream and consumer group exist before anyone
// drains it.
func NewRedisQueue(redisClient *redis.Client, groupName string) (*RedisQueue, error) {
	q := &RedisQueue{
		redisClient: redisClient,
		groupName:   groupName,
	}
	if err := q.ensureGroup(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ensure retry stream exists: %w", err)
	}
	return q, nil
}

func (q *RedisQueue) ensureGroup(ctx context.Context) error {
	err := q.redisClient.XGroupCreateMkStream(ctx, retryStream, q.groupName, "0").Err()
	if err != nil && err.Error() == "BUSYGROUP Consumer Group name already exists" {
		log.Debugf("Group %s already exists for stream %s", q.groupName, retryStream)
		return nil
	}
	return err
}

// AddTask serializes the task onto the retry stream and returns the message
// ID.
func (q *RedisQueue) AddTask(ctx context.Context, t task.Task) (string, error) {
	value, err := t.TaskValue()
	if err != nil {
		return "", fmt.Errorf("failed to serialize task: %w", err)
	}

	messageID, err := q.redisClient.XAdd(ctx, &redis.XAddArgs{
		Stream: retryStream,
		Values: map[string]interface{}{
			"task_type": t.TaskType(),
			"task_data": string(value),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to add task to stream %s: %w", retryStream, err)
	}

	log.Debugf("Parked %s on retry stream with message ID %s", t.TaskType(), messageID)
	return messageID, nil
}

// GetTask reads the next unclaimed message, returning nil when the stream
// is drained.
func (q *RedisQueue) GetTask(ctx context.Context, consumer string) (*redis.XMessage, error) {
	result, err := q.redisClient.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.groupName,
		Consumer: consumer,
		Streams:  []string{retryStream, ">"},
		Count:    1,
		Block:    time.Second,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream %s: %w", retryStream, err)
	}
	if len(result) == 0 || len(result[0].Messages) == 0 {
		return nil, nil
	}
	return &result[0].Messages[0], nil
}

// AckTask acknowledges a handled message.
func (q *RedisQueue) AckTask(ctx context.Context, msgID string) error {
	return q.redisClient.XAck(ctx, retryStream, q.groupName, msgID).Err()
}
