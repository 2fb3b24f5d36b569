package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Producer submits translation jobs to a queue.
type Producer interface {
	Enqueue(ctx context.Context, payload *JobPayload) (string, error)
	Close() error
}

// ensureJobID assigns a job ID to payloads submitted without one.
func ensureJobID(payload *JobPayload) {
	if payload.JobID == "" {
		payload.JobID = uuid.NewString()
	}
}

// RedisProducer enqueues jobs in the list layout read by RedisConsumer.
type RedisProducer struct {
	client     redis.Cmdable
	keys       queueKeys
	maxRetries int
}

// NewRedisProducer creates a producer for queue. An empty queue name uses
// DefaultQueueName.
func NewRedisProducer(client redis.Cmdable, queue string, maxRetries int) *RedisProducer {
	if queue == "" {
		queue = DefaultQueueName
	}
	return &RedisProducer{client: client, keys: keysFor(queue), maxRetries: maxRetries}
}

// Enqueue stores the job data and pushes its queue ID. It returns the job ID.
func (p *RedisProducer) Enqueue(ctx context.Context, payload *JobPayload) (string, error) {
	ensureJobID(payload)
	if err := payload.Validate(); err != nil {
		return "", err
	}

	job := RedisJobData{
		ID:         uuid.NewString(),
		Type:       "translate",
		Payload:    *payload,
		CreatedAt:  time.Now().UTC(),
		MaxRetries: p.maxRetries,
	}
	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := p.client.TxPipeline()
	pipe.HSet(ctx, p.keys.data, job.ID, data)
	pipe.LPush(ctx, p.keys.list, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to enqueue job %s: %w", payload.JobID, err)
	}
	return payload.JobID, nil
}

// Close is a no-op; the Redis client belongs to the caller.
func (p *RedisProducer) Close() error {
	return nil
}

// NewTranslateTask builds the asynq task for payload.
func NewTranslateTask(payload *JobPayload, opts ...asynq.Option) (*asynq.Task, error) {
	ensureJobID(payload)
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task payload: %w", err)
	}
	opts = append([]asynq.Option{asynq.TaskID(payload.JobID)}, opts...)
	return asynq.NewTask(TaskTypeTranslate, data, opts...), nil
}

// AsynqProducer enqueues translation tasks for Consumer.
type AsynqProducer struct {
	client     *asynq.Client
	queue      string
	maxRetries int
	timeout    time.Duration
}

// NewAsynqProducer connects an asynq client to redisURL.
func NewAsynqProducer(redisURL, queue string, maxRetries int, timeout time.Duration) (*AsynqProducer, error) {
	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if queue == "" {
		queue = DefaultQueueName
	}
	return &AsynqProducer{
		client:     asynq.NewClient(redisOpt),
		queue:      queue,
		maxRetries: maxRetries,
		timeout:    timeout,
	}, nil
}

// Enqueue submits payload and returns its job ID.
func (p *AsynqProducer) Enqueue(ctx context.Context, payload *JobPayload) (string, error) {
	opts := []asynq.Option{asynq.Queue(p.queue), asynq.MaxRetry(p.maxRetries)}
	if p.timeout > 0 {
		opts = append(opts, asynq.Timeout(p.timeout))
	}
	task, err := NewTranslateTask(payload, opts...)
	if err != nil {
		return "", err
	}
	info, err := p.client.EnqueueContext(ctx, task)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue job %s: %w", payload.JobID, err)
	}
	return info.ID, nil
}

// Close closes the asynq client.
func (p *AsynqProducer) Close() error {
	return p.client.Close()
}
