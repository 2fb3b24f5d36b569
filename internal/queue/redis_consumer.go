/**
 * Direct Redis Queue Consumer for the document translation worker
 *
 * Compatible with the TypeScript RedisQueue implementation.
 * Uses simple Redis LIST operations for perfect compatibility.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus/doctranslate-worker/internal/logging"
	"github.com/adverant/nexus/doctranslate-worker/internal/processor"
	"github.com/adverant/nexus/doctranslate-worker/internal/storage"
)

var errNoJobs = fmt.Errorf("no jobs available")

// RedisConsumer handles job consumption from Redis queue
type RedisConsumer struct {
	client *redis.Client
	runner *jobRunner
	config *RedisConsumerConfig
	keys   queueKeys
	logger *logging.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// RedisConsumerConfig holds consumer configuration
type RedisConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	MaxRetries        int // used when a job carries no maxRetries of its own
	Processor         processor.DocumentProcessorInterface
	ProcessingTimeout int64 // Processing timeout in milliseconds (default: 300000 = 5 minutes)
}

// queueKeys names the Redis keys derived from a queue name.
type queueKeys struct {
	list       string
	data       string
	processing string
	completed  string
	failed     string
	results    string
	errors     string
	events     string
}

func keysFor(queue string) queueKeys {
	return queueKeys{
		list:       queue,
		data:       queue + ":data",
		processing: queue + ":processing",
		completed:  queue + ":completed",
		failed:     queue + ":failed",
		results:    queue + ":results",
		errors:     queue + ":errors",
		events:     queue + ":events",
	}
}

// NewRedisConsumer creates a new Redis-based queue consumer
func NewRedisConsumer(cfg *RedisConsumerConfig) (*RedisConsumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	if cfg.QueueName == "" {
		cfg.QueueName = DefaultQueueName
	}

	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	// Parse Redis URL
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	// Test connection
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	consumerCtx, cancel := context.WithCancel(context.Background())
	logger := logging.NewLogger("RedisConsumer")

	return &RedisConsumer{
		client: client,
		runner: newJobRunner(cfg.Processor, cfg.ProcessingTimeout, logger),
		config: cfg,
		keys:   keysFor(cfg.QueueName),
		logger: logger,
		ctx:    consumerCtx,
		cancel: cancel,
	}, nil
}

// Start begins processing jobs from the queue
func (c *RedisConsumer) Start(ctx context.Context) error {
	c.logger.Info("Starting Redis queue consumer",
		"concurrency", c.config.Concurrency,
		"queue", c.config.QueueName)

	for i := 0; i < c.config.Concurrency; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}

	c.logger.Info("Queue consumer started successfully")
	return nil
}

// Stop gracefully stops the consumer. Jobs in flight finish first.
func (c *RedisConsumer) Stop(ctx context.Context) error {
	c.logger.Info("Stopping queue consumer...")
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		c.logger.Warn("Shutdown deadline reached with jobs still running")
	}
	return c.client.Close()
}

// worker is a goroutine that processes jobs
func (c *RedisConsumer) worker(id int) {
	defer c.wg.Done()
	c.logger.Debug("Worker started", "worker", id)

	for {
		select {
		case <-c.ctx.Done():
			c.logger.Debug("Worker stopping", "worker", id)
			return
		default:
			if err := c.processNextJob(); err != nil {
				if err != errNoJobs && c.ctx.Err() == nil {
					c.logger.Error("Worker error", "worker", id, "error", err)
					// Small delay before trying again
					time.Sleep(1 * time.Second)
				}
			}
		}
	}
}

// processNextJob fetches and processes the next job from the queue
func (c *RedisConsumer) processNextJob() error {
	// Block for up to 5 seconds waiting for a job
	result, err := c.client.BRPop(c.ctx, 5*time.Second, c.keys.list).Result()
	if err != nil {
		if err == redis.Nil {
			return errNoJobs
		}
		return fmt.Errorf("failed to fetch job: %w", err)
	}

	if len(result) < 2 {
		return fmt.Errorf("invalid job result")
	}

	queueID := result[1]
	// the job runs to completion even when the consumer is stopping
	ctx := context.WithoutCancel(c.ctx)

	jobData, err := c.client.HGet(ctx, c.keys.data, queueID).Result()
	if err != nil {
		return fmt.Errorf("failed to get job data: %w", err)
	}

	var job RedisJobData
	if err := json.Unmarshal([]byte(jobData), &job); err != nil {
		c.markFailed(ctx, queueID, map[string]interface{}{"error": err.Error()})
		return fmt.Errorf("failed to unmarshal job %s: %w", queueID, err)
	}
	if job.Payload.JobID == "" {
		job.Payload.JobID = job.ID
	}
	if err := job.Payload.Validate(); err != nil {
		c.markFailed(ctx, job.Payload.JobID, map[string]interface{}{"error": err.Error()})
		return err
	}

	maxRetries := job.MaxRetries
	if maxRetries <= 0 {
		maxRetries = c.config.MaxRetries
	}

	jobID := job.Payload.JobID
	c.markProcessing(ctx, jobID)
	c.logger.Info("Processing job",
		"jobId", jobID,
		"filename", job.Payload.Filename,
		"pages", len(job.Payload.Pages),
		"targetLanguage", job.Payload.TargetLanguage)

	job.Attempts++
	final := job.Attempts >= maxRetries
	processResult, err := c.runner.run(ctx, &job.Payload, job.Attempts, final)
	if err != nil {
		c.logger.Error("Job failed", "jobId", jobID, "attempt", job.Attempts, "error", err)

		if !final && shouldRetry(err) {
			c.requeue(ctx, &job)
			return nil
		}

		details := failureUpdate(jobID, err)
		c.markFailed(ctx, jobID, map[string]interface{}{
			"error":     err.Error(),
			"errorCode": details.ErrorCode,
			"page":      details.ErrorPage,
			"attempts":  job.Attempts,
		})
		return nil
	}

	c.markCompleted(ctx, jobID, processResult)
	c.logger.Info("Job completed successfully", "jobId", jobID)
	return nil
}

func (c *RedisConsumer) requeue(ctx context.Context, job *RedisJobData) {
	updatedData, err := json.Marshal(job)
	if err != nil {
		c.logger.Error("Failed to marshal job for retry", "jobId", job.Payload.JobID, "error", err)
		return
	}
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, c.keys.data, job.ID, updatedData)
	pipe.SRem(ctx, c.keys.processing, job.Payload.JobID)
	pipe.LPush(ctx, c.keys.list, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Error("Failed to re-queue job", "jobId", job.Payload.JobID, "error", err)
		return
	}
	c.publish(ctx, job.Payload.JobID, storage.StatusQueued)
	c.logger.Info("Job re-queued for retry",
		"jobId", job.Payload.JobID,
		"attempt", job.Attempts,
		"maxRetries", job.MaxRetries)
}

func (c *RedisConsumer) markProcessing(ctx context.Context, jobID string) {
	c.client.SAdd(ctx, c.keys.processing, jobID)
	c.publish(ctx, jobID, storage.StatusProcessing)
}

func (c *RedisConsumer) markCompleted(ctx context.Context, jobID string, result *processor.ProcessResult) {
	c.client.SRem(ctx, c.keys.processing, jobID)
	c.client.SAdd(ctx, c.keys.completed, jobID)
	if result != nil {
		resultData, _ := json.Marshal(result)
		c.client.HSet(ctx, c.keys.results, jobID, resultData)
	}
	c.publish(ctx, jobID, storage.StatusCompleted)
}

func (c *RedisConsumer) markFailed(ctx context.Context, jobID string, details map[string]interface{}) {
	c.client.SRem(ctx, c.keys.processing, jobID)
	c.client.SAdd(ctx, c.keys.failed, jobID)
	if details != nil {
		errorData, _ := json.Marshal(details)
		c.client.HSet(ctx, c.keys.errors, jobID, errorData)
	}
	c.publish(ctx, jobID, storage.StatusFailed)
}

// publish emits a status event for WebSocket streaming
func (c *RedisConsumer) publish(ctx context.Context, jobID, status string) {
	eventData, _ := json.Marshal(statusEvent(jobID, status, time.Now()))
	c.client.Publish(ctx, c.keys.events, eventData)
}

func statusEvent(jobID, status string, at time.Time) map[string]interface{} {
	return map[string]interface{}{
		"event":     fmt.Sprintf("job:%s", status),
		"jobId":     jobID,
		"timestamp": at.Format(time.RFC3339),
	}
}

// GetStats returns queue statistics
func (c *RedisConsumer) GetStats(ctx context.Context) (map[string]int64, error) {
	pipe := c.client.Pipeline()
	waiting := pipe.LLen(ctx, c.keys.list)
	processing := pipe.SCard(ctx, c.keys.processing)
	completed := pipe.SCard(ctx, c.keys.completed)
	failed := pipe.SCard(ctx, c.keys.failed)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to read queue stats: %w", err)
	}

	return map[string]int64{
		"waiting":    waiting.Val(),
		"processing": processing.Val(),
		"completed":  completed.Val(),
		"failed":     failed.Val(),
	}, nil
}
