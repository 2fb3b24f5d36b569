package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/adverant/nexus/doctranslate-worker/internal/config"
	"github.com/adverant/nexus/doctranslate-worker/internal/queue"
)

var (
	submitJobID   string
	submitUserID  string
	submitFileURL string
)

var submitCmd = &cobra.Command{
	Use:   "submit [image]...",
	Short: "Enqueue a translation job for the worker",
	Long:  "Enqueue page images (or a --file-url) as one translation job on the configured queue backend.",
	RunE:  runSubmit,
}

func init() {
	submitCmd.Flags().StringVar(&submitJobID, "job-id", "", "job ID (default: random UUID)")
	submitCmd.Flags().StringVar(&submitUserID, "user", "", "user ID recorded on the job")
	submitCmd.Flags().StringVar(&submitFileURL, "file-url", "", "download a single page image from this URL instead")
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(args) == 0 && submitFileURL == "" {
		return fmt.Errorf("pass page images or --file-url")
	}

	pages, err := readPages(args)
	if err != nil {
		return err
	}

	payload := &queue.JobPayload{
		JobID:          submitJobID,
		UserID:         submitUserID,
		TargetLanguage: cfg.Translator.TargetLanguage,
		Pages:          pages,
		FileURL:        submitFileURL,
		BestEffort:     cfg.Pipeline.BestEffort,
	}
	if len(args) > 0 {
		payload.Filename = filepath.Base(args[0])
	}

	producer, err := newProducer(cfg)
	if err != nil {
		return err
	}
	defer producer.Close()

	id, err := producer.Enqueue(ctx, payload)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Submitted job %s to %s (%s)\n", id, cfg.QueueName, cfg.QueueBackend)
	return nil
}

type redisProducer struct {
	*queue.RedisProducer
	client *redis.Client
}

func (p redisProducer) Close() error {
	return p.client.Close()
}

func newProducer(cfg *config.Config) (queue.Producer, error) {
	if cfg.QueueBackend == "asynq" {
		return queue.NewAsynqProducer(cfg.RedisURL, cfg.QueueName, cfg.MaxRetries, cfg.ProcessingTimeoutDuration())
	}
	redisOpt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse Redis URL: %w", err)
	}
	client := redis.NewClient(redisOpt)
	return redisProducer{
		RedisProducer: queue.NewRedisProducer(client, cfg.QueueName, cfg.MaxRetries),
		client:        client,
	}, nil
}
