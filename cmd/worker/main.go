/**
 * Document Translation Worker - Main Entry Point
 *
 * Consumes translation jobs from Redis and translates scanned pages in
 * place: OCR, glossary-protected translation per line, overlay rendering
 * and PDF assembly.
 *
 * Architecture:
 * - Redis list consumer (native protocol) or Asynq consumer
 * - Azure Read or Tesseract OCR, Azure Translator or DeepL translation
 * - MinIO for translated pages and the combined PDF
 * - PostgreSQL for job status, failing page and artifact URLs
 * - HTTP surface for health, Prometheus metrics and job status
 */

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus/doctranslate-worker/internal/api"
	"github.com/adverant/nexus/doctranslate-worker/internal/config"
	"github.com/adverant/nexus/doctranslate-worker/internal/logging"
	"github.com/adverant/nexus/doctranslate-worker/internal/pipeline"
	"github.com/adverant/nexus/doctranslate-worker/internal/processor"
	"github.com/adverant/nexus/doctranslate-worker/internal/queue"
	"github.com/adverant/nexus/doctranslate-worker/internal/storage"
)

const version = "1.0.0"

func main() {
	if err := run(); err != nil {
		logging.NewLogger("Worker").Error("Worker exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load environment variables
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	envErr := godotenv.Load(envFile)

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := logging.Configure(cfg.LogLevel, cfg.LogFormat); err != nil {
		return err
	}
	logger := logging.NewLogger("Worker")
	defer logger.Sync()

	if envErr != nil {
		logger.Warn("Env file not found, using system environment variables", "file", envFile)
	}
	if err := cfg.ValidateWorker(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Info("Document translation worker starting...",
		"version", version,
		"queueBackend", cfg.QueueBackend,
		"queue", cfg.QueueName,
		"workers", cfg.WorkerConcurrency)

	ctx := context.Background()

	// Step 1: Redis client for the shared translation cache
	redisOpt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	rdb := redis.NewClient(redisOpt)
	defer rdb.Close()

	// Step 2: Storage (PostgreSQL + MinIO)
	logger.Info("Connecting to storage (PostgreSQL + MinIO)...")
	storageManager, err := storage.NewStorageManager(ctx, cfg.DatabaseURL, storage.MinIOConfig{
		Endpoint:  cfg.MinIO.Endpoint,
		AccessKey: cfg.MinIO.AccessKey,
		SecretKey: cfg.MinIO.SecretKey,
		Bucket:    cfg.MinIO.Bucket,
		UseSSL:    cfg.MinIO.UseSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize storage manager: %w", err)
	}
	defer storageManager.Close()

	// Step 3: Translation pipeline
	var cache redis.Cmdable
	if cfg.Translator.CacheInRedis {
		cache = rdb
	}
	p, err := pipeline.New(cfg, pipeline.Options{Redis: cache})
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}

	proc, err := processor.NewDocumentProcessor(&processor.ProcessorConfig{
		Documents:   p.Documents,
		Store:       storageManager,
		MaxFileSize: cfg.MaxFileSize,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize document processor: %w", err)
	}

	// Step 4: Queue consumer
	worker, stats, err := newWorker(cfg, proc)
	if err != nil {
		return fmt.Errorf("failed to initialize queue consumer: %w", err)
	}
	if err := worker.Start(ctx); err != nil {
		return fmt.Errorf("failed to start queue consumer: %w", err)
	}

	// Step 5: HTTP surface
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           api.NewHandler(storageManager, stats, version).NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	logger.Info("Document translation worker is READY",
		"httpPort", cfg.HTTPPort,
		"ocr", cfg.OCR.Engine,
		"translator", p.Translator.Name(),
		"target", cfg.Translator.TargetLanguage)

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Received signal, initiating graceful shutdown...", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ProcessingTimeoutDuration())
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Error stopping HTTP server", "error", err)
	}
	if err := worker.Stop(shutdownCtx); err != nil {
		logger.Warn("Error stopping queue consumer", "error", err)
	}

	logger.Info("Shutdown complete", "cache", p.Translator.Stats())
	return nil
}

// newWorker builds the configured queue consumer. stats is nil for
// backends that keep no list counters.
func newWorker(cfg *config.Config, proc processor.DocumentProcessorInterface) (queue.Worker, api.StatsSource, error) {
	switch cfg.QueueBackend {
	case "asynq":
		c, err := queue.NewConsumer(&queue.ConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			Processor:         proc,
			ProcessingTimeout: int64(cfg.ProcessingTimeout),
		})
		if err != nil {
			return nil, nil, err
		}
		return c, nil, nil
	default:
		c, err := queue.NewRedisConsumer(&queue.RedisConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			MaxRetries:        cfg.MaxRetries,
			Processor:         proc,
			ProcessingTimeout: int64(cfg.ProcessingTimeout),
		})
		if err != nil {
			return nil, nil, err
		}
		return c, c, nil
	}
}
