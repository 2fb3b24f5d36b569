/**
 * Configuration for the document translation worker
 *
 * Defaults, then an optional YAML file, then environment variables
 * (including anything loaded from a .env file).
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// maxBatchSize is the most texts each provider accepts in one request.
var maxBatchSize = map[string]int{
	"azure": 100,
	"deepl": 50,
}

// Config holds worker configuration
type Config struct {
	OCR        OCRConfig        `yaml:"ocr"`
	Translator TranslatorConfig `yaml:"translator"`
	Render     RenderConfig     `yaml:"render"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`

	// Redis configuration
	RedisURL     string `yaml:"redis_url"`
	QueueBackend string `yaml:"queue_backend"` // "redis" or "asynq"
	QueueName    string `yaml:"queue_name"`

	// PostgreSQL configuration
	DatabaseURL string `yaml:"database_url"`

	// MinIO artifact storage
	MinIO MinIOConfig `yaml:"minio"`

	// Worker configuration
	WorkerConcurrency int   `yaml:"worker_concurrency"`
	MaxRetries        int   `yaml:"max_retries"`
	MaxFileSize       int64 `yaml:"max_file_size"`
	ProcessingTimeout int   `yaml:"processing_timeout_ms"`
	HTTPPort          int   `yaml:"http_port"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// OCRConfig configures text recognition.
type OCRConfig struct {
	Engine          string   `yaml:"engine"` // "azure" or "tesseract"
	APIKey          string   `yaml:"api_key"`
	Endpoint        string   `yaml:"endpoint"`
	Region          string   `yaml:"region"`
	PollIntervalMs  int      `yaml:"poll_interval_ms"`
	MaxPollAttempts int      `yaml:"max_poll_attempts"`
	MaxRetries      int      `yaml:"max_retries"`
	TimeoutMs       int      `yaml:"timeout_ms"`
	Languages       []string `yaml:"languages"` // tesseract only
}

// TranslatorConfig configures the machine translation provider.
type TranslatorConfig struct {
	Provider        string `yaml:"provider"` // "azure" or "deepl"
	APIKey          string `yaml:"api_key"`
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	TargetLanguage  string `yaml:"target_language"`
	SourceLanguage  string `yaml:"source_language"`
	TimeoutMs       int    `yaml:"timeout_ms"`
	MaxRetries      int    `yaml:"max_retries"`
	BatchSize       int    `yaml:"batch_size"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	CacheCapacity   int    `yaml:"cache_capacity"`
	CacheInRedis    bool   `yaml:"cache_in_redis"`
}

// RenderConfig configures the overlay renderer.
type RenderConfig struct {
	FontPath        string  `yaml:"font_path"`
	FontSize        float64 `yaml:"font_size"`
	BackgroundAlpha int     `yaml:"background_alpha"`
	FitText         bool    `yaml:"fit_text"`
}

// PipelineConfig configures page and line fan-out.
type PipelineConfig struct {
	PageConcurrency int    `yaml:"page_concurrency"`
	LineConcurrency int    `yaml:"line_concurrency"`
	BestEffort      bool   `yaml:"best_effort"`
	GlossaryPath    string `yaml:"glossary_path"`
}

// MinIOConfig configures the artifact bucket.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		OCR: OCRConfig{
			Engine:          "azure",
			PollIntervalMs:  1000,
			MaxPollAttempts: 60,
			MaxRetries:      3,
			TimeoutMs:       30000,
			Languages:       []string{"eng"},
		},
		Translator: TranslatorConfig{
			Provider:        "azure",
			TargetLanguage:  "id",
			TimeoutMs:       30000,
			MaxRetries:      3,
			BatchSize:       1,
			CacheTTLSeconds: 3600,
			CacheCapacity:   10000,
		},
		Render: RenderConfig{
			FontPath:        "arial.ttf",
			FontSize:        20,
			BackgroundAlpha: 230,
		},
		Pipeline: PipelineConfig{
			PageConcurrency: 1,
			LineConcurrency: 1,
			GlossaryPath:    "glossary.csv",
		},
		RedisURL:     "redis://localhost:6379",
		QueueBackend: "redis",
		QueueName:    "doctranslate:jobs",
		MinIO: MinIOConfig{
			Bucket: "doctranslate-artifacts",
		},
		WorkerConcurrency: 4,
		MaxRetries:        3,
		MaxFileSize:       104857600, // 100MB
		ProcessingTimeout: 600000,    // 10 minutes
		HTTPPort:          9109,
		LogLevel:          "info",
		LogFormat:         "json",
	}
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	return Load(os.Getenv("CONFIG_FILE"))
}

// Load reads the YAML file at path (if non-empty) over the defaults and
// then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.OCR.Engine = getEnvOrDefault("OCR_ENGINE", c.OCR.Engine)
	c.OCR.APIKey = getEnvOrDefault("AZURE_OCR_KEY", c.OCR.APIKey)
	c.OCR.Endpoint = getEnvOrDefault("AZURE_OCR_ENDPOINT", c.OCR.Endpoint)
	c.OCR.Region = getEnvOrDefault("AZURE_OCR_REGION", c.OCR.Region)
	c.OCR.PollIntervalMs = getEnvAsIntOrDefault("OCR_POLL_INTERVAL_MS", c.OCR.PollIntervalMs)
	c.OCR.MaxPollAttempts = getEnvAsIntOrDefault("OCR_MAX_POLL_ATTEMPTS", c.OCR.MaxPollAttempts)
	c.OCR.MaxRetries = getEnvAsIntOrDefault("OCR_MAX_RETRIES", c.OCR.MaxRetries)
	c.OCR.TimeoutMs = getEnvAsIntOrDefault("OCR_TIMEOUT_MS", c.OCR.TimeoutMs)
	c.OCR.Languages = getEnvAsListOrDefault("TESSERACT_LANGUAGES", c.OCR.Languages)

	c.Translator.Provider = getEnvOrDefault("TRANSLATOR_PROVIDER", c.Translator.Provider)
	switch c.Translator.Provider {
	case "deepl":
		c.Translator.APIKey = getEnvOrDefault("DEEPL_API_KEY", c.Translator.APIKey)
		c.Translator.Endpoint = getEnvOrDefault("DEEPL_ENDPOINT", c.Translator.Endpoint)
	default:
		c.Translator.APIKey = getEnvOrDefault("AZURE_TRANSLATOR_KEY", c.Translator.APIKey)
		c.Translator.Endpoint = getEnvOrDefault("AZURE_TRANSLATOR_ENDPOINT", c.Translator.Endpoint)
		c.Translator.Region = getEnvOrDefault("AZURE_TRANSLATOR_LOCATION", c.Translator.Region)
	}
	c.Translator.TargetLanguage = getEnvOrDefault("TARGET_LANGUAGE", c.Translator.TargetLanguage)
	c.Translator.SourceLanguage = getEnvOrDefault("SOURCE_LANGUAGE", c.Translator.SourceLanguage)
	c.Translator.TimeoutMs = getEnvAsIntOrDefault("TRANSLATOR_TIMEOUT_MS", c.Translator.TimeoutMs)
	c.Translator.MaxRetries = getEnvAsIntOrDefault("TRANSLATOR_MAX_RETRIES", c.Translator.MaxRetries)
	c.Translator.BatchSize = getEnvAsIntOrDefault("TRANSLATOR_BATCH_SIZE", c.Translator.BatchSize)
	c.Translator.CacheTTLSeconds = getEnvAsIntOrDefault("TRANSLATION_CACHE_TTL_SECONDS", c.Translator.CacheTTLSeconds)
	c.Translator.CacheCapacity = getEnvAsIntOrDefault("TRANSLATION_CACHE_CAPACITY", c.Translator.CacheCapacity)
	c.Translator.CacheInRedis = getEnvAsBoolOrDefault("TRANSLATION_CACHE_REDIS", c.Translator.CacheInRedis)

	c.Render.FontPath = getEnvOrDefault("FONT_PATH", c.Render.FontPath)
	c.Render.FontSize = getEnvAsFloatOrDefault("FONT_SIZE", c.Render.FontSize)
	c.Render.BackgroundAlpha = getEnvAsIntOrDefault("BACKGROUND_ALPHA", c.Render.BackgroundAlpha)
	c.Render.FitText = getEnvAsBoolOrDefault("FIT_TEXT", c.Render.FitText)

	c.Pipeline.PageConcurrency = getEnvAsIntOrDefault("PAGE_CONCURRENCY", c.Pipeline.PageConcurrency)
	c.Pipeline.LineConcurrency = getEnvAsIntOrDefault("LINE_CONCURRENCY", c.Pipeline.LineConcurrency)
	c.Pipeline.BestEffort = getEnvAsBoolOrDefault("BEST_EFFORT", c.Pipeline.BestEffort)
	c.Pipeline.GlossaryPath = getEnvOrDefault("GLOSSARY_PATH", c.Pipeline.GlossaryPath)

	c.RedisURL = getEnvOrDefault("REDIS_URL", c.RedisURL)
	c.QueueBackend = getEnvOrDefault("QUEUE_BACKEND", c.QueueBackend)
	c.QueueName = getEnvOrDefault("QUEUE_NAME", c.QueueName)
	c.DatabaseURL = getEnvOrDefault("DATABASE_URL", c.DatabaseURL)

	c.MinIO.Endpoint = getEnvOrDefault("MINIO_ENDPOINT", c.MinIO.Endpoint)
	c.MinIO.AccessKey = getEnvOrDefault("MINIO_ACCESS_KEY", c.MinIO.AccessKey)
	c.MinIO.SecretKey = getEnvOrDefault("MINIO_SECRET_KEY", c.MinIO.SecretKey)
	c.MinIO.Bucket = getEnvOrDefault("MINIO_BUCKET", c.MinIO.Bucket)
	c.MinIO.UseSSL = getEnvAsBoolOrDefault("MINIO_USE_SSL", c.MinIO.UseSSL)

	c.WorkerConcurrency = getEnvAsIntOrDefault("WORKER_CONCURRENCY", c.WorkerConcurrency)
	c.MaxRetries = getEnvAsIntOrDefault("MAX_RETRIES", c.MaxRetries)
	c.MaxFileSize = getEnvAsInt64OrDefault("MAX_FILE_SIZE", c.MaxFileSize)
	c.ProcessingTimeout = getEnvAsIntOrDefault("PROCESSING_TIMEOUT", c.ProcessingTimeout)
	c.HTTPPort = getEnvAsIntOrDefault("HTTP_PORT", c.HTTPPort)
	c.LogLevel = getEnvOrDefault("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnvOrDefault("LOG_FORMAT", c.LogFormat)
}

// PollInterval returns the OCR poll interval as a duration.
func (o OCRConfig) PollInterval() time.Duration {
	return time.Duration(o.PollIntervalMs) * time.Millisecond
}

// Timeout returns the per-request OCR HTTP timeout.
func (o OCRConfig) Timeout() time.Duration {
	return time.Duration(o.TimeoutMs) * time.Millisecond
}

// Timeout returns the per-request translator HTTP timeout.
func (t TranslatorConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutMs) * time.Millisecond
}

// CacheTTL returns the translation cache entry lifetime.
func (t TranslatorConfig) CacheTTL() time.Duration {
	return time.Duration(t.CacheTTLSeconds) * time.Second
}

// ProcessingTimeoutDuration returns the per-job deadline.
func (c *Config) ProcessingTimeoutDuration() time.Duration {
	return time.Duration(c.ProcessingTimeout) * time.Millisecond
}

// Validate checks the settings every entry point needs: service
// credentials and pipeline bounds.
func (c *Config) Validate() error {
	switch c.OCR.Engine {
	case "azure":
		if c.OCR.APIKey == "" {
			return fmt.Errorf("AZURE_OCR_KEY is required for the azure OCR engine")
		}
		if c.OCR.Endpoint == "" {
			return fmt.Errorf("AZURE_OCR_ENDPOINT is required for the azure OCR engine")
		}
	case "tesseract":
	default:
		return fmt.Errorf("OCR_ENGINE must be azure or tesseract, got %q", c.OCR.Engine)
	}

	if c.OCR.PollIntervalMs < 1 {
		return fmt.Errorf("OCR_POLL_INTERVAL_MS must be positive, got %d", c.OCR.PollIntervalMs)
	}
	if c.OCR.MaxPollAttempts < 1 {
		return fmt.Errorf("OCR_MAX_POLL_ATTEMPTS must be positive, got %d", c.OCR.MaxPollAttempts)
	}

	switch c.Translator.Provider {
	case "azure", "deepl":
	default:
		return fmt.Errorf("TRANSLATOR_PROVIDER must be azure or deepl, got %q", c.Translator.Provider)
	}
	if c.Translator.APIKey == "" {
		return fmt.Errorf("translator API key is required for provider %s", c.Translator.Provider)
	}
	if c.Translator.TargetLanguage == "" {
		return fmt.Errorf("TARGET_LANGUAGE is required")
	}
	if limit := maxBatchSize[c.Translator.Provider]; c.Translator.BatchSize < 1 || c.Translator.BatchSize > limit {
		return fmt.Errorf("TRANSLATOR_BATCH_SIZE must be between 1 and %d for %s, got %d",
			limit, c.Translator.Provider, c.Translator.BatchSize)
	}

	if c.Pipeline.PageConcurrency < 1 || c.Pipeline.PageConcurrency > 64 {
		return fmt.Errorf("PAGE_CONCURRENCY must be between 1 and 64, got %d", c.Pipeline.PageConcurrency)
	}
	if c.Pipeline.LineConcurrency < 1 || c.Pipeline.LineConcurrency > 64 {
		return fmt.Errorf("LINE_CONCURRENCY must be between 1 and 64, got %d", c.Pipeline.LineConcurrency)
	}
	if c.Render.BackgroundAlpha < 0 || c.Render.BackgroundAlpha > 255 {
		return fmt.Errorf("BACKGROUND_ALPHA must be between 0 and 255, got %d", c.Render.BackgroundAlpha)
	}
	if c.Render.FontSize <= 0 {
		return fmt.Errorf("FONT_SIZE must be positive, got %v", c.Render.FontSize)
	}

	return nil
}

// ValidateWorker checks everything Validate does plus the queue,
// database and worker pool settings.
func (c *Config) ValidateWorker() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	switch c.QueueBackend {
	case "redis", "asynq":
	default:
		return fmt.Errorf("QUEUE_BACKEND must be redis or asynq, got %q", c.QueueBackend)
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.MaxFileSize < 1024 || c.MaxFileSize > 10737418240 { // 1KB to 10GB
		return fmt.Errorf("MAX_FILE_SIZE must be between 1KB and 10GB, got %d", c.MaxFileSize)
	}

	return nil
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsInt64OrDefault gets environment variable as int64 or returns default
func getEnvAsInt64OrDefault(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsListOrDefault splits a comma or plus separated list ("eng+ind").
func getEnvAsListOrDefault(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	fields := strings.FieldsFunc(valueStr, func(r rune) bool { return r == ',' || r == '+' })
	if len(fields) == 0 {
		return defaultValue
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}
