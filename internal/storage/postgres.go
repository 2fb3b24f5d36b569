/**
 * PostgreSQL Client for the document translation worker
 *
 * Persists translation job status, progress and failure details.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/lib/pq"

	"github.com/adverant/nexus/doctranslate-worker/internal/errors"
)

// Job statuses
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

// JobUpdate represents a job status update. Zero-valued fields leave the
// stored value unchanged, except the error fields, which are cleared
// when empty.
type JobUpdate struct {
	JobID            string
	UserID           string
	Filename         string
	TargetLanguage   string
	Status           string
	Progress         int
	PageCount        int
	FailedPages      []int
	ProcessingTimeMs int64
	DocumentURL      string
	ErrorCode        string
	ErrorMessage     string
	ErrorOperation   string
	ErrorPage        int
	Metadata         map[string]interface{}
}

// Job is a stored translation job.
type Job struct {
	ID               string                 `json:"id"`
	UserID           string                 `json:"userId"`
	Filename         string                 `json:"filename"`
	TargetLanguage   string                 `json:"targetLanguage"`
	Status           string                 `json:"status"`
	Progress         int                    `json:"progress"`
	PageCount        int                    `json:"pageCount"`
	FailedPages      []int                  `json:"failedPages,omitempty"`
	ProcessingTimeMs int64                  `json:"processingTimeMs,omitempty"`
	DocumentURL      string                 `json:"documentUrl,omitempty"`
	ErrorCode        string                 `json:"errorCode,omitempty"`
	ErrorMessage     string                 `json:"errorMessage,omitempty"`
	ErrorOperation   string                 `json:"errorOperation,omitempty"`
	ErrorPage        int                    `json:"errorPage,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt        time.Time              `json:"createdAt"`
	UpdatedAt        time.Time              `json:"updatedAt"`
}

// ErrJobNotFound is returned by GetJobByID for unknown IDs.
var ErrJobNotFound = fmt.Errorf("job not found")

const schemaSQL = `
	CREATE SCHEMA IF NOT EXISTS doctranslate;
	CREATE TABLE IF NOT EXISTS doctranslate.translation_jobs (
		id                 TEXT PRIMARY KEY,
		user_id            TEXT NOT NULL DEFAULT 'anonymous',
		filename           TEXT NOT NULL DEFAULT 'unknown',
		target_language    TEXT NOT NULL DEFAULT '',
		status             TEXT NOT NULL,
		progress           INTEGER NOT NULL DEFAULT 0,
		page_count         INTEGER NOT NULL DEFAULT 0,
		failed_pages       INTEGER[] NOT NULL DEFAULT '{}',
		processing_time_ms BIGINT,
		document_url       TEXT,
		error_code         TEXT,
		error_message      TEXT,
		error_operation    TEXT,
		error_page         INTEGER,
		metadata           JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS translation_jobs_status_idx
		ON doctranslate.translation_jobs (status, updated_at);
`

// sanitizeProgress clamps progress to a percentage.
func sanitizeProgress(progress int) int {
	if progress < 0 {
		return 0
	}
	if progress > 100 {
		return 100
	}
	return progress
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// EnsureSchema creates the jobs table if it does not exist.
func (p *PostgresClient) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// UpdateJobStatus upserts a job's status. The first update for an ID
// creates the row, so producers need not insert it themselves.
func (p *PostgresClient) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if update.JobID == "" {
		return fmt.Errorf("job ID is required")
	}
	if update.Status == "" {
		return fmt.Errorf("status is required")
	}

	metadataJSON, err := json.Marshal(update.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if update.Metadata == nil {
		metadataJSON = nil
	} else {
		metadataJSON = sanitizeJSONForPostgres(metadataJSON)
	}

	var failedPages interface{}
	if update.FailedPages != nil {
		failedPages = pq.Array(update.FailedPages)
	}

	query := `
		INSERT INTO doctranslate.translation_jobs (
			id, user_id, filename, target_language,
			status, progress, page_count, failed_pages, processing_time_ms, document_url,
			error_code, error_message, error_operation, error_page,
			metadata, created_at, updated_at
		) VALUES (
			$1, COALESCE(NULLIF($2, ''), 'anonymous'), COALESCE(NULLIF($3, ''), 'unknown'), COALESCE($4, ''),
			$5, $6, $7, COALESCE($8::integer[], '{}'), NULLIF($9, 0), NULLIF($10, ''),
			NULLIF($11, ''), NULLIF($12, ''), NULLIF($13, ''), NULLIF($14, 0),
			COALESCE($15::jsonb, '{}'::jsonb), NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			user_id = COALESCE(NULLIF($2, ''), doctranslate.translation_jobs.user_id),
			filename = COALESCE(NULLIF($3, ''), doctranslate.translation_jobs.filename),
			target_language = COALESCE(NULLIF($4, ''), doctranslate.translation_jobs.target_language),
			status = EXCLUDED.status,
			progress = GREATEST(EXCLUDED.progress, CASE WHEN EXCLUDED.status = 'queued' THEN 0 ELSE doctranslate.translation_jobs.progress END),
			page_count = COALESCE(NULLIF(EXCLUDED.page_count, 0), doctranslate.translation_jobs.page_count),
			failed_pages = COALESCE($8::integer[], doctranslate.translation_jobs.failed_pages),
			processing_time_ms = COALESCE(EXCLUDED.processing_time_ms, doctranslate.translation_jobs.processing_time_ms),
			document_url = COALESCE(EXCLUDED.document_url, doctranslate.translation_jobs.document_url),
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			error_operation = EXCLUDED.error_operation,
			error_page = EXCLUDED.error_page,
			metadata = doctranslate.translation_jobs.metadata || COALESCE($15::jsonb, '{}'::jsonb),
			updated_at = NOW()
		RETURNING id
	`

	progress := sanitizeProgress(update.Progress)
	metadataArg := nullableJSON(metadataJSON)

	var returnedID string
	err = p.db.QueryRowContext(
		ctx,
		query,
		update.JobID,            // $1
		update.UserID,           // $2
		update.Filename,         // $3
		update.TargetLanguage,   // $4
		update.Status,           // $5
		progress,                // $6
		update.PageCount,        // $7
		failedPages,             // $8
		update.ProcessingTimeMs, // $9
		update.DocumentURL,      // $10
		update.ErrorCode,        // $11
		update.ErrorMessage,     // $12
		update.ErrorOperation,   // $13
		update.ErrorPage,        // $14
		metadataArg,             // $15
	).Scan(&returnedID)

	if err != nil {
		return errors.NewDatabaseError(update.JobID,
			fmt.Sprintf("update job status to %s (progress %d)", update.Status, progress), err)
	}

	return nil
}

// GetJobByID retrieves a job by ID
func (p *PostgresClient) GetJobByID(ctx context.Context, jobID string) (*Job, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	query := `
		SELECT
			id, user_id, filename, target_language,
			status, progress, page_count, failed_pages,
			processing_time_ms, document_url,
			error_code, error_message, error_operation, error_page,
			metadata, created_at, updated_at
		FROM doctranslate.translation_jobs
		WHERE id = $1
	`

	var (
		job                                     Job
		failedPages                             pq.Int64Array
		processingTimeMs                        sql.NullInt64
		documentURL                             sql.NullString
		errorCode, errorMessage, errorOperation sql.NullString
		errorPage                               sql.NullInt64
		metadataJSON                            []byte
	)

	err := p.db.QueryRowContext(ctx, query, jobID).Scan(
		&job.ID, &job.UserID, &job.Filename, &job.TargetLanguage,
		&job.Status, &job.Progress, &job.PageCount, &failedPages,
		&processingTimeMs, &documentURL,
		&errorCode, &errorMessage, &errorOperation, &errorPage,
		&metadataJSON, &job.CreatedAt, &job.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if err != nil {
		return nil, errors.NewDatabaseError(jobID, "get job", err)
	}

	for _, n := range failedPages {
		job.FailedPages = append(job.FailedPages, int(n))
	}
	job.ProcessingTimeMs = processingTimeMs.Int64
	job.DocumentURL = documentURL.String
	job.ErrorCode = errorCode.String
	job.ErrorMessage = errorMessage.String
	job.ErrorOperation = errorOperation.String
	job.ErrorPage = int(errorPage.Int64)

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &job.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &job, nil
}

// Ping checks database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (p *PostgresClient) GetStats() sql.DBStats {
	return p.db.Stats()
}

func nullableJSON(b []byte) interface{} {
	if b == nil {
		return nil
	}
	return string(b)
}

var (
	nullEscape    = regexp.MustCompile(`\\u0000`)
	controlEscape = regexp.MustCompile(`\\u00[01][0-9a-fA-F]`)
)

// sanitizeJSONForPostgres strips escapes JSONB rejects: \u0000 is removed
// and other control characters become spaces. OCR text occasionally
// carries them into job metadata.
func sanitizeJSONForPostgres(jsonBytes []byte) []byte {
	result := nullEscape.ReplaceAll(jsonBytes, []byte{})
	return controlEscape.ReplaceAll(result, []byte(" "))
}
