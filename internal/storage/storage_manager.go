/**
 * Storage Manager for the document translation worker
 *
 * Coordinates job state in PostgreSQL with translation artifacts in
 * MinIO. Artifacts are uploaded before the job row is marked completed,
 * so a completed job always has downloadable outputs.
 */

package storage

import (
	"context"
	"fmt"

	"github.com/adverant/nexus/doctranslate-worker/internal/errors"
	"github.com/adverant/nexus/doctranslate-worker/internal/logging"
)

// StorageManager coordinates PostgreSQL and MinIO operations
type StorageManager struct {
	postgres  *PostgresClient
	artifacts *ArtifactStore
	logger    *logging.Logger
}

// PageOutput is one encoded translated page. Number is 1-based.
type PageOutput struct {
	Number int
	Image  []byte
	Text   string
}

// TranslationOutput is everything produced for one job.
type TranslationOutput struct {
	JobID    string
	Pages    []PageOutput
	Document []byte // combined PDF; may be empty when no page succeeded
}

// StoredPage references the artifacts of one page.
type StoredPage struct {
	Number int       `json:"page"`
	Image  *Artifact `json:"image"`
	Text   *Artifact `json:"text"`
}

// StoredTranslation references every uploaded artifact of a job.
type StoredTranslation struct {
	Pages    []StoredPage `json:"pages"`
	Document *Artifact    `json:"document,omitempty"`
}

// NewStorageManager creates a new storage manager
func NewStorageManager(ctx context.Context, postgresURL string, minioCfg MinIOConfig) (*StorageManager, error) {
	postgres, err := NewPostgresClient(postgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL client: %w", err)
	}
	if err := postgres.EnsureSchema(ctx); err != nil {
		postgres.Close()
		return nil, err
	}

	var artifacts *ArtifactStore
	if minioCfg.Endpoint != "" {
		artifacts, err = NewArtifactStore(ctx, minioCfg)
		if err != nil {
			postgres.Close() // Cleanup on failure
			return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
		}
	}

	return NewStorageManagerFrom(postgres, artifacts), nil
}

// NewStorageManagerFrom wraps existing clients. artifacts may be nil, in
// which case outputs are not uploaded.
func NewStorageManagerFrom(postgres *PostgresClient, artifacts *ArtifactStore) *StorageManager {
	sm := &StorageManager{
		postgres:  postgres,
		artifacts: artifacts,
		logger:    logging.NewLogger("StorageManager"),
	}
	if artifacts == nil {
		sm.logger.Warn("MinIO not configured, translation artifacts will not be stored")
	}
	return sm
}

// StoreTranslation uploads page images, page texts and the combined PDF.
// A partial upload is removed again on failure.
func (sm *StorageManager) StoreTranslation(ctx context.Context, out *TranslationOutput) (*StoredTranslation, error) {
	if out == nil || out.JobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}
	if sm.artifacts == nil {
		return &StoredTranslation{}, nil
	}

	stored, err := sm.upload(ctx, out)
	if err != nil {
		if rmErr := sm.artifacts.RemoveJob(ctx, out.JobID); rmErr != nil {
			sm.logger.Warn("Failed to remove partial upload", "jobId", out.JobID, "error", rmErr)
		}
		return nil, errors.NewStorageFailedError(out.JobID, err)
	}

	sm.logger.Info("Artifacts stored",
		"jobId", out.JobID,
		"bucket", sm.artifacts.Bucket(),
		"pages", len(stored.Pages))
	return stored, nil
}

func (sm *StorageManager) upload(ctx context.Context, out *TranslationOutput) (*StoredTranslation, error) {
	stored := &StoredTranslation{Pages: make([]StoredPage, 0, len(out.Pages))}
	for _, p := range out.Pages {
		img, err := sm.artifacts.Put(ctx, PageImageKey(out.JobID, p.Number), p.Image, "image/png")
		if err != nil {
			return nil, err
		}
		txt, err := sm.artifacts.Put(ctx, PageTextKey(out.JobID, p.Number), []byte(p.Text), "text/plain; charset=utf-8")
		if err != nil {
			return nil, err
		}
		stored.Pages = append(stored.Pages, StoredPage{Number: p.Number, Image: img, Text: txt})
	}
	if len(out.Document) > 0 {
		doc, err := sm.artifacts.Put(ctx, DocumentKey(out.JobID), out.Document, "application/pdf")
		if err != nil {
			return nil, err
		}
		stored.Document = doc
	}
	return stored, nil
}

// UpdateJobStatus updates job status in PostgreSQL
func (sm *StorageManager) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	return sm.postgres.UpdateJobStatus(ctx, update)
}

// GetJobByID retrieves job by ID
func (sm *StorageManager) GetJobByID(ctx context.Context, jobID string) (*Job, error) {
	return sm.postgres.GetJobByID(ctx, jobID)
}

// Ping checks the database.
func (sm *StorageManager) Ping(ctx context.Context) error {
	return sm.postgres.Ping(ctx)
}

// GetStats returns connection pool statistics
func (sm *StorageManager) GetStats() map[string]interface{} {
	pgStats := sm.postgres.GetStats()
	stats := map[string]interface{}{
		"postgres": map[string]interface{}{
			"max_open_connections": pgStats.MaxOpenConnections,
			"open_connections":     pgStats.OpenConnections,
			"in_use":               pgStats.InUse,
			"idle":                 pgStats.Idle,
			"wait_count":           pgStats.WaitCount,
			"wait_duration":        pgStats.WaitDuration.String(),
		},
	}
	if sm.artifacts != nil {
		stats["minio"] = map[string]interface{}{"bucket": sm.artifacts.Bucket()}
	}
	return stats
}

// Close closes all connections
func (sm *StorageManager) Close() error {
	if sm.postgres != nil {
		if err := sm.postgres.Close(); err != nil {
			return fmt.Errorf("failed to close PostgreSQL: %w", err)
		}
	}
	return nil
}
