package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adverant/nexus/doctranslate-worker/internal/errors"
	"github.com/adverant/nexus/doctranslate-worker/internal/logging"
)

// DirStore writes translation outputs into a local directory using the
// same file names as the artifact bucket. Job status is only logged.
type DirStore struct {
	dir    string
	logger *logging.Logger
}

// NewDirStore creates dir if needed.
func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &DirStore{dir: dir, logger: logging.NewLogger("DirStore")}, nil
}

// StoreTranslation writes every page image, page text and the PDF.
func (d *DirStore) StoreTranslation(ctx context.Context, out *TranslationOutput) (*StoredTranslation, error) {
	stored := &StoredTranslation{}
	for _, p := range out.Pages {
		img, err := d.write(PageImageKey("", p.Number), p.Image, "image/png")
		if err != nil {
			return nil, errors.NewStorageFailedError(out.JobID, err)
		}
		txt, err := d.write(PageTextKey("", p.Number), []byte(p.Text), "text/plain; charset=utf-8")
		if err != nil {
			return nil, errors.NewStorageFailedError(out.JobID, err)
		}
		stored.Pages = append(stored.Pages, StoredPage{Number: p.Number, Image: img, Text: txt})
	}
	if len(out.Document) > 0 {
		doc, err := d.write(DocumentKey(""), out.Document, "application/pdf")
		if err != nil {
			return nil, errors.NewStorageFailedError(out.JobID, err)
		}
		stored.Document = doc
	}
	return stored, nil
}

func (d *DirStore) write(name string, data []byte, contentType string) (*Artifact, error) {
	path := filepath.Join(d.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, err
	}
	return &Artifact{Key: path, ContentType: contentType, Size: int64(len(data))}, nil
}

// UpdateJobStatus logs progress.
func (d *DirStore) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	d.logger.Debug("Job status", "jobId", update.JobID, "status", update.Status, "progress", update.Progress)
	return nil
}
