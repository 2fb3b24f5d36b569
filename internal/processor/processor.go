/**
 * Document Processor for the translation worker
 *
 * Runs one translation job end to end:
 * - load page images from the payload or a source URL
 * - translate every page (fail-fast or best-effort)
 * - upload translated pages, page texts and the combined PDF
 * - record progress and outcome on the job row
 */

package processor

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/adverant/nexus/doctranslate-worker/internal/errors"
	"github.com/adverant/nexus/doctranslate-worker/internal/logging"
	"github.com/adverant/nexus/doctranslate-worker/internal/metrics"
	"github.com/adverant/nexus/doctranslate-worker/internal/models"
	"github.com/adverant/nexus/doctranslate-worker/internal/render"
	"github.com/adverant/nexus/doctranslate-worker/internal/storage"
)

// DocumentProcessorInterface defines the interface for document processing
type DocumentProcessorInterface interface {
	ProcessDocument(ctx context.Context, req *ProcessRequest) (*ProcessResult, error)
	UpdateJobStatus(ctx context.Context, update *storage.JobUpdate) error
}

// ResultStore persists job status and translation artifacts.
type ResultStore interface {
	StoreTranslation(ctx context.Context, out *storage.TranslationOutput) (*storage.StoredTranslation, error)
	UpdateJobStatus(ctx context.Context, update *storage.JobUpdate) error
}

// ProcessorConfig holds processor configuration
type ProcessorConfig struct {
	Documents   *DocumentAssembler
	Store       ResultStore
	MaxFileSize int64
	HTTPClient  *http.Client // for FileURL downloads; defaults to a 10 minute timeout
}

// ProcessRequest represents a document translation request
type ProcessRequest struct {
	JobID          string
	UserID         string
	Filename       string
	TargetLanguage string
	// Pages holds encoded page images; when empty, FileURL is downloaded
	// and decoded as a single page.
	Pages      [][]byte
	FileURL    string
	BestEffort bool
	Metadata   map[string]interface{}
}

// ProcessResult represents the processing result
type ProcessResult struct {
	PageCount        int                        `json:"pageCount"`
	FailedPages      []int                      `json:"failedPages,omitempty"`
	LineCount        int                        `json:"lineCount"`
	Artifacts        *storage.StoredTranslation `json:"artifacts"`
	ProcessingTimeMs int64                      `json:"processingTimeMs"`
}

// DocumentProcessor handles translation jobs
type DocumentProcessor struct {
	config     *ProcessorConfig
	documents  *DocumentAssembler
	store      ResultStore
	httpClient *http.Client
	logger     *logging.Logger
}

// NewDocumentProcessor creates a new document processor
func NewDocumentProcessor(cfg *ProcessorConfig) (*DocumentProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Documents == nil {
		return nil, fmt.Errorf("document assembler is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("result store is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Minute}
	}

	return &DocumentProcessor{
		config:     cfg,
		documents:  cfg.Documents,
		store:      cfg.Store,
		httpClient: httpClient,
		logger:     logging.NewLogger("DocumentProcessor"),
	}, nil
}

// ProcessDocument processes a translation job through the complete pipeline
func (p *DocumentProcessor) ProcessDocument(ctx context.Context, req *ProcessRequest) (*ProcessResult, error) {
	startTime := time.Now()
	logger := p.logger.With("jobId", req.JobID)
	logger.Info("Starting translation pipeline", "filename", req.Filename)

	result, err := p.process(ctx, req, logger)
	elapsed := time.Since(startTime)
	if err != nil {
		metrics.RecordJob(storage.StatusFailed, elapsed.Seconds())
		if pe, ok := err.(*errors.ProcessingError); ok && pe.JobID == "" {
			err = pe.WithJob(req.JobID)
		}
		return nil, err
	}

	result.ProcessingTimeMs = elapsed.Milliseconds()
	metrics.RecordJob(storage.StatusCompleted, elapsed.Seconds())
	logger.Info("Translation pipeline complete",
		"pages", result.PageCount,
		"failedPages", result.FailedPages,
		"lines", result.LineCount,
		"duration", elapsed.String())
	return result, nil
}

func (p *DocumentProcessor) process(ctx context.Context, req *ProcessRequest, logger *logging.Logger) (*ProcessResult, error) {
	// Step 1: Load page bytes
	raw, err := p.loadPages(ctx, req)
	if err != nil {
		return nil, err
	}
	logger.Info("Step 1: Pages loaded", "pages", len(raw))

	// Step 2: Decode
	images := make([]image.Image, len(raw))
	for i, data := range raw {
		if mime := detectMimeTypeFromMagicBytes(data); mime == "application/pdf" {
			// PDF rasterization is left to the submitter
			return nil, errors.NewUnsupportedFormatError(req.JobID, mime).AtPage(i + 1)
		}
		img, format, err := render.Decode(data)
		if err != nil {
			pe, _ := errors.As(err)
			return nil, pe.WithJob(req.JobID).AtPage(i + 1)
		}
		logger.Debug("Page decoded", "page", i+1, "format", format, "bounds", img.Bounds().String())
		images[i] = img
	}
	p.progress(ctx, req, 10, len(images))

	// Step 3: Translate
	docs := p.documents.ForJob(req.TargetLanguage, req.BestEffort)
	logger.Info("Step 3: Translating pages", "pages", len(images), "target", req.TargetLanguage, "bestEffort", docs.BestEffort())
	doc, docErr := docs.ProcessDocument(ctx, images)
	if doc == nil {
		return nil, docErr
	}
	if len(doc.TranslatedImages()) == 0 {
		// every page failed
		return nil, docErr
	}
	if docErr != nil {
		logger.Warn("Continuing with failed pages", "failedPages", doc.FailedPages(), "error", docErr)
	}
	p.progress(ctx, req, 80, len(images))

	// Step 4: Assemble and upload
	out, err := p.buildOutput(req.JobID, doc)
	if err != nil {
		return nil, err
	}
	stored, err := p.store.StoreTranslation(ctx, out)
	if err != nil {
		return nil, err
	}
	logger.Info("Step 4: Artifacts stored", "pages", len(stored.Pages))

	return &ProcessResult{
		PageCount:   len(doc.Pages),
		FailedPages: doc.FailedPages(),
		LineCount:   doc.LineCount(),
		Artifacts:   stored,
	}, nil
}

func (p *DocumentProcessor) buildOutput(jobID string, doc *models.Document) (*storage.TranslationOutput, error) {
	out := &storage.TranslationOutput{JobID: jobID}
	for _, page := range doc.Pages {
		if !page.OK() {
			continue
		}
		data, err := render.EncodePNG(page.TranslatedImage)
		if err != nil {
			pe, _ := errors.As(err)
			return nil, pe.AtPage(page.Index + 1)
		}
		out.Pages = append(out.Pages, storage.PageOutput{
			Number: page.Index + 1,
			Image:  data,
			Text:   page.TranslatedText(),
		})
	}

	var pdf bytes.Buffer
	if err := p.documents.AssembleDocument(&pdf, doc); err != nil {
		return nil, err
	}
	out.Document = pdf.Bytes()
	return out, nil
}

// progress records an intermediate status. Failures are logged only; the
// job outcome is recorded by the consumer.
func (p *DocumentProcessor) progress(ctx context.Context, req *ProcessRequest, percent, pages int) {
	err := p.store.UpdateJobStatus(ctx, &storage.JobUpdate{
		JobID:     req.JobID,
		Status:    storage.StatusProcessing,
		Progress:  percent,
		PageCount: pages,
	})
	if err != nil {
		p.logger.Warn("Failed to record progress", "jobId", req.JobID, "progress", percent, "error", err)
	}
}

// UpdateJobStatus updates job status in the database
func (p *DocumentProcessor) UpdateJobStatus(ctx context.Context, update *storage.JobUpdate) error {
	return p.store.UpdateJobStatus(ctx, update)
}

// loadPages returns the payload pages, or downloads FileURL as one page.
func (p *DocumentProcessor) loadPages(ctx context.Context, req *ProcessRequest) ([][]byte, error) {
	if len(req.Pages) > 0 {
		for i, data := range req.Pages {
			if p.config.MaxFileSize > 0 && int64(len(data)) > p.config.MaxFileSize {
				return nil, errors.NewUnsupportedFormatError(req.JobID,
					fmt.Sprintf("page exceeds maximum size: %d > %d bytes", len(data), p.config.MaxFileSize)).AtPage(i + 1)
			}
		}
		return req.Pages, nil
	}

	if req.FileURL != "" {
		data, err := p.downloadFileFromURL(ctx, req.JobID, req.FileURL)
		if err != nil {
			return nil, err
		}
		return [][]byte{data}, nil
	}

	return nil, errors.NewUnsupportedFormatError(req.JobID, "no pages or file URL provided")
}

// downloadFileFromURL downloads a file with exponential backoff on
// network errors and 5xx responses.
func (p *DocumentProcessor) downloadFileFromURL(ctx context.Context, jobID string, fileURL string) ([]byte, error) {
	const maxRetries = 5

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = time.Second
	eb.MaxInterval = 32 * time.Second
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, maxRetries-1), ctx)

	attempt := 0
	data, err := backoff.RetryNotifyWithData(func() ([]byte, error) {
		attempt++
		p.logger.Info("Downloading source file", "jobId", jobID, "attempt", attempt, "url", fileURL)
		return p.download(ctx, fileURL)
	}, policy, func(err error, wait time.Duration) {
		p.logger.Warn("Download failed, retrying", "jobId", jobID, "attempt", attempt, "wait", wait.String(), "error", err)
	})
	if err != nil {
		var pe *errors.ProcessingError
		if stderrors.As(err, &pe) {
			return nil, pe.WithJob(jobID)
		}
		return nil, errors.NewDownloadFailedError(jobID, fileURL, err)
	}

	p.logger.Info("Download successful", "jobId", jobID, "attempt", attempt, "bytes", len(data))
	return data, nil
}

func (p *DocumentProcessor) download(ctx context.Context, fileURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := errors.NewAPICallFailedError(fileURL, resp.StatusCode, resp.Status)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	if p.config.MaxFileSize > 0 && resp.ContentLength > p.config.MaxFileSize {
		return nil, backoff.Permanent(errors.NewUnsupportedFormatError("",
			fmt.Sprintf("file size exceeds maximum: %d > %d bytes", resp.ContentLength, p.config.MaxFileSize)))
	}

	limit := p.config.MaxFileSize
	if limit <= 0 {
		limit = 1 << 30
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, backoff.Permanent(errors.NewUnsupportedFormatError("",
			fmt.Sprintf("file size exceeds maximum of %d bytes", limit)))
	}
	return data, nil
}

// detectMimeTypeFromMagicBytes sniffs the formats a submitter is likely
// to send. Returns "" when unknown.
func detectMimeTypeFromMagicBytes(data []byte) string {
	if len(data) < 4 {
		return ""
	}

	switch {
	case bytes.HasPrefix(data, []byte("%PDF")):
		return "application/pdf"
	case len(data) >= 8 && bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}):
		return "image/png"
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg"
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return "image/gif"
	case len(data) > 12 && bytes.HasPrefix(data, []byte("RIFF")) && string(data[8:12]) == "WEBP":
		return "image/webp"
	case bytes.HasPrefix(data, []byte{0x49, 0x49, 0x2A, 0x00}), bytes.HasPrefix(data, []byte{0x4D, 0x4D, 0x00, 0x2A}):
		return "image/tiff"
	case bytes.HasPrefix(data, []byte("BM")):
		return "image/bmp"
	}
	return ""
}
