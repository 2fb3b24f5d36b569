/**
 * Azure Read OCR Client
 *
 * Submits a page image to the asynchronous Read analyze endpoint, polls the
 * operation until it reaches a terminal status, and flattens the recognized
 * lines of every region into one sequence in service order.
 *
 * Polling is bounded by MaxPollAttempts; exhausting it is an OCR_TIMEOUT,
 * which callers can tell apart from a job the service reported as failed.
 */

package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/adverant/nexus/doctranslate-worker/internal/errors"
	"github.com/adverant/nexus/doctranslate-worker/internal/logging"
	"github.com/adverant/nexus/doctranslate-worker/internal/metrics"
	"github.com/adverant/nexus/doctranslate-worker/internal/models"
)

const (
	defaultReadPath = "vision/v3.2/read/analyze"
	engineAzureRead = "azure-read"
)

// Read operation statuses
const (
	ReadStatusNotStarted = "notStarted"
	ReadStatusRunning    = "running"
	ReadStatusSucceeded  = "succeeded"
	ReadStatusFailed     = "failed"
)

// AzureReadConfig configures the Read client.
type AzureReadConfig struct {
	APIKey          string
	Endpoint        string
	Region          string
	Language        string // optional BCP-47 hint
	PollInterval    time.Duration
	MaxPollAttempts int
	Timeout         time.Duration
	Retry           RetryPolicy
	JPEGQuality     int
}

// AzureReadClient handles communication with the Azure Read API
type AzureReadClient struct {
	cfg        AzureReadConfig
	analyzeURL string
	httpClient *http.Client
	logger     *logging.Logger
}

// ReadOperationResult is the polled status payload.
type ReadOperationResult struct {
	Status              string             `json:"status"`
	CreatedDateTime     string             `json:"createdDateTime"`
	LastUpdatedDateTime string             `json:"lastUpdatedDateTime"`
	AnalyzeResult       *ReadAnalyzeResult `json:"analyzeResult"`
}

// ReadAnalyzeResult holds one result per detected page or region.
type ReadAnalyzeResult struct {
	Version     string           `json:"version"`
	ReadResults []ReadPageResult `json:"readResults"`
}

// ReadPageResult is one region of recognized lines.
type ReadPageResult struct {
	Page   int        `json:"page"`
	Angle  float64    `json:"angle"`
	Width  float64    `json:"width"`
	Height float64    `json:"height"`
	Unit   string     `json:"unit"`
	Lines  []ReadLine `json:"lines"`
}

// ReadLine is one recognized line.
type ReadLine struct {
	Text        string    `json:"text"`
	BoundingBox []float64 `json:"boundingBox"`
}

// readErrorBody is the service error envelope.
type readErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewAzureReadClient creates a new Read API client
func NewAzureReadClient(cfg AzureReadConfig) (*AzureReadClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Azure OCR API key is required")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("Azure OCR endpoint is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = 60
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = 95
	}

	return &AzureReadClient{
		cfg:        cfg,
		analyzeURL: strings.TrimRight(cfg.Endpoint, "/") + "/" + defaultReadPath,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logging.NewLogger("AzureReadClient"),
	}, nil
}

// Recognize runs OCR on a decoded image. The image is sent as JPEG.
func (c *AzureReadClient) Recognize(ctx context.Context, img image.Image) ([]models.TextLine, error) {
	if img == nil {
		return nil, errors.NewOCRServiceError("no image to recognize", nil)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: c.cfg.JPEGQuality}); err != nil {
		return nil, errors.NewOCRServiceError("failed to encode page as JPEG", err)
	}
	return c.RecognizeBytes(ctx, buf.Bytes())
}

// RecognizeBytes runs OCR on an encoded image.
func (c *AzureReadClient) RecognizeBytes(ctx context.Context, data []byte) ([]models.TextLine, error) {
	start := time.Now()

	operationURL, err := c.Submit(ctx, data)
	if err != nil {
		metrics.RecordOCRRequest(engineAzureRead, "submit_failed")
		return nil, err
	}

	result, err := c.WaitForResult(ctx, operationURL)
	if err != nil {
		if errors.HasCode(err, errors.ErrorOCRTimeout) {
			metrics.RecordOCRRequest(engineAzureRead, "timeout")
		} else {
			metrics.RecordOCRRequest(engineAzureRead, "failed")
		}
		return nil, err
	}

	lines := FlattenLines(result.AnalyzeResult)
	metrics.RecordOCRRequest(engineAzureRead, "succeeded")
	c.logger.Info("OCR complete",
		"lines", len(lines),
		"duration", time.Since(start).String())
	return lines, nil
}

// Submit starts an analyze operation and returns its Operation-Location.
func (c *AzureReadClient) Submit(ctx context.Context, data []byte) (string, error) {
	endpoint := c.analyzeURL
	if c.cfg.Language != "" {
		endpoint += "?language=" + c.cfg.Language
	}

	requestID := uuid.NewString()
	c.logger.Debug("Submitting image for OCR", "bytes", len(data), "requestId", requestID)

	operationURL, err := withRetry(ctx, c.cfg.Retry, c.logger, "ocr.submit", func() (string, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
		if err != nil {
			return "", permanent(fmt.Errorf("failed to create request: %w", err))
		}
		c.setHeaders(httpReq)
		httpReq.Header.Set("Content-Type", "application/octet-stream")
		httpReq.Header.Set("X-ClientTraceId", requestID)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return "", fmt.Errorf("request to Azure Read failed: %w", err)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
			return "", &StatusError{StatusCode: resp.StatusCode, Body: serviceMessage(body)}
		}

		location := resp.Header.Get("Operation-Location")
		if location == "" {
			return "", permanent(fmt.Errorf("response has no Operation-Location header"))
		}
		return location, nil
	})
	if err != nil {
		return "", errors.NewOCRServiceError("failed to submit OCR job", err)
	}

	c.logger.Debug("OCR job accepted", "operation", operationURL)
	return operationURL, nil
}

// GetResult fetches the current state of an analyze operation.
func (c *AzureReadClient) GetResult(ctx context.Context, operationURL string) (*ReadOperationResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, operationURL, nil)
	if err != nil {
		return nil, permanent(fmt.Errorf("failed to create status request: %w", err))
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read status response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: serviceMessage(body)}
	}

	var result ReadOperationResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, permanent(fmt.Errorf("failed to parse status response: %w", err))
	}
	return &result, nil
}

// WaitForResult polls the operation every PollInterval, at most
// MaxPollAttempts times.
func (c *AzureReadClient) WaitForResult(ctx context.Context, operationURL string) (*ReadOperationResult, error) {
	timer := time.NewTimer(c.cfg.PollInterval)
	defer timer.Stop()

	for attempt := 1; attempt <= c.cfg.MaxPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, errors.NewOCRServiceError("cancelled while waiting for OCR job", ctx.Err())
		case <-timer.C:
		}

		result, err := c.GetResult(ctx, operationURL)
		switch {
		case err == nil:
		case isPermanent(err):
			return nil, errors.NewOCRServiceError("failed to poll OCR job", err)
		default:
			c.logger.Warn("Failed to get OCR job status", "attempt", attempt, "error", err)
			timer.Reset(c.cfg.PollInterval)
			continue
		}

		c.logger.Debug("OCR job status", "attempt", attempt, "status", result.Status)

		switch result.Status {
		case ReadStatusSucceeded:
			metrics.RecordOCRPolls(attempt)
			if result.AnalyzeResult == nil {
				return nil, errors.NewOCRServiceError("succeeded OCR job has no analyzeResult", nil)
			}
			return result, nil

		case ReadStatusFailed:
			metrics.RecordOCRPolls(attempt)
			return nil, errors.NewOCRServiceError("OCR job failed", nil)

		case ReadStatusNotStarted, ReadStatusRunning:
			// Continue polling

		default:
			c.logger.Warn("Unknown OCR job status", "status", result.Status)
		}

		timer.Reset(c.cfg.PollInterval)
	}

	metrics.RecordOCRPolls(c.cfg.MaxPollAttempts)
	return nil, errors.NewOCRTimeoutError(c.cfg.MaxPollAttempts, c.cfg.PollInterval)
}

// FlattenLines concatenates the lines of every region, preserving the
// service order.
func FlattenLines(result *ReadAnalyzeResult) []models.TextLine {
	if result == nil {
		return nil
	}
	var lines []models.TextLine
	for _, region := range result.ReadResults {
		for _, l := range region.Lines {
			lines = append(lines, models.TextLine{Text: l.Text, BoundingBox: l.BoundingBox})
		}
	}
	return lines
}

func (c *AzureReadClient) setHeaders(req *http.Request) {
	req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.APIKey)
	if c.cfg.Region != "" {
		req.Header.Set("Ocp-Apim-Subscription-Region", c.cfg.Region)
	}
}

// isPermanent reports whether a poll error will not go away by polling
// again: 4xx responses other than 429, and unparseable bodies.
func isPermanent(err error) bool {
	if code := statusCode(err); code != 0 {
		return code != http.StatusTooManyRequests && code < 500
	}
	_, ok := err.(*permanentError)
	return ok
}

// serviceMessage extracts the error message from an Azure error body,
// falling back to the raw body.
func serviceMessage(body []byte) string {
	var eb readErrorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Error.Message != "" {
		if eb.Error.Code != "" {
			return eb.Error.Code + ": " + eb.Error.Message
		}
		return eb.Error.Message
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 512 {
		s = s[:512]
	}
	return s
}
