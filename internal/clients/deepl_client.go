package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/adverant/nexus/doctranslate-worker/internal/errors"
	"github.com/adverant/nexus/doctranslate-worker/internal/logging"
	"github.com/adverant/nexus/doctranslate-worker/internal/metrics"
)

const (
	providerDeepL      = "deepl"
	maxDeepLBatchTexts = 50
)

// DeepLConfig configures the DeepL client.
type DeepLConfig struct {
	APIKey         string
	Endpoint       string // defaults to the free API host
	SourceLanguage string
	Timeout        time.Duration
	Retry          RetryPolicy
}

// DeepLClient calls the DeepL v2 translate endpoint
type DeepLClient struct {
	cfg        DeepLConfig
	httpClient *http.Client
	logger     *logging.Logger
}

type deeplRequest struct {
	Text       []string `json:"text"`
	TargetLang string   `json:"target_lang"`
	SourceLang string   `json:"source_lang,omitempty"`
}

type deeplResponse struct {
	Translations []struct {
		DetectedSourceLanguage string  `json:"detected_source_language"`
		Text                   *string `json:"text"`
	} `json:"translations"`
}

// NewDeepLClient creates a new DeepL client
func NewDeepLClient(cfg DeepLConfig) (*DeepLClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("DeepL API key is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api-free.deepl.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &DeepLClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logging.NewLogger("DeepLClient"),
	}, nil
}

// Name identifies the provider.
func (c *DeepLClient) Name() string {
	return providerDeepL
}

// Translate translates one text into targetLang.
func (c *DeepLClient) Translate(ctx context.Context, text, targetLang string) (string, error) {
	out, err := c.TranslateBatch(ctx, []string{text}, targetLang)
	if err != nil {
		return "", err
	}
	return out[0], nil
}

// TranslateBatch translates texts in one request, preserving order.
func (c *DeepLClient) TranslateBatch(ctx context.Context, texts []string, targetLang string) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > maxDeepLBatchTexts {
		return nil, errors.NewTranslationServiceError(
			fmt.Sprintf("batch of %d texts exceeds the limit of %d", len(texts), maxDeepLBatchTexts), 0, nil)
	}
	if targetLang == "" {
		return nil, errors.NewTranslationServiceError("target language is required", 0, nil)
	}

	reqBody, err := json.Marshal(deeplRequest{
		Text:       texts,
		TargetLang: strings.ToUpper(targetLang),
		SourceLang: strings.ToUpper(c.cfg.SourceLanguage),
	})
	if err != nil {
		return nil, errors.NewTranslationServiceError("failed to marshal request", 0, err)
	}
	endpoint := strings.TrimRight(c.cfg.Endpoint, "/") + "/v2/translate"

	parsed, err := withRetry(ctx, c.cfg.Retry, c.logger, "translate", func() (*deeplResponse, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
		if err != nil {
			return nil, permanent(fmt.Errorf("failed to create request: %w", err))
		}
		httpReq.Header.Set("Authorization", "DeepL-Auth-Key "+c.cfg.APIKey)
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return nil, fmt.Errorf("request to DeepL failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}

		// 456 is DeepL's quota-exceeded status
		if resp.StatusCode != http.StatusOK {
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		}

		var r deeplResponse
		if err := json.Unmarshal(body, &r); err != nil {
			return nil, permanent(fmt.Errorf("failed to parse response: %w", err))
		}
		return &r, nil
	})
	if err != nil {
		metrics.RecordTranslationRequest(providerDeepL, "failed")
		return nil, errors.NewTranslationServiceError("DeepL request failed", statusCode(err), err)
	}

	if len(parsed.Translations) != len(texts) {
		metrics.RecordTranslationRequest(providerDeepL, "malformed")
		return nil, errors.NewTranslationServiceError(
			fmt.Sprintf("expected %d translations, got %d", len(texts), len(parsed.Translations)), 0, nil)
	}

	out := make([]string, len(texts))
	for i, t := range parsed.Translations {
		if t.Text == nil {
			metrics.RecordTranslationRequest(providerDeepL, "malformed")
			return nil, errors.NewTranslationServiceError(
				fmt.Sprintf("translation %d has no text", i), 0, nil)
		}
		out[i] = *t.Text
	}
	metrics.RecordTranslationRequest(providerDeepL, "succeeded")
	return out, nil
}
