/**
 * Azure Translator Client
 *
 * One request per Translate call; TranslateBatch sends several texts in a
 * single request and returns results in input order.
 */

package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/adverant/nexus/doctranslate-worker/internal/errors"
	"github.com/adverant/nexus/doctranslate-worker/internal/logging"
	"github.com/adverant/nexus/doctranslate-worker/internal/metrics"
)

const (
	providerAzure      = "azure"
	azureAPIVersion    = "3.0"
	maxAzureBatchTexts = 100
)

// AzureTranslatorConfig configures the translator client.
type AzureTranslatorConfig struct {
	APIKey         string
	Endpoint       string
	Region         string
	SourceLanguage string // empty lets the service detect it
	Timeout        time.Duration
	Retry          RetryPolicy
}

// AzureTranslatorClient calls the Translator v3 REST API
type AzureTranslatorClient struct {
	cfg          AzureTranslatorConfig
	translateURL string
	httpClient   *http.Client
	logger       *logging.Logger
}

type azureTranslateItem struct {
	Text string `json:"text"`
}

type azureTranslateResult struct {
	DetectedLanguage *struct {
		Language string  `json:"language"`
		Score    float64 `json:"score"`
	} `json:"detectedLanguage,omitempty"`
	Translations []struct {
		Text *string `json:"text"`
		To   string  `json:"to"`
	} `json:"translations"`
}

// NewAzureTranslatorClient creates a new translator client
func NewAzureTranslatorClient(cfg AzureTranslatorConfig) (*AzureTranslatorClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Azure translator API key is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.cognitive.microsofttranslator.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	translateURL := strings.TrimRight(cfg.Endpoint, "/")
	if !strings.HasSuffix(translateURL, "/translate") {
		translateURL += "/translate"
	}

	return &AzureTranslatorClient{
		cfg:          cfg,
		translateURL: translateURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logging.NewLogger("AzureTranslatorClient"),
	}, nil
}

// Name identifies the provider.
func (c *AzureTranslatorClient) Name() string {
	return providerAzure
}

// Translate translates one text into targetLang.
func (c *AzureTranslatorClient) Translate(ctx context.Context, text, targetLang string) (string, error) {
	out, err := c.TranslateBatch(ctx, []string{text}, targetLang)
	if err != nil {
		return "", err
	}
	return out[0], nil
}

// TranslateBatch translates texts in one request. The result has the same
// length and order as texts.
func (c *AzureTranslatorClient) TranslateBatch(ctx context.Context, texts []string, targetLang string) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > maxAzureBatchTexts {
		return nil, errors.NewTranslationServiceError(
			fmt.Sprintf("batch of %d texts exceeds the limit of %d", len(texts), maxAzureBatchTexts), 0, nil)
	}
	if targetLang == "" {
		return nil, errors.NewTranslationServiceError("target language is required", 0, nil)
	}

	items := make([]azureTranslateItem, len(texts))
	for i, t := range texts {
		items[i] = azureTranslateItem{Text: t}
	}
	reqBody, err := json.Marshal(items)
	if err != nil {
		return nil, errors.NewTranslationServiceError("failed to marshal request", 0, err)
	}

	params := url.Values{}
	params.Set("api-version", azureAPIVersion)
	params.Set("to", targetLang)
	if c.cfg.SourceLanguage != "" {
		params.Set("from", c.cfg.SourceLanguage)
	}
	endpoint := c.translateURL + "?" + params.Encode()

	results, err := withRetry(ctx, c.cfg.Retry, c.logger, "translate", func() ([]azureTranslateResult, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
		if err != nil {
			return nil, permanent(fmt.Errorf("failed to create request: %w", err))
		}
		httpReq.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.APIKey)
		if c.cfg.Region != "" {
			httpReq.Header.Set("Ocp-Apim-Subscription-Region", c.cfg.Region)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("X-ClientTraceId", uuid.NewString())

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return nil, fmt.Errorf("request to Azure Translator failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: serviceMessage(body)}
		}

		var parsed []azureTranslateResult
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, permanent(fmt.Errorf("failed to parse response: %w", err))
		}
		return parsed, nil
	})
	if err != nil {
		metrics.RecordTranslationRequest(providerAzure, "failed")
		return nil, errors.NewTranslationServiceError("Azure Translator request failed", statusCode(err), err)
	}

	if len(results) != len(texts) {
		metrics.RecordTranslationRequest(providerAzure, "malformed")
		return nil, errors.NewTranslationServiceError(
			fmt.Sprintf("expected %d results, got %d", len(texts), len(results)), 0, nil)
	}

	out := make([]string, len(results))
	for i, r := range results {
		if len(r.Translations) == 0 {
			metrics.RecordTranslationRequest(providerAzure, "malformed")
			return nil, errors.NewTranslationServiceError(
				fmt.Sprintf("result %d has no translations", i), 0, nil)
		}
		if r.Translations[0].Text == nil {
			metrics.RecordTranslationRequest(providerAzure, "malformed")
			return nil, errors.NewTranslationServiceError(
				fmt.Sprintf("result %d has no text", i), 0, nil)
		}
		out[i] = *r.Translations[0].Text
	}

	metrics.RecordTranslationRequest(providerAzure, "succeeded")
	return out, nil
}
