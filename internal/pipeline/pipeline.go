/**
 * Pipeline wiring
 *
 * Builds the OCR engine, translator, renderer and glossary named by a
 * Config and connects them into page and document processors. Shared by
 * the worker daemon and the CLI.
 */

package pipeline

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus/doctranslate-worker/internal/clients"
	"github.com/adverant/nexus/doctranslate-worker/internal/config"
	"github.com/adverant/nexus/doctranslate-worker/internal/glossary"
	"github.com/adverant/nexus/doctranslate-worker/internal/logging"
	"github.com/adverant/nexus/doctranslate-worker/internal/processor"
	"github.com/adverant/nexus/doctranslate-worker/internal/render"
	"github.com/adverant/nexus/doctranslate-worker/internal/tesseract"
	"github.com/adverant/nexus/doctranslate-worker/internal/translation"
)

// Pipeline holds the connected processing stages.
type Pipeline struct {
	Glossary   *glossary.Store
	Translator *translation.CachedTranslator
	Lines      *processor.LineTranslator
	Pages      *processor.PageProcessor
	Documents  *processor.DocumentAssembler
	Text       *processor.TextTranslator
}

// Options carries collaborators that are not part of Config.
type Options struct {
	// Redis backs the shared translation cache when enabled. May be nil.
	Redis    redis.Cmdable
	Observer processor.StateObserver
}

// New builds a pipeline from cfg.
func New(cfg *config.Config, opts Options) (*Pipeline, error) {
	logger := logging.NewLogger("Pipeline")

	terms := glossary.LoadOrEmpty(cfg.Pipeline.GlossaryPath, logging.NewLogger("Glossary"))
	logger.Info("Glossary ready", "path", cfg.Pipeline.GlossaryPath, "terms", terms.Len())

	rec, err := NewRecognizer(cfg.OCR)
	if err != nil {
		return nil, err
	}

	tr, err := translation.NewFromConfig(cfg.Translator, opts.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to create translator: %w", err)
	}

	lines, err := processor.NewLineTranslator(tr, terms, processor.LineOptions{
		TargetLanguage: cfg.Translator.TargetLanguage,
		Concurrency:    cfg.Pipeline.LineConcurrency,
		BatchSize:      cfg.Translator.BatchSize,
	})
	if err != nil {
		return nil, err
	}

	overlay := render.NewOverlay(render.OverlayConfig{
		FontPath:        cfg.Render.FontPath,
		FontSize:        cfg.Render.FontSize,
		BackgroundAlpha: cfg.Render.BackgroundAlpha,
		FitText:         cfg.Render.FitText,
	}, logging.NewLogger("Overlay"))

	pages, err := processor.NewPageProcessor(rec, lines, overlay, processor.PageOptions{
		Observer: opts.Observer,
		Logger:   logging.NewLogger("PageProcessor"),
	})
	if err != nil {
		return nil, err
	}

	docs, err := processor.NewDocumentAssembler(pages, processor.DocumentOptions{
		PageConcurrency: cfg.Pipeline.PageConcurrency,
		BestEffort:      cfg.Pipeline.BestEffort,
		Logger:          logging.NewLogger("DocumentAssembler"),
	})
	if err != nil {
		return nil, err
	}

	text, err := processor.NewTextTranslator(lines)
	if err != nil {
		return nil, err
	}

	logger.Info("Pipeline ready",
		"ocr", cfg.OCR.Engine,
		"translator", tr.Name(),
		"target", cfg.Translator.TargetLanguage,
		"font", overlay.FontName(),
		"pageConcurrency", cfg.Pipeline.PageConcurrency,
		"lineConcurrency", cfg.Pipeline.LineConcurrency,
		"bestEffort", cfg.Pipeline.BestEffort)

	return &Pipeline{
		Glossary:   terms,
		Translator: tr,
		Lines:      lines,
		Pages:      pages,
		Documents:  docs,
		Text:       text,
	}, nil
}

// NewRecognizer builds the configured OCR engine.
func NewRecognizer(cfg config.OCRConfig) (processor.Recognizer, error) {
	switch cfg.Engine {
	case "azure", "":
		retry := clients.DefaultRetryPolicy()
		retry.MaxRetries = cfg.MaxRetries
		c, err := clients.NewAzureReadClient(clients.AzureReadConfig{
			APIKey:          cfg.APIKey,
			Endpoint:        cfg.Endpoint,
			Region:          cfg.Region,
			PollInterval:    cfg.PollInterval(),
			MaxPollAttempts: cfg.MaxPollAttempts,
			Timeout:         cfg.Timeout(),
			Retry:           retry,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create OCR client: %w", err)
		}
		return c, nil
	case "tesseract":
		return tesseract.NewRecognizer(tesseract.Config{Languages: cfg.Languages}), nil
	default:
		return nil, fmt.Errorf("unknown OCR engine %q", cfg.Engine)
	}
}
