package processor

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/adverant/nexus/doctranslate-worker/internal/errors"
	"github.com/adverant/nexus/doctranslate-worker/internal/glossary"
	"github.com/adverant/nexus/doctranslate-worker/internal/masking"
	"github.com/adverant/nexus/doctranslate-worker/internal/translation"
)

// LineOptions configures a LineTranslator.
type LineOptions struct {
	TargetLanguage string
	// Concurrency bounds in-flight translation requests. 1 translates
	// lines strictly one after another.
	Concurrency int
	// BatchSize > 1 sends that many masked lines per request when the
	// translator supports batching.
	BatchSize int
}

// LineTranslator runs mask → translate → unmask over independent lines.
type LineTranslator struct {
	translator  translation.Translator
	glossary    *glossary.Store
	masker      *masking.Masker
	target      string
	concurrency int
	batchSize   int
}

// NewLineTranslator creates a line translator. A nil glossary protects
// nothing.
func NewLineTranslator(tr translation.Translator, terms *glossary.Store, opts LineOptions) (*LineTranslator, error) {
	if tr == nil {
		return nil, fmt.Errorf("translator is required")
	}
	if opts.TargetLanguage == "" {
		return nil, fmt.Errorf("target language is required")
	}
	if terms == nil {
		terms = glossary.Empty()
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}
	return &LineTranslator{
		translator:  tr,
		glossary:    terms,
		masker:      masking.NewMasker(),
		target:      opts.TargetLanguage,
		concurrency: opts.Concurrency,
		batchSize:   opts.BatchSize,
	}, nil
}

// TargetLanguage returns the language lines are translated into.
func (t *LineTranslator) TargetLanguage() string {
	return t.target
}

// TranslateLine translates one line with its glossary terms protected.
func (t *LineTranslator) TranslateLine(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}
	masked, tokens := t.masker.Mask(text, t.glossary)
	out, err := t.translator.Translate(ctx, masked, t.target)
	if err != nil {
		return "", asTranslationError(err)
	}
	return tokens.Unmask(out), nil
}

// TranslateLines translates every line and returns the results in input
// order. The first failure cancels the remaining requests; the returned
// error carries the 1-based line it happened on. Blank lines are passed
// through without a request.
func (t *LineTranslator) TranslateLines(ctx context.Context, lines []string) ([]string, error) {
	out := make([]string, len(lines))
	var pending []int
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			out[i] = line
			continue
		}
		pending = append(pending, i)
	}
	if len(pending) == 0 {
		return out, nil
	}

	if bt, ok := t.translator.(translation.BatchTranslator); ok && t.batchSize > 1 {
		return out, t.translateBatched(ctx, bt, lines, pending, out)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.concurrency)
	for _, i := range pending {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return asTranslationError(err).AtLine(i + 1)
			}
			translated, err := t.TranslateLine(gctx, lines[i])
			if err != nil {
				return asTranslationError(err).AtLine(i + 1)
			}
			out[i] = translated
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// translateBatched masks each line on its own, sends chunks of masked
// lines, and unmasks each result with the token map of its own line.
func (t *LineTranslator) translateBatched(ctx context.Context, bt translation.BatchTranslator, lines []string, pending []int, out []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.concurrency)

	for start := 0; start < len(pending); start += t.batchSize {
		end := start + t.batchSize
		if end > len(pending) {
			end = len(pending)
		}
		chunk := pending[start:end]
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			masked := make([]string, len(chunk))
			tokens := make([]masking.TokenMap, len(chunk))
			for j, i := range chunk {
				masked[j], tokens[j] = t.masker.Mask(lines[i], t.glossary)
			}

			results, err := bt.TranslateBatch(gctx, masked, t.target)
			if err != nil {
				return asTranslationError(err).AtLine(chunk[0] + 1)
			}
			if len(results) != len(chunk) {
				return errors.NewTranslationServiceError(
					fmt.Sprintf("batch returned %d translations for %d lines", len(results), len(chunk)), 0, nil).
					AtLine(chunk[0] + 1)
			}
			for j, i := range chunk {
				out[i] = tokens[j].Unmask(results[j])
			}
			return nil
		})
	}
	return g.Wait()
}

func asTranslationError(err error) *errors.ProcessingError {
	if pe, ok := errors.As(err); ok {
		return pe
	}
	return errors.NewTranslationServiceError(err.Error(), 0, err)
}
