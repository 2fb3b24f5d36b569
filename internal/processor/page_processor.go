/**
 * Page Processor
 *
 * Runs one page image through OCR, per-line glossary-protected
 * translation and overlay rendering. Any failure aborts the page; no
 * partial page is ever returned.
 */

package processor

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/adverant/nexus/doctranslate-worker/internal/errors"
	"github.com/adverant/nexus/doctranslate-worker/internal/logging"
	"github.com/adverant/nexus/doctranslate-worker/internal/metrics"
	"github.com/adverant/nexus/doctranslate-worker/internal/models"
)

// Recognizer extracts text lines from a page image, in service order.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) ([]models.TextLine, error)
}

// Renderer draws translated lines over a copy of a page image.
type Renderer interface {
	Render(src image.Image, lines []models.TranslatedLine) (image.Image, error)
}

// PageState is a step of the per-page lifecycle.
type PageState string

const (
	StateStart              PageState = "start"
	StateOCRInProgress      PageState = "ocr_in_progress"
	StateOCRFailed          PageState = "ocr_failed"
	StateLinesExtracted     PageState = "lines_extracted"
	StateTranslatingLines   PageState = "translating_lines"
	StateTranslationFailed  PageState = "translation_failed"
	StateAllLinesTranslated PageState = "all_lines_translated"
	StateRendering          PageState = "rendering"
	StateRenderFailed       PageState = "render_failed"
	StateDone               PageState = "done"
)

var pageTransitions = map[PageState][]PageState{
	StateStart:              {StateOCRInProgress},
	StateOCRInProgress:      {StateOCRFailed, StateLinesExtracted},
	StateLinesExtracted:     {StateTranslatingLines},
	StateTranslatingLines:   {StateTranslationFailed, StateAllLinesTranslated},
	StateAllLinesTranslated: {StateRendering},
	StateRendering:          {StateRenderFailed, StateDone},
}

// CanTransition reports whether to may follow s.
func (s PageState) CanTransition(to PageState) bool {
	for _, next := range pageTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no state follows s.
func (s PageState) Terminal() bool {
	return len(pageTransitions[s]) == 0
}

// StateObserver is told about every state change of every page. page is
// 1-based. It may be called from several goroutines at once.
type StateObserver func(page int, from, to PageState)

// PageOptions configures a PageProcessor.
type PageOptions struct {
	Observer StateObserver
	Logger   *logging.Logger
}

// PageProcessor turns one input image into a models.Page.
type PageProcessor struct {
	recognizer Recognizer
	lines      *LineTranslator
	renderer   Renderer
	observer   StateObserver
	logger     *logging.Logger
}

// NewPageProcessor creates a page processor
func NewPageProcessor(rec Recognizer, lines *LineTranslator, rend Renderer, opts PageOptions) (*PageProcessor, error) {
	if rec == nil {
		return nil, fmt.Errorf("recognizer is required")
	}
	if lines == nil {
		return nil, fmt.Errorf("line translator is required")
	}
	if rend == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewLogger("PageProcessor")
	}
	return &PageProcessor{
		recognizer: rec,
		lines:      lines,
		renderer:   rend,
		observer:   opts.Observer,
		logger:     logger,
	}, nil
}

type pageRun struct {
	p     *PageProcessor
	page  int
	state PageState
}

func (r *pageRun) enter(next PageState) {
	if !r.state.CanTransition(next) {
		panic(fmt.Sprintf("page %d: invalid transition %s -> %s", r.page, r.state, next))
	}
	prev := r.state
	r.state = next
	if r.p.observer != nil {
		r.p.observer(r.page, prev, next)
	}
}

// ProcessPage processes the page at 0-based index. Errors are
// ProcessingErrors carrying the 1-based page number and, for translation
// failures, the line.
func (p *PageProcessor) ProcessPage(ctx context.Context, index int, img image.Image) (*models.Page, error) {
	startTime := time.Now()
	run := &pageRun{p: p, page: index + 1, state: StateStart}
	logger := p.logger.With("page", index+1)

	finish := func(err error) error {
		metrics.RecordPage(string(run.state), time.Since(startTime).Seconds())
		if err != nil {
			logger.Error("Page failed", "state", string(run.state), "error", err)
		}
		return err
	}

	if img == nil || img.Bounds().Empty() {
		return nil, errors.NewUnsupportedFormatError("", "empty page image").AtPage(index + 1)
	}

	// OCR
	run.enter(StateOCRInProgress)
	textLines, err := p.recognizer.Recognize(ctx, img)
	if err != nil {
		run.enter(StateOCRFailed)
		pe, ok := errors.As(err)
		if !ok {
			pe = errors.NewOCRServiceError(err.Error(), err)
		}
		return nil, finish(pe.AtPage(index + 1))
	}
	run.enter(StateLinesExtracted)
	logger.Debug("Lines extracted", "lines", len(textLines))

	// Translation
	run.enter(StateTranslatingLines)
	sources := make([]string, len(textLines))
	for i, l := range textLines {
		sources[i] = l.Text
	}
	translated, err := p.lines.TranslateLines(ctx, sources)
	if err != nil {
		run.enter(StateTranslationFailed)
		return nil, finish(asTranslationError(err).AtPage(index + 1))
	}
	run.enter(StateAllLinesTranslated)

	out := make([]models.TranslatedLine, len(textLines))
	for i, l := range textLines {
		box, ok := l.Envelope()
		out[i] = models.TranslatedLine{
			Source: l,
			Text:   translated[i],
			Box:    box,
			Placed: ok,
		}
	}

	// Render
	run.enter(StateRendering)
	rendered, err := p.renderer.Render(img, out)
	if err != nil {
		run.enter(StateRenderFailed)
		pe, ok := errors.As(err)
		if !ok {
			pe = errors.NewRenderError(err.Error(), err)
		}
		return nil, finish(pe.AtPage(index + 1))
	}
	run.enter(StateDone)
	finish(nil)

	logger.Info("Page translated",
		"lines", len(out),
		"duration", time.Since(startTime).String())

	return &models.Page{
		Index:           index,
		OriginalImage:   img,
		TranslatedImage: rendered,
		Lines:           out,
	}, nil
}
