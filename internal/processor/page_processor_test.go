package processor

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/doctranslate-worker/internal/errors"
	"github.com/adverant/nexus/doctranslate-worker/internal/glossary"
	"github.com/adverant/nexus/doctranslate-worker/internal/logging"
	"github.com/adverant/nexus/doctranslate-worker/internal/models"
	"github.com/adverant/nexus/doctranslate-worker/internal/render"
)

// fakeRecognizer answers by page width so each page can behave differently.
type fakeRecognizer struct {
	mu    sync.Mutex
	calls []int
	fn    func(width int) ([]models.TextLine, error)
}

func (f *fakeRecognizer) Recognize(_ context.Context, img image.Image) ([]models.TextLine, error) {
	w := img.Bounds().Dx()
	f.mu.Lock()
	f.calls = append(f.calls, w)
	f.mu.Unlock()
	return f.fn(w)
}

func (f *fakeRecognizer) widths() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.calls...)
}

// upperTranslator upper-cases text, which leaves mask tokens intact.
type upperTranslator struct {
	calls atomic.Int32
	fail  func(text string) error
	delay func(text string) time.Duration
}

func (u *upperTranslator) Translate(ctx context.Context, text, _ string) (string, error) {
	u.calls.Add(1)
	if u.delay != nil {
		select {
		case <-time.After(u.delay(text)):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if u.fail != nil {
		if err := u.fail(text); err != nil {
			return "", err
		}
	}
	return strings.ToUpper(text), nil
}

type batchTranslator struct {
	upperTranslator
	mu      sync.Mutex
	batches [][]string
	short   bool
}

func (b *batchTranslator) TranslateBatch(_ context.Context, texts []string, _ string) ([]string, error) {
	b.mu.Lock()
	b.batches = append(b.batches, append([]string(nil), texts...))
	b.mu.Unlock()
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = strings.ToUpper(t)
	}
	if b.short {
		out = out[:len(out)-1]
	}
	return out, nil
}

type countingRenderer struct {
	calls atomic.Int32
	inner Renderer
}

func (c *countingRenderer) Render(src image.Image, lines []models.TranslatedLine) (image.Image, error) {
	c.calls.Add(1)
	return c.inner.Render(src, lines)
}

func page(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.Black, image.Point{}, draw.Src)
	return img
}

func line(text string, left, top, right, bottom float64) models.TextLine {
	return models.TextLine{
		Text:        text,
		BoundingBox: []float64{left, top, right, top, right, bottom, left, bottom},
	}
}

func staticLines(lines ...models.TextLine) func(int) ([]models.TextLine, error) {
	return func(int) ([]models.TextLine, error) { return lines, nil }
}

func newLines(t *testing.T, tr *upperTranslator, terms *glossary.Store, opts LineOptions) *LineTranslator {
	t.Helper()
	if opts.TargetLanguage == "" {
		opts.TargetLanguage = "id"
	}
	lt, err := NewLineTranslator(tr, terms, opts)
	require.NoError(t, err)
	return lt
}

func newPages(t *testing.T, rec Recognizer, lines *LineTranslator, rend Renderer, observer StateObserver) *PageProcessor {
	t.Helper()
	if rend == nil {
		rend = render.NewOverlay(render.OverlayConfig{FontSize: 10}, logging.Nop())
	}
	p, err := NewPageProcessor(rec, lines, rend, PageOptions{Observer: observer, Logger: logging.Nop()})
	require.NoError(t, err)
	return p
}

func TestProcessPageTranslatesLinesAndProtectsTerms(t *testing.T) {
	rec := &fakeRecognizer{fn: staticLines(
		line("Take acetaminophen twice daily", 10, 10, 150, 30),
		line("Hello", 10, 40, 50, 60),
	)}
	tr := &upperTranslator{}
	p := newPages(t, rec, newLines(t, tr, glossary.New("acetaminophen"), LineOptions{}), nil, nil)

	src := page(200, 80)
	got, err := p.ProcessPage(context.Background(), 0, src)
	require.NoError(t, err)

	require.Len(t, got.Lines, 2)
	assert.Equal(t, "TAKE acetaminophen TWICE DAILY", got.Lines[0].Text)
	assert.Equal(t, "HELLO", got.Lines[1].Text)
	assert.Equal(t, models.BoundingBox{Left: 10, Top: 40, Right: 50, Bottom: 60}, got.Lines[1].Box)
	assert.True(t, got.Lines[1].Placed)
	assert.Equal(t, "TAKE acetaminophen TWICE DAILY\nHELLO", got.TranslatedText())

	assert.Same(t, src, got.OriginalImage)
	assert.NotNil(t, got.TranslatedImage)
	assert.True(t, got.OK())
}

func TestProcessPageUnauthorizedAbortsPage(t *testing.T) {
	rec := &fakeRecognizer{fn: staticLines(
		line("one", 0, 0, 10, 10),
		line("two", 0, 10, 10, 20),
		line("three", 0, 20, 10, 30),
	)}
	tr := &upperTranslator{fail: func(text string) error {
		if text == "two" {
			return errors.NewTranslationServiceError("access denied", 401, nil)
		}
		return nil
	}}
	rend := &countingRenderer{inner: render.NewOverlay(render.OverlayConfig{}, logging.Nop())}
	p := newPages(t, rec, newLines(t, tr, nil, LineOptions{}), rend, nil)

	got, err := p.ProcessPage(context.Background(), 0, page(40, 40))
	require.Error(t, err)
	assert.Nil(t, got)

	pe, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrorTranslationFailed, pe.Code)
	assert.Equal(t, 1, pe.Page)
	assert.Equal(t, 2, pe.Line)
	assert.Equal(t, 401, pe.Details["status_code"])
	assert.Zero(t, rend.calls.Load())
	assert.EqualValues(t, 2, tr.calls.Load(), "lines after the failure are not sent")
}

func TestProcessPageStateSequence(t *testing.T) {
	var mu sync.Mutex
	var states []PageState
	observer := func(_ int, from, to PageState) {
		mu.Lock()
		defer mu.Unlock()
		if len(states) == 0 {
			assert.Equal(t, StateStart, from)
		}
		states = append(states, to)
	}

	ok := &fakeRecognizer{fn: staticLines(line("hi", 0, 0, 10, 10))}
	p := newPages(t, ok, newLines(t, &upperTranslator{}, nil, LineOptions{}), nil, observer)
	_, err := p.ProcessPage(context.Background(), 0, page(20, 20))
	require.NoError(t, err)
	assert.Equal(t, []PageState{
		StateOCRInProgress, StateLinesExtracted, StateTranslatingLines,
		StateAllLinesTranslated, StateRendering, StateDone,
	}, states)

	states = nil
	failing := &fakeRecognizer{fn: func(int) ([]models.TextLine, error) {
		return nil, errors.NewOCRServiceError("job failed", nil)
	}}
	p = newPages(t, failing, newLines(t, &upperTranslator{}, nil, LineOptions{}), nil, observer)
	_, err = p.ProcessPage(context.Background(), 4, page(20, 20))
	assert.Equal(t, errors.ErrorOCRFailed, errors.CodeOf(err))
	assert.Equal(t, []PageState{StateOCRInProgress, StateOCRFailed}, states)

	pe, _ := errors.As(err)
	assert.Equal(t, 5, pe.Page)
	assert.Equal(t, errors.OpOCR, pe.Operation)
}

func TestPageStateTransitions(t *testing.T) {
	assert.True(t, StateStart.CanTransition(StateOCRInProgress))
	assert.False(t, StateStart.CanTransition(StateDone))
	assert.False(t, StateLinesExtracted.CanTransition(StateRendering))
	for _, s := range []PageState{StateOCRFailed, StateTranslationFailed, StateRenderFailed, StateDone} {
		assert.True(t, s.Terminal(), s)
	}
	assert.False(t, StateRendering.Terminal())
}

func TestProcessPageWrapsForeignErrors(t *testing.T) {
	rec := &fakeRecognizer{fn: func(int) ([]models.TextLine, error) {
		return nil, fmt.Errorf("connection reset")
	}}
	p := newPages(t, rec, newLines(t, &upperTranslator{}, nil, LineOptions{}), nil, nil)

	_, err := p.ProcessPage(context.Background(), 1, page(10, 10))
	pe, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrorOCRFailed, pe.Code)
	assert.Equal(t, 2, pe.Page)
}

func TestProcessPageUnplacedLinesKeepText(t *testing.T) {
	rec := &fakeRecognizer{fn: staticLines(models.TextLine{Text: "floating"})}
	p := newPages(t, rec, newLines(t, &upperTranslator{}, nil, LineOptions{}), nil, nil)

	got, err := p.ProcessPage(context.Background(), 0, page(10, 10))
	require.NoError(t, err)
	require.Len(t, got.Lines, 1)
	assert.False(t, got.Lines[0].Placed)
	assert.Equal(t, "FLOATING", got.TranslatedText())
}

func TestConcurrentLinesKeepOrder(t *testing.T) {
	var lines []models.TextLine
	for i := 0; i < 12; i++ {
		lines = append(lines, line(fmt.Sprintf("line %02d", i), 0, float64(i), 10, float64(i+1)))
	}
	tr := &upperTranslator{delay: func(text string) time.Duration {
		// later lines finish first
		var n int
		fmt.Sscanf(text, "line %d", &n)
		return time.Duration(12-n) * time.Millisecond
	}}
	p := newPages(t, &fakeRecognizer{fn: staticLines(lines...)},
		newLines(t, tr, nil, LineOptions{Concurrency: 4}), nil, nil)

	got, err := p.ProcessPage(context.Background(), 0, page(20, 20))
	require.NoError(t, err)
	for i, l := range got.Lines {
		assert.Equal(t, fmt.Sprintf("LINE %02d", i), l.Text)
		assert.Equal(t, lines[i], l.Source)
	}
}

func TestBatchedLinesUseTheirOwnTokens(t *testing.T) {
	bt := &batchTranslator{}
	lt, err := NewLineTranslator(bt, glossary.New("acetaminophen", "ibuprofen"), LineOptions{
		TargetLanguage: "id",
		BatchSize:      2,
	})
	require.NoError(t, err)

	out, err := lt.TranslateLines(context.Background(), []string{
		"acetaminophen a",
		"b ibuprofen",
		"",
		"c acetaminophen",
		"d",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"acetaminophen A", "B ibuprofen", "", "C acetaminophen", "D"}, out)

	require.Len(t, bt.batches, 2)
	assert.Len(t, bt.batches[0], 2)
	assert.Len(t, bt.batches[1], 2)
	for _, batch := range bt.batches {
		for _, text := range batch {
			assert.NotContains(t, text, "acetaminophen")
			assert.NotContains(t, text, "ibuprofen")
		}
	}
	assert.Zero(t, bt.calls.Load(), "single-line path unused")
}

func TestShortBatchIsTranslationError(t *testing.T) {
	bt := &batchTranslator{short: true}
	lt, err := NewLineTranslator(bt, nil, LineOptions{TargetLanguage: "id", BatchSize: 10})
	require.NoError(t, err)

	_, err = lt.TranslateLines(context.Background(), []string{"a", "b", "c"})
	pe, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrorTranslationFailed, pe.Code)
	assert.Equal(t, 1, pe.Line)
}

func TestNewLineTranslatorValidates(t *testing.T) {
	_, err := NewLineTranslator(nil, nil, LineOptions{TargetLanguage: "id"})
	assert.Error(t, err)
	_, err = NewLineTranslator(&upperTranslator{}, nil, LineOptions{})
	assert.Error(t, err)
}
