package processor

import (
	"bytes"
	"context"
	"image"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/doctranslate-worker/internal/errors"
	"github.com/adverant/nexus/doctranslate-worker/internal/models"
)

// threePages gives each page a distinct width: 10, 20 and 30 pixels.
func threePages() []image.Image {
	return []image.Image{page(10, 10), page(20, 10), page(30, 10)}
}

// stuckSecondPage never finishes OCR on the 20px-wide page.
func stuckSecondPage(width int) ([]models.TextLine, error) {
	if width == 20 {
		return nil, errors.NewOCRTimeoutError(5, time.Second)
	}
	return []models.TextLine{line("hello", 0, 0, 5, 5)}, nil
}

func newAssembler(t *testing.T, rec Recognizer, opts DocumentOptions) *DocumentAssembler {
	t.Helper()
	p := newPages(t, rec, newLines(t, &upperTranslator{}, nil, LineOptions{}), nil, nil)
	d, err := NewDocumentAssembler(p, opts)
	require.NoError(t, err)
	return d
}

func TestDocumentFailFastOnStuckOCR(t *testing.T) {
	rec := &fakeRecognizer{fn: stuckSecondPage}
	d := newAssembler(t, rec, DocumentOptions{})

	doc, err := d.ProcessDocument(context.Background(), threePages())
	require.Error(t, err)
	assert.Nil(t, doc, "completed pages are discarded")

	pe, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrorOCRTimeout, pe.Code)
	assert.NotEqual(t, errors.ErrorOCRFailed, pe.Code)
	assert.Equal(t, 2, pe.Page)

	assert.Equal(t, []int{10, 20}, rec.widths(), "page 3 is never started")
}

func TestDocumentBestEffortKeepsOtherPages(t *testing.T) {
	rec := &fakeRecognizer{fn: stuckSecondPage}
	d := newAssembler(t, rec, DocumentOptions{BestEffort: true})

	doc, err := d.ProcessDocument(context.Background(), threePages())
	require.Error(t, err)
	require.NotNil(t, doc)
	require.Len(t, doc.Pages, 3)

	assert.True(t, doc.Pages[0].OK())
	assert.False(t, doc.Pages[1].OK())
	assert.True(t, doc.Pages[2].OK())
	assert.Equal(t, []int{2}, doc.FailedPages())
	assert.Len(t, doc.TranslatedImages(), 2)
	assert.True(t, errors.HasCode(err, errors.ErrorOCRTimeout))
	assert.True(t, errors.HasCode(doc.Pages[1].Err, errors.ErrorOCRTimeout))
	assert.Equal(t, 1, doc.Pages[1].Index)
}

func TestDocumentBestEffortWithoutFailures(t *testing.T) {
	rec := &fakeRecognizer{fn: staticLines(line("ok", 0, 0, 5, 5))}
	d := newAssembler(t, rec, DocumentOptions{BestEffort: true, PageConcurrency: 2})

	doc, err := d.ProcessDocument(context.Background(), threePages())
	require.NoError(t, err)
	assert.Empty(t, doc.FailedPages())
}

func TestDocumentPagesKeepInputOrder(t *testing.T) {
	rec := &fakeRecognizer{fn: func(width int) ([]models.TextLine, error) {
		// wider pages finish first
		time.Sleep(time.Duration(40-width) * time.Millisecond)
		return []models.TextLine{line(strings.Repeat("x", width/10), 0, 0, 5, 5)}, nil
	}}
	d := newAssembler(t, rec, DocumentOptions{PageConcurrency: 3})

	doc, err := d.ProcessDocument(context.Background(), threePages())
	require.NoError(t, err)
	require.Len(t, doc.Pages, 3)
	for i, p := range doc.Pages {
		assert.Equal(t, i, p.Index)
		assert.Equal(t, strings.Repeat("X", i+1), p.TranslatedText())
		assert.Equal(t, (i+1)*10, p.OriginalImage.Bounds().Dx())
	}
	assert.Equal(t, 3, doc.LineCount())
}

func TestDocumentCancelledBeforeStart(t *testing.T) {
	rec := &fakeRecognizer{fn: staticLines()}
	d := newAssembler(t, rec, DocumentOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	doc, err := d.ProcessDocument(ctx, threePages())
	assert.Error(t, err)
	assert.Nil(t, doc)
	assert.Empty(t, rec.widths())
}

func TestAssembleDocumentSkipsFailedPages(t *testing.T) {
	rec := &fakeRecognizer{fn: stuckSecondPage}
	d := newAssembler(t, rec, DocumentOptions{BestEffort: true})

	doc, _ := d.ProcessDocument(context.Background(), threePages())
	require.NotNil(t, doc)

	var buf bytes.Buffer
	require.NoError(t, d.AssembleDocument(&buf, doc))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))

	assert.Error(t, d.Assemble(&buf, nil))
}
