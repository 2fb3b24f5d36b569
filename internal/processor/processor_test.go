package processor

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/doctranslate-worker/internal/errors"
	"github.com/adverant/nexus/doctranslate-worker/internal/models"
	"github.com/adverant/nexus/doctranslate-worker/internal/render"
	"github.com/adverant/nexus/doctranslate-worker/internal/storage"
)

type memoryStore struct {
	mu      sync.Mutex
	outputs []*storage.TranslationOutput
	updates []storage.JobUpdate
}

func (m *memoryStore) StoreTranslation(_ context.Context, out *storage.TranslationOutput) (*storage.StoredTranslation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outputs = append(m.outputs, out)
	stored := &storage.StoredTranslation{}
	for _, p := range out.Pages {
		stored.Pages = append(stored.Pages, storage.StoredPage{
			Number: p.Number,
			Image:  &storage.Artifact{Key: storage.PageImageKey(out.JobID, p.Number)},
			Text:   &storage.Artifact{Key: storage.PageTextKey(out.JobID, p.Number)},
		})
	}
	stored.Document = &storage.Artifact{Key: storage.DocumentKey(out.JobID)}
	return stored, nil
}

func (m *memoryStore) UpdateJobStatus(_ context.Context, update *storage.JobUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, *update)
	return nil
}

type langTranslator struct {
	mu    sync.Mutex
	langs []string
}

func (l *langTranslator) Translate(_ context.Context, text, lang string) (string, error) {
	l.mu.Lock()
	l.langs = append(l.langs, lang)
	l.mu.Unlock()
	return lang + ":" + text, nil
}

func encodedPages(t *testing.T, widths ...int) [][]byte {
	t.Helper()
	var out [][]byte
	for _, w := range widths {
		data, err := render.EncodePNG(page(w, 10))
		require.NoError(t, err)
		out = append(out, data)
	}
	return out
}

func newJobProcessor(t *testing.T, rec Recognizer, store ResultStore, bestEffort bool) *DocumentProcessor {
	t.Helper()
	d := newAssembler(t, rec, DocumentOptions{BestEffort: bestEffort})
	p, err := NewDocumentProcessor(&ProcessorConfig{Documents: d, Store: store, MaxFileSize: 1 << 20})
	require.NoError(t, err)
	return p
}

func TestProcessJobStoresEveryArtifact(t *testing.T) {
	store := &memoryStore{}
	rec := &fakeRecognizer{fn: staticLines(line("hello", 0, 0, 5, 5))}
	p := newJobProcessor(t, rec, store, false)

	res, err := p.ProcessDocument(context.Background(), &ProcessRequest{
		JobID: "job-1",
		Pages: encodedPages(t, 10, 20),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.PageCount)
	assert.Empty(t, res.FailedPages)
	assert.Equal(t, 2, res.LineCount)
	assert.Equal(t, "job-1/translated_document.pdf", res.Artifacts.Document.Key)

	require.Len(t, store.outputs, 1)
	out := store.outputs[0]
	require.Len(t, out.Pages, 2)
	assert.Equal(t, 1, out.Pages[0].Number)
	assert.Equal(t, "HELLO", out.Pages[1].Text)
	assert.True(t, bytes.HasPrefix(out.Document, []byte("%PDF")))

	img, _, err := render.Decode(out.Pages[1].Image)
	require.NoError(t, err)
	assert.Equal(t, 20, img.Bounds().Dx())

	require.NotEmpty(t, store.updates)
	for _, u := range store.updates {
		assert.Equal(t, storage.StatusProcessing, u.Status)
		assert.Equal(t, 2, u.PageCount)
	}
}

func TestProcessJobRejectsPDF(t *testing.T) {
	p := newJobProcessor(t, &fakeRecognizer{fn: staticLines()}, &memoryStore{}, false)

	_, err := p.ProcessDocument(context.Background(), &ProcessRequest{
		JobID: "job-pdf",
		Pages: [][]byte{[]byte("%PDF-1.7 ...")},
	})
	pe, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrorUnsupportedFormat, pe.Code)
	assert.Equal(t, "job-pdf", pe.JobID)
	assert.Equal(t, 1, pe.Page)
	assert.False(t, pe.Retryable())
}

func TestProcessJobRejectsUndecodablePage(t *testing.T) {
	p := newJobProcessor(t, &fakeRecognizer{fn: staticLines()}, &memoryStore{}, false)

	pages := append(encodedPages(t, 10), []byte("not an image at all"))
	_, err := p.ProcessDocument(context.Background(), &ProcessRequest{JobID: "job-x", Pages: pages})
	pe, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrorUnsupportedFormat, pe.Code)
	assert.Equal(t, 2, pe.Page)
}

func TestProcessJobFailFastStoresNothing(t *testing.T) {
	store := &memoryStore{}
	p := newJobProcessor(t, &fakeRecognizer{fn: stuckSecondPage}, store, false)

	_, err := p.ProcessDocument(context.Background(), &ProcessRequest{JobID: "job-ff", Pages: encodedPages(t, 10, 20, 30)})
	pe, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrorOCRTimeout, pe.Code)
	assert.Equal(t, "job-ff", pe.JobID)
	assert.Equal(t, 2, pe.Page)
	assert.Empty(t, store.outputs)
}

func TestProcessJobBestEffortRequest(t *testing.T) {
	store := &memoryStore{}
	p := newJobProcessor(t, &fakeRecognizer{fn: stuckSecondPage}, store, false)

	res, err := p.ProcessDocument(context.Background(), &ProcessRequest{
		JobID:      "job-be",
		Pages:      encodedPages(t, 10, 20, 30),
		BestEffort: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.PageCount)
	assert.Equal(t, []int{2}, res.FailedPages)

	require.Len(t, store.outputs, 1)
	var numbers []int
	for _, pg := range store.outputs[0].Pages {
		numbers = append(numbers, pg.Number)
	}
	assert.Equal(t, []int{1, 3}, numbers)
}

func TestProcessJobAllPagesFailed(t *testing.T) {
	rec := &fakeRecognizer{fn: func(int) ([]models.TextLine, error) {
		return nil, errors.NewOCRServiceError("job failed", nil)
	}}
	p := newJobProcessor(t, rec, &memoryStore{}, true)

	_, err := p.ProcessDocument(context.Background(), &ProcessRequest{JobID: "job-all", Pages: encodedPages(t, 10, 20)})
	assert.True(t, errors.HasCode(err, errors.ErrorOCRFailed))
}

func TestProcessJobTargetLanguageOverride(t *testing.T) {
	tr := &langTranslator{}
	lines, err := NewLineTranslator(tr, nil, LineOptions{TargetLanguage: "id"})
	require.NoError(t, err)
	pages := newPages(t, &fakeRecognizer{fn: staticLines(line("hi", 0, 0, 5, 5))}, lines, nil, nil)
	docs, err := NewDocumentAssembler(pages, DocumentOptions{})
	require.NoError(t, err)
	p, err := NewDocumentProcessor(&ProcessorConfig{Documents: docs, Store: &memoryStore{}})
	require.NoError(t, err)

	_, err = p.ProcessDocument(context.Background(), &ProcessRequest{JobID: "j", TargetLanguage: "fr", Pages: encodedPages(t, 10)})
	require.NoError(t, err)
	_, err = p.ProcessDocument(context.Background(), &ProcessRequest{JobID: "k", Pages: encodedPages(t, 10)})
	require.NoError(t, err)

	assert.Equal(t, []string{"fr", "id"}, tr.langs)
	assert.Equal(t, "id", lines.TargetLanguage())
}

func TestProcessJobDownloadsFileURL(t *testing.T) {
	data := encodedPages(t, 10)[0]
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(data)
	}))
	defer server.Close()

	store := &memoryStore{}
	p := newJobProcessor(t, &fakeRecognizer{fn: staticLines(line("hi", 0, 0, 5, 5))}, store, false)

	res, err := p.ProcessDocument(context.Background(), &ProcessRequest{JobID: "job-url", FileURL: server.URL + "/page.png"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.PageCount)
}

func TestDownloadClientErrorIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	p := newJobProcessor(t, &fakeRecognizer{fn: staticLines()}, &memoryStore{}, false)
	_, err := p.ProcessDocument(context.Background(), &ProcessRequest{JobID: "job-404", FileURL: server.URL})
	require.Error(t, err)
	assert.Equal(t, errors.ErrorAPICallFailed, errors.CodeOf(err))
	assert.EqualValues(t, 1, hits.Load())

	pe, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, "job-404", pe.JobID)
	assert.Equal(t, http.StatusNotFound, pe.Details["status_code"])
	assert.False(t, pe.Retryable())
}

func TestDownloadEnforcesMaxFileSize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 2<<20))
	}))
	defer server.Close()

	p := newJobProcessor(t, &fakeRecognizer{fn: staticLines()}, &memoryStore{}, false)
	_, err := p.ProcessDocument(context.Background(), &ProcessRequest{JobID: "job-big", FileURL: server.URL})
	assert.Equal(t, errors.ErrorUnsupportedFormat, errors.CodeOf(err))
}

func TestProcessJobNeedsInput(t *testing.T) {
	p := newJobProcessor(t, &fakeRecognizer{fn: staticLines()}, &memoryStore{}, false)
	_, err := p.ProcessDocument(context.Background(), &ProcessRequest{JobID: "empty"})
	assert.Equal(t, errors.ErrorUnsupportedFormat, errors.CodeOf(err))
}

func TestDetectMimeType(t *testing.T) {
	assert.Equal(t, "application/pdf", detectMimeTypeFromMagicBytes([]byte("%PDF-1.4")))
	assert.Equal(t, "image/png", detectMimeTypeFromMagicBytes(encodedPages(t, 2)[0]))
	assert.Equal(t, "image/jpeg", detectMimeTypeFromMagicBytes([]byte{0xFF, 0xD8, 0xFF, 0xE0}))
	assert.Equal(t, "image/tiff", detectMimeTypeFromMagicBytes([]byte{0x49, 0x49, 0x2A, 0x00, 0x08}))
	assert.Equal(t, "", detectMimeTypeFromMagicBytes([]byte("plain text")))
	assert.Equal(t, "", detectMimeTypeFromMagicBytes(nil))
}
