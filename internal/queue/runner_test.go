package queue

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/doctranslate-worker/internal/errors"
	"github.com/adverant/nexus/doctranslate-worker/internal/logging"
	"github.com/adverant/nexus/doctranslate-worker/internal/processor"
	"github.com/adverant/nexus/doctranslate-worker/internal/storage"
)

type fakeProcessor struct {
	mu      sync.Mutex
	result  *processor.ProcessResult
	err     error
	block   bool
	updates []storage.JobUpdate
	reqs    []*processor.ProcessRequest
}

func (f *fakeProcessor) ProcessDocument(ctx context.Context, req *processor.ProcessRequest) (*processor.ProcessResult, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.result, f.err
}

func (f *fakeProcessor) UpdateJobStatus(_ context.Context, update *storage.JobUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, *update)
	return nil
}

func (f *fakeProcessor) last() storage.JobUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates[len(f.updates)-1]
}

func testPayload() *JobPayload {
	return &JobPayload{JobID: "job-1", Filename: "scan.png", TargetLanguage: "id", Pages: [][]byte{{1}, {2}}}
}

func TestRunnerRecordsCompletion(t *testing.T) {
	fp := &fakeProcessor{result: &processor.ProcessResult{
		PageCount:        2,
		FailedPages:      []int{2},
		LineCount:        7,
		ProcessingTimeMs: 1200,
		Artifacts: &storage.StoredTranslation{
			Document: &storage.Artifact{Key: "job-1/translated_document.pdf", URL: "http://minio/job-1.pdf"},
		},
	}}
	r := newJobRunner(fp, 0, logging.Nop())

	res, err := r.run(context.Background(), testPayload(), 1, true)
	require.NoError(t, err)
	assert.Equal(t, 2, res.PageCount)

	require.Len(t, fp.updates, 2)
	first := fp.updates[0]
	assert.Equal(t, storage.StatusProcessing, first.Status)
	assert.Equal(t, "scan.png", first.Filename)
	assert.Equal(t, "id", first.TargetLanguage)
	assert.Equal(t, 2, first.PageCount)

	done := fp.last()
	assert.Equal(t, storage.StatusCompleted, done.Status)
	assert.Equal(t, 100, done.Progress)
	assert.Equal(t, []int{2}, done.FailedPages)
	assert.Equal(t, int64(1200), done.ProcessingTimeMs)
	assert.Equal(t, "http://minio/job-1.pdf", done.DocumentURL)
	assert.Equal(t, 7, done.Metadata["lineCount"])
}

func TestRunnerRecordsStructuredFailure(t *testing.T) {
	fp := &fakeProcessor{err: errors.NewRenderError("font missing", nil).AtPage(3).WithJob("job-1")}
	r := newJobRunner(fp, 0, logging.Nop())

	_, err := r.run(context.Background(), testPayload(), 1, false)
	require.Error(t, err)

	failed := fp.last()
	assert.Equal(t, storage.StatusFailed, failed.Status, "render errors are not retried")
	assert.Equal(t, string(errors.ErrorRenderFailed), failed.ErrorCode)
	assert.Equal(t, string(errors.OpRender), failed.ErrorOperation)
	assert.Equal(t, 3, failed.ErrorPage)
	assert.Contains(t, failed.ErrorMessage, "font missing")
}

func TestRunnerRequeuesRetryableFailure(t *testing.T) {
	fp := &fakeProcessor{err: errors.NewTranslationServiceError("rate limited", 429, nil)}
	r := newJobRunner(fp, 0, logging.Nop())

	_, err := r.run(context.Background(), testPayload(), 1, false)
	require.Error(t, err)
	assert.Equal(t, storage.StatusQueued, fp.last().Status)

	_, err = r.run(context.Background(), testPayload(), 3, true)
	require.Error(t, err)
	assert.Equal(t, storage.StatusFailed, fp.last().Status)
}

func TestRunnerTimeout(t *testing.T) {
	fp := &fakeProcessor{block: true}
	r := newJobRunner(fp, 20, logging.Nop())

	_, err := r.run(context.Background(), testPayload(), 1, true)
	pe, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrorProcessingTimeout, pe.Code)
	assert.Equal(t, "job-1", pe.JobID)
	assert.Equal(t, string(errors.ErrorProcessingTimeout), fp.last().ErrorCode)
}

func TestShouldRetry(t *testing.T) {
	assert.False(t, shouldRetry(nil))
	assert.True(t, shouldRetry(stderrors.New("connection reset")))
	assert.False(t, shouldRetry(context.Canceled))
	assert.False(t, shouldRetry(errors.NewUnsupportedFormatError("j", "application/pdf")))
	assert.False(t, shouldRetry(errors.NewTranslationServiceError("bad key", 401, nil)))
	assert.True(t, shouldRetry(errors.NewOCRTimeoutError(5, 0)))

	joined := stderrors.Join(errors.NewOCRTimeoutError(5, 0), errors.NewTranslationServiceError("busy", 503, nil))
	assert.True(t, shouldRetry(joined))
	joined = stderrors.Join(errors.NewOCRTimeoutError(5, 0), errors.NewRenderError("boom", nil))
	assert.False(t, shouldRetry(joined))
}

func TestFailureUpdateUsesFirstPageError(t *testing.T) {
	err := stderrors.Join(nil, errors.NewOCRTimeoutError(5, 0).AtPage(2), errors.NewRenderError("x", nil).AtPage(4))
	update := failureUpdate("job-9", err)
	assert.Equal(t, string(errors.ErrorOCRTimeout), update.ErrorCode)
	assert.Equal(t, 2, update.ErrorPage)
	assert.Contains(t, update.Metadata, "error")
}

func TestHandleTranslateSkipsRetryForPermanentErrors(t *testing.T) {
	fp := &fakeProcessor{err: errors.NewUnsupportedFormatError("job-1", "application/pdf")}
	c := &Consumer{runner: newJobRunner(fp, 0, logging.Nop()), config: &ConsumerConfig{}, logger: logging.Nop()}

	task, err := NewTranslateTask(testPayload())
	require.NoError(t, err)
	err = c.handleTranslate(context.Background(), task)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, asynq.SkipRetry))
	assert.Equal(t, "job-1", fp.reqs[0].JobID)
}

func TestHandleTranslateRejectsBadPayload(t *testing.T) {
	c := &Consumer{runner: newJobRunner(&fakeProcessor{}, 0, logging.Nop()), config: &ConsumerConfig{}, logger: logging.Nop()}
	err := c.handleTranslate(context.Background(), asynq.NewTask(TaskTypeTranslate, []byte(`{"pages":[1]}`)))
	assert.True(t, stderrors.Is(err, asynq.SkipRetry))
}

func TestHandleTranslateSucceeds(t *testing.T) {
	fp := &fakeProcessor{result: &processor.ProcessResult{PageCount: 2}}
	c := &Consumer{runner: newJobRunner(fp, 0, logging.Nop()), config: &ConsumerConfig{}, logger: logging.Nop()}

	task, err := NewTranslateTask(testPayload())
	require.NoError(t, err)
	require.NoError(t, c.handleTranslate(context.Background(), task))
	assert.Equal(t, storage.StatusCompleted, fp.last().Status)
	assert.Equal(t, [][]byte{{1}, {2}}, fp.reqs[0].Pages)
}
