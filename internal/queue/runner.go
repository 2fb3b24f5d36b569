package queue

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/adverant/nexus/doctranslate-worker/internal/errors"
	"github.com/adverant/nexus/doctranslate-worker/internal/logging"
	"github.com/adverant/nexus/doctranslate-worker/internal/processor"
	"github.com/adverant/nexus/doctranslate-worker/internal/storage"
)

const defaultProcessingTimeout = 5 * time.Minute

// jobRunner runs one job attempt and records its outcome on the job row.
// It is shared by the Redis list consumer and the asynq consumer.
type jobRunner struct {
	processor processor.DocumentProcessorInterface
	timeout   time.Duration
	logger    *logging.Logger
}

func newJobRunner(p processor.DocumentProcessorInterface, timeoutMs int64, logger *logging.Logger) *jobRunner {
	timeout := defaultProcessingTimeout
	if timeoutMs > 0 {
		timeout = time.Duration(timeoutMs) * time.Millisecond
	}
	return &jobRunner{processor: p, timeout: timeout, logger: logger}
}

// run processes payload once. When the attempt fails and final is false,
// the job row is put back to queued; otherwise it is marked failed.
func (r *jobRunner) run(ctx context.Context, payload *JobPayload, attempt int, final bool) (*processor.ProcessResult, error) {
	logger := r.logger.With("jobId", payload.JobID, "attempt", attempt)

	if err := r.processor.UpdateJobStatus(ctx, &storage.JobUpdate{
		JobID:          payload.JobID,
		UserID:         payload.UserID,
		Filename:       payload.Filename,
		TargetLanguage: payload.TargetLanguage,
		Status:         storage.StatusProcessing,
		PageCount:      len(payload.Pages),
	}); err != nil {
		logger.Warn("Could not update job status to processing", "error", err)
	}

	logger.Debug("Processing timeout set", "timeout", r.timeout.String())
	processCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	startTime := time.Now()
	result, err := r.processor.ProcessDocument(processCtx, payload.ToRequest())
	duration := time.Since(startTime)

	if err != nil {
		if processCtx.Err() == context.DeadlineExceeded {
			logger.Error("Processing timed out", "duration", duration.String(), "timeout", r.timeout.String())
			err = errors.NewProcessingTimeoutError(payload.JobID, r.timeout, err)
		}

		update := failureUpdate(payload.JobID, err)
		update.ProcessingTimeMs = duration.Milliseconds()
		if !final && shouldRetry(err) {
			update.Status = storage.StatusQueued
		}
		if updateErr := r.processor.UpdateJobStatus(ctx, update); updateErr != nil {
			logger.Warn("Failed to record job failure", "error", updateErr)
		}
		return nil, err
	}

	if err := r.processor.UpdateJobStatus(ctx, completionUpdate(payload.JobID, result)); err != nil {
		logger.Warn("Failed to update status to completed", "error", err)
	}
	return result, nil
}

// shouldRetry reports whether another attempt could succeed. Joined page
// errors are retried only when every page failed for a retryable reason.
func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, inner := range joined.Unwrap() {
			if !shouldRetry(inner) {
				return false
			}
		}
		return true
	}
	if pe, ok := errors.As(err); ok {
		return pe.Retryable()
	}
	return !stderrors.Is(err, context.Canceled)
}

// failureUpdate describes a failed attempt on the job row. The first
// structured error in err supplies code, operation and page.
func failureUpdate(jobID string, err error) *storage.JobUpdate {
	update := &storage.JobUpdate{
		JobID:        jobID,
		Status:       storage.StatusFailed,
		ErrorMessage: err.Error(),
	}
	if pe, ok := firstProcessingError(err); ok {
		update.ErrorCode = string(pe.Code)
		update.ErrorOperation = string(pe.Operation)
		update.ErrorPage = pe.Page
		update.Metadata = map[string]interface{}{"error": pe.ToMap()}
	}
	return update
}

func firstProcessingError(err error) (*errors.ProcessingError, bool) {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, inner := range joined.Unwrap() {
			if pe, ok := firstProcessingError(inner); ok {
				return pe, true
			}
		}
		return nil, false
	}
	return errors.As(err)
}

func completionUpdate(jobID string, result *processor.ProcessResult) *storage.JobUpdate {
	update := &storage.JobUpdate{
		JobID:            jobID,
		Status:           storage.StatusCompleted,
		Progress:         100,
		PageCount:        result.PageCount,
		FailedPages:      result.FailedPages,
		ProcessingTimeMs: result.ProcessingTimeMs,
		Metadata: map[string]interface{}{
			"lineCount": result.LineCount,
		},
	}
	if result.Artifacts != nil {
		update.Metadata["artifacts"] = result.Artifacts
		if result.Artifacts.Document != nil {
			update.DocumentURL = result.Artifacts.Document.URL
		}
	}
	return update
}
