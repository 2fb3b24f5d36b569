package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

/**
 * Error taxonomy for the document translation worker
 *
 * Every failure that leaves the pipeline is a ProcessingError carrying the
 * stage (operation) and, where known, the page and line it happened on.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Pipeline stage errors
	ErrorOCRFailed         ErrorCode = "OCR_FAILED"
	ErrorOCRTimeout        ErrorCode = "OCR_TIMEOUT"
	ErrorTranslationFailed ErrorCode = "TRANSLATION_FAILED"
	ErrorRenderFailed      ErrorCode = "RENDER_FAILED"
	ErrorGlossaryLoad      ErrorCode = "GLOSSARY_LOAD_FAILED"

	// Processing errors
	ErrorProcessingTimeout ErrorCode = "PROCESSING_TIMEOUT"
	ErrorUnsupportedFormat ErrorCode = "UNSUPPORTED_FORMAT"

	// Storage errors
	ErrorStorageFailed  ErrorCode = "STORAGE_FAILED"
	ErrorDatabaseFailed ErrorCode = "DATABASE_FAILED"

	// Network errors
	ErrorNetworkTimeout ErrorCode = "NETWORK_TIMEOUT"
	ErrorAPICallFailed  ErrorCode = "API_CALL_FAILED"
)

// Operation names the pipeline stage an error originated in.
type Operation string

const (
	OpOCR       Operation = "ocr"
	OpTranslate Operation = "translate"
	OpRender    Operation = "render"
	OpAssemble  Operation = "assemble"
	OpGlossary  Operation = "glossary"
	OpStorage   Operation = "storage"
	OpDownload  Operation = "download"
)

// ProcessingError represents a structured processing error.
// Page and Line are 1-based; zero means unknown.
type ProcessingError struct {
	Code      ErrorCode
	Message   string
	Operation Operation
	JobID     string
	Page      int
	Line      int
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ProcessingError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)

	var where []string
	if e.Page > 0 {
		where = append(where, fmt.Sprintf("page %d", e.Page))
	}
	if e.Line > 0 {
		where = append(where, fmt.Sprintf("line %d", e.Line))
	}
	if e.Operation != "" {
		where = append(where, fmt.Sprintf("operation %s", e.Operation))
	}
	if len(where) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(where, ", "))
		b.WriteString(")")
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, " (caused by: %v)", e.Cause)
	}
	return b.String()
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// AtPage returns a copy of the error annotated with a 1-based page number.
func (e *ProcessingError) AtPage(page int) *ProcessingError {
	c := *e
	c.Page = page
	return &c
}

// AtLine returns a copy of the error annotated with a 1-based line number.
func (e *ProcessingError) AtLine(line int) *ProcessingError {
	c := *e
	c.Line = line
	return &c
}

// WithJob returns a copy of the error annotated with the job it belongs to.
func (e *ProcessingError) WithJob(jobID string) *ProcessingError {
	c := *e
	c.JobID = jobID
	return &c
}

// Retryable reports whether a job failing with this error is worth retrying.
func (e *ProcessingError) Retryable() bool {
	switch e.Code {
	case ErrorUnsupportedFormat, ErrorOCRFailed, ErrorRenderFailed:
		return false
	case ErrorTranslationFailed, ErrorAPICallFailed:
		if status, ok := e.Details["status_code"].(int); ok {
			return status == 429 || status >= 500
		}
		return true
	default:
		return true
	}
}

// As returns the first ProcessingError in err's chain.
func As(err error) (*ProcessingError, bool) {
	var pe *ProcessingError
	if stderrors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// CodeOf returns the code of the first ProcessingError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	if pe, ok := As(err); ok {
		return pe.Code
	}
	return ""
}

// HasCode reports whether any ProcessingError in err's tree carries code.
// Joined errors are searched branch by branch.
func HasCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	if pe, ok := err.(*ProcessingError); ok {
		if pe.Code == code {
			return true
		}
		return HasCode(pe.Cause, code)
	}
	switch x := err.(type) {
	case interface{ Unwrap() []error }:
		for _, inner := range x.Unwrap() {
			if HasCode(inner, code) {
				return true
			}
		}
		return false
	case interface{ Unwrap() error }:
		return HasCode(x.Unwrap(), code)
	}
	return false
}

// Factory functions for common errors

func NewOCRServiceError(message string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorOCRFailed,
		Message:   message,
		Operation: OpOCR,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewOCRTimeoutError(attempts int, interval time.Duration) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorOCRTimeout,
		Message:   fmt.Sprintf("OCR job did not finish after %d polls at %v", attempts, interval),
		Operation: OpOCR,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"poll_attempts": attempts,
			"poll_interval": interval.String(),
		},
	}
}

func NewTranslationServiceError(message string, statusCode int, cause error) *ProcessingError {
	details := map[string]interface{}{}
	if statusCode > 0 {
		details["status_code"] = statusCode
	}
	return &ProcessingError{
		Code:      ErrorTranslationFailed,
		Message:   message,
		Operation: OpTranslate,
		Timestamp: time.Now(),
		Details:   details,
		Cause:     cause,
	}
}

func NewRenderError(message string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorRenderFailed,
		Message:   message,
		Operation: OpRender,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewAssembleError(message string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorRenderFailed,
		Message:   message,
		Operation: OpAssemble,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewGlossaryLoadError(source string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorGlossaryLoad,
		Message:   fmt.Sprintf("Failed to load glossary from %s", source),
		Operation: OpGlossary,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"source": source,
		},
		Cause: cause,
	}
}

func NewProcessingTimeoutError(jobID string, duration time.Duration, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorProcessingTimeout,
		Message:   fmt.Sprintf("Processing timed out after %v", duration),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

func NewUnsupportedFormatError(jobID string, mimeType string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorUnsupportedFormat,
		Message:   fmt.Sprintf("Unsupported file format: %s", mimeType),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"mime_type": mimeType,
		},
	}
}

func NewStorageFailedError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorStorageFailed,
		Message:   "Failed to store translation artifacts",
		Operation: OpStorage,
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewDatabaseError(jobID string, action string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorDatabaseFailed,
		Message:   "Failed to " + action,
		Operation: OpStorage,
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// NewAPICallFailedError reports a remote endpoint that answered with a
// non-success status.
func NewAPICallFailedError(url string, statusCode int, status string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorAPICallFailed,
		Message:   fmt.Sprintf("Remote call returned HTTP %d: %s", statusCode, status),
		Operation: OpDownload,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"url":         url,
			"status_code": statusCode,
		},
	}
}

func NewDownloadFailedError(jobID string, url string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorNetworkTimeout,
		Message:   "Failed to download source file",
		Operation: OpDownload,
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"url": url,
		},
		Cause: cause,
	}
}

// ToMap converts error to map for database storage
func (e *ProcessingError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}
	if e.Operation != "" {
		result["operation"] = string(e.Operation)
	}
	if e.Page > 0 {
		result["page"] = e.Page
	}
	if e.Line > 0 {
		result["line"] = e.Line
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
