package queue

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/adverant/nexus/doctranslate-worker/internal/processor"
)

// TaskTypeTranslate is the asynq task type for translation jobs.
const TaskTypeTranslate = "doctranslate:translate"

// DefaultQueueName is used when no queue is configured.
const DefaultQueueName = "doctranslate:jobs"

// RedisJobData represents a job from the Redis queue
type RedisJobData struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Payload    JobPayload `json:"payload"`
	CreatedAt  time.Time  `json:"createdAt"`
	Attempts   int        `json:"attempts"`
	MaxRetries int        `json:"maxRetries"`
}

// JobPayload contains the actual job data
type JobPayload struct {
	JobID          string                 `json:"jobId"`
	UserID         string                 `json:"userId,omitempty"`
	Filename       string                 `json:"filename,omitempty"`
	TargetLanguage string                 `json:"targetLanguage,omitempty"`
	Pages          [][]byte               `json:"-"` // set by UnmarshalJSON
	FileURL        string                 `json:"fileUrl,omitempty"`
	BestEffort     bool                   `json:"bestEffort,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// MarshalJSON writes pages as base64 strings.
func (p JobPayload) MarshalJSON() ([]byte, error) {
	type Alias JobPayload
	return json.Marshal(&struct {
		Pages [][]byte `json:"pages,omitempty"`
		Alias
	}{
		Pages: p.Pages,
		Alias: Alias(p),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling for JobPayload to handle Buffer serialization
// Each page may be a base64 string or a Node.js Buffer object. A single
// legacy fileBuffer is accepted as a one-page document.
func (p *JobPayload) UnmarshalJSON(data []byte) error {
	// Create alias type to avoid recursion
	type Alias JobPayload
	aux := &struct {
		Pages      []interface{} `json:"pages,omitempty"`
		FileBuffer interface{}   `json:"fileBuffer,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(p),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("failed to unmarshal JobPayload: %w", err)
	}

	p.Pages = nil
	for i, v := range aux.Pages {
		page, err := decodeBuffer(v)
		if err != nil {
			return fmt.Errorf("page %d: %w", i+1, err)
		}
		p.Pages = append(p.Pages, page)
	}

	if len(p.Pages) == 0 && aux.FileBuffer != nil {
		page, err := decodeBuffer(aux.FileBuffer)
		if err != nil {
			return fmt.Errorf("fileBuffer: %w", err)
		}
		p.Pages = [][]byte{page}
	}

	return nil
}

func decodeBuffer(v interface{}) ([]byte, error) {
	switch v := v.(type) {
	case string:
		// Base64 string format
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 buffer: %w", err)
		}
		return decoded, nil

	case map[string]interface{}:
		// Node.js Buffer object format
		bufferType, ok := v["type"].(string)
		if !ok || bufferType != "Buffer" {
			return nil, fmt.Errorf("invalid Buffer object format (missing or incorrect 'type' field)")
		}
		dataArray, ok := v["data"].([]interface{})
		if !ok {
			return nil, fmt.Errorf("Buffer object missing 'data' array")
		}
		out := make([]byte, len(dataArray))
		for i, val := range dataArray {
			byteVal, ok := val.(float64)
			if !ok || byteVal < 0 || byteVal > 255 {
				return nil, fmt.Errorf("invalid byte value in Buffer data array at index %d", i)
			}
			out[i] = byte(byteVal)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("buffer must be either base64 string or Buffer object, got %T", v)
	}
}

// Validate checks that the payload names a job and carries input.
func (p *JobPayload) Validate() error {
	if p.JobID == "" {
		return fmt.Errorf("jobId is required")
	}
	if len(p.Pages) == 0 && p.FileURL == "" {
		return fmt.Errorf("job %s has neither pages nor fileUrl", p.JobID)
	}
	return nil
}

// ToRequest converts the payload for the document processor.
func (p *JobPayload) ToRequest() *processor.ProcessRequest {
	return &processor.ProcessRequest{
		JobID:          p.JobID,
		UserID:         p.UserID,
		Filename:       p.Filename,
		TargetLanguage: p.TargetLanguage,
		Pages:          p.Pages,
		FileURL:        p.FileURL,
		BestEffort:     p.BestEffort,
		Metadata:       p.Metadata,
	}
}
