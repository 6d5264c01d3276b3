// Package jobstore provides durable persistence of jobs and results,
// enforcing the state-transition invariants of the extraction pipeline.
// Modeled on the teacher's legal_audit/analytics GORM service idiom:
// UUID primary keys, gorm tags for indexes, a JSONB wrapper for opaque
// structured payloads.
package jobstore

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status is the job lifecycle status.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Phase is the sub-state of a job while status=processing.
type Phase string

const (
	PhaseAnalyzing Phase = "analyzing_invoice"
	PhaseExtracting Phase = "extracting_data"
	PhaseVerifying  Phase = "verifying_data"
)

// phaseRank orders phases for the monotonicity check in SetPhase. Zero
// means "no phase yet" (status=queued), so any named phase ranks above it.
var phaseRank = map[Phase]int{
	"":              0,
	PhaseAnalyzing:  1,
	PhaseExtracting: 2,
	PhaseVerifying:  3,
}

// Job is one row per submission.
type Job struct {
	ID              uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ClientID        string     `json:"client_id" gorm:"size:50;index"`
	Status          Status     `json:"status" gorm:"size:20;not null;index"`
	ProcessingPhase Phase      `json:"processing_phase" gorm:"size:32"`
	PDFURL          string     `json:"pdf_url" gorm:"size:2048;not null"`
	CreatedAt       time.Time  `json:"created_at" gorm:"autoCreateTime;index"`
	UpdatedAt       time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
	CompletedAt     *time.Time `json:"completed_at"`
	ErrorMessage    *string    `json:"error_message" gorm:"type:text"`
}

func (Job) TableName() string { return "jobs" }

// JobResult is created at most once per Job, only on success.
type JobResult struct {
	ID              uuid.UUID   `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	JobID           uuid.UUID   `json:"job_id" gorm:"type:uuid;uniqueIndex;not null"`
	ExtractedData   *JSONValue  `json:"extracted_data" gorm:"type:jsonb"`
	ConfidenceScore *float64    `json:"confidence_score" gorm:"type:decimal(3,2)"`
	TokensUsed      int         `json:"tokens_used"`
	RawOCRText      string      `json:"raw_ocr_text" gorm:"type:text"`
	OCRProvider     string      `json:"ocr_provider" gorm:"size:64"`
	OCRDurationMs   int64       `json:"ocr_duration_ms"`
	OCRPages        *int        `json:"ocr_pages"`
	CreatedAt       time.Time   `json:"created_at" gorm:"autoCreateTime"`
}

func (JobResult) TableName() string { return "job_results" }

// JSONValue wraps an arbitrary structured record (one of the four
// invoice schemas) for storage in a jsonb column, following the
// teacher's JSONBMetadata Value/Scan pattern but generalized to hold
// any map-shaped payload rather than a fixed struct.
type JSONValue struct {
	Data map[string]interface{}
}

func NewJSONValue(data map[string]interface{}) *JSONValue {
	return &JSONValue{Data: data}
}

func (j JSONValue) Value() (driver.Value, error) {
	if j.Data == nil {
		return nil, nil
	}
	return json.Marshal(j.Data)
}

func (j *JSONValue) Scan(value interface{}) error {
	if value == nil {
		j.Data = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("jobstore: unsupported Scan type for JSONValue")
	}
	return json.Unmarshal(bytes, &j.Data)
}

// Result is the caller-facing payload supplied to Store.Complete; it
// mirrors JobResult without the persistence-only ID/JobID fields.
type Result struct {
	ExtractedData   map[string]interface{}
	ConfidenceScore *float64
	TokensUsed      int
	RawOCRText      string
	OCRProvider     string
	OCRDurationMs   int64
	OCRPages        *int
}
