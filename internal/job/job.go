package job

import (
	"time"

	"github.com/tendant/simple-ocr/constants"
)

// Job is one OCR work item referencing source content in the content store.
// Immutable once constructed; consumed exactly once by the pipeline.
type Job struct {
	JobID     string            `json:"job_id"`
	ContentID string            `json:"content_id"`
	ObjectID  string            `json:"object_id"`
	OwnerID   string            `json:"owner_id,omitempty"`
	TenantID  string            `json:"tenant_id,omitempty"`
	SourceURL string            `json:"source_url"`
	MIMEType  string            `json:"mime_type"`
	CreatedAt time.Time         `json:"created_at,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Result is the externally visible outcome of one pipeline run. Created once
// per job and immutable after construction.
type Result struct {
	JobID            string              `json:"job_id"`
	Status           constants.JobStatus `json:"status"`
	MarkdownContent  string              `json:"markdown_content,omitempty"`
	ErrorMessage     string              `json:"error_message,omitempty"`
	ProcessingTimeMS int64               `json:"processing_time_ms"`
	PageCount        int                 `json:"page_count,omitempty"`
	CompletedAt      *time.Time          `json:"completed_at,omitempty"`
	Metadata         map[string]string   `json:"metadata,omitempty"`
}

// Completed reports whether the result is a terminal success.
func (r Result) Completed() bool {
	return r.Status == constants.JobStatusCompleted
}
