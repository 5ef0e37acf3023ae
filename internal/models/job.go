package models

import (
	"time"
)

// JobType identifies the kind of work a job tracks. Closed set - handlers
// and the pipeline switch on these values, no dynamic types.
type JobType string

const (
	JobTypeCaptureAdd         JobType = "capture_add"
	JobTypeMarkdownGeneration JobType = "markdown_generation"
	JobTypeQaGeneration       JobType = "qa_generation"
	JobTypeFileImport         JobType = "file_import"
	JobTypeBulkUrlImport      JobType = "bulk_url_import"
	JobTypeUrlFetch           JobType = "url_fetch"
)

// JobStatus represents the lifecycle state of a job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Metadata keys. Each job type reads and writes its own namespace of keys;
// no job type depends on another type's keys.
const (
	MetaURL          = "url"
	MetaRetryCount   = "retry_count"
	MetaErrorKind    = "error_kind"
	MetaErrorMessage = "error_message"
	MetaTotalURLs    = "total_urls"
	MetaSuccessCount = "success_count"
	MetaFailureCount = "failure_count"
	MetaHTMLSize     = "html_size"
	MetaFetchTimeMs  = "fetch_time_ms"
	MetaCharCount    = "character_count"
	MetaWordCount    = "word_count"
	MetaPairCount    = "pair_count"
	MetaElapsedMs    = "elapsed_ms"
	MetaTitle        = "title"
)

// Job is one trackable unit of asynchronous work.
type Job struct {
	ID          string                 `json:"id" badgerhold:"key"`
	Type        JobType                `json:"type" badgerhold:"index"`
	Status      JobStatus              `json:"status" badgerhold:"index"`
	ParentID    string                 `json:"parent_id,omitempty" badgerhold:"index"`
	BookmarkID  string                 `json:"bookmark_id,omitempty" badgerhold:"index"`
	Progress    int                    `json:"progress"`
	CurrentStep string                 `json:"current_step,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt   time.Time              `json:"created_at" badgerhold:"index"`
	UpdatedAt   time.Time              `json:"updated_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

// IsTerminal returns true if the job has reached a final state.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed || j.Status == JobStatusCancelled
}

// IsActive returns true if the job still has work pending or running.
func (j *Job) IsActive() bool {
	return j.Status == JobStatusPending || j.Status == JobStatusInProgress
}

// CanTransitionTo reports whether moving to the target status is a legal
// state machine transition. The in_progress -> pending edge exists solely
// for startup recovery of orphaned jobs; live workers never take it.
func (j *Job) CanTransitionTo(target JobStatus) bool {
	switch j.Status {
	case JobStatusPending:
		return target == JobStatusInProgress || target == JobStatusCancelled
	case JobStatusInProgress:
		return target == JobStatusCompleted || target == JobStatusFailed ||
			target == JobStatusCancelled || target == JobStatusPending
	default:
		// Completed, Failed and Cancelled are terminal - no resurrection.
		return false
	}
}

// SetMeta sets a single metadata key, allocating the map on first use.
func (j *Job) SetMeta(key string, value interface{}) {
	if j.Metadata == nil {
		j.Metadata = make(map[string]interface{})
	}
	j.Metadata[key] = value
}

// GetMetaString returns a string metadata value or the default.
func (j *Job) GetMetaString(key, defaultValue string) string {
	if j.Metadata == nil {
		return defaultValue
	}
	if v, ok := j.Metadata[key].(string); ok {
		return v
	}
	return defaultValue
}

// GetMetaInt returns an integer metadata value or the default.
// Handles float64 since metadata may round-trip through JSON.
func (j *Job) GetMetaInt(key string, defaultValue int) int {
	if j.Metadata == nil {
		return defaultValue
	}
	switch v := j.Metadata[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return defaultValue
	}
}

// GetMetaBool returns a boolean metadata value or the default.
func (j *Job) GetMetaBool(key string, defaultValue bool) bool {
	if j.Metadata == nil {
		return defaultValue
	}
	if v, ok := j.Metadata[key].(bool); ok {
		return v
	}
	return defaultValue
}

// RetryCount returns the number of recovery requeues recorded on the job.
func (j *Job) RetryCount() int {
	return j.GetMetaInt(MetaRetryCount, 0)
}
