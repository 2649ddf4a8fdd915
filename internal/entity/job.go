package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/docpipe/docpipe/constants"
)

// Job is one document's end-to-end processing record, from upload to terminal
// status. Intake fields (user, source, file metadata) are immutable after
// creation; stage fields are absent until their stage finishes.
type Job struct {
	JobID        uuid.UUID           `json:"job_id"`
	UserID       string              `json:"user_id"`
	SourceBucket string              `json:"source_bucket"`
	SourceKey    string              `json:"source_key"`
	FileMetadata FileMetadata        `json:"file_metadata"`
	Status       constants.JobStatus `json:"status"`

	StageExtraction *StageArtifact `json:"stage_extraction,omitempty"`
	StageSummary    *StageArtifact `json:"stage_summary,omitempty"`

	// QueueTrace is diagnostic only: overwritten on every delivery, never
	// read for correctness.
	QueueTrace *QueueTrace `json:"queue_trace,omitempty"`

	SourceIP  string    `json:"ip_address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FileMetadata is captured once at intake.
type FileMetadata struct {
	Name      string `json:"file_name"`
	Format    string `json:"format"`
	SizeBytes int64  `json:"size_bytes"`
}

// StageArtifact records where a stage's output landed, or why it didn't.
type StageArtifact struct {
	ObjectKey  string     `json:"object_key,omitempty"`
	URL        string     `json:"url,omitempty"`
	Length     int        `json:"length,omitempty"`
	Error      string     `json:"error,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Failed reports whether the stage carries an error marker.
func (a *StageArtifact) Failed() bool {
	return a != nil && a.Error != ""
}

// QueueTrace is the last-seen queue message metadata for a job.
type QueueTrace struct {
	MessageID    string    `json:"message_id"`
	GroupID      string    `json:"group_id"`
	ReceiveCount int       `json:"receive_count"`
	ReceivedAt   time.Time `json:"received_at"`
}

// UploadNotification is one storage-trigger event: a document landed in the
// bucket. Fire-and-forget; the trigger does not redeliver on a non-error
// return.
type UploadNotification struct {
	Bucket    string    `json:"bucket"`
	Key       string    `json:"key"`
	Size      int64     `json:"size"`
	SourceIP  string    `json:"source_ip,omitempty"`
	EventTime time.Time `json:"event_time"`
}
