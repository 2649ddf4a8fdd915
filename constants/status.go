package constants

// JobStatus is the canonical status for rows in jobs.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusInProgress JobStatus = "IN_PROGRESS" // created at intake, pipeline not finished
	JobStatusCompleted  JobStatus = "COMPLETED"   // both stages succeeded
	JobStatusFailed     JobStatus = "FAILED"      // terminal failure in any stage
)

// Terminal reports whether no further status transition is allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Stage names a pipeline step for logging and stage error markers.
type Stage string

const (
	StageExtraction Stage = "extraction"
	StageSummary    Stage = "summary"
)
