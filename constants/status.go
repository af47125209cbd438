package constants

// JobStatus is the canonical lifecycle status for an OCR job.
type JobStatus string

// Stable values (these exact strings travel on the wire and into the DB).
const (
	JobStatusPending    JobStatus = "pending"    // accepted, not yet picked up
	JobStatusProcessing JobStatus = "processing" // pipeline in progress
	JobStatusCompleted  JobStatus = "completed"  // terminal success
	JobStatusFailed     JobStatus = "failed"     // terminal failure
)
