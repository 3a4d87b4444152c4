package model

import "time"

// JobName identifies one of the batch jobs.
type JobName string

const (
	JobSeedWeights JobName = "seed_weights"
	JobPeerGroups  JobName = "peer_groups"
	JobNormalize   JobName = "normalize"
	JobScore       JobName = "score"
	JobBenchmarks  JobName = "benchmarks"
)

// JobStatus is the lifecycle state of a job run.
type JobStatus string

const (
	JobStatusRunning  JobStatus = "running"
	JobStatusComplete JobStatus = "complete"
	JobStatusFailed   JobStatus = "failed"
)

// JobRun records one execution of a batch job.
type JobRun struct {
	ID          string         `json:"id"`
	Job         JobName        `json:"job"`
	Status      JobStatus      `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	RowsWritten int64          `json:"rows_written"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}
