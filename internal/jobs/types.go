package jobs

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrQueueClosed is returned when publishing to or starting a stopped queue.
	ErrQueueClosed = errors.New("queue is closed")
	// ErrJobNotFound is returned when a job id is unknown to the store.
	ErrJobNotFound = errors.New("job not found")
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeArchiveTurns archives one assistant exchange.
	JobTypeArchiveTurns JobType = "archive_turns"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusRetrying  JobStatus = "retrying"
)

// DefaultMaxRetries is used when a published job does not set MaxRetries.
const DefaultMaxRetries = 3

// ArchiveTurnsJob carries one completed exchange (the user query and the
// assistant response) to the archive sinks.
type ArchiveTurnsJob struct {
	JobID string `json:"job_id"`

	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	Intent    string    `json:"intent,omitempty"`
	Matched   bool      `json:"matched"`
	TurnIndex int       `json:"turn_index"`
	At        time.Time `json:"at"`

	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	RetryCount  int        `json:"retry_count"`
	MaxRetries  int        `json:"max_retries"`
}

// Job is a generic interface for all job types.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *ArchiveTurnsJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *ArchiveTurnsJob) GetType() JobType {
	return JobTypeArchiveTurns
}

// GetStatus implements the Job interface.
func (j *ArchiveTurnsJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// PublishArchiveTurns enqueues an exchange for archiving.
	PublishArchiveTurns(ctx context.Context, job *ArchiveTurnsJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler is a function that processes a job.
// It should return an error if the job failed and should be retried.
type JobHandler func(ctx context.Context, job Job) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	SaveJob(ctx context.Context, job *ArchiveTurnsJob) error

	// GetJob returns ErrJobNotFound for unknown ids.
	GetJob(ctx context.Context, jobID string) (*ArchiveTurnsJob, error)

	// ListJobs returns jobs oldest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*ArchiveTurnsJob, error)

	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	SessionID string
	Status    JobStatus
	Limit     int
	Offset    int
}
