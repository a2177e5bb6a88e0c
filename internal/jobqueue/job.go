// Package jobqueue provides a background job queue with retry capabilities
// for the publication pipeline. Jobs report coarse status plus a 0-100
// progress value so HTTP clients can poll long-running publications.
package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/mousetube/mousetube-go/internal/errors"
)

// Common errors returned by job queue operations
var (
	ErrNilAction    = errors.NewStd("cannot enqueue nil action")
	ErrQueueStopped = errors.NewStd("job queue has been stopped")
	ErrJobNotFound  = errors.NewStd("job not found in queue")
	ErrQueueFull    = errors.NewStd("job queue is full")
)

// RetryConfig holds the retry behavior of an action
type RetryConfig struct {
	Enabled      bool          // Whether retry is enabled for this action
	MaxRetries   int           // Maximum number of retry attempts
	InitialDelay time.Duration // Delay before the first retry
	MaxDelay     time.Duration // Maximum delay between retries
	Multiplier   float64       // Backoff multiplier for each subsequent retry
}

// Action is a unit of work the queue can execute. Execute receives the job so
// long-running actions can report progress through it.
type Action interface {
	Execute(ctx context.Context, job *Job) error
	Description() string
}

// JobStatus represents the current status of a job in the queue
type JobStatus int

const (
	// JobStatusPending indicates the job is waiting to be executed
	JobStatusPending JobStatus = iota
	// JobStatusRunning indicates the job is currently being executed
	JobStatusRunning
	// JobStatusCompleted indicates the job has completed successfully
	JobStatusCompleted
	// JobStatusFailed indicates the job has failed and will not be retried
	JobStatusFailed
	// JobStatusRetrying indicates the job has failed but will be retried
	JobStatusRetrying
)

func (s JobStatus) String() string {
	switch s {
	case JobStatusPending:
		return "queued"
	case JobStatusRunning:
		return "started"
	case JobStatusCompleted:
		return "success"
	case JobStatusFailed:
		return "failure"
	case JobStatusRetrying:
		return "retrying"
	default:
		return "unknown"
	}
}

// Job represents a unit of work in the queue. Status, attempts and error
// fields are guarded by the queue mutex; progress and message have their own
// lock so a running action can update them without touching queue state.
type Job struct {
	ID          string    // Unique ID for this job
	Action      Action    // The action to execute
	Attempts    int       // Number of attempts made so far
	MaxAttempts int       // Maximum number of attempts allowed
	CreatedAt   time.Time // When the job was created
	NextRetryAt time.Time // When to next attempt the job
	Status      JobStatus // Current status of the job
	LastError   error     // Last error encountered
	Config      RetryConfig

	progressMu sync.Mutex
	progress   int
	message    string
}

// SetProgress records a progress checkpoint, clamped to 0-100.
func (j *Job) SetProgress(progress int) {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	j.progressMu.Lock()
	j.progress = progress
	j.progressMu.Unlock()
}

// SetMessage records a human-readable completion or progress message.
func (j *Job) SetMessage(message string) {
	j.progressMu.Lock()
	j.message = message
	j.progressMu.Unlock()
}

// Progress returns the last reported progress value.
func (j *Job) Progress() int {
	j.progressMu.Lock()
	defer j.progressMu.Unlock()
	return j.progress
}

// Message returns the last reported message.
func (j *Job) Message() string {
	j.progressMu.Lock()
	defer j.progressMu.Unlock()
	return j.message
}

// Snapshot is a point-in-time copy of a job's externally visible state, the
// shape served by the job-status endpoint.
type Snapshot struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	State       string    `json:"state"`
	Progress    int       `json:"progress"`
	Message     string    `json:"message,omitempty"`
	Error       string    `json:"error,omitempty"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	CreatedAt   time.Time `json:"created_at"`
}

// JobStats tracks statistics about job processing
type JobStats struct {
	TotalJobs      int
	SuccessfulJobs int
	FailedJobs     int
	ArchivedJobs   int
	DroppedJobs    int
	RetryAttempts  int
	ActionStats    map[string]ActionStats // Key is the type name of the action
}

// StatsSnapshot provides a point-in-time snapshot of job statistics
type StatsSnapshot struct {
	TotalJobs      int
	SuccessfulJobs int
	FailedJobs     int
	ArchivedJobs   int
	DroppedJobs    int
	RetryAttempts  int
	PendingJobs    int
	MaxQueueSize   int
	ActionStats    map[string]ActionStats
}

// ActionStats tracks statistics for a specific action type
type ActionStats struct {
	TypeName   string
	Attempted  int
	Successful int
	Failed     int
	Retried    int
	Dropped    int
}
