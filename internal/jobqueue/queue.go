package jobqueue

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mousetube/mousetube-go/internal/conf"
	"github.com/mousetube/mousetube-go/internal/logging"
)

// Package-level logger specific to the jobqueue service
var serviceLogger *slog.Logger

func init() {
	var err error
	logFilePath := filepath.Join("logs", "jobqueue.log")

	serviceLogger, _, err = logging.NewFileLogger(logFilePath, "jobqueue", slog.LevelDebug)
	if err != nil {
		log.Printf("Failed to initialize jobqueue file logger at %s: %v. Service logging disabled.", logFilePath, err)
		serviceLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
}

// defaultJobTimeout bounds a single execution attempt. Uploads of large
// recordings dominate publication jobs, so the bound is generous.
const defaultJobTimeout = 15 * time.Minute

// JobQueue manages a queue of jobs that can be retried
type JobQueue struct {
	jobs               []*Job
	archivedJobs       []*Job // Finished jobs kept for status polling
	mu                 sync.Mutex
	stats              JobStats
	stopCh             chan struct{}
	runningJobs        sync.WaitGroup // Track running jobs for graceful shutdown
	isRunning          bool
	maxArchivedJobs    int // Maximum number of archived jobs to keep
	maxJobs            int // Maximum number of pending jobs in the queue
	jobTimeout         time.Duration
	processCancel      context.CancelFunc
	processingInterval time.Duration
	retryNotifier      func() // Called once per retry attempt, outside the queue lock
}

// SetRetryNotifier installs a callback invoked on every retry attempt. Used
// to feed the retry counter metric.
func (q *JobQueue) SetRetryNotifier(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.retryNotifier = fn
}

// NewJobQueue creates a new job queue with default settings
func NewJobQueue() *JobQueue {
	return NewJobQueueWithOptions(1000, 100)
}

// NewJobQueueWithOptions creates a new job queue with custom settings
func NewJobQueueWithOptions(maxJobs, maxArchivedJobs int) *JobQueue {
	return &JobQueue{
		jobs:               make([]*Job, 0),
		archivedJobs:       make([]*Job, 0),
		stopCh:             make(chan struct{}),
		maxArchivedJobs:    maxArchivedJobs,
		maxJobs:            maxJobs,
		jobTimeout:         defaultJobTimeout,
		processingInterval: 1 * time.Second,
		stats: JobStats{
			ActionStats: make(map[string]ActionStats),
		},
	}
}

// NewFromSettings builds a queue sized from the job configuration.
func NewFromSettings(cfg *conf.JobsConfig) *JobQueue {
	maxJobs := cfg.MaxQueueSize
	if maxJobs <= 0 {
		maxJobs = 1000
	}
	return NewJobQueueWithOptions(maxJobs, 100)
}

// RetryConfigFromSettings maps the job configuration onto a retry policy.
// The pipeline default is a single retry after a short fixed delay.
func RetryConfigFromSettings(cfg *conf.JobsConfig) RetryConfig {
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	delay := time.Duration(cfg.RetryDelay) * time.Second
	if delay <= 0 {
		delay = 10 * time.Second
	}
	return RetryConfig{
		Enabled:      retries > 0,
		MaxRetries:   retries,
		InitialDelay: delay,
		MaxDelay:     5 * time.Minute,
		Multiplier:   2.0,
	}
}

// SetProcessingInterval sets the processing interval, for tests.
func (q *JobQueue) SetProcessingInterval(interval time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.processingInterval = interval
}

// Start starts the job queue processing
func (q *JobQueue) Start() {
	q.StartWithContext(context.Background())
}

// StartWithContext starts the job queue processing with a context
func (q *JobQueue) StartWithContext(ctx context.Context) {
	q.mu.Lock()
	if q.isRunning {
		q.mu.Unlock()
		return
	}
	q.isRunning = true
	q.stopCh = make(chan struct{})
	q.mu.Unlock()

	processCtx, cancel := context.WithCancel(ctx)

	q.mu.Lock()
	q.processCancel = cancel
	q.mu.Unlock()

	go q.processJobs(processCtx)
}

// Stop stops the job queue processing
func (q *JobQueue) Stop() error {
	return q.StopWithTimeout(10 * time.Second)
}

// StopWithTimeout stops the job queue processing, waiting up to timeout for
// running jobs to finish.
func (q *JobQueue) StopWithTimeout(timeout time.Duration) error {
	q.mu.Lock()
	if !q.isRunning {
		q.mu.Unlock()
		return nil
	}
	q.isRunning = false

	if q.processCancel != nil {
		q.processCancel()
		q.processCancel = nil
	}
	close(q.stopCh)
	q.mu.Unlock()

	c := make(chan struct{})
	go func() {
		q.runningJobs.Wait()
		close(c)
	}()

	select {
	case <-c:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timed out waiting for jobs to complete after %v", timeout)
	}
}

// Enqueue adds a job to the queue
func (q *JobQueue) Enqueue(action Action, config RetryConfig) (*Job, error) {
	if action == nil {
		return nil, ErrNilAction
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.isRunning {
		return nil, ErrQueueStopped
	}

	if len(q.jobs) >= q.maxJobs {
		q.stats.DroppedJobs++
		actionType := fmt.Sprintf("%T", action)
		stats := q.stats.ActionStats[actionType]
		stats.Dropped++
		q.stats.ActionStats[actionType] = stats

		return nil, fmt.Errorf("%w: maximum queue size (%d) reached", ErrQueueFull, q.maxJobs)
	}

	job := &Job{
		ID:          uuid.NewString(),
		Action:      action,
		MaxAttempts: config.MaxRetries + 1,
		CreatedAt:   time.Now(),
		NextRetryAt: time.Now(), // Ready to run immediately
		Status:      JobStatusPending,
		Config:      config,
	}

	q.jobs = append(q.jobs, job)
	q.stats.TotalJobs++

	actionType := fmt.Sprintf("%T", action)
	stats := q.stats.ActionStats[actionType]
	stats.TypeName = actionType
	stats.Attempted++
	q.stats.ActionStats[actionType] = stats

	serviceLogger.Debug("Job enqueued",
		"job_id", job.ID, "action", action.Description(), "max_attempts", job.MaxAttempts)
	return job, nil
}

// GetJob returns a snapshot of the job with the given id, searching active
// and archived jobs.
func (q *JobQueue) GetJob(id string) (Snapshot, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, job := range q.jobs {
		if job.ID == id {
			return q.snapshotLocked(job), nil
		}
	}
	for _, job := range q.archivedJobs {
		if job.ID == id {
			return q.snapshotLocked(job), nil
		}
	}
	return Snapshot{}, ErrJobNotFound
}

// snapshotLocked copies a job's visible state. Caller holds q.mu.
func (q *JobQueue) snapshotLocked(job *Job) Snapshot {
	snapshot := Snapshot{
		ID:          job.ID,
		Description: job.Action.Description(),
		State:       job.Status.String(),
		Progress:    job.Progress(),
		Message:     job.Message(),
		Attempts:    job.Attempts,
		MaxAttempts: job.MaxAttempts,
		CreatedAt:   job.CreatedAt,
	}
	if job.LastError != nil {
		snapshot.Error = job.LastError.Error()
	}
	return snapshot
}

// processJobs is the main job processing loop
func (q *JobQueue) processJobs(ctx context.Context) {
	q.mu.Lock()
	interval := q.processingInterval
	q.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-q.stopCh:
			serviceLogger.Info("Job queue processing stopped via stop channel")
			return
		case <-ctx.Done():
			serviceLogger.Info("Job queue processing stopped via context", "error", ctx.Err())
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			q.archiveFinishedJobs()
			q.processDueJobs(ctx)
		}
	}
}

// archiveFinishedJobs moves completed and failed jobs to the archive, where
// they stay available for status polling.
func (q *JobQueue) archiveFinishedJobs() {
	q.mu.Lock()
	defer q.mu.Unlock()

	var activeJobs []*Job
	var finishedJobs []*Job

	for _, job := range q.jobs {
		if job.Status == JobStatusCompleted || job.Status == JobStatusFailed {
			finishedJobs = append(finishedJobs, job)
		} else {
			activeJobs = append(activeJobs, job)
		}
	}

	q.jobs = activeJobs
	q.archivedJobs = append(q.archivedJobs, finishedJobs...)
	if len(q.archivedJobs) > q.maxArchivedJobs {
		excess := len(q.archivedJobs) - q.maxArchivedJobs
		q.archivedJobs = q.archivedJobs[excess:]
	}
	q.stats.ArchivedJobs = len(q.archivedJobs)
}

// calculateBackoffDelay calculates the delay before the next retry attempt
func calculateBackoffDelay(config RetryConfig, attemptNum int) time.Duration {
	backoff := float64(config.InitialDelay) * math.Pow(config.Multiplier, float64(attemptNum-1))

	// Add some jitter (+/-10%)
	jitterFactor := 0.9 + 0.2*float64(time.Now().Nanosecond())/1e9
	backoff *= jitterFactor

	if backoff > float64(config.MaxDelay) {
		backoff = float64(config.MaxDelay)
	}
	return time.Duration(backoff)
}

// processDueJobs processes jobs that are due for execution
func (q *JobQueue) processDueJobs(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	q.mu.Lock()
	var dueJobs []*Job
	now := time.Now()
	for _, job := range q.jobs {
		if (job.Status == JobStatusPending || job.Status == JobStatusRetrying) && !job.NextRetryAt.After(now) {
			dueJobs = append(dueJobs, job)
			job.Status = JobStatusRunning
		}
	}
	q.mu.Unlock()

	for _, job := range dueJobs {
		if ctx.Err() != nil {
			q.mu.Lock()
			for _, j := range dueJobs {
				if j.Status == JobStatusRunning {
					if j.Attempts > 0 {
						j.Status = JobStatusRetrying
					} else {
						j.Status = JobStatusPending
					}
				}
			}
			q.mu.Unlock()
			return
		}

		q.runningJobs.Add(1)
		go func(j *Job) {
			defer q.runningJobs.Done()
			q.executeJob(ctx, j)
		}(job)
	}
}

// executeJob executes a job and handles retries if needed
func (q *JobQueue) executeJob(ctx context.Context, job *Job) {
	job.Attempts++

	actionType := fmt.Sprintf("%T", job.Action)
	if job.Attempts > 1 {
		q.mu.Lock()
		q.stats.RetryAttempts++
		stats := q.stats.ActionStats[actionType]
		stats.Retried++
		q.stats.ActionStats[actionType] = stats
		notify := q.retryNotifier
		q.mu.Unlock()

		if notify != nil {
			notify()
		}

		serviceLogger.Info("Retrying job",
			"job_id", job.ID, "action", job.Action.Description(),
			"attempt", job.Attempts, "max_attempts", job.MaxAttempts)
	}

	execCtx, cancel := context.WithTimeout(ctx, q.jobTimeout)
	defer cancel()

	// Buffered so the action goroutine can always deliver its result, even
	// after the timeout branch has stopped listening.
	done := make(chan error, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("job execution panicked: %v", r)
			}
		}()
		done <- job.Action.Execute(execCtx, job)
	}()

	var err error
	select {
	case err = <-done:
	case <-execCtx.Done():
		if execCtx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("job execution timed out after %v: %w", q.jobTimeout, execCtx.Err())
		} else {
			err = fmt.Errorf("job execution was cancelled: %w", execCtx.Err())
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err != nil {
		job.LastError = err

		if !job.Config.Enabled || job.Attempts >= job.MaxAttempts {
			job.Status = JobStatusFailed

			q.stats.FailedJobs++
			stats := q.stats.ActionStats[actionType]
			stats.Failed++
			q.stats.ActionStats[actionType] = stats

			serviceLogger.Error("Job permanently failed",
				"job_id", job.ID, "action", job.Action.Description(),
				"attempts", job.Attempts, "error", err)
			return
		}

		job.Status = JobStatusRetrying
		delay := calculateBackoffDelay(job.Config, job.Attempts)
		job.NextRetryAt = time.Now().Add(delay)

		serviceLogger.Warn("Job failed, scheduling retry",
			"job_id", job.ID, "action", job.Action.Description(),
			"retry_in", delay, "attempt", job.Attempts, "max_attempts", job.MaxAttempts,
			"error", err)
		return
	}

	job.Status = JobStatusCompleted
	job.SetProgress(100)

	q.stats.SuccessfulJobs++
	stats := q.stats.ActionStats[actionType]
	stats.Successful++
	q.stats.ActionStats[actionType] = stats

	serviceLogger.Info("Job completed",
		"job_id", job.ID, "action", job.Action.Description(), "attempts", job.Attempts)
}

// GetStats returns a snapshot of the current job statistics
func (q *JobQueue) GetStats() StatsSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	actionStatsCopy := make(map[string]ActionStats, len(q.stats.ActionStats))
	for k, v := range q.stats.ActionStats {
		actionStatsCopy[k] = v
	}

	pending := 0
	for _, job := range q.jobs {
		if job.Status == JobStatusPending || job.Status == JobStatusRetrying {
			pending++
		}
	}

	return StatsSnapshot{
		TotalJobs:      q.stats.TotalJobs,
		SuccessfulJobs: q.stats.SuccessfulJobs,
		FailedJobs:     q.stats.FailedJobs,
		ArchivedJobs:   q.stats.ArchivedJobs,
		DroppedJobs:    q.stats.DroppedJobs,
		RetryAttempts:  q.stats.RetryAttempts,
		PendingJobs:    pending,
		MaxQueueSize:   q.maxJobs,
		ActionStats:    actionStatsCopy,
	}
}

// ProcessImmediately processes any due jobs without waiting for the ticker.
// Intended for tests.
func (q *JobQueue) ProcessImmediately(ctx context.Context) {
	q.archiveFinishedJobs()
	q.processDueJobs(ctx)
}
