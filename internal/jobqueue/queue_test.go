package jobqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mousetube/mousetube-go/internal/conf"
	"github.com/mousetube/mousetube-go/internal/errors"
)

// testAction fails a configurable number of times before succeeding.
type testAction struct {
	mu         sync.Mutex
	executions int
	failures   int
	progress   int
}

func (a *testAction) Execute(_ context.Context, job *Job) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.executions++
	if a.progress > 0 {
		job.SetProgress(a.progress)
		job.SetMessage("working")
	}
	if a.executions <= a.failures {
		return errors.NewStd("transient failure")
	}
	return nil
}

func (a *testAction) Description() string { return "test action" }

func (a *testAction) executed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.executions
}

func newRunningQueue(t *testing.T) *JobQueue {
	t.Helper()
	q := NewJobQueueWithOptions(10, 10)
	q.SetProcessingInterval(10 * time.Millisecond)
	q.Start()
	t.Cleanup(func() { _ = q.StopWithTimeout(time.Second) })
	return q
}

func waitForState(t *testing.T, q *JobQueue, jobID, state string) Snapshot {
	t.Helper()
	var snapshot Snapshot
	require.Eventually(t, func() bool {
		var err error
		snapshot, err = q.GetJob(jobID)
		return err == nil && snapshot.State == state
	}, 2*time.Second, 10*time.Millisecond, "job never reached state %s", state)
	return snapshot
}

func TestEnqueueAndComplete(t *testing.T) {
	q := newRunningQueue(t)
	action := &testAction{progress: 40}

	job, err := q.Enqueue(action, RetryConfig{})
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)

	snapshot := waitForState(t, q, job.ID, "success")
	assert.Equal(t, 1, action.executed())
	assert.Equal(t, 100, snapshot.Progress, "completion forces progress to 100")
	assert.Equal(t, 1, snapshot.Attempts)
}

func TestRetryThenSucceed(t *testing.T) {
	q := newRunningQueue(t)
	action := &testAction{failures: 1}

	config := RetryConfig{
		Enabled:      true,
		MaxRetries:   2,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		Multiplier:   2.0,
	}
	job, err := q.Enqueue(action, config)
	require.NoError(t, err)

	snapshot := waitForState(t, q, job.ID, "success")
	assert.Equal(t, 2, action.executed())
	assert.Equal(t, 2, snapshot.Attempts)

	stats := q.GetStats()
	assert.Equal(t, 1, stats.SuccessfulJobs)
	assert.Equal(t, 1, stats.RetryAttempts)
}

func TestRetryNotifierFiresPerRetry(t *testing.T) {
	q := newRunningQueue(t)

	var mu sync.Mutex
	notified := 0
	q.SetRetryNotifier(func() {
		mu.Lock()
		notified++
		mu.Unlock()
	})

	action := &testAction{failures: 1}
	config := RetryConfig{
		Enabled:      true,
		MaxRetries:   2,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		Multiplier:   2.0,
	}
	job, err := q.Enqueue(action, config)
	require.NoError(t, err)

	waitForState(t, q, job.ID, "success")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, notified, "one retry means one notification")
}

// stuckAction never returns on its own; only the queue timeout frees the job.
type stuckAction struct {
	release chan struct{}
}

func (a *stuckAction) Execute(context.Context, *Job) error {
	<-a.release
	return nil
}

func (a *stuckAction) Description() string { return "stuck action" }

func TestJobTimesOut(t *testing.T) {
	q := NewJobQueueWithOptions(10, 10)
	q.SetProcessingInterval(10 * time.Millisecond)
	q.jobTimeout = 50 * time.Millisecond
	q.Start()
	t.Cleanup(func() { _ = q.StopWithTimeout(time.Second) })

	action := &stuckAction{release: make(chan struct{})}
	t.Cleanup(func() { close(action.release) })

	job, err := q.Enqueue(action, RetryConfig{})
	require.NoError(t, err)

	snapshot := waitForState(t, q, job.ID, "failure")
	assert.Contains(t, snapshot.Error, "timed out")
}

func TestPermanentFailureAfterRetries(t *testing.T) {
	q := newRunningQueue(t)
	action := &testAction{failures: 10}

	config := RetryConfig{
		Enabled:      true,
		MaxRetries:   1,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		Multiplier:   2.0,
	}
	job, err := q.Enqueue(action, config)
	require.NoError(t, err)

	snapshot := waitForState(t, q, job.ID, "failure")
	assert.Equal(t, 2, action.executed(), "one retry means two attempts total")
	assert.Contains(t, snapshot.Error, "transient failure")
}

func TestNoRetryWhenDisabled(t *testing.T) {
	q := newRunningQueue(t)
	action := &testAction{failures: 10}

	job, err := q.Enqueue(action, RetryConfig{Enabled: false})
	require.NoError(t, err)

	waitForState(t, q, job.ID, "failure")
	assert.Equal(t, 1, action.executed())
}

func TestGetJobSurvivesArchiving(t *testing.T) {
	q := newRunningQueue(t)
	job, err := q.Enqueue(&testAction{}, RetryConfig{})
	require.NoError(t, err)

	waitForState(t, q, job.ID, "success")

	// Let the archiver run, then the snapshot must still resolve.
	time.Sleep(50 * time.Millisecond)
	snapshot, err := q.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, "success", snapshot.State)
}

func TestGetJobUnknownID(t *testing.T) {
	q := newRunningQueue(t)
	_, err := q.GetJob("no-such-job")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestEnqueueOnStoppedQueue(t *testing.T) {
	q := NewJobQueueWithOptions(10, 10)
	_, err := q.Enqueue(&testAction{}, RetryConfig{})
	assert.ErrorIs(t, err, ErrQueueStopped)
}

func TestEnqueueNilAction(t *testing.T) {
	q := newRunningQueue(t)
	_, err := q.Enqueue(nil, RetryConfig{})
	assert.ErrorIs(t, err, ErrNilAction)
}

func TestQueueFull(t *testing.T) {
	q := NewJobQueueWithOptions(1, 10)
	q.SetProcessingInterval(time.Hour) // keep jobs pending
	q.Start()
	t.Cleanup(func() { _ = q.StopWithTimeout(time.Second) })

	_, err := q.Enqueue(&testAction{}, RetryConfig{})
	require.NoError(t, err)

	_, err = q.Enqueue(&testAction{}, RetryConfig{})
	assert.ErrorIs(t, err, ErrQueueFull)

	stats := q.GetStats()
	assert.Equal(t, 1, stats.DroppedJobs)
}

func TestRetryConfigFromSettings(t *testing.T) {
	cfg := &conf.JobsConfig{MaxRetries: 1, RetryDelay: 10}
	rc := RetryConfigFromSettings(cfg)

	assert.True(t, rc.Enabled)
	assert.Equal(t, 1, rc.MaxRetries)
	assert.Equal(t, 10*time.Second, rc.InitialDelay)

	disabled := RetryConfigFromSettings(&conf.JobsConfig{MaxRetries: 0, RetryDelay: 10})
	assert.False(t, disabled.Enabled)
}

func TestCalculateBackoffDelay(t *testing.T) {
	config := RetryConfig{
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}

	first := calculateBackoffDelay(config, 1)
	assert.InDelta(t, float64(time.Second), float64(first), float64(200*time.Millisecond))

	second := calculateBackoffDelay(config, 2)
	assert.InDelta(t, float64(2*time.Second), float64(second), float64(400*time.Millisecond))

	capped := calculateBackoffDelay(config, 20)
	assert.LessOrEqual(t, capped, 10*time.Second)
}
