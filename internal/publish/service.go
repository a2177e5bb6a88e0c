// Package publish orchestrates the background tasks of the publication
// pipeline: per-file processing, session publication and file deletion.
package publish

import (
	"io"
	"log"
	"log/slog"
	"path/filepath"

	"github.com/mousetube/mousetube-go/internal/conf"
	"github.com/mousetube/mousetube-go/internal/datastore"
	"github.com/mousetube/mousetube-go/internal/jobqueue"
	"github.com/mousetube/mousetube-go/internal/logging"
	"github.com/mousetube/mousetube-go/internal/mediapath"
	"github.com/mousetube/mousetube-go/internal/observability/metrics"
	"github.com/mousetube/mousetube-go/internal/repository"
)

// Package-level logger specific to the publish service
var serviceLogger *slog.Logger

func init() {
	var err error
	logFilePath := filepath.Join("logs", "publish.log")

	serviceLogger, _, err = logging.NewFileLogger(logFilePath, "publish", slog.LevelDebug)
	if err != nil {
		log.Printf("Failed to initialize publish file logger at %s: %v. Service logging disabled.", logFilePath, err)
		serviceLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
}

// Service ties the task actions to the job queue. Workers and HTTP handlers
// share no in-process state beyond this; all pipeline state lives in the
// datastore and the job snapshots.
type Service struct {
	settings *conf.Settings
	ds       datastore.Interface
	registry *repository.Registry
	queue    *jobqueue.JobQueue
	resolver *mediapath.Resolver
	metrics  *metrics.PipelineMetrics
	retry    jobqueue.RetryConfig
}

// NewService creates the publication task service. metrics may be nil.
func NewService(settings *conf.Settings, ds datastore.Interface, registry *repository.Registry, queue *jobqueue.JobQueue, pipelineMetrics *metrics.PipelineMetrics) *Service {
	if pipelineMetrics != nil {
		queue.SetRetryNotifier(pipelineMetrics.RecordJobRetry)
	}
	return &Service{
		settings: settings,
		ds:       ds,
		registry: registry,
		queue:    queue,
		resolver: mediapath.NewResolver(&settings.Media),
		metrics:  pipelineMetrics,
		retry:    jobqueue.RetryConfigFromSettings(&settings.Publication.Jobs),
	}
}

// EnqueueProcessFile schedules the per-file processing task.
func (s *Service) EnqueueProcessFile(fileID uint) (*jobqueue.Job, error) {
	return s.queue.Enqueue(&ProcessFileAction{service: s, FileID: fileID}, s.retry)
}

// EnqueuePublishSession schedules the session publication task. The optional
// payload overrides the deposition metadata before publishing.
func (s *Service) EnqueuePublishSession(sessionID uint, payload map[string]any) (*jobqueue.Job, error) {
	return s.queue.Enqueue(&PublishSessionAction{service: s, SessionID: sessionID, Payload: payload}, s.retry)
}

// EnqueueDeleteFile schedules the file deletion task. repositoryName
// overrides the file's own repository when it has none.
func (s *Service) EnqueueDeleteFile(fileID uint, repositoryName string) (*jobqueue.Job, error) {
	return s.queue.Enqueue(&DeleteFileAction{service: s, FileID: fileID, RepositoryName: repositoryName}, s.retry)
}

// Job returns the status snapshot for a job id.
func (s *Service) Job(id string) (jobqueue.Snapshot, error) {
	return s.queue.GetJob(id)
}

// Stats exposes the queue's processing counters.
func (s *Service) Stats() jobqueue.StatsSnapshot {
	return s.queue.GetStats()
}

// adapterFor resolves the adapter for a file, falling back to the default
// repository when neither the file nor the caller names one.
func (s *Service) adapterFor(file *datastore.File, override string) (repository.Adapter, error) {
	name := override
	if name == "" && file != nil && file.Repository != nil {
		name = file.Repository.Name
	}
	if name == "" {
		name = defaultRepository
	}
	return s.registry.Lookup(name)
}

// defaultRepository is where sessions publish unless a file says otherwise.
const defaultRepository = "zenodo"

func (s *Service) recordFileProcessed(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordFileProcessed(outcome)
	}
}

func (s *Service) recordPublication(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordPublication(outcome)
	}
}

func (s *Service) recordUploads(result *repository.PrepareResult) {
	if s.metrics == nil || result == nil {
		return
	}
	for i := range result.Outcomes {
		if result.Outcomes[i].Uploaded {
			s.metrics.RecordUpload("success")
		} else {
			s.metrics.RecordUpload("error")
		}
	}
}
