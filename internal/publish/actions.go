// actions.go: the background task bodies run by the job queue
package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/mousetube/mousetube-go/internal/datastore"
	"github.com/mousetube/mousetube-go/internal/errors"
	"github.com/mousetube/mousetube-go/internal/jobqueue"
	"github.com/mousetube/mousetube-go/internal/mediafile"
)

// ProcessFileAction runs the per-file pipeline: metadata extraction followed
// by deposition preparation. State machine on the file record:
// pending -> processing -> metadata_extracted -> done, error on any failure.
type ProcessFileAction struct {
	service *Service
	FileID  uint
}

func (a *ProcessFileAction) Description() string {
	return fmt.Sprintf("process file %d", a.FileID)
}

func (a *ProcessFileAction) Execute(ctx context.Context, job *jobqueue.Job) error {
	s := a.service

	file, err := s.ds.GetFile(a.FileID)
	if err != nil {
		return err
	}

	file.Status = datastore.FileStatusProcessing
	if err := s.ds.UpdateFileFields(file, "status"); err != nil {
		return err
	}
	job.SetProgress(10)

	// Any failure from here on lands the file in the error state and is
	// re-raised so the queue's retry policy applies.
	failWith := func(cause error) error {
		file.Status = datastore.FileStatusError
		if dbErr := s.ds.UpdateFileFields(file, "status"); dbErr != nil {
			serviceLogger.Error("Failed to persist error status",
				"file_id", file.ID, "error", dbErr)
		}
		s.recordFileProcessed("error")
		serviceLogger.Error("File processing failed",
			"file_id", file.ID, "job_id", job.ID, "error", cause)
		return cause
	}

	if file.RecordingSessionID == nil {
		return failWith(errors.Newf("file %d has no recording session", file.ID).
			Component("publish").
			Category(errors.CategoryValidation).
			Context("file_id", file.ID).
			Build())
	}

	localPath, err := s.resolver.Resolve(file.Link)
	if err != nil {
		return failWith(err)
	}

	extractStart := time.Now()
	changed, err := mediafile.Extract(file, localPath)
	if err != nil {
		return failWith(err)
	}
	if s.metrics != nil {
		s.metrics.ObserveExtractionDuration(time.Since(extractStart).Seconds())
	}
	if len(changed) > 0 {
		if err := s.ds.UpdateFileFields(file, changed...); err != nil {
			return failWith(err)
		}
	}

	file.Status = datastore.FileStatusMetadataExtracted
	if err := s.ds.UpdateFileFields(file, "status"); err != nil {
		return failWith(err)
	}
	job.SetProgress(40)

	session, err := s.ds.GetSession(*file.RecordingSessionID)
	if err != nil {
		return failWith(err)
	}

	adapter, err := s.adapterFor(file, "")
	if err != nil {
		return failWith(err)
	}

	result, err := adapter.PrepareDeposition(ctx, session, file)
	s.recordUploads(result)
	if err != nil {
		return failWith(err)
	}
	job.SetProgress(80)

	// The upload loop may have flipped this very file to error; that outcome
	// wins over the happy path.
	current, err := s.ds.GetFile(file.ID)
	if err != nil {
		return failWith(err)
	}
	if current.Status == datastore.FileStatusError {
		return failWith(errors.Newf("file %d failed during deposition upload", file.ID).
			Component("publish").
			Category(errors.CategoryRepository).
			Context("file_id", file.ID).
			Context("deposition_id", result.DepositionID).
			Build())
	}

	current.Status = datastore.FileStatusDone
	if err := s.ds.UpdateFileFields(current, "status"); err != nil {
		return failWith(err)
	}

	s.recordFileProcessed("success")
	job.SetMessage(fmt.Sprintf("file %d attached to deposition %s", file.ID, result.DepositionID))
	serviceLogger.Info("File processed",
		"file_id", file.ID, "job_id", job.ID, "deposition_id", result.DepositionID)
	return nil
}

// PublishSessionAction publishes a session's deposition and runs the
// validation cascade. Progress checkpoints: 20 after the precondition check,
// 60 after the remote publish call, 90 after the cascade, 100 on completion.
type PublishSessionAction struct {
	service   *Service
	SessionID uint
	Payload   map[string]any
}

func (a *PublishSessionAction) Description() string {
	return fmt.Sprintf("publish session %d", a.SessionID)
}

func (a *PublishSessionAction) Execute(ctx context.Context, job *jobqueue.Job) error {
	s := a.service

	session, err := s.ds.GetSession(a.SessionID)
	if err != nil {
		return err
	}

	files, err := s.ds.SessionFiles(session.ID)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		s.recordPublication("error")
		return errors.Newf("session %d has no files", session.ID).
			Component("publish").
			Category(errors.CategoryValidation).
			Context("session_id", session.ID).
			Build()
	}
	var withDeposition *datastore.File
	for i := range files {
		if files[i].ExternalID != "" {
			withDeposition = &files[i]
			break
		}
	}
	if withDeposition == nil {
		s.recordPublication("error")
		return errors.Newf("session %d has no deposition to publish", session.ID).
			Component("publish").
			Category(errors.CategoryValidation).
			Context("session_id", session.ID).
			Build()
	}
	job.SetProgress(20)

	adapter, err := s.adapterFor(withDeposition, "")
	if err != nil {
		s.recordPublication("error")
		return err
	}

	result, err := adapter.PublishDeposition(ctx, session, a.Payload)
	if err != nil {
		s.recordPublication("error")
		serviceLogger.Error("Session publication failed",
			"session_id", session.ID, "job_id", job.ID, "error", err)
		return err
	}
	job.SetProgress(60)

	if err := s.ds.ValidateSessionGraph(session.ID); err != nil {
		s.recordPublication("error")
		return err
	}
	job.SetProgress(90)

	marked, err := s.ds.MarkValidLinks(session.ID)
	if err != nil {
		s.recordPublication("error")
		return err
	}

	s.recordPublication("success")
	job.SetMessage(fmt.Sprintf("session %d published as %s", session.ID, result.DOI))
	serviceLogger.Info("Session published",
		"session_id", session.ID, "job_id", job.ID,
		"doi", result.DOI, "valid_links", marked)
	return nil
}

// DeleteFileAction removes a file from its remote deposition and then from
// the local catalog. A file that no longer exists locally is a successful
// no-op.
type DeleteFileAction struct {
	service        *Service
	FileID         uint
	RepositoryName string
}

func (a *DeleteFileAction) Description() string {
	return fmt.Sprintf("delete file %d", a.FileID)
}

func (a *DeleteFileAction) Execute(ctx context.Context, job *jobqueue.Job) error {
	s := a.service

	file, err := s.ds.GetFile(a.FileID)
	if err != nil {
		if errors.IsNotFound(err) {
			job.SetMessage(fmt.Sprintf("file %d already deleted", a.FileID))
			return nil
		}
		return err
	}

	adapter, err := s.adapterFor(file, a.RepositoryName)
	if err != nil {
		return err
	}

	if err := adapter.DeleteFile(ctx, file); err != nil {
		return err
	}

	if err := s.ds.DeleteFile(file.ID); err != nil {
		return err
	}

	job.SetMessage(fmt.Sprintf("file %d deleted", a.FileID))
	serviceLogger.Info("File deleted", "file_id", file.ID, "job_id", job.ID)
	return nil
}
