// Package zenodo implements the Zenodo repository adapter: draft deposition
// management, file uploads and publication against the Zenodo deposit API.
package zenodo

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mousetube/mousetube-go/internal/conf"
	"github.com/mousetube/mousetube-go/internal/datastore"
	"github.com/mousetube/mousetube-go/internal/errors"
	"github.com/mousetube/mousetube-go/internal/mediapath"
	"github.com/mousetube/mousetube-go/internal/repository"
)

// RepositoryName is the canonical name of the Zenodo repository row.
const RepositoryName = "Zenodo"

// Adapter implements repository.Adapter against the Zenodo deposit API.
type Adapter struct {
	settings *conf.Settings
	ds       datastore.Interface
	resolver *mediapath.Resolver
	client   *Client
}

var _ repository.Adapter = (*Adapter)(nil)
var _ repository.SchemaProvider = (*Adapter)(nil)

// New creates the Zenodo adapter.
func New(settings *conf.Settings, ds datastore.Interface, resolver *mediapath.Resolver) *Adapter {
	return &Adapter{
		settings: settings,
		ds:       ds,
		resolver: resolver,
		client:   NewClient(&settings.Publication.Zenodo),
	}
}

// Name returns the canonical repository name.
func (a *Adapter) Name() string { return RepositoryName }

// BuildMetadataPayload assembles the deposition metadata for a session.
func (a *Adapter) BuildMetadataPayload(session *datastore.RecordingSession, files []datastore.File) (map[string]any, error) {
	profile := a.ownerProfile(files)
	return buildMetadata(session, files, a.settings.Publication.Zenodo.Community, profile), nil
}

// PrepareDeposition creates or reuses a draft deposition for the session and
// uploads every eligible file into it. Per-file failures are recorded in the
// returned outcome list and on the file's status; they never abort the batch.
// Draft creation is serialized through the per-session deposition claim so
// concurrent first uploads cannot each create a remote draft.
func (a *Adapter) PrepareDeposition(ctx context.Context, session *datastore.RecordingSession, triggering *datastore.File) (*repository.PrepareResult, error) {
	eligible, err := a.ds.EligibleFiles(session.ID)
	if err != nil {
		return nil, err
	}
	if triggering != nil && !containsFile(eligible, triggering.ID) {
		eligible = append(eligible, *triggering)
	}
	if len(eligible) == 0 {
		return nil, errors.Newf("no valid files for session %d", session.ID).
			Component("zenodo").
			Category(errors.CategoryValidation).
			Context("session_id", session.ID).
			Build()
	}

	repo, err := a.ds.GetOrCreateRepository(RepositoryName)
	if err != nil {
		return nil, err
	}
	// The repository row's own API URL wins over the configured one, so an
	// instance move only needs a database update.
	if repo.APIURL != "" {
		a.client.APIURL = strings.TrimRight(repo.APIURL, "/")
	}

	depositionID, err := a.resolveDepositionID(ctx, session, eligible)
	if err != nil {
		return nil, err
	}

	result := &repository.PrepareResult{DepositionID: depositionID}
	for i := range eligible {
		file := &eligible[i]
		if file.ExternalID == depositionID {
			// Already uploaded by an earlier invocation; never re-upload.
			result.Outcomes = append(result.Outcomes, repository.UploadOutcome{
				FileID:   file.ID,
				Filename: file.Name,
				Uploaded: true,
			})
			continue
		}
		result.Outcomes = append(result.Outcomes, a.uploadOne(ctx, file, repo, depositionID))
	}

	// Staging copies under the temp root are removed regardless of how the
	// uploads went.
	a.cleanupTempFiles(eligible)

	payload, err := a.BuildMetadataPayload(session, eligible)
	if err != nil {
		return nil, err
	}
	if err := a.client.PutMetadata(ctx, depositionID, payload); err != nil {
		return nil, err
	}

	serviceLogger.Info("Deposition prepared",
		"session_id", session.ID,
		"deposition_id", depositionID,
		"files_total", len(result.Outcomes),
		"files_uploaded", result.Uploaded())
	return result, nil
}

// resolveDepositionID finds the deposition to add files to: an id already
// stamped on an eligible file wins, otherwise the per-session claim decides
// who creates the remote draft.
func (a *Adapter) resolveDepositionID(ctx context.Context, session *datastore.RecordingSession, eligible []datastore.File) (string, error) {
	for i := range eligible {
		if eligible[i].RepositoryID != nil && eligible[i].ExternalID != "" {
			return eligible[i].ExternalID, nil
		}
	}

	claim, acquired, err := a.ds.AcquireDepositionClaim(session.ID)
	if err != nil {
		return "", err
	}
	if !acquired {
		if claim.DepositionID != "" {
			return claim.DepositionID, nil
		}
		// Another worker holds the claim. It either records the remote id or
		// releases the claim on failure, so a retried job resolves either way.
		return "", errors.Newf("deposition creation for session %d already in progress", session.ID).
			Component("zenodo").
			Category(errors.CategoryState).
			Context("session_id", session.ID).
			Build()
	}

	deposition, err := a.client.CreateDeposition(ctx)
	if err != nil {
		a.releaseClaim(session.ID)
		return "", err
	}
	depositionID := strconv.FormatInt(deposition.ID, 10)
	if err := a.ds.SetClaimDeposition(session.ID, depositionID); err != nil {
		a.releaseClaim(session.ID)
		return "", err
	}
	serviceLogger.Info("Created draft deposition",
		"session_id", session.ID, "deposition_id", depositionID)
	return depositionID, nil
}

// releaseClaim frees a won claim whose draft never materialized. Leaving the
// row behind would make every later attempt report the session as in progress.
func (a *Adapter) releaseClaim(sessionID uint) {
	if err := a.ds.ReleaseDepositionClaim(sessionID); err != nil {
		serviceLogger.Error("Failed to release deposition claim",
			"session_id", sessionID, "error", err)
	}
}

// uploadOne pushes a single file into the deposition and tags the local
// record. Failures mark the file status error and are reported in the outcome.
func (a *Adapter) uploadOne(ctx context.Context, file *datastore.File, repo *datastore.Repository, depositionID string) repository.UploadOutcome {
	outcome := repository.UploadOutcome{FileID: file.ID, Filename: file.Name}

	fail := func(err error) repository.UploadOutcome {
		serviceLogger.Warn("File upload failed",
			"file_id", file.ID, "deposition_id", depositionID, "error", err)
		file.Status = datastore.FileStatusError
		if dbErr := a.ds.UpdateFileFields(file, "status"); dbErr != nil {
			serviceLogger.Error("Failed to persist error status", "file_id", file.ID, "error", dbErr)
		}
		outcome.Err = err
		return outcome
	}

	localPath, err := a.resolver.Resolve(file.Link)
	if err != nil {
		return fail(err)
	}
	stat, err := os.Stat(localPath)
	if err != nil {
		return fail(errors.New(err).
			Component("zenodo").
			Category(errors.CategoryFileIO).
			FileContext(localPath, 0).
			Build())
	}
	if stat.Size() == 0 {
		return fail(errors.Newf("file is empty: %s", localPath).
			Component("zenodo").
			Category(errors.CategoryValidation).
			FileContext(localPath, 0).
			Build())
	}

	filename := sanitizeFilename(file.Name)
	if filename == "" || filename == "_" {
		filename = sanitizeFilename(stat.Name())
	}
	outcome.Filename = filename

	if _, err := a.client.UploadFile(ctx, depositionID, filename, localPath); err != nil {
		return fail(err)
	}

	file.RepositoryID = &repo.ID
	file.ExternalID = depositionID
	if err := a.ds.UpdateFileFields(file, "repository_id", "external_id"); err != nil {
		return fail(err)
	}
	outcome.Uploaded = true
	return outcome
}

// cleanupTempFiles removes staging copies that live under the temp root.
func (a *Adapter) cleanupTempFiles(files []datastore.File) {
	for i := range files {
		localPath, err := a.resolver.Resolve(files[i].Link)
		if err != nil || !a.resolver.IsTempPath(localPath) {
			continue
		}
		if err := os.Remove(localPath); err != nil && !os.IsNotExist(err) {
			serviceLogger.Warn("Failed to remove staging copy", "path", localPath, "error", err)
		}
	}
}

// PublishDeposition publishes the session's deposition, then stamps the
// minted DOI and external links onto every local file tied to it. Files that
// already carry their own DOI keep it; if such a file points at a different
// archive its repository reference is detached instead.
func (a *Adapter) PublishDeposition(ctx context.Context, session *datastore.RecordingSession, payload map[string]any) (*repository.PublishResult, error) {
	files, err := a.ds.SessionFiles(session.ID)
	if err != nil {
		return nil, err
	}

	depositionID := ""
	for i := range files {
		if files[i].ExternalID != "" {
			depositionID = files[i].ExternalID
			break
		}
	}
	if depositionID == "" {
		return nil, errors.Newf("session %d has no deposition to publish", session.ID).
			Component("zenodo").
			Category(errors.CategoryValidation).
			Context("session_id", session.ID).
			Build()
	}

	if payload != nil {
		if err := a.client.PutMetadata(ctx, depositionID, payload); err != nil {
			return nil, err
		}
	}

	published, err := a.client.Publish(ctx, depositionID)
	if err != nil {
		return nil, err
	}
	doi := published.DOI
	if doi == "" {
		doi = published.Metadata.DOI
	}
	if doi == "" {
		return nil, errors.Newf("publish returned no identifier for deposition %s", depositionID).
			Component("zenodo").
			Category(errors.CategoryHTTP).
			Context("deposition_id", depositionID).
			Build()
	}

	recordID := strconv.FormatInt(published.ID, 10)
	baseURL := a.client.BaseURL()
	recordURL := fmt.Sprintf("%s/records/%s", baseURL, recordID)

	for i := range files {
		file := &files[i]
		if file.ExternalID != depositionID {
			continue
		}
		if file.DOI == "" {
			file.DOI = doi
			file.Link = fmt.Sprintf("%s/records/%s/files/%s?download=1", baseURL, recordID, sanitizeFilename(file.Name))
			file.ExternalURL = recordURL
			if err := a.ds.UpdateFileFields(file, "doi", "link", "external_url"); err != nil {
				return nil, err
			}
			continue
		}
		// Already DOI-bearing: its identifiers are immutable. A link pointing
		// outside this archive means the repository tag is stale.
		if !strings.HasPrefix(file.Link, baseURL) {
			file.RepositoryID = nil
			if err := a.ds.UpdateFileFields(file, "repository_id"); err != nil {
				return nil, err
			}
		}
	}

	serviceLogger.Info("Deposition published",
		"session_id", session.ID, "deposition_id", depositionID, "doi", doi)
	return &repository.PublishResult{DOI: doi, RecordID: recordID, RecordURL: recordURL}, nil
}

// DeleteFile removes a file from its remote deposition. A file that is
// already gone remotely is a successful no-op.
func (a *Adapter) DeleteFile(ctx context.Context, file *datastore.File) error {
	if file.ExternalID == "" {
		return nil
	}

	remote, err := a.client.ListFiles(ctx, file.ExternalID)
	if err != nil {
		return err
	}

	wanted := sanitizeFilename(file.Name)
	for i := range remote {
		if remote[i].Filename == wanted || remote[i].Filename == file.Name {
			return a.client.DeleteFile(ctx, file.ExternalID, remote[i].ID)
		}
	}
	serviceLogger.Debug("File not present in deposition, nothing to delete",
		"file_id", file.ID, "deposition_id", file.ExternalID)
	return nil
}

// MetadataSchema describes the metadata fields accepted by Zenodo, consumed
// by clients for form generation.
func (a *Adapter) MetadataSchema() map[string]any {
	return metadataSchema
}

func (a *Adapter) ownerProfile(files []datastore.File) *datastore.UserProfile {
	for i := range files {
		if files[i].CreatedByID == nil {
			continue
		}
		profile, err := a.ds.GetUserProfile(*files[i].CreatedByID)
		if err != nil {
			serviceLogger.Debug("No profile for file owner",
				"file_id", files[i].ID, "user_id", *files[i].CreatedByID, "error", err)
			return nil
		}
		return profile
	}
	return nil
}

func containsFile(files []datastore.File, id uint) bool {
	for i := range files {
		if files[i].ID == id {
			return true
		}
	}
	return false
}
