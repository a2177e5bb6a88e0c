// internal/api/v2/publication.go
package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/mousetube/mousetube-go/internal/jobqueue"
)

// JobEnqueuedResponse acknowledges an accepted background task.
type JobEnqueuedResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// PublishRequest carries the optional metadata override for a publication.
type PublishRequest struct {
	Metadata map[string]any `json:"metadata,omitempty"`
}

// initPublicationRoutes registers the file and session publication endpoints
func (c *Controller) initPublicationRoutes() {
	c.Group.POST("/files/:id/process", c.ProcessFile)
	c.Group.DELETE("/files/:id", c.DeleteFile)
	c.Group.POST("/sessions/:id/publish", c.PublishSession)
	c.Group.GET("/jobs/:id", c.GetJob)
}

// ProcessFile handles POST /api/v2/files/:id/process
// Schedules metadata extraction and deposition upload for one file.
func (c *Controller) ProcessFile(ctx echo.Context) error {
	fileID, err := parseID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid file ID", http.StatusBadRequest)
	}

	job, err := c.Publisher.EnqueueProcessFile(fileID)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to schedule file processing", statusForError(err))
	}

	c.logAPIRequest(ctx, "File processing scheduled", "file_id", fileID, "job_id", job.ID)

	return ctx.JSON(http.StatusAccepted, JobEnqueuedResponse{
		JobID:  job.ID,
		Status: jobqueue.JobStatusPending.String(),
	})
}

// PublishSession handles POST /api/v2/sessions/:id/publish
// Schedules publication of the session's deposition. The request body may
// carry a metadata override; an empty body publishes the stored metadata.
func (c *Controller) PublishSession(ctx echo.Context) error {
	sessionID, err := parseID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid session ID", http.StatusBadRequest)
	}

	var req PublishRequest
	if ctx.Request().ContentLength > 0 {
		if err := ctx.Bind(&req); err != nil {
			return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
		}
	}

	job, err := c.Publisher.EnqueuePublishSession(sessionID, req.Metadata)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to schedule session publication", statusForError(err))
	}

	c.logAPIRequest(ctx, "Session publication scheduled", "session_id", sessionID, "job_id", job.ID)

	return ctx.JSON(http.StatusAccepted, JobEnqueuedResponse{
		JobID:  job.ID,
		Status: jobqueue.JobStatusPending.String(),
	})
}

// DeleteFile handles DELETE /api/v2/files/:id
// Schedules removal of the file from its repository and from the catalog.
// The optional "repository" query parameter names the adapter when the file
// record carries none.
func (c *Controller) DeleteFile(ctx echo.Context) error {
	fileID, err := parseID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid file ID", http.StatusBadRequest)
	}

	repositoryName := ctx.QueryParam("repository")

	job, err := c.Publisher.EnqueueDeleteFile(fileID, repositoryName)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to schedule file deletion", statusForError(err))
	}

	c.logAPIRequest(ctx, "File deletion scheduled", "file_id", fileID, "job_id", job.ID)

	return ctx.JSON(http.StatusAccepted, JobEnqueuedResponse{
		JobID:  job.ID,
		Status: jobqueue.JobStatusPending.String(),
	})
}

// GetJob handles GET /api/v2/jobs/:id
// Returns the current status snapshot of a background task.
func (c *Controller) GetJob(ctx echo.Context) error {
	jobID := ctx.Param("id")
	if jobID == "" {
		return c.HandleError(ctx, nil, "Missing job ID", http.StatusBadRequest)
	}

	snapshot, err := c.Publisher.Job(jobID)
	if err != nil {
		return c.HandleError(ctx, err, "Job not found", statusForError(err))
	}

	return ctx.JSON(http.StatusOK, snapshot)
}

// parseID reads the numeric :id route parameter.
func parseID(ctx echo.Context) (uint, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}
