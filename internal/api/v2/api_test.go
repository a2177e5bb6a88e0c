package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mousetube/mousetube-go/internal/conf"
	"github.com/mousetube/mousetube-go/internal/datastore"
	"github.com/mousetube/mousetube-go/internal/jobqueue"
	"github.com/mousetube/mousetube-go/internal/publish"
	"github.com/mousetube/mousetube-go/internal/repository"
)

// schemaStub is a minimal adapter with a published metadata schema.
type schemaStub struct{}

func (schemaStub) Name() string { return "Zenodo" }

func (schemaStub) BuildMetadataPayload(*datastore.RecordingSession, []datastore.File) (map[string]any, error) {
	return map[string]any{}, nil
}

func (schemaStub) PrepareDeposition(context.Context, *datastore.RecordingSession, *datastore.File) (*repository.PrepareResult, error) {
	return &repository.PrepareResult{DepositionID: "1"}, nil
}

func (schemaStub) PublishDeposition(context.Context, *datastore.RecordingSession, map[string]any) (*repository.PublishResult, error) {
	return &repository.PublishResult{DOI: "10.5281/zenodo.1"}, nil
}

func (schemaStub) DeleteFile(context.Context, *datastore.File) error { return nil }

func (schemaStub) MetadataSchema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{"title": map[string]any{"type": "string"}}}
}

type apiTestEnv struct {
	echo       *echo.Echo
	controller *Controller
	ds         datastore.Interface
}

func newAPITestEnv(t *testing.T) *apiTestEnv {
	t.Helper()

	root := t.TempDir()
	settings := &conf.Settings{Version: "test"}
	settings.Media = conf.MediaConfig{Root: filepath.Join(root, "media"), TempRoot: filepath.Join(root, "temp")}
	require.NoError(t, os.MkdirAll(settings.Media.Root, 0o755))
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = filepath.Join(root, "test.db")
	settings.Publication.Jobs = conf.JobsConfig{MaxRetries: 1, RetryDelay: 10, MaxQueueSize: 100}

	ds := datastore.New(settings)
	require.NoError(t, ds.Open())
	t.Cleanup(func() { _ = ds.Close() })

	registry := repository.NewRegistry()
	registry.Register(schemaStub{})

	queue := jobqueue.NewFromSettings(&settings.Publication.Jobs)
	queue.Start()
	t.Cleanup(func() { _ = queue.Stop() })

	publisher := publish.NewService(settings, ds, registry, queue, nil)

	e := echo.New()
	controller, err := NewWithOptions(e, ds, settings, publisher, registry,
		log.New(os.Stderr, "", 0), nil, false)
	require.NoError(t, err)
	t.Cleanup(controller.Shutdown)

	return &apiTestEnv{echo: e, controller: controller, ds: ds}
}

// request builds an echo context for direct handler invocation.
func (env *apiTestEnv) request(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, http.NoBody)
	}
	rec := httptest.NewRecorder()
	return env.echo.NewContext(req, rec), rec
}

func decodeJobResponse(t *testing.T, rec *httptest.ResponseRecorder) JobEnqueuedResponse {
	t.Helper()
	var resp JobEnqueuedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestProcessFileEndpoint(t *testing.T) {
	env := newAPITestEnv(t)

	ctx, rec := env.request(http.MethodPost, "/api/v2/files/7/process", "")
	ctx.SetParamNames("id")
	ctx.SetParamValues("7")

	require.NoError(t, env.controller.ProcessFile(ctx))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	resp := decodeJobResponse(t, rec)
	assert.NotEmpty(t, resp.JobID)
	assert.Equal(t, "queued", resp.Status)

	// The job is immediately queryable.
	jobCtx, jobRec := env.request(http.MethodGet, "/api/v2/jobs/"+resp.JobID, "")
	jobCtx.SetParamNames("id")
	jobCtx.SetParamValues(resp.JobID)

	require.NoError(t, env.controller.GetJob(jobCtx))
	assert.Equal(t, http.StatusOK, jobRec.Code)

	var snapshot jobqueue.Snapshot
	require.NoError(t, json.Unmarshal(jobRec.Body.Bytes(), &snapshot))
	assert.Equal(t, resp.JobID, snapshot.ID)
}

func TestProcessFileInvalidID(t *testing.T) {
	env := newAPITestEnv(t)

	ctx, rec := env.request(http.MethodPost, "/api/v2/files/abc/process", "")
	ctx.SetParamNames("id")
	ctx.SetParamValues("abc")

	require.NoError(t, env.controller.ProcessFile(ctx))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetJobUnknown(t *testing.T) {
	env := newAPITestEnv(t)

	ctx, rec := env.request(http.MethodGet, "/api/v2/jobs/no-such-job", "")
	ctx.SetParamNames("id")
	ctx.SetParamValues("no-such-job")

	require.NoError(t, env.controller.GetJob(ctx))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.CorrelationID)
}

func TestPublishSessionEndpoint(t *testing.T) {
	env := newAPITestEnv(t)

	ctx, rec := env.request(http.MethodPost, "/api/v2/sessions/3/publish",
		`{"metadata": {"title": "Courtship calls"}}`)
	ctx.SetParamNames("id")
	ctx.SetParamValues("3")

	require.NoError(t, env.controller.PublishSession(ctx))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	resp := decodeJobResponse(t, rec)
	assert.NotEmpty(t, resp.JobID)
}

func TestPublishSessionEmptyBody(t *testing.T) {
	env := newAPITestEnv(t)

	ctx, rec := env.request(http.MethodPost, "/api/v2/sessions/3/publish", "")
	ctx.SetParamNames("id")
	ctx.SetParamValues("3")

	require.NoError(t, env.controller.PublishSession(ctx))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestDeleteFileEndpoint(t *testing.T) {
	env := newAPITestEnv(t)

	ctx, rec := env.request(http.MethodDelete, "/api/v2/files/9?repository=zenodo", "")
	ctx.SetParamNames("id")
	ctx.SetParamValues("9")

	require.NoError(t, env.controller.DeleteFile(ctx))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestListRepositories(t *testing.T) {
	env := newAPITestEnv(t)

	ctx, rec := env.request(http.MethodGet, "/api/v2/repositories", "")

	require.NoError(t, env.controller.ListRepositories(ctx))
	assert.Equal(t, http.StatusOK, rec.Code)

	var infos []RepositoryInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, "zenodo", infos[0].Name)
	assert.True(t, infos[0].HasSchema)
}

func TestGetRepositorySchema(t *testing.T) {
	env := newAPITestEnv(t)

	ctx, rec := env.request(http.MethodGet, "/api/v2/repositories/zenodo/schema", "")
	ctx.SetParamNames("name")
	ctx.SetParamValues("zenodo")

	require.NoError(t, env.controller.GetRepositorySchema(ctx))
	assert.Equal(t, http.StatusOK, rec.Code)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &schema))
	assert.Equal(t, "object", schema["type"])

	// Second request is served from cache.
	_, found := env.controller.schemaCache.Get("schema:zenodo")
	assert.True(t, found)
}

func TestGetRepositorySchemaUnknown(t *testing.T) {
	env := newAPITestEnv(t)

	ctx, rec := env.request(http.MethodGet, "/api/v2/repositories/figshare/schema", "")
	ctx.SetParamNames("name")
	ctx.SetParamValues("figshare")

	require.NoError(t, env.controller.GetRepositorySchema(ctx))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	env := newAPITestEnv(t)

	ctx, rec := env.request(http.MethodGet, "/api/v2/health", "")

	require.NoError(t, env.controller.HealthCheck(ctx))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, "connected", resp["database_status"])
}
