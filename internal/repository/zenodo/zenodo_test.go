package zenodo

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mousetube/mousetube-go/internal/conf"
	"github.com/mousetube/mousetube-go/internal/datastore"
	"github.com/mousetube/mousetube-go/internal/errors"
	"github.com/mousetube/mousetube-go/internal/mediapath"
)

const (
	createDepositionURL = `=~^https://sandbox\.zenodo\.org/api/deposit/depositions(\?.*)?$`
	uploadFileURL       = `=~^https://sandbox\.zenodo\.org/api/deposit/depositions/\d+/files(\?.*)?$`
	putMetadataURL      = `=~^https://sandbox\.zenodo\.org/api/deposit/depositions/\d+(\?.*)?$`
	publishURL          = `=~^https://sandbox\.zenodo\.org/api/deposit/depositions/\d+/actions/publish(\?.*)?$`
)

type testEnv struct {
	adapter *Adapter
	ds      datastore.Interface
	media   string
	temp    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	root := t.TempDir()
	media := filepath.Join(root, "media")
	temp := filepath.Join(root, "temp")
	require.NoError(t, os.MkdirAll(media, 0o755))
	require.NoError(t, os.MkdirAll(temp, 0o755))

	settings := &conf.Settings{}
	settings.Media = conf.MediaConfig{Root: media, TempRoot: temp}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = filepath.Join(root, "test.db")
	settings.Publication.Zenodo = conf.ZenodoConfig{
		Enabled:     true,
		APIURL:      "https://sandbox.zenodo.org/api",
		AccessToken: "test-token",
		Community:   "mousetube",
	}
	conf.SetTestSettings(settings)

	ds := datastore.New(settings)
	require.NoError(t, ds.Open())
	t.Cleanup(func() { _ = ds.Close() })

	adapter := New(settings, ds, mediapath.NewResolver(&settings.Media))
	httpmock.ActivateNonDefault(adapter.client.HTTPClient)
	t.Cleanup(httpmock.DeactivateAndReset)

	return &testEnv{adapter: adapter, ds: ds, media: media, temp: temp}
}

// newSession persists a session with files. Each entry maps file name to the
// payload written under the media root; a nil payload leaves the file missing
// on disk.
func (env *testEnv) newSession(t *testing.T, files map[string][]byte) (*datastore.RecordingSession, map[string]*datastore.File) {
	t.Helper()

	session := &datastore.RecordingSession{Name: "usv courtship session"}
	require.NoError(t, env.ds.SaveSession(session))

	created := make(map[string]*datastore.File, len(files))
	for name, payload := range files {
		if payload != nil {
			require.NoError(t, os.WriteFile(filepath.Join(env.media, name), payload, 0o644))
		}
		f := &datastore.File{
			Name:               name,
			Link:               "/media/" + name,
			RecordingSessionID: &session.ID,
			Status:             datastore.FileStatusMetadataExtracted,
		}
		require.NoError(t, env.ds.SaveFile(f))
		created[name] = f
	}
	return session, created
}

func registerDraftResponders(depositionID string) {
	httpmock.RegisterResponder("POST", createDepositionURL,
		httpmock.NewStringResponder(201, `{"id": `+depositionID+`, "state": "unsubmitted"}`))
	httpmock.RegisterResponder("POST", uploadFileURL,
		httpmock.NewStringResponder(201, `{"id": "f-1", "filename": "uploaded.wav", "filesize": 4}`))
	httpmock.RegisterResponder("PUT", putMetadataURL,
		httpmock.NewStringResponder(200, `{"id": `+depositionID+`}`))
}

func TestPrepareDepositionSampleScenario(t *testing.T) {
	env := newTestEnv(t)
	session, files := env.newSession(t, map[string][]byte{
		"call one.wav": []byte("RIFFdata"),
		"missing.wav":  nil,
	})
	registerDraftResponders("140679")

	result, err := env.adapter.PrepareDeposition(context.Background(), session, nil)
	require.NoError(t, err)

	assert.Equal(t, "140679", result.DepositionID)
	assert.Equal(t, 1, result.Uploaded())

	valid, err := env.ds.GetFile(files["call one.wav"].ID)
	require.NoError(t, err)
	assert.Equal(t, "140679", valid.ExternalID)
	require.NotNil(t, valid.Repository)
	assert.Equal(t, "Zenodo", valid.Repository.Name)

	missing, err := env.ds.GetFile(files["missing.wav"].ID)
	require.NoError(t, err)
	assert.Equal(t, datastore.FileStatusError, missing.Status)
	assert.Empty(t, missing.ExternalID)
}

func TestPrepareDepositionReusesExistingDraft(t *testing.T) {
	env := newTestEnv(t)
	session, _ := env.newSession(t, map[string][]byte{"first.wav": []byte("RIFFdata")})
	registerDraftResponders("77001")

	first, err := env.adapter.PrepareDeposition(context.Background(), session, nil)
	require.NoError(t, err)
	require.Equal(t, "77001", first.DepositionID)

	// A second file arrives and triggers another preparation round.
	second := &datastore.File{
		Name:               "second.wav",
		Link:               "/media/second.wav",
		RecordingSessionID: &session.ID,
		Status:             datastore.FileStatusMetadataExtracted,
	}
	require.NoError(t, os.WriteFile(filepath.Join(env.media, "second.wav"), []byte("RIFFmore"), 0o644))
	require.NoError(t, env.ds.SaveFile(second))

	again, err := env.adapter.PrepareDeposition(context.Background(), session, second)
	require.NoError(t, err)
	assert.Equal(t, "77001", again.DepositionID)

	info := httpmock.GetCallCountInfo()
	assert.Equal(t, 1, info["POST "+createDepositionURL], "draft must be created exactly once")
}

func TestPrepareDepositionRecoversAfterDraftFailure(t *testing.T) {
	env := newTestEnv(t)
	session, _ := env.newSession(t, map[string][]byte{"retry.wav": []byte("RIFFdata")})

	httpmock.RegisterResponder("POST", createDepositionURL,
		httpmock.NewStringResponder(500, `{"message": "internal server error"}`))

	_, err := env.adapter.PrepareDeposition(context.Background(), session, nil)
	require.Error(t, err)

	// The failed draft must not leave the session stuck behind an empty
	// claim: once the remote recovers, preparation succeeds.
	registerDraftResponders("99003")

	result, err := env.adapter.PrepareDeposition(context.Background(), session, nil)
	require.NoError(t, err)
	assert.Equal(t, "99003", result.DepositionID)
	assert.Equal(t, 1, result.Uploaded())
}

func TestPrepareDepositionNoValidFiles(t *testing.T) {
	env := newTestEnv(t)
	session := &datastore.RecordingSession{Name: "empty session"}
	require.NoError(t, env.ds.SaveSession(session))

	_, err := env.adapter.PrepareDeposition(context.Background(), session, nil)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))

	info := httpmock.GetCallCountInfo()
	assert.Zero(t, info["POST "+createDepositionURL])
}

func TestPrepareDepositionPartialFailureIsolation(t *testing.T) {
	env := newTestEnv(t)
	session, files := env.newSession(t, map[string][]byte{
		"a.wav": []byte("RIFFa"),
		"b.wav": nil,
		"c.wav": []byte("RIFFc"),
	})
	registerDraftResponders("88002")

	result, err := env.adapter.PrepareDeposition(context.Background(), session, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Uploaded())

	for name, f := range files {
		got, err := env.ds.GetFile(f.ID)
		require.NoError(t, err)
		if name == "b.wav" {
			assert.Equal(t, datastore.FileStatusError, got.Status)
		} else {
			assert.Equal(t, "88002", got.ExternalID, "file %s", name)
			assert.NotEqual(t, datastore.FileStatusError, got.Status)
		}
	}
}

func TestPrepareDepositionCleansTempFiles(t *testing.T) {
	env := newTestEnv(t)
	session := &datastore.RecordingSession{Name: "staging"}
	require.NoError(t, env.ds.SaveSession(session))

	stagingPath := filepath.Join(env.temp, "staged.wav")
	require.NoError(t, os.WriteFile(stagingPath, []byte("RIFFtmp"), 0o644))
	f := &datastore.File{
		Name:               "staged.wav",
		Link:               "/temp/staged.wav",
		RecordingSessionID: &session.ID,
		Status:             datastore.FileStatusMetadataExtracted,
	}
	require.NoError(t, env.ds.SaveFile(f))
	registerDraftResponders("99003")

	_, err := env.adapter.PrepareDeposition(context.Background(), session, nil)
	require.NoError(t, err)

	_, statErr := os.Stat(stagingPath)
	assert.True(t, os.IsNotExist(statErr), "staging copy must be removed after upload")
}

func TestPublishDeposition(t *testing.T) {
	env := newTestEnv(t)
	session, files := env.newSession(t, map[string][]byte{
		"fresh.wav":    []byte("RIFFdata"),
		"imported.wav": []byte("RIFFdata"),
	})

	repo, err := env.ds.GetOrCreateRepository(RepositoryName)
	require.NoError(t, err)

	fresh := files["fresh.wav"]
	fresh.ExternalID = "140679"
	fresh.RepositoryID = &repo.ID
	fresh.Status = datastore.FileStatusDone
	require.NoError(t, env.ds.UpdateFileFields(fresh, "external_id", "repository_id", "status"))

	// Previously published elsewhere: DOI and link are immutable, only the
	// stale repository tag may be dropped.
	imported := files["imported.wav"]
	imported.ExternalID = "140679"
	imported.RepositoryID = &repo.ID
	imported.DOI = "10.6084/m9.figshare.123"
	imported.Link = "https://figshare.com/articles/123"
	require.NoError(t, env.ds.UpdateFileFields(imported, "external_id", "repository_id", "doi", "link"))

	httpmock.RegisterResponder("POST", publishURL,
		httpmock.NewStringResponder(202, `{"id": 140679, "doi": "10.5281/zenodo.140679", "state": "done"}`))

	result, err := env.adapter.PublishDeposition(context.Background(), session, nil)
	require.NoError(t, err)
	assert.Equal(t, "10.5281/zenodo.140679", result.DOI)
	assert.Equal(t, "https://sandbox.zenodo.org/records/140679", result.RecordURL)

	gotFresh, err := env.ds.GetFile(fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.5281/zenodo.140679", gotFresh.DOI)
	assert.Equal(t, "https://sandbox.zenodo.org/records/140679/files/fresh.wav?download=1", gotFresh.Link)
	assert.Equal(t, "https://sandbox.zenodo.org/records/140679", gotFresh.ExternalURL)

	gotImported, err := env.ds.GetFile(imported.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.6084/m9.figshare.123", gotImported.DOI)
	assert.Equal(t, "https://figshare.com/articles/123", gotImported.Link)
	assert.Nil(t, gotImported.RepositoryID, "foreign file must lose its repository tag")
}

func TestPublishDepositionWithoutDraft(t *testing.T) {
	env := newTestEnv(t)
	session, _ := env.newSession(t, map[string][]byte{"untagged.wav": []byte("RIFFdata")})

	_, err := env.adapter.PublishDeposition(context.Background(), session, nil)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))

	info := httpmock.GetCallCountInfo()
	assert.Zero(t, info["POST "+publishURL], "remote publish must not be attempted")
}

func TestDeleteFile(t *testing.T) {
	env := newTestEnv(t)
	_, files := env.newSession(t, map[string][]byte{"gone one.wav": []byte("RIFFdata")})

	f := files["gone one.wav"]
	f.ExternalID = "140679"
	require.NoError(t, env.ds.UpdateFileFields(f, "external_id"))

	listURL := `=~^https://sandbox\.zenodo\.org/api/deposit/depositions/140679/files(\?.*)?$`
	httpmock.RegisterResponder("GET", listURL,
		httpmock.NewStringResponder(200, `[{"id": "rf-9", "filename": "gone_one.wav", "filesize": 8}]`))
	deleted := false
	httpmock.RegisterResponder("DELETE",
		`=~^https://sandbox\.zenodo\.org/api/deposit/depositions/140679/files/rf-9(\?.*)?$`,
		func(*http.Request) (*http.Response, error) {
			deleted = true
			return httpmock.NewStringResponse(204, ""), nil
		})

	require.NoError(t, env.adapter.DeleteFile(context.Background(), f))
	assert.True(t, deleted)
}

func TestDeleteFileMissingRemotelyIsNoop(t *testing.T) {
	env := newTestEnv(t)
	_, files := env.newSession(t, map[string][]byte{"vanished.wav": []byte("RIFFdata")})

	f := files["vanished.wav"]
	f.ExternalID = "140679"
	require.NoError(t, env.ds.UpdateFileFields(f, "external_id"))

	httpmock.RegisterResponder("GET",
		`=~^https://sandbox\.zenodo\.org/api/deposit/depositions/140679/files(\?.*)?$`,
		httpmock.NewStringResponder(200, `[]`))

	assert.NoError(t, env.adapter.DeleteFile(context.Background(), f))
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"call one.wav":       "call_one.wav",
		"souris/femelle.wav": "souris_femelle.wav",
		"ok-file_1.flac":     "ok-file_1.flac",
		"émission.wav":       "_mission.wav",
	}
	for in, want := range cases {
		assert.Equal(t, want, sanitizeFilename(in), "input %q", in)
	}
}

func TestBuildMetadataPayload(t *testing.T) {
	lab := &datastore.Laboratory{Name: "Comparative ethology", Institution: "Institut Pasteur"}
	strain := &datastore.Strain{Name: "C57BL/6J", Species: &datastore.Species{Name: "Mus musculus"}}
	session := &datastore.RecordingSession{
		Name:        "male female encounter",
		Date:        "2015-03-12",
		Description: "first encounter",
		Protocol:    &datastore.Protocol{Name: "dyadic encounter"},
		Laboratory:  lab,
		AnimalProfiles: []datastore.AnimalProfile{
			{Name: "male 12", Strain: strain, Sex: "male"},
		},
	}
	owner := &datastore.User{FirstName: "Elodie", LastName: "Ey"}
	files := []datastore.File{
		{Name: "call.wav", Format: "wav", Duration: 120, SamplingRate: 300000, BitDepth: 16, CreatedBy: owner},
		{Link: "/media/followup.wav", Format: "wav"},
	}
	profile := &datastore.UserProfile{ORCID: "0000-0002-1825-0097", Laboratory: lab}

	payload := buildMetadata(session, files, "mousetube", profile)

	assert.Equal(t, "male female encounter", payload["title"])
	assert.Equal(t, "dataset", payload["upload_type"])

	description, ok := payload["description"].(string)
	require.True(t, ok)
	assert.Contains(t, description, "Session: male female encounter")
	assert.Contains(t, description, "Protocol: dyadic encounter")
	assert.Contains(t, description, "Animal: male 12, C57BL/6J (Mus musculus), male")
	assert.Contains(t, description, "File: call.wav")
	assert.Contains(t, description, "Format: wav")
	assert.Contains(t, description, "Duration: 120 s")
	assert.Contains(t, description, "Sampling rate: 300000 Hz")
	assert.Contains(t, description, "Bit depth: 16")
	assert.Contains(t, description, "File: followup.wav")
	assert.Contains(t, description, "<br>")

	creators, ok := payload["creators"].([]creator)
	require.True(t, ok)
	require.Len(t, creators, 1)
	assert.Equal(t, "Ey, Elodie", creators[0].Name)
	assert.Equal(t, "Institut Pasteur", creators[0].Affiliation)
	assert.Equal(t, "0000-0002-1825-0097", creators[0].ORCID)

	communities, ok := payload["communities"].([]map[string]string)
	require.True(t, ok)
	require.Len(t, communities, 1)
	assert.Equal(t, "mousetube", communities[0]["identifier"])
}

func TestBuildMetadataDefaultsTitle(t *testing.T) {
	payload := buildMetadata(&datastore.RecordingSession{}, nil, "mousetube", nil)
	assert.Equal(t, defaultTitle, payload["title"])
	assert.NotContains(t, payload, "creators")
}
