package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mousetube/mousetube-go/internal/errors"
)

func validTestSettings() *Settings {
	s := &Settings{}
	s.Media.Root = "media/"
	s.Media.TempRoot = "temp/"
	s.Output.SQLite.Enabled = true
	s.Output.SQLite.Path = "test.db"
	s.Publication.Jobs.MaxRetries = 1
	s.Publication.Jobs.RetryDelay = 10
	s.Publication.Jobs.MaxQueueSize = 100
	return s
}

func TestValidateSettings_Valid(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidateSettings(validTestSettings()))
}

func TestValidateSettings_MissingZenodoToken(t *testing.T) {
	t.Parallel()

	s := validTestSettings()
	s.Publication.Zenodo.Enabled = true
	s.Publication.Zenodo.APIURL = "https://sandbox.zenodo.org/api"
	s.Publication.Zenodo.AccessToken = ""

	err := ValidateSettings(s)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
	assert.Contains(t, err.Error(), "access token")
}

func TestValidateSettings_ZenodoTokenPresent(t *testing.T) {
	t.Parallel()

	s := validTestSettings()
	s.Publication.Zenodo.Enabled = true
	s.Publication.Zenodo.APIURL = "https://sandbox.zenodo.org/api"
	s.Publication.Zenodo.AccessToken = "secret-token"

	require.NoError(t, ValidateSettings(s))
}

func TestValidateSettings_NoDatastore(t *testing.T) {
	t.Parallel()

	s := validTestSettings()
	s.Output.SQLite.Enabled = false

	err := ValidateSettings(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no datastore enabled")
}

func TestValidateSettings_MissingMediaRoots(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"empty media root", func(s *Settings) { s.Media.Root = "" }},
		{"empty temp root", func(s *Settings) { s.Media.TempRoot = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := validTestSettings()
			tt.mutate(s)
			err := ValidateSettings(s)
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
		})
	}
}
