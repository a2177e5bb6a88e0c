package mediafile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mousetube/mousetube-go/internal/datastore"
	"github.com/mousetube/mousetube-go/internal/errors"
)

// writeTestWAV generates a PCM wav file with the given properties and returns
// its path.
func writeTestWAV(t *testing.T, sampleRate, bitDepth, seconds int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.wav")
	out, err := os.Create(path)
	require.NoError(t, err)
	defer out.Close()

	enc := wav.NewEncoder(out, sampleRate, bitDepth, 1, 1)
	buf := &audio.IntBuffer{
		Data:           make([]int, sampleRate*seconds),
		Format:         &audio.Format{SampleRate: sampleRate, NumChannels: 1},
		SourceBitDepth: bitDepth,
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
	return path
}

func TestProbeWAV(t *testing.T) {
	path := writeTestWAV(t, 44100, 16, 2)

	info, err := Probe(path)
	require.NoError(t, err)

	assert.Equal(t, "wav", info.Format)
	assert.Equal(t, 44100, info.SampleRate)
	assert.Equal(t, 16, info.BitDepth)
	assert.Equal(t, 1, info.NumChannels)
	assert.Equal(t, 2, info.Duration)
	assert.Positive(t, info.Size)
}

func TestProbeUnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.mp3")
	require.NoError(t, os.WriteFile(path, []byte("not audio"), 0o644))

	_, err := Probe(path)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestProbeMissingFile(t *testing.T) {
	_, err := Probe(filepath.Join(t.TempDir(), "gone.wav"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))
}

func TestProbeCorruptWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFFgarbage"), 0o644))

	_, err := Probe(path)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryAudioParsing))
}

func TestExtractFillsOnlyEmptyFields(t *testing.T) {
	path := writeTestWAV(t, 22050, 16, 1)

	file := &datastore.File{Name: "test.wav"}
	changed, err := Extract(file, path)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"format", "duration", "sampling_rate", "bit_depth", "size"}, changed)
	assert.Equal(t, "wav", file.Format)
	assert.Equal(t, 22050, file.SamplingRate)
	assert.Equal(t, 16, file.BitDepth)
	assert.Equal(t, 1, file.Duration)
}

func TestExtractIsIdempotent(t *testing.T) {
	path := writeTestWAV(t, 22050, 16, 1)

	// User-supplied values survive extraction.
	file := &datastore.File{Name: "test.wav", SamplingRate: 300000, Format: "wav"}
	changed, err := Extract(file, path)
	require.NoError(t, err)
	assert.NotContains(t, changed, "sampling_rate")
	assert.NotContains(t, changed, "format")
	assert.Equal(t, 300000, file.SamplingRate)

	// A second pass over a fully populated record changes nothing.
	changed, err = Extract(file, path)
	require.NoError(t, err)
	assert.Empty(t, changed)
}

func TestSupportedExtension(t *testing.T) {
	assert.True(t, SupportedExtension("call.wav"))
	assert.True(t, SupportedExtension("CALL.FLAC"))
	assert.False(t, SupportedExtension("call.mp3"))
	assert.False(t, SupportedExtension("call"))
}
