// Package mediafile probes audio containers for the technical metadata the
// catalog stores alongside each recording.
package mediafile

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/tphakala/flac"

	"github.com/mousetube/mousetube-go/internal/datastore"
	"github.com/mousetube/mousetube-go/internal/errors"
)

// Info holds the technical properties read from an audio file header.
type Info struct {
	Format       string
	Duration     int // seconds, truncated
	SampleRate   int
	BitDepth     int // 0 when the encoding is unrecognized
	NumChannels  int
	TotalSamples int
	Size         int64
}

// supportedExtensions is the allow-list of audio containers the catalog
// accepts. Lower-case, with leading dot.
var supportedExtensions = map[string]bool{
	".wav":  true,
	".flac": true,
}

// SupportedExtension reports whether path ends in an accepted audio container
// extension.
func SupportedExtension(path string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// Probe opens the file at path and reads its header.
func Probe(path string) (*Info, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !supportedExtensions[ext] {
		return nil, errors.Newf("unsupported audio format: %s", ext).
			Component("mediafile").
			Category(errors.CategoryValidation).
			FileContext(path, 0).
			Build()
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component("mediafile").
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, errors.New(err).
			Component("mediafile").
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}

	var info *Info
	switch ext {
	case ".wav":
		info, err = readWAVInfo(file)
	case ".flac":
		info, err = readFLACInfo(file)
	}
	if err != nil {
		return nil, errors.New(err).
			Component("mediafile").
			Category(errors.CategoryAudioParsing).
			FileContext(path, stat.Size()).
			Build()
	}

	info.Format = strings.TrimPrefix(ext, ".")
	info.Size = stat.Size()
	if info.SampleRate > 0 {
		info.Duration = info.TotalSamples / info.SampleRate
	}
	return info, nil
}

// Extract probes the file at path and copies the result into the record,
// filling only fields that are currently empty. Idempotent; user-supplied
// values are never clobbered. Returns the names of the columns that changed.
func Extract(file *datastore.File, path string) ([]string, error) {
	info, err := Probe(path)
	if err != nil {
		return nil, err
	}

	var changed []string
	if file.Format == "" {
		file.Format = info.Format
		changed = append(changed, "format")
	}
	if file.Duration == 0 && info.Duration > 0 {
		file.Duration = info.Duration
		changed = append(changed, "duration")
	}
	if file.SamplingRate == 0 && info.SampleRate > 0 {
		file.SamplingRate = info.SampleRate
		changed = append(changed, "sampling_rate")
	}
	if file.BitDepth == 0 && info.BitDepth > 0 {
		file.BitDepth = info.BitDepth
		changed = append(changed, "bit_depth")
	}
	if file.Size == 0 && info.Size > 0 {
		file.Size = info.Size
		changed = append(changed, "size")
	}
	return changed, nil
}

func readWAVInfo(file *os.File) (*Info, error) {
	decoder := wav.NewDecoder(file)
	decoder.ReadInfo()

	if !decoder.IsValidFile() {
		return nil, errors.NewStd("invalid WAV file format")
	}

	info := &Info{
		SampleRate:  int(decoder.SampleRate),
		NumChannels: int(decoder.NumChans),
		BitDepth:    mapWAVBitDepth(decoder),
	}

	if decoder.SampleRate == 0 || decoder.NumChans == 0 {
		return nil, errors.NewStd("invalid WAV header: zero sample rate or channels")
	}

	// Header-only duration estimate: data bytes divided by frame size.
	stat, err := file.Stat()
	if err != nil {
		return nil, err
	}
	bytesPerSample := int(decoder.BitDepth / 8)
	if bytesPerSample > 0 {
		info.TotalSamples = int(stat.Size()) / bytesPerSample / int(decoder.NumChans)
	}
	return info, nil
}

// mapWAVBitDepth maps the container encoding onto a stored bit depth. PCM
// keeps its sample width; 32-bit float maps to 32 and 64-bit float to 64.
// Anything else is reported as unknown (0).
func mapWAVBitDepth(decoder *wav.Decoder) int {
	const (
		formatPCM       = 1
		formatIEEEFloat = 3
	)
	switch decoder.WavAudioFormat {
	case formatPCM:
		switch decoder.BitDepth {
		case 16, 24, 32:
			return int(decoder.BitDepth)
		}
	case formatIEEEFloat:
		switch decoder.BitDepth {
		case 32, 64:
			return int(decoder.BitDepth)
		}
	}
	return 0
}

func readFLACInfo(file *os.File) (*Info, error) {
	decoder, err := flac.NewDecoder(file)
	if err != nil {
		return nil, err
	}

	return &Info{
		SampleRate:   decoder.SampleRate,
		NumChannels:  decoder.NChannels,
		BitDepth:     decoder.BitsPerSample,
		TotalSamples: int(decoder.TotalSamples),
	}, nil
}
