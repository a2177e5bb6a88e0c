// Package repository defines the contract external archive adapters implement
// and the registry the pipeline dispatches through.
//
// Support for archives grows over time, so an unknown repository name is a
// reportable not-supported condition rather than a crash.
package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/mousetube/mousetube-go/internal/datastore"
	"github.com/mousetube/mousetube-go/internal/errors"
)

// UploadOutcome reports what happened to one file during deposition
// preparation. The batch never aborts on a single bad file; callers read the
// outcome list to see which files made it.
type UploadOutcome struct {
	FileID   uint
	Filename string
	Uploaded bool
	Err      error
}

// PrepareResult is the output of a deposition-preparation call: the remote
// draft identifier plus the per-file upload report.
type PrepareResult struct {
	DepositionID string
	Outcomes     []UploadOutcome
}

// Uploaded counts the files that reached the remote deposition.
func (r *PrepareResult) Uploaded() int {
	n := 0
	for i := range r.Outcomes {
		if r.Outcomes[i].Uploaded {
			n++
		}
	}
	return n
}

// PublishResult carries the permanent identifiers minted by a publish call.
type PublishResult struct {
	DOI       string
	RecordID  string
	RecordURL string
}

// Adapter is the operation set every supported external archive provides.
type Adapter interface {
	// Name returns the canonical repository name, matching the Repository
	// row in the datastore.
	Name() string

	// BuildMetadataPayload assembles the descriptive metadata document for
	// a session and its files in the archive's native shape.
	BuildMetadataPayload(session *datastore.RecordingSession, files []datastore.File) (map[string]any, error)

	// PrepareDeposition creates or reuses a draft deposition for the
	// session and uploads its eligible files, isolating per-file failures.
	PrepareDeposition(ctx context.Context, session *datastore.RecordingSession, triggering *datastore.File) (*PrepareResult, error)

	// PublishDeposition makes the deposition permanent and returns the
	// minted identifiers.
	PublishDeposition(ctx context.Context, session *datastore.RecordingSession, payload map[string]any) (*PublishResult, error)

	// DeleteFile removes a file from its remote deposition.
	DeleteFile(ctx context.Context, file *datastore.File) error
}

// SchemaProvider is implemented by adapters that can describe their metadata
// fields as a JSON schema for client-side form generation. Optional.
type SchemaProvider interface {
	MetadataSchema() map[string]any
}

// Registry holds the fixed set of adapters bound at startup. Lookup is by
// lower-cased repository name.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry returns an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register binds an adapter under its lower-cased name.
func (r *Registry) Register(adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[strings.ToLower(adapter.Name())] = adapter
}

// Lookup resolves a repository name to its adapter.
func (r *Registry) Lookup(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, errors.Newf("repository %q is not supported", name).
			Component("repository").
			Category(errors.CategoryNotSupported).
			Build()
	}
	return adapter, nil
}

// Schema returns the metadata schema of the named adapter, or a not-supported
// error when the adapter does not describe one.
func (r *Registry) Schema(name string) (map[string]any, error) {
	adapter, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	provider, ok := adapter.(SchemaProvider)
	if !ok {
		return nil, errors.Newf("repository %q does not expose a metadata schema", name).
			Component("repository").
			Category(errors.CategoryNotSupported).
			Build()
	}
	return provider.MetadataSchema(), nil
}

// Names lists the registered repository lookup names, sorted. These are the
// lower-cased keys accepted by Lookup, not the adapters' display names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
