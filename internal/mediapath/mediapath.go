// Package mediapath resolves file link strings onto the local filesystem.
//
// Catalog files carry a single Link column that over time has held absolute
// http(s) URLs, media-root relative paths, temp staging paths, and plain
// local paths. Resolve normalizes all of these onto one absolute path so the
// rest of the pipeline never has to care which shape it got.
package mediapath

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/mousetube/mousetube-go/internal/conf"
	"github.com/mousetube/mousetube-go/internal/errors"
)

// URL path prefixes recognized in stored links.
const (
	mediaPrefix = "/media/"
	tempPrefix  = "/temp/"
)

// Resolver rewrites stored links against the configured media and temp roots.
// Pure string manipulation, never touches the filesystem.
type Resolver struct {
	mediaRoot string
	tempRoot  string
}

// NewResolver builds a resolver from the media settings.
func NewResolver(settings *conf.MediaConfig) *Resolver {
	return &Resolver{
		mediaRoot: settings.Root,
		tempRoot:  settings.TempRoot,
	}
}

// Resolve turns a stored link into an absolute local path. Deterministic for
// a given input.
func (r *Resolver) Resolve(link string) (string, error) {
	if strings.TrimSpace(link) == "" {
		return "", errors.Newf("link is empty").
			Component("mediapath").
			Category(errors.CategoryValidation).
			Build()
	}

	p := link
	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
		u, err := url.Parse(p)
		if err != nil {
			return "", errors.New(err).
				Component("mediapath").
				Category(errors.CategoryValidation).
				Context("link", link).
				Build()
		}
		p = u.Path
	}

	decoded, err := url.PathUnescape(p)
	if err != nil {
		return "", errors.New(err).
			Component("mediapath").
			Category(errors.CategoryValidation).
			Context("link", link).
			Build()
	}
	p = decoded

	switch {
	case hasPathPrefix(p, mediaPrefix):
		p = filepath.Join(r.mediaRoot, strings.TrimPrefix(normalizeSlash(p), mediaPrefix))
	case hasPathPrefix(p, tempPrefix):
		p = filepath.Join(r.tempRoot, strings.TrimPrefix(normalizeSlash(p), tempPrefix))
	default:
		p = filepath.Clean(p)
	}

	return p, nil
}

// IsTempPath reports whether an already-resolved path sits under the temp
// root, meaning it is a staging copy that can be removed after upload.
func (r *Resolver) IsTempPath(resolved string) bool {
	if r.tempRoot == "" {
		return false
	}
	rel, err := filepath.Rel(r.tempRoot, resolved)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// hasPathPrefix matches both "/media/x" and "media/x" shapes.
func hasPathPrefix(p, prefix string) bool {
	n := normalizeSlash(p)
	return strings.HasPrefix(n, prefix)
}

// normalizeSlash collapses dot segments and guarantees a leading slash so
// prefix checks behave the same for relative and absolute link shapes.
func normalizeSlash(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}
