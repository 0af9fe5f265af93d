// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"sync"

	"github.com/invowk/lazyload/internal/fetch"
	"github.com/invowk/lazyload/pkg/cueutil"
	"github.com/invowk/lazyload/pkg/modident"
)

// FileName is the manifest file inside each module directory.
const FileName = "manifest.json"

//go:embed manifest_schema.cue
var schema []byte

// ErrManifestNotFound is returned when no source has a manifest for a module.
var ErrManifestNotFound = errors.New("manifest not found")

type (
	// Manifest describes what a module provides.
	Manifest struct {
		Module     string      `json:"module"`
		Version    string      `json:"version,omitempty"`
		Hint       bool        `json:"hint,omitempty"`
		Components []Component `json:"components,omitempty"`
		Routes     []Route     `json:"routes,omitempty"`
	}

	// Component is a named entry point. Name is optional; Type is always
	// a valid lookup key.
	Component struct {
		Type string `json:"type"`
		Name string `json:"name,omitempty"`
	}

	// Route maps a path template to the component that serves it.
	Route struct {
		Route string `json:"route"`
		Type  string `json:"type"`
	}

	// Repository reads manifests through a fetcher and caches the parsed result.
	Repository struct {
		fetcher fetch.Fetcher
		logger  *slog.Logger
		cache   sync.Map // module name -> *Manifest
	}

	// Hints is a locator.HintsProvider over the manifests that set hint.
	Hints struct {
		names []string
	}
)

// Identity returns the module identity the manifest describes.
func (m *Manifest) Identity() modident.Identity {
	return modident.New(modident.Name(m.Module), modident.Version(m.Version))
}

// NewRepository creates a Repository. A nil logger uses slog.Default().
func NewRepository(fetcher fetch.Fetcher, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{fetcher: fetcher, logger: logger}
}

// Location returns where the manifest for module is expected.
func Location(module string) string {
	return path.Join(module, FileName)
}

// Parse validates data against the manifest schema.
func Parse(data []byte, filename string) (*Manifest, error) {
	res, err := cueutil.ParseAndDecode[Manifest](schema, data, "#Manifest", cueutil.WithFilename(filename))
	if err != nil {
		return nil, err
	}
	return res.Value, nil
}

// Manifest returns the manifest for module. An invalid manifest is an error;
// a missing one wraps ErrManifestNotFound.
func (r *Repository) Manifest(ctx context.Context, module string) (*Manifest, error) {
	if cached, ok := r.cache.Load(module); ok {
		return cached.(*Manifest), nil
	}

	loc := Location(module)
	data, ok := r.fetcher.Fetch(ctx, loc)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, loc)
	}
	m, err := Parse(data, loc)
	if err != nil {
		return nil, err
	}
	if m.Module != module {
		r.logger.Warn("manifest names a different module", "location", loc, "module", m.Module)
	}

	actual, _ := r.cache.LoadOrStore(module, m)
	return actual.(*Manifest), nil
}

// All returns the manifests of modules in order. Missing manifests are
// skipped; invalid ones are logged and skipped so one bad module does not hide
// the rest.
func (r *Repository) All(ctx context.Context, modules []string) []*Manifest {
	out := make([]*Manifest, 0, len(modules))
	for _, module := range modules {
		m, err := r.Manifest(ctx, module)
		switch {
		case err == nil:
			out = append(out, m)
		case errors.Is(err, ErrManifestNotFound):
			r.logger.Debug("module has no manifest", "module", module)
		default:
			r.logger.Warn("ignoring invalid manifest", "module", module, "error", err)
		}
	}
	return out
}

// Invalidate drops the cached manifest for module.
func (r *Repository) Invalidate(module string) {
	r.cache.Delete(module)
}

// NewHints collects the module directories of manifests that set hint.
func NewHints(manifests []*Manifest) *Hints {
	h := &Hints{}
	for _, m := range manifests {
		if m.Hint && !slices.Contains(h.names, m.Module) {
			h.names = append(h.names, m.Module)
		}
	}
	return h
}

// ModuleHints implements locator.HintsProvider.
func (h *Hints) ModuleHints() []string {
	return slices.Clone(h.names)
}
