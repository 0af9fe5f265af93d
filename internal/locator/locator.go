// SPDX-License-Identifier: MPL-2.0

// Package locator computes the ordered list of places a module's bytes may
// live. Locations are slash-separated and relative to whatever source a fetcher
// serves (a directory, a base URL, or a packaged archive).
package locator

import (
	"errors"
	"fmt"
	"path"

	"github.com/invowk/lazyload/internal/resolution"
	"github.com/invowk/lazyload/pkg/modident"
)

const (
	// DefaultExtension is appended to a module name to form its primary file name.
	DefaultExtension = ".wasm"
	// DefaultDebugExtension is appended to a module name to form its companion file name.
	DefaultDebugExtension = ".wasm.map"
	// DefaultSharedDir is the directory holding modules not bundled with any feature.
	DefaultSharedDir = "shared"

	// KindDefault probes hints, then the module's own directory, then the shared pool.
	KindDefault Kind = "default"
	// KindHierarchical probes the root module's directory, the shared pool, and
	// then every branch of the resolution path below the root.
	KindHierarchical Kind = "hierarchical"
)

// ErrInvalidKind is returned when a Kind value is not a known strategy.
var ErrInvalidKind = errors.New("invalid location strategy")

type (
	// Kind selects a Strategy by configuration value.
	Kind string

	// Candidate is one place to try. Companion holds optional debug data.
	Candidate struct {
		Primary   string
		Companion string
	}

	// Strategy produces candidate locations in probe order. Implementations
	// must be deterministic for a given identity, node, and hint set.
	Strategy interface {
		Candidates(id modident.Identity, node *resolution.Node) []Candidate
	}

	// HintsProvider supplies directory names to probe before any other location.
	HintsProvider interface {
		ModuleHints() []string
	}

	// StaticHints is a fixed HintsProvider.
	StaticHints []string

	// Layout describes how directories and names map to file locations.
	Layout struct {
		Extension      string
		DebugExtension string
		SharedDir      string
	}

	// Default probes each hint directory in order, then a directory named after
	// the module, then the shared directory.
	Default struct {
		Hints  HintsProvider
		Layout Layout
	}

	// Hierarchical walks the resolution path: the root module's directory first,
	// then the shared directory, then each node below the root down to the
	// requesting one.
	Hierarchical struct {
		Layout Layout
	}

	// InvalidKindError is returned for an unknown strategy name. It wraps
	// ErrInvalidKind for errors.Is() compatibility.
	InvalidKindError struct {
		Value Kind
	}
)

// DefaultLayout returns the stock layout.
func DefaultLayout() Layout {
	return Layout{
		Extension:      DefaultExtension,
		DebugExtension: DefaultDebugExtension,
		SharedDir:      DefaultSharedDir,
	}
}

// New returns the strategy for kind. Empty fields in layout take defaults.
func New(kind Kind, hints HintsProvider, layout Layout) (Strategy, error) {
	layout = layout.withDefaults()
	switch kind {
	case "", KindDefault:
		return &Default{Hints: hints, Layout: layout}, nil
	case KindHierarchical:
		return &Hierarchical{Layout: layout}, nil
	default:
		return nil, &InvalidKindError{Value: kind}
	}
}

// ModuleHints implements HintsProvider.
func (h StaticHints) ModuleHints() []string { return h }

// Candidate returns the candidate for id under dir.
func (l Layout) Candidate(dir string, id modident.Identity) Candidate {
	name := string(id.Name)
	return Candidate{
		Primary:   path.Join(dir, name+l.Extension),
		Companion: path.Join(dir, name+l.DebugExtension),
	}
}

func (l Layout) withDefaults() Layout {
	if l.Extension == "" {
		l.Extension = DefaultExtension
	}
	if l.DebugExtension == "" {
		l.DebugExtension = DefaultDebugExtension
	}
	if l.SharedDir == "" {
		l.SharedDir = DefaultSharedDir
	}
	return l
}

// Candidates implements Strategy.
func (s *Default) Candidates(id modident.Identity, _ *resolution.Node) []Candidate {
	var dirs []string
	if s.Hints != nil {
		dirs = append(dirs, s.Hints.ModuleHints()...)
	}
	dirs = append(dirs, string(id.Name), s.Layout.SharedDir)
	return s.Layout.candidates(id, dirs)
}

// Candidates implements Strategy.
func (s *Hierarchical) Candidates(id modident.Identity, node *resolution.Node) []Candidate {
	if node == nil {
		return s.Layout.candidates(id, []string{string(id.Name), s.Layout.SharedDir})
	}
	branch := node.Path()
	dirs := make([]string, 0, len(branch)+1)
	dirs = append(dirs, string(branch[0].Name), s.Layout.SharedDir)
	for _, b := range branch[1:] {
		dirs = append(dirs, string(b.Name))
	}
	return s.Layout.candidates(id, dirs)
}

// candidates maps dirs to candidates, dropping repeats but keeping first-seen order.
func (l Layout) candidates(id modident.Identity, dirs []string) []Candidate {
	seen := make(map[string]bool, len(dirs))
	out := make([]Candidate, 0, len(dirs))
	for _, dir := range dirs {
		c := l.Candidate(dir, id)
		if seen[c.Primary] {
			continue
		}
		seen[c.Primary] = true
		out = append(out, c)
	}
	return out
}

// Validate returns nil if the Kind is a known strategy.
func (k Kind) Validate() error {
	switch k {
	case KindDefault, KindHierarchical:
		return nil
	default:
		return &InvalidKindError{Value: k}
	}
}

// Error implements the error interface for InvalidKindError.
func (e *InvalidKindError) Error() string {
	return fmt.Sprintf("invalid location strategy %q (valid: %s, %s)", string(e.Value), KindDefault, KindHierarchical)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidKindError) Unwrap() error { return ErrInvalidKind }
