// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"strconv"
	"strings"

	"github.com/invowk/lazyload/pkg/modident"
)

type (
	// Index resolves component names and request paths to providing modules.
	// Earlier manifests win when two modules claim the same name or route.
	Index struct {
		components map[string]Match
		routes     []routeEntry
	}

	// Match is a lookup result.
	Match struct {
		Module modident.Identity
		Type   string
		// Params holds route parameter values; nil for component lookups.
		Params map[string]string
	}

	routeEntry struct {
		module   modident.Identity
		typ      string
		segments []segment
	}

	segment struct {
		literal    string
		param      string
		constraint string
		optional   bool
	}
)

// NewIndex builds an index over manifests.
func NewIndex(manifests []*Manifest) *Index {
	idx := &Index{components: make(map[string]Match)}
	for _, m := range manifests {
		id := m.Identity()
		for _, c := range m.Components {
			idx.addComponent(c.Type, id, c.Type)
			if c.Name != "" {
				idx.addComponent(c.Name, id, c.Type)
			}
		}
		for _, r := range m.Routes {
			idx.routes = append(idx.routes, routeEntry{module: id, typ: r.Type, segments: parseTemplate(r.Route)})
		}
	}
	return idx
}

func (idx *Index) addComponent(key string, id modident.Identity, typ string) {
	if _, exists := idx.components[key]; exists {
		return
	}
	idx.components[key] = Match{Module: id, Type: typ}
}

// Component looks up a component by name or by type.
func (idx *Index) Component(name string) (Match, bool) {
	m, ok := idx.components[name]
	return m, ok
}

// Route finds the first route template matching path. Templates use
// "{name}" for a parameter, "{name:int}" for a numeric one, and a trailing
// "{name?}" for an optional last segment.
func (idx *Index) Route(path string) (Match, bool) {
	parts := splitPath(path)
	for _, r := range idx.routes {
		if params, ok := r.match(parts); ok {
			return Match{Module: r.module, Type: r.typ, Params: params}, true
		}
	}
	return Match{}, false
}

// Len returns the number of components and routes indexed.
func (idx *Index) Len() (components, routes int) {
	return len(idx.components), len(idx.routes)
}

func (r routeEntry) match(parts []string) (map[string]string, bool) {
	params := map[string]string{}
	for i, seg := range r.segments {
		if i >= len(parts) {
			if seg.optional && i == len(r.segments)-1 {
				return params, true
			}
			return nil, false
		}
		part := parts[i]
		if seg.param == "" {
			if !strings.EqualFold(seg.literal, part) {
				return nil, false
			}
			continue
		}
		if seg.constraint == "int" {
			if _, err := strconv.ParseInt(part, 10, 64); err != nil {
				return nil, false
			}
		}
		params[seg.param] = part
	}
	return params, len(parts) == len(r.segments)
}

func parseTemplate(template string) []segment {
	parts := splitPath(template)
	segs := make([]segment, len(parts))
	for i, p := range parts {
		if !strings.HasPrefix(p, "{") || !strings.HasSuffix(p, "}") {
			segs[i] = segment{literal: p}
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(p, "{"), "}")
		seg := segment{}
		if strings.HasSuffix(name, "?") {
			seg.optional = true
			name = strings.TrimSuffix(name, "?")
		}
		name, seg.constraint, _ = strings.Cut(name, ":")
		seg.param = name
		segs[i] = seg
	}
	return segs
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
