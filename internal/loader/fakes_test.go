// SPDX-License-Identifier: MPL-2.0

package loader

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/invowk/lazyload/internal/isolation"
	"github.com/invowk/lazyload/internal/locator"
	"github.com/invowk/lazyload/internal/provider"
	"github.com/invowk/lazyload/internal/resolution"
	"github.com/invowk/lazyload/pkg/modident"
)

// fakeProvider serves a payload for every known name; the payload bytes are
// the module name so fakeReader can look up its dependencies.
type fakeProvider struct {
	mu      sync.Mutex
	known   map[string]bool
	fetches map[string]int
	// gate, when set, blocks Payload until closed.
	gate chan struct{}
	// arrived receives the name of every module whose payload was requested.
	arrived chan string
}

func newFakeProvider(names ...string) *fakeProvider {
	p := &fakeProvider{known: map[string]bool{}, fetches: map[string]int{}}
	for _, n := range names {
		p.known[n] = true
	}
	return p
}

func (p *fakeProvider) Payload(ctx context.Context, id modident.Identity, _ *resolution.Node) (*provider.Payload, error) {
	name := strings.ToLower(string(id.Name))
	p.mu.Lock()
	p.fetches[name]++
	known := p.known[name]
	p.mu.Unlock()

	if p.arrived != nil {
		p.arrived <- name
	}
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if !known {
		return nil, &provider.NotFoundError{Identity: id}
	}
	return &provider.Payload{
		Identity: id,
		Primary:  []byte(name),
		Location: locator.Candidate{Primary: name + "/" + name + ".wasm"},
	}, nil
}

func (p *fakeProvider) fetchCount(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetches[name]
}

// fakeReader maps payload bytes (a module name) to dependency names.
type fakeReader map[string][]string

func (r fakeReader) Dependencies(bin []byte) ([]modident.Identity, error) {
	if string(bin) == "corrupt" {
		return nil, errors.New("corrupt binary")
	}
	var out []modident.Identity
	for _, d := range r[string(bin)] {
		out = append(out, modident.Named(d))
	}
	return out, nil
}

// fakeScope is an in-memory isolation context.
type fakeScope struct {
	mu       sync.Mutex
	name     string
	own      []*isolation.Module
	foreign  []*isolation.Module
	builtins map[string]bool
	failing  map[string]bool
	loads    map[string]int
	disposed bool
}

func newFakeScope() *fakeScope {
	return &fakeScope{name: "fake", builtins: map[string]bool{}, failing: map[string]bool{}, loads: map[string]int{}}
}

func (s *fakeScope) Name() string { return s.name }

func (s *fakeScope) Load(_ context.Context, p *provider.Payload) (*isolation.Module, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := string(p.Primary)
	s.loads[name]++
	if s.failing[name] {
		return nil, &isolation.InstantiateError{Identity: p.Identity, Cause: errors.New("boom")}
	}
	m := &isolation.Module{Identity: p.Identity, Owner: s.name, Location: p.Location.Primary}
	s.own = append(s.own, m)
	return m, nil
}

func (s *fakeScope) LoadByName(_ context.Context, id modident.Identity) (*isolation.Module, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.builtins[string(id.Name)] {
		return nil, false
	}
	m := &isolation.Module{Identity: id, Builtin: true}
	s.foreign = append(s.foreign, m)
	delete(s.builtins, string(id.Name))
	return m, true
}

func (s *fakeScope) OwnModules() []*isolation.Module {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return nil
	}
	return slices.Clone(s.own)
}

func (s *fakeScope) AllModules() []*isolation.Module {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return nil
	}
	return append(slices.Clone(s.foreign), s.own...)
}

func (s *fakeScope) Dispose(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposed = true
	return nil
}

func (s *fakeScope) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

func (s *fakeScope) loadCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads[name]
}

var _ isolation.Context = (*fakeScope)(nil)
