// SPDX-License-Identifier: MPL-2.0

package isolation

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/tetratelabs/wazero"

	"github.com/invowk/lazyload/internal/provider"
	"github.com/invowk/lazyload/pkg/modident"
	"github.com/invowk/lazyload/pkg/wasmmeta"
)

// namespace is one wazero runtime plus the modules instantiated in it.
// Instance names in a runtime are unique and case-sensitive, so entries are
// keyed by the comparer key and registered under the requested name.
type namespace struct {
	runtime wazero.Runtime
	cmp     modident.Comparer
	logger  *slog.Logger

	// link serializes compile+instantiate across every context sharing the runtime.
	link sync.Mutex

	mu       sync.Mutex
	modules  map[string]*Module
	order    []*Module
	compiled []wazero.CompiledModule
	closed   bool
}

func newNamespace(ctx context.Context, cfg wazero.RuntimeConfig, cmp modident.Comparer, logger *slog.Logger) *namespace {
	return &namespace{
		runtime: wazero.NewRuntimeWithConfig(ctx, cfg),
		cmp:     cmp,
		logger:  logger,
		modules: make(map[string]*Module),
	}
}

func (ns *namespace) lookup(id modident.Identity) (*Module, bool) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	m, ok := ns.modules[ns.cmp.Key(id)]
	return m, ok
}

func (ns *namespace) snapshot() []*Module {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	return slices.Clone(ns.order)
}

// instantiate compiles and links the payload under its identity's name on
// behalf of owner. created is false when the namespace already held it.
func (ns *namespace) instantiate(ctx context.Context, owner string, p *provider.Payload, start []string) (m *Module, created bool, err error) {
	ns.link.Lock()
	defer ns.link.Unlock()

	id := p.Identity
	ns.mu.Lock()
	if ns.closed {
		ns.mu.Unlock()
		return nil, false, ErrContextDisposed
	}
	if existing, ok := ns.modules[ns.cmp.Key(id)]; ok {
		ns.mu.Unlock()
		return existing, false, nil
	}
	ns.mu.Unlock()

	bin, err := wasmmeta.RenameImports(p.Primary, ns.linkedName)
	if err != nil {
		return nil, false, &InstantiateError{Identity: id, Cause: err}
	}
	compiled, err := ns.runtime.CompileModule(ctx, bin)
	if err != nil {
		return nil, false, &InstantiateError{Identity: id, Cause: err}
	}
	inst, err := ns.runtime.InstantiateModule(ctx, compiled,
		wazero.NewModuleConfig().WithName(string(id.Name)).WithStartFunctions(start...))
	if err != nil {
		return nil, false, &InstantiateError{Identity: id, Cause: errors.Join(err, compiled.Close(ctx))}
	}

	m = &Module{
		Identity: id,
		Instance: inst,
		Debug:    p.Debug,
		Owner:    owner,
		Location: p.Location.Primary,
	}
	ns.mu.Lock()
	ns.compiled = append(ns.compiled, compiled)
	ns.register(m)
	ns.mu.Unlock()
	return m, true, nil
}

// linkedName maps an import module name to the instance name of the module
// it resolves to. Imports match registered modules through the comparer while
// the runtime links by exact name.
func (ns *namespace) linkedName(module string) string {
	if ns.runtime.Module(module) != nil {
		return module
	}
	ns.mu.Lock()
	defer ns.mu.Unlock()
	want := modident.Named(module)
	for _, m := range ns.order {
		if ns.cmp.Equal(m.Identity.WithoutVersion(), want) {
			return string(m.Identity.Name)
		}
	}
	return module
}

// materializeBuiltin instantiates a host module on first use.
func (ns *namespace) materializeBuiltin(ctx context.Context, id modident.Identity) (*Module, bool) {
	create, ok := builtins[string(id.Name)]
	if !ok {
		return nil, false
	}

	ns.mu.Lock()
	defer ns.mu.Unlock()
	if ns.closed {
		return nil, false
	}
	if m, ok := ns.modules[ns.cmp.Key(id)]; ok {
		return m, true
	}
	if err := create(ctx, ns.runtime, ns.logger); err != nil {
		ns.logger.Warn("builtin module unavailable", "module", id.String(), "error", err)
		return nil, false
	}
	m := &Module{Identity: modident.Identity{Name: id.Name}, Instance: ns.runtime.Module(string(id.Name)), Builtin: true}
	ns.register(m)
	return m, true
}

// register must be called with ns.mu held.
func (ns *namespace) register(m *Module) {
	ns.modules[ns.cmp.Key(m.Identity)] = m
	ns.order = append(ns.order, m)
}

func (ns *namespace) close(ctx context.Context) error {
	ns.mu.Lock()
	if ns.closed {
		ns.mu.Unlock()
		return nil
	}
	ns.closed = true
	compiled := ns.compiled
	ns.compiled = nil
	ns.mu.Unlock()

	errs := []error{ns.runtime.Close(ctx)}
	for _, c := range compiled {
		errs = append(errs, c.Close(ctx))
	}
	return errors.Join(errs...)
}
