// SPDX-License-Identifier: MPL-2.0

package isolation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tetratelabs/wazero"

	"github.com/invowk/lazyload/pkg/modident"
)

type (
	// Option configures a factory.
	Option func(*options)

	options struct {
		debug  bool
		start  []string
		logger *slog.Logger
		cmp    modident.Comparer
	}

	wasmFactory struct {
		kind    Kind
		opts    options
		cache   wazero.CompilationCache
		runtime wazero.RuntimeConfig

		mu       sync.Mutex
		shared   *namespace
		contexts map[string]*wasmContext
		seq      int
		closed   bool
	}
)

// WithDebug keeps companion debug data and disables reclaim on dispose.
func WithDebug(debug bool) Option {
	return func(o *options) { o.debug = debug }
}

// WithStartFunctions sets the exports invoked on instantiation, when present.
func WithStartFunctions(names ...string) Option {
	return func(o *options) { o.start = names }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithComparer sets the identity equality policy used for visibility.
func WithComparer(c modident.Comparer) Option {
	return func(o *options) { o.cmp = c }
}

// NewFactory returns a factory for kind. An empty kind selects sandboxed.
func NewFactory(ctx context.Context, kind Kind, opts ...Option) (Factory, error) {
	if kind == "" {
		kind = KindSandboxed
	}
	if err := kind.Validate(); err != nil {
		return nil, err
	}

	o := options{
		start:  []string{DefaultStartFunction},
		logger: slog.Default(),
		cmp:    modident.ByName,
	}
	for _, opt := range opts {
		opt(&o)
	}

	cache := wazero.NewCompilationCache()
	f := &wasmFactory{
		kind:  kind,
		opts:  o,
		cache: cache,
		runtime: wazero.NewRuntimeConfig().
			WithCompilationCache(cache).
			WithDebugInfoEnabled(o.debug),
		contexts: make(map[string]*wasmContext),
	}

	if kind == KindFlat {
		f.shared = newNamespace(ctx, f.runtime, o.cmp, o.logger)
		for _, name := range BuiltinNames() {
			if _, ok := f.shared.materializeBuiltin(ctx, modident.Named(name)); !ok {
				return nil, errors.Join(
					fmt.Errorf("failed to instantiate builtin module %s", name),
					f.shared.close(ctx),
				)
			}
		}
	}
	return f, nil
}

func (f *wasmFactory) Kind() Kind { return f.kind }

// Create returns a new context. An empty or duplicate name gets a unique suffix.
func (f *wasmFactory) Create(ctx context.Context, name string) (Context, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ErrFactoryClosed
	}

	f.seq++
	if name == "" {
		name = fmt.Sprintf("%s-%d", f.kind, f.seq)
	}
	if _, taken := f.contexts[name]; taken {
		name = fmt.Sprintf("%s-%d", name, f.seq)
	}

	c := &wasmContext{
		name:   name,
		debug:  f.opts.debug,
		start:  f.opts.start,
		logger: f.opts.logger,
	}
	c.onDispose = f.forget
	switch f.kind {
	case KindFlat:
		c.ns = f.shared
	default:
		c.ns = newNamespace(ctx, f.runtime, f.opts.cmp, f.opts.logger)
		c.ownsRuntime = true
	}
	f.contexts[name] = c
	return c, nil
}

func (f *wasmFactory) forget(c *wasmContext) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.contexts[c.name] == c && !(c.ownsRuntime && c.debug) {
		delete(f.contexts, c.name)
	}
}

// Close disposes every remaining context and releases all runtimes, including
// ones kept alive by debug mode.
func (f *wasmFactory) Close(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	remaining := make([]*wasmContext, 0, len(f.contexts))
	for _, c := range f.contexts {
		remaining = append(remaining, c)
	}
	f.contexts = nil
	f.mu.Unlock()

	var errs []error
	for _, c := range remaining {
		errs = append(errs, c.Dispose(ctx))
		if c.ownsRuntime {
			errs = append(errs, c.ns.close(ctx))
		}
	}
	if f.shared != nil {
		errs = append(errs, f.shared.close(ctx))
	}
	errs = append(errs, f.cache.Close(ctx))
	return errors.Join(errs...)
}
