// SPDX-License-Identifier: MPL-2.0

package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/invowk/lazyload/internal/config"
	"github.com/invowk/lazyload/internal/fetch"
	"github.com/invowk/lazyload/internal/initializer"
	"github.com/invowk/lazyload/internal/isolation"
	"github.com/invowk/lazyload/internal/loader"
	"github.com/invowk/lazyload/internal/locator"
	"github.com/invowk/lazyload/internal/manifest"
	"github.com/invowk/lazyload/internal/provider"
	"github.com/invowk/lazyload/pkg/modident"
	"github.com/invowk/lazyload/pkg/wasmmeta"
)

// DefaultSession names the session used when none is given.
const DefaultSession = "default"

// ErrHostClosed is returned by operations on a closed host.
var ErrHostClosed = errors.New("host closed")

type (
	// Option configures a Host.
	Option func(*Host)

	// Host owns the shared loader stack and the per-session loaders built on it.
	Host struct {
		cfg     *config.Config
		baseDir string
		logger  *slog.Logger
		client  *http.Client
		reader  wasmmeta.Reader

		sources fetch.Chain
		dirs    []string
		closers []io.Closer
		fetcher fetch.Fetcher

		cmp       modident.Comparer
		layout    locator.Layout
		hints     *hintSet
		manifests *manifest.Repository
		index     atomic.Pointer[manifest.Index]
		provider  *provider.Provider
		factory   isolation.Factory

		mu       sync.Mutex
		sessions map[string]*loader.Loader
		closed   bool

		watcher watchState
	}

	// hintSet merges configured hints with hints discovered from manifests.
	hintSet struct {
		static     []string
		discovered atomic.Pointer[[]string]
	}
)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Host) { h.logger = l }
}

// WithBaseDir sets the directory relative dir and bundle sources resolve
// against. Defaults to the working directory.
func WithBaseDir(dir string) Option {
	return func(h *Host) { h.baseDir = dir }
}

// WithHTTPClient sets the client used by http sources.
func WithHTTPClient(c *http.Client) Option {
	return func(h *Host) { h.client = c }
}

// WithSources replaces the configured sources with fetchers built by the caller.
func WithSources(sources ...fetch.Fetcher) Option {
	return func(h *Host) { h.sources = fetch.Chain(sources) }
}

// WithReader replaces the binary metadata reader.
func WithReader(r wasmmeta.Reader) Option {
	return func(h *Host) { h.reader = r }
}

// New builds a host from cfg. A nil cfg uses config.DefaultConfig().
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Host, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if ok, errs := cfg.IsValid(); !ok {
		return nil, errors.Join(errs...)
	}

	h := &Host{
		cfg:      cfg,
		baseDir:  ".",
		logger:   slog.Default(),
		reader:   wasmmeta.BinaryReader{},
		sessions: make(map[string]*loader.Loader),
		hints:    &hintSet{static: slices.Clone(cfg.Hints)},
		layout:   layoutFor(cfg.Layout),
	}
	for _, opt := range opts {
		opt(h)
	}

	cmp, err := modident.PolicyFor(modident.Policy(cfg.Equality))
	if err != nil {
		return nil, err
	}
	h.cmp = cmp

	if h.sources == nil {
		if err := h.openSources(cfg.Sources); err != nil {
			return nil, errors.Join(err, h.closeSources())
		}
	}
	h.fetcher = fetch.WithTimeout(h.sources, cfg.Fetch.Timeout)

	strategy, err := locator.New(locator.Kind(cfg.Strategy), h.hints, h.layout)
	if err != nil {
		return nil, errors.Join(err, h.closeSources())
	}
	h.provider = provider.New(strategy, h.fetcher,
		provider.WithComparer(cmp),
		provider.WithDebug(cfg.Debug),
		provider.WithLogger(h.logger),
	)

	h.factory, err = isolation.NewFactory(ctx, isolation.Kind(cfg.Isolation),
		isolation.WithDebug(cfg.Debug),
		isolation.WithStartFunctions(cfg.StartFunctions...),
		isolation.WithComparer(cmp),
		isolation.WithLogger(h.logger),
	)
	if err != nil {
		return nil, errors.Join(err, h.closeSources())
	}

	if cfg.Manifests {
		h.manifests = manifest.NewRepository(h.fetcher, h.logger)
		if err := h.Refresh(ctx); err != nil {
			h.logger.Warn("module manifests unavailable", "error", err)
		}
	}
	if cfg.Watch && len(h.dirs) > 0 {
		if err := h.StartWatching(ctx, WatchOptions{}); err != nil {
			h.logger.Warn("module sources not watched", "error", err)
		}
	}
	return h, nil
}

func (h *Host) openSources(sources []config.SourceConfig) error {
	for i, src := range sources {
		switch src.Kind {
		case config.SourceDir:
			dir := h.resolvePath(src.Location)
			info, err := os.Stat(dir)
			if err != nil || !info.IsDir() {
				return &config.InvalidSourceError{Index: i, Source: src, Reason: fmt.Sprintf("directory %s does not exist", dir)}
			}
			h.dirs = append(h.dirs, dir)
			h.sources = append(h.sources, fetch.NewDir(dir, h.logger))
		case config.SourceHTTP:
			opts := []fetch.HTTPOption{
				fetch.WithRetries(h.cfg.Fetch.Retries),
				fetch.WithHTTPLogger(h.logger),
			}
			if h.client != nil {
				opts = append(opts, fetch.WithClient(h.client))
			}
			f, err := fetch.NewHTTP(src.Location, opts...)
			if err != nil {
				return &config.InvalidSourceError{Index: i, Source: src, Reason: err.Error()}
			}
			h.sources = append(h.sources, f)
		case config.SourceBundle:
			b, err := fetch.OpenBundle(h.resolvePath(src.Location), h.logger)
			if err != nil {
				return &config.InvalidSourceError{Index: i, Source: src, Reason: err.Error()}
			}
			h.closers = append(h.closers, b)
			h.sources = append(h.sources, b)
		default:
			return &config.InvalidSourceError{Index: i, Source: src, Reason: fmt.Sprintf("unknown kind %q", src.Kind)}
		}
	}
	return nil
}

func (h *Host) resolvePath(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(h.baseDir, p)
}

func (h *Host) closeSources() error {
	var errs []error
	for _, c := range h.closers {
		errs = append(errs, c.Close())
	}
	h.closers = nil
	return errors.Join(errs...)
}

// layoutFor applies configured overrides to the default layout.
func layoutFor(c config.LayoutConfig) locator.Layout {
	l := locator.DefaultLayout()
	if c.Extension != "" {
		l.Extension = c.Extension
	}
	if c.DebugExtension != "" {
		l.DebugExtension = c.DebugExtension
	}
	if c.SharedDir != "" {
		l.SharedDir = c.SharedDir
	}
	return l
}

// Config returns the configuration the host was built from.
func (h *Host) Config() *config.Config { return h.cfg }

// Provider returns the shared data provider.
func (h *Host) Provider() *provider.Provider { return h.provider }

// Comparer returns the identity equality policy in effect.
func (h *Host) Comparer() modident.Comparer { return h.cmp }

// Layout returns the effective file layout.
func (h *Host) Layout() locator.Layout { return h.layout }

// Session returns the loader for name, creating it and its isolation context
// on first use. An empty name selects DefaultSession.
func (h *Host) Session(ctx context.Context, name string) (*loader.Loader, error) {
	if name == "" {
		name = DefaultSession
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHostClosed
	}
	if l, ok := h.sessions[name]; ok {
		return l, nil
	}

	scope, err := h.factory.Create(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create session %s: %w", name, err)
	}
	l := loader.New(h.provider, scope,
		loader.WithComparer(h.cmp),
		loader.WithReader(h.reader),
		loader.WithLogger(h.logger.With("session", scope.Name())),
	)
	if h.cfg.InitExport != "" {
		l.Subscribe(initializer.Hook(h.cfg.InitExport, initializer.WithLogger(h.logger)))
	}
	h.sessions[name] = l
	h.logger.Debug("session created", "session", name, "isolation", h.factory.Kind())
	return l, nil
}

// Load loads id into the named session.
func (h *Host) Load(ctx context.Context, session string, id modident.Identity) (*isolation.Module, error) {
	l, err := h.Session(ctx, session)
	if err != nil {
		return nil, err
	}
	return l.Load(ctx, id)
}

// Sessions returns the names of live sessions, sorted.
func (h *Host) Sessions() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, 0, len(h.sessions))
	for name := range h.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Release closes the named session and disposes its isolation context.
// Releasing an unknown session is a no-op.
func (h *Host) Release(ctx context.Context, name string) error {
	if name == "" {
		name = DefaultSession
	}
	h.mu.Lock()
	l, ok := h.sessions[name]
	delete(h.sessions, name)
	h.mu.Unlock()
	if !ok {
		return nil
	}
	return l.Close(ctx)
}

// Locate returns the candidate locations for id in probe order, as seen from
// a top-level request.
func (h *Host) Locate(id modident.Identity) []locator.Candidate {
	return h.provider.Candidates(id, nil)
}

// Refresh re-reads the manifests of every module the sources can list and
// rebuilds the hint set and component index. It is a no-op when manifests are
// disabled.
func (h *Host) Refresh(ctx context.Context) error {
	if h.manifests == nil {
		return nil
	}
	modules, err := h.sources.Modules(ctx)
	if err != nil {
		return err
	}
	manifests := h.manifests.All(ctx, modules)
	h.hints.set(manifest.NewHints(manifests).ModuleHints())
	idx := manifest.NewIndex(manifests)
	h.index.Store(idx)

	components, routes := idx.Len()
	h.logger.Debug("module manifests refreshed", "modules", len(modules), "manifests", len(manifests),
		"components", components, "routes", routes)
	return nil
}

// Component resolves a component name to the module that provides it.
func (h *Host) Component(name string) (manifest.Match, bool) {
	idx := h.index.Load()
	if idx == nil {
		return manifest.Match{}, false
	}
	return idx.Component(name)
}

// Route resolves a request path to the module that serves it.
func (h *Host) Route(path string) (manifest.Match, bool) {
	idx := h.index.Load()
	if idx == nil {
		return manifest.Match{}, false
	}
	return idx.Route(path)
}

// Hints returns the directories probed before a module's own, in order.
func (h *Host) Hints() []string {
	return h.hints.ModuleHints()
}

// Close stops watching, closes every session, then the factory and sources.
// Calling it again is a no-op.
func (h *Host) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	sessions := h.sessions
	h.sessions = make(map[string]*loader.Loader)
	h.mu.Unlock()

	h.StopWatching()

	var errs []error
	for _, l := range sessions {
		errs = append(errs, l.Close(ctx))
	}
	errs = append(errs, h.factory.Close(ctx), h.closeSources())
	return errors.Join(errs...)
}

// ModuleHints implements locator.HintsProvider.
func (s *hintSet) ModuleHints() []string {
	out := slices.Clone(s.static)
	if d := s.discovered.Load(); d != nil {
		for _, name := range *d {
			if !slices.Contains(out, name) {
				out = append(out, name)
			}
		}
	}
	return out
}

func (s *hintSet) set(names []string) {
	s.discovered.Store(&names)
}
