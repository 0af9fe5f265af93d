// SPDX-License-Identifier: MPL-2.0

package loader

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/invowk/lazyload/internal/dag"
	"github.com/invowk/lazyload/internal/isolation"
	"github.com/invowk/lazyload/internal/provider"
	"github.com/invowk/lazyload/internal/resolution"
	"github.com/invowk/lazyload/pkg/modident"
	"github.com/invowk/lazyload/pkg/wasmmeta"
)

// DefaultRetractAttempts bounds retries when removing an in-flight entry.
const DefaultRetractAttempts = 5

type (
	// DataProvider supplies module bytes. *provider.Provider implements it.
	DataProvider interface {
		Payload(ctx context.Context, id modident.Identity, node *resolution.Node) (*provider.Payload, error)
	}

	// OnLoadFunc runs after a module becomes visible and before the Load call
	// that activated it returns. Errors are logged and do not fail the load.
	OnLoadFunc func(ctx context.Context, m *isolation.Module) error

	// Subscription identifies a registered OnLoadFunc.
	Subscription struct {
		id uint64
	}

	// Loader loads modules into the isolation context it owns. Safe for
	// concurrent use.
	Loader struct {
		provider        DataProvider
		scope           isolation.Context
		reader          wasmmeta.Reader
		cmp             modident.Comparer
		logger          *slog.Logger
		retractAttempts int

		// inflight maps comparer keys to *pending.
		inflight sync.Map

		subMu   sync.RWMutex
		subs    []subscriber
		nextSub uint64

		// waits records which in-progress load waits on which identity.
		waitMu sync.Mutex
		waits  *dag.Graph

		closed atomic.Bool
	}

	// Option configures a Loader.
	Option func(*Loader)

	subscriber struct {
		id uint64
		fn OnLoadFunc
	}

	// pending is the shared handle for one in-flight load.
	pending struct {
		done   chan struct{}
		module *isolation.Module
		err    error
	}
)

// WithComparer sets the identity equality policy.
func WithComparer(c modident.Comparer) Option {
	return func(l *Loader) { l.cmp = c }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// WithReader replaces the binary metadata reader.
func WithReader(r wasmmeta.Reader) Option {
	return func(l *Loader) { l.reader = r }
}

// WithRetractAttempts sets the bound on in-flight entry removal retries.
func WithRetractAttempts(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.retractAttempts = n
		}
	}
}

// New creates a Loader that owns scope. Closing the loader disposes scope.
func New(p DataProvider, scope isolation.Context, opts ...Option) *Loader {
	l := &Loader{
		provider:        p,
		scope:           scope,
		reader:          wasmmeta.BinaryReader{},
		cmp:             modident.ByName,
		logger:          slog.Default(),
		retractAttempts: DefaultRetractAttempts,
		waits:           dag.New(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Scope returns the isolation context the loader loads into.
func (l *Loader) Scope() isolation.Context { return l.scope }

// Load returns the module for id, loading it and its dependencies first if
// needed. A module that cannot be loaded yields a *NotFoundError.
func (l *Loader) Load(ctx context.Context, id modident.Identity) (*isolation.Module, error) {
	if err := id.Validate(); err != nil {
		return nil, &NotFoundError{Identity: id, Cause: err}
	}
	return l.load(ctx, id, nil)
}

// Loaded returns the module for id if it is already visible. It never loads.
func (l *Loader) Loaded(id modident.Identity) (*isolation.Module, bool) {
	if l.closed.Load() || l.scope.Disposed() {
		return nil, false
	}
	for _, m := range l.scope.AllModules() {
		if l.cmp.Equal(m.Identity, id) {
			return m, true
		}
	}
	return nil, false
}

// Subscribe registers fn to run after every successful load.
func (l *Loader) Subscribe(fn OnLoadFunc) Subscription {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	l.nextSub++
	l.subs = append(l.subs, subscriber{id: l.nextSub, fn: fn})
	return Subscription{id: l.nextSub}
}

// Unsubscribe removes a registration. Unknown subscriptions are ignored.
func (l *Loader) Unsubscribe(s Subscription) {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	l.subs = slices.DeleteFunc(l.subs, func(sub subscriber) bool { return sub.id == s.id })
}

// Close disposes the owned isolation context. Subsequent loads report not found.
func (l *Loader) Close(ctx context.Context) error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	return l.scope.Dispose(ctx)
}

func (l *Loader) load(ctx context.Context, id modident.Identity, parent *resolution.Node) (*isolation.Module, error) {
	if l.closed.Load() || l.scope.Disposed() {
		return nil, &NotFoundError{Identity: id, Cause: ErrLoaderClosed}
	}

	if m, ok := l.Loaded(id); ok {
		return m, nil
	}

	key := l.cmp.Key(id)
	handle := &pending{done: make(chan struct{})}
	if existing, loaded := l.inflight.LoadOrStore(key, handle); loaded {
		l.logger.Debug("waiting for in-flight module load", "module", id.String())
		return existing.(*pending).wait(ctx, id)
	}

	var node *resolution.Node
	if parent == nil {
		node = resolution.NewRoot(id)
	} else {
		node = parent.NewScope(id)
	}

	// A load that finished between the visibility check and publishing the
	// handle has already retracted its entry; look again before doing work.
	m, fresh, err := l.resolveUnlessVisible(ctx, id, node)
	if err != nil {
		l.logger.Debug("module failed to load", "module", id.String(), "root", node.Root().Identity().String(), "path", node.String(), "error", err)
	} else if fresh {
		l.logger.Debug("module loaded", "module", id.String(), "owner", m.Owner, "location", m.Location)
	}

	handle.resolve(m, err)
	if err == nil && fresh {
		l.notify(ctx, m)
	}
	if rerr := l.retract(key, handle, id); rerr != nil {
		return nil, rerr
	}
	return m, err
}

func (l *Loader) resolveUnlessVisible(ctx context.Context, id modident.Identity, node *resolution.Node) (*isolation.Module, bool, error) {
	if m, ok := l.Loaded(id); ok {
		return m, false, nil
	}
	m, err := l.resolve(ctx, id, node)
	return m, err == nil, err
}

func (l *Loader) resolve(ctx context.Context, id modident.Identity, node *resolution.Node) (*isolation.Module, error) {
	if m, ok := l.scope.LoadByName(ctx, id); ok {
		return m, nil
	}

	payload, err := l.provider.Payload(ctx, id, node)
	if err != nil {
		return nil, &NotFoundError{Identity: id, Cause: err}
	}

	deps, err := l.reader.Dependencies(payload.Primary)
	if err != nil {
		return nil, &NotFoundError{Identity: id, Cause: err}
	}
	if err := l.loadDependencies(ctx, id, node, l.missing(deps)); err != nil {
		return nil, &NotFoundError{Identity: id, Cause: err}
	}

	if l.closed.Load() {
		return nil, &NotFoundError{Identity: id, Cause: ErrLoaderClosed}
	}
	m, err := l.scope.Load(ctx, payload)
	if err != nil {
		return nil, &NotFoundError{Identity: id, Cause: err}
	}
	return m, nil
}

// missing filters out dependencies that are already visible.
func (l *Loader) missing(deps []modident.Identity) []modident.Identity {
	visible := l.scope.AllModules()
	return slices.DeleteFunc(slices.Clone(deps), func(dep modident.Identity) bool {
		return slices.ContainsFunc(visible, func(m *isolation.Module) bool {
			return l.cmp.Equal(m.Identity, dep)
		})
	})
}

// loadDependencies loads deps concurrently and waits for every one of them to
// settle, successful or not, before reporting.
func (l *Loader) loadDependencies(ctx context.Context, id modident.Identity, node *resolution.Node, deps []modident.Identity) error {
	if len(deps) == 0 {
		return nil
	}

	// The group has no shared context: a failing sibling does not cancel the
	// others, and Wait returns only once every load has settled.
	failures := make([]error, len(deps))
	var g errgroup.Group
	for i, dep := range deps {
		g.Go(func() error {
			failures[i] = l.loadDependency(ctx, id, node, dep)
			return failures[i]
		})
	}
	if g.Wait() == nil {
		return nil
	}

	failed := slices.DeleteFunc(failures, func(err error) bool { return err == nil })
	for _, err := range failed {
		l.logger.Debug("dependency load failed", "module", id.String(), "error", err)
	}
	return &DependencyError{Identity: id, Failed: failed}
}

func (l *Loader) loadDependency(ctx context.Context, id modident.Identity, node *resolution.Node, dep modident.Identity) error {
	if l.cmp.Equal(dep, id) || node.HasAncestor(dep, l.cmp) {
		return &NotFoundError{Identity: dep, Cause: &dag.CycleError{Cycle: cyclePath(node, dep, l.cmp)}}
	}

	from, to := l.cmp.Key(id), l.cmp.Key(dep)
	if err := l.beginWait(from, to); err != nil {
		return &NotFoundError{Identity: dep, Cause: err}
	}
	defer l.endWait(from, to)

	_, err := l.load(ctx, dep, node)
	return err
}

// beginWait records that from waits on to, refusing the wait if to already
// (transitively) waits on from.
func (l *Loader) beginWait(from, to string) error {
	l.waitMu.Lock()
	defer l.waitMu.Unlock()
	if err := l.waits.CheckEdge(from, to); err != nil {
		return err
	}
	l.waits.AddEdge(from, to)
	return nil
}

func (l *Loader) endWait(from, to string) {
	l.waitMu.Lock()
	defer l.waitMu.Unlock()
	l.waits.RemoveEdge(from, to)
}

// notify runs subscribers in registration order, one at a time.
func (l *Loader) notify(ctx context.Context, m *isolation.Module) {
	l.subMu.RLock()
	subs := slices.Clone(l.subs)
	l.subMu.RUnlock()

	for _, sub := range subs {
		if err := sub.fn(ctx, m); err != nil {
			l.logger.Warn("on-load callback failed", "module", m.Identity.String(), "error", err)
		}
	}
}

// retract removes handle from the registry. It only fails if some other
// handle replaced ours, which the registry protocol never does.
func (l *Loader) retract(key string, handle *pending, id modident.Identity) error {
	for range l.retractAttempts {
		if l.inflight.CompareAndDelete(key, handle) {
			return nil
		}
		if current, ok := l.inflight.Load(key); !ok || current != handle {
			break
		}
	}
	err := &InvariantError{Identity: id, Op: "removing", Attempts: l.retractAttempts}
	l.logger.Error("in-flight registry corrupted", "module", id.String(), "error", err)
	return err
}

func (p *pending) resolve(m *isolation.Module, err error) {
	p.module, p.err = m, err
	close(p.done)
}

func (p *pending) wait(ctx context.Context, id modident.Identity) (*isolation.Module, error) {
	select {
	case <-p.done:
		return p.module, p.err
	case <-ctx.Done():
		return nil, &NotFoundError{Identity: id, Cause: ctx.Err()}
	}
}

// cyclePath returns the loop dep closes over node's ancestors, from the
// earlier occurrence of dep back to dep.
func cyclePath(node *resolution.Node, dep modident.Identity, cmp modident.Comparer) []string {
	loop := []string{dep.String()}
	for cur := node; cur != nil; cur = cur.Parent() {
		loop = append(loop, cur.Identity().String())
		if cmp.Equal(cur.Identity(), dep) {
			break
		}
	}
	slices.Reverse(loop)
	return loop
}

// String describes the loader for logs.
func (l *Loader) String() string {
	return fmt.Sprintf("loader(%s)", l.scope.Name())
}

var _ DataProvider = (*provider.Provider)(nil)
