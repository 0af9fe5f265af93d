// SPDX-License-Identifier: MPL-2.0

package isolation

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/invowk/lazyload/internal/provider"
	"github.com/invowk/lazyload/pkg/modident"
)

// wasmContext is a Context over a namespace. ownsRuntime decides whether
// disposal reclaims the namespace or only detaches from it.
type wasmContext struct {
	name        string
	ns          *namespace
	ownsRuntime bool
	debug       bool
	start       []string
	logger      *slog.Logger
	onDispose   func(*wasmContext)

	loadMu sync.Mutex

	mu  sync.Mutex
	own []*Module

	disposed atomic.Bool
}

func (c *wasmContext) Name() string { return c.name }

func (c *wasmContext) Load(ctx context.Context, payload *provider.Payload) (*Module, error) {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	if c.disposed.Load() {
		return nil, ErrContextDisposed
	}

	m, created, err := c.ns.instantiate(ctx, c.name, payload, c.start)
	if err != nil {
		return nil, err
	}
	if !created {
		return m, nil
	}
	c.mu.Lock()
	c.own = append(c.own, m)
	c.mu.Unlock()
	c.logger.Debug("module instantiated", "context", c.name, "module", payload.Identity.String(), "location", m.Location)
	return m, nil
}

func (c *wasmContext) LoadByName(ctx context.Context, id modident.Identity) (*Module, bool) {
	if c.disposed.Load() {
		return nil, false
	}
	if m, ok := c.ns.lookup(id); ok {
		return m, true
	}
	return c.ns.materializeBuiltin(ctx, id)
}

func (c *wasmContext) OwnModules() []*Module {
	if c.disposed.Load() {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.own)
}

func (c *wasmContext) AllModules() []*Module {
	if c.disposed.Load() {
		return nil
	}
	return c.ns.snapshot()
}

func (c *wasmContext) Dispose(ctx context.Context) error {
	if !c.disposed.CompareAndSwap(false, true) {
		return nil
	}
	// Wait for an in-progress Load to finish before tearing down.
	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	if c.onDispose != nil {
		c.onDispose(c)
	}

	switch {
	case !c.ownsRuntime:
		c.logger.Debug("shared isolation context cannot be reclaimed, detaching", "context", c.name)
		return nil
	case c.debug:
		c.logger.Warn("debug mode keeps isolation context alive, modules not reclaimed", "context", c.name)
		return nil
	}

	if err := c.ns.close(ctx); err != nil {
		// Reclaim failures never surface to callers.
		c.logger.Warn("isolation context reclaim incomplete", "context", c.name, "error", err)
	}
	return nil
}

func (c *wasmContext) Disposed() bool { return c.disposed.Load() }

var _ Context = (*wasmContext)(nil)
