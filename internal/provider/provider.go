// SPDX-License-Identifier: MPL-2.0

// Package provider turns a module identity into module bytes. It asks a
// location strategy where to look, probes the candidates in order through a
// fetcher, and caches the first hit for the lifetime of the provider.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/invowk/lazyload/internal/fetch"
	"github.com/invowk/lazyload/internal/locator"
	"github.com/invowk/lazyload/internal/resolution"
	"github.com/invowk/lazyload/pkg/modident"
)

// ErrPayloadNotFound is returned when no candidate location yields primary bytes.
var ErrPayloadNotFound = errors.New("module payload not found")

type (
	// Payload is the raw material for loading one module.
	Payload struct {
		Identity modident.Identity
		// Primary is the module binary. Never empty.
		Primary []byte
		// Debug holds companion debug data. Only populated in debug mode.
		Debug []byte
		// Location is the candidate the bytes came from.
		Location locator.Candidate
	}

	// Provider resolves payloads. Safe for concurrent use.
	Provider struct {
		strategy locator.Strategy
		fetcher  fetch.Fetcher
		cmp      modident.Comparer
		debug    bool
		logger   *slog.Logger

		// cache maps comparer keys to *Payload.
		cache sync.Map
	}

	// Option configures a Provider.
	Option func(*Provider)

	// NotFoundError reports the candidates that were probed without a hit. It
	// wraps ErrPayloadNotFound for errors.Is() compatibility.
	NotFoundError struct {
		Identity   modident.Identity
		Candidates []locator.Candidate
	}
)

// WithComparer sets the equality policy used to key the cache.
func WithComparer(c modident.Comparer) Option {
	return func(p *Provider) { p.cmp = c }
}

// WithDebug enables fetching companion debug data.
func WithDebug(debug bool) Option {
	return func(p *Provider) { p.debug = debug }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// New creates a Provider.
func New(strategy locator.Strategy, fetcher fetch.Fetcher, opts ...Option) *Provider {
	p := &Provider{
		strategy: strategy,
		fetcher:  fetcher,
		cmp:      modident.ByName,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Payload returns the bytes for id, from cache when possible. node is the
// resolution context the request originates from; strategies may use it to
// pick locations.
func (p *Provider) Payload(ctx context.Context, id modident.Identity, node *resolution.Node) (*Payload, error) {
	key := p.cmp.Key(id)
	if cached, ok := p.cache.Load(key); ok {
		return cached.(*Payload), nil
	}

	candidates := p.strategy.Candidates(id, node)
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		payload, ok := p.probe(ctx, id, c)
		if !ok {
			continue
		}
		p.logger.Debug("module payload located", "module", id.String(), "location", c.Primary, "debug", len(payload.Debug) > 0)
		// A concurrent probe may have stored first; keep whichever won.
		actual, _ := p.cache.LoadOrStore(key, payload)
		return actual.(*Payload), nil
	}

	return nil, &NotFoundError{Identity: id, Candidates: candidates}
}

// probe fetches one candidate. The companion is requested alongside the
// primary but only counts when the primary is present.
func (p *Provider) probe(ctx context.Context, id modident.Identity, c locator.Candidate) (*Payload, bool) {
	var (
		primary, debug []byte
		primaryOK      bool
		wg             sync.WaitGroup
	)
	wg.Go(func() {
		primary, primaryOK = p.fetcher.Fetch(ctx, c.Primary)
	})
	if p.debug && c.Companion != "" {
		wg.Go(func() {
			debug, _ = p.fetcher.Fetch(ctx, c.Companion)
		})
	}
	wg.Wait()

	if !primaryOK || len(primary) == 0 {
		return nil, false
	}
	return &Payload{Identity: id, Primary: primary, Debug: debug, Location: c}, true
}

// Cached reports whether a payload for id is cached.
func (p *Provider) Cached(id modident.Identity) bool {
	_, ok := p.cache.Load(p.cmp.Key(id))
	return ok
}

// Invalidate drops the cached payload for id so the next request re-fetches.
func (p *Provider) Invalidate(id modident.Identity) bool {
	_, ok := p.cache.LoadAndDelete(p.cmp.Key(id))
	return ok
}

// InvalidateName drops every cached payload whose module name matches,
// whatever its version. It returns the number of entries dropped.
func (p *Provider) InvalidateName(name modident.Name) int {
	dropped := 0
	p.cache.Range(func(key, value any) bool {
		if strings.EqualFold(string(value.(*Payload).Identity.Name), string(name)) {
			if p.cache.CompareAndDelete(key, value) {
				dropped++
			}
		}
		return true
	})
	return dropped
}

// InvalidateAll empties the cache.
func (p *Provider) InvalidateAll() {
	p.cache.Clear()
}

// Candidates exposes the strategy's probe order for id.
func (p *Provider) Candidates(id modident.Identity, node *resolution.Node) []locator.Candidate {
	return p.strategy.Candidates(id, node)
}

// Error implements the error interface for NotFoundError.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s (%d locations probed)", ErrPayloadNotFound, e.Identity, len(e.Candidates))
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *NotFoundError) Unwrap() error { return ErrPayloadNotFound }
