// SPDX-License-Identifier: MPL-2.0

package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/invowk/lazyload/internal/watch"
	"github.com/invowk/lazyload/pkg/modident"
)

const (
	// WatchIdle means no watchers have been started.
	WatchIdle WatchState = iota
	// WatchStarting means StartWatching is registering directories.
	WatchStarting
	// WatchRunning means watchers are delivering changes.
	WatchRunning
	// WatchStopping means StopWatching is waiting for watchers to exit.
	WatchStopping
	// WatchStopped is terminal.
	WatchStopped
	// WatchFailed is terminal: a watcher could not start or exited with an error.
	WatchFailed
)

var (
	// ErrNoWatchableSources is returned when no dir source is configured.
	ErrNoWatchableSources = errors.New("no dir sources to watch")
	// ErrAlreadyWatching is returned by a second StartWatching call.
	ErrAlreadyWatching = errors.New("host is already watching")
)

type (
	// WatchState is the lifecycle state of a host's watchers.
	WatchState int32

	// ChangeFunc is told which modules changed after their cached payloads
	// and manifests were dropped.
	ChangeFunc func(ctx context.Context, changes []watch.Change) error

	// WatchOptions configures StartWatching.
	WatchOptions struct {
		Debounce time.Duration
		OnChange ChangeFunc
	}

	watchState struct {
		state   atomic.Int32
		mu      sync.Mutex
		cancel  context.CancelFunc
		wg      sync.WaitGroup
		errCh   chan error
		lastErr error
	}
)

// String returns a human-readable representation of the state.
func (s WatchState) String() string {
	switch s {
	case WatchIdle:
		return "idle"
	case WatchStarting:
		return "starting"
	case WatchRunning:
		return "running"
	case WatchStopping:
		return "stopping"
	case WatchStopped:
		return "stopped"
	case WatchFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the state is Stopped or Failed.
func (s WatchState) IsTerminal() bool {
	return s == WatchStopped || s == WatchFailed
}

// WatchState returns the current watcher state.
func (h *Host) WatchState() WatchState {
	return WatchState(h.watcher.state.Load())
}

// WatchErr returns a channel that receives the error of a watcher that exited
// abnormally.
func (h *Host) WatchErr() <-chan error {
	h.watcher.mu.Lock()
	defer h.watcher.mu.Unlock()
	if h.watcher.errCh == nil {
		h.watcher.errCh = make(chan error, 1)
	}
	return h.watcher.errCh
}

// StartWatching watches every dir source for module changes. Changed payloads
// and manifests are dropped from their caches before opts.OnChange runs, so
// the next load sees the new bytes. Watchers run until StopWatching or Close.
func (h *Host) StartWatching(ctx context.Context, opts WatchOptions) error {
	w := &h.watcher
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before watching: %w", err)
	}
	if !w.state.CompareAndSwap(int32(WatchIdle), int32(WatchStarting)) {
		return fmt.Errorf("%w (state %s)", ErrAlreadyWatching, h.WatchState())
	}
	if len(h.dirs) == 0 {
		w.fail(ErrNoWatchableSources)
		return ErrNoWatchableSources
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	watchers := make([]*watch.Watcher, 0, len(h.dirs))
	for _, dir := range h.dirs {
		wt, err := watch.New(watch.Config{
			BaseDir:  dir,
			Debounce: opts.Debounce,
			Logger:   h.logger,
			OnChange: func(ctx context.Context, changed []string) error {
				return h.applyChanges(ctx, changed, opts.OnChange)
			},
		})
		if err != nil {
			cancel()
			// Run on a cancelled context releases the fsnotify handle.
			for _, prev := range watchers {
				_ = prev.Run(runCtx)
			}
			err = fmt.Errorf("failed to watch %s: %w", dir, err)
			w.fail(err)
			return err
		}
		watchers = append(watchers, wt)
	}

	w.mu.Lock()
	w.cancel = cancel
	if w.errCh == nil {
		w.errCh = make(chan error, 1)
	}
	w.mu.Unlock()

	for _, wt := range watchers {
		w.wg.Go(func() {
			if err := wt.Run(runCtx); err != nil && runCtx.Err() == nil {
				h.logger.Error("watcher stopped", "dir", wt.BaseDir(), "error", err)
				w.fail(err)
			}
		})
	}
	w.state.CompareAndSwap(int32(WatchStarting), int32(WatchRunning))
	h.logger.Debug("watching module sources", "dirs", len(h.dirs))
	return nil
}

// StopWatching stops all watchers and waits for them to exit. It is a no-op
// when nothing is running.
func (h *Host) StopWatching() {
	w := &h.watcher
	for {
		cur := WatchState(w.state.Load())
		switch cur {
		case WatchIdle:
			if w.state.CompareAndSwap(int32(WatchIdle), int32(WatchStopped)) {
				return
			}
			continue
		case WatchStarting, WatchRunning, WatchFailed:
			if cur != WatchFailed && !w.state.CompareAndSwap(int32(cur), int32(WatchStopping)) {
				continue
			}
			w.mu.Lock()
			cancel := w.cancel
			w.mu.Unlock()
			if cancel != nil {
				cancel()
			}
			w.wg.Wait()
			if cur != WatchFailed {
				w.state.Store(int32(WatchStopped))
			}
			return
		default:
			return
		}
	}
}

// LastWatchError returns the error that moved watching into the Failed state.
func (h *Host) LastWatchError() error {
	h.watcher.mu.Lock()
	defer h.watcher.mu.Unlock()
	return h.watcher.lastErr
}

// Invalidate drops cached state for changes: payloads for binaries and
// companions, manifests (followed by a refresh) for manifest files.
func (h *Host) Invalidate(ctx context.Context, changes []watch.Change) {
	refresh := false
	for _, c := range changes {
		if c.Manifest {
			if h.manifests != nil {
				h.manifests.Invalidate(c.Module)
				refresh = true
			}
			continue
		}
		n := h.provider.InvalidateName(modident.Name(c.Module))
		h.logger.Debug("module payload invalidated", "module", c.Module, "path", c.Path, "entries", n)
	}
	if refresh {
		if err := h.Refresh(ctx); err != nil {
			h.logger.Warn("manifest refresh failed", "error", err)
		}
	}
}

func (h *Host) applyChanges(ctx context.Context, changed []string, next ChangeFunc) error {
	changes := watch.Classify(changed, h.layout.Extension, h.layout.DebugExtension)
	if len(changes) == 0 {
		return nil
	}
	h.Invalidate(ctx, changes)
	if next == nil {
		return nil
	}
	return next(ctx, changes)
}

func (w *watchState) fail(err error) {
	w.mu.Lock()
	w.lastErr = err
	if w.errCh == nil {
		w.errCh = make(chan error, 1)
	}
	ch := w.errCh
	w.mu.Unlock()

	w.state.Store(int32(WatchFailed))
	select {
	case ch <- err:
	default:
	}
}
