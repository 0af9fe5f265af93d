// SPDX-License-Identifier: MPL-2.0

// Package watch reports changes to module files under a source directory.
//
// Events are debounced: a build that rewrites several modules produces one
// callback with every changed path, which the host turns into cache
// invalidations and a reload.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 300 * time.Millisecond

// ErrAlreadyRunning is returned by a second call to Run.
var ErrAlreadyRunning = errors.New("watch: Run called more than once")

var (
	// DefaultPatterns select module binaries, debug companions and manifests.
	DefaultPatterns = []string{"**/*.wasm", "**/*.wasm.map", "**/manifest.json"}

	defaultIgnores = []string{
		"**/.git/**",
		"**/node_modules/**",
		"**/*.swp",
		"**/*~",
		"**/.DS_Store",
	}
)

type (
	// Config holds the parameters for a Watcher.
	Config struct {
		// BaseDir is the source directory to watch recursively. Empty means
		// the working directory.
		BaseDir string
		// Patterns are doublestar globs relative to BaseDir. Empty uses
		// DefaultPatterns.
		Patterns []string
		// Ignore adds to the built-in ignore list.
		Ignore []string
		// Debounce is the quiet period before OnChange fires.
		Debounce time.Duration
		// OnChange receives the changed paths, slash-separated and relative
		// to BaseDir, sorted. Errors are logged.
		OnChange func(ctx context.Context, changed []string) error
		Logger   *slog.Logger
	}

	// Watcher monitors a directory tree. Run may be called once.
	Watcher struct {
		cfg      Config
		fsw      *fsnotify.Watcher
		patterns []string
		ignores  []string
		debounce time.Duration
		baseDir  string
		logger   *slog.Logger
		started  atomic.Bool
	}
)

// New validates cfg and registers every non-ignored directory under BaseDir.
func New(cfg Config) (*Watcher, error) {
	baseDir := cfg.BaseDir
	if baseDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("watch: determine working directory: %w", err)
		}
		baseDir = wd
	}
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve base directory: %w", err)
	}

	patterns := cfg.Patterns
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	if err := validatePatterns(patterns, "watch"); err != nil {
		return nil, err
	}
	if err := validatePatterns(cfg.Ignore, "ignore"); err != nil {
		return nil, err
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		cfg:      cfg,
		fsw:      fsw,
		patterns: slices.Clone(patterns),
		ignores:  append(slices.Clone(defaultIgnores), cfg.Ignore...),
		debounce: debounce,
		baseDir:  absBase,
		logger:   logger,
	}
	if err := w.addDirectories(); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// BaseDir returns the absolute watched root.
func (w *Watcher) BaseDir() string { return w.baseDir }

// Run processes events until ctx is done. It returns nil on cancellation and
// an error when fsnotify fails in a way the watcher cannot recover from.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	var (
		mu      sync.Mutex
		pending = make(map[string]struct{})
		timer   *time.Timer
		busy    atomic.Bool
	)

	// fire runs on the timer goroutine. A callback still running from the
	// previous batch defers this one by another debounce period.
	fire := func() {
		if ctx.Err() != nil {
			return
		}
		if !busy.CompareAndSwap(false, true) {
			w.logger.Debug("previous change batch still running, deferring")
			mu.Lock()
			timer.Reset(w.debounce)
			mu.Unlock()
			return
		}
		defer busy.Store(false)

		mu.Lock()
		changed := slices.Sorted(maps.Keys(pending))
		clear(pending)
		mu.Unlock()
		if len(changed) == 0 || w.cfg.OnChange == nil {
			return
		}
		if err := w.cfg.OnChange(ctx, changed); err != nil {
			w.logger.Warn("change callback failed", "error", err)
		}
	}

	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		if err := w.fsw.Close(); err != nil {
			w.logger.Warn("closing fsnotify watcher", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: fsnotify event channel closed unexpectedly")
			}
			if evt.Has(fsnotify.Create) {
				w.maybeAddDir(evt.Name)
			}
			rel, ok := w.relevant(evt.Name)
			if !ok {
				continue
			}

			mu.Lock()
			pending[rel] = struct{}{}
			if timer == nil {
				timer = time.AfterFunc(w.debounce, fire)
			} else {
				timer.Reset(w.debounce)
			}
			mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: fsnotify error channel closed unexpectedly")
			}
			if isFatalFsnotifyError(err) {
				return fmt.Errorf("watch: fatal fsnotify error: %w", err)
			}
			w.logger.Warn("fsnotify error", "error", err)
		}
	}
}

// relevant maps an absolute event path to its slash-separated relative form
// when it matches a pattern and no ignore.
func (w *Watcher) relevant(name string) (string, bool) {
	rel, err := filepath.Rel(w.baseDir, name)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if matchAny(w.ignores, rel) || !matchAny(w.patterns, rel) {
		return "", false
	}
	return rel, true
}

func (w *Watcher) addDirectories() error {
	err := filepath.WalkDir(w.baseDir, func(p string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			w.logger.Debug("skipping inaccessible path", "path", p, "error", walkErr)
			return nil //nolint:nilerr // inaccessible directories are not watched
		}
		if !d.IsDir() {
			return nil
		}
		if w.dirIgnored(p) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			return fmt.Errorf("watch: add directory %q: %w", p, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch: walk directory tree: %w", err)
	}
	return nil
}

func (w *Watcher) maybeAddDir(p string) {
	info, err := os.Stat(p)
	if err != nil || !info.IsDir() || w.dirIgnored(p) {
		return
	}
	if err := w.fsw.Add(p); err != nil {
		w.logger.Warn("watching new directory", "path", p, "error", err)
	}
}

func (w *Watcher) dirIgnored(p string) bool {
	rel, err := filepath.Rel(w.baseDir, p)
	if err != nil {
		return true
	}
	rel = filepath.ToSlash(rel)
	return rel != "." && (matchAny(w.ignores, rel) || matchAny(w.ignores, rel+"/"))
}

func matchAny(patterns []string, rel string) bool {
	for _, pat := range patterns {
		if ok, err := doublestar.Match(pat, rel); err == nil && ok {
			return true
		}
	}
	return false
}

func validatePatterns(patterns []string, label string) error {
	for _, pat := range patterns {
		if !doublestar.ValidatePattern(pat) {
			return fmt.Errorf("watch: invalid %s pattern %q", label, pat)
		}
	}
	return nil
}

// DefaultIgnores returns a copy of the built-in ignore patterns.
func DefaultIgnores() []string {
	return slices.Clone(defaultIgnores)
}

// Change classifies one changed path.
type Change struct {
	Path string
	// Module is the module the file belongs to.
	Module string
	// Manifest is set when the file is a module manifest; Module is then
	// the directory name.
	Manifest bool
}

// Classify maps changed paths to the modules they affect. Binaries and
// companions are named by file; "billing/manifest.json" affects "billing".
// Paths matching neither are dropped.
func Classify(changed []string, extension, debugExtension string) []Change {
	out := make([]Change, 0, len(changed))
	for _, rel := range changed {
		base := path.Base(rel)
		switch {
		case base == "manifest.json":
			dir := path.Base(path.Dir(rel))
			if dir == "." || dir == "/" {
				continue
			}
			out = append(out, Change{Path: rel, Module: dir, Manifest: true})
		case debugExtension != "" && strings.HasSuffix(base, debugExtension):
			out = append(out, Change{Path: rel, Module: strings.TrimSuffix(base, debugExtension)})
		case strings.HasSuffix(base, extension):
			out = append(out, Change{Path: rel, Module: strings.TrimSuffix(base, extension)})
		}
	}
	return out
}
