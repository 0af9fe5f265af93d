// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"context"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"
)

type (
	// Fetcher retrieves the bytes stored at location. ok is false when the
	// bytes could not be retrieved for any reason.
	Fetcher interface {
		Fetch(ctx context.Context, location string) (data []byte, ok bool)
	}

	// Lister is implemented by sources that can enumerate their top-level
	// module directories.
	Lister interface {
		Modules(ctx context.Context) ([]string, error)
	}

	// Func adapts a function to the Fetcher interface.
	Func func(ctx context.Context, location string) ([]byte, bool)

	// Chain tries each fetcher in order and returns the first hit.
	Chain []Fetcher

	timeoutFetcher struct {
		next    Fetcher
		timeout time.Duration
	}
)

// Fetch implements Fetcher.
func (f Func) Fetch(ctx context.Context, location string) ([]byte, bool) {
	return f(ctx, location)
}

// Fetch implements Fetcher.
func (c Chain) Fetch(ctx context.Context, location string) ([]byte, bool) {
	for _, f := range c {
		if ctx.Err() != nil {
			return nil, false
		}
		if data, ok := f.Fetch(ctx, location); ok {
			return data, true
		}
	}
	return nil, false
}

// Modules implements Lister over the members that implement it. Names keep
// first-seen order.
func (c Chain) Modules(ctx context.Context) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	for _, f := range c {
		l, ok := f.(Lister)
		if !ok {
			continue
		}
		names, err := l.Modules(ctx)
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	return out, nil
}

// WithTimeout bounds every fetch made through next. A non-positive timeout
// returns next unchanged.
func WithTimeout(next Fetcher, timeout time.Duration) Fetcher {
	if timeout <= 0 {
		return next
	}
	return &timeoutFetcher{next: next, timeout: timeout}
}

func (t *timeoutFetcher) Fetch(ctx context.Context, location string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Fetch(ctx, location)
}

// cleanLocation turns a location into a relative, slash-separated path that
// cannot climb out of its root.
func cleanLocation(location string) (string, bool) {
	p := path.Clean("/" + strings.ReplaceAll(location, "\\", "/"))
	p = strings.TrimPrefix(p, "/")
	if p == "" || p == "." {
		return "", false
	}
	return p, true
}

func moduleDirs(entries []fs.FileInfo) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
