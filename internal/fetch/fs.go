// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/afero"
)

// FS fetches from an afero filesystem. Locations are resolved relative to the
// filesystem root.
type FS struct {
	fs     afero.Fs
	logger *slog.Logger
}

// NewFS returns a fetcher reading from afs.
func NewFS(afs afero.Fs, logger *slog.Logger) *FS {
	return &FS{fs: afs, logger: loggerOrDefault(logger)}
}

// NewDir returns a fetcher confined to the directory root on the OS filesystem.
func NewDir(root string, logger *slog.Logger) *FS {
	return NewFS(afero.NewReadOnlyFs(afero.NewBasePathFs(afero.NewOsFs(), root)), logger)
}

// Fetch implements Fetcher.
func (f *FS) Fetch(ctx context.Context, location string) ([]byte, bool) {
	if ctx.Err() != nil {
		return nil, false
	}
	name, ok := cleanLocation(location)
	if !ok {
		return nil, false
	}
	info, err := f.fs.Stat(name)
	if err != nil || info.IsDir() {
		f.logger.Debug("fetch miss", "location", location, "error", err)
		return nil, false
	}
	data, err := afero.ReadFile(f.fs, name)
	if err != nil {
		f.logger.Debug("fetch failed", "location", location, "error", err)
		return nil, false
	}
	return data, true
}

// Modules implements Lister.
func (f *FS) Modules(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := afero.ReadDir(f.fs, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to list module directories: %w", err)
	}
	return moduleDirs(entries), nil
}
