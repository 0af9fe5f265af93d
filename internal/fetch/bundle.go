// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"archive/zip"
	"bufio"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nlepage/go-tarfs"
)

// ErrUnsupportedBundle is returned when a bundle path has no recognized archive extension.
var ErrUnsupportedBundle = errors.New("unsupported bundle format")

// Bundle serves locations out of a packaged archive. A bundle lays modules
// out exactly like a served directory, so the same candidate locations apply.
type Bundle struct {
	fsys   fs.FS
	close  func() error
	logger *slog.Logger
}

// OpenBundle opens a .zip, .tar, .tar.gz, or .tgz archive.
func OpenBundle(archivePath string, logger *slog.Logger) (*Bundle, error) {
	lower := strings.ToLower(archivePath)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		zr, err := zip.OpenReader(archivePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open bundle %s: %w", filepath.Base(archivePath), err)
		}
		return &Bundle{fsys: zr, close: zr.Close, logger: loggerOrDefault(logger)}, nil
	case strings.HasSuffix(lower, ".tar"), strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		f, err := os.Open(archivePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open bundle %s: %w", filepath.Base(archivePath), err)
		}
		defer func() { _ = f.Close() }()
		fsys, err := NewTarFS(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read bundle %s: %w", filepath.Base(archivePath), err)
		}
		return &Bundle{fsys: fsys, close: func() error { return nil }, logger: loggerOrDefault(logger)}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedBundle, filepath.Base(archivePath))
	}
}

// NewTarFS reads a tar stream, transparently gunzipping it, into an in-memory fs.FS.
func NewTarFS(r io.Reader) (fs.FS, error) {
	br := bufio.NewReader(r)
	var reader io.Reader = br
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1F && magic[1] == 0x8B {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer func() { _ = gz.Close() }()
		reader = gz
	}
	fsys, err := tarfs.New(reader)
	if err != nil {
		return nil, fmt.Errorf("unable to create tarfs: %w", err)
	}
	return fsys, nil
}

// NewBundleFS wraps an already opened fs.FS.
func NewBundleFS(fsys fs.FS, logger *slog.Logger) *Bundle {
	return &Bundle{fsys: fsys, close: func() error { return nil }, logger: loggerOrDefault(logger)}
}

// Fetch implements Fetcher.
func (b *Bundle) Fetch(ctx context.Context, location string) ([]byte, bool) {
	if ctx.Err() != nil {
		return nil, false
	}
	name, ok := cleanLocation(location)
	if !ok {
		return nil, false
	}
	data, err := fs.ReadFile(b.fsys, name)
	if err != nil {
		b.logger.Debug("fetch miss", "location", location, "error", err)
		return nil, false
	}
	return data, true
}

// Modules implements Lister.
func (b *Bundle) Modules(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := fs.ReadDir(b.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to list bundle modules: %w", err)
	}
	infos := make([]fs.FileInfo, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		infos = append(infos, info)
	}
	return moduleDirs(infos), nil
}

// Close releases the underlying archive.
func (b *Bundle) Close() error {
	return b.close()
}
