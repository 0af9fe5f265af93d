// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := io.WriteString(w, content); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func writeTar(t *testing.T, path string, gz bool, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	var w io.Writer = f
	var gzw *gzip.Writer
	if gz {
		gzw = gzip.NewWriter(f)
		w = gzw
	}
	tw := tar.NewWriter(w)
	for name, content := range files {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(content)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := io.WriteString(tw, content); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if gzw != nil {
		if err := gzw.Close(); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOpenBundle(t *testing.T) {
	t.Parallel()

	files := map[string]string{
		"billing/billing.wasm": "billing",
		"shared/tax.wasm":      "tax",
	}
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "modules.zip")
	tarPath := filepath.Join(dir, "modules.tar")
	tgzPath := filepath.Join(dir, "modules.tar.gz")
	writeZip(t, zipPath, files)
	writeTar(t, tarPath, false, files)
	writeTar(t, tgzPath, true, files)

	for _, p := range []string{zipPath, tarPath, tgzPath} {
		t.Run(filepath.Base(p), func(t *testing.T) {
			t.Parallel()

			b, err := OpenBundle(p, nil)
			if err != nil {
				t.Fatalf("OpenBundle() error: %v", err)
			}
			t.Cleanup(func() { _ = b.Close() })

			data, ok := b.Fetch(context.Background(), "shared/tax.wasm")
			if !ok || string(data) != "tax" {
				t.Errorf("Fetch(shared/tax.wasm) = %q, %v", data, ok)
			}
			if _, ok := b.Fetch(context.Background(), "billing/missing.wasm"); ok {
				t.Error("Fetch(missing) should miss")
			}
		})
	}
}

func TestBundle_Modules(t *testing.T) {
	t.Parallel()

	zipPath := filepath.Join(t.TempDir(), "modules.zip")
	writeZip(t, zipPath, map[string]string{
		"billing/billing.wasm":  "billing",
		"billing/manifest.json": "{}",
		"shared/tax.wasm":       "tax",
	})
	b, err := OpenBundle(zipPath, nil)
	if err != nil {
		t.Fatalf("OpenBundle() error: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })

	got, err := b.Modules(context.Background())
	if err != nil {
		t.Fatalf("Modules() error: %v", err)
	}
	if len(got) != 2 || got[0] != "billing" || got[1] != "shared" {
		t.Errorf("Modules() = %v, want [billing shared]", got)
	}
}

func TestOpenBundle_Unsupported(t *testing.T) {
	t.Parallel()

	_, err := OpenBundle("modules.rar", nil)
	if !errors.Is(err, ErrUnsupportedBundle) {
		t.Errorf("OpenBundle(rar) error = %v, want ErrUnsupportedBundle", err)
	}
}
