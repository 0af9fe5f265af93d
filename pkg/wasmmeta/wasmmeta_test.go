// SPDX-License-Identifier: MPL-2.0

package wasmmeta

import (
	"bytes"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/invowk/lazyload/internal/testutil/wasmtest"
	"github.com/invowk/lazyload/pkg/modident"
)

func TestDependencies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		bin  []byte
		want []modident.Identity
	}{
		{"no imports", wasmtest.Module("leaf"), nil},
		{"single import", wasmtest.Module("app", "billing"), []modident.Identity{modident.Named("billing")}},
		{
			"ordered and distinct",
			wasmtest.Build(wasmtest.Spec{
				Name:        "app",
				Imports:     []string{"billing", "reports"},
				HostImports: map[string]string{"billing": "flush"},
			}),
			[]modident.Identity{modident.Named("billing"), modident.Named("reports")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Dependencies(tt.bin)
			if err != nil {
				t.Fatalf("Dependencies() unexpected error: %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("Dependencies() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDependencies_Malformed(t *testing.T) {
	t.Parallel()

	for _, bin := range [][]byte{nil, wasmtest.Malformed(), []byte("\x00asm\x01\x00\x00\x00\x02")} {
		_, err := Dependencies(bin)
		if !errors.Is(err, ErrMalformedModule) {
			t.Errorf("Dependencies(%q) error = %v, want ErrMalformedModule", bin, err)
		}
		var malformed *MalformedModuleError
		if !errors.As(err, &malformed) {
			t.Errorf("expected *MalformedModuleError, got %T", err)
		}
	}
}

func TestInspect(t *testing.T) {
	t.Parallel()

	info, err := Inspect(wasmtest.Build(wasmtest.Spec{Name: "billing", Configure: true}))
	if err != nil {
		t.Fatalf("Inspect() unexpected error: %v", err)
	}
	if info.ModuleName != "billing" {
		t.Errorf("ModuleName = %q, want %q", info.ModuleName, "billing")
	}
	want := []string{wasmtest.PingExport, wasmtest.ConfigureExport}
	if !slices.Equal(info.Exports, want) {
		t.Errorf("Exports = %v, want %v", info.Exports, want)
	}
}

func TestBinaryReader(t *testing.T) {
	t.Parallel()

	var r Reader = BinaryReader{}
	deps, err := r.Dependencies(wasmtest.Module("app", "env"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(deps) != 1 || deps[0].Name != "env" {
		t.Errorf("deps = %v, want [env]", deps)
	}
}

func TestRenameImports(t *testing.T) {
	t.Parallel()

	bin := wasmtest.Module("invoice", "Tax", "Billing")
	renamed, err := RenameImports(bin, strings.ToLower)
	if err != nil {
		t.Fatalf("RenameImports() unexpected error: %v", err)
	}
	info, err := Inspect(renamed)
	if err != nil {
		t.Fatalf("renamed binary does not decode: %v", err)
	}
	want := []modident.Identity{modident.Named("tax"), modident.Named("billing")}
	if !slices.Equal(info.Dependencies, want) {
		t.Errorf("Dependencies = %v, want %v", info.Dependencies, want)
	}
	if !slices.Equal(info.Exports, []string{wasmtest.PingExport}) {
		t.Errorf("Exports = %v, want [%s]", info.Exports, wasmtest.PingExport)
	}

	same, err := RenameImports(renamed, strings.ToLower)
	if err != nil {
		t.Fatalf("RenameImports() unexpected error: %v", err)
	}
	if !bytes.Equal(same, renamed) {
		t.Error("binary re-encoded although no import changed")
	}

	if _, err := RenameImports(wasmtest.Malformed(), strings.ToLower); !errors.Is(err, ErrMalformedModule) {
		t.Errorf("RenameImports(malformed) error = %v, want ErrMalformedModule", err)
	}
}
