// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/spf13/afero"

	"github.com/invowk/lazyload/internal/fetch"
	"github.com/invowk/lazyload/pkg/cueutil"
)

const billingManifest = `{
	"module": "billing",
	"version": "1.2.0",
	"hint": true,
	"components": [
		{"type": "billing.InvoiceList", "name": "Invoices"},
		{"type": "billing.Summary"}
	],
	"routes": [
		{"route": "/invoices", "type": "billing.InvoiceList"},
		{"route": "/invoices/{id:int}", "type": "billing.InvoiceDetail"},
		{"route": "/reports/{year}/{month?}", "type": "billing.Report"}
	]
}`

func newRepo(t *testing.T, files map[string]string) *Repository {
	t.Helper()
	afs := afero.NewMemMapFs()
	for name, content := range files {
		if err := afero.WriteFile(afs, name, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return NewRepository(fetch.NewFS(afs, nil), nil)
}

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		data     string
		wantPath string
	}{
		{"valid", billingManifest, ""},
		{"minimal", `{"module": "tax"}`, ""},
		{"missing module", `{"hint": true}`, "module"},
		{"bad module name", `{"module": "9lives"}`, "module"},
		{"relative route", `{"module": "a", "routes": [{"route": "x", "type": "T"}]}`, "routes[0].route"},
		{"empty component type", `{"module": "a", "components": [{"type": ""}]}`, "components[0].type"},
		{"unknown field", `{"module": "a", "extra": 1}`, "extra"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m, err := Parse([]byte(tt.data), "test/manifest.json")
			if tt.wantPath == "" {
				if err != nil {
					t.Fatalf("Parse() error: %v", err)
				}
				if m.Module == "" {
					t.Error("module should be decoded")
				}
				return
			}
			var ve *cueutil.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Parse() error = %v, want *cueutil.ValidationError", err)
			}
			if !slices.ContainsFunc(ve.Issues, func(is cueutil.Issue) bool { return is.Path == tt.wantPath }) {
				t.Errorf("issues %v do not mention %s", ve.Issues, tt.wantPath)
			}
		})
	}
}

func TestRepository_Manifest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo := newRepo(t, map[string]string{
		"billing/manifest.json": billingManifest,
		"broken/manifest.json":  `{"module": 1}`,
	})

	m, err := repo.Manifest(ctx, "billing")
	if err != nil {
		t.Fatalf("Manifest(billing) error: %v", err)
	}
	if id := m.Identity(); id.Name != "billing" || id.Version != "1.2.0" {
		t.Errorf("Identity() = %v", id)
	}
	again, _ := repo.Manifest(ctx, "billing")
	if again != m {
		t.Error("manifests should be cached")
	}

	if _, err := repo.Manifest(ctx, "ghost"); !errors.Is(err, ErrManifestNotFound) {
		t.Errorf("Manifest(ghost) error = %v, want ErrManifestNotFound", err)
	}
	if _, err := repo.Manifest(ctx, "broken"); err == nil || errors.Is(err, ErrManifestNotFound) {
		t.Errorf("Manifest(broken) error = %v, want validation error", err)
	}

	all := repo.All(ctx, []string{"ghost", "broken", "billing"})
	if len(all) != 1 || all[0].Module != "billing" {
		t.Errorf("All() = %v", all)
	}

	repo.Invalidate("billing")
	fresh, err := repo.Manifest(ctx, "billing")
	if err != nil || fresh == m {
		t.Error("Invalidate should force a re-read")
	}
}

func TestHints(t *testing.T) {
	t.Parallel()

	h := NewHints([]*Manifest{
		{Module: "billing", Hint: true},
		{Module: "tax"},
		{Module: "reports", Hint: true},
		{Module: "billing", Hint: true},
	})
	if got := h.ModuleHints(); !slices.Equal(got, []string{"billing", "reports"}) {
		t.Errorf("ModuleHints() = %v", got)
	}
}

func TestIndex(t *testing.T) {
	t.Parallel()

	billing, err := Parse([]byte(billingManifest), "billing/manifest.json")
	if err != nil {
		t.Fatal(err)
	}
	shadow := &Manifest{
		Module:     "shadow",
		Components: []Component{{Type: "shadow.X", Name: "Invoices"}},
		Routes:     []Route{{Route: "/invoices", Type: "shadow.X"}, {Route: "/", Type: "shadow.Home"}},
	}
	idx := NewIndex([]*Manifest{billing, shadow})

	t.Run("components", func(t *testing.T) {
		t.Parallel()
		tests := []struct {
			key, module, typ string
		}{
			{"Invoices", "billing", "billing.InvoiceList"},
			{"billing.Summary", "billing", "billing.Summary"},
			{"shadow.X", "shadow", "shadow.X"},
		}
		for _, tt := range tests {
			m, ok := idx.Component(tt.key)
			if !ok || string(m.Module.Name) != tt.module || m.Type != tt.typ {
				t.Errorf("Component(%q) = %+v, %v", tt.key, m, ok)
			}
		}
		if _, ok := idx.Component("Nope"); ok {
			t.Error("unknown component should miss")
		}
	})

	t.Run("routes", func(t *testing.T) {
		t.Parallel()
		tests := []struct {
			path   string
			typ    string
			params map[string]string
		}{
			{"/invoices", "billing.InvoiceList", map[string]string{}},
			{"/Invoices/", "billing.InvoiceList", map[string]string{}},
			{"/invoices/42", "billing.InvoiceDetail", map[string]string{"id": "42"}},
			{"/reports/2024", "billing.Report", map[string]string{"year": "2024"}},
			{"/reports/2024/05", "billing.Report", map[string]string{"year": "2024", "month": "05"}},
			{"/", "shadow.Home", map[string]string{}},
		}
		for _, tt := range tests {
			m, ok := idx.Route(tt.path)
			if !ok || m.Type != tt.typ {
				t.Errorf("Route(%q) = %+v, %v, want %s", tt.path, m, ok, tt.typ)
				continue
			}
			if len(m.Params) != len(tt.params) {
				t.Errorf("Route(%q) params = %v, want %v", tt.path, m.Params, tt.params)
			}
			for k, v := range tt.params {
				if m.Params[k] != v {
					t.Errorf("Route(%q) param %s = %q, want %q", tt.path, k, m.Params[k], v)
				}
			}
		}
		for _, miss := range []string{"/invoices/abc", "/reports", "/reports/1/2/3", "/unknown"} {
			if m, ok := idx.Route(miss); ok {
				t.Errorf("Route(%q) should miss, got %+v", miss, m)
			}
		}
	})

	if c, r := idx.Len(); c != 4 || r != 5 {
		t.Errorf("Len() = %d, %d", c, r)
	}
}
