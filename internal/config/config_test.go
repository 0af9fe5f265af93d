// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/invowk/lazyload/internal/issue"
	"github.com/invowk/lazyload/internal/testutil"
	"github.com/invowk/lazyload/pkg/cueutil"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ConfigFileName+"."+ConfigFileExt)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if ok, errs := cfg.IsValid(); !ok {
		t.Fatalf("defaults must be valid: %v", errs)
	}
	if cfg.Isolation != IsolationSandboxed || cfg.Equality != EqualityName || cfg.Strategy != StrategyDefault {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if len(cfg.Sources) != 1 || cfg.Sources[0].Kind != SourceDir {
		t.Errorf("default sources = %v", cfg.Sources)
	}
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Parallel()

	empty := t.TempDir()
	loaded, err := LoadWithPath(context.Background(), LoadOptions{ConfigDirPath: empty, BaseDir: empty})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded.Path != "" {
		t.Errorf("Path = %q, want empty", loaded.Path)
	}
	want := DefaultConfig()
	got := loaded.Config
	if got.Isolation != want.Isolation || got.Fetch.Timeout != want.Fetch.Timeout || got.Layout != want.Layout {
		t.Errorf("Load() = %+v, want defaults", got)
	}
}

func TestLoad_FromConfigDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeConfig(t, dir, `
sources: [
	{kind: "bundle", location: "modules.zip"},
	{kind: "http", location: "https://cdn.example.com/modules/"},
]
isolation: "flat"
equality:  "name_version"
fetch: timeout: "1m30s"
layout: shared_dir: "common"
ui: verbose: true
`)

	loaded, err := LoadWithPath(context.Background(), LoadOptions{ConfigDirPath: dir, BaseDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	cfg := loaded.Config
	if loaded.Path != path {
		t.Errorf("Path = %q, want %q", loaded.Path, path)
	}
	if len(cfg.Sources) != 2 || cfg.Sources[1].Kind != SourceHTTP {
		t.Errorf("Sources = %v", cfg.Sources)
	}
	if cfg.Isolation != IsolationFlat || cfg.Equality != EqualityNameVersion || !cfg.UI.Verbose {
		t.Errorf("scalars not applied: %+v", cfg)
	}
	if cfg.Fetch.Timeout != 90*time.Second {
		t.Errorf("Fetch.Timeout = %s", cfg.Fetch.Timeout)
	}
	// Untouched siblings keep their defaults.
	if cfg.Layout.SharedDir != "common" || cfg.Layout.Extension != ".wasm" {
		t.Errorf("Layout = %+v", cfg.Layout)
	}
	if cfg.Fetch.Retries != 3 {
		t.Errorf("Fetch.Retries = %d, want default 3", cfg.Fetch.Retries)
	}
}

func TestLoad_WorkingDirectoryFallback(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	path := writeConfig(t, base, `strategy: "hierarchical"`)

	loaded, err := LoadWithPath(context.Background(), LoadOptions{ConfigDirPath: t.TempDir(), BaseDir: base})
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Path != path || loaded.Config.Strategy != StrategyHierarchical {
		t.Errorf("Load() = %+v from %q", loaded.Config, loaded.Path)
	}
}

func TestLoad_SchemaViolations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		field   string
	}{
		{"unknown isolation", `isolation: "docker"`, "isolation"},
		{"bad source kind", `sources: [{kind: "ftp", location: "x"}]`, "sources[0].kind"},
		{"empty location", `sources: [{kind: "dir", location: ""}]`, "sources[0].location"},
		{"bad duration", `fetch: timeout: "soon"`, "fetch.timeout"},
		{"too many retries", `fetch: retries: 99`, "fetch.retries"},
		{"unknown field", `colour: "blue"`, "colour"},
		{"syntax error", `isolation: `, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			path := writeConfig(t, dir, tt.content)
			_, err := NewProvider().Load(context.Background(), LoadOptions{ConfigFilePath: path})
			if err == nil {
				t.Fatal("Load() should fail")
			}

			var ae *issue.ActionableError
			if !errors.As(err, &ae) || ae.Issue != issue.ConfigLoadFailedId || ae.Resource != path {
				t.Errorf("expected actionable config error, got %#v", err)
			}
			if tt.field == "" {
				return
			}
			var ve *cueutil.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *cueutil.ValidationError in chain, got %v", err)
			}
			found := false
			for _, is := range ve.Issues {
				if strings.HasPrefix(is.Path, tt.field) {
					found = true
				}
			}
			if !found {
				t.Errorf("issues %v do not mention %s", ve.Issues, tt.field)
			}
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nope.cue")
	_, err := NewProvider().Load(context.Background(), LoadOptions{ConfigFilePath: path})
	var ae *issue.ActionableError
	if !errors.As(err, &ae) || !strings.Contains(ae.Error(), "config file not found") {
		t.Errorf("Load() error = %v", err)
	}
}

func TestLoad_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewProvider().Load(ctx, LoadOptions{ConfigDirPath: t.TempDir()}); !errors.Is(err, context.Canceled) {
		t.Errorf("Load() error = %v, want context.Canceled", err)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("LAZYLOAD_ISOLATION", "flat")
	t.Setenv("LAZYLOAD_FETCH_RETRIES", "7")
	t.Setenv("LAZYLOAD_DEBUG", "true")

	dir := t.TempDir()
	writeConfig(t, dir, `isolation: "sandboxed"`)
	cfg, err := NewProvider().Load(context.Background(), LoadOptions{ConfigDirPath: dir})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Isolation != IsolationFlat || cfg.Fetch.Retries != 7 || !cfg.Debug {
		t.Errorf("environment not applied: %+v", cfg)
	}
}

func TestLoad_InvalidEnvironmentValue(t *testing.T) {
	t.Setenv("LAZYLOAD_EQUALITY", "fuzzy")

	_, err := NewProvider().Load(context.Background(), LoadOptions{ConfigDirPath: t.TempDir(), BaseDir: t.TempDir()})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Load() error = %v, want ErrInvalidConfig", err)
	}
}

func TestGenerateCUE_RoundTrip(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Sources = append(cfg.Sources, SourceConfig{Kind: SourceHTTP, Location: "https://example.com/m/"})
	cfg.Hints = []string{"billing"}
	cfg.Fallback = "module unavailable"
	cfg.Watch = true

	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.cue")
	if err := Save(cfg, path); err != nil {
		t.Fatal(err)
	}
	got, err := NewProvider().Load(context.Background(), LoadOptions{ConfigFilePath: path})
	if err != nil {
		t.Fatalf("generated config does not load: %v\n%s", err, GenerateCUE(cfg))
	}
	if len(got.Sources) != 2 || got.Hints[0] != "billing" || got.Fallback != cfg.Fallback || !got.Watch {
		t.Errorf("round trip lost values: %+v", got)
	}
}

func TestCreateDefaultConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.cue")
	if err := CreateDefaultConfig(path, false); err != nil {
		t.Fatal(err)
	}
	if err := CreateDefaultConfig(path, false); !errors.Is(err, ErrConfigExists) {
		t.Errorf("second create error = %v, want ErrConfigExists", err)
	}
	if err := CreateDefaultConfig(path, true); err != nil {
		t.Errorf("forced create error = %v", err)
	}
}

func TestGenerateTOML(t *testing.T) {
	t.Parallel()

	out, err := GenerateTOML(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"isolation = 'sandboxed'", "[layout]", "[[sources]]"} {
		if !strings.Contains(out, want) {
			t.Errorf("TOML output missing %q:\n%s", want, out)
		}
	}
}

func TestConfigDir_Override(t *testing.T) {
	t.Cleanup(Reset)
	SetConfigDirOverride("/tmp/lazyload-test")

	dir, err := ConfigDir()
	if err != nil || dir != "/tmp/lazyload-test" {
		t.Errorf("ConfigDir() = %q, %v", dir, err)
	}
	Reset()
	dir, err = ConfigDir()
	if err != nil || !strings.HasSuffix(dir, AppName) {
		t.Errorf("ConfigDir() = %q, %v", dir, err)
	}
}

func TestConfigDir_FollowsUserConfigHome(t *testing.T) {
	// Not parallel: rewrites HOME and the platform config variables.
	home := t.TempDir()
	t.Cleanup(testutil.SetConfigHome(t, home))

	dir, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir() error: %v", err)
	}
	if want := filepath.Join(testutil.ConfigHome(home), AppName); dir != want {
		t.Errorf("ConfigDir() = %q, want %q", dir, want)
	}

	testutil.MustWriteFiles(t, dir, map[string][]byte{
		ConfigFileName + "." + ConfigFileExt: []byte("fallback: \"from home\"\n"),
	})
	loaded, err := LoadWithPath(context.Background(), LoadOptions{BaseDir: t.TempDir()})
	if err != nil {
		t.Fatalf("LoadWithPath() error: %v", err)
	}
	if loaded.Config.Fallback != "from home" || loaded.Path != filepath.Join(dir, ConfigFileName+"."+ConfigFileExt) {
		t.Errorf("loaded %q from %q", loaded.Config.Fallback, loaded.Path)
	}
}

func TestConfig_IsValid(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Sources = []SourceConfig{{Kind: "ftp", Location: "x"}, {Kind: SourceDir, Location: " "}}
	cfg.Strategy = "random"

	ok, errs := cfg.IsValid()
	if ok || len(errs) != 1 {
		t.Fatalf("IsValid() = %v, %v", ok, errs)
	}
	var cfgErr *InvalidConfigError
	if !errors.As(errs[0], &cfgErr) || len(cfgErr.FieldErrors) != 3 {
		t.Fatalf("expected 3 field errors, got %v", errs[0])
	}
	if !errors.Is(errs[0], ErrInvalidSource) {
		t.Error("source errors should be reachable via errors.Is")
	}
}
