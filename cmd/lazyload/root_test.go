// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/invowk/lazyload/internal/config"
	"github.com/invowk/lazyload/internal/issue"
	"github.com/invowk/lazyload/internal/testutil"
	"github.com/invowk/lazyload/internal/testutil/wasmtest"
)

// moduleDir writes app -> billing -> tax with tax shared, plus a cycle a <-> b.
func moduleDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	testutil.MustWriteFiles(t, dir, map[string][]byte{
		"app/app.wasm":         wasmtest.Module("app", "billing"),
		"billing/billing.wasm": wasmtest.Build(wasmtest.Spec{Name: "billing", Imports: []string{"tax"}, Configure: true}),
		"shared/tax.wasm":      wasmtest.Module("tax"),
		"a/a.wasm":             wasmtest.Module("a", "b"),
		"shared/b.wasm":        wasmtest.Module("b", "a"),
	})
	return dir
}

func fixedConfig(cfg *config.Config, path string) ConfigLoader {
	return func(context.Context, config.LoadOptions) (*config.Loaded, error) {
		c := *cfg
		return &config.Loaded{Config: &c, Path: path}, nil
	}
}

func dirConfig(dir string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Sources = []config.SourceConfig{{Kind: config.SourceDir, Location: dir}}
	return cfg
}

func execute(t *testing.T, loader ConfigLoader, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := NewApp(Dependencies{Config: loader, Stdout: &out, Stderr: &errOut})
	root := NewRootCommand(app)
	root.SetArgs(args)
	err = root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestGetVersionString(t *testing.T) {
	// Not parallel: subtests mutate package-level Version/Commit/BuildDate vars.

	origVersion, origCommit, origBuildDate := Version, Commit, BuildDate
	t.Cleanup(func() {
		Version, Commit, BuildDate = origVersion, origCommit, origBuildDate
	})

	Version, Commit, BuildDate = "v1.2.3", "abc1234", "2026-01-15T10:00:00Z"
	if got, want := getVersionString(), "v1.2.3 (commit: abc1234, built: 2026-01-15T10:00:00Z)"; got != want {
		t.Errorf("getVersionString() = %q, want %q", got, want)
	}

	Version = "dev"
	if got, want := getVersionString(), "dev (built from source)"; got != want {
		t.Errorf("getVersionString() = %q, want %q", got, want)
	}
}

func TestLoadCommand(t *testing.T) {
	t.Parallel()

	dir := moduleDir(t)
	stdout, _, err := execute(t, fixedConfig(dirConfig(dir), ""), "load", "app", "--session", "tenant")
	if err != nil {
		t.Fatalf("load app error: %v", err)
	}
	for _, want := range []string{"app (owned) app/app.wasm", "billing (owned)", "tax (owned) shared/tax.wasm"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("output missing %q:\n%s", want, stdout)
		}
	}
}

func TestLoadCommand_Fallback(t *testing.T) {
	t.Parallel()

	cfg := dirConfig(moduleDir(t))
	cfg.Fallback = "feature disabled"

	stdout, _, err := execute(t, fixedConfig(cfg, ""), "load", "ghost")
	if err != nil {
		t.Fatalf("optional load error: %v", err)
	}
	if !strings.Contains(stdout, "ghost: feature disabled") {
		t.Errorf("fallback not printed:\n%s", stdout)
	}

	_, _, err = execute(t, fixedConfig(cfg, ""), "load", "ghost", "--required")
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) || svcErr.IssueID != issue.ModuleNotFoundId {
		t.Fatalf("required load error = %v, want ModuleNotFound service error", err)
	}
}

func TestPlanCommand(t *testing.T) {
	t.Parallel()

	loader := fixedConfig(dirConfig(moduleDir(t)), "")

	stdout, _, err := execute(t, loader, "plan", "app")
	if err != nil {
		t.Fatalf("plan app error: %v", err)
	}
	tax, billing, app := strings.Index(stdout, "1. tax"), strings.Index(stdout, "2. billing"), strings.Index(stdout, "3. app")
	if tax < 0 || billing < tax || app < billing {
		t.Errorf("unexpected plan order:\n%s", stdout)
	}

	_, _, err = execute(t, loader, "plan", "a")
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) || svcErr.IssueID != issue.DependencyCycleId {
		t.Fatalf("plan a error = %v, want DependencyCycle service error", err)
	}
}

func TestRunCommand(t *testing.T) {
	t.Parallel()

	loader := fixedConfig(dirConfig(moduleDir(t)), "")

	stdout, _, err := execute(t, loader, "run", "billing", wasmtest.PingExport)
	if err != nil {
		t.Fatalf("run billing ping error: %v", err)
	}
	if strings.TrimSpace(stdout) != "42" {
		t.Errorf("run output = %q, want 42", stdout)
	}

	if _, _, err := execute(t, loader, "run", "billing", "missing"); !errors.Is(err, ErrExportNotFound) {
		t.Errorf("run missing export error = %v, want ErrExportNotFound", err)
	}
	if _, _, err := execute(t, loader, "run", "billing", "ping", "x"); err == nil {
		t.Error("run with non-integer argument succeeded")
	}
}

func TestLocateCommand(t *testing.T) {
	t.Parallel()

	cfg := dirConfig(moduleDir(t))
	cfg.Hints = []string{"features"}
	stdout, _, err := execute(t, fixedConfig(cfg, ""), "locate", "tax")
	if err != nil {
		t.Fatalf("locate error: %v", err)
	}
	want := "1. features/tax.wasm\n2. tax/tax.wasm\n3. shared/tax.wasm\n"
	if stdout != want {
		t.Errorf("locate output = %q, want %q", stdout, want)
	}
}

func TestDepsCommand(t *testing.T) {
	t.Parallel()

	dir := moduleDir(t)
	stdout, _, err := execute(t, fixedConfig(dirConfig(dir), ""), "deps", filepath.Join(dir, "billing", "billing.wasm"), "--exports")
	if err != nil {
		t.Fatalf("deps error: %v", err)
	}
	for _, want := range []string{"module: billing", "tax", "exports:", wasmtest.ConfigureExport} {
		if !strings.Contains(stdout, want) {
			t.Errorf("deps output missing %q:\n%s", want, stdout)
		}
	}
}

func TestConfigErrorsSurfaceOnUse(t *testing.T) {
	t.Parallel()

	broken := func(context.Context, config.LoadOptions) (*config.Loaded, error) {
		return nil, &config.InvalidConfigError{FieldErrors: []error{errors.New("isolation: unknown kind")}}
	}

	_, _, err := execute(t, broken, "plan", "app")
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) || svcErr.IssueID != issue.ConfigLoadFailedId {
		t.Fatalf("plan with broken config error = %v, want ConfigLoadFailed", err)
	}
}

func TestConfigShow(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Fallback = "later"
	loader := fixedConfig(cfg, "/etc/lazyload/config.cue")

	stdout, _, err := execute(t, loader, "config", "show")
	if err != nil {
		t.Fatalf("config show error: %v", err)
	}
	if !strings.HasPrefix(stdout, "// /etc/lazyload/config.cue\n") || !strings.Contains(stdout, `fallback: "later"`) {
		t.Errorf("config show output:\n%s", stdout)
	}

	stdout, _, err = execute(t, loader, "config", "show", "--format", "toml")
	if err != nil {
		t.Fatalf("config show --format toml error: %v", err)
	}
	if !strings.Contains(stdout, "isolation = 'sandboxed'") {
		t.Errorf("toml output:\n%s", stdout)
	}

	if _, _, err := execute(t, loader, "config", "show", "--format", "yaml"); err == nil {
		t.Error("unknown format accepted")
	}
}

func TestConfigInitAndSet(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.cue")
	loader := ConfigLoader(config.LoadWithPath)

	if _, _, err := execute(t, loader, "--config", path, "config", "init"); err != nil {
		t.Fatalf("config init error: %v", err)
	}
	_, _, err := execute(t, loader, "--config", path, "config", "init")
	if !errors.Is(err, config.ErrConfigExists) {
		t.Fatalf("second config init error = %v, want ErrConfigExists", err)
	}

	if _, _, err := execute(t, loader, "--config", path, "config", "set", "isolation", "flat"); err != nil {
		t.Fatalf("config set error: %v", err)
	}
	loaded, err := config.LoadWithPath(context.Background(), config.LoadOptions{ConfigFilePath: path})
	if err != nil {
		t.Fatalf("reload error: %v", err)
	}
	if loaded.Config.Isolation != config.IsolationFlat {
		t.Errorf("isolation = %q, want flat", loaded.Config.Isolation)
	}

	if _, _, err := execute(t, loader, "--config", path, "config", "set", "isolation", "none"); !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("invalid set error = %v, want ErrInvalidConfig", err)
	}
	if _, _, err := execute(t, loader, "--config", path, "config", "set", "debug", "maybe"); err == nil {
		t.Error("non-boolean debug accepted")
	}
}
