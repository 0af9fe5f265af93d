// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/invowk/lazyload/internal/issue"
	"github.com/invowk/lazyload/pkg/cueutil"
)

const (
	// AppName is the application name.
	AppName = "lazyload"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// EnvPrefix prefixes environment overrides, e.g. LAZYLOAD_ISOLATION.
	EnvPrefix = "LAZYLOAD"
)

//go:embed config_schema.cue
var configSchema []byte

// ErrConfigExists is returned by CreateDefaultConfig when a file is present
// and overwriting was not requested.
var ErrConfigExists = errors.New("config file already exists")

// ConfigDir returns the lazyload configuration directory: %APPDATA% on
// Windows, ~/Library/Application Support on macOS, $XDG_CONFIG_HOME (default
// ~/.config) elsewhere.
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}

	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("APPDATA")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		base = filepath.Join(home, "Library", "Application Support")
	default:
		base = os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			base = filepath.Join(home, ".config")
		}
	}
	return filepath.Join(base, AppName), nil
}

// Resolve returns the file Load would read for opts, and whether it exists.
// With no explicit file, the config directory is tried before the working
// directory; the returned path is the config directory candidate when neither
// exists.
func Resolve(opts LoadOptions) (string, bool, error) {
	if opts.ConfigFilePath != "" {
		return opts.ConfigFilePath, fileExists(opts.ConfigFilePath), nil
	}

	dir := opts.ConfigDirPath
	if dir == "" {
		var err error
		if dir, err = ConfigDir(); err != nil {
			return "", false, err
		}
	}
	primary := filepath.Join(dir, ConfigFileName+"."+ConfigFileExt)
	if fileExists(primary) {
		return primary, true, nil
	}
	local := filepath.Join(opts.BaseDir, ConfigFileName+"."+ConfigFileExt)
	if fileExists(local) {
		return local, true, nil
	}
	return primary, false, nil
}

// loadWithOptions reads defaults, then the resolved CUE file, then
// LAZYLOAD_* environment overrides.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path, exists, err := Resolve(opts)
	if err != nil {
		return nil, "", err
	}
	switch {
	case opts.ConfigFilePath != "" && !exists:
		return nil, "", issue.NewErrorContext().
			WithOperation("load configuration").
			WithResource(path).
			WithSuggestion("Verify the file path is correct").
			WithSuggestion("Use 'lazyload config show' to see the default configuration").
			WithIssue(issue.ConfigLoadFailedId).
			Wrap(fmt.Errorf("config file not found: %s", path)).
			BuildError()
	case exists:
		if err := loadCUEIntoViper(v, path); err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(path).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Verify the values match the schema shown by 'lazyload config show'").
				WithIssue(issue.ConfigLoadFailedId).
				Wrap(err).
				BuildError()
		}
	default:
		path = ""
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	if ok, errs := cfg.IsValid(); !ok {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(path).
			WithSuggestion("Check LAZYLOAD_* environment variables for typos").
			WithIssue(issue.ConfigLoadFailedId).
			Wrap(errors.Join(errs...)).
			BuildError()
	}
	return &cfg, path, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	sources := make([]map[string]any, len(d.Sources))
	for i, s := range d.Sources {
		sources[i] = map[string]any{"kind": string(s.Kind), "location": s.Location}
	}
	v.SetDefault("sources", sources)
	v.SetDefault("hints", d.Hints)
	v.SetDefault("debug", d.Debug)
	v.SetDefault("equality", string(d.Equality))
	v.SetDefault("isolation", string(d.Isolation))
	v.SetDefault("strategy", string(d.Strategy))
	v.SetDefault("layout.extension", d.Layout.Extension)
	v.SetDefault("layout.debug_extension", d.Layout.DebugExtension)
	v.SetDefault("layout.shared_dir", d.Layout.SharedDir)
	v.SetDefault("fetch.timeout", d.Fetch.Timeout)
	v.SetDefault("fetch.retries", d.Fetch.Retries)
	v.SetDefault("init_export", d.InitExport)
	v.SetDefault("start_functions", d.StartFunctions)
	v.SetDefault("manifests", d.Manifests)
	v.SetDefault("watch", d.Watch)
	v.SetDefault("fallback", d.Fallback)
	v.SetDefault("ui.verbose", d.UI.Verbose)
}

// loadCUEIntoViper validates the file against #Config and merges it into v.
// Config fields are optional, so the document is decoded into a map rather
// than a struct and unset fields keep viper's defaults.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	unified, err := cueutil.Unify(configSchema, data, "#Config",
		cueutil.WithConcrete(false), cueutil.WithFilename(path))
	if err != nil {
		return err
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return cueutil.FormatError(err, path)
	}
	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// CreateDefaultConfig writes the default configuration to path, creating
// parent directories. An existing file is kept unless force is set.
func CreateDefaultConfig(path string, force bool) error {
	if !force && fileExists(path) {
		return fmt.Errorf("%w: %s", ErrConfigExists, path)
	}
	return Save(DefaultConfig(), path)
}

// Save writes cfg as CUE to path.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(GenerateCUE(cfg)), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateTOML renders cfg as TOML, for display.
func GenerateTOML(cfg *Config) (string, error) {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to encode config as TOML: %w", err)
	}
	return string(data), nil
}

// GenerateCUE renders cfg in the config file format.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// lazyload configuration\n\n")

	sb.WriteString("sources: [\n")
	for _, s := range cfg.Sources {
		fmt.Fprintf(&sb, "\t{kind: %q, location: %q},\n", s.Kind, s.Location)
	}
	sb.WriteString("]\n")
	if len(cfg.Hints) > 0 {
		fmt.Fprintf(&sb, "hints: %s\n", cueList(cfg.Hints))
	}

	fmt.Fprintf(&sb, "\ndebug:     %v\n", cfg.Debug)
	fmt.Fprintf(&sb, "equality:  %q\n", cfg.Equality)
	fmt.Fprintf(&sb, "isolation: %q\n", cfg.Isolation)
	fmt.Fprintf(&sb, "strategy:  %q\n", cfg.Strategy)

	sb.WriteString("\nlayout: {\n")
	fmt.Fprintf(&sb, "\textension:       %q\n", cfg.Layout.Extension)
	fmt.Fprintf(&sb, "\tdebug_extension: %q\n", cfg.Layout.DebugExtension)
	fmt.Fprintf(&sb, "\tshared_dir:      %q\n", cfg.Layout.SharedDir)
	sb.WriteString("}\n")

	sb.WriteString("\nfetch: {\n")
	fmt.Fprintf(&sb, "\ttimeout: %q\n", cfg.Fetch.Timeout.String())
	fmt.Fprintf(&sb, "\tretries: %d\n", cfg.Fetch.Retries)
	sb.WriteString("}\n")

	fmt.Fprintf(&sb, "\ninit_export: %q\n", cfg.InitExport)
	fmt.Fprintf(&sb, "start_functions: %s\n", cueList(cfg.StartFunctions))
	fmt.Fprintf(&sb, "manifests: %v\n", cfg.Manifests)
	fmt.Fprintf(&sb, "watch: %v\n", cfg.Watch)
	if cfg.Fallback != "" {
		fmt.Fprintf(&sb, "fallback: %q\n", cfg.Fallback)
	}

	sb.WriteString("\nui: {\n")
	fmt.Fprintf(&sb, "\tverbose: %v\n", cfg.UI.Verbose)
	sb.WriteString("}\n")

	return sb.String()
}

func cueList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
