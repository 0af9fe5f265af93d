// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// SourceDir reads modules from a local directory.
	SourceDir SourceKind = "dir"
	// SourceHTTP reads modules from an HTTP base URL.
	SourceHTTP SourceKind = "http"
	// SourceBundle reads modules from a zip or tar archive.
	SourceBundle SourceKind = "bundle"

	// The following mirror modident, isolation and locator values. They are
	// defined here so that loading configuration does not pull in wazero.

	// EqualityName compares identities by name only.
	EqualityName EqualityPolicy = "name"
	// EqualityNameVersion compares name and version.
	EqualityNameVersion EqualityPolicy = "name_version"

	// IsolationFlat loads every session into one shared namespace.
	IsolationFlat IsolationKind = "flat"
	// IsolationSandboxed gives every session its own runtime.
	IsolationSandboxed IsolationKind = "sandboxed"

	// StrategyDefault probes hints, the module directory, then the shared pool.
	StrategyDefault StrategyKind = "default"
	// StrategyHierarchical probes along the resolution branch.
	StrategyHierarchical StrategyKind = "hierarchical"
)

var (
	// ErrInvalidSource is the sentinel wrapped by InvalidSourceError.
	ErrInvalidSource = errors.New("invalid source")
	// ErrInvalidConfig is the sentinel wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// SourceKind selects a fetcher implementation.
	SourceKind string

	// EqualityPolicy selects how module identities are compared.
	EqualityPolicy string

	// IsolationKind selects the isolation strategy.
	IsolationKind string

	// StrategyKind selects the location strategy.
	StrategyKind string

	// Config is the lazyload configuration.
	Config struct {
		// Sources are probed in order; the first that has a location wins.
		Sources []SourceConfig `json:"sources" mapstructure:"sources" toml:"sources"`
		// Hints are extra directories probed before a module's own directory.
		Hints          []string       `json:"hints" mapstructure:"hints" toml:"hints"`
		Debug          bool           `json:"debug" mapstructure:"debug" toml:"debug"`
		Equality       EqualityPolicy `json:"equality" mapstructure:"equality" toml:"equality"`
		Isolation      IsolationKind  `json:"isolation" mapstructure:"isolation" toml:"isolation"`
		Strategy       StrategyKind   `json:"strategy" mapstructure:"strategy" toml:"strategy"`
		Layout         LayoutConfig   `json:"layout" mapstructure:"layout" toml:"layout"`
		Fetch          FetchConfig    `json:"fetch" mapstructure:"fetch" toml:"fetch"`
		InitExport     string         `json:"init_export" mapstructure:"init_export" toml:"init_export"`
		StartFunctions []string       `json:"start_functions" mapstructure:"start_functions" toml:"start_functions"`
		// Manifests enables reading <module>/manifest.json for hints and lookups.
		Manifests bool `json:"manifests" mapstructure:"manifests" toml:"manifests"`
		// Watch invalidates cached payloads when files under dir sources change.
		Watch bool `json:"watch" mapstructure:"watch" toml:"watch"`
		// Fallback is printed instead of failing when a load reports not found.
		Fallback string   `json:"fallback" mapstructure:"fallback" toml:"fallback"`
		UI       UIConfig `json:"ui" mapstructure:"ui" toml:"ui"`
	}

	// SourceConfig is one module source.
	SourceConfig struct {
		Kind     SourceKind `json:"kind" mapstructure:"kind" toml:"kind"`
		Location string     `json:"location" mapstructure:"location" toml:"location"`
	}

	// LayoutConfig overrides file naming in sources.
	LayoutConfig struct {
		Extension      string `json:"extension" mapstructure:"extension" toml:"extension"`
		DebugExtension string `json:"debug_extension" mapstructure:"debug_extension" toml:"debug_extension"`
		SharedDir      string `json:"shared_dir" mapstructure:"shared_dir" toml:"shared_dir"`
	}

	// FetchConfig bounds each fetch.
	FetchConfig struct {
		Timeout time.Duration `json:"timeout" mapstructure:"timeout" toml:"timeout"`
		// Retries applies to http sources only.
		Retries uint64 `json:"retries" mapstructure:"retries" toml:"retries"`
	}

	// UIConfig configures CLI output.
	UIConfig struct {
		Verbose bool `json:"verbose" mapstructure:"verbose" toml:"verbose"`
	}

	// InvalidSourceError reports a source entry that cannot be used.
	InvalidSourceError struct {
		Index  int
		Source SourceConfig
		Reason string
	}

	// InvalidConfigError collects field errors. It wraps ErrInvalidConfig for
	// errors.Is() compatibility.
	InvalidConfigError struct {
		FieldErrors []error
	}
)

// String returns the string representation of the SourceKind.
func (k SourceKind) String() string { return string(k) }

// IsValid reports whether the SourceConfig can be turned into a fetcher.
func (s SourceConfig) IsValid() (bool, string) {
	switch s.Kind {
	case SourceDir, SourceHTTP, SourceBundle:
	default:
		return false, fmt.Sprintf("unknown kind %q (valid: %s, %s, %s)", s.Kind, SourceDir, SourceHTTP, SourceBundle)
	}
	if strings.TrimSpace(s.Location) == "" {
		return false, "location is empty"
	}
	return true, ""
}

// IsValid returns whether the Config has valid fields. The CUE schema already
// rejects most bad values; this catches what it cannot, such as values set
// through the environment.
func (c Config) IsValid() (bool, []error) {
	var errs []error
	for i, s := range c.Sources {
		if ok, reason := s.IsValid(); !ok {
			errs = append(errs, &InvalidSourceError{Index: i, Source: s, Reason: reason})
		}
	}
	switch c.Equality {
	case EqualityName, EqualityNameVersion:
	default:
		errs = append(errs, fmt.Errorf("equality: unknown policy %q", c.Equality))
	}
	switch c.Isolation {
	case IsolationFlat, IsolationSandboxed:
	default:
		errs = append(errs, fmt.Errorf("isolation: unknown kind %q", c.Isolation))
	}
	switch c.Strategy {
	case StrategyDefault, StrategyHierarchical:
	default:
		errs = append(errs, fmt.Errorf("strategy: unknown kind %q", c.Strategy))
	}
	if c.Fetch.Timeout < 0 {
		errs = append(errs, fmt.Errorf("fetch.timeout: negative duration %s", c.Fetch.Timeout))
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidSourceError.
func (e *InvalidSourceError) Error() string {
	return fmt.Sprintf("sources[%d]: %s", e.Index, e.Reason)
}

// Unwrap returns ErrInvalidSource for errors.Is() compatibility.
func (e *InvalidSourceError) Unwrap() error { return ErrInvalidSource }

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, len(e.FieldErrors))
	for i, err := range e.FieldErrors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(msgs, "; "))
}

// Unwrap returns the sentinel and every field error.
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Sources:   []SourceConfig{{Kind: SourceDir, Location: "."}},
		Hints:     []string{},
		Equality:  EqualityName,
		Isolation: IsolationSandboxed,
		Strategy:  StrategyDefault,
		Layout: LayoutConfig{
			Extension:      ".wasm",
			DebugExtension: ".wasm.map",
			SharedDir:      "shared",
		},
		Fetch: FetchConfig{
			Timeout: 30 * time.Second,
			Retries: 3,
		},
		InitExport:     "configure",
		StartFunctions: []string{"_initialize"},
		Manifests:      true,
	}
}
