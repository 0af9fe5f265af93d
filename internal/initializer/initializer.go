// SPDX-License-Identifier: MPL-2.0

// Package initializer runs a module's configure export once the module is
// loaded, giving it a chance to register itself with the host.
package initializer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/invowk/lazyload/internal/isolation"
	"github.com/invowk/lazyload/internal/loader"
)

// DefaultExport is the export called when none is configured.
const DefaultExport = "configure"

type (
	// Initializer calls a configure export on freshly loaded modules.
	Initializer struct {
		export string
		logger *slog.Logger
	}

	// Option configures an Initializer.
	Option func(*Initializer)
)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Initializer) { i.logger = l }
}

// New creates an Initializer for export. An empty export uses DefaultExport.
func New(export string, opts ...Option) *Initializer {
	if export == "" {
		export = DefaultExport
	}
	i := &Initializer{export: export, logger: slog.Default()}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Hook returns a loader callback that runs export on every loaded module.
func Hook(export string, opts ...Option) loader.OnLoadFunc {
	return New(export, opts...).Configure
}

// Export returns the export name the initializer calls.
func (i *Initializer) Export() string { return i.export }

// Configure calls the export on m. Builtin modules and modules without the
// export are skipped. The export must take no parameters.
func (i *Initializer) Configure(ctx context.Context, m *isolation.Module) error {
	if m.Builtin || m.Instance == nil {
		return nil
	}
	fn := m.Instance.ExportedFunction(i.export)
	if fn == nil {
		return nil
	}
	if params := fn.Definition().ParamTypes(); len(params) != 0 {
		return fmt.Errorf("%s: export %q takes %d parameters, want none", m.Identity, i.export, len(params))
	}

	results, err := fn.Call(ctx)
	if err != nil {
		return fmt.Errorf("%s: calling %q: %w", m.Identity, i.export, err)
	}
	i.logger.Debug("module configured", "module", m.Identity.String(), "export", i.export, "results", results)
	return nil
}
