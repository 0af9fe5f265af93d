// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/invowk/lazyload/internal/host"
	"github.com/invowk/lazyload/pkg/modident"
)

// ErrExportNotFound is returned when a loaded module has no such function export.
var ErrExportNotFound = errors.New("export not found")

// newRunCommand creates the `lazyload run` command.
func newRunCommand(app *App) *cobra.Command {
	var session string

	cmd := &cobra.Command{
		Use:   "run <module> <export> [args...]",
		Short: "Load a module and call one of its exported functions",
		Long: `Load a module with its dependencies, then call an exported function.

Arguments are passed as unsigned 64-bit integers; results are printed one per
line in the same encoding.

Examples:
  lazyload run billing total 3 4
  lazyload run reports ping --session tenant-a`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd.Context(), app, session, args[0], args[1], args[2:])
		},
	}

	cmd.Flags().StringVar(&session, "session", host.DefaultSession, "session to load into")

	return cmd
}

func runExport(ctx context.Context, app *App, session, module, export string, rawArgs []string) error {
	params := make([]uint64, len(rawArgs))
	for i, raw := range rawArgs {
		v, err := strconv.ParseUint(raw, 0, 64)
		if err != nil {
			return fmt.Errorf("argument %d (%q) is not an unsigned integer: %w", i+1, raw, err)
		}
		params[i] = v
	}

	id, err := modident.Parse(module)
	if err != nil {
		return failure(err, "load module", module)
	}

	h, err := app.newHost(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = h.Close(context.WithoutCancel(ctx)) }()

	m, err := h.Load(ctx, session, id)
	if err != nil {
		return failure(err, "load module", module,
			fmt.Sprintf("Run 'lazyload plan %s' to check its dependencies", module))
	}

	fn := m.Instance.ExportedFunction(export)
	if fn == nil {
		return failure(fmt.Errorf("%w: %s", ErrExportNotFound, export), "call export", module+"."+export,
			fmt.Sprintf("Run 'lazyload deps <path to %s.wasm>' to list its exports", id.Name))
	}
	if want := len(fn.Definition().ParamTypes()); want != len(params) {
		return fmt.Errorf("export %s takes %d argument(s), got %d", export, want, len(params))
	}

	results, err := fn.Call(ctx, params...)
	if err != nil {
		return failure(err, "call export", module+"."+export)
	}
	for _, r := range results {
		fmt.Fprintln(app.stdout, r)
	}
	return nil
}
