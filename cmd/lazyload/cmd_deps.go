// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/invowk/lazyload/internal/isolation"
	"github.com/invowk/lazyload/pkg/wasmmeta"
)

// newDepsCommand creates the `lazyload deps` command.
func newDepsCommand(app *App) *cobra.Command {
	var showExports bool

	cmd := &cobra.Command{
		Use:   "deps <file.wasm>",
		Short: "Print the modules a binary imports",
		Long: `Read a module binary and print the module names it imports, in the order
they first appear. Host modules the runtime supplies itself are marked builtin.

Examples:
  lazyload deps shared/billing.wasm
  lazyload deps app/app.wasm --exports`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeps(app, args[0], showExports)
		},
	}

	cmd.Flags().BoolVar(&showExports, "exports", false, "also list exported functions")

	return cmd
}

func runDeps(app *App, path string, showExports bool) error {
	bin, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read module binary: %w", err)
	}
	info, err := wasmmeta.Inspect(bin)
	if err != nil {
		return failure(err, "read module binary", path)
	}

	if info.ModuleName != "" {
		fmt.Fprintf(app.stdout, "%s %s\n", SubtitleStyle.Render("module:"), TitleStyle.Render(info.ModuleName))
	}
	if len(info.Dependencies) == 0 {
		fmt.Fprintln(app.stdout, SubtitleStyle.Render("(no dependencies)"))
	}
	for _, dep := range info.Dependencies {
		if isolation.IsBuiltin(string(dep.Name)) {
			fmt.Fprintf(app.stdout, "%s %s\n", dep, VerboseStyle.Render("(builtin)"))
			continue
		}
		fmt.Fprintln(app.stdout, dep)
	}

	if showExports {
		fmt.Fprintln(app.stdout, SubtitleStyle.Render("exports:"))
		for _, name := range info.Exports {
			fmt.Fprintf(app.stdout, "  %s\n", CmdStyle.Render(name))
		}
	}
	return nil
}
