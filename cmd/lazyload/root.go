// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for lazyload.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// NewRootCommand builds the command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lazyload",
		Short: "Load WebAssembly modules and their dependencies on demand",
		Long: TitleStyle.Render("lazyload") + SubtitleStyle.Render(" - Load WebAssembly modules and their dependencies on demand") + `

lazyload locates module binaries in directories, HTTP servers, or packaged
bundles, resolves the modules each one imports, and instantiates the whole
closure exactly once per session.

` + SubtitleStyle.Render("Examples:") + `
  lazyload load billing              Load billing and its dependencies
  lazyload run billing total 3 4     Call an exported function
  lazyload plan billing              Show the activation order without loading
  lazyload locate billing            Show where billing is looked up
  lazyload config show               Show current configuration`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			app.init(cmd.Context())
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&app.flags.verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&app.flags.configPath, "config", "", "config file (default is $XDG_CONFIG_HOME/lazyload/config.cue)")

	rootCmd.AddCommand(
		newLoadCommand(app),
		newRunCommand(app),
		newDepsCommand(app),
		newLocateCommand(app),
		newPlanCommand(app),
		newWatchCommand(app),
		newConfigCommand(app),
	)
	rootCmd.SetOut(app.stdout)
	rootCmd.SetErr(app.stderr)
	return rootCmd
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI. It is called by main.main().
func Execute() {
	app := NewApp(Dependencies{})
	if err := fang.Execute(
		context.Background(),
		NewRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
		fang.WithErrorHandler(func(w io.Writer, styles fang.Styles, err error) {
			var svcErr *ServiceError
			if errors.As(err, &svcErr) {
				renderServiceError(w, svcErr, app.flags.verbose)
				return
			}
			fang.DefaultErrorHandler(w, styles, err)
		}),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}
