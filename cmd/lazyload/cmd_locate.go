// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/invowk/lazyload/pkg/modident"
)

// newLocateCommand creates the `lazyload locate` command.
func newLocateCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "locate <module>",
		Short: "Print where a module is looked up, in probe order",
		Long: `Print the candidate locations for a module in the order sources are probed.
The first location any source can serve wins.

Examples:
  lazyload locate billing
  lazyload locate billing@1.2.0`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLocate(cmd.Context(), app, args[0])
		},
	}
}

func runLocate(ctx context.Context, app *App, module string) error {
	id, err := modident.Parse(module)
	if err != nil {
		return failure(err, "locate module", module)
	}
	h, err := app.newHost(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = h.Close(context.WithoutCancel(ctx)) }()

	debug := h.Config().Debug
	for i, c := range h.Locate(id) {
		fmt.Fprintf(app.stdout, "%d. %s\n", i+1, CmdStyle.Render(c.Primary))
		if debug && c.Companion != "" {
			fmt.Fprintf(app.stdout, "   %s %s\n", SubtitleStyle.Render("debug:"), VerboseStyle.Render(c.Companion))
		}
	}
	return nil
}
