// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/invowk/lazyload/pkg/modident"
)

// newPlanCommand creates the `lazyload plan` command.
func newPlanCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "plan <module>",
		Short: "Print the activation order of a module's dependency closure",
		Long: `Resolve a module's dependency closure from its binaries without
instantiating anything, and print the order modules would be activated in:
dependencies first, the requested module last. Import cycles are reported.

Examples:
  lazyload plan billing`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd.Context(), app, args[0])
		},
	}
}

func runPlan(ctx context.Context, app *App, module string) error {
	id, err := modident.Parse(module)
	if err != nil {
		return failure(err, "plan module", module)
	}
	h, err := app.newHost(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = h.Close(context.WithoutCancel(ctx)) }()

	plan, err := h.Plan(ctx, id)
	if err != nil {
		return failure(err, "plan module", module,
			fmt.Sprintf("Run 'lazyload locate %s' to see where it is looked up", module))
	}

	for i, s := range plan.Steps {
		line := fmt.Sprintf("%d. %s", i+1, TitleStyle.Render(s.Identity.String()))
		switch {
		case s.Builtin:
			line += " " + VerboseStyle.Render("(builtin)")
		default:
			line += " " + CmdStyle.Render(s.Location)
		}
		if len(s.Dependencies) > 0 {
			names := make([]string, len(s.Dependencies))
			for j, d := range s.Dependencies {
				names[j] = d.String()
			}
			line += " " + SubtitleStyle.Render("<- "+strings.Join(names, ", "))
		}
		fmt.Fprintln(app.stdout, line)
	}
	return nil
}
