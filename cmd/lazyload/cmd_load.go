// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/invowk/lazyload/internal/host"
	"github.com/invowk/lazyload/internal/loader"
	"github.com/invowk/lazyload/pkg/modident"
)

// defaultFallback is printed for an optional module that could not be loaded
// when the configuration sets no fallback text.
const defaultFallback = "module unavailable"

type loadFlagValues struct {
	required bool
	session  string
}

// newLoadCommand creates the `lazyload load` command.
func newLoadCommand(app *App) *cobra.Command {
	var flags loadFlagValues

	cmd := &cobra.Command{
		Use:   "load <module>...",
		Short: "Load modules and their dependencies",
		Long: `Load each module, and every module it imports, into a session.

A module is named "name" or "name@version". Modules that cannot be loaded are
optional by default: the configured fallback text is printed in their place
and the command still succeeds. Pass --required to fail instead.

Examples:
  lazyload load billing
  lazyload load billing reports --session tenant-a
  lazyload load billing@1.2.0 --required`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(cmd.Context(), app, flags, args)
		},
	}

	cmd.Flags().BoolVar(&flags.required, "required", false, "fail when a module cannot be loaded")
	cmd.Flags().StringVar(&flags.session, "session", host.DefaultSession, "session to load into")

	return cmd
}

func runLoad(ctx context.Context, app *App, flags loadFlagValues, args []string) error {
	h, err := app.newHost(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = h.Close(context.WithoutCancel(ctx)) }()

	l, err := h.Session(ctx, flags.session)
	if err != nil {
		return failure(err, "create session", flags.session)
	}

	for _, arg := range args {
		if err := loadOne(ctx, app, h, l, arg, flags.required); err != nil {
			return err
		}
	}
	return nil
}

func loadOne(ctx context.Context, app *App, h *host.Host, l *loader.Loader, arg string, required bool) error {
	id, err := modident.Parse(arg)
	if err == nil {
		_, err = l.Load(ctx, id)
	}
	if err != nil {
		if required || !loader.IsNotFound(err) {
			return failure(err, "load module", arg,
				fmt.Sprintf("Run 'lazyload locate %s' to see where it is looked up", arg),
				fmt.Sprintf("Run 'lazyload plan %s' to check its dependencies", arg))
		}
		app.logger.Debug("optional module not loaded", "module", arg, "error", err)
		fallback := h.Config().Fallback
		if fallback == "" {
			fallback = defaultFallback
		}
		fmt.Fprintf(app.stdout, "%s %s: %s\n", WarningStyle.Render("!"), arg, fallback)
		return nil
	}

	plan, err := h.Plan(ctx, id)
	if err != nil {
		return failure(err, "describe module", arg)
	}
	renderLoadTree(app.stdout, plan, l, h.Comparer())
	return nil
}

// renderLoadTree prints the root of plan and its imports as a tree, marking
// each module owned, foreign, or builtin relative to the loader's scope.
func renderLoadTree(w io.Writer, plan *host.Plan, l *loader.Loader, cmp modident.Comparer) {
	steps := make(map[string]host.Step, len(plan.Steps))
	for _, s := range plan.Steps {
		steps[cmp.Key(s.Identity)] = s
	}
	root := steps[cmp.Key(plan.Root)]

	fmt.Fprintf(w, "%s %s\n", SuccessStyle.Render("✓"), describeStep(root, l))
	var walk func(deps []modident.Identity, prefix string)
	walk = func(deps []modident.Identity, prefix string) {
		for i, dep := range deps {
			last := i == len(deps)-1
			branch, next := "├─ ", "│  "
			if last {
				branch, next = "└─ ", "   "
			}
			s := steps[cmp.Key(dep)]
			fmt.Fprintf(w, "%s%s\n", SubtitleStyle.Render(prefix+branch), describeStep(s, l))
			walk(s.Dependencies, prefix+next)
		}
	}
	walk(root.Dependencies, "  ")
}

func describeStep(s host.Step, l *loader.Loader) string {
	var sb strings.Builder
	sb.WriteString(TitleStyle.Render(s.Identity.String()))
	sb.WriteString(" ")
	sb.WriteString(VerboseStyle.Render("(" + ownership(s, l) + ")"))
	if s.Location != "" {
		sb.WriteString(" ")
		sb.WriteString(CmdStyle.Render(s.Location))
	}
	return sb.String()
}

func ownership(s host.Step, l *loader.Loader) string {
	m, ok := l.Loaded(s.Identity)
	switch {
	case s.Builtin || (ok && m.Builtin):
		return "builtin"
	case !ok:
		return "not loaded"
	case m.IsOwnedBy(l.Scope()):
		return "owned"
	default:
		return "foreign: " + m.Owner
	}
}
