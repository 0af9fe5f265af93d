// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/invowk/lazyload/internal/host"
	"github.com/invowk/lazyload/internal/watch"
)

// newWatchCommand creates the `lazyload watch` command.
func newWatchCommand(app *App) *cobra.Command {
	var (
		session  string
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch <module>...",
		Short: "Keep modules loaded and reload them when their files change",
		Long: `Load modules into a session, then watch every dir source. When a module
binary, debug companion, or manifest changes, cached bytes are dropped and the
session is rebuilt from the new files. Runs until interrupted.

Examples:
  lazyload watch billing reports
  lazyload watch billing --debounce 1s`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), app, session, debounce, args)
		},
	}

	cmd.Flags().StringVar(&session, "session", host.DefaultSession, "session to load into")
	cmd.Flags().DurationVar(&debounce, "debounce", 0, "quiet period before reloading (default 500ms)")

	return cmd
}

func runWatch(ctx context.Context, app *App, session string, debounce time.Duration, modules []string) error {
	h, err := app.newHost(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = h.Close(context.WithoutCancel(ctx)) }()

	reload := func(ctx context.Context) {
		l, err := h.Session(ctx, session)
		if err != nil {
			fmt.Fprintf(app.stderr, "%s %v\n", WarningStyle.Render("!"), err)
			return
		}
		for _, module := range modules {
			if err := loadOne(ctx, app, h, l, module, false); err != nil {
				fmt.Fprintf(app.stderr, "%s %v\n", WarningStyle.Render("!"), err)
			}
		}
	}

	reload(ctx)

	err = h.StartWatching(ctx, host.WatchOptions{
		Debounce: debounce,
		OnChange: func(ctx context.Context, changes []watch.Change) error {
			fmt.Fprintf(app.stdout, "%s Detected %d change(s). Reloading session %s...\n",
				VerboseHighlightStyle.Render("→"), len(changes), session)
			if err := h.Release(ctx, session); err != nil {
				app.logger.Warn("session release incomplete", "session", session, "error", err)
			}
			reload(ctx)
			return nil
		},
	})
	if err != nil {
		return failure(err, "watch module sources", "",
			"Add a source with kind \"dir\" to your configuration")
	}
	fmt.Fprintf(app.stdout, "\n%s Watching for changes (Ctrl+C to stop)...\n", VerboseHighlightStyle.Render("→"))

	select {
	case <-ctx.Done():
		h.StopWatching()
		return nil
	case err := <-h.WatchErr():
		return failure(err, "watch module sources", "")
	}
}
