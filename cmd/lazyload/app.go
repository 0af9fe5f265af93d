// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/log"

	"github.com/invowk/lazyload/internal/config"
	"github.com/invowk/lazyload/internal/host"
)

type (
	// ConfigLoader loads configuration and reports the file it came from.
	ConfigLoader func(ctx context.Context, opts config.LoadOptions) (*config.Loaded, error)

	// App wires CLI services and shared dependencies. Every command handler
	// receives the App and builds its host through it.
	App struct {
		loadConfig ConfigLoader
		stdout     io.Writer
		stderr     io.Writer
		flags      rootFlagValues

		loaded    *config.Loaded
		configErr error
		logger    *slog.Logger
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config ConfigLoader
		Stdout io.Writer
		Stderr io.Writer
	}

	rootFlagValues struct {
		configPath string
		verbose    bool
	}
)

// NewApp creates an App, filling unset dependencies with defaults.
func NewApp(deps Dependencies) *App {
	app := &App{
		loadConfig: deps.Config,
		stdout:     deps.Stdout,
		stderr:     deps.Stderr,
	}
	if app.loadConfig == nil {
		app.loadConfig = config.LoadWithPath
	}
	if app.stdout == nil {
		app.stdout = os.Stdout
	}
	if app.stderr == nil {
		app.stderr = os.Stderr
	}
	app.logger = newLogger(app.stderr, false)
	return app
}

// init loads configuration and sets up logging. A config error is kept and
// reported by the commands that need configuration.
func (a *App) init(ctx context.Context) {
	a.loaded, a.configErr = a.loadConfig(ctx, config.LoadOptions{ConfigFilePath: a.flags.configPath})
	if a.configErr == nil && !a.flags.verbose {
		a.flags.verbose = a.loaded.Config.UI.Verbose
	}
	a.logger = newLogger(a.stderr, a.flags.verbose)
}

// config returns the loaded configuration or the load failure as a service error.
func (a *App) config() (*config.Loaded, error) {
	if a.configErr != nil {
		resource := a.flags.configPath
		if resource == "" {
			resource = "configuration"
		}
		return nil, failure(a.configErr, "load config", resource,
			"Run 'lazyload config path' to see which file is read",
			"Run 'lazyload config init --force' to restore the defaults")
	}
	return a.loaded, nil
}

// newHost builds a host from the loaded configuration. Relative sources
// resolve against the working directory. Watching is left to the watch
// command, which starts it with its own change callback.
func (a *App) newHost(ctx context.Context) (*host.Host, error) {
	loaded, err := a.config()
	if err != nil {
		return nil, err
	}
	cfg := *loaded.Config
	cfg.Watch = false
	h, err := host.New(ctx, &cfg, host.WithLogger(a.logger))
	if err != nil {
		return nil, failure(err, "open module sources", "",
			"Check the 'sources' entries in your configuration")
	}
	return h, nil
}

// newLogger returns a slog logger writing through a charmbracelet/log handler.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := log.WarnLevel
	if verbose {
		level = log.DebugLevel
	}
	handler := log.NewWithOptions(w, log.Options{
		Level:  level,
		Prefix: "lazyload",
	})
	return slog.New(handler)
}
