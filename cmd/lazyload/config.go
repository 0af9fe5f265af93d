// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/invowk/lazyload/internal/config"
)

// newConfigCommand creates the `lazyload config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage lazyload configuration",
		Long: `Manage lazyload configuration.

Configuration is read from the first of:
  - the file given with --config
  - Linux: ~/.config/lazyload/config.cue
    macOS: ~/Library/Application Support/lazyload/config.cue
    Windows: %APPDATA%\lazyload\config.cue
  - ./config.cue

LAZYLOAD_* environment variables override file values.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var format string
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfig(app, format)
		},
	}
	showCmd.Flags().StringVar(&format, "format", "cue", "output format (cue, toml)")
	cfgCmd.AddCommand(showCmd)

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(app, force)
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cfgCmd.AddCommand(initCmd)

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfigPath(app)
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setConfigValue(app, args[0], args[1])
		},
	})

	return cfgCmd
}

func showConfig(app *App, format string) error {
	loaded, err := app.config()
	if err != nil {
		return err
	}

	switch format {
	case "cue":
		if loaded.Path != "" {
			fmt.Fprintf(app.stdout, "// %s\n", loaded.Path)
		}
		fmt.Fprint(app.stdout, config.GenerateCUE(loaded.Config))
	case "toml":
		out, err := config.GenerateTOML(loaded.Config)
		if err != nil {
			return err
		}
		fmt.Fprint(app.stdout, out)
	default:
		return fmt.Errorf("unknown format %q (valid: cue, toml)", format)
	}
	return nil
}

// targetPath is where init and set write: --config when given, otherwise the
// file Load would read.
func targetPath(app *App) (string, bool, error) {
	return config.Resolve(config.LoadOptions{ConfigFilePath: app.flags.configPath})
}

func initConfig(app *App, force bool) error {
	path, _, err := targetPath(app)
	if err != nil {
		return err
	}
	if err := config.CreateDefaultConfig(path, force); err != nil {
		if errors.Is(err, config.ErrConfigExists) {
			return failure(err, "create config", path, "Pass --force to overwrite it")
		}
		return fmt.Errorf("failed to create config: %w", err)
	}
	fmt.Fprintf(app.stdout, "%s Created default configuration at %s\n", SuccessStyle.Render("✓"), path)
	return nil
}

func showConfigPath(app *App) error {
	cfgDir, err := config.ConfigDir()
	if err != nil {
		return err
	}
	path, exists, err := targetPath(app)
	if err != nil {
		return err
	}

	fmt.Fprintf(app.stdout, "Config directory: %s\n", cfgDir)
	if exists {
		fmt.Fprintf(app.stdout, "Config file: %s\n", path)
	} else {
		fmt.Fprintf(app.stdout, "Config file: %s %s\n", filepath.Join(cfgDir, config.ConfigFileName+"."+config.ConfigFileExt),
			SubtitleStyle.Render("(not created; using defaults)"))
	}
	return nil
}

func setConfigValue(app *App, key, value string) error {
	loaded, err := app.config()
	if err != nil {
		return err
	}
	cfg := loaded.Config

	parseBool := func() (bool, error) {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return false, fmt.Errorf("invalid %s: %q is not a boolean", key, value)
		}
		return b, nil
	}

	switch key {
	case "equality":
		cfg.Equality = config.EqualityPolicy(value)
	case "isolation":
		cfg.Isolation = config.IsolationKind(value)
	case "strategy":
		cfg.Strategy = config.StrategyKind(value)
	case "init_export":
		cfg.InitExport = value
	case "fallback":
		cfg.Fallback = value
	case "debug", "manifests", "watch", "ui.verbose":
		b, err := parseBool()
		if err != nil {
			return err
		}
		switch key {
		case "debug":
			cfg.Debug = b
		case "manifests":
			cfg.Manifests = b
		case "watch":
			cfg.Watch = b
		default:
			cfg.UI.Verbose = b
		}
	default:
		return fmt.Errorf("unknown configuration key: %s\nValid keys: equality, isolation, strategy, init_export, fallback, debug, manifests, watch, ui.verbose", key)
	}

	if ok, errs := cfg.IsValid(); !ok {
		return failure(errors.Join(errs...), "set config value", key)
	}

	path, _, err := targetPath(app)
	if err != nil {
		return err
	}
	if err := config.Save(cfg, path); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	fmt.Fprintf(app.stdout, "%s Set %s = %s\n", SuccessStyle.Render("✓"), key, value)
	return nil
}
