// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"path/filepath"
	"runtime"
	"testing"
)

// SetConfigHome points the per-user configuration directory at dir and
// returns a cleanup function restoring the previous environment.
//
// Platform handling:
//   - Windows: APPDATA=dir
//   - macOS: HOME=dir (config lives under Library/Application Support)
//   - Linux and others: XDG_CONFIG_HOME=dir/.config, HOME=dir
func SetConfigHome(t testing.TB, dir string) func() {
	t.Helper()

	var cleanups []func()
	switch runtime.GOOS {
	case "windows":
		cleanups = append(cleanups, MustSetenv(t, "APPDATA", dir))
	case "darwin":
		cleanups = append(cleanups, MustSetenv(t, "HOME", dir))
	default:
		cleanups = append(cleanups,
			MustSetenv(t, "HOME", dir),
			MustSetenv(t, "XDG_CONFIG_HOME", filepath.Join(dir, ".config")))
	}
	return func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
}

// ConfigHome returns the directory SetConfigHome(dir) makes the per-user
// configuration base.
func ConfigHome(dir string) string {
	switch runtime.GOOS {
	case "windows":
		return dir
	case "darwin":
		return filepath.Join(dir, "Library", "Application Support")
	default:
		return filepath.Join(dir, ".config")
	}
}
