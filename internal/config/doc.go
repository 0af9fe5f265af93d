// SPDX-License-Identifier: MPL-2.0

// Package config loads lazyload settings with Viper, using CUE as the file
// format.
//
// The file is config.cue in the platform config directory (for example
// ~/.config/lazyload/config.cue), falling back to ./config.cue. It is
// validated against the embedded config_schema.cue before being merged over
// the defaults. LAZYLOAD_* environment variables override scalar fields, with
// nested keys joined by underscores (LAZYLOAD_FETCH_RETRIES).
package config
