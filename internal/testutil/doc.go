// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helpers for tests that fail fast on setup errors.
//
// Environment helpers (MustSetenv, MustUnsetenv, SetConfigHome) return cleanup
// functions that restore the previous state. The wasmtest subpackage encodes
// small module binaries.
package testutil
