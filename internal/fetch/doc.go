// SPDX-License-Identifier: MPL-2.0

// Package fetch retrieves raw bytes for a location string.
//
// A Fetcher never returns an error: every failure (missing file, network
// error, cancellation, bad status) collapses into "not found" and is logged at
// debug level. Callers probe many candidate locations and treat a miss as the
// normal signal to try the next one.
//
// Implementations:
//   - FS reads from an afero filesystem (a directory on disk or an in-memory tree)
//   - HTTP issues GET requests against a base URL and retries transient failures
//   - Bundle serves files out of a packaged .zip or .tar(.gz) archive
//   - Chain tries several fetchers in order
//   - WithTimeout bounds each fetch with a deadline
package fetch
