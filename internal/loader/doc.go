// SPDX-License-Identifier: MPL-2.0

// Package loader loads modules and their dependency closures into an
// isolation context on demand.
//
// A Loader guarantees that at most one physical load per module identity is
// in flight at any time: concurrent callers asking for the same identity share
// one outcome. Dependencies are loaded concurrently and a module is only
// instantiated once every dependency has been activated.
//
// Failing to find or activate a module is an ordinary outcome reported as a
// *NotFoundError. The only other error, *InvariantError, signals a bug in the
// in-flight bookkeeping and is logged at error level.
package loader
