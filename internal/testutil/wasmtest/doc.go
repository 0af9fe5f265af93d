// SPDX-License-Identifier: MPL-2.0

// Package wasmtest builds small WebAssembly binaries for tests.
//
// Every generated module exports a "ping" function returning a constant and
// imports "ping" from each of its dependencies, so instantiation succeeds only
// when the dependencies are already linked under their names.
package wasmtest
