// SPDX-License-Identifier: MPL-2.0

// Package manifest reads per-module manifest.json files.
//
// A manifest names the components and routes a module provides, so callers
// can find the module to load for a component name or a request path before
// the module is loaded. Manifests that set "hint" contribute their module
// directory to the default location strategy.
package manifest
