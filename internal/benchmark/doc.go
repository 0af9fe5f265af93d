// SPDX-License-Identifier: MPL-2.0

// Package benchmark provides benchmarks for PGO profile generation.
// These benchmarks cover the hot paths of a module load:
//   - configuration and manifest parsing (CUE validation)
//   - binary import-section decoding
//   - cold and warm loads of a dependency closure, per isolation kind
//   - concurrent loads of overlapping closures into one session
//   - static load planning
//
// To generate a profile, run:
//
//	go test -run '^$' -bench . -cpuprofile default.pgo ./internal/benchmark
package benchmark
