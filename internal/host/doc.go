// SPDX-License-Identifier: MPL-2.0

// Package host assembles a running loader stack from configuration: module
// sources, the location strategy, the data provider, the isolation factory,
// and one loader per named session. It also plans loads without instantiating
// anything and keeps cached payloads fresh while watching dir sources.
package host
