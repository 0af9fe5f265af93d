// SPDX-License-Identifier: MPL-2.0

// Package issue holds user-facing error guidance: ActionableError for
// operation/resource/suggestion context, and a catalogue of known failure
// modes rendered as terminal markdown.
package issue
