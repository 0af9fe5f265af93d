// SPDX-License-Identifier: MPL-2.0

// Package cueutil validates documents against embedded CUE schemas.
//
// Module manifests (JSON) and the configuration file (CUE) share one flow:
// compile the schema, compile the document, unify it with a root definition,
// validate, and decode into a Go value.
//
//	//go:embed manifest_schema.cue
//	var schema []byte
//
//	res, err := cueutil.ParseAndDecode[Manifest](schema, data, "#Manifest",
//	    cueutil.WithFilename("billing/manifest.json"))
//
// Errors carry the document name and a JSON-style path to the offending field.
package cueutil
