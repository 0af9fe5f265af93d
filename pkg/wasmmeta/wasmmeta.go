// SPDX-License-Identifier: MPL-2.0

// Package wasmmeta reads metadata from WebAssembly binaries without
// instantiating them. The module names in a binary's import section are its
// declared dependencies.
package wasmmeta

import (
	"errors"
	"fmt"

	"github.com/tetratelabs/wabin/binary"
	"github.com/tetratelabs/wabin/wasm"

	"github.com/invowk/lazyload/pkg/modident"
)

// ErrMalformedModule is returned when the input is not a decodable WebAssembly binary.
var ErrMalformedModule = errors.New("malformed module binary")

type (
	// Reader extracts declared dependencies from module bytes. The loader
	// depends on this interface so tests can supply canned dependency lists.
	Reader interface {
		Dependencies(bin []byte) ([]modident.Identity, error)
	}

	// Info is the metadata read from a module binary.
	Info struct {
		// ModuleName is the name recorded in the custom name section, if any.
		ModuleName string
		// Dependencies are the distinct imported module names in first-appearance order.
		Dependencies []modident.Identity
		// Exports lists exported function names.
		Exports []string
	}

	// MalformedModuleError wraps a decoding failure. It wraps ErrMalformedModule
	// for errors.Is() compatibility.
	MalformedModuleError struct {
		Cause error
	}

	// BinaryReader is the Reader backed by the binary decoder.
	BinaryReader struct{}
)

// Dependencies implements Reader.
func (BinaryReader) Dependencies(bin []byte) ([]modident.Identity, error) {
	return Dependencies(bin)
}

// Dependencies returns the modules a binary imports from.
func Dependencies(bin []byte) ([]modident.Identity, error) {
	info, err := Inspect(bin)
	if err != nil {
		return nil, err
	}
	return info.Dependencies, nil
}

// Inspect decodes bin and returns its metadata.
func Inspect(bin []byte) (*Info, error) {
	mod, err := decode(bin)
	if err != nil {
		return nil, err
	}

	info := &Info{}
	if mod.NameSection != nil {
		info.ModuleName = mod.NameSection.ModuleName
	}

	seen := make(map[string]bool, len(mod.ImportSection))
	for _, imp := range mod.ImportSection {
		if seen[imp.Module] {
			continue
		}
		seen[imp.Module] = true
		name := modident.Name(imp.Module)
		if err := name.Validate(); err != nil {
			return nil, &MalformedModuleError{Cause: fmt.Errorf("import module: %w", err)}
		}
		info.Dependencies = append(info.Dependencies, modident.Identity{Name: name})
	}

	for _, exp := range mod.ExportSection {
		if exp.Type == wasm.ExternTypeFunc {
			info.Exports = append(info.Exports, exp.Name)
		}
	}
	return info, nil
}

// RenameImports rewrites the module name of every import through rename and
// re-encodes the binary. bin is returned as is when no name changes.
func RenameImports(bin []byte, rename func(module string) string) ([]byte, error) {
	mod, err := decode(bin)
	if err != nil {
		return nil, err
	}

	changed := false
	for _, imp := range mod.ImportSection {
		if to := rename(imp.Module); to != imp.Module {
			imp.Module = to
			changed = true
		}
	}
	if !changed {
		return bin, nil
	}
	return binary.EncodeModule(mod), nil
}

func decode(bin []byte) (mod *wasm.Module, err error) {
	if len(bin) == 0 {
		return nil, &MalformedModuleError{Cause: errors.New("empty input")}
	}
	// The decoder indexes into untrusted input; keep a corrupt binary from
	// taking the host down.
	defer func() {
		if r := recover(); r != nil {
			mod, err = nil, &MalformedModuleError{Cause: fmt.Errorf("decoder panic: %v", r)}
		}
	}()
	mod, err = binary.DecodeModule(bin, wasm.CoreFeaturesV2)
	if err != nil {
		return nil, &MalformedModuleError{Cause: err}
	}
	return mod, nil
}

// Error implements the error interface for MalformedModuleError.
func (e *MalformedModuleError) Error() string {
	return fmt.Sprintf("malformed module binary: %v", e.Cause)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *MalformedModuleError) Unwrap() []error {
	return []error{ErrMalformedModule, e.Cause}
}
