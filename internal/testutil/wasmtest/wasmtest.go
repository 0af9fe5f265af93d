// SPDX-License-Identifier: MPL-2.0

package wasmtest

import (
	"maps"
	"slices"

	"github.com/tetratelabs/wabin/binary"
	"github.com/tetratelabs/wabin/wasm"
)

const (
	// PingExport is the function every generated module exports.
	PingExport = "ping"
	// ConfigureExport is the optional initialization function.
	ConfigureExport = "configure"
	// PingResult is the value returned by the ping export.
	PingResult = 42
	// ConfigureResult is the value returned by the configure export.
	ConfigureResult = 7
)

type (
	// Spec describes a module to generate.
	Spec struct {
		// Name is recorded in the custom name section.
		Name string
		// Imports are the modules this one imports "ping" from.
		Imports []string
		// HostImports are raw imports of ()->() functions, keyed module -> function.
		HostImports map[string]string
		// Configure adds a ConfigureExport function.
		Configure bool
	}
)

// Module returns a binary named name that imports ping from each dependency.
func Module(name string, deps ...string) []byte {
	return Build(Spec{Name: name, Imports: deps})
}

// Malformed returns bytes that no decoder accepts.
func Malformed() []byte {
	return []byte("\x00asm-not-really")
}

// Build encodes spec.
func Build(spec Spec) []byte {
	pingType := &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI32}}
	voidType := &wasm.FunctionType{}

	mod := &wasm.Module{
		TypeSection: []*wasm.FunctionType{pingType, voidType},
	}
	for _, dep := range spec.Imports {
		mod.ImportSection = append(mod.ImportSection, &wasm.Import{
			Type:     wasm.ExternTypeFunc,
			Module:   dep,
			Name:     PingExport,
			DescFunc: 0,
		})
	}
	for _, module := range slices.Sorted(maps.Keys(spec.HostImports)) {
		fn := spec.HostImports[module]
		mod.ImportSection = append(mod.ImportSection, &wasm.Import{
			Type:     wasm.ExternTypeFunc,
			Module:   module,
			Name:     fn,
			DescFunc: 1,
		})
	}

	imported := wasm.Index(len(mod.ImportSection))
	mod.FunctionSection = append(mod.FunctionSection, 0)
	mod.CodeSection = append(mod.CodeSection, constBody(PingResult))
	mod.ExportSection = append(mod.ExportSection, &wasm.Export{
		Type: wasm.ExternTypeFunc, Name: PingExport, Index: imported,
	})

	if spec.Configure {
		mod.FunctionSection = append(mod.FunctionSection, 0)
		mod.CodeSection = append(mod.CodeSection, constBody(ConfigureResult))
		mod.ExportSection = append(mod.ExportSection, &wasm.Export{
			Type: wasm.ExternTypeFunc, Name: ConfigureExport, Index: imported + 1,
		})
	}

	if spec.Name != "" {
		mod.NameSection = &wasm.NameSection{ModuleName: spec.Name}
	}
	return binary.EncodeModule(mod)
}

// constBody returns "i32.const v; end". v must fit a single signed LEB128 byte.
func constBody(v byte) *wasm.Code {
	return &wasm.Code{Body: []byte{wasm.OpcodeI32Const, v & 0x3f, wasm.OpcodeEnd}}
}
