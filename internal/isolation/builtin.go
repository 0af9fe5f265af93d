// SPDX-License-Identifier: MPL-2.0

package isolation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// HostModuleName is the builtin module exposing host logging to guests.
const HostModuleName = "lazyload"

// Host log functions take (ptr, len) of a UTF-8 message in the caller's memory.
const (
	HostLogDebug = "log_debug"
	HostLogInfo  = "log_info"
	HostLogWarn  = "log_warn"
	HostLogError = "log_error"
)

// builtinInstantiator materializes a host module in a runtime.
type builtinInstantiator func(ctx context.Context, r wazero.Runtime, logger *slog.Logger) error

// builtins lists host modules by the import name guests use.
var builtins = map[string]builtinInstantiator{
	wasi_snapshot_preview1.ModuleName: func(ctx context.Context, r wazero.Runtime, _ *slog.Logger) error {
		_, err := wasi_snapshot_preview1.Instantiate(ctx, r)
		return err
	},
	HostModuleName: instantiateHostModule,
}

// BuiltinNames returns the names of host modules every context can supply.
func BuiltinNames() []string {
	return []string{wasi_snapshot_preview1.ModuleName, HostModuleName}
}

// IsBuiltin reports whether name is a host module.
func IsBuiltin(name string) bool {
	_, ok := builtins[name]
	return ok
}

func instantiateHostModule(ctx context.Context, r wazero.Runtime, logger *slog.Logger) error {
	logAt := func(level slog.Level) func(context.Context, api.Module, uint32, uint32) {
		return func(ctx context.Context, m api.Module, ptr, size uint32) {
			mem := m.Memory()
			if mem == nil {
				logger.Warn("guest log call without exported memory", "module", m.Name())
				return
			}
			msg, ok := mem.Read(ptr, size)
			if !ok {
				logger.Warn("guest log message out of range", "module", m.Name(), "ptr", ptr, "len", size)
				return
			}
			logger.Log(ctx, level, string(msg), "module", m.Name())
		}
	}

	_, err := r.NewHostModuleBuilder(HostModuleName).
		NewFunctionBuilder().WithFunc(logAt(slog.LevelDebug)).Export(HostLogDebug).
		NewFunctionBuilder().WithFunc(logAt(slog.LevelInfo)).Export(HostLogInfo).
		NewFunctionBuilder().WithFunc(logAt(slog.LevelWarn)).Export(HostLogWarn).
		NewFunctionBuilder().WithFunc(logAt(slog.LevelError)).Export(HostLogError).
		Instantiate(ctx)
	if err != nil {
		return fmt.Errorf("instantiate %s host module: %w", HostModuleName, err)
	}
	return nil
}
