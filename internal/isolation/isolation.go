// SPDX-License-Identifier: MPL-2.0

// Package isolation provides the execution scopes modules are loaded into.
//
// A Context is a linking namespace: a module instantiated in it can import
// from any module visible in it under that module's name. Two strategies exist:
//
//   - flat: every context created by a factory shares one runtime. Modules
//     loaded by one context are visible to all of them and disposal only
//     detaches the context.
//   - sandboxed: each context owns a runtime. Disposal closes the runtime and
//     reclaims every module loaded into it, unless debug mode is on.
package isolation

import (
	"context"
	"errors"
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"github.com/invowk/lazyload/internal/provider"
	"github.com/invowk/lazyload/pkg/modident"
)

const (
	// KindFlat shares one runtime across all contexts of a factory.
	KindFlat Kind = "flat"
	// KindSandboxed gives each context its own reclaimable runtime.
	KindSandboxed Kind = "sandboxed"

	// DefaultStartFunction is invoked on instantiation when exported.
	DefaultStartFunction = "_initialize"
)

var (
	// ErrContextDisposed is returned by operations on a disposed context.
	ErrContextDisposed = errors.New("isolation context disposed")

	// ErrFactoryClosed is returned when creating a context from a closed factory.
	ErrFactoryClosed = errors.New("isolation factory closed")

	// ErrInvalidKind is returned for an unknown isolation strategy.
	ErrInvalidKind = errors.New("invalid isolation strategy")

	// ErrInstantiate is returned when module bytes cannot be compiled or instantiated.
	ErrInstantiate = errors.New("module instantiation failed")
)

type (
	// Kind selects an isolation strategy by configuration value.
	Kind string

	// Module is a module instance visible in a context.
	Module struct {
		Identity modident.Identity
		Instance api.Module
		// Debug holds companion debug data supplied with the payload.
		Debug []byte
		// Owner names the context that loaded the module. Empty for builtins.
		Owner string
		// Builtin is true for host modules provided by the runtime itself.
		Builtin bool
		// Location is where the bytes were fetched from. Empty for builtins.
		Location string
	}

	// Context is an isolated scope modules are loaded into.
	Context interface {
		// Name identifies the context within its factory.
		Name() string
		// Load instantiates payload in this context. Calls are serialized.
		Load(ctx context.Context, payload *provider.Payload) (*Module, error)
		// LoadByName returns a module the runtime can supply without bytes:
		// one already instantiated in this namespace, or a builtin host module.
		LoadByName(ctx context.Context, id modident.Identity) (*Module, bool)
		// OwnModules returns modules loaded by this context, in load order.
		// A disposed context answers no queries and returns nil.
		OwnModules() []*Module
		// AllModules returns every module visible in this context, own and foreign.
		AllModules() []*Module
		// Dispose releases the context. Calling it again is a no-op.
		Dispose(ctx context.Context) error
		// Disposed reports whether Dispose has been called.
		Disposed() bool
	}

	// Factory creates contexts.
	Factory interface {
		Create(ctx context.Context, name string) (Context, error)
		Kind() Kind
		Close(ctx context.Context) error
	}

	// InstantiateError reports why module bytes could not be activated. It
	// wraps ErrInstantiate for errors.Is() compatibility.
	InstantiateError struct {
		Identity modident.Identity
		Cause    error
	}

	// InvalidKindError is returned for an unknown strategy name. It wraps
	// ErrInvalidKind for errors.Is() compatibility.
	InvalidKindError struct {
		Value Kind
	}
)

// IsOwnedBy reports whether c loaded m.
func (m *Module) IsOwnedBy(c Context) bool {
	return m.Owner != "" && m.Owner == c.Name()
}

// Closed reports whether the underlying instance has been reclaimed.
func (m *Module) Closed() bool {
	return m.Instance == nil || m.Instance.IsClosed()
}

// Validate returns nil if the Kind is a known strategy.
func (k Kind) Validate() error {
	switch k {
	case KindFlat, KindSandboxed:
		return nil
	default:
		return &InvalidKindError{Value: k}
	}
}

// Error implements the error interface for InstantiateError.
func (e *InstantiateError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrInstantiate, e.Identity, e.Cause)
}

// Unwrap returns both the sentinel and the cause.
func (e *InstantiateError) Unwrap() []error {
	return []error{ErrInstantiate, e.Cause}
}

// Error implements the error interface for InvalidKindError.
func (e *InvalidKindError) Error() string {
	return fmt.Sprintf("invalid isolation strategy %q (valid: %s, %s)", string(e.Value), KindFlat, KindSandboxed)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidKindError) Unwrap() error { return ErrInvalidKind }
