// SPDX-License-Identifier: MPL-2.0

package loader

import (
	"errors"
	"fmt"

	"github.com/invowk/lazyload/pkg/modident"
)

var (
	// ErrModuleNotFound is the sentinel for the normal "could not load" outcome.
	ErrModuleNotFound = errors.New("module not found")

	// ErrConcurrencyInvariant is the sentinel for in-flight registry corruption.
	ErrConcurrencyInvariant = errors.New("concurrency invariant violated")

	// ErrLoaderClosed is the cause reported for loads on a closed loader.
	ErrLoaderClosed = errors.New("loader closed")

	// ErrDependencyFailed is the cause reported when part of the dependency closure failed.
	ErrDependencyFailed = errors.New("dependency failed to load")
)

type (
	// NotFoundError reports that a module could not be loaded. Cause says why:
	// no payload, malformed binary, failed dependency, cycle, cancellation.
	NotFoundError struct {
		Identity modident.Identity
		Cause    error
	}

	// DependencyError lists the dependencies of Identity that failed.
	DependencyError struct {
		Identity modident.Identity
		Failed   []error
	}

	// InvariantError reports that the in-flight registry could not be updated.
	InvariantError struct {
		Identity modident.Identity
		Op       string
		Attempts int
	}
)

func (e *NotFoundError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", ErrModuleNotFound, e.Identity)
	}
	return fmt.Sprintf("%s: %s: %v", ErrModuleNotFound, e.Identity, e.Cause)
}

// Unwrap exposes both the sentinel and the cause to errors.Is and errors.As.
func (e *NotFoundError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrModuleNotFound}
	}
	return []error{ErrModuleNotFound, e.Cause}
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s: %d dependencies of %s failed", ErrDependencyFailed, len(e.Failed), e.Identity)
}

// Unwrap exposes the sentinel and every failed dependency's error.
func (e *DependencyError) Unwrap() []error {
	return append([]error{ErrDependencyFailed}, e.Failed...)
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: unable to load %s: concurrency error (%s) after %d attempts",
		ErrConcurrencyInvariant, e.Identity, e.Op, e.Attempts)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvariantError) Unwrap() error { return ErrConcurrencyInvariant }

// IsNotFound reports whether err is the ordinary not-found outcome.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrModuleNotFound)
}
