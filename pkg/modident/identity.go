// SPDX-License-Identifier: MPL-2.0

package modident

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// VersionSeparator separates the name and version parts in the textual form of an Identity.
const VersionSeparator = "@"

var (
	// ErrInvalidName is returned when a Name value does not match the required format.
	ErrInvalidName = errors.New("invalid module name")

	// ErrInvalidVersion is returned when a Version value does not match the required format.
	ErrInvalidVersion = errors.New("invalid module version")

	// namePattern accepts the import module names found in real binaries
	// (env, wasi_snapshot_preview1, com.example.billing).
	namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9._-]*$`)

	versionPattern = regexp.MustCompile(`^v?[0-9A-Za-z][0-9A-Za-z.+_-]*$`)
)

type (
	// Name is the logical name of a module.
	Name string

	// Version is the optional version of a module. The zero value means "unversioned".
	Version string

	// Identity names a loadable module.
	Identity struct {
		Name    Name
		Version Version
	}

	// InvalidNameError is returned when a Name value does not match the required format.
	// It wraps ErrInvalidName for errors.Is() compatibility.
	InvalidNameError struct {
		Value Name
	}

	// InvalidVersionError is returned when a Version value does not match the required format.
	// It wraps ErrInvalidVersion for errors.Is() compatibility.
	InvalidVersionError struct {
		Value Version
	}
)

// New returns an Identity with the given name and version.
func New(name Name, version Version) Identity {
	return Identity{Name: name, Version: version}
}

// Named returns an unversioned Identity.
func Named(name string) Identity {
	return Identity{Name: Name(name)}
}

// Parse parses "name" or "name@version" into a validated Identity.
func Parse(s string) (Identity, error) {
	name, version, _ := strings.Cut(strings.TrimSpace(s), VersionSeparator)
	id := Identity{Name: Name(name), Version: Version(version)}
	if err := id.Validate(); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// MustParse is like Parse but panics on error. Intended for tests and static tables.
func MustParse(s string) Identity {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the string representation of the Name.
func (n Name) String() string { return string(n) }

// Validate returns nil if the Name is non-empty and starts with a letter or
// underscore followed by letters, digits, dots, underscores, or hyphens.
func (n Name) Validate() error {
	if n == "" || !namePattern.MatchString(string(n)) {
		return &InvalidNameError{Value: n}
	}
	return nil
}

// String returns the string representation of the Version.
func (v Version) String() string { return string(v) }

// Validate returns nil if the Version is empty or a dotted version string.
func (v Version) Validate() error {
	if v == "" {
		return nil
	}
	if !versionPattern.MatchString(string(v)) {
		return &InvalidVersionError{Value: v}
	}
	return nil
}

// String renders the identity as "name" or "name@version".
func (id Identity) String() string {
	if id.Version == "" {
		return string(id.Name)
	}
	return string(id.Name) + VersionSeparator + string(id.Version)
}

// IsZero reports whether the identity has no name.
func (id Identity) IsZero() bool { return id.Name == "" }

// Validate validates both parts of the identity and joins the failures.
func (id Identity) Validate() error {
	return errors.Join(id.Name.Validate(), id.Version.Validate())
}

// WithoutVersion returns a copy of the identity with the version cleared.
func (id Identity) WithoutVersion() Identity {
	return Identity{Name: id.Name}
}

// Error implements the error interface for InvalidNameError.
func (e *InvalidNameError) Error() string {
	return fmt.Sprintf(
		"invalid module name %q: must start with a letter or underscore and contain only letters, digits, dots, underscores, or hyphens",
		string(e.Value),
	)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidNameError) Unwrap() error { return ErrInvalidName }

// Error implements the error interface for InvalidVersionError.
func (e *InvalidVersionError) Error() string {
	return fmt.Sprintf("invalid module version %q", string(e.Value))
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidVersionError) Unwrap() error { return ErrInvalidVersion }
