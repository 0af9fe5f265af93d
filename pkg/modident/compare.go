// SPDX-License-Identifier: MPL-2.0

package modident

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

const (
	// PolicyName compares identities by case-insensitive name only.
	PolicyName Policy = "name"
	// PolicyNameVersion compares identities by case-insensitive name and version.
	PolicyNameVersion Policy = "name_version"

	keySeparator = "@"
)

// ErrInvalidPolicy is returned when a Policy value is not one of the known policies.
var ErrInvalidPolicy = errors.New("invalid equality policy")

type (
	// Policy selects a Comparer by configuration value.
	Policy string

	// Comparer decides identity equality. Key must return the same string for any
	// two identities Equal reports as equal, so it can key maps and registries.
	Comparer interface {
		Equal(a, b Identity) bool
		Key(id Identity) string
	}

	byName struct{}

	byNameAndVersion struct{}

	// InvalidPolicyError is returned when a Policy value is not recognized.
	InvalidPolicyError struct {
		Value Policy
	}
)

var (
	// ByName is the default comparer. Versions never participate in equality.
	ByName Comparer = byName{}

	// ByNameAndVersion treats differently versioned modules as distinct.
	ByNameAndVersion Comparer = byNameAndVersion{}
)

// Validate returns nil if the Policy is a known value.
func (p Policy) Validate() error {
	switch p {
	case PolicyName, PolicyNameVersion:
		return nil
	default:
		return &InvalidPolicyError{Value: p}
	}
}

// PolicyFor returns the Comparer for a configured policy. An empty policy
// selects ByName.
func PolicyFor(p Policy) (Comparer, error) {
	switch p {
	case "", PolicyName:
		return ByName, nil
	case PolicyNameVersion:
		return ByNameAndVersion, nil
	default:
		return nil, &InvalidPolicyError{Value: p}
	}
}

func (byName) Equal(a, b Identity) bool {
	return strings.EqualFold(string(a.Name), string(b.Name))
}

func (byName) Key(id Identity) string {
	return strings.ToLower(string(id.Name))
}

func (byNameAndVersion) Equal(a, b Identity) bool {
	return strings.EqualFold(string(a.Name), string(b.Name)) &&
		canonicalVersion(a.Version) == canonicalVersion(b.Version)
}

func (byNameAndVersion) Key(id Identity) string {
	return strings.ToLower(string(id.Name)) + keySeparator + canonicalVersion(id.Version)
}

// canonicalVersion maps semantically equal versions to the same string. Versions
// that are not semver are compared verbatim.
func canonicalVersion(v Version) string {
	if v == "" {
		return "v0.0.0"
	}
	s := string(v)
	if !strings.HasPrefix(s, "v") {
		s = "v" + s
	}
	if semver.IsValid(s) {
		return semver.Canonical(s)
	}
	return string(v)
}

// Error implements the error interface for InvalidPolicyError.
func (e *InvalidPolicyError) Error() string {
	return fmt.Sprintf("invalid equality policy %q (valid: %s, %s)", string(e.Value), PolicyName, PolicyNameVersion)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidPolicyError) Unwrap() error { return ErrInvalidPolicy }
