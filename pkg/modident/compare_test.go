// SPDX-License-Identifier: MPL-2.0

package modident

import (
	"errors"
	"testing"
)

func TestByName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b Identity
		want bool
	}{
		{"same name", Named("billing"), Named("billing"), true},
		{"case differs", Named("Billing"), Named("billing"), true},
		{"version ignored", New("billing", "1.0.0"), New("billing", "2.0.0"), true},
		{"versioned vs unversioned", New("billing", "1.0.0"), Named("billing"), true},
		{"different names", Named("billing"), Named("reports"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := ByName.Equal(tt.a, tt.b); got != tt.want {
				t.Errorf("Equal(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
			if got := ByName.Key(tt.a) == ByName.Key(tt.b); got != tt.want {
				t.Errorf("Key(%v) == Key(%v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestByNameAndVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b Identity
		want bool
	}{
		{"same version", New("billing", "1.0.0"), New("billing", "1.0.0"), true},
		{"v prefix", New("billing", "v1.0.0"), New("billing", "1.0.0"), true},
		{"short semver", New("billing", "1.2"), New("billing", "1.2.0"), true},
		{"different version", New("billing", "1.0.0"), New("billing", "2.0.0"), false},
		{"unversioned equals zero", Named("billing"), New("billing", "0.0.0"), true},
		{"non-semver exact", New("billing", "nightly"), New("billing", "nightly"), true},
		{"non-semver differs", New("billing", "nightly"), New("billing", "stable"), false},
		{"case-insensitive name", New("Billing", "1.0.0"), New("billing", "1.0.0"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := ByNameAndVersion.Equal(tt.a, tt.b); got != tt.want {
				t.Errorf("Equal(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
			if got := ByNameAndVersion.Key(tt.a) == ByNameAndVersion.Key(tt.b); got != tt.want {
				t.Errorf("Key(%v) == Key(%v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestPolicyFor(t *testing.T) {
	t.Parallel()

	cmp, err := PolicyFor("")
	if err != nil || cmp != ByName {
		t.Errorf("PolicyFor(\"\") = %v, %v; want ByName", cmp, err)
	}
	cmp, err = PolicyFor(PolicyNameVersion)
	if err != nil || cmp != ByNameAndVersion {
		t.Errorf("PolicyFor(name_version) = %v, %v; want ByNameAndVersion", cmp, err)
	}
	_, err = PolicyFor("fuzzy")
	if !errors.Is(err, ErrInvalidPolicy) {
		t.Errorf("PolicyFor(fuzzy) error = %v, want ErrInvalidPolicy", err)
	}
}
