// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/invowk/lazyload/internal/config"
	"github.com/invowk/lazyload/internal/dag"
	"github.com/invowk/lazyload/internal/issue"
	"github.com/invowk/lazyload/internal/loader"
	"github.com/invowk/lazyload/pkg/wasmmeta"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want issue.Id
	}{
		{"cycle", &dag.CycleError{Cycle: []string{"a", "b", "a"}}, issue.DependencyCycleId},
		{"malformed binary", fmt.Errorf("read: %w", wasmmeta.ErrMalformedModule), issue.InvalidModuleBinaryId},
		{"concurrency", loader.ErrConcurrencyInvariant, issue.ConcurrencyInvariantId},
		{"bad source", &config.InvalidSourceError{Index: 0, Reason: "missing"}, issue.SourceUnavailableId},
		{"bad config", &config.InvalidConfigError{FieldErrors: []error{errors.New("x")}}, issue.ConfigLoadFailedId},
		{"unrelated", errors.New("boom"), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := classify(tt.err); got != tt.want {
				t.Errorf("classify(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestRenderServiceError(t *testing.T) {
	t.Parallel()

	svcErr := failure(errors.New("disk on fire"), "load module", "billing", "Try again")

	var quiet bytes.Buffer
	renderServiceError(&quiet, svcErr, false)
	out := quiet.String()
	if !strings.Contains(out, "load module") || !strings.Contains(out, "Try again") {
		t.Errorf("rendered error missing context:\n%s", out)
	}

	var none bytes.Buffer
	renderServiceError(&none, nil, true)
	if none.Len() != 0 {
		t.Errorf("nil service error rendered %q", none.String())
	}
}
