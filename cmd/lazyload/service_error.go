// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/invowk/lazyload/internal/config"
	"github.com/invowk/lazyload/internal/dag"
	"github.com/invowk/lazyload/internal/issue"
	"github.com/invowk/lazyload/internal/loader"
	"github.com/invowk/lazyload/pkg/cueutil"
	"github.com/invowk/lazyload/pkg/wasmmeta"
)

// ServiceError is an error that carries rendering information for the CLI
// layer: the actionable error to print and the catalogue issue to show with
// it. Always create via newServiceError.
type ServiceError struct {
	// Err is the underlying error (must not be nil).
	Err error
	// IssueID is the optional issue catalogue ID for rendering help text.
	IssueID issue.Id
}

// newServiceError creates a ServiceError with a nil-Err panic guard.
func newServiceError(err error, issueID issue.Id) *ServiceError {
	if err == nil {
		panic("ServiceError: Err must not be nil")
	}
	return &ServiceError{Err: err, IssueID: issueID}
}

// Error implements the error interface.
func (e *ServiceError) Error() string { return e.Err.Error() }

// Unwrap returns the underlying error for errors.Is/As chains.
func (e *ServiceError) Unwrap() error { return e.Err }

// classify picks the catalogue entry that best explains err.
func classify(err error) issue.Id {
	var validation *cueutil.ValidationError
	switch {
	case errors.Is(err, dag.ErrCycle):
		return issue.DependencyCycleId
	case errors.Is(err, wasmmeta.ErrMalformedModule):
		return issue.InvalidModuleBinaryId
	case errors.Is(err, loader.ErrConcurrencyInvariant):
		return issue.ConcurrencyInvariantId
	case errors.Is(err, config.ErrInvalidSource):
		return issue.SourceUnavailableId
	case errors.Is(err, config.ErrInvalidConfig):
		return issue.ConfigLoadFailedId
	case errors.As(err, &validation):
		return issue.InvalidManifestId
	case loader.IsNotFound(err):
		return issue.ModuleNotFoundId
	default:
		return 0
	}
}

// failure wraps err as an actionable service error for operation on resource.
func failure(err error, operation, resource string, suggestions ...string) *ServiceError {
	id := classify(err)
	ctx := issue.NewErrorContext().
		WithOperation(operation).
		WithResource(resource).
		WithIssue(id).
		Wrap(err)
	for _, s := range suggestions {
		ctx = ctx.WithSuggestion(s)
	}
	return newServiceError(ctx.BuildError(), id)
}

// renderServiceError prints the formatted error, then the issue help section.
func renderServiceError(stderr io.Writer, svcErr *ServiceError, verbose bool) {
	if svcErr == nil {
		return
	}

	var ae *issue.ActionableError
	if errors.As(svcErr.Err, &ae) {
		fmt.Fprintln(stderr, ErrorStyle.Render("✗ ")+ae.Format(verbose))
	} else {
		fmt.Fprintln(stderr, ErrorStyle.Render("✗ ")+svcErr.Err.Error())
	}

	if svcErr.IssueID == 0 {
		return
	}
	if entry := issue.Get(svcErr.IssueID); entry != nil {
		rendered, renderErr := entry.Render("dark")
		if renderErr != nil {
			slog.Warn("failed to render issue catalogue entry", "issueID", svcErr.IssueID, "error", renderErr)
			return
		}
		fmt.Fprint(stderr, rendered)
	}
}
