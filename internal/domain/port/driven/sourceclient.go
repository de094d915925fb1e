// Package driven defines outbound ports implemented by infrastructure adapters.
package driven

import (
	"context"

	"github.com/ericfisherdev/prmigrate/internal/domain/model"
)

// SourceClient is the read-only port to the source code-hosting system.
type SourceClient interface {
	// FetchPullRequests retrieves and assembles all pull requests in the
	// given states. An empty state list means all states.
	FetchPullRequests(ctx context.Context, states []model.PRState) ([]model.PullRequest, error)

	// Download fetches raw bytes from a source-system URL (image or
	// attachment). Host-relative URLs are resolved against the source host.
	// Returns the body and the response content type. A plan-restricted
	// response yields ErrPlanRestricted; a missing asset yields ErrNotFound.
	Download(ctx context.Context, url string) ([]byte, string, error)

	// Probe verifies that the configured credentials can reach the source
	// repository.
	Probe(ctx context.Context) error
}
