package driven

import "errors"

// Definitive remote outcomes. Adapters translate provider-specific error
// responses into these sentinels so callers can branch without knowing the
// underlying HTTP client. Neither is ever retried.
var (
	// ErrNotFound marks a definitive 404 from either system.
	ErrNotFound = errors.New("remote resource not found")

	// ErrPlanRestricted marks a 402-style response: the source account's
	// plan no longer allows access to the resource.
	ErrPlanRestricted = errors.New("remote resource restricted by plan")
)
