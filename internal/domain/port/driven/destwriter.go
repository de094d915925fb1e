package driven

import "context"

// DestWriter is the write side of the destination code-hosting system.
type DestWriter interface {
	// CreatePullRequest creates a live pull request and returns its number.
	CreatePullRequest(ctx context.Context, title, body, head, base string) (int, error)

	// UpdatePullRequestBody replaces the body of an existing pull request.
	UpdatePullRequestBody(ctx context.Context, number int, body string) error

	// CreateTrackingIssue creates an issue preserving a closed PR's history
	// and returns its number.
	CreateTrackingIssue(ctx context.Context, title, body string) (int, error)

	// CloseIssue closes an issue. stateReason may be "completed",
	// "not_planned", or empty for the API default.
	CloseIssue(ctx context.Context, number int, stateReason string) error

	// CreateComment adds a comment to a pull request or issue. Both share
	// the destination's issue comment namespace.
	CreateComment(ctx context.Context, number int, body string) error

	// RequestReviewers asks the given users for review on a pull request.
	RequestReviewers(ctx context.Context, number int, usernames []string) error

	// UploadContent writes a file into the destination repository at the
	// given path, updating in place when it already exists, and returns the
	// raw download URL of the stored file.
	UploadContent(ctx context.Context, path string, data []byte) (string, error)
}
