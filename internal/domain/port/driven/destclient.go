package driven

import "context"

// DestClient is the read side of the destination code-hosting system.
type DestClient interface {
	// BranchExists reports whether the named branch exists in the
	// destination repository.
	BranchExists(ctx context.Context, branch string) (bool, error)

	// CommitExists reports whether the commit SHA exists in the destination
	// repository.
	CommitExists(ctx context.Context, sha string) (bool, error)

	// ListOpenPRsByHeadBase returns the numbers of open destination PRs with
	// the given head and base branches. Used for duplicate detection.
	ListOpenPRsByHeadBase(ctx context.Context, head, base string) ([]int, error)

	// IsCollaborator reports whether the username has collaborator access to
	// the destination repository.
	IsCollaborator(ctx context.Context, username string) (bool, error)

	// Probe verifies that the configured credentials can reach the
	// destination repository.
	Probe(ctx context.Context) error
}
