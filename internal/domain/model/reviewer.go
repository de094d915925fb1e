package model

// Reviewer is a participant who reviewed (or was asked to review) a PR.
// Reviewer identities are deduplicated within a PR during assembly;
// the first occurrence wins.
type Reviewer struct {
	Username string
	UserRef  string // Raw source account ID for reference.
	Approval ApprovalStatus
}
