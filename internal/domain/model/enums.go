package model

// PRState represents the lifecycle state of a source pull request.
type PRState string

const (
	PRStateOpen       PRState = "OPEN"
	PRStateMerged     PRState = "MERGED"
	PRStateDeclined   PRState = "DECLINED"
	PRStateSuperseded PRState = "SUPERSEDED"
)

// ApprovalStatus represents a reviewer's recorded verdict on a pull request.
type ApprovalStatus string

const (
	ApprovalNone             ApprovalStatus = ""
	ApprovalApproved         ApprovalStatus = "approved"
	ApprovalChangesRequested ApprovalStatus = "changes_requested"
)

// TaskState represents whether a PR task has been resolved.
type TaskState string

const (
	TaskUnresolved TaskState = "UNRESOLVED"
	TaskResolved   TaskState = "RESOLVED"
)

// Outcome is the terminal result of migrating a single pull request.
type Outcome string

const (
	OutcomeMigrated Outcome = "migrated"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
)
