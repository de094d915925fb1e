// Package model defines the canonical in-memory representation of source
// pull requests, independent of the source API's payload shape.
package model

import "time"

// PullRequest is the canonical form of a source pull request after assembly.
// It is constructed once per fetch and read-only afterward, with one
// exception: CloseSourceCommit may be set post-construction on closed PRs.
type PullRequest struct {
	ID                int
	Title             string
	Description       string
	Author            string
	AuthorRef         string // Raw source account ID kept for mention resolution.
	SourceBranch      string
	DestinationBranch string
	State             PRState
	CreatedAt         time.Time
	UpdatedAt         time.Time
	ClosedAt          *time.Time
	MergeCommit       string
	CloseSourceCommit string // Head of the source branch at close time, if known.
	Commits           []string
	Comments          []Comment
	Reviewers         []Reviewer
	Tasks             []Task
	ParticipantCount  int
	TaskCount         int
	IsFork            bool
	ForkRepoOwner     string
	ForkRepoName      string
}

// IsOpen reports whether the PR is still open.
func (pr *PullRequest) IsOpen() bool {
	return pr.State == PRStateOpen
}

// IsClosed reports whether the PR reached a terminal state
// (merged, declined, or superseded).
func (pr *PullRequest) IsClosed() bool {
	return pr.State == PRStateMerged || pr.State == PRStateDeclined || pr.State == PRStateSuperseded
}

// IsMerged reports whether the PR was merged.
func (pr *PullRequest) IsMerged() bool {
	return pr.State == PRStateMerged
}

// IsDeclined reports whether the PR was declined.
func (pr *PullRequest) IsDeclined() bool {
	return pr.State == PRStateDeclined
}

// IsSuperseded reports whether the PR was superseded by another PR.
func (pr *PullRequest) IsSuperseded() bool {
	return pr.State == PRStateSuperseded
}

// TasksForComment returns the tasks attached to the given comment, in input
// order. Tasks with no owning comment are excluded.
func (pr *PullRequest) TasksForComment(commentID int) []Task {
	var out []Task
	for _, t := range pr.Tasks {
		if t.CommentID != nil && *t.CommentID == commentID {
			out = append(out, t)
		}
	}
	return out
}

// OrphanTasks returns the tasks that are not attached to any comment.
func (pr *PullRequest) OrphanTasks() []Task {
	var out []Task
	for _, t := range pr.Tasks {
		if t.CommentID == nil {
			out = append(out, t)
		}
	}
	return out
}
