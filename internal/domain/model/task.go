package model

import "time"

// Task is a to-do item recorded on a source PR. A task with a CommentID is
// logically attached to that comment and rendered immediately after it;
// tasks without one are orphaned and rendered as a trailing group.
type Task struct {
	ID        int
	Content   string
	State     TaskState
	Creator   string
	CreatedAt time.Time
	UpdatedAt *time.Time
	CommentID *int
}

// IsResolved reports whether the task has been marked done.
func (t *Task) IsResolved() bool {
	return t.State == TaskResolved
}
