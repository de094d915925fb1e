package model

import "time"

// InlineAnchor locates a comment on a specific span of a diff.
type InlineAnchor struct {
	Path     string
	FromLine int // 0 when the source did not record a line.
	ToLine   int
}

// Attachment is a file attached to a comment, referenced by its source
// download URL until the asset relocator moves it.
type Attachment struct {
	Name string
	URL  string
}

// Comment is a single PR comment. ParentID links one level of reply
// nesting; it is resolved against the owning PR's comment list, never
// recursively.
type Comment struct {
	ID           int
	Author       string
	AuthorRef    string // Raw source account ID, used to build the mention index.
	ParentAuthor string // Resolved during assembly from the id->author index.
	Content      string
	CreatedAt    time.Time
	UpdatedAt    *time.Time
	ParentID     *int
	Inline       *InlineAnchor
	Attachments  []Attachment
}

// IsReply reports whether the comment is a reply to another comment.
func (c *Comment) IsReply() bool {
	return c.ParentID != nil
}
