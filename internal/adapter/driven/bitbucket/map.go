package bitbucket

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/ericfisherdev/prmigrate/internal/domain/model"
)

// unknownIdentity is the sentinel used when a payload carries no usable
// identity at all.
const unknownIdentity = "unknown"

// identityOf extracts a display identity from a user payload. Priority:
// human-readable handle > display name > opaque account id > "unknown".
// The same order applies everywhere an identity is extracted.
func identityOf(u userPayload) string {
	switch {
	case u.Nickname != "":
		return u.Nickname
	case u.DisplayName != "":
		return u.DisplayName
	case u.AccountID != "":
		return u.AccountID
	default:
		return unknownIdentity
	}
}

// assemble normalizes one raw PR payload and its sub-resources into a
// canonical record. List payloads that lack reviewer/participant structures
// trigger one supplemental detail fetch; everything else is built from what
// is already in hand.
func (c *Client) assemble(ctx context.Context, payload prPayload) (model.PullRequest, error) {
	if payload.Participants == nil && payload.Reviewers == nil {
		detail, err := c.fetchDetail(ctx, payload.ID)
		if err != nil {
			return model.PullRequest{}, fmt.Errorf("fetching PR detail: %w", err)
		}
		payload = detail
	}

	state := model.PRState(payload.State)
	switch state {
	case model.PRStateOpen, model.PRStateMerged, model.PRStateDeclined, model.PRStateSuperseded:
	default:
		return model.PullRequest{}, fmt.Errorf("unrecognized PR state %q", payload.State)
	}

	pr := model.PullRequest{
		ID:                payload.ID,
		Title:             payload.Title,
		Description:       payload.Description,
		Author:            identityOf(payload.Author),
		AuthorRef:         payload.Author.AccountID,
		SourceBranch:      payload.Source.Branch.Name,
		DestinationBranch: payload.Destination.Branch.Name,
		State:             state,
		CreatedAt:         payload.CreatedOn,
		UpdatedAt:         payload.UpdatedOn,
		ClosedAt:          payload.ClosedOn,
		ParticipantCount:  len(payload.Participants),
		TaskCount:         payload.TaskCount,
	}

	if state == model.PRStateMerged && payload.MergeCommit != nil {
		pr.MergeCommit = payload.MergeCommit.Hash
	}

	// Fork detection: any mismatch between the two sides' full repository
	// names marks the PR as cross-repository.
	srcRepo := payload.Source.Repository.FullName
	dstRepo := payload.Destination.Repository.FullName
	if srcRepo != "" && dstRepo != "" && srcRepo != dstRepo {
		pr.IsFork = true
		if owner, name, ok := strings.Cut(srcRepo, "/"); ok {
			pr.ForkRepoOwner = owner
			pr.ForkRepoName = name
		}
		slog.Debug("pull request is from a fork", "pr", pr.ID, "source_repo", srcRepo)
	}

	pr.Reviewers = mergeReviewers(payload)

	comments, attachments, err := c.fetchComments(ctx, payload.ID)
	if err != nil {
		slog.Error("failed to fetch comments", "pr", payload.ID, "error", err)
	} else {
		pr.Comments = assembleComments(comments, attachments)
	}

	commits, err := c.fetchCommits(ctx, payload.ID)
	if err != nil {
		slog.Error("failed to fetch commits", "pr", payload.ID, "error", err)
	} else {
		pr.Commits = commits
	}

	tasks, err := c.fetchTasks(ctx, payload.ID)
	if err != nil {
		slog.Error("failed to fetch tasks", "pr", payload.ID, "error", err)
	} else {
		pr.Tasks = mapTasks(tasks)
	}

	// The one post-construction mutation point: head of the source branch
	// at close time, kept for the closed-PR archive.
	if pr.IsClosed() && payload.Source.Commit.Hash != "" {
		pr.CloseSourceCommit = payload.Source.Commit.Hash
	}

	return pr, nil
}

// mergeReviewers combines the explicit reviewer list with the participant
// list (filtered by role), deduplicating by identity with first occurrence
// winning. Approval status always comes from the participant entry, since
// the explicit list carries none.
func mergeReviewers(payload prPayload) []model.Reviewer {
	approvals := map[string]model.ApprovalStatus{}
	for _, p := range payload.Participants {
		id := identityOf(p.User)
		if _, ok := approvals[id]; ok {
			continue
		}
		switch {
		case p.Approved:
			approvals[id] = model.ApprovalApproved
		case p.State == "changes_requested":
			approvals[id] = model.ApprovalChangesRequested
		default:
			approvals[id] = model.ApprovalNone
		}
	}

	seen := map[string]struct{}{}
	var reviewers []model.Reviewer

	add := func(u userPayload) {
		id := identityOf(u)
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		reviewers = append(reviewers, model.Reviewer{
			Username: id,
			UserRef:  u.AccountID,
			Approval: approvals[id],
		})
	}

	for _, u := range payload.Reviewers {
		add(u)
	}
	for _, p := range payload.Participants {
		if p.Role == "REVIEWER" || p.Role == "PARTICIPANT" {
			add(p.User)
		}
	}

	return reviewers
}

// assembleComments maps comment payloads to canonical comments in two
// passes. Pass one builds the id->author index; a reply's displayed parent
// author must come from this index because the raw nested payload is
// unreliable. Pass two builds each comment and finally sorts ascending by
// creation time, since pagination can deliver comments out of order.
func assembleComments(payloads []commentPayload, attachments map[int][]model.Attachment) []model.Comment {
	authors := make(map[int]string, len(payloads))
	for _, p := range payloads {
		authors[p.ID] = identityOf(p.User)
	}

	comments := make([]model.Comment, 0, len(payloads))
	for _, p := range payloads {
		if p.Deleted || p.Pending {
			continue
		}

		c := model.Comment{
			ID:          p.ID,
			Author:      identityOf(p.User),
			AuthorRef:   p.User.AccountID,
			Content:     p.Content.Raw,
			CreatedAt:   p.CreatedOn,
			UpdatedAt:   p.UpdatedOn,
			Attachments: attachments[p.ID],
		}

		if p.Parent != nil {
			parentID := p.Parent.ID
			c.ParentID = &parentID
			if author, ok := authors[parentID]; ok {
				c.ParentAuthor = author
			}
		}

		if p.Inline != nil {
			c.Inline = &model.InlineAnchor{
				Path:     p.Inline.Path,
				FromLine: p.Inline.From,
				ToLine:   p.Inline.To,
			}
		}

		comments = append(comments, c)
	}

	sort.SliceStable(comments, func(i, j int) bool {
		return comments[i].CreatedAt.Before(comments[j].CreatedAt)
	})

	return comments
}

// mapTasks maps task payloads to canonical tasks.
func mapTasks(payloads []taskPayload) []model.Task {
	tasks := make([]model.Task, 0, len(payloads))
	for _, p := range payloads {
		state := model.TaskUnresolved
		if p.State == "RESOLVED" {
			state = model.TaskResolved
		}

		t := model.Task{
			ID:        p.ID,
			Content:   p.Content.Raw,
			State:     state,
			Creator:   identityOf(p.Creator),
			CreatedAt: p.CreatedOn,
			UpdatedAt: p.UpdatedOn,
		}
		if p.Comment != nil {
			commentID := p.Comment.ID
			t.CommentID = &commentID
		}
		tasks = append(tasks, t)
	}
	return tasks
}
