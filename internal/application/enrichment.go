package application

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/ericfisherdev/prmigrate/internal/domain/model"
)

// uuidMention matches opaque account-id mention tokens that the content
// transformer deliberately leaves untouched. They are resolved here, where
// the comment set provides an id-to-author index.
var uuidMention = regexp.MustCompile(`@\{([0-9]+:[a-f0-9-]+)\}`)

const quotePreviewLen = 200

// attachReviewers resolves and validates each reviewer, requests reviews
// from the valid ones, and surfaces the rest in a follow-up comment so no
// reviewer is silently dropped.
func (s *MigrationService) attachReviewers(ctx context.Context, number int, reviewers []model.Reviewer) {
	if len(reviewers) == 0 {
		slog.Debug("no reviewers to add", "dest_pr", number)
		return
	}
	slog.Info("processing reviewers", "dest_pr", number, "count", len(reviewers))

	type invalidReviewer struct {
		source string
		dest   string
		reason string
	}
	var (
		valid    []string
		invalid  []invalidReviewer
		unmapped []string
	)

	for _, r := range reviewers {
		mapped, ok := s.resolver.Resolve(r.Username)
		if !ok {
			unmapped = append(unmapped, r.Username)
			continue
		}

		isCollab, err := s.dest.IsCollaborator(ctx, mapped)
		if err != nil {
			slog.Error("failed to validate reviewer", "user", mapped, "error", err)
			invalid = append(invalid, invalidReviewer{r.Username, mapped, "validation failed"})
			continue
		}
		if !isCollab {
			slog.Warn("reviewer is not a repository collaborator", "user", mapped)
			invalid = append(invalid, invalidReviewer{r.Username, mapped, "No repository access or not a collaborator"})
			continue
		}
		valid = append(valid, mapped)
	}

	if len(valid) > 0 {
		if err := s.writer.RequestReviewers(ctx, number, valid); err != nil {
			slog.Error("failed to request reviews", "dest_pr", number, "error", err)
			for _, u := range valid {
				invalid = append(invalid, invalidReviewer{"unknown", u, err.Error()})
			}
		} else {
			slog.Info("requested reviews", "dest_pr", number, "reviewers", strings.Join(valid, ", "))
		}
	} else {
		slog.Warn("no valid reviewers to add", "dest_pr", number)
	}

	if len(unmapped) == 0 && len(invalid) == 0 {
		return
	}

	var b strings.Builder
	if len(unmapped) > 0 {
		b.WriteString("**⚠️ Unmapped Reviewers:**\n\n")
		for _, u := range unmapped {
			fmt.Fprintf(&b, "- %s (no destination mapping found)\n", u)
		}
	}
	if len(invalid) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("**⚠️ Reviewers Without Repository Access:**\n\n")
		for _, r := range invalid {
			fmt.Fprintf(&b, "- %s -> @%s (%s)\n", r.source, r.dest, r.reason)
		}
	}
	b.WriteString("\n*These reviewers could not be added automatically. Please add them manually if they need access.*")

	if err := s.writer.CreateComment(ctx, number, b.String()); err != nil {
		slog.Error("failed to add reviewer warning comment", "dest_pr", number, "error", err)
	} else {
		slog.Info("added comment listing unmapped/invalid reviewers", "dest_pr", number)
	}
}

// attachCommentsAndTasks recreates the comment thread in chronological
// order, interleaving each comment's tasks right after it and appending
// orphaned tasks as a trailing group. withMetadata adds an author and
// timestamp header plus inline-location context, used on tracking issues
// where the destination shows the migrating user as the author.
func (s *MigrationService) attachCommentsAndTasks(ctx context.Context, number int, pr model.PullRequest, withMetadata bool) {
	if len(pr.Comments) == 0 && len(pr.Tasks) == 0 {
		return
	}

	// Opaque account ids only become names through the comment authors
	// seen in this PR; the raw payload carries no other link.
	accountIndex := make(map[string]string)
	for _, c := range pr.Comments {
		if c.AuthorRef != "" && c.Author != "" {
			accountIndex[c.AuthorRef] = c.Author
		}
	}

	type quoteSource struct {
		author  string
		content string
	}
	quotes := make(map[int]quoteSource, len(pr.Comments))
	for _, c := range pr.Comments {
		content := c.Content
		if len(content) > quotePreviewLen {
			content = content[:quotePreviewLen]
		}
		quotes[c.ID] = quoteSource{author: c.Author, content: content}
	}

	for _, c := range pr.Comments {
		var b strings.Builder

		if withMetadata {
			fmt.Fprintf(&b, "**%s** commented on %s", s.displayFor(c.Author), formatTimestamp(c.CreatedAt))
			if c.UpdatedAt != nil && !c.UpdatedAt.Equal(c.CreatedAt) {
				fmt.Fprintf(&b, " *(edited %s)*", formatTimestamp(*c.UpdatedAt))
			}
			b.WriteString("\n\n")
		}

		if c.ParentID != nil {
			if parent, ok := quotes[*c.ParentID]; ok {
				fmt.Fprintf(&b, "> %s wrote:\n", s.displayFor(parent.author))
				for _, line := range strings.Split(parent.content, "\n") {
					fmt.Fprintf(&b, "> %s\n", line)
				}
				b.WriteString("\n")
			} else {
				// Parent deleted or missing; keep the attribution, skip
				// the unavailable body.
				author := c.ParentAuthor
				if author == "" {
					author = "(unknown)"
				}
				fmt.Fprintf(&b, "> %s wrote:\n\n", s.displayFor(author))
			}
		}

		if withMetadata && c.Inline != nil {
			if c.Inline.FromLine > 0 && c.Inline.ToLine > 0 {
				fmt.Fprintf(&b, "📄 **Inline comment on** `%s` (lines %d-%d)\n\n",
					c.Inline.Path, c.Inline.FromLine, c.Inline.ToLine)
			} else {
				fmt.Fprintf(&b, "📄 **Inline comment on** `%s`\n\n", c.Inline.Path)
			}
		}

		content := s.transformer.Transform(c.Content)
		content = s.resolveMentions(content, accountIndex)
		b.WriteString(content)

		if len(c.Attachments) > 0 {
			b.WriteString("\n\n---\n**Attachments:**\n")
			for _, a := range c.Attachments {
				destURL, ok := s.relocator.RelocateAttachment(ctx, a.URL, a.Name, number)
				if ok {
					fmt.Fprintf(&b, "\n- [%s](%s)", a.Name, destURL)
					slog.Info("migrated attachment", "name", a.Name, "dest_pr", number)
				} else {
					fmt.Fprintf(&b, "\n- ⚠️ %s (migration failed)", a.Name)
				}
			}
		}

		body := s.relocator.RelocateText(ctx, b.String(), number)
		if err := s.writer.CreateComment(ctx, number, body); err != nil {
			slog.Error("failed to add comment", "comment", c.ID, "dest_pr", number, "error", err)
			continue
		}
		slog.Debug("added comment", "comment", c.ID, "dest_pr", number)

		if owned := pr.TasksForComment(c.ID); len(owned) > 0 {
			s.postTasks(ctx, number, "", owned, withMetadata)
		}
	}

	if orphans := pr.OrphanTasks(); len(orphans) > 0 {
		s.postTasks(ctx, number, "**📋 Tasks:**\n\n", orphans, withMetadata)
	}
}

// postTasks writes a group of tasks as one checklist comment.
func (s *MigrationService) postTasks(ctx context.Context, number int, heading string, tasks []model.Task, withMetadata bool) {
	var b strings.Builder
	b.WriteString(heading)
	for i, t := range tasks {
		if i > 0 {
			b.WriteString("\n")
		}
		checkbox := "[ ]"
		if t.IsResolved() {
			checkbox = "[x]"
		}
		fmt.Fprintf(&b, "- %s %s", checkbox, t.Content)
		if withMetadata {
			fmt.Fprintf(&b, " *(by %s on %s)*", s.displayFor(t.Creator), formatTimestamp(t.CreatedAt))
		}
	}

	if err := s.writer.CreateComment(ctx, number, b.String()); err != nil {
		slog.Error("failed to add tasks", "dest_pr", number, "count", len(tasks), "error", err)
		return
	}
	slog.Debug("added tasks", "dest_pr", number, "count", len(tasks))
}

// resolveMentions rewrites opaque account-id mention tokens into plain
// mentions, preferring the destination mapping and falling back to the
// source display name. Unresolvable ids become a neutral placeholder so no
// raw token leaks into the destination.
func (s *MigrationService) resolveMentions(text string, accountIndex map[string]string) string {
	return uuidMention.ReplaceAllStringFunc(text, func(match string) string {
		accountID := uuidMention.FindStringSubmatch(match)[1]
		username, ok := accountIndex[accountID]
		if !ok {
			return "*(user mention)*"
		}
		if mapped, ok := s.resolver.Resolve(username); ok {
			return "@" + mapped
		}
		return "@" + username
	})
}

// displayFor renders an identity as a destination mention when mapped, or
// the source name verbatim when not.
func (s *MigrationService) displayFor(identifier string) string {
	if mapped, ok := s.resolver.Resolve(identifier); ok {
		return "@" + mapped
	}
	return identifier
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}
