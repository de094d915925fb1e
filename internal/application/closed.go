package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ericfisherdev/prmigrate/internal/domain/model"
)

// archiveClosed preserves a closed PR: its full snapshot goes to the
// ledger, and a tracking issue recreates its content on the destination so
// the history stays browsable without reopening a mergeable request.
func (s *MigrationService) archiveClosed(ctx context.Context, pr model.PullRequest) Result {
	if err := s.ledger.LogClosed(pr); err != nil {
		slog.Error("failed to archive closed PR", "pr", pr.ID, "error", err)
	}

	if s.dryRun {
		slog.Info("dry run, would create tracking issue", "pr", pr.ID, "state", pr.State)
		return Result{PRID: pr.ID, Outcome: model.OutcomeMigrated}
	}

	number, err := s.createTrackingIssue(ctx, pr)
	if err != nil {
		return s.fail(pr, fmt.Sprintf("create tracking issue: %v", err))
	}
	return Result{PRID: pr.ID, Outcome: model.OutcomeMigrated, DestNumber: number}
}

func (s *MigrationService) createTrackingIssue(ctx context.Context, pr model.PullRequest) (int, error) {
	title := fmt.Sprintf("[Closed PR #%d] %s", pr.ID, pr.Title)

	var b strings.Builder
	fmt.Fprintf(&b, "https://bitbucket.org/%s/%s/pull-requests/%d\n",
		s.sourceWorkspace, s.sourceRepository, pr.ID)
	b.WriteString("\n---\n\n")
	if pr.Description != "" {
		b.WriteString(s.transformer.Transform(pr.Description))
	} else {
		b.WriteString("*No description provided*")
	}

	// The issue number does not exist yet, so assets in the description
	// are namespaced by the source PR id instead.
	body := s.relocator.RelocateText(ctx, b.String(), pr.ID)

	number, err := s.writer.CreateTrackingIssue(ctx, title, body)
	if err != nil {
		return 0, err
	}
	slog.Info("created tracking issue", "pr", pr.ID, "issue", number)

	s.attachCommentsAndTasks(ctx, number, pr, true)

	if err := s.writer.CloseIssue(ctx, number, closureReason(pr.State)); err != nil {
		slog.Error("failed to close tracking issue", "issue", number, "error", err)
		return number, nil
	}
	slog.Info("closed tracking issue", "issue", number, "state", pr.State)
	return number, nil
}

// closureReason maps the source PR state to a destination state reason.
// Superseded has no equivalent and uses the destination default.
func closureReason(state model.PRState) string {
	switch state {
	case model.PRStateMerged:
		return "completed"
	case model.PRStateDeclined:
		return "not_planned"
	default:
		return ""
	}
}
