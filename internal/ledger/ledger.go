// Package ledger persists the audit trail of a migration run: closed pull
// requests that were archived instead of migrated, and migration attempts
// that failed. Both archives are append-only JSON array files that survive
// across runs; session counters cover the current run only.
package ledger

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ericfisherdev/prmigrate/internal/domain/model"
)

// Ledger appends closed and failed records to two durable JSON files.
type Ledger struct {
	closedPath string
	failedPath string

	merged     int
	declined   int
	superseded int
	failed     int
}

// Summary reports session-scoped counts, independent of any records already
// on disk from earlier runs.
type Summary struct {
	ClosedCount     int
	MergedCount     int
	DeclinedCount   int
	SupersededCount int
	FailedCount     int
}

type commentRecord struct {
	ID          int     `json:"id"`
	Author      string  `json:"author"`
	Content     string  `json:"content"`
	CreatedDate string  `json:"created_date"`
	UpdatedDate *string `json:"updated_date"`
}

type reviewerRecord struct {
	Username       string `json:"username"`
	ApprovalStatus string `json:"approval_status"`
}

type closedRecord struct {
	ID                int              `json:"id"`
	Title             string           `json:"title"`
	Description       string           `json:"description"`
	Author            string           `json:"author"`
	SourceBranch      string           `json:"source_branch"`
	DestinationBranch string           `json:"destination_branch"`
	State             string           `json:"state"`
	CreatedDate       string           `json:"created_date"`
	UpdatedDate       string           `json:"updated_date"`
	ClosedDate        *string          `json:"closed_date"`
	MergeCommit       string           `json:"merge_commit,omitempty"`
	CloseSourceCommit string           `json:"close_source_commit,omitempty"`
	Comments          []commentRecord  `json:"comments"`
	Reviewers         []reviewerRecord `json:"reviewers"`
	Commits           []string         `json:"commits"`
	ParticipantsCount int              `json:"participants_count"`
	TaskCount         int              `json:"task_count"`
	CommentsCount     int              `json:"comments_count"`
	ReviewersCount    int              `json:"reviewers_count"`
	CommitsCount      int              `json:"commits_count"`
	Status            string           `json:"status"`
	LoggedAt          string           `json:"logged_at"`
	ReasonNotMigrated string           `json:"reason_not_migrated"`
}

type failedRecord struct {
	PRID              int    `json:"pr_id"`
	Title             string `json:"title"`
	Reason            string `json:"reason"`
	ErrorDetails      string `json:"error_details"`
	SourceBranch      string `json:"source_branch"`
	DestinationBranch string `json:"destination_branch"`
	Author            string `json:"author"`
	CreatedDate       string `json:"created_date"`
	FailedAt          string `json:"failed_at"`
}

// New creates the archive directories and seeds missing archive files with
// an empty JSON array so appends never have to special-case a first write.
func New(closedPath, failedPath string) (*Ledger, error) {
	for _, p := range []string{closedPath, failedPath} {
		if dir := filepath.Dir(p); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create archive directory %s: %w", dir, err)
			}
		}
		if _, err := os.Stat(p); os.IsNotExist(err) {
			if err := os.WriteFile(p, []byte("[]"), 0o644); err != nil {
				return nil, fmt.Errorf("initialize archive %s: %w", p, err)
			}
		}
	}
	return &Ledger{closedPath: closedPath, failedPath: failedPath}, nil
}

// LogClosed archives a closed pull request that was not migrated, stamping
// the record with the archival time and the non-migration reason.
func (l *Ledger) LogClosed(pr model.PullRequest) error {
	rec := snapshotClosed(pr)
	if err := appendRecord(l.closedPath, rec); err != nil {
		return fmt.Errorf("archive closed PR #%d: %w", pr.ID, err)
	}

	switch pr.State {
	case model.PRStateMerged:
		l.merged++
	case model.PRStateDeclined:
		l.declined++
	case model.PRStateSuperseded:
		l.superseded++
	}

	slog.Info("archived closed PR",
		"pr", pr.ID, "title", pr.Title, "status", rec.Status, "file", filepath.Base(l.closedPath))
	return nil
}

// LogFailed archives one failed migration attempt.
func (l *Ledger) LogFailed(pr model.PullRequest, reason, errorDetails string) error {
	rec := failedRecord{
		PRID:              pr.ID,
		Title:             pr.Title,
		Reason:            reason,
		ErrorDetails:      errorDetails,
		SourceBranch:      pr.SourceBranch,
		DestinationBranch: pr.DestinationBranch,
		Author:            pr.Author,
		CreatedDate:       pr.CreatedAt.Format(time.RFC3339),
		FailedAt:          time.Now().Format(time.RFC3339),
	}
	if err := appendRecord(l.failedPath, rec); err != nil {
		return fmt.Errorf("archive failed PR #%d: %w", pr.ID, err)
	}

	l.failed++
	slog.Error("archived failed migration", "pr", pr.ID, "reason", reason)
	return nil
}

// Summary returns the counters accumulated during this session.
func (l *Ledger) Summary() Summary {
	return Summary{
		ClosedCount:     l.merged + l.declined + l.superseded,
		MergedCount:     l.merged,
		DeclinedCount:   l.declined,
		SupersededCount: l.superseded,
		FailedCount:     l.failed,
	}
}

// snapshotClosed flattens the canonical PR into its archive form. Fork
// details are dropped: they only matter for migration decisions, which a
// closed PR never reaches.
func snapshotClosed(pr model.PullRequest) closedRecord {
	rec := closedRecord{
		ID:                pr.ID,
		Title:             pr.Title,
		Description:       pr.Description,
		Author:            pr.Author,
		SourceBranch:      pr.SourceBranch,
		DestinationBranch: pr.DestinationBranch,
		State:             string(pr.State),
		CreatedDate:       pr.CreatedAt.Format(time.RFC3339),
		UpdatedDate:       pr.UpdatedAt.Format(time.RFC3339),
		MergeCommit:       pr.MergeCommit,
		CloseSourceCommit: pr.CloseSourceCommit,
		Comments:          []commentRecord{},
		Reviewers:         []reviewerRecord{},
		Commits:           pr.Commits,
		ParticipantsCount: pr.ParticipantCount,
		TaskCount:         pr.TaskCount,
		CommentsCount:     len(pr.Comments),
		ReviewersCount:    len(pr.Reviewers),
		CommitsCount:      len(pr.Commits),
		Status:            string(pr.State),
		LoggedAt:          time.Now().Format(time.RFC3339),
		ReasonNotMigrated: fmt.Sprintf("PR is %s - Only OPEN PRs are migrated", pr.State),
	}
	if pr.Commits == nil {
		rec.Commits = []string{}
	}
	if pr.ClosedAt != nil {
		s := pr.ClosedAt.Format(time.RFC3339)
		rec.ClosedDate = &s
	}
	for _, c := range pr.Comments {
		cr := commentRecord{
			ID:          c.ID,
			Author:      c.Author,
			Content:     c.Content,
			CreatedDate: c.CreatedAt.Format(time.RFC3339),
		}
		if c.UpdatedAt != nil {
			s := c.UpdatedAt.Format(time.RFC3339)
			cr.UpdatedDate = &s
		}
		rec.Comments = append(rec.Comments, cr)
	}
	for _, r := range pr.Reviewers {
		rec.Reviewers = append(rec.Reviewers, reviewerRecord{
			Username:       r.Username,
			ApprovalStatus: string(r.Approval),
		})
	}
	return rec
}

// appendRecord reads the archive array, appends one record, and rewrites
// the file. Existing entries are kept as raw JSON so records written by
// older versions never block new appends.
func appendRecord(path string, record any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read archive: %w", err)
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("parse archive: %w", err)
	}

	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	entries = append(entries, encoded)

	out, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode archive: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	return nil
}
