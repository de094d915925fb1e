// Package application orchestrates the migration run: it pulls canonical
// pull requests from the source, drives each one through the precondition
// checks and destination writes, and records every outcome.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ericfisherdev/prmigrate/internal/assets"
	"github.com/ericfisherdev/prmigrate/internal/domain/model"
	"github.com/ericfisherdev/prmigrate/internal/domain/port/driven"
	"github.com/ericfisherdev/prmigrate/internal/identity"
	"github.com/ericfisherdev/prmigrate/internal/ledger"
	"github.com/ericfisherdev/prmigrate/internal/markup"
	"github.com/ericfisherdev/prmigrate/internal/preview"
)

// Params wires a MigrationService. Preview may be nil when not running in
// dry-run mode; everything else is required.
type Params struct {
	Source      driven.SourceClient
	Dest        driven.DestClient
	Writer      driven.DestWriter
	Resolver    *identity.Resolver
	Transformer *markup.Transformer
	Relocator   *assets.Relocator
	Ledger      *ledger.Ledger
	Preview     *preview.Writer

	SourceWorkspace  string
	SourceRepository string

	SkipCommitVerification    bool
	SkipMissingSourceBranches bool
	DryRun                    bool
	OnlyPRs                   []int
}

// Result is the terminal outcome of processing one pull request.
type Result struct {
	PRID       int
	Outcome    model.Outcome
	Reason     string
	DestNumber int
}

// RunReport aggregates a whole run for the final summary.
type RunReport struct {
	TotalPRs  int
	OpenPRs   int
	ClosedPRs int

	Migrated       int
	Skipped        int
	Failed         int
	TrackingIssues int

	Results []Result
	Ledger  ledger.Summary
}

// MigrationService migrates open pull requests and archives closed ones,
// strictly sequentially: duplicate detection and reviewer validation must
// observe the writes of earlier items in the same run.
type MigrationService struct {
	source      driven.SourceClient
	dest        driven.DestClient
	writer      driven.DestWriter
	resolver    *identity.Resolver
	transformer *markup.Transformer
	relocator   *assets.Relocator
	ledger      *ledger.Ledger
	preview     *preview.Writer

	sourceWorkspace  string
	sourceRepository string

	skipCommitVerification    bool
	skipMissingSourceBranches bool
	dryRun                    bool
	onlyPRs                   map[int]struct{}
}

// NewMigrationService creates the orchestrator.
func NewMigrationService(p Params) *MigrationService {
	var only map[int]struct{}
	if len(p.OnlyPRs) > 0 {
		only = make(map[int]struct{}, len(p.OnlyPRs))
		for _, id := range p.OnlyPRs {
			only[id] = struct{}{}
		}
	}
	return &MigrationService{
		source:      p.Source,
		dest:        p.Dest,
		writer:      p.Writer,
		resolver:    p.Resolver,
		transformer: p.Transformer,
		relocator:   p.Relocator,
		ledger:      p.Ledger,
		preview:     p.Preview,

		sourceWorkspace:  p.SourceWorkspace,
		sourceRepository: p.SourceRepository,

		skipCommitVerification:    p.SkipCommitVerification,
		skipMissingSourceBranches: p.SkipMissingSourceBranches,
		dryRun:                    p.DryRun,
		onlyPRs:                   only,
	}
}

// Run fetches every pull request from the source and processes each one to
// a terminal outcome. Per-PR failures are recorded, never propagated; only
// the initial fetch and context cancellation abort the run.
func (s *MigrationService) Run(ctx context.Context) (RunReport, error) {
	states := []model.PRState{
		model.PRStateOpen, model.PRStateMerged, model.PRStateDeclined, model.PRStateSuperseded,
	}
	prs, err := s.source.FetchPullRequests(ctx, states)
	if err != nil {
		return RunReport{}, fmt.Errorf("fetch pull requests: %w", err)
	}

	if s.onlyPRs != nil {
		filtered := prs[:0]
		for _, pr := range prs {
			if _, ok := s.onlyPRs[pr.ID]; ok {
				filtered = append(filtered, pr)
			}
		}
		prs = filtered
	}

	report := RunReport{TotalPRs: len(prs)}
	for _, pr := range prs {
		if pr.IsOpen() {
			report.OpenPRs++
		} else {
			report.ClosedPRs++
		}
	}
	slog.Info("fetched pull requests",
		"total", report.TotalPRs, "open", report.OpenPRs, "closed", report.ClosedPRs)

	for _, pr := range prs {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("migration interrupted: %w", err)
		}

		var res Result
		if pr.IsOpen() {
			res = s.migrateOpen(ctx, pr)
		} else {
			res = s.archiveClosed(ctx, pr)
		}
		report.Results = append(report.Results, res)

		switch res.Outcome {
		case model.OutcomeMigrated:
			if pr.IsOpen() {
				report.Migrated++
			} else {
				report.TrackingIssues++
			}
		case model.OutcomeSkipped:
			report.Skipped++
		case model.OutcomeFailed:
			report.Failed++
		}
	}

	report.Ledger = s.ledger.Summary()
	return report, nil
}

// migrateOpen runs one open PR through the state machine. Every check
// short-circuits before any destination mutation, so a precondition failure
// never leaves a partial artifact behind.
func (s *MigrationService) migrateOpen(ctx context.Context, pr model.PullRequest) Result {
	slog.Info("migrating PR", "pr", pr.ID, "title", pr.Title,
		"head", pr.SourceBranch, "base", pr.DestinationBranch)

	if pr.IsFork {
		reason := fmt.Sprintf("Fork PR from %s/%s (branch: %s). Fork PRs are not migrated.",
			pr.ForkRepoOwner, pr.ForkRepoName, pr.SourceBranch)
		slog.Warn("skipping fork PR", "pr", pr.ID, "fork", pr.ForkRepoOwner+"/"+pr.ForkRepoName)
		return s.skip(pr, reason)
	}

	if s.dryRun {
		return s.previewOpen(pr)
	}

	if res, ok := s.checkBranches(ctx, pr); !ok {
		return res
	}
	if res, ok := s.checkCommits(ctx, pr); !ok {
		return res
	}
	if res, ok := s.checkDuplicate(ctx, pr); !ok {
		return res
	}

	body := s.buildBody(pr)
	number, err := s.writer.CreatePullRequest(ctx, pr.Title, body, pr.SourceBranch, pr.DestinationBranch)
	if err != nil {
		return s.fail(pr, fmt.Sprintf("create pull request: %v", err))
	}
	slog.Info("created destination PR", "pr", pr.ID, "dest_pr", number)

	// Asset relocation needs the destination number for its storage paths,
	// so the body is rewritten after creation.
	if relocated := s.relocator.RelocateText(ctx, body, number); relocated != body {
		if err := s.writer.UpdatePullRequestBody(ctx, number, relocated); err != nil {
			slog.Error("failed to update body with relocated assets", "pr", pr.ID, "error", err)
		}
	}

	// Enrichment is best-effort: the PR already exists, so individual
	// reviewer or comment failures are surfaced without failing the item.
	s.attachReviewers(ctx, number, pr.Reviewers)
	s.attachCommentsAndTasks(ctx, number, pr, false)

	return Result{PRID: pr.ID, Outcome: model.OutcomeMigrated, DestNumber: number}
}

// previewOpen simulates a migration: the body is transformed and written
// as an HTML preview, nothing touches the destination.
func (s *MigrationService) previewOpen(pr model.PullRequest) Result {
	body := s.buildBody(pr)
	if s.preview != nil {
		if _, err := s.preview.WritePR(pr.ID, pr.Title, body); err != nil {
			slog.Error("failed to write preview", "pr", pr.ID, "error", err)
		}
	}
	slog.Info("dry run, would create PR", "pr", pr.ID,
		"head", pr.SourceBranch, "base", pr.DestinationBranch)
	return Result{PRID: pr.ID, Outcome: model.OutcomeMigrated}
}

func (s *MigrationService) checkBranches(ctx context.Context, pr model.PullRequest) (Result, bool) {
	exists, err := s.dest.BranchExists(ctx, pr.SourceBranch)
	if err != nil {
		return s.fail(pr, fmt.Sprintf("verify source branch %q: %v", pr.SourceBranch, err)), false
	}
	if !exists {
		reason := fmt.Sprintf("Source branch %q does not exist in destination repository", pr.SourceBranch)
		if s.skipMissingSourceBranches {
			slog.Warn("skipping PR with missing source branch", "pr", pr.ID, "branch", pr.SourceBranch)
			return s.skip(pr, reason), false
		}
		return s.fail(pr, reason), false
	}

	exists, err = s.dest.BranchExists(ctx, pr.DestinationBranch)
	if err != nil {
		return s.fail(pr, fmt.Sprintf("verify destination branch %q: %v", pr.DestinationBranch, err)), false
	}
	if !exists {
		return s.fail(pr, fmt.Sprintf("Destination branch %q does not exist in destination repository", pr.DestinationBranch)), false
	}
	return Result{}, true
}

// checkCommits guards against history divergence: a rebased or squashed
// destination no longer contains the source PR's commits.
func (s *MigrationService) checkCommits(ctx context.Context, pr model.PullRequest) (Result, bool) {
	if s.skipCommitVerification {
		slog.Info("skipping commit verification", "pr", pr.ID)
		return Result{}, true
	}
	if len(pr.Commits) == 0 {
		return Result{}, true
	}

	var missing []string
	for _, sha := range pr.Commits {
		exists, err := s.dest.CommitExists(ctx, sha)
		if err != nil {
			slog.Error("failed to verify commit, treating as missing", "sha", sha, "error", err)
			missing = append(missing, sha)
			continue
		}
		if !exists {
			slog.Warn("commit not found in destination repository", "sha", sha)
			missing = append(missing, sha)
		}
	}
	if len(missing) == 0 {
		return Result{}, true
	}

	shown := missing
	suffix := ""
	if len(shown) > 5 {
		shown = shown[:5]
		suffix = "..."
	}
	reason := fmt.Sprintf(
		"Some commits from the source PR are missing in the destination. Missing SHAs: %s%s. "+
			"This may indicate the repository was rebased or squashed during migration. "+
			"Set skip_commit_verification to bypass this check.",
		strings.Join(shown, ", "), suffix)
	return s.fail(pr, reason), false
}

func (s *MigrationService) checkDuplicate(ctx context.Context, pr model.PullRequest) (Result, bool) {
	numbers, err := s.dest.ListOpenPRsByHeadBase(ctx, pr.SourceBranch, pr.DestinationBranch)
	if err != nil {
		return s.fail(pr, fmt.Sprintf("check for existing PRs: %v", err)), false
	}
	if len(numbers) == 0 {
		return Result{}, true
	}
	if len(numbers) > 3 {
		numbers = numbers[:3]
	}
	reason := fmt.Sprintf("PR already exists with head=%s and base=%s (destination PR(s): %v)",
		pr.SourceBranch, pr.DestinationBranch, numbers)
	return s.fail(pr, reason), false
}

// buildBody transforms the PR description into destination markup.
func (s *MigrationService) buildBody(pr model.PullRequest) string {
	if pr.Description == "" {
		return ""
	}
	return s.transformer.Transform(pr.Description)
}

func (s *MigrationService) skip(pr model.PullRequest, reason string) Result {
	return Result{PRID: pr.ID, Outcome: model.OutcomeSkipped, Reason: reason}
}

func (s *MigrationService) fail(pr model.PullRequest, reason string) Result {
	slog.Error("migration failed", "pr", pr.ID, "reason", reason)
	details := fmt.Sprintf("Source: %s -> Destination: %s", pr.SourceBranch, pr.DestinationBranch)
	if err := s.ledger.LogFailed(pr, reason, details); err != nil {
		slog.Error("failed to archive failure record", "pr", pr.ID, "error", err)
	}
	return Result{PRID: pr.ID, Outcome: model.OutcomeFailed, Reason: reason}
}
