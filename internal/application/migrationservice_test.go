package application

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/prmigrate/internal/assets"
	"github.com/ericfisherdev/prmigrate/internal/domain/model"
	"github.com/ericfisherdev/prmigrate/internal/identity"
	"github.com/ericfisherdev/prmigrate/internal/ledger"
	"github.com/ericfisherdev/prmigrate/internal/markup"
)

type fakeSource struct {
	prs      []model.PullRequest
	fetchErr error
}

func (f *fakeSource) FetchPullRequests(context.Context, []model.PRState) ([]model.PullRequest, error) {
	return f.prs, f.fetchErr
}

func (f *fakeSource) Probe(context.Context) error { return nil }

func (f *fakeSource) Download(context.Context, string) ([]byte, string, error) {
	return []byte("bytes"), "image/png", nil
}

type fakeDest struct {
	branches      map[string]bool
	commits       map[string]bool
	openPRs       map[string][]int
	collaborators map[string]bool

	branchCalls int
}

func (f *fakeDest) Probe(context.Context) error { return nil }

func (f *fakeDest) BranchExists(_ context.Context, branch string) (bool, error) {
	f.branchCalls++
	return f.branches[branch], nil
}

func (f *fakeDest) CommitExists(_ context.Context, sha string) (bool, error) {
	return f.commits[sha], nil
}

func (f *fakeDest) ListOpenPRsByHeadBase(_ context.Context, head, base string) ([]int, error) {
	return f.openPRs[head+"|"+base], nil
}

func (f *fakeDest) IsCollaborator(_ context.Context, username string) (bool, error) {
	return f.collaborators[username], nil
}

type createdPR struct {
	title, body, head, base string
}

type fakeWriter struct {
	nextNumber int

	prs           []createdPR
	bodies        map[int]string
	issues        []createdPR
	closedIssues  map[int]string
	comments      map[int][]string
	reviewerCalls map[int][]string

	createPRErr  error
	reviewersErr error
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{
		nextNumber:    100,
		bodies:        map[int]string{},
		closedIssues:  map[int]string{},
		comments:      map[int][]string{},
		reviewerCalls: map[int][]string{},
	}
}

func (f *fakeWriter) CreatePullRequest(_ context.Context, title, body, head, base string) (int, error) {
	if f.createPRErr != nil {
		return 0, f.createPRErr
	}
	f.nextNumber++
	f.prs = append(f.prs, createdPR{title, body, head, base})
	return f.nextNumber, nil
}

func (f *fakeWriter) UpdatePullRequestBody(_ context.Context, number int, body string) error {
	f.bodies[number] = body
	return nil
}

func (f *fakeWriter) CreateTrackingIssue(_ context.Context, title, body string) (int, error) {
	f.nextNumber++
	f.issues = append(f.issues, createdPR{title: title, body: body})
	return f.nextNumber, nil
}

func (f *fakeWriter) CloseIssue(_ context.Context, number int, stateReason string) error {
	f.closedIssues[number] = stateReason
	return nil
}

func (f *fakeWriter) CreateComment(_ context.Context, number int, body string) error {
	f.comments[number] = append(f.comments[number], body)
	return nil
}

func (f *fakeWriter) RequestReviewers(_ context.Context, number int, usernames []string) error {
	if f.reviewersErr != nil {
		return f.reviewersErr
	}
	f.reviewerCalls[number] = append(f.reviewerCalls[number], usernames...)
	return nil
}

func (f *fakeWriter) UploadContent(_ context.Context, path string, _ []byte) (string, error) {
	return "https://raw.example.com/" + path, nil
}

type harness struct {
	svc    *MigrationService
	source *fakeSource
	dest   *fakeDest
	writer *fakeWriter
	ledger *ledger.Ledger
}

func newHarness(t *testing.T, mutate func(*Params)) *harness {
	t.Helper()

	source := &fakeSource{}
	dest := &fakeDest{
		branches:      map[string]bool{"feature/limiter": true, "main": true},
		commits:       map[string]bool{"abc123": true},
		openPRs:       map[string][]int{},
		collaborators: map[string]bool{"john-smith": true},
	}
	writer := newFakeWriter()

	dir := t.TempDir()
	led, err := ledger.New(filepath.Join(dir, "closed.json"), filepath.Join(dir, "failed.json"))
	require.NoError(t, err)

	params := Params{
		Source:      source,
		Dest:        dest,
		Writer:      writer,
		Resolver:    identity.New(map[string]string{"jsmith": "john-smith", "jane": "jane-gh"}),
		Transformer: markup.New(),
		Relocator:   assets.New(source, writer, "bitbucket.org"),
		Ledger:      led,

		SourceWorkspace:  "acme",
		SourceRepository: "widgets",
	}
	if mutate != nil {
		mutate(&params)
	}

	return &harness{
		svc:    NewMigrationService(params),
		source: source,
		dest:   dest,
		writer: writer,
		ledger: led,
	}
}

func openPR() model.PullRequest {
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return model.PullRequest{
		ID:                42,
		Title:             "Add rate limiter",
		Description:       "limits {code:go}r.Wait(){code}",
		Author:            "jsmith",
		SourceBranch:      "feature/limiter",
		DestinationBranch: "main",
		State:             model.PRStateOpen,
		CreatedAt:         created,
		UpdatedAt:         created,
		Commits:           []string{"abc123"},
	}
}

func TestMigrateOpen_Success(t *testing.T) {
	h := newHarness(t, nil)

	res := h.svc.migrateOpen(context.Background(), openPR())

	assert.Equal(t, model.OutcomeMigrated, res.Outcome)
	require.Len(t, h.writer.prs, 1)
	pr := h.writer.prs[0]
	assert.Equal(t, "Add rate limiter", pr.title)
	assert.Equal(t, "feature/limiter", pr.head)
	assert.Equal(t, "main", pr.base)
	assert.Contains(t, pr.body, "```go\nr.Wait()\n```")
	assert.Equal(t, 101, res.DestNumber)
}

func TestMigrateOpen_ForkSkipped(t *testing.T) {
	h := newHarness(t, nil)
	pr := openPR()
	pr.IsFork = true
	pr.ForkRepoOwner = "outsider"
	pr.ForkRepoName = "widgets-fork"

	res := h.svc.migrateOpen(context.Background(), pr)

	assert.Equal(t, model.OutcomeSkipped, res.Outcome)
	assert.Contains(t, res.Reason, "outsider/widgets-fork")
	assert.Empty(t, h.writer.prs)
	assert.Zero(t, h.dest.branchCalls)
	assert.Zero(t, h.ledger.Summary().FailedCount)
}

func TestMigrateOpen_MissingSourceBranchStrict(t *testing.T) {
	h := newHarness(t, nil)
	pr := openPR()
	pr.SourceBranch = "gone"

	res := h.svc.migrateOpen(context.Background(), pr)

	assert.Equal(t, model.OutcomeFailed, res.Outcome)
	assert.Contains(t, res.Reason, `Source branch "gone"`)
	assert.Empty(t, h.writer.prs)
	assert.Equal(t, 1, h.ledger.Summary().FailedCount)
}

func TestMigrateOpen_MissingSourceBranchLenient(t *testing.T) {
	h := newHarness(t, func(p *Params) { p.SkipMissingSourceBranches = true })
	pr := openPR()
	pr.SourceBranch = "gone"

	res := h.svc.migrateOpen(context.Background(), pr)

	assert.Equal(t, model.OutcomeSkipped, res.Outcome)
	assert.Empty(t, h.writer.prs)
	assert.Zero(t, h.ledger.Summary().FailedCount)
}

func TestMigrateOpen_MissingDestinationBranchAlwaysFails(t *testing.T) {
	h := newHarness(t, func(p *Params) { p.SkipMissingSourceBranches = true })
	pr := openPR()
	pr.DestinationBranch = "gone"

	res := h.svc.migrateOpen(context.Background(), pr)

	assert.Equal(t, model.OutcomeFailed, res.Outcome)
	assert.Contains(t, res.Reason, `Destination branch "gone"`)
	assert.Empty(t, h.writer.prs)
}

func TestMigrateOpen_MissingCommit(t *testing.T) {
	h := newHarness(t, nil)
	pr := openPR()
	pr.Commits = []string{"abc123", "deadbeef"}

	res := h.svc.migrateOpen(context.Background(), pr)

	assert.Equal(t, model.OutcomeFailed, res.Outcome)
	assert.Contains(t, res.Reason, "deadbeef")
	assert.Contains(t, res.Reason, "rebased or squashed")
	assert.Empty(t, h.writer.prs)
}

func TestMigrateOpen_SkipCommitVerification(t *testing.T) {
	h := newHarness(t, func(p *Params) { p.SkipCommitVerification = true })
	pr := openPR()
	pr.Commits = []string{"deadbeef"}

	res := h.svc.migrateOpen(context.Background(), pr)
	assert.Equal(t, model.OutcomeMigrated, res.Outcome)
}

func TestMigrateOpen_DuplicateDetection(t *testing.T) {
	h := newHarness(t, nil)
	h.dest.openPRs["feature/limiter|main"] = []int{7}

	res := h.svc.migrateOpen(context.Background(), openPR())

	assert.Equal(t, model.OutcomeFailed, res.Outcome)
	assert.Contains(t, res.Reason, "already exists")
	assert.Contains(t, res.Reason, "[7]")
	assert.Empty(t, h.writer.prs)
}

func TestMigrateOpen_CreateFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.writer.createPRErr = errors.New("422 validation failed")

	res := h.svc.migrateOpen(context.Background(), openPR())

	assert.Equal(t, model.OutcomeFailed, res.Outcome)
	assert.Contains(t, res.Reason, "422 validation failed")
	assert.Equal(t, 1, h.ledger.Summary().FailedCount)
}

func TestMigrateOpen_Reviewers(t *testing.T) {
	h := newHarness(t, nil)
	pr := openPR()
	pr.Reviewers = []model.Reviewer{
		{Username: "jsmith", Approval: model.ApprovalApproved}, // maps to collaborator john-smith
		{Username: "jane"},    // maps to jane-gh, not a collaborator
		{Username: "unknown"}, // no mapping
	}

	res := h.svc.migrateOpen(context.Background(), pr)
	require.Equal(t, model.OutcomeMigrated, res.Outcome)

	assert.Equal(t, []string{"john-smith"}, h.writer.reviewerCalls[res.DestNumber])

	comments := h.writer.comments[res.DestNumber]
	require.Len(t, comments, 1)
	assert.Contains(t, comments[0], "Unmapped Reviewers")
	assert.Contains(t, comments[0], "unknown (no destination mapping found)")
	assert.Contains(t, comments[0], "Without Repository Access")
	assert.Contains(t, comments[0], "jane -> @jane-gh")
}

func TestMigrateOpen_CommentsRepliesAndTasks(t *testing.T) {
	h := newHarness(t, nil)
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	parentID := 1
	commentID1, commentID2 := 1, 2

	pr := openPR()
	pr.Comments = []model.Comment{
		{ID: commentID1, Author: "jsmith", AuthorRef: "712020:634d5063-6091-4f3c-8b08-64ccd298144d",
			Content: "please fix the timeout", CreatedAt: created},
		{ID: commentID2, Author: "jane", ParentID: &parentID,
			Content: "done, thanks @{712020:634d5063-6091-4f3c-8b08-64ccd298144d}",
			CreatedAt: created.Add(time.Minute)},
	}
	pr.Tasks = []model.Task{
		{ID: 10, Content: "bump the timeout", State: model.TaskResolved, Creator: "jane", CreatedAt: created, CommentID: &commentID1},
		{ID: 11, Content: "update docs", State: model.TaskUnresolved, Creator: "jsmith", CreatedAt: created},
	}

	res := h.svc.migrateOpen(context.Background(), pr)
	require.Equal(t, model.OutcomeMigrated, res.Outcome)

	comments := h.writer.comments[res.DestNumber]
	require.Len(t, comments, 4)

	assert.Equal(t, "please fix the timeout", comments[0])

	// Owned task lands immediately after its comment.
	assert.Equal(t, "- [x] bump the timeout", comments[1])

	// Reply quotes the parent and resolves the opaque mention.
	assert.Contains(t, comments[2], "> @john-smith wrote:\n> please fix the timeout")
	assert.Contains(t, comments[2], "thanks @john-smith")

	// Orphan tasks trail as their own group.
	assert.Contains(t, comments[3], "Tasks:")
	assert.Contains(t, comments[3], "- [ ] update docs")
}

func TestMigrateOpen_ReplyToDeletedComment(t *testing.T) {
	h := newHarness(t, nil)
	missingParent := 99

	pr := openPR()
	pr.Comments = []model.Comment{
		{ID: 1, Author: "jane", ParentID: &missingParent, ParentAuthor: "jsmith",
			Content: "still relevant?", CreatedAt: time.Now()},
	}

	res := h.svc.migrateOpen(context.Background(), pr)
	require.Equal(t, model.OutcomeMigrated, res.Outcome)

	comments := h.writer.comments[res.DestNumber]
	require.Len(t, comments, 1)

	// The parent body is gone, only the attribution survives.
	assert.Contains(t, comments[0], "> @john-smith wrote:")
	assert.Contains(t, comments[0], "still relevant?")
}

func TestMigrateOpen_UnresolvableMentionPlaceholder(t *testing.T) {
	h := newHarness(t, nil)
	pr := openPR()
	pr.Comments = []model.Comment{
		{ID: 1, Author: "jane", Content: "cc @{999999:00000000-0000-0000-0000-000000000000}",
			CreatedAt: time.Now()},
	}

	res := h.svc.migrateOpen(context.Background(), pr)
	require.Equal(t, model.OutcomeMigrated, res.Outcome)

	comments := h.writer.comments[res.DestNumber]
	require.Len(t, comments, 1)
	assert.Contains(t, comments[0], "*(user mention)*")
	assert.NotContains(t, comments[0], "999999")
}

func TestArchiveClosed_TrackingIssue(t *testing.T) {
	h := newHarness(t, nil)
	pr := openPR()
	pr.State = model.PRStateMerged
	created := pr.CreatedAt
	pr.Comments = []model.Comment{
		{ID: 1, Author: "jane", Content: "ship it", CreatedAt: created,
			Inline: &model.InlineAnchor{Path: "pkg/limit.go", FromLine: 10, ToLine: 12}},
	}

	res := h.svc.archiveClosed(context.Background(), pr)
	require.Equal(t, model.OutcomeMigrated, res.Outcome)

	require.Len(t, h.writer.issues, 1)
	issue := h.writer.issues[0]
	assert.Equal(t, "[Closed PR #42] Add rate limiter", issue.title)
	assert.True(t, strings.HasPrefix(issue.body, "https://bitbucket.org/acme/widgets/pull-requests/42"))
	assert.Contains(t, issue.body, "---")

	assert.Equal(t, "completed", h.writer.closedIssues[res.DestNumber])
	assert.Equal(t, 1, h.ledger.Summary().MergedCount)

	comments := h.writer.comments[res.DestNumber]
	require.Len(t, comments, 1)
	assert.Contains(t, comments[0], "**@jane-gh** commented on 2024-03-01 10:00:00 UTC")
	assert.Contains(t, comments[0], "Inline comment on** `pkg/limit.go` (lines 10-12)")
	assert.Contains(t, comments[0], "ship it")
}

func TestArchiveClosed_StateReasons(t *testing.T) {
	tests := []struct {
		state  model.PRState
		reason string
	}{
		{model.PRStateMerged, "completed"},
		{model.PRStateDeclined, "not_planned"},
		{model.PRStateSuperseded, ""},
	}
	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			h := newHarness(t, nil)
			pr := openPR()
			pr.State = tt.state

			res := h.svc.archiveClosed(context.Background(), pr)
			require.Equal(t, model.OutcomeMigrated, res.Outcome)
			assert.Equal(t, tt.reason, h.writer.closedIssues[res.DestNumber])
		})
	}
}

func TestArchiveClosed_NoDescription(t *testing.T) {
	h := newHarness(t, nil)
	pr := openPR()
	pr.State = model.PRStateDeclined
	pr.Description = ""

	res := h.svc.archiveClosed(context.Background(), pr)
	require.Equal(t, model.OutcomeMigrated, res.Outcome)
	assert.Contains(t, h.writer.issues[0].body, "*No description provided*")
}

func TestRun_MixedBatch(t *testing.T) {
	h := newHarness(t, nil)

	open := openPR()
	closed := openPR()
	closed.ID = 43
	closed.State = model.PRStateDeclined
	fork := openPR()
	fork.ID = 44
	fork.IsFork = true

	h.source.prs = []model.PullRequest{open, closed, fork}

	report, err := h.svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.TotalPRs)
	assert.Equal(t, 2, report.OpenPRs)
	assert.Equal(t, 1, report.ClosedPRs)
	assert.Equal(t, 1, report.Migrated)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.TrackingIssues)
	assert.Zero(t, report.Failed)
	assert.Equal(t, 1, report.Ledger.DeclinedCount)
	require.Len(t, report.Results, 3)
}

func TestRun_OnlyPRsFilter(t *testing.T) {
	h := newHarness(t, func(p *Params) { p.OnlyPRs = []int{43} })

	first := openPR()
	second := openPR()
	second.ID = 43

	h.source.prs = []model.PullRequest{first, second}

	report, err := h.svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalPRs)
	require.Len(t, report.Results, 1)
	assert.Equal(t, 43, report.Results[0].PRID)
}

func TestRun_FetchError(t *testing.T) {
	h := newHarness(t, nil)
	h.source.fetchErr = fmt.Errorf("boom")

	_, err := h.svc.Run(context.Background())
	assert.ErrorContains(t, err, "fetch pull requests")
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	h := newHarness(t, func(p *Params) { p.DryRun = true })

	open := openPR()
	closed := openPR()
	closed.ID = 43
	closed.State = model.PRStateMerged
	h.source.prs = []model.PullRequest{open, closed}

	report, err := h.svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Migrated)
	assert.Empty(t, h.writer.prs)
	assert.Empty(t, h.writer.issues)
	assert.Empty(t, h.writer.comments)

	// The closed archive still records history even in a dry run.
	assert.Equal(t, 1, h.ledger.Summary().MergedCount)
}

func TestRun_CancelledContext(t *testing.T) {
	h := newHarness(t, nil)
	h.source.prs = []model.PullRequest{openPR()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.svc.Run(ctx)
	assert.ErrorContains(t, err, "interrupted")
}
