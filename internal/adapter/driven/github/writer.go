package github

import (
	"context"
	"fmt"

	gh "github.com/google/go-github/v82/github"
)

// CreatePullRequest creates a live pull request and returns its number.
func (c *Client) CreatePullRequest(ctx context.Context, title, body, head, base string) (int, error) {
	var number int
	err := c.invoker.Do(ctx, "github create PR", func() error {
		pr, resp, err := c.gh.PullRequests.Create(ctx, c.owner, c.repo, &gh.NewPullRequest{
			Title: gh.Ptr(title),
			Body:  gh.Ptr(body),
			Head:  gh.Ptr(head),
			Base:  gh.Ptr(base),
		})
		if err != nil {
			return apiError("creating pull request", err)
		}
		logRateLimit(resp, "pulls.create", 1)
		number = pr.GetNumber()
		return nil
	})
	return number, err
}

// UpdatePullRequestBody replaces the body of an existing pull request.
func (c *Client) UpdatePullRequestBody(ctx context.Context, number int, body string) error {
	return c.invoker.Do(ctx, fmt.Sprintf("github edit PR #%d", number), func() error {
		_, resp, err := c.gh.PullRequests.Edit(ctx, c.owner, c.repo, number, &gh.PullRequest{
			Body: gh.Ptr(body),
		})
		if err != nil {
			return apiError(fmt.Sprintf("updating PR #%d body", number), err)
		}
		logRateLimit(resp, "pulls.edit", 1)
		return nil
	})
}

// CreateTrackingIssue creates an issue preserving a closed PR's history and
// returns its number.
func (c *Client) CreateTrackingIssue(ctx context.Context, title, body string) (int, error) {
	var number int
	err := c.invoker.Do(ctx, "github create issue", func() error {
		issue, resp, err := c.gh.Issues.Create(ctx, c.owner, c.repo, &gh.IssueRequest{
			Title: gh.Ptr(title),
			Body:  gh.Ptr(body),
		})
		if err != nil {
			return apiError("creating tracking issue", err)
		}
		logRateLimit(resp, "issues.create", 1)
		number = issue.GetNumber()
		return nil
	})
	return number, err
}

// CloseIssue closes an issue. stateReason may be "completed", "not_planned",
// or empty for the API default.
func (c *Client) CloseIssue(ctx context.Context, number int, stateReason string) error {
	return c.invoker.Do(ctx, fmt.Sprintf("github close issue #%d", number), func() error {
		req := &gh.IssueRequest{State: gh.Ptr("closed")}
		if stateReason != "" {
			req.StateReason = gh.Ptr(stateReason)
		}
		_, resp, err := c.gh.Issues.Edit(ctx, c.owner, c.repo, number, req)
		if err != nil {
			return apiError(fmt.Sprintf("closing issue #%d", number), err)
		}
		logRateLimit(resp, "issues.edit", 1)
		return nil
	})
}

// CreateComment adds a comment to a pull request or issue. Both share the
// issue comment namespace on GitHub.
func (c *Client) CreateComment(ctx context.Context, number int, body string) error {
	return c.invoker.Do(ctx, fmt.Sprintf("github comment on #%d", number), func() error {
		_, resp, err := c.gh.Issues.CreateComment(ctx, c.owner, c.repo, number, &gh.IssueComment{
			Body: gh.Ptr(body),
		})
		if err != nil {
			return apiError(fmt.Sprintf("creating comment on #%d", number), err)
		}
		logRateLimit(resp, "issues.comment", 1)
		return nil
	})
}

// RequestReviewers asks the given users for review on a pull request.
func (c *Client) RequestReviewers(ctx context.Context, number int, usernames []string) error {
	if len(usernames) == 0 {
		return nil
	}
	return c.invoker.Do(ctx, fmt.Sprintf("github request reviewers on #%d", number), func() error {
		_, resp, err := c.gh.PullRequests.RequestReviewers(ctx, c.owner, c.repo, number, gh.ReviewersRequest{
			Reviewers: usernames,
		})
		if err != nil {
			return apiError(fmt.Sprintf("requesting reviewers on #%d", number), err)
		}
		logRateLimit(resp, "pulls.reviewers", 1)
		return nil
	})
}
