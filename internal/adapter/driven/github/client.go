// Package github implements the DestClient and DestWriter ports using the
// go-github library.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	gh "github.com/google/go-github/v82/github"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/ericfisherdev/prmigrate/internal/domain/port/driven"
	"github.com/ericfisherdev/prmigrate/internal/retry"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.DestClient = (*Client)(nil)
	_ driven.DestWriter = (*Client)(nil)
)

// Client implements the destination ports against one GitHub repository.
type Client struct {
	gh      *gh.Client
	invoker *retry.Invoker
	owner   string
	repo    string
}

// NewClient creates a GitHub API client with the following transport stack:
//  1. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  2. go-github (GitHub REST API client with PAT auth)
func NewClient(token, owner, repo string, invoker *retry.Invoker) *Client {
	rateLimitClient := github_ratelimit.NewClient(nil)
	client := gh.NewClient(rateLimitClient).WithAuthToken(token)

	return &Client{
		gh:      client,
		invoker: invoker,
		owner:   owner,
		repo:    repo,
	}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base
// URL. This constructor is intended for testing, allowing injection of an
// httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL, owner, repo string, invoker *retry.Invoker) (*Client, error) {
	client := gh.NewClient(httpClient)

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	return &Client{
		gh:      client,
		invoker: invoker,
		owner:   owner,
		repo:    repo,
	}, nil
}

// Probe verifies that the credentials can reach the destination repository.
func (c *Client) Probe(ctx context.Context) error {
	return c.invoker.Do(ctx, "github get repository", func() error {
		repo, resp, err := c.gh.Repositories.Get(ctx, c.owner, c.repo)
		if err != nil {
			return apiError("probing github repository", err)
		}
		logRateLimit(resp, "repository", 1)
		slog.Info("github connection ok",
			"repository", repo.GetFullName(),
			"default_branch", repo.GetDefaultBranch(),
		)
		return nil
	})
}

// BranchExists reports whether the named branch exists in the destination
// repository. A 404 is a definitive "no", not an error.
func (c *Client) BranchExists(ctx context.Context, branch string) (bool, error) {
	exists := false
	err := c.invoker.Do(ctx, "github get branch "+branch, func() error {
		_, resp, err := c.gh.Repositories.GetBranch(ctx, c.owner, c.repo, branch, 0)
		if err != nil {
			if hasStatus(err, http.StatusNotFound) {
				return nil
			}
			return apiError("fetching branch "+branch, err)
		}
		logRateLimit(resp, "branch", 1)
		exists = true
		return nil
	})
	return exists, err
}

// CommitExists reports whether the commit SHA exists in the destination
// repository. A 404 is a definitive "no", not an error.
func (c *Client) CommitExists(ctx context.Context, sha string) (bool, error) {
	exists := false
	err := c.invoker.Do(ctx, "github get commit "+sha, func() error {
		_, resp, err := c.gh.Repositories.GetCommit(ctx, c.owner, c.repo, sha, nil)
		if err != nil {
			if hasStatus(err, http.StatusNotFound) {
				return nil
			}
			return apiError("fetching commit "+sha, err)
		}
		logRateLimit(resp, "commit", 1)
		exists = true
		return nil
	})
	return exists, err
}

// ListOpenPRsByHeadBase returns the numbers of open destination PRs with the
// given head and base branches.
func (c *Client) ListOpenPRsByHeadBase(ctx context.Context, head, base string) ([]int, error) {
	var numbers []int
	err := c.invoker.Do(ctx, "github list open PRs", func() error {
		numbers = numbers[:0]
		opts := &gh.PullRequestListOptions{
			State:       "open",
			Head:        c.owner + ":" + head,
			Base:        base,
			ListOptions: gh.ListOptions{PerPage: 100},
		}
		for {
			prs, resp, err := c.gh.PullRequests.List(ctx, c.owner, c.repo, opts)
			if err != nil {
				return apiError("listing open pull requests", err)
			}
			logRateLimit(resp, "pulls", len(prs))
			for _, pr := range prs {
				numbers = append(numbers, pr.GetNumber())
			}
			if resp.NextPage == 0 {
				return nil
			}
			opts.Page = resp.NextPage
		}
	})
	return numbers, err
}

// IsCollaborator reports whether the username has collaborator access to the
// destination repository.
func (c *Client) IsCollaborator(ctx context.Context, username string) (bool, error) {
	isCollab := false
	err := c.invoker.Do(ctx, "github check collaborator "+username, func() error {
		ok, resp, err := c.gh.Repositories.IsCollaborator(ctx, c.owner, c.repo, username)
		if err != nil {
			return apiError("checking collaborator "+username, err)
		}
		logRateLimit(resp, "collaborators", 1)
		isCollab = ok
		return nil
	})
	return isCollab, err
}

// apiError classifies a go-github error. Definitive statuses become the
// driven sentinels or permanent errors so the retry invoker stops; anything
// else stays transient.
func apiError(op string, err error) error {
	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		switch ghErr.Response.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w", op, driven.ErrNotFound)
		case http.StatusPaymentRequired:
			return fmt.Errorf("%s: %w", op, driven.ErrPlanRestricted)
		}
		code := ghErr.Response.StatusCode
		if code >= 400 && code < 500 && code != http.StatusTooManyRequests {
			return retry.Permanent(fmt.Errorf("%s: %w", op, err))
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// hasStatus reports whether err is a go-github error response with the given
// HTTP status.
func hasStatus(err error, status int) bool {
	var ghErr *gh.ErrorResponse
	return errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == status
}

// logRateLimit logs the GitHub API rate limit status after each call.
func logRateLimit(resp *gh.Response, endpoint string, count int) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"endpoint", endpoint,
		"count", count,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Remaining > 0 && resp.Rate.Remaining < 100 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}
