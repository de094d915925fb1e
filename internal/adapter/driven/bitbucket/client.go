// Package bitbucket implements the SourceClient port against the Bitbucket
// Cloud 2.0 REST API and assembles its payloads into canonical PR records.
package bitbucket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gregjones/httpcache"

	"github.com/ericfisherdev/prmigrate/internal/domain/model"
	"github.com/ericfisherdev/prmigrate/internal/domain/port/driven"
	"github.com/ericfisherdev/prmigrate/internal/retry"
)

const (
	defaultBaseURL  = "https://api.bitbucket.org/2.0"
	defaultHost     = "https://bitbucket.org"
	defaultTokenURL = "https://bitbucket.org/site/oauth2/access_token"

	// tokenExpiryBuffer refreshes the OAuth token this long before the
	// server-reported expiry.
	tokenExpiryBuffer = 60 * time.Second
)

// Compile-time interface satisfaction check.
var _ driven.SourceClient = (*Client)(nil)

// Client talks to the Bitbucket Cloud API for one workspace/repository pair.
// Authentication is either an OAuth consumer (client-credentials flow with
// automatic refresh) or a static bearer token.
type Client struct {
	httpClient *http.Client
	invoker    *retry.Invoker

	baseURL  string
	host     string
	tokenURL string

	workspace  string
	repository string

	oauthKey    string
	oauthSecret string

	token     string
	tokenExp  time.Time
	staticTok bool
}

// Option configures the Client.
type Option func(*Client)

// WithEndpoints overrides the API base, web host, and OAuth token URLs.
// Intended for tests backed by httptest servers.
func WithEndpoints(baseURL, host, tokenURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
		c.host = strings.TrimSuffix(host, "/")
		c.tokenURL = tokenURL
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a Client using OAuth consumer credentials. The token is
// fetched lazily on first use and refreshed shortly before expiry.
func NewClient(workspace, repository, oauthKey, oauthSecret string, invoker *retry.Invoker, opts ...Option) *Client {
	c := newBase(workspace, repository, invoker, opts...)
	c.oauthKey = oauthKey
	c.oauthSecret = oauthSecret
	return c
}

// NewClientWithToken creates a Client using a static bearer token.
func NewClientWithToken(workspace, repository, token string, invoker *retry.Invoker, opts ...Option) *Client {
	c := newBase(workspace, repository, invoker, opts...)
	c.token = token
	c.staticTok = true
	return c
}

func newBase(workspace, repository string, invoker *retry.Invoker, opts ...Option) *Client {
	c := &Client{
		// ETag-based response caching keeps repeated detail fetches cheap.
		httpClient: &http.Client{
			Transport: httpcache.NewMemoryCacheTransport(),
			Timeout:   30 * time.Second,
		},
		invoker:    invoker,
		baseURL:    defaultBaseURL,
		host:       defaultHost,
		tokenURL:   defaultTokenURL,
		workspace:  workspace,
		repository: repository,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ensureToken obtains or refreshes the OAuth access token. Static tokens
// never refresh.
func (c *Client) ensureToken(ctx context.Context) error {
	if c.staticTok {
		return nil
	}
	if c.token != "" && time.Now().Before(c.tokenExp) {
		return nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating token request: %w", err)
	}
	req.SetBasicAuth(c.oauthKey, c.oauthSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("requesting oauth token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("oauth token request failed (status %d): %s", resp.StatusCode, body)
	}

	var tok tokenPayload
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return fmt.Errorf("decoding oauth token response: %w", err)
	}

	c.token = tok.AccessToken
	expiresIn := time.Duration(tok.ExpiresIn) * time.Second
	c.tokenExp = time.Now().Add(expiresIn - tokenExpiryBuffer)
	slog.Info("bitbucket oauth token obtained", "expires_in", expiresIn)
	return nil
}

// get performs an authenticated GET and decodes the JSON response into out.
// 404 and 402 responses become the corresponding driven sentinels, which the
// retry invoker treats as permanent; other non-2xx statuses are transient.
func (c *Client) get(ctx context.Context, rawURL string, out any) error {
	return c.invoker.Do(ctx, "bitbucket GET "+rawURL, func() error {
		if err := c.ensureToken(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return retry.Permanent(fmt.Errorf("creating request: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("requesting %s: %w", rawURL, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%s: %w", rawURL, driven.ErrNotFound)
		case resp.StatusCode == http.StatusPaymentRequired:
			return fmt.Errorf("%s: %w", rawURL, driven.ErrPlanRestricted)
		case resp.StatusCode != http.StatusOK:
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("bitbucket API error (status %d): %s", resp.StatusCode, body)
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return retry.Permanent(fmt.Errorf("decoding %s: %w", rawURL, err))
		}
		return nil
	})
}

// fetchAll follows the next-link pagination convention, accumulating every
// page's values. Query params are carried by the next URL after page one.
func (c *Client) fetchAll(ctx context.Context, rawURL string) ([]jsonRaw, error) {
	var values []jsonRaw
	current := rawURL
	for current != "" {
		var p page
		if err := c.get(ctx, current, &p); err != nil {
			return nil, err
		}
		values = append(values, p.Values...)
		current = p.Next
	}
	return values, nil
}

// repoURL builds an endpoint path under the configured repository.
func (c *Client) repoURL(suffix string) string {
	return fmt.Sprintf("%s/repositories/%s/%s%s", c.baseURL, c.workspace, c.repository, suffix)
}

// Probe verifies that the credentials can reach the source repository.
func (c *Client) Probe(ctx context.Context) error {
	var out struct {
		FullName string `json:"full_name"`
	}
	if err := c.get(ctx, c.repoURL(""), &out); err != nil {
		return fmt.Errorf("probing bitbucket repository: %w", err)
	}
	slog.Info("bitbucket connection ok", "repository", out.FullName)
	return nil
}

// FetchPullRequests retrieves and assembles all pull requests in the given
// states. An empty state list fetches every state. A PR whose payload fails
// to parse is logged and skipped; it never aborts the batch.
func (c *Client) FetchPullRequests(ctx context.Context, states []model.PRState) ([]model.PullRequest, error) {
	if len(states) == 0 {
		states = []model.PRState{model.PRStateOpen, model.PRStateMerged, model.PRStateDeclined, model.PRStateSuperseded}
	}

	q := url.Values{}
	for _, s := range states {
		q.Add("state", string(s))
	}

	values, err := c.fetchAll(ctx, c.repoURL("/pullrequests?"+q.Encode()))
	if err != nil {
		return nil, fmt.Errorf("listing pull requests: %w", err)
	}

	prs := make([]model.PullRequest, 0, len(values))
	for _, raw := range values {
		var payload prPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			slog.Error("failed to decode pull request payload, skipping", "error", err)
			continue
		}

		pr, err := c.assemble(ctx, payload)
		if err != nil {
			slog.Error("failed to assemble pull request, skipping", "pr", payload.ID, "error", err)
			continue
		}
		prs = append(prs, pr)
	}

	return prs, nil
}

// fetchDetail re-fetches one PR to obtain the participants and reviewers
// omitted from paginated list responses.
func (c *Client) fetchDetail(ctx context.Context, id int) (prPayload, error) {
	var payload prPayload
	err := c.get(ctx, c.repoURL(fmt.Sprintf("/pullrequests/%d", id)), &payload)
	return payload, err
}

// fetchComments lists a PR's comments, including each comment's attachments.
func (c *Client) fetchComments(ctx context.Context, prID int) ([]commentPayload, map[int][]model.Attachment, error) {
	values, err := c.fetchAll(ctx, c.repoURL(fmt.Sprintf("/pullrequests/%d/comments", prID)))
	if err != nil {
		return nil, nil, err
	}

	var comments []commentPayload
	attachments := map[int][]model.Attachment{}
	for _, raw := range values {
		var payload commentPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			slog.Error("failed to decode comment payload, skipping", "pr", prID, "error", err)
			continue
		}
		comments = append(comments, payload)

		atts, err := c.fetchCommentAttachments(ctx, prID, payload.ID)
		if err != nil {
			slog.Error("failed to list comment attachments", "pr", prID, "comment", payload.ID, "error", err)
			continue
		}
		if len(atts) > 0 {
			attachments[payload.ID] = atts
		}
	}
	return comments, attachments, nil
}

// fetchCommentAttachments lists one comment's attachments. A 404 means the
// comment simply has none.
func (c *Client) fetchCommentAttachments(ctx context.Context, prID, commentID int) ([]model.Attachment, error) {
	values, err := c.fetchAll(ctx, c.repoURL(fmt.Sprintf("/pullrequests/%d/comments/%d/attachments", prID, commentID)))
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	var atts []model.Attachment
	for _, raw := range values {
		var payload attachmentPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			slog.Error("failed to decode attachment payload, skipping", "comment", commentID, "error", err)
			continue
		}
		atts = append(atts, model.Attachment{
			Name: payload.Name,
			URL:  payload.Links.Self.Href,
		})
	}
	return atts, nil
}

// fetchCommits lists a PR's commit hashes. Some PRs (notably declined ones
// with deleted branches) have none; that is not an error.
func (c *Client) fetchCommits(ctx context.Context, prID int) ([]string, error) {
	values, err := c.fetchAll(ctx, c.repoURL(fmt.Sprintf("/pullrequests/%d/commits", prID)))
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	hashes := make([]string, 0, len(values))
	for _, raw := range values {
		var payload commitPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			slog.Error("failed to decode commit payload, skipping", "pr", prID, "error", err)
			continue
		}
		hashes = append(hashes, payload.Hash)
	}
	return hashes, nil
}

// fetchTasks lists a PR's tasks.
func (c *Client) fetchTasks(ctx context.Context, prID int) ([]taskPayload, error) {
	values, err := c.fetchAll(ctx, c.repoURL(fmt.Sprintf("/pullrequests/%d/tasks", prID)))
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	var tasks []taskPayload
	for _, raw := range values {
		var payload taskPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			slog.Error("failed to decode task payload, skipping", "pr", prID, "error", err)
			continue
		}
		tasks = append(tasks, payload)
	}
	return tasks, nil
}

// Download fetches raw bytes from a source URL. Host-relative URLs are
// resolved against the source host.
func (c *Client) Download(ctx context.Context, rawURL string) ([]byte, string, error) {
	if strings.HasPrefix(rawURL, "/") {
		rawURL = c.host + rawURL
	}

	var (
		data        []byte
		contentType string
	)
	err := c.invoker.Do(ctx, "bitbucket download "+rawURL, func() error {
		if err := c.ensureToken(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return retry.Permanent(fmt.Errorf("creating request: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+c.token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("downloading %s: %w", rawURL, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%s: %w", rawURL, driven.ErrNotFound)
		case resp.StatusCode == http.StatusPaymentRequired:
			return fmt.Errorf("%s: %w", rawURL, driven.ErrPlanRestricted)
		case resp.StatusCode != http.StatusOK:
			return fmt.Errorf("download failed (status %d)", resp.StatusCode)
		}

		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading download body: %w", err)
		}
		contentType = resp.Header.Get("Content-Type")
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return data, contentType, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, driven.ErrNotFound)
}
