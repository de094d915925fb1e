package github

import (
	"context"
	"fmt"
	"net/http"

	gh "github.com/google/go-github/v82/github"
)

// UploadContent writes a file into the destination repository via the
// contents API. When the path already exists, the current blob SHA is
// fetched first and passed back for the optimistic-concurrency update.
// Returns the raw download URL of the stored file.
func (c *Client) UploadContent(ctx context.Context, path string, data []byte) (string, error) {
	var downloadURL string
	err := c.invoker.Do(ctx, "github upload "+path, func() error {
		opts := &gh.RepositoryContentFileOptions{
			Message: gh.Ptr("Add migrated asset: " + path),
			Content: data,
		}

		existing, _, resp, err := c.gh.Repositories.GetContents(ctx, c.owner, c.repo, path, nil)
		switch {
		case err == nil && existing != nil:
			opts.SHA = gh.Ptr(existing.GetSHA())
			opts.Message = gh.Ptr("Update migrated asset: " + path)
		case err != nil && !hasStatus(err, http.StatusNotFound):
			return apiError("checking existing content at "+path, err)
		}
		logRateLimit(resp, "contents.get", 1)

		var result *gh.RepositoryContentResponse
		if opts.SHA != nil {
			result, resp, err = c.gh.Repositories.UpdateFile(ctx, c.owner, c.repo, path, opts)
		} else {
			result, resp, err = c.gh.Repositories.CreateFile(ctx, c.owner, c.repo, path, opts)
		}
		if err != nil {
			return apiError("uploading content to "+path, err)
		}
		logRateLimit(resp, "contents.put", 1)

		downloadURL = result.GetContent().GetDownloadURL()
		if downloadURL == "" {
			return fmt.Errorf("contents API returned no download URL for %s", path)
		}
		return nil
	})
	return downloadURL, err
}
