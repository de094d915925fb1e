// Package assets moves embedded images and comment attachments from the
// source system into the destination repository, rewriting references.
package assets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/ericfisherdev/prmigrate/internal/domain/port/driven"
)

var (
	markdownImage = regexp.MustCompile(`!\[[^\]]*\]\(([^)]+)\)`)
	htmlImage     = regexp.MustCompile(`<img[^>]+src=["']([^"']+)["']`)
)

// imageExtensions routes attachments to the image path when the content
// type is inconclusive. The heuristic (content-type substring OR filename
// extension) mirrors what the upstream API makes observable; there is no
// stronger signal.
var imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp"}

// Relocator downloads source-hosted assets and uploads them to a
// deterministic destination path namespaced by PR number. Successful
// relocations are cached by source URL for the Relocator's lifetime, so
// repeated references cost one transfer.
type Relocator struct {
	source     driven.SourceClient
	dest       driven.DestWriter
	sourceHost string
	cache      map[string]string
}

// New creates a Relocator. sourceHost filters discovered references: only
// URLs on that host (or host-relative ones) are relocated.
func New(source driven.SourceClient, dest driven.DestWriter, sourceHost string) *Relocator {
	return &Relocator{
		source:     source,
		dest:       dest,
		sourceHost: sourceHost,
		cache:      map[string]string{},
	}
}

// DiscoverURLs returns the source-hosted asset references embedded in text,
// in order of appearance: markdown image syntax first, then HTML img tags.
func (r *Relocator) DiscoverURLs(text string) []string {
	var urls []string
	for _, m := range markdownImage.FindAllStringSubmatch(text, -1) {
		urls = append(urls, m[1])
	}
	for _, m := range htmlImage.FindAllStringSubmatch(text, -1) {
		urls = append(urls, m[1])
	}

	var kept []string
	for _, u := range urls {
		if strings.Contains(u, r.sourceHost) || strings.HasPrefix(u, "/") {
			kept = append(kept, u)
		}
	}
	return kept
}

// RelocateText relocates every discovered asset in text and rewrites its
// reference to the destination URL. A failed asset keeps its original
// reference; failures never abort the remaining assets.
func (r *Relocator) RelocateText(ctx context.Context, text string, prNumber int) string {
	urls := r.DiscoverURLs(text)
	if len(urls) == 0 {
		return text
	}

	slog.Info("relocating embedded assets", "count", len(urls), "pr", prNumber)

	updated := text
	for _, srcURL := range urls {
		destURL, ok := r.relocate(ctx, srcURL, prNumber)
		if !ok {
			slog.Warn("asset relocation failed, keeping original reference", "url", srcURL)
			continue
		}
		updated = strings.ReplaceAll(updated, srcURL, destURL)
	}
	return updated
}

// RelocateAttachment transfers one comment attachment and returns its
// destination URL. Images and other files land under different prefixes.
func (r *Relocator) RelocateAttachment(ctx context.Context, srcURL, filename string, prNumber int) (string, bool) {
	if destURL, ok := r.cache[srcURL]; ok {
		return destURL, true
	}

	data, contentType, err := r.source.Download(ctx, srcURL)
	if err != nil {
		logDownloadFailure(srcURL, err)
		return "", false
	}

	prefix := "migrated-attachments"
	if isImage(contentType, filename) {
		prefix = "migrated-images"
	}

	destPath := fmt.Sprintf("%s/pr-%d/%s", prefix, prNumber, sanitizeFilename(filename))
	destURL, err := r.dest.UploadContent(ctx, destPath, data)
	if err != nil {
		slog.Error("failed to upload attachment", "path", destPath, "error", err)
		return "", false
	}

	r.cache[srcURL] = destURL
	slog.Info("attachment relocated", "name", filename, "dest", destPath)
	return destURL, true
}

// relocate transfers one embedded image, going through the cache first.
func (r *Relocator) relocate(ctx context.Context, srcURL string, prNumber int) (string, bool) {
	if destURL, ok := r.cache[srcURL]; ok {
		slog.Debug("asset already relocated", "url", srcURL)
		return destURL, true
	}

	data, _, err := r.source.Download(ctx, srcURL)
	if err != nil {
		logDownloadFailure(srcURL, err)
		return "", false
	}

	filename := filenameFromURL(srcURL)
	if filename == "" {
		filename = fmt.Sprintf("image_%d.png", prNumber)
	}

	destPath := fmt.Sprintf("migrated-images/pr-%d/%s", prNumber, filename)
	destURL, err := r.dest.UploadContent(ctx, destPath, data)
	if err != nil {
		slog.Error("failed to upload asset", "path", destPath, "error", err)
		return "", false
	}

	r.cache[srcURL] = destURL
	return destURL, true
}

// logDownloadFailure distinguishes the plan-restricted soft failure, which
// may still render from the source if it stays reachable, from hard errors.
func logDownloadFailure(srcURL string, err error) {
	if errors.Is(err, driven.ErrPlanRestricted) {
		slog.Warn("asset restricted by source plan, keeping original reference", "url", srcURL)
		return
	}
	slog.Error("failed to download asset", "url", srcURL, "error", err)
}

// filenameFromURL derives a storage filename from the URL path.
func filenameFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return sanitizeFilename(path.Base(parsed.Path))
}

// sanitizeFilename percent-decodes the name and replaces spaces with
// underscores to satisfy destination storage naming constraints.
func sanitizeFilename(name string) string {
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	name = strings.ReplaceAll(name, " ", "_")
	if name == "." || name == "/" {
		return ""
	}
	return name
}

// isImage applies the attachment routing heuristic.
func isImage(contentType, filename string) bool {
	if strings.Contains(contentType, "image") {
		return true
	}
	lower := strings.ToLower(filename)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
