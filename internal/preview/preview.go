// Package preview renders dry-run previews of migrated pull request bodies
// as standalone sanitized HTML files, so transformed content can be reviewed
// before anything is written to the destination.
package preview

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	mdRenderer    goldmark.Markdown
	htmlSanitizer *bluemonday.Policy
)

func init() {
	mdRenderer = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)

	htmlSanitizer = bluemonday.UGCPolicy()
}

var pageTemplate = template.Must(template.New("preview").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; max-width: 900px; margin: 2rem auto; padding: 0 1rem; }
blockquote { border-left: 3px solid #ccc; margin-left: 0; padding-left: 1rem; color: #555; }
pre { background: #f6f8fa; padding: 1rem; overflow-x: auto; }
code { background: #f6f8fa; padding: 0.1rem 0.3rem; }
</style>
</head>
<body>
<h1>{{.Heading}}</h1>
<p><em>{{.Subtitle}}</em></p>
<hr>
{{.Body}}
</body>
</html>
`))

// Writer renders preview pages into a directory, one file per PR.
type Writer struct {
	dir string
}

// NewWriter creates the preview directory if needed.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create preview directory %s: %w", dir, err)
	}
	return &Writer{dir: dir}, nil
}

// RenderMarkdown converts a markdown string to sanitized HTML. Returns the
// sanitized input verbatim when conversion fails.
func RenderMarkdown(src string) string {
	if src == "" {
		return ""
	}

	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(src), &buf); err != nil {
		return htmlSanitizer.Sanitize(src)
	}

	return htmlSanitizer.Sanitize(buf.String())
}

// WritePR renders the transformed body of one PR to pr-<id>.html and
// returns the written path.
func (w *Writer) WritePR(prID int, title, body string) (string, error) {
	data := struct {
		Title    string
		Heading  string
		Subtitle string
		Body     template.HTML
	}{
		Title:    fmt.Sprintf("PR #%d preview", prID),
		Heading:  title,
		Subtitle: fmt.Sprintf("Dry-run preview of pull request #%d", prID),
		Body:     template.HTML(RenderMarkdown(body)),
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render preview for PR #%d: %w", prID, err)
	}

	path := filepath.Join(w.dir, fmt.Sprintf("pr-%d.html", prID))
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write preview for PR #%d: %w", prID, err)
	}

	slog.Info("wrote dry-run preview", "pr", prID, "path", path)
	return path, nil
}
