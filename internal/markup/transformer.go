// Package markup converts source-dialect markup (Bitbucket flavored) into
// destination-dialect markdown (GitHub flavored). Conversion is pure text
// rewriting; no I/O happens here.
package markup

import (
	"fmt"
	"regexp"
)

// Multi-line macro patterns are non-greedy: an opening delimiter with no
// closing delimiter never matches, so an unterminated macro span passes
// through unchanged instead of consuming to end of document.
var (
	namedMention = regexp.MustCompile(`@\{([a-zA-Z0-9_-]+)\}`)
	colorSpan    = regexp.MustCompile(`\{color:[^}]+\}([^{]+)\{color\}`)
	panelMacro   = regexp.MustCompile(`(?s)\{panel(?::title=([^}]+))?\}(.*?)\{panel\}`)
	infoMacro    = regexp.MustCompile(`(?s)\{info\}(.*?)\{info\}`)
	tipMacro     = regexp.MustCompile(`(?s)\{tip\}(.*?)\{tip\}`)
	noteMacro    = regexp.MustCompile(`(?s)\{note\}(.*?)\{note\}`)
	warningMacro = regexp.MustCompile(`(?s)\{warning\}(.*?)\{warning\}`)
	codeMacro    = regexp.MustCompile(`(?s)\{code(?::([^}]+))?\}(.*?)\{code\}`)
	quoteMacro   = regexp.MustCompile(`(?s)\{quote\}(.*?)\{quote\}`)
	anchorMacro  = regexp.MustCompile(`\{anchor:([^}]+)\}`)
	noformat     = regexp.MustCompile(`(?s)\{noformat\}(.*?)\{noformat\}`)
	styleAttrs   = regexp.MustCompile(`\{:[^}]+\}`)
)

// Transformer rewrites source markup into destination markdown. The only
// state is a conversion counter used for diagnostics.
type Transformer struct {
	conversions int
}

// New creates a Transformer.
func New() *Transformer {
	return &Transformer{}
}

// Conversions returns the number of individual rewrites performed so far.
func (t *Transformer) Conversions() int {
	return t.conversions
}

// Transform converts source-dialect text to destination markdown. Opaque-id
// mention tokens (@{digits:uuid}) are deliberately left untouched; the
// migration engine resolves those against the comment author index.
func (t *Transformer) Transform(text string) string {
	if text == "" {
		return ""
	}

	out := t.sub(namedMention, text, func(m []string) string {
		return "@" + m[1]
	})

	out = t.sub(colorSpan, out, func(m []string) string {
		return "**" + m[1] + "**"
	})

	out = t.sub(panelMacro, out, func(m []string) string {
		title := m[1]
		if title == "" {
			title = "Note"
		}
		return fmt.Sprintf("### %s\n> %s", title, m[2])
	})

	out = t.admonition(infoMacro, out, "ℹ️", "Info")
	out = t.admonition(tipMacro, out, "\U0001f4a1", "Tip")
	out = t.admonition(noteMacro, out, "\U0001f4dd", "Note")
	out = t.admonition(warningMacro, out, "⚠️", "Warning")

	out = t.sub(codeMacro, out, func(m []string) string {
		return fmt.Sprintf("```%s\n%s\n```", m[1], m[2])
	})

	out = t.sub(quoteMacro, out, func(m []string) string {
		return "> " + m[1]
	})

	out = t.sub(anchorMacro, out, func(m []string) string {
		return fmt.Sprintf(`<a id="%s"></a>`, m[1])
	})

	out = t.sub(noformat, out, func(m []string) string {
		return "```\n" + m[1] + "\n```"
	})

	// Trailing style attributes ({: data-layout='center' } and friends)
	// have no destination equivalent and would render as visible garbage.
	out = t.sub(styleAttrs, out, func([]string) string {
		return ""
	})

	return out
}

// sub applies one pattern rewrite, counting each replacement.
func (t *Transformer) sub(re *regexp.Regexp, text string, repl func([]string) string) string {
	return re.ReplaceAllStringFunc(text, func(match string) string {
		t.conversions++
		return repl(re.FindStringSubmatch(match))
	})
}

// admonition rewrites an open/close macro pair into a labelled block quote.
func (t *Transformer) admonition(re *regexp.Regexp, text, emoji, label string) string {
	return t.sub(re, text, func(m []string) string {
		return fmt.Sprintf("> %s **%s:** %s", emoji, label, m[1])
	})
}
