// Package render turns exercise markdown into HTML fragments.
package render

import (
	"html/template"

	"gitlab.com/golang-commonmark/markdown"
)

// Renderer converts markdown source to an HTML fragment.
type Renderer interface {
	Render(src string) template.HTML
}

// Markdown renders CommonMark. Raw HTML in the source is escaped, never passed through.
type Markdown struct {
	md *markdown.Markdown
}

// Compile-time interface satisfaction check.
var _ Renderer = (*Markdown)(nil)

// NewMarkdown creates a CommonMark renderer with raw HTML disabled.
func NewMarkdown() *Markdown {
	return &Markdown{
		md: markdown.New(markdown.HTML(false), markdown.XHTMLOutput(false)),
	}
}

// Render returns the HTML for src. Empty input renders to an empty fragment.
func (m *Markdown) Render(src string) template.HTML {
	if src == "" {
		return ""
	}
	// Output is produced by the renderer with raw HTML escaped, so it is safe to mark.
	return template.HTML(m.md.RenderToString([]byte(src)))
}
