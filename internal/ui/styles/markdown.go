// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// Markdown renders assistant text for the terminal. A nil *Markdown, or one
// whose renderer failed to build, returns text unchanged.
type Markdown struct {
	renderer *glamour.TermRenderer
	width    int
}

// NewMarkdown builds a renderer for mode (ThemeDark, ThemeLight or
// ThemeAuto) wrapping at width columns.
func NewMarkdown(mode string, width int) *Markdown {
	if width < 20 {
		width = 20
	}

	var style glamour.TermRendererOption
	switch mode {
	case ThemeDark:
		style = glamour.WithStandardStyle("dark")
	case ThemeLight:
		style = glamour.WithStandardStyle("light")
	default:
		style = glamour.WithAutoStyle()
	}

	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
	if err != nil {
		return &Markdown{width: width}
	}
	return &Markdown{renderer: r, width: width}
}

// Width returns the wrap width.
func (m *Markdown) Width() int {
	if m == nil {
		return 0
	}
	return m.width
}

// Render returns text as styled terminal output, trimmed of the blank
// margin glamour adds.
func (m *Markdown) Render(text string) string {
	if m == nil || m.renderer == nil {
		return text
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(out, "\n")
}
