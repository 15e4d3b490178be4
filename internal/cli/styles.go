// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// styles.go - Shared styling for line-mode commands.
//
// Colors are disabled for non-TTY output and respect NO_COLOR.
package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/minillm/internal/ui/styles"
)

func init() {
	lipgloss.SetColorProfile(colorProfile())
}

var (
	// TitleStyle is used for command titles and headers
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(styles.Cyan)

	// LabelStyle is used for field labels
	LabelStyle = lipgloss.NewStyle().
			Foreground(styles.TextSecondary).
			Width(16)

	// ValueStyle is used for regular values
	ValueStyle = lipgloss.NewStyle().
			Foreground(styles.TextPrimary)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(styles.Emerald).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(styles.Rose).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(styles.Amber)

	// DimStyle is used for secondary information and hints
	DimStyle = lipgloss.NewStyle().
			Foreground(styles.TextMuted)

	promptStyle = lipgloss.NewStyle().
			Foreground(styles.Purple).
			Bold(true)
)

// RenderSeparator renders a horizontal rule of width w (default 40).
func RenderSeparator(w int) string {
	if w <= 0 {
		w = 40
	}
	return DimStyle.Render(strings.Repeat("-", w))
}

// RenderStatus renders a bracketed status indicator.
func RenderStatus(status string) string {
	switch strings.ToLower(status) {
	case "ok", "healthy", "established":
		return SuccessStyle.Render("[OK]")
	case "error", "fail", "unreachable":
		return ErrorStyle.Render("[FAIL]")
	case "warning", "anonymous", "degraded":
		return WarningStyle.Render("[WARN]")
	default:
		return DimStyle.Render("[" + strings.ToUpper(status) + "]")
	}
}

// RenderField renders "label value" with the label padded.
func RenderField(label, value string) string {
	return LabelStyle.Render(label) + ValueStyle.Render(value)
}
