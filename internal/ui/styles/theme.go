// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme names accepted by NewTheme.
const (
	ThemeAuto  = "auto"
	ThemeDark  = "dark"
	ThemeLight = "light"
)

// Theme holds all the styled components for the application.
type Theme struct {
	IsDark       bool
	HasTrueColor bool
	ColorProfile termenv.Profile

	Width  int
	Height int

	// ==========================================================================
	// CHROME
	// ==========================================================================

	Header      lipgloss.Style
	HeaderBrand lipgloss.Style
	HeaderUser  lipgloss.Style
	HeaderMuted lipgloss.Style
	UsageBar    lipgloss.Style
	StatusBar   lipgloss.Style
	Divider     lipgloss.Style

	// ==========================================================================
	// MESSAGES
	// ==========================================================================

	UserLabel      lipgloss.Style
	UserBubble     lipgloss.Style
	AssistantLabel lipgloss.Style
	AssistantBody  lipgloss.Style
	ErrorLabel     lipgloss.Style
	ErrorBubble    lipgloss.Style
	Meta           lipgloss.Style

	// ==========================================================================
	// INPUT AND SCREENS
	// ==========================================================================

	InputContainer lipgloss.Style
	InputDisabled  lipgloss.Style
	Spinner        lipgloss.Style
	LoginBox       lipgloss.Style
	Title          lipgloss.Style
	Link           lipgloss.Style
	Hint           lipgloss.Style
	ErrorText      lipgloss.Style
	SuccessText    lipgloss.Style
}

// NewTheme creates a theme. mode is ThemeDark, ThemeLight or ThemeAuto;
// anything else is treated as auto.
func NewTheme(mode string) *Theme {
	profile := termenv.ColorProfile()

	var isDark bool
	switch mode {
	case ThemeDark:
		isDark = true
	case ThemeLight:
		isDark = false
	default:
		isDark = termenv.HasDarkBackground()
	}
	lipgloss.SetHasDarkBackground(isDark)

	t := &Theme{
		IsDark:       isDark,
		HasTrueColor: profile == termenv.TrueColor,
		ColorProfile: profile,
	}
	t.initStyles()
	return t
}

func (t *Theme) initStyles() {
	t.Header = lipgloss.NewStyle().
		Background(SurfaceDim).
		Padding(0, 1)
	t.HeaderBrand = lipgloss.NewStyle().Bold(true).Foreground(Cyan)
	t.HeaderUser = lipgloss.NewStyle().Bold(true).Foreground(TextPrimary)
	t.HeaderMuted = lipgloss.NewStyle().Foreground(TextMuted)
	t.UsageBar = lipgloss.NewStyle().Foreground(TextSecondary).Padding(0, 1)
	t.StatusBar = lipgloss.NewStyle().Foreground(TextMuted).Padding(0, 1)
	t.Divider = lipgloss.NewStyle().Foreground(Overlay)

	t.UserLabel = lipgloss.NewStyle().Bold(true).Foreground(Cyan)
	t.UserBubble = lipgloss.NewStyle().
		Foreground(UserBubbleFg).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(UserBubbleBorder).
		Padding(0, 1)
	t.AssistantLabel = lipgloss.NewStyle().Bold(true).Foreground(Purple)
	t.AssistantBody = lipgloss.NewStyle().
		Foreground(AssistantBubbleFg).
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderTop(false).
		BorderRight(false).
		BorderBottom(false).
		BorderForeground(AssistantBubbleBorder).
		PaddingLeft(1)
	t.ErrorLabel = lipgloss.NewStyle().Bold(true).Foreground(Rose)
	t.ErrorBubble = lipgloss.NewStyle().
		Foreground(ErrorBubbleFg).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(ErrorBubbleBorder).
		Padding(0, 1)
	t.Meta = lipgloss.NewStyle().Foreground(TextMuted).Italic(true)

	t.InputContainer = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Purple).
		Padding(0, 1)
	t.InputDisabled = t.InputContainer.BorderForeground(Overlay)
	t.Spinner = lipgloss.NewStyle().Foreground(Purple)
	t.LoginBox = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Cyan).
		Padding(1, 3)
	t.Title = lipgloss.NewStyle().Bold(true).Foreground(Cyan)
	t.Link = lipgloss.NewStyle().Foreground(Cyan).Underline(true)
	t.Hint = lipgloss.NewStyle().Foreground(TextMuted)
	t.ErrorText = lipgloss.NewStyle().Foreground(Rose)
	t.SuccessText = lipgloss.NewStyle().Foreground(Emerald)
}

// SetSize updates the theme dimensions for responsive layouts.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}

// GetLayoutMode returns the current layout mode based on width.
func (t *Theme) GetLayoutMode() LayoutMode {
	if t.Width < 60 {
		return LayoutNarrow
	}
	if t.Width < 100 {
		return LayoutMedium
	}
	return LayoutWide
}

// LayoutMode represents the current responsive layout mode.
type LayoutMode int

const (
	LayoutNarrow LayoutMode = iota // < 60 columns
	LayoutMedium                   // 60-100 columns
	LayoutWide                     // >= 100 columns
)
