// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/minillm/internal/model"
	"github.com/jeranaias/minillm/internal/ui/styles"
	"github.com/jeranaias/minillm/internal/util"
)

// View renders the current screen.
func (m Model) View() string {
	switch m.Screen() {
	case ScreenLogin:
		return m.renderLogin()
	case ScreenChat:
		return m.renderChat()
	default:
		return m.renderLoading()
	}
}

// =============================================================================
// LOADING
// =============================================================================

func (m Model) renderLoading() string {
	line := m.spinner.View() + " Connecting to " + m.app.Config().Backend.URL + "..."
	return m.center(line)
}

// =============================================================================
// LOGIN
// =============================================================================

func (m Model) renderLogin() string {
	t := m.theme
	var b strings.Builder

	b.WriteString(t.Title.Render("Mini LLM"))
	b.WriteString("\n\n")

	if m.login == nil {
		b.WriteString("Sign in with your GitHub account to start chatting.\n\n")
		b.WriteString(t.Hint.Render("Press enter to get a login link."))
	} else {
		b.WriteString("Open this link in your browser to sign in:\n\n")
		b.WriteString(t.Link.Render(m.login.AuthURL))
		b.WriteString("\n\n")
		b.WriteString(m.spinner.View() + " Waiting for the redirect to " + m.login.CallbackURL)
	}

	if m.notice != "" {
		b.WriteString("\n\n")
		b.WriteString(t.ErrorText.Render(m.notice))
	}

	box := t.LoginBox
	if m.width > 0 {
		box = box.MaxWidth(m.width)
	}
	return m.center(box.Render(b.String())) + "\n" + m.help.ShortHelpView(m.keys.LoginHelp())
}

// =============================================================================
// CHAT
// =============================================================================

func (m Model) renderChat() string {
	parts := []string{
		m.renderHeader(),
		m.viewport.View(),
		m.renderUsage(),
		m.renderInput(),
		m.help.ShortHelpView(m.keys.ChatHelp()),
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// renderHeader shows the brand, the username and, when set, the avatar URL.
func (m Model) renderHeader() string {
	t := m.theme
	brand := t.HeaderBrand.Render("minillm")

	var who string
	if u := m.snap.User; u != nil {
		budget := max(m.width/3, 8)
		who = t.HeaderUser.Render(util.TruncateWidth(u.Username, budget))
		if u.HasAvatar() {
			who += " " + t.HeaderMuted.Render(util.TruncateWidth(u.AvatarURL, budget))
		}
	}

	line := brand
	if who != "" {
		line += t.HeaderMuted.Render("  ·  ") + who
	}
	if m.width > 0 {
		return t.Header.Width(m.width).MaxWidth(m.width).Render(line)
	}
	return t.Header.Render(line)
}

// renderUsage shows the mirrored counters once a snapshot exists.
func (m Model) renderUsage() string {
	if m.conv == nil {
		return ""
	}
	u := m.conv.Snapshot().Usage
	if u == nil {
		return ""
	}
	color := styles.UsageColor(u.RequestsToday, u.LimitPerDay)
	if c := styles.UsageColor(u.RequestsLastMinute, u.LimitPerMinute); c != styles.TextMuted {
		color = c
	}
	return m.theme.UsageBar.Foreground(color).Render(u.String())
}

func (m Model) renderInput() string {
	style := m.theme.InputContainer
	if m.submitting() {
		style = m.theme.InputDisabled
	}
	if m.width > 2 {
		style = style.Width(m.width - 2)
	}
	return style.Render(m.input.View())
}

// renderMessages renders the conversation log for the viewport.
func (m Model) renderMessages() string {
	if m.conv == nil {
		return ""
	}
	st := m.conv.Snapshot()
	if len(st.Messages) == 0 && !m.submitting() {
		return m.theme.Hint.Render("No messages yet. Type a prompt below and press enter.")
	}

	blocks := make([]string, 0, len(st.Messages)+1)
	for _, msg := range st.Messages {
		blocks = append(blocks, m.renderMessage(msg))
	}
	if m.submitting() {
		blocks = append(blocks, m.spinner.View()+" "+m.theme.Meta.Render("Generating..."))
	}
	return strings.Join(blocks, "\n\n")
}

func (m Model) renderMessage(msg model.Message) string {
	t := m.theme
	width := max(m.width-4, 20)

	switch msg := msg.(type) {
	case model.UserMessage:
		return t.UserLabel.Render(msg.Role().DisplayName()) + "\n" +
			t.UserBubble.MaxWidth(width).Render(msg.Text)

	case model.AssistantMessage:
		body := msg.Text
		if m.md != nil {
			body = m.md.Render(body)
		}
		out := t.AssistantLabel.Render(msg.Role().DisplayName()) + "\n" + t.AssistantBody.Render(body)
		if secs, ok := msg.InferenceTime(); ok && m.showInference {
			out += "\n" + t.Meta.Render(fmt.Sprintf("Generated in %s", util.FormatSeconds(secs)))
		}
		return out

	case model.ErrorMessage:
		return t.ErrorLabel.Render(msg.Role().DisplayName()) + "\n" +
			t.ErrorBubble.MaxWidth(width).Render(msg.Text)
	}
	return ""
}

func (m Model) center(s string) string {
	if m.width == 0 || m.height == 0 {
		return s
	}
	return lipgloss.Place(m.width, m.height-helpHeight, lipgloss.Center, lipgloss.Center, s)
}
