// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/minillm/internal/app"
	"github.com/jeranaias/minillm/internal/authflow"
	"github.com/jeranaias/minillm/internal/conversation"
	"github.com/jeranaias/minillm/internal/router"
	"github.com/jeranaias/minillm/internal/session"
	"github.com/jeranaias/minillm/internal/ui/styles"
)

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case startedMsg:
		cmd := m.applySession(msg.snap)
		m.route = m.app.Router.Current()
		m.refreshViewport()
		return m, cmd

	case session.ChangedMsg:
		cmd := m.applySession(msg.Snapshot)
		m.refreshViewport()
		return m, tea.Batch(session.WaitCmd(m.sessions), cmd)

	case router.NavigatedMsg:
		// Concurrent navigations can be delivered out of order; the router
		// holds the latest.
		m.route = m.app.Router.Current()
		return m, router.WaitCmd(m.routes)

	case conversation.ResultMsg:
		m.input.Focus()
		m.refreshViewport()
		m.viewport.GotoBottom()
		return m, textinput.Blink

	case conversation.UsageRefreshedMsg:
		return m, nil

	case loginStartedMsg:
		if msg.err != nil {
			m.notice = "Could not start login: " + msg.err.Error()
			return m, nil
		}
		m.login = msg.login
		m.notice = ""
		return m, msg.login.WaitCmd(m.ctx)

	case app.LoginDoneMsg:
		m.login = nil
		m.notice = loginNotice(msg)
		return m, nil

	case logoutDoneMsg:
		if msg.err != nil {
			m.notice = "Logged out, but the stored token could not be removed: " + msg.err.Error()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.submitting() {
			m.refreshViewport()
		}
		return m, cmd
	}
	return m, nil
}

// applySession records snap unless a newer one was already applied, and
// starts or drops the conversation to match.
func (m *Model) applySession(snap session.Snapshot) tea.Cmd {
	if snap.Seq < m.snap.Seq {
		return nil
	}
	prev := m.snap.State
	m.snap = snap

	switch snap.State {
	case session.StateEstablished:
		if m.conv != nil && snap.User != nil && snap.User.ID == m.convUser {
			return nil
		}
		conv, err := m.app.NewConversation()
		if err != nil {
			return nil
		}
		m.conv = conv
		if snap.User != nil {
			m.convUser = snap.User.ID
		}
		m.notice = ""
		m.input.Reset()
		m.input.Focus()
		return conv.RefreshUsageCmd(m.ctx)

	case session.StateAnonymous:
		m.conv = nil
		m.convUser = ""
		m.input.Reset()
		if prev == session.StateEstablished && snap.Err != nil {
			m.notice = "Your session has expired. Please log in again."
		}
	}
	return nil
}

func loginNotice(msg app.LoginDoneMsg) string {
	switch {
	case errors.Is(msg.Err, authflow.ErrListenerClosed):
		return "Login canceled."
	case errors.Is(msg.Err, context.DeadlineExceeded):
		return "Login timed out."
	case errors.Is(msg.Err, authflow.ErrMissingToken):
		return "Login failed: the redirect carried no token."
	case msg.Err != nil:
		return "Login failed: " + msg.Err.Error()
	case !msg.Result.Established():
		return "Login failed: the token was not accepted."
	default:
		return ""
	}
}

// =============================================================================
// KEYS
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		m.Close()
		return m, tea.Quit
	}

	switch m.Screen() {
	case ScreenLogin:
		return m.handleLoginKey(msg)
	case ScreenChat:
		return m.handleChatKey(msg)
	}
	return m, nil
}

func (m Model) handleLoginKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case m.login != nil && key.Matches(msg, m.keys.Cancel):
		m.login.Cancel()
		return m, nil
	case m.login == nil && key.Matches(msg, m.keys.Login):
		a, ctx := m.app, m.ctx
		m.notice = "Contacting the backend..."
		return m, func() tea.Msg {
			l, err := a.BeginLogin(ctx)
			return loginStartedMsg{login: l, err: err}
		}
	}
	return m, nil
}

func (m Model) handleChatKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Logout):
		a := m.app
		return m, func() tea.Msg { return logoutDoneMsg{err: a.Logout()} }

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil
	}

	// The input is disabled while a generation is in flight.
	if m.conv == nil || m.submitting() {
		return m, nil
	}

	if key.Matches(msg, m.keys.Submit) {
		sub, err := m.conv.Begin(m.input.Value())
		if err != nil {
			return m, nil
		}
		m.input.Reset()
		m.input.Blur()
		m.refreshViewport()
		m.viewport.GotoBottom()
		return m, tea.Batch(sub.Cmd(m.ctx), m.spinner.Tick)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.conv.SetDraft(m.input.Value())
	return m, cmd
}

// =============================================================================
// LAYOUT
// =============================================================================

const (
	headerHeight = 1
	usageHeight  = 1
	inputHeight  = 3
	helpHeight   = 1
)

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height
	m.theme.SetSize(m.width, m.height)

	vh := m.height - headerHeight - usageHeight - inputHeight - helpHeight
	if vh < 1 {
		vh = 1
	}
	m.viewport.Width = max(m.width, 1)
	m.viewport.Height = vh

	// border (2) + padding (2) + prompt (2)
	m.input.Width = max(m.width-6, 10)
	m.help.Width = m.width

	wrap := min(m.wordWrap, m.width-4)
	if m.md != nil && wrap != m.md.Width() {
		m.md = styles.NewMarkdown(m.app.Config().UI.Theme, wrap)
	}

	m.refreshViewport()
	return m, nil
}

func (m *Model) refreshViewport() {
	m.viewport.SetContent(m.renderMessages())
}
