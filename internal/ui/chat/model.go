// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/minillm/internal/app"
	"github.com/jeranaias/minillm/internal/conversation"
	"github.com/jeranaias/minillm/internal/model"
	"github.com/jeranaias/minillm/internal/router"
	"github.com/jeranaias/minillm/internal/session"
	"github.com/jeranaias/minillm/internal/ui/styles"
)

// =============================================================================
// SCREENS
// =============================================================================

// Screen is what the program currently shows.
type Screen int

const (
	ScreenLoading Screen = iota
	ScreenLogin
	ScreenChat
)

// String returns the screen name.
func (s Screen) String() string {
	switch s {
	case ScreenLogin:
		return "login"
	case ScreenChat:
		return "chat"
	default:
		return "loading"
	}
}

// screenFor maps session state and route to a screen. Nothing but the
// loading screen is shown before the session settles.
func screenFor(state session.State, route router.Route) Screen {
	switch {
	case !state.Settled():
		return ScreenLoading
	case state == session.StateEstablished && route == router.RouteChat:
		return ScreenChat
	case state == session.StateAnonymous || route == router.RouteLogin:
		return ScreenLogin
	default:
		return ScreenLoading
	}
}

// =============================================================================
// MESSAGES
// =============================================================================

type startedMsg struct {
	snap session.Snapshot
}

type loginStartedMsg struct {
	login *app.Login
	err   error
}

type logoutDoneMsg struct {
	err error
}

// =============================================================================
// MODEL
// =============================================================================

// Model is the Bubble Tea model for minillm.
type Model struct {
	app   *app.App
	ctx   context.Context
	theme *styles.Theme
	md    *styles.Markdown
	keys  KeyMap
	help  help.Model

	width  int
	height int

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	sessions     <-chan session.Snapshot
	stopSessions func()
	routes       <-chan router.Decision
	stopRoutes   func()

	snap  session.Snapshot
	route router.Route

	conv          *conversation.Controller
	convUser      model.UserID
	login         *app.Login
	notice        string
	showInference bool
	wordWrap      int
}

// New creates the model. The session and router subscriptions start here so
// no transition made by Init is missed.
func New(ctx context.Context, a *app.App, theme *styles.Theme) Model {
	cfg := a.Config()

	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask something..."
	ti.CharLimit = 8192
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.Spinner

	var md *styles.Markdown
	if cfg.UI.RenderMarkdown {
		md = styles.NewMarkdown(cfg.UI.Theme, cfg.UI.WordWrap)
	}

	sessions, stopSessions := a.Sessions.Channel(8)
	routes, stopRoutes := a.Router.Channel(8)

	return Model{
		app:           a,
		ctx:           ctx,
		theme:         theme,
		md:            md,
		keys:          DefaultKeyMap(),
		help:          help.New(),
		viewport:      viewport.New(80, 20),
		input:         ti,
		spinner:       sp,
		sessions:      sessions,
		stopSessions:  stopSessions,
		routes:        routes,
		stopRoutes:    stopRoutes,
		showInference: cfg.UI.ShowInferenceTime,
		wordWrap:      cfg.UI.WordWrap,
	}
}

// Init starts session resolution and the subscriptions.
func (m Model) Init() tea.Cmd {
	a, ctx := m.app, m.ctx
	return tea.Batch(
		m.spinner.Tick,
		textinput.Blink,
		session.WaitCmd(m.sessions),
		router.WaitCmd(m.routes),
		func() tea.Msg { return startedMsg{snap: a.Start(ctx)} },
	)
}

// Screen returns the current screen.
func (m Model) Screen() Screen {
	return screenFor(m.snap.State, m.route)
}

// Conversation returns the active conversation, or nil.
func (m Model) Conversation() *conversation.Controller {
	return m.conv
}

// Close releases the subscriptions and any login in progress.
func (m Model) Close() {
	m.stopSessions()
	m.stopRoutes()
	if m.login != nil {
		m.login.Cancel()
	}
}

// submitting reports whether a generation is in flight.
func (m Model) submitting() bool {
	return m.conv != nil && m.conv.Status() == conversation.StatusSubmitting
}
