// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/charmbracelet/bubbles/key"
)

// KeyMap defines the keyboard bindings.
type KeyMap struct {
	Submit   key.Binding
	Login    key.Binding
	Cancel   key.Binding
	Logout   key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Quit     key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send"),
		),
		Login: key.NewBinding(
			key.WithKeys("enter", "l"),
			key.WithHelp("enter", "log in with GitHub"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "cancel"),
		),
		Logout: key.NewBinding(
			key.WithKeys("ctrl+l"),
			key.WithHelp("C-l", "log out"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup", "ctrl+u"),
			key.WithHelp("PgUp", "scroll up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown", "ctrl+d"),
			key.WithHelp("PgDn", "scroll down"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "ctrl+q"),
			key.WithHelp("C-c", "quit"),
		),
	}
}

// ChatHelp lists the bindings shown on the chat screen.
func (k KeyMap) ChatHelp() []key.Binding {
	return []key.Binding{k.Submit, k.PageUp, k.PageDown, k.Logout, k.Quit}
}

// LoginHelp lists the bindings shown on the login screen.
func (k KeyMap) LoginHelp() []key.Binding {
	return []key.Binding{k.Login, k.Cancel, k.Quit}
}
