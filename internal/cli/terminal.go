// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// terminal.go - Terminal detection for minillm output modes.
package cli

import (
	"os"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

const (
	// DefaultTerminalWidth is used when stdout is not a terminal.
	DefaultTerminalWidth = 80

	// MinTerminalWidth keeps markdown wrapping readable on narrow panes.
	MinTerminalWidth = 40
)

// IsTTY returns true if stdin is a terminal.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// IsStdoutTTY returns true if stdout is a terminal.
func IsStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// GetTerminalWidth returns the width of stdout, clamped to MinTerminalWidth.
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return DefaultTerminalWidth
	}
	return max(width, MinTerminalWidth)
}

// colorProfile picks the profile for line-mode output. NO_COLOR disables
// color, FORCE_COLOR enables it, otherwise stdout must be a terminal.
func colorProfile() termenv.Profile {
	switch {
	case os.Getenv("NO_COLOR") != "":
		return termenv.Ascii
	case os.Getenv("FORCE_COLOR") != "", IsStdoutTTY():
		return termenv.EnvColorProfile()
	default:
		return termenv.Ascii
	}
}

// DefaultEnv is the process's real terminal.
func DefaultEnv() Env {
	return Env{
		Stdin:     os.Stdin,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
		StdinTTY:  IsTTY(),
		StdoutTTY: IsStdoutTTY(),
	}
}
