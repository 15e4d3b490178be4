// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Line-mode chat for minillm.
//
// Command: chat
// Short:   Chat without the full-screen TUI
//
// Interactive Commands (during chat):
//   /help, /h           Show available commands
//   /usage, /u          Refresh and show usage
//   /logout             Log out and exit
//   /quit, /q           Exit chat
//   Ctrl+C              Cancel the current generation
//   Ctrl+D              Exit chat
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/peterh/liner"

	"github.com/jeranaias/minillm/internal/app"
	"github.com/jeranaias/minillm/internal/config"
	"github.com/jeranaias/minillm/internal/conversation"
	"github.com/jeranaias/minillm/internal/gateway"
	"github.com/jeranaias/minillm/internal/model"
	"github.com/jeranaias/minillm/internal/ui/styles"
	"github.com/jeranaias/minillm/internal/util"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides line editing and in-memory history for chat.
type ChatCLI struct {
	line *liner.State
}

// NewChatCLI creates a ChatCLI. History lives only as long as the process.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	return &ChatCLI{line: line}
}

// ReadInput reads one line and records non-blank lines in history.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if !util.IsBlank(input) {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// Close restores the terminal.
func (c *ChatCLI) Close() error {
	return c.line.Close()
}

// =============================================================================
// SESSION
// =============================================================================

// chatSession dispatches REPL lines against one conversation.
type chatSession struct {
	app  *app.App
	conv *conversation.Controller
	out  io.Writer

	md            *styles.Markdown
	showInference bool
}

func newChatSession(a *app.App, conv *conversation.Controller, cfg *config.Config, env Env) *chatSession {
	s := &chatSession{
		app:           a,
		conv:          conv,
		out:           env.Stdout,
		showInference: cfg.UI.ShowInferenceTime,
	}
	if env.StdoutTTY && cfg.UI.RenderMarkdown {
		s.md = styles.NewMarkdown(cfg.UI.Theme, min(cfg.UI.WordWrap, GetTerminalWidth()-2))
	}
	return s
}

// handleLine processes one input line. quit reports that the REPL should end.
func (s *chatSession) handleLine(ctx context.Context, line string) (quit bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}

	switch strings.ToLower(line) {
	case "/quit", "/q", "/exit":
		return true, nil
	case "/help", "/h":
		s.printHelp()
		return false, nil
	case "/usage", "/u":
		s.conv.RefreshUsage(ctx)
		s.printUsage()
		return false, nil
	case "/logout":
		if err := s.app.Logout(); err != nil {
			return true, fmt.Errorf("failed to clear token: %w", err)
		}
		fmt.Fprintln(s.out, "Logged out.")
		return true, nil
	}
	if strings.HasPrefix(line, "/") {
		fmt.Fprintln(s.out, WarningStyle.Render("Unknown command "+line+". Type /help for commands."))
		return false, nil
	}

	msg, err := s.conv.Submit(ctx, line)
	if gateway.IsUnauthorized(err) {
		fmt.Fprintln(s.out, ErrorStyle.Render("Your session has expired. Run 'minillm login' to sign in again."))
		return true, ErrSessionExpired
	}
	if errors.Is(err, conversation.ErrBusy) {
		return false, nil
	}
	if msg != nil {
		s.printMessage(msg)
	}
	return false, nil
}

func (s *chatSession) printMessage(msg model.Message) {
	switch m := msg.(type) {
	case model.AssistantMessage:
		text := m.Text
		if s.md != nil {
			text = s.md.Render(text)
		}
		fmt.Fprintln(s.out, text)
		if secs, ok := m.InferenceTime(); ok && s.showInference {
			fmt.Fprintln(s.out, DimStyle.Render("Generated in "+util.FormatSeconds(secs)))
		}
	case model.ErrorMessage:
		fmt.Fprintln(s.out, ErrorStyle.Render("Error: ")+m.Text)
	case model.UserMessage:
		fmt.Fprintln(s.out, m.Text)
	}
}

func (s *chatSession) printUsage() {
	u := s.conv.Snapshot().Usage
	if u == nil {
		fmt.Fprintln(s.out, DimStyle.Render("No usage reported yet."))
		return
	}
	fmt.Fprintln(s.out, u.String())
}

func (s *chatSession) printHelp() {
	fmt.Fprintln(s.out, "Commands:")
	fmt.Fprintln(s.out, "  /usage, /u    Refresh and show usage")
	fmt.Fprintln(s.out, "  /logout       Log out and exit")
	fmt.Fprintln(s.out, "  /quit, /q     Exit chat")
	fmt.Fprintln(s.out, "  Ctrl+C        Cancel the current generation")
}

// =============================================================================
// REPL
// =============================================================================

// HandleChat runs the line-mode REPL.
func HandleChat(ctx context.Context, cfg *config.Config, args Args, env Env) error {
	a, err := openApp(cfg, env)
	if err != nil {
		return err
	}
	defer a.Close()

	snap, err := requireSession(ctx, a)
	if err != nil {
		return err
	}
	conv, err := a.NewConversation()
	if err != nil {
		return err
	}
	s := newChatSession(a, conv, cfg, env)

	fmt.Fprintln(env.Stdout, TitleStyle.Render("Mini LLM")+DimStyle.Render("  signed in as "+snap.User.Username))
	s.printUsage()
	fmt.Fprintln(env.Stdout, DimStyle.Render("Type /help for commands, /quit to exit."))
	fmt.Fprintln(env.Stdout)

	input := NewChatCLI()
	defer input.Close()

	for {
		line, err := input.ReadInput(promptStyle.Render("you> "))
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Fprintln(env.Stdout)
				return nil
			}
			return err
		}

		genCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
		quit, err := s.handleLine(genCtx, line)
		stop()
		if quit || err != nil {
			return err
		}
	}
}
