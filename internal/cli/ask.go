// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - Single prompt command.
//
// Command: ask
// Short:   Send one prompt and print the response
//
// Examples:
//   minillm ask "Explain goroutines"
//   minillm ask -n 200 "Write a limerick"
//   cat notes.txt | minillm ask --raw
//
// Flags:
//   -n, --max-tokens N  Override backend.max_tokens
//   --raw               Print the response as-is, even on a terminal
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/jeranaias/minillm/internal/config"
	"github.com/jeranaias/minillm/internal/gateway"
	"github.com/jeranaias/minillm/internal/model"
	"github.com/jeranaias/minillm/internal/ui/styles"
	"github.com/jeranaias/minillm/internal/util"
)

// MaxStdinPrompt caps a prompt read from a pipe.
const MaxStdinPrompt = 64 * 1024

// ErrNoPrompt is returned when ask has nothing to send.
var ErrNoPrompt = errors.New("ask requires a prompt")

// ErrSessionExpired is returned when the backend rejects the token mid-command.
var ErrSessionExpired = errors.New("session expired; run 'minillm login'")

// HandleAsk sends a single prompt. A failed generation is returned as an
// error carrying the same text the chat screen would show.
func HandleAsk(ctx context.Context, cfg *config.Config, args Args, env Env) error {
	prompt, err := askPrompt(args, env)
	if err != nil {
		return err
	}

	a, err := openApp(cfg, env)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := requireSession(ctx, a); err != nil {
		return err
	}
	conv, err := a.NewConversation()
	if err != nil {
		return err
	}
	if args.MaxTokens > 0 {
		conv.WithMaxTokens(args.MaxTokens)
	}

	genCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	msg, err := conv.Submit(genCtx, prompt)
	if err != nil {
		return generateError(msg, err)
	}

	reply, ok := msg.(model.AssistantMessage)
	if !ok {
		return fmt.Errorf("unexpected %s message", msg.Role())
	}
	displayResponse(env, cfg, args.Raw, reply.Text)
	if secs, ok := reply.InferenceTime(); ok && cfg.UI.ShowInferenceTime {
		fmt.Fprintln(env.Stderr, DimStyle.Render("Generated in "+util.FormatSeconds(secs)))
	}
	return nil
}

// askPrompt takes the prompt from the arguments, or from stdin when it is
// piped.
func askPrompt(args Args, env Env) (string, error) {
	if !util.IsBlank(args.Prompt) {
		return args.Prompt, nil
	}
	if env.StdinTTY || env.Stdin == nil {
		return "", ErrNoPrompt
	}
	data, err := io.ReadAll(io.LimitReader(env.Stdin, MaxStdinPrompt+1))
	if err != nil {
		return "", fmt.Errorf("failed to read prompt from stdin: %w", err)
	}
	if len(data) > MaxStdinPrompt {
		return "", fmt.Errorf("prompt on stdin exceeds %d bytes", MaxStdinPrompt)
	}
	if util.IsBlank(string(data)) {
		return "", ErrNoPrompt
	}
	return string(data), nil
}

// generateError turns a failed submission into the command's error.
func generateError(msg model.Message, err error) error {
	if gateway.IsUnauthorized(err) {
		return ErrSessionExpired
	}
	if msg != nil {
		return errors.New(msg.Content())
	}
	return err
}

// displayResponse renders markdown on a terminal and prints plain text
// otherwise.
func displayResponse(env Env, cfg *config.Config, raw bool, text string) {
	if raw || !env.StdoutTTY || !cfg.UI.RenderMarkdown {
		fmt.Fprintln(env.Stdout, text)
		return
	}
	md := styles.NewMarkdown(cfg.UI.Theme, min(cfg.UI.WordWrap, GetTerminalWidth()-2))
	fmt.Fprintln(env.Stdout, md.Render(text))
}
