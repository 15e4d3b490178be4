// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and the line-mode commands of
// minillm.
//
// # Usage
//
//	cmd, args, err := cli.Parse(os.Args[1:])
//	switch cmd {
//	case cli.CmdAsk:
//	    err = cli.HandleAsk(ctx, cfg, args, env)
//	case cli.CmdChat:
//	    err = cli.HandleChat(ctx, cfg, args, env)
//	// ... other commands
//	}
//
// Handlers write to the streams in Env, so tests drive them with buffers.
// The full-screen TUI lives in internal/ui/chat; this package covers
// login, logout, whoami, ask, chat, config, status and version.
package cli
