// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// minillm is a terminal client for the Mini LLM service.
//
// Running it without arguments opens the chat TUI; see `minillm help` for
// the line-mode commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/minillm/internal/app"
	"github.com/jeranaias/minillm/internal/cli"
	"github.com/jeranaias/minillm/internal/config"
	"github.com/jeranaias/minillm/internal/ui/chat"
	"github.com/jeranaias/minillm/internal/ui/styles"
)

// Version information (set at build time via -ldflags)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	// Sync version info with the packages that report it
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
	app.Version = Version
}

func main() {
	cmd, args, err := cli.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintln(os.Stderr, "Run 'minillm help' for usage.")
		os.Exit(2)
	}

	if err := run(cmd, args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd cli.Command, args cli.Args) error {
	env := cli.DefaultEnv()

	// Commands that need no configuration
	switch cmd {
	case cli.CmdHelp:
		cli.PrintUsage(env.Stdout)
		return nil
	case cli.CmdVersion:
		return cli.HandleVersion(args, env)
	}

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	if cmd == cli.CmdConfig {
		return cli.HandleConfig(cfg, args, env)
	}

	mirror := cmd != cli.CmdTUI && (args.Verbose || cfg.Log.Verbose)
	logFile, err := setupLogging(cfg, mirror)
	if err != nil {
		return err
	}
	defer logFile.Close()
	env.Logger = log.Default()

	ctx := context.Background()
	log.Printf("COMMAND | name=%s version=%s", cmd, Version)

	switch cmd {
	case cli.CmdTUI:
		return runTUI(ctx, cfg)
	case cli.CmdLogin:
		return cli.HandleLogin(ctx, cfg, args, env)
	case cli.CmdLogout:
		return cli.HandleLogout(ctx, cfg, args, env)
	case cli.CmdWhoami:
		return cli.HandleWhoami(ctx, cfg, args, env)
	case cli.CmdAsk:
		return cli.HandleAsk(ctx, cfg, args, env)
	case cli.CmdChat:
		return cli.HandleChat(ctx, cfg, args, env)
	case cli.CmdStatus:
		return cli.HandleStatus(ctx, cfg, args, env)
	default:
		return fmt.Errorf("%w: %s", cli.ErrUsage, cmd)
	}
}

// loadConfig reads --config when given, otherwise the config directory.
func loadConfig(args cli.Args) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if args.ConfigPath != "" {
		cfg, err = config.LoadFromPath(args.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogging sends the standard logger to the log file. The TUI owns the
// terminal, so mirroring to stderr is only offered to line-mode commands.
func setupLogging(cfg *config.Config, mirror bool) (io.Closer, error) {
	path, err := cfg.LogPath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	var out io.Writer = f
	if mirror {
		out = io.MultiWriter(f, os.Stderr)
	}
	log.SetOutput(out)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	return f, nil
}

// runTUI opens the full-screen chat.
func runTUI(ctx context.Context, cfg *config.Config) error {
	a, err := app.New(cfg, log.Default())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := chat.New(ctx, a, styles.NewTheme(cfg.UI.Theme))
	p := tea.NewProgram(m, tea.WithAltScreen())

	final, err := p.Run()
	if fm, ok := final.(chat.Model); ok {
		fm.Close()
	}
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("error running minillm: %w", err)
	}
	return nil
}
