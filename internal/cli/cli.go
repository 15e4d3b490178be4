// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Command-line parsing for minillm.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log"
	"runtime"
	"strings"

	"github.com/spf13/pflag"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdLogin
	CmdLogout
	CmdWhoami
	CmdAsk
	CmdChat
	CmdConfig
	CmdStatus
	CmdVersion
	CmdHelp
)

var commandNames = map[string]Command{
	"tui":     CmdTUI,
	"login":   CmdLogin,
	"logout":  CmdLogout,
	"whoami":  CmdWhoami,
	"ask":     CmdAsk,
	"chat":    CmdChat,
	"config":  CmdConfig,
	"status":  CmdStatus,
	"s":       CmdStatus,
	"version": CmdVersion,
	"help":    CmdHelp,
}

// String returns the command name.
func (c Command) String() string {
	switch c {
	case CmdTUI:
		return "tui"
	case CmdLogin:
		return "login"
	case CmdLogout:
		return "logout"
	case CmdWhoami:
		return "whoami"
	case CmdAsk:
		return "ask"
	case CmdChat:
		return "chat"
	case CmdConfig:
		return "config"
	case CmdStatus:
		return "status"
	case CmdVersion:
		return "version"
	default:
		return "help"
	}
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	ConfigPath string
	Verbose    bool

	// Command-specific
	JSON       bool
	Raw        bool
	MaxTokens  int
	Prompt     string
	Subcommand string
	ConfigKey  string
	ConfigVal  string

	// Rest holds positional arguments after flag parsing.
	Rest []string
}

// ErrUsage marks a command line that could not be understood.
var ErrUsage = errors.New("invalid usage")

const usageText = `minillm - terminal client for the Mini LLM service

Usage:
  minillm                        Start the chat TUI (default)
  minillm login                  Sign in with GitHub
  minillm logout                 Forget the stored token
  minillm whoami [--json]        Show the signed-in user and usage
  minillm ask "prompt"           Send a single prompt
  minillm chat                   Line-mode chat
  minillm config [show|get|set|path]
  minillm status, s              Backend health and session state
  minillm version                Show version

Global flags:
  -c, --config PATH              Use this config file
  -v, --verbose                  Mirror the log to stderr

Ask flags:
  -n, --max-tokens N             Override backend.max_tokens
      --raw                      Print the response without markdown rendering

Examples:
  minillm ask "Write a haiku about tea"
  echo "Summarize this" | minillm ask
  minillm config set backend.url https://llm.example.com
  minillm config get ui.theme

Files:
  ~/.minillm/config.toml         Configuration (MINILLM_HOME overrides the directory)
  ~/.minillm/session.json        Stored session token
  ~/.minillm/minillm.log         Log output

Version: %s
`

// PrintUsage writes the help text.
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, usageText, Version)
}

// PrintVersion writes version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "minillm version %s\n", Version)
	fmt.Fprintf(w, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Build date: %s\n", BuildDate)
	fmt.Fprintf(w, "  Go:         %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// =============================================================================
// PARSING
// =============================================================================

// Parse parses argv (without the program name). Help requests return CmdHelp
// with a nil error.
func Parse(argv []string) (Command, Args, error) {
	var args Args

	global := newFlagSet("minillm", &args)
	global.SetInterspersed(false)
	if err := global.Parse(argv); err != nil {
		if err == pflag.ErrHelp {
			return CmdHelp, args, nil
		}
		return CmdHelp, args, fmt.Errorf("%w: %v", ErrUsage, err)
	}

	remaining := global.Args()
	if len(remaining) == 0 {
		return CmdTUI, args, nil
	}

	name := strings.ToLower(remaining[0])
	cmd, ok := commandNames[name]
	if !ok {
		return CmdHelp, args, fmt.Errorf("%w: unknown command %q", ErrUsage, remaining[0])
	}

	fs := newFlagSet(name, &args)
	switch cmd {
	case CmdAsk:
		fs.IntVarP(&args.MaxTokens, "max-tokens", "n", 0, "max_tokens for this prompt")
		fs.BoolVar(&args.Raw, "raw", false, "print without markdown rendering")
	case CmdWhoami, CmdStatus, CmdVersion:
		fs.BoolVar(&args.JSON, "json", false, "JSON output")
	}
	if err := fs.Parse(remaining[1:]); err != nil {
		if err == pflag.ErrHelp {
			return CmdHelp, args, nil
		}
		return cmd, args, fmt.Errorf("%w: %s: %v", ErrUsage, name, err)
	}
	args.Rest = fs.Args()

	switch cmd {
	case CmdAsk:
		args.Prompt = strings.Join(args.Rest, " ")
		if args.MaxTokens < 0 {
			return cmd, args, fmt.Errorf("%w: --max-tokens must be positive", ErrUsage)
		}
	case CmdConfig:
		if err := parseConfigArgs(&args); err != nil {
			return cmd, args, err
		}
	}
	return cmd, args, nil
}

func newFlagSet(name string, args *Args) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVarP(&args.ConfigPath, "config", "c", args.ConfigPath, "config file")
	fs.BoolVarP(&args.Verbose, "verbose", "v", args.Verbose, "mirror the log to stderr")
	return fs
}

func parseConfigArgs(args *Args) error {
	if len(args.Rest) == 0 {
		args.Subcommand = "show"
		return nil
	}
	args.Subcommand = strings.ToLower(args.Rest[0])
	rest := args.Rest[1:]
	switch args.Subcommand {
	case "show", "path":
		return nil
	case "get":
		if len(rest) != 1 {
			return fmt.Errorf("%w: config get KEY", ErrUsage)
		}
		args.ConfigKey = rest[0]
	case "set":
		if len(rest) < 2 {
			return fmt.Errorf("%w: config set KEY VALUE", ErrUsage)
		}
		args.ConfigKey = rest[0]
		args.ConfigVal = strings.Join(rest[1:], " ")
	default:
		return fmt.Errorf("%w: unknown config subcommand %q", ErrUsage, args.Subcommand)
	}
	return nil
}

// =============================================================================
// ENVIRONMENT
// =============================================================================

// Env is what a command handler reads from and writes to.
type Env struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger *log.Logger

	// StdinTTY and StdoutTTY report whether the streams are terminals.
	StdinTTY  bool
	StdoutTTY bool
}

// HandleVersion prints version information.
func HandleVersion(args Args, env Env) error {
	if args.JSON {
		return NewJSONResponse("version", VersionData{
			Version:   Version,
			GitCommit: GitCommit,
			BuildDate: BuildDate,
			GoVersion: runtime.Version(),
		}).Print(env.Stdout)
	}
	PrintVersion(env.Stdout)
	return nil
}
