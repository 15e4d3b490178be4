// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - Config command handler for minillm.
//
// Command: config [subcommand]
// Short:   View and modify configuration
//
// Subcommands:
//   show (default)      Show all settings
//   get <key>           Print one setting
//   set <key> <value>   Change one setting and save the file
//   path                Print the config file path
//
// Examples:
//   minillm config set backend.url https://llm.example.com
//   minillm config set storage.backend sqlite
//   minillm config get ui.word_wrap
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeranaias/minillm/internal/config"
)

// HandleConfig dispatches the config subcommands. cfg is the effective
// configuration (file plus environment overrides).
func HandleConfig(cfg *config.Config, args Args, env Env) error {
	path, err := configFile(args)
	if err != nil {
		return err
	}

	switch args.Subcommand {
	case "", "show":
		return handleConfigShow(cfg, path, env)
	case "get":
		v, err := cfg.Get(args.ConfigKey)
		if err != nil {
			return err
		}
		fmt.Fprintln(env.Stdout, v)
		return nil
	case "set":
		return handleConfigSet(path, args.ConfigKey, args.ConfigVal, env)
	case "path":
		fmt.Fprintln(env.Stdout, path)
		return nil
	default:
		return fmt.Errorf("%w: unknown config subcommand %q", ErrUsage, args.Subcommand)
	}
}

// configFile is the file config commands read and write.
func configFile(args Args) (string, error) {
	if args.ConfigPath != "" {
		return args.ConfigPath, nil
	}
	return config.ActivePath()
}

func handleConfigShow(cfg *config.Config, path string, env Env) error {
	fmt.Fprintln(env.Stdout, TitleStyle.Render("minillm configuration"))
	fmt.Fprintln(env.Stdout, RenderSeparator(41))

	section := ""
	for _, key := range config.GetAllKeys() {
		head, field, _ := strings.Cut(key, ".")
		if head != section {
			section = head
			fmt.Fprintln(env.Stdout)
			fmt.Fprintln(env.Stdout, "["+section+"]")
		}
		v, err := cfg.Get(key)
		if err != nil {
			return err
		}
		fmt.Fprintf(env.Stdout, "  %s%v\n", LabelStyle.Width(24).Render(field+":"), v)
	}

	fmt.Fprintln(env.Stdout)
	fmt.Fprintln(env.Stdout, RenderSeparator(41))
	fmt.Fprintf(env.Stdout, "Config file: %s\n", path)
	return nil
}

// handleConfigSet edits the file itself so environment overrides in effect
// for this run are not written back.
func handleConfigSet(path, key, value string, env Env) error {
	if key == "" {
		return fmt.Errorf("%w: config set KEY VALUE", ErrUsage)
	}

	cfg, err := loadFile(path)
	if err != nil {
		return err
	}
	if err := cfg.Set(key, value); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.SaveToPath(cfg, path); err != nil {
		return err
	}

	v, _ := cfg.Get(key)
	fmt.Fprintf(env.Stdout, "%s = %v\n", key, v)
	fmt.Fprintln(env.Stdout, DimStyle.Render("Saved to "+path))
	return nil
}

// loadFile reads path over the defaults without environment overrides. A
// missing file yields the defaults.
func loadFile(path string) (*config.Config, error) {
	cfg := config.Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = config.LoadJSON(cfg, path)
	case ".yaml", ".yml":
		err = config.LoadYAML(cfg, path)
	default:
		err = config.LoadTOML(cfg, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	cfg.SetDefaults()
	return cfg, nil
}
