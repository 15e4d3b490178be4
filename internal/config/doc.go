// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for minillm.
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (MINILLM_*)
//   - ~/.minillm/config.toml
//   - ~/.minillm/config.yaml
//   - ~/.minillm/config.json (comments allowed)
//   - Built-in defaults
//
// MINILLM_HOME relocates the whole directory.
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client := api.NewClient(cfg.Backend.URL, nil)
package config
