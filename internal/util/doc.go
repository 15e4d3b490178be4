// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the minillm packages.
//
// # Key Functions
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe string truncation with ellipsis
//   - TruncateWidth: display-width truncation (go-runewidth)
//   - IsBlank: whitespace-only check used by the submit guard
//   - FormatSeconds: inference time formatting
//
// File Operations:
//   - AtomicWriteFile: crash-safe file writing with fsync
//
// # Usage
//
//	display := util.TruncateWidth(username, 20)
//	err := util.AtomicWriteFile(path, data, 0600)
package util
