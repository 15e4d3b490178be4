// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the minillm TUI.
//
// Colors are Lip Gloss AdaptiveColors, so a single palette serves light and
// dark terminals. NewTheme detects the terminal with termenv unless the
// configured theme forces one side.
package styles
