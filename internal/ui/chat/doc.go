// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the Bubble Tea program for minillm.
//
// The model shows one of three screens: a loading screen while the session
// resolves, a login screen offering the provider's authorization URL, and the
// chat screen with the conversation, usage bar and input. The screen follows
// the router's current route, gated on the session being settled.
package chat
