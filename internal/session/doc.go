// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session tracks whether minillm has an authenticated user.
//
// # States
//
//	Unknown -> Resolving -> Established(user) | Anonymous
//
// Start resolves the stored token through /api/auth/me. Without a token the
// manager goes straight to Anonymous. Any failure lands in Anonymous and
// clears the token. Logout and Invalidate are the only operations that
// clear the stored token.
//
// A resolution that finishes after a newer Logout, Invalidate, Adopt or
// Reestablish is stale and discarded.
//
// # Usage
//
//	mgr := session.NewManager(tokens, apiClient)
//	snap := mgr.Start(ctx)
//	if snap.State == session.StateEstablished {
//	    fmt.Println(snap.User.Username)
//	}
//
// Bubble Tea programs receive transitions as ChangedMsg:
//
//	ch, stop := mgr.Channel(8)
//	defer stop()
//	return session.WaitCmd(ch)
package session
