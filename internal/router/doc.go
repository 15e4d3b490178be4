// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package router decides which screen minillm shows.
//
// Three routes exist:
//
//   - RouteLogin ("/"): unauthenticated entry point
//   - RouteCallback ("/auth/callback"): OAuth redirect landing
//   - RouteChat ("/chat"): the conversation, authenticated only
//
// Guards run on every navigation. An established session asking for "/"
// is sent to "/chat"; anything else asking for "/chat" is sent to "/".
//
// # Usage
//
//	r := router.New(func() bool { return sessions.State() == session.StateEstablished })
//	d := r.Navigate(router.RouteChat)
//	if d.Redirected() {
//	    log.Printf("redirected: %s", d.Reason)
//	}
package router
