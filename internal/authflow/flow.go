// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package authflow consumes the OAuth redirect that carries a bearer token.
//
// The backend finishes the provider handshake and redirects the browser to
// <frontend>/auth/callback?token=<jwt>. In minillm that landing hits a
// loopback Listener, which hands the URL to Flow.HandleCallback.
package authflow

import (
	"context"
	"errors"
	"log"
	"net/url"
	"strings"

	"github.com/jeranaias/minillm/internal/router"
	"github.com/jeranaias/minillm/internal/session"
)

// TokenParam is the query parameter carrying the bearer token.
const TokenParam = "token"

// ErrMissingToken is returned for a landing without a token parameter.
var ErrMissingToken = errors.New("callback carried no token")

// Sessions persists a token and re-runs session resolution.
type Sessions interface {
	Adopt(ctx context.Context, tok string) (session.Snapshot, error)
}

// Navigator moves the application to a route.
type Navigator interface {
	Navigate(to router.Route) router.Decision
}

// Result describes a handled landing.
type Result struct {
	Session  session.Snapshot
	Decision router.Decision
}

// Established reports whether the landing produced a session.
func (r Result) Established() bool {
	return r.Session.State == session.StateEstablished
}

// Flow handles redirect landings.
type Flow struct {
	sessions Sessions
	nav      Navigator
	logger   *log.Logger
}

// NewFlow creates a flow.
func NewFlow(sessions Sessions, nav Navigator) *Flow {
	return &Flow{sessions: sessions, nav: nav, logger: log.Default()}
}

// WithLogger sets the logger for callback events.
func (f *Flow) WithLogger(logger *log.Logger) *Flow {
	if logger != nil {
		f.logger = logger
	}
	return f
}

// HandleCallback processes one landing.
//
// With a token: persist it, re-establish the session, go to the chat route
// (whose guard sends a failed resolution back to login). Without one:
// persist nothing, go to the login route and return ErrMissingToken.
func (f *Flow) HandleCallback(ctx context.Context, u *url.URL) (Result, error) {
	tok := ""
	if u != nil {
		tok = strings.TrimSpace(u.Query().Get(TokenParam))
	}

	if tok == "" {
		f.logger.Printf("AUTH_CALLBACK | result=missing_token")
		return Result{Decision: f.nav.Navigate(router.RouteLogin)}, ErrMissingToken
	}

	snap, err := f.sessions.Adopt(ctx, tok)
	if err != nil {
		f.logger.Printf("AUTH_CALLBACK | result=store_failed err=%v", err)
		return Result{Session: snap, Decision: f.nav.Navigate(router.RouteLogin)}, err
	}

	d := f.nav.Navigate(router.RouteChat)
	f.logger.Printf("AUTH_CALLBACK | result=%s route=%s", snap.State, d.Route)
	return Result{Session: snap, Decision: d}, nil
}
