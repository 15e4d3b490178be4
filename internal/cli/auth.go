// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// auth.go - login, logout and whoami.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/jeranaias/minillm/internal/app"
	"github.com/jeranaias/minillm/internal/authflow"
	"github.com/jeranaias/minillm/internal/config"
	"github.com/jeranaias/minillm/internal/session"
)

// ErrLoginFailed is returned when a login ends without a session.
var ErrLoginFailed = errors.New("login failed")

// openApp wires an App for a one-shot command. Cross-process watching is
// off because the command exits before it would matter.
func openApp(cfg *config.Config, env Env) (*app.App, error) {
	c := cfg.Clone()
	c.Storage.Watch = false
	return app.New(c, env.Logger)
}

// requireSession resolves the stored token and fails unless it names a user.
func requireSession(ctx context.Context, a *app.App) (session.Snapshot, error) {
	snap := a.Sessions.Start(ctx)
	if snap.State == session.StateEstablished && snap.User != nil {
		return snap, nil
	}
	if snap.Err != nil {
		return snap, fmt.Errorf("%w (session check failed: %v); run 'minillm login'", app.ErrNotAuthenticated, snap.Err)
	}
	return snap, fmt.Errorf("%w; run 'minillm login'", app.ErrNotAuthenticated)
}

// =============================================================================
// LOGIN
// =============================================================================

// HandleLogin runs the browser sign-in and waits for the redirect.
func HandleLogin(ctx context.Context, cfg *config.Config, args Args, env Env) error {
	a, err := openApp(cfg, env)
	if err != nil {
		return err
	}
	defer a.Close()

	if snap := a.Sessions.Start(ctx); snap.State == session.StateEstablished {
		fmt.Fprintf(env.Stdout, "Already logged in as %s.\n", snap.User.Username)
		return nil
	}

	login, err := a.BeginLogin(ctx)
	if err != nil {
		return err
	}
	defer login.Cancel()

	fmt.Fprintln(env.Stdout, TitleStyle.Render("Sign in to Mini LLM"))
	fmt.Fprintln(env.Stdout)
	fmt.Fprintln(env.Stdout, "Open this URL in your browser:")
	fmt.Fprintln(env.Stdout, "  "+login.AuthURL)
	fmt.Fprintln(env.Stdout)
	fmt.Fprintln(env.Stdout, DimStyle.Render("Waiting for the redirect to "+login.CallbackURL+" (Ctrl+C to cancel)"))

	waitCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	res, err := login.Wait(waitCtx)
	if err := loginError(res, err); err != nil {
		return err
	}
	fmt.Fprintln(env.Stdout, SuccessStyle.Render("Logged in as "+res.Session.User.Username+"."))
	return nil
}

// loginError maps the end of a login to the error reported to the user.
func loginError(res authflow.Result, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: timed out waiting for the redirect", ErrLoginFailed)
	case errors.Is(err, context.Canceled), errors.Is(err, authflow.ErrListenerClosed):
		return fmt.Errorf("%w: canceled", ErrLoginFailed)
	case errors.Is(err, authflow.ErrMissingToken):
		return fmt.Errorf("%w: the redirect carried no token", ErrLoginFailed)
	case err != nil:
		return fmt.Errorf("%w: %v", ErrLoginFailed, err)
	case !res.Established() || res.Session.User == nil:
		return fmt.Errorf("%w: the token was not accepted", ErrLoginFailed)
	}
	return nil
}

// =============================================================================
// LOGOUT
// =============================================================================

// HandleLogout forgets the stored token. Logging out twice is not an error.
func HandleLogout(ctx context.Context, cfg *config.Config, args Args, env Env) error {
	a, err := openApp(cfg, env)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Logout(); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	fmt.Fprintln(env.Stdout, "Logged out.")
	return nil
}

// =============================================================================
// WHOAMI
// =============================================================================

// HandleWhoami prints the signed-in user and their usage.
func HandleWhoami(ctx context.Context, cfg *config.Config, args Args, env Env) error {
	a, err := openApp(cfg, env)
	if err != nil {
		return err
	}
	defer a.Close()

	if args.JSON {
		return OutputJSON(env.Stdout, "whoami", func() (interface{}, error) {
			snap, err := requireSession(ctx, a)
			if err != nil {
				return nil, err
			}
			u := snap.User
			data := WhoamiData{ID: string(u.ID), Username: u.Username, Usage: u.Usage}
			if u.HasAvatar() {
				avatar := u.AvatarURL
				data.AvatarURL = &avatar
			}
			return data, nil
		})
	}

	snap, err := requireSession(ctx, a)
	if err != nil {
		return err
	}
	u := snap.User
	fmt.Fprintln(env.Stdout, RenderField("User", u.Username))
	fmt.Fprintln(env.Stdout, RenderField("ID", string(u.ID)))
	if u.HasAvatar() {
		fmt.Fprintln(env.Stdout, RenderField("Avatar", u.AvatarURL))
	}
	fmt.Fprintln(env.Stdout, RenderField("Usage", u.Usage.String()))
	return nil
}
