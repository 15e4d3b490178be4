// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/minillm/internal/authflow"
)

// Login is a sign-in in progress: the callback listener is serving and
// AuthURL is where the user must go.
type Login struct {
	AuthURL     string
	CallbackURL string

	listener *authflow.Listener
	timeout  time.Duration
}

// BeginLogin starts the callback listener and asks the backend for the
// provider's authorization URL.
func (a *App) BeginLogin(ctx context.Context) (*Login, error) {
	l := authflow.NewListener(a.cfg.Auth.CallbackAddr, a.cfg.Auth.CallbackPath, a.Flow).
		WithLogger(a.logger)
	if err := l.Start(); err != nil {
		return nil, err
	}

	authURL, err := a.API.AuthURL(ctx)
	if err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to get login URL: %w", err)
	}

	a.logger.Printf("LOGIN_STARTED | callback=%s", l.URL())
	return &Login{
		AuthURL:     authURL,
		CallbackURL: l.URL(),
		listener:    l,
		timeout:     time.Duration(a.cfg.Auth.LoginTimeoutSecs) * time.Second,
	}, nil
}

// Wait blocks until the redirect lands, the login times out, ctx ends or
// Cancel is called. The listener is shut down on return.
func (l *Login) Wait(ctx context.Context) (authflow.Result, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	return l.listener.Wait(ctx)
}

// Cancel abandons the login.
func (l *Login) Cancel() {
	l.listener.Close()
}

// LoginDoneMsg reports the end of a login.
type LoginDoneMsg struct {
	Result authflow.Result
	Err    error
}

// WaitCmd waits for the landing on the command goroutine.
func (l *Login) WaitCmd(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		res, err := l.Wait(ctx)
		return LoginDoneMsg{Result: res, Err: err}
	}
}
