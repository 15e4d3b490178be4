// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jeranaias/minillm/internal/api"
	"github.com/jeranaias/minillm/internal/authflow"
	"github.com/jeranaias/minillm/internal/config"
	"github.com/jeranaias/minillm/internal/conversation"
	"github.com/jeranaias/minillm/internal/gateway"
	"github.com/jeranaias/minillm/internal/router"
	"github.com/jeranaias/minillm/internal/session"
	"github.com/jeranaias/minillm/internal/storage"
	"github.com/jeranaias/minillm/internal/token"
)

// Version is set at build time.
var Version = "dev"

// ErrNotAuthenticated is returned for operations that need a session.
var ErrNotAuthenticated = errors.New("not logged in")

// watchDebounce coalesces bursts of store writes by other processes.
const watchDebounce = 100 * time.Millisecond

// App holds the wired components.
type App struct {
	cfg    *config.Config
	logger *log.Logger

	backend storage.Backend
	watcher *storage.Watcher

	Tokens   *token.Store
	Gateway  *gateway.Gateway
	API      *api.Client
	Sessions *session.Manager
	Router   *router.Router
	Flow     *authflow.Flow

	// generate sends without a client timeout; the controller bounds it.
	generate *api.Client
}

// New wires an App from cfg. A nil logger uses log.Default().
func New(cfg *config.Config, logger *log.Logger) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = log.Default()
	}

	path, err := cfg.StoragePath()
	if err != nil {
		return nil, err
	}
	backend, err := storage.Open(storage.Kind(cfg.Storage.Backend), path)
	if err != nil {
		return nil, fmt.Errorf("failed to open token store: %w", err)
	}

	a := &App{cfg: cfg, logger: logger, backend: backend}
	a.Tokens = token.NewStore(backend).WithLogger(logger)

	ua := cfg.Backend.UserAgent
	if ua == "" {
		ua = "minillm/" + Version
	}
	a.Gateway = gateway.New(a.Tokens).
		WithLogger(logger).
		WithRateLimit(cfg.Backend.RateLimitPerSec).
		WithUserAgent(ua).
		WithUnauthorizedHandler(a.handleUnauthorized)

	requestTimeout := time.Duration(cfg.Backend.RequestTimeoutSecs) * time.Second
	a.API = api.NewClient(cfg.Backend.URL, a.Gateway.Client(requestTimeout)).
		WithMaxTokens(cfg.Backend.MaxTokens)
	a.generate = api.NewClient(cfg.Backend.URL, a.Gateway.Client(0)).
		WithMaxTokens(cfg.Backend.MaxTokens)

	a.Sessions = session.NewManager(a.Tokens, a.API).WithLogger(logger)
	a.Router = router.New(func() bool {
		return a.Sessions.State() == session.StateEstablished
	}).WithLogger(logger)
	a.Flow = authflow.NewFlow(a.Sessions, a.Router).WithLogger(logger)

	return a, nil
}

// Config returns the configuration the App was built from.
func (a *App) Config() *config.Config {
	return a.cfg
}

// handleUnauthorized is the one reaction to an authorization failure: the
// session ends (clearing the token) and the router returns to login.
func (a *App) handleUnauthorized(e *gateway.AuthorizationError) {
	if err := a.Sessions.Invalidate("unauthorized"); err != nil {
		a.logger.Printf("AUTH_FAILURE_CLEAR_FAILED | err=%v", err)
	}
	a.Router.Navigate(router.RouteLogin)
}

// Start resolves the session, routes to the matching screen and, when
// configured, begins observing the store for changes by other processes.
func (a *App) Start(ctx context.Context) session.Snapshot {
	snap := a.Sessions.Start(ctx)
	a.Router.Navigate(router.RouteChat)

	if a.cfg.Storage.Watch && a.backend.Path() != "" && a.watcher == nil {
		w, err := storage.Watch(a.backend.Path(), watchDebounce, a.resync)
		if err != nil {
			a.logger.Printf("STORAGE_WATCH_DISABLED | err=%v", err)
		} else {
			a.watcher = w
		}
	}
	return snap
}

// resync reacts to an external store change.
func (a *App) resync() {
	ctx, cancel := context.WithTimeout(context.Background(), a.requestTimeout())
	defer cancel()
	a.Sessions.Resync(ctx)
	a.Router.Navigate(a.Router.Current())
}

func (a *App) requestTimeout() time.Duration {
	if a.cfg.Backend.RequestTimeoutSecs > 0 {
		return time.Duration(a.cfg.Backend.RequestTimeoutSecs) * time.Second
	}
	return 30 * time.Second
}

// Logout ends the session and returns to login.
func (a *App) Logout() error {
	err := a.Sessions.Logout()
	a.Router.Navigate(router.RouteLogin)
	return err
}

// NewConversation creates a controller for the established session, seeded
// with the usage reported at resolution.
func (a *App) NewConversation() (*conversation.Controller, error) {
	snap := a.Sessions.Snapshot()
	if snap.State != session.StateEstablished || snap.User == nil {
		return nil, ErrNotAuthenticated
	}
	usage := snap.User.Usage
	return conversation.New(a.generate, a.API).
		WithLogger(a.logger).
		WithTimeout(time.Duration(a.cfg.Backend.GenerateTimeoutSecs) * time.Second).
		WithMaxTokens(a.cfg.Backend.MaxTokens).
		WithUsage(&usage), nil
}

// Health reports the backend's liveness.
func (a *App) Health(ctx context.Context) (*api.Health, error) {
	return a.API.Health(ctx)
}

// StoreDescription names the token store for status output.
func (a *App) StoreDescription() string {
	if p := a.backend.Path(); p != "" {
		return a.cfg.Storage.Backend + " (" + p + ")"
	}
	return a.cfg.Storage.Backend
}

// Close stops the watcher and releases the store.
func (a *App) Close() error {
	if a.watcher != nil {
		a.watcher.Close()
		a.watcher = nil
	}
	return a.backend.Close()
}
