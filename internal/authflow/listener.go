// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package authflow

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net"
	"net/http"
	"sync"
	"time"
)

// Default loopback endpoint. The backend's frontend_url defaults to
// http://localhost:3000 and it redirects to <frontend_url>/auth/callback.
const (
	DefaultCallbackAddr = "127.0.0.1:3000"
	DefaultCallbackPath = "/auth/callback"
)

// ErrListenerClosed is returned by Wait when the listener stops before a
// landing arrives.
var ErrListenerClosed = errors.New("callback listener closed")

var landingPage = template.Must(template.New("landing").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>minillm</title>
<style>body{font-family:sans-serif;background:#111827;color:#f9fafb;display:flex;align-items:center;justify-content:center;height:100vh;margin:0}</style>
</head><body><div>
<h1>{{.Title}}</h1>
<p>{{.Body}}</p>
</div></body></html>
`))

type outcome struct {
	result Result
	err    error
}

// Listener is a one-shot loopback HTTP server for the OAuth redirect.
type Listener struct {
	addr   string
	path   string
	flow   *Flow
	logger *log.Logger

	mu      sync.Mutex
	ln      net.Listener
	server  *http.Server
	handled bool

	done   chan outcome
	closed chan struct{}
	once   sync.Once
}

// NewListener creates a listener for addr and path. Empty values use the
// defaults.
func NewListener(addr, path string, flow *Flow) *Listener {
	if addr == "" {
		addr = DefaultCallbackAddr
	}
	if path == "" {
		path = DefaultCallbackPath
	}
	return &Listener{
		addr:   addr,
		path:   path,
		flow:   flow,
		logger: log.Default(),
		done:   make(chan outcome, 1),
		closed: make(chan struct{}),
	}
}

// WithLogger sets the logger for listener events.
func (l *Listener) WithLogger(logger *log.Logger) *Listener {
	if logger != nil {
		l.logger = logger
	}
	return l
}

// Start binds the address and begins serving.
func (l *Listener) Start() error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", l.addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(l.path, l.handleLanding)

	server := &http.Server{
		Handler:           chain(recovery(l.logger), securityHeaders(), logging(l.logger))(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	l.mu.Lock()
	l.ln = ln
	l.server = server
	l.mu.Unlock()

	l.logger.Printf("CALLBACK_LISTEN | addr=%s path=%s", ln.Addr(), l.path)
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Printf("CALLBACK_SERVE_ERROR | err=%v", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (l *Listener) Addr() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln != nil {
		return l.ln.Addr().String()
	}
	return l.addr
}

// URL returns the callback URL the backend must redirect to.
func (l *Listener) URL() string {
	return "http://" + l.Addr() + l.path
}

// Wait blocks until a landing is handled or ctx ends, then shuts down.
func (l *Listener) Wait(ctx context.Context) (Result, error) {
	defer l.Close()
	select {
	case o := <-l.done:
		return o.result, o.err
	case <-l.closed:
		return Result{}, ErrListenerClosed
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Close stops the server. A pending Wait returns ErrListenerClosed.
func (l *Listener) Close() error {
	l.once.Do(func() { close(l.closed) })

	l.mu.Lock()
	server := l.server
	l.server = nil
	l.mu.Unlock()

	if server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

func (l *Listener) handleLanding(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	l.mu.Lock()
	already := l.handled
	l.handled = true
	l.mu.Unlock()

	if already {
		l.render(w, http.StatusGone, "Already signed in", "This link was already used. You can close this tab.")
		return
	}

	// The browser may go away; the session work must still finish.
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	result, err := l.flow.HandleCallback(ctx, r.URL)
	l.done <- outcome{result: result, err: err}

	switch {
	case errors.Is(err, ErrMissingToken):
		l.render(w, http.StatusBadRequest, "Login failed", "No token was received. Return to minillm and try again.")
	case err != nil, !result.Established():
		l.render(w, http.StatusUnauthorized, "Login failed", "The session could not be established. Return to minillm and try again.")
	default:
		l.render(w, http.StatusOK, "Signed in", "You are signed in as "+result.Session.User.Username+". You can close this tab.")
	}
}

func (l *Listener) render(w http.ResponseWriter, status int, title, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := landingPage.Execute(w, struct{ Title, Body string }{title, body}); err != nil {
		l.logger.Printf("CALLBACK_RENDER_ERROR | err=%v", err)
	}
}
