// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"log"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// ROUTES
// =============================================================================

// Route is an application location.
type Route string

const (
	RouteNone     Route = ""
	RouteLogin    Route = "/"
	RouteCallback Route = "/auth/callback"
	RouteChat     Route = "/chat"
)

// String returns the route path.
func (r Route) String() string {
	if r == RouteNone {
		return "(none)"
	}
	return string(r)
}

// ParseRoute maps a path to a known route. Trailing slashes are ignored.
func ParseRoute(path string) (Route, bool) {
	p := strings.TrimSuffix(path, "/")
	if p == "" {
		return RouteLogin, true
	}
	switch Route(p) {
	case RouteCallback, RouteChat:
		return Route(p), true
	}
	return RouteNone, false
}

// Decision is the outcome of a navigation request.
type Decision struct {
	Requested Route
	Route     Route
	Reason    string
}

// Redirected reports whether a guard changed the destination.
func (d Decision) Redirected() bool {
	return d.Requested != d.Route
}

// =============================================================================
// ROUTER
// =============================================================================

// Router holds the current route.
type Router struct {
	mu          sync.Mutex
	current     Route
	established func() bool
	logger      *log.Logger

	listeners map[int]func(Decision)
	nextID    int
}

// New creates a router. established reports whether a session is
// established; it is consulted on every navigation.
func New(established func() bool) *Router {
	if established == nil {
		established = func() bool { return false }
	}
	return &Router{
		established: established,
		logger:      log.Default(),
		listeners:   make(map[int]func(Decision)),
	}
}

// WithLogger sets the logger for navigation events.
func (r *Router) WithLogger(logger *log.Logger) *Router {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// Resolve applies the guards to to without navigating.
func (r *Router) Resolve(to Route) Decision {
	d := Decision{Requested: to, Route: to}
	authed := r.established()

	switch to {
	case RouteLogin:
		if authed {
			d.Route, d.Reason = RouteChat, "already authenticated"
		}
	case RouteChat:
		if !authed {
			d.Route, d.Reason = RouteLogin, "authentication required"
		}
	case RouteCallback:
	default:
		d.Route, d.Reason = RouteLogin, "unknown route"
		if authed {
			d.Route = RouteChat
		}
	}
	return d
}

// Navigate moves to the guarded destination of to and notifies listeners.
func (r *Router) Navigate(to Route) Decision {
	d := r.Resolve(to)

	r.mu.Lock()
	from := r.current
	r.current = d.Route
	fns := make([]func(Decision), 0, len(r.listeners))
	for _, fn := range r.listeners {
		fns = append(fns, fn)
	}
	r.mu.Unlock()

	if d.Redirected() {
		r.logger.Printf("NAVIGATE | from=%s to=%s requested=%s reason=%q", from, d.Route, d.Requested, d.Reason)
	} else {
		r.logger.Printf("NAVIGATE | from=%s to=%s", from, d.Route)
	}
	for _, fn := range fns {
		fn(d)
	}
	return d
}

// Current returns the current route.
func (r *Router) Current() Route {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// OnNavigate registers fn for every navigation.
func (r *Router) OnNavigate(fn func(Decision)) (unsubscribe func()) {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

// =============================================================================
// BUBBLE TEA INTEGRATION
// =============================================================================

// NavigatedMsg carries a navigation into a Bubble Tea program.
type NavigatedMsg struct {
	Decision Decision
}

// Channel delivers navigations on a buffered channel, dropping the oldest
// pending one when full.
func (r *Router) Channel(buffer int) (<-chan Decision, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Decision, buffer)
	var mu sync.Mutex
	unsubscribe := r.OnNavigate(func(d Decision) {
		mu.Lock()
		defer mu.Unlock()
		for {
			select {
			case ch <- d:
				return
			default:
				select {
				case <-ch:
				default:
				}
			}
		}
	})
	return ch, unsubscribe
}

// WaitCmd waits for the next navigation on ch.
func WaitCmd(ch <-chan Decision) tea.Cmd {
	return func() tea.Msg {
		d, ok := <-ch
		if !ok {
			return nil
		}
		return NavigatedMsg{Decision: d}
	}
}
