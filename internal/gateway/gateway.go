// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Gateway is the RoundTripper every backend call goes through.
type Gateway struct {
	tokens    TokenSource
	base      http.RoundTripper
	logger    *log.Logger
	limiter   *rate.Limiter
	userAgent string

	mu             sync.RWMutex
	onUnauthorized UnauthorizedHandler

	once  sync.Once
	chain http.RoundTripper
}

// New creates a gateway reading bearer tokens from tokens.
func New(tokens TokenSource) *Gateway {
	return &Gateway{
		tokens: tokens,
		base:   http.DefaultTransport,
		logger: log.Default(),
	}
}

// WithTransport sets the transport requests are finally sent on.
func (g *Gateway) WithTransport(rt http.RoundTripper) *Gateway {
	if rt != nil {
		g.base = rt
	}
	return g
}

// WithLogger sets the request logger.
func (g *Gateway) WithLogger(logger *log.Logger) *Gateway {
	if logger != nil {
		g.logger = logger
	}
	return g
}

// WithRateLimit spaces requests at perSecond. Zero or less disables pacing.
func (g *Gateway) WithRateLimit(perSecond float64) *Gateway {
	if perSecond > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	} else {
		g.limiter = nil
	}
	return g
}

// WithUserAgent sets the User-Agent header sent on every request.
func (g *Gateway) WithUserAgent(ua string) *Gateway {
	g.userAgent = ua
	return g
}

// WithUnauthorizedHandler registers the handler run on every 401.
func (g *Gateway) WithUnauthorizedHandler(h UnauthorizedHandler) *Gateway {
	g.SetUnauthorizedHandler(h)
	return g
}

// SetUnauthorizedHandler replaces the 401 handler. It may be called after
// the gateway is in use.
func (g *Gateway) SetUnauthorizedHandler(h UnauthorizedHandler) {
	g.mu.Lock()
	g.onUnauthorized = h
	g.mu.Unlock()
}

func (g *Gateway) handleUnauthorized(e *AuthorizationError) {
	g.mu.RLock()
	h := g.onUnauthorized
	g.mu.RUnlock()

	g.logger.Printf("AUTH_FAILURE | method=%s path=%s request_id=%s", e.Method, e.Path, e.RequestID)
	if h != nil {
		h(e)
	}
}

// RoundTrip implements http.RoundTripper.
func (g *Gateway) RoundTrip(req *http.Request) (*http.Response, error) {
	g.once.Do(func() {
		g.chain = Chain(g.base,
			RequestID(),
			g.userAgentMiddleware(),
			Logging(g.logger),
			Pace(g.limiter),
			Bearer(g.tokens),
			Unauthorized(g.handleUnauthorized),
		)
	})
	return g.chain.RoundTrip(req)
}

// Client returns an http.Client sending through the gateway. A zero timeout
// means no client-level timeout.
func (g *Gateway) Client(timeout time.Duration) *http.Client {
	return &http.Client{Transport: g, Timeout: timeout}
}

func (g *Gateway) userAgentMiddleware() Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		if g.userAgent == "" {
			return next
		}
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			req = req.Clone(req.Context())
			req.Header.Set("User-Agent", g.userAgent)
			return next.RoundTrip(req)
		})
	}
}
