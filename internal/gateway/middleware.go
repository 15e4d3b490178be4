// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// HeaderRequestID carries the per-request correlation ID.
const HeaderRequestID = "X-Request-ID"

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

// RoundTrip implements http.RoundTripper.
func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Middleware wraps a RoundTripper.
type Middleware func(http.RoundTripper) http.RoundTripper

// Chain applies middleware so the first one listed sees the request first.
func Chain(base http.RoundTripper, mws ...Middleware) http.RoundTripper {
	rt := base
	for i := len(mws) - 1; i >= 0; i-- {
		rt = mws[i](rt)
	}
	return rt
}

// TokenSource supplies the current bearer token.
type TokenSource interface {
	Get() (string, bool)
}

// UnauthorizedHandler is invoked synchronously for every 401 response.
type UnauthorizedHandler func(*AuthorizationError)

// ============================================================================
// Request ID
// ============================================================================

// RequestID sets X-Request-ID unless the caller already set one.
func RequestID() Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if req.Header.Get(HeaderRequestID) == "" {
				req = req.Clone(req.Context())
				req.Header.Set(HeaderRequestID, uuid.NewString())
			}
			return next.RoundTrip(req)
		})
	}
}

// ============================================================================
// Logging
// ============================================================================

// Logging records each exchange. Headers and bodies are never logged: they
// carry the bearer token and user prompts.
func Logging(logger *log.Logger) Middleware {
	if logger == nil {
		logger = log.Default()
	}
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			start := time.Now()
			resp, err := next.RoundTrip(req)
			duration := time.Since(start)
			id := req.Header.Get(HeaderRequestID)

			switch {
			case err != nil:
				logger.Printf("API_REQUEST | %s %s | error=%v | %v | request_id=%s",
					req.Method, req.URL.Path, err, duration, id)
			default:
				logger.Printf("API_REQUEST | %s %s | %d | %v | request_id=%s",
					req.Method, req.URL.Path, resp.StatusCode, duration, id)
			}
			return resp, err
		})
	}
}

// ============================================================================
// Pacing
// ============================================================================

// Pace waits on limiter before each request. It only spaces requests out;
// quota is enforced by the backend.
func Pace(limiter *rate.Limiter) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		if limiter == nil {
			return next
		}
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if err := limiter.Wait(req.Context()); err != nil {
				return nil, err
			}
			return next.RoundTrip(req)
		})
	}
}

// ============================================================================
// Bearer
// ============================================================================

// Bearer attaches the stored token. Without a token the request goes out
// unauthenticated.
func Bearer(tokens TokenSource) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if tok, ok := tokens.Get(); ok {
				req = req.Clone(req.Context())
				req.Header.Set("Authorization", "Bearer "+tok)
			}
			return next.RoundTrip(req)
		})
	}
}

// ============================================================================
// Unauthorized
// ============================================================================

// Unauthorized intercepts HTTP 401. The response body is discarded, handler
// runs, and an *AuthorizationError is returned in place of the response.
func Unauthorized(handler UnauthorizedHandler) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			resp, err := next.RoundTrip(req)
			if err != nil || resp.StatusCode != http.StatusUnauthorized {
				return resp, err
			}

			io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
			resp.Body.Close()

			authErr := &AuthorizationError{
				Method:    req.Method,
				Path:      req.URL.Path,
				RequestID: req.Header.Get(HeaderRequestID),
			}
			if handler != nil {
				handler(authErr)
			}
			return nil, authErr
		})
	}
}
