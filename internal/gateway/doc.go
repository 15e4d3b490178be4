// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gateway is the single choke point for every request minillm sends
// to the backend.
//
// Gateway is an http.RoundTripper built from a chain of middleware:
//   - RequestID: tags each request with an X-Request-ID (uuid)
//   - Logging: logs method, path, status, duration; never headers or bodies
//   - Pace: optional client-side spacing of requests (x/time/rate)
//   - Bearer: attaches "Authorization: Bearer <token>" when a token is stored
//   - Unauthorized: turns HTTP 401 into an *AuthorizationError
//
// On a 401 the registered UnauthorizedHandler runs synchronously before the
// error is returned, so by the time a caller sees ErrUnauthorized the session
// has already been invalidated. Callers must drop the response.
//
// # Usage
//
//	gw := gateway.New(tokens).
//	    WithUnauthorizedHandler(func(e *gateway.AuthorizationError) { ... }).
//	    WithRateLimit(2)
//	client := gw.Client(30 * time.Second)
package gateway
