// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api is the typed client for the Mini LLM backend.
//
// All calls go through the *http.Client it is given, which in minillm is
// the gateway client, so bearer injection and 401 handling happen below
// this package. A 401 surfaces here as gateway.ErrUnauthorized; every other
// non-2xx status becomes an *Error carrying the server's detail text.
//
// # Endpoints
//
//   - GET  /api/auth/github  -> AuthURL
//   - GET  /api/auth/me      -> CurrentUser
//   - POST /api/llm/generate -> Generate
//   - GET  /health           -> Health
package api
