// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package app is the composition root. It builds the token store, request
// gateway, backend client, session manager, router and callback flow from a
// config.Config, and installs the single handler that reacts to an
// authorization failure from any backend call.
package app
