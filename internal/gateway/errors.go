// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"errors"
	"fmt"
)

// ErrUnauthorized indicates the backend rejected the credential (HTTP 401).
var ErrUnauthorized = errors.New("unauthorized")

// AuthorizationError describes the request whose credential was rejected.
// It wraps ErrUnauthorized.
type AuthorizationError struct {
	Method    string
	Path      string
	RequestID string
}

// Error implements the error interface.
func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, ErrUnauthorized)
}

// Unwrap returns ErrUnauthorized.
func (e *AuthorizationError) Unwrap() error {
	return ErrUnauthorized
}

// IsUnauthorized reports whether err stems from an authorization failure.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
