// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package token holds the single persisted bearer token.
//
// Presence of a token means "attempt authenticated requests"; absence means
// the client is unauthenticated. The token is opaque and never expires on the
// client side: it stays valid until the backend rejects it.
package token

import (
	"errors"
	"log"
	"strings"

	"github.com/jeranaias/minillm/internal/storage"
)

// Key is the storage key of the bearer token.
const Key = "token"

// ErrEmptyToken is returned by Set for an empty or blank token.
var ErrEmptyToken = errors.New("token: empty token")

// Store is the persisted slot holding at most one bearer token.
//
// Every write is an unconditional set or delete with no read-modify-write,
// so concurrent writers resolve as last-writer-wins.
type Store struct {
	backend storage.Backend
	logger  *log.Logger
}

// NewStore wraps a storage backend.
func NewStore(backend storage.Backend) *Store {
	return &Store{backend: backend, logger: log.Default()}
}

// WithLogger sets the logger used for storage failures.
func (s *Store) WithLogger(logger *log.Logger) *Store {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Set persists tok, replacing any previous token.
func (s *Store) Set(tok string) error {
	if strings.TrimSpace(tok) == "" {
		return ErrEmptyToken
	}
	if err := s.backend.Set(Key, tok); err != nil {
		return err
	}
	s.logger.Printf("TOKEN_STORED | length=%d", len(tok))
	return nil
}

// Get returns the current token. An unreadable store counts as no token.
func (s *Store) Get() (string, bool) {
	tok, err := s.backend.Get(Key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Printf("TOKEN_READ_FAILED | err=%v", err)
		}
		return "", false
	}
	if tok == "" {
		return "", false
	}
	return tok, true
}

// Present reports whether a token is stored.
func (s *Store) Present() bool {
	_, ok := s.Get()
	return ok
}

// Clear removes the token. Clearing an empty store succeeds.
func (s *Store) Clear() error {
	if err := s.backend.Delete(Key); err != nil {
		return err
	}
	s.logger.Printf("TOKEN_CLEARED")
	return nil
}

// Path returns the file backing the store, or "" for in-memory storage.
func (s *Store) Path() string {
	return s.backend.Path()
}
