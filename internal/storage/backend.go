// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"fmt"
	"sync"
)

// =============================================================================
// BACKEND INTERFACE
// =============================================================================

// Backend is a durable string key/value store.
//
// Implementations are safe for concurrent use. Delete of a missing key is not
// an error.
type Backend interface {
	// Get returns the value for key, or ErrNotFound.
	Get(key string) (string, error)

	// Set stores value under key, replacing any previous value.
	Set(key, value string) error

	// Delete removes key. Removing a missing key succeeds.
	Delete(key string) error

	// Path returns the file backing the store, or "" when there is none.
	Path() string

	// Close releases resources held by the backend.
	Close() error
}

// Kind names a Backend implementation.
type Kind string

const (
	KindFile   Kind = "file"
	KindSQLite Kind = "sqlite"
	KindMemory Kind = "memory"
)

// Kinds lists every supported backend kind.
func Kinds() []Kind {
	return []Kind{KindFile, KindSQLite, KindMemory}
}

// Open creates the backend of the given kind. path is ignored for KindMemory.
func Open(kind Kind, path string) (Backend, error) {
	switch kind {
	case KindFile, "":
		return NewFile(path)
	case KindSQLite:
		return NewSQLite(path)
	case KindMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, kind)
	}
}

// =============================================================================
// MEMORY BACKEND
// =============================================================================

// Memory is a process-local Backend.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	delete(m.values, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Path() string { return "" }

func (m *Memory) Close() error { return nil }

// =============================================================================
// ERRORS
// =============================================================================

// ErrNotFound is returned by Get when the key has no value.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &StorageError{Message: "key not found"}

// ErrUnknownBackend is returned by Open for an unsupported Kind.
var ErrUnknownBackend = &StorageError{Message: "unknown storage backend"}

// StorageError represents a storage-related error.
// It implements the error interface and can be compared using errors.Is.
type StorageError struct {
	Message string
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing storage errors.
func (e *StorageError) Is(target error) bool {
	t, ok := target.(*StorageError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}
