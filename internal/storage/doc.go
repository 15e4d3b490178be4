// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the durable key/value slots minillm keeps on disk.
//
// A Backend survives process restarts and is shared by every minillm process
// run by the same user. Three implementations are provided:
//
//   - File: a single JSON object written atomically with 0600 permissions
//   - SQLite: a kv table in a WAL-mode database (modernc.org/sqlite, no cgo)
//   - Memory: process-local, for tests and storage.backend = "memory"
//
// # Usage
//
//	backend, err := storage.Open(storage.KindFile, "~/.minillm/state.json")
//	err = backend.Set("token", tok)
//	tok, err := backend.Get("token") // storage.ErrNotFound when absent
//
// # Watching
//
// Watch reports writes made to a backend's file by other processes, so a
// logout in one terminal can be observed by another:
//
//	w, err := storage.Watch(backend.Path(), 100*time.Millisecond, onChange)
//	defer w.Close()
package storage
