// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// BACKEND CONFORMANCE TESTS
// =============================================================================

func backends(t *testing.T) map[Kind]Backend {
	t.Helper()
	dir := t.TempDir()

	file, err := Open(KindFile, filepath.Join(dir, "state.json"))
	require.NoError(t, err)
	db, err := Open(KindSQLite, filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	mem, err := Open(KindMemory, "")
	require.NoError(t, err)

	t.Cleanup(func() {
		file.Close()
		db.Close()
		mem.Close()
	})
	return map[Kind]Backend{KindFile: file, KindSQLite: db, KindMemory: mem}
}

func TestBackend_GetMissing(t *testing.T) {
	for kind, b := range backends(t) {
		t.Run(string(kind), func(t *testing.T) {
			_, err := b.Get("token")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestBackend_SetGetOverwrite(t *testing.T) {
	for kind, b := range backends(t) {
		t.Run(string(kind), func(t *testing.T) {
			require.NoError(t, b.Set("token", "abc123"))
			v, err := b.Get("token")
			require.NoError(t, err)
			assert.Equal(t, "abc123", v)

			require.NoError(t, b.Set("token", "def456"))
			v, err = b.Get("token")
			require.NoError(t, err)
			assert.Equal(t, "def456", v)
		})
	}
}

func TestBackend_DeleteIdempotent(t *testing.T) {
	for kind, b := range backends(t) {
		t.Run(string(kind), func(t *testing.T) {
			require.NoError(t, b.Delete("token"))
			require.NoError(t, b.Set("token", "abc123"))
			require.NoError(t, b.Delete("token"))
			require.NoError(t, b.Delete("token"))

			_, err := b.Get("token")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestBackend_KeysAreIndependent(t *testing.T) {
	for kind, b := range backends(t) {
		t.Run(string(kind), func(t *testing.T) {
			require.NoError(t, b.Set("a", "1"))
			require.NoError(t, b.Set("b", "2"))
			require.NoError(t, b.Delete("a"))

			v, err := b.Get("b")
			require.NoError(t, err)
			assert.Equal(t, "2", v)
		})
	}
}

func TestBackend_ConcurrentWriters(t *testing.T) {
	for kind, b := range backends(t) {
		t.Run(string(kind), func(t *testing.T) {
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					if i%2 == 0 {
						assert.NoError(t, b.Set("token", "tok"))
					} else {
						assert.NoError(t, b.Delete("token"))
					}
				}(i)
			}
			wg.Wait()

			v, err := b.Get("token")
			if err != nil {
				assert.ErrorIs(t, err, ErrNotFound)
			} else {
				assert.Equal(t, "tok", v)
			}
		})
	}
}

// =============================================================================
// DURABILITY TESTS
// =============================================================================

func TestFile_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	first, err := NewFile(path)
	require.NoError(t, err)
	require.NoError(t, first.Set("token", "abc123"))

	second, err := NewFile(path)
	require.NoError(t, err)
	v, err := second.Get("token")
	require.NoError(t, err)
	assert.Equal(t, "abc123", v)
}

func TestFile_SeesOtherWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	a, _ := NewFile(path)
	b, _ := NewFile(path)

	require.NoError(t, a.Set("token", "abc123"))
	require.NoError(t, b.Delete("token"))

	_, err := a.Get("token")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFile_Permissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions only")
	}
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	f, err := NewFile(path)
	require.NoError(t, err)
	require.NoError(t, f.Set("token", "secret"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, FilePerm, info.Mode().Perm())
}

func TestFile_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	f, err := NewFile(path)
	require.NoError(t, err)

	_, err = f.Get("token")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))

	// A fresh write recovers the file.
	require.NoError(t, f.Set("token", "abc123"))
	v, err := f.Get("token")
	require.NoError(t, err)
	assert.Equal(t, "abc123", v)
}

func TestFile_RequiresPath(t *testing.T) {
	_, err := NewFile("")
	assert.Error(t, err)
}

func TestSQLite_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	first, err := NewSQLite(path)
	require.NoError(t, err)
	require.NoError(t, first.Set("token", "abc123"))
	require.NoError(t, first.Close())

	second, err := NewSQLite(path)
	require.NoError(t, err)
	defer second.Close()

	v, err := second.Get("token")
	require.NoError(t, err)
	assert.Equal(t, "abc123", v)
	assert.Equal(t, path, second.Path())
}

func TestOpen_UnknownKind(t *testing.T) {
	_, err := Open(Kind("redis"), "x")
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestMemory_HasNoPath(t *testing.T) {
	assert.Equal(t, "", NewMemory().Path())
}

// =============================================================================
// WATCH TESTS
// =============================================================================

func TestWatch_ReportsExternalWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	f, err := NewFile(path)
	require.NoError(t, err)
	require.NoError(t, f.Set("token", "abc123"))

	changed := make(chan struct{}, 8)
	w, err := Watch(path, 10*time.Millisecond, func() { changed <- struct{}{} })
	require.NoError(t, err)
	defer w.Close()

	other, _ := NewFile(path)
	require.NoError(t, other.Delete("token"))

	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("no change reported")
	}
}

func TestWatch_IgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	changed := make(chan struct{}, 8)
	w, err := Watch(path, 10*time.Millisecond, func() { changed <- struct{}{} })
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("x"), 0600))

	select {
	case <-changed:
		t.Fatal("unrelated file reported as a change")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatch_Validation(t *testing.T) {
	_, err := Watch("", time.Millisecond, func() {})
	assert.Error(t, err)
	_, err = Watch(filepath.Join(t.TempDir(), "x"), time.Millisecond, nil)
	assert.Error(t, err)
}
