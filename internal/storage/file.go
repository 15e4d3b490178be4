// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/jeranaias/minillm/internal/util"
)

// FilePerm is the mode of the state file. It holds a bearer token.
const FilePerm os.FileMode = 0600

// File is a Backend stored as one JSON object on disk.
//
// Every Get reads the file again so values written by other processes are
// seen. Writes go through util.AtomicWriteFile so a crash never leaves a
// truncated file behind.
type File struct {
	path string
	mu   sync.Mutex
}

// NewFile returns a File backend for path. The file is created lazily on the
// first Set.
func NewFile(path string) (*File, error) {
	if path == "" {
		return nil, errors.New("storage: file backend requires a path")
	}
	return &File{path: path}, nil
}

func (f *File) Get(key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.load()
	if err != nil {
		return "", err
	}
	v, ok := values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (f *File) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.load()
	if err != nil {
		// A corrupt file is replaced rather than blocking a fresh login.
		values = make(map[string]string)
	}
	values[key] = value
	return f.save(values)
}

func (f *File) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.load()
	if err != nil {
		values = make(map[string]string)
	} else if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	return f.save(values)
}

func (f *File) Path() string { return f.path }

func (f *File) Close() error { return nil }

// load reads the state file. A missing file is an empty store.
func (f *File) load() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, fmt.Errorf("storage: read %s: %w", f.path, err)
	}
	values := make(map[string]string)
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("storage: parse %s: %w", f.path, err)
	}
	return values, nil
}

func (f *File) save(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}
	if err := util.AtomicWriteFile(f.path, data, FilePerm); err != nil {
		return fmt.Errorf("storage: write %s: %w", f.path, err)
	}
	return nil
}
