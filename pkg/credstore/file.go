package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// File persists credentials as a small JSON document keyed by the durable
// cache keys. Writes go to a temporary file that is renamed into place so a
// reader never observes a half-written credential set.
type File struct {
	mu   sync.RWMutex
	path string
}

func NewFile(path string) *File {
	return &File{path: filepath.Clean(path)}
}

// Path returns the backing file location.
func (f *File) Path() string { return f.path }

// Get returns empty credentials when the file does not exist yet.
func (f *File) Get(context.Context) (Credentials, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return Credentials{}, nil
	}
	if err != nil {
		return Credentials{}, &StoreError{Op: "get", Err: err}
	}

	var creds Credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return Credentials{}, &StoreError{Op: "get", Err: err}
	}
	return creds, nil
}

func (f *File) Set(_ context.Context, creds Credentials) error {
	raw, err := json.Marshal(creds)
	if err != nil {
		return &StoreError{Op: "set", Err: err}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.replace(raw); err != nil {
		return &StoreError{Op: "set", Err: err}
	}
	return nil
}

// Clear removes the file; clearing an absent file is not an error.
func (f *File) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &StoreError{Op: "clear", Err: err}
	}
	return nil
}

func (f *File) replace(raw []byte) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}
