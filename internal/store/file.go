package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fairyhunter13/storefront/internal/model"
)

// envelope is the on-disk shape: the cart state plus a format version.
type envelope struct {
	State   model.CartSnapshot `json:"state"`
	Version int                `json:"version"`
}

const fileFormatVersion = 0

// File stores the snapshot as <dir>/<key>.json. Writes go to a temporary file
// that is renamed into place.
type File struct {
	mu       sync.Mutex
	path     string
	known    bool
	revision uint64
}

// NewFile creates dir if needed and returns a file store for key.
func NewFile(dir, key string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &File{path: filepath.Join(dir, key+".json")}, nil
}

// Path returns the snapshot file location.
func (f *File) Path() string { return f.path }

// Load reads the snapshot file. A missing file reports false.
func (f *File) Load(_ context.Context) (model.CartSnapshot, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readLocked()
}

func (f *File) readLocked() (model.CartSnapshot, bool, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		f.known = true
		return model.CartSnapshot{}, false, nil
	}
	if err != nil {
		return model.CartSnapshot{}, false, fmt.Errorf("read snapshot: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return model.CartSnapshot{}, false, fmt.Errorf("decode snapshot %s: %w", f.path, err)
	}
	if env.Version != fileFormatVersion {
		return model.CartSnapshot{}, false, fmt.Errorf("snapshot %s: unsupported version %d", f.path, env.Version)
	}
	f.known, f.revision = true, env.State.Revision
	return env.State, true, nil
}

// Save atomically replaces the snapshot file unless it holds the same or a
// newer revision.
func (f *File) Save(_ context.Context, snap model.CartSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.known {
		if _, _, err := f.readLocked(); err != nil {
			// unreadable file: overwrite it with the fresh state
			f.known, f.revision = true, 0
		}
	}
	if !supersedes(snap.Revision, f.revision, f.revision != 0) {
		return nil
	}
	data, err := json.Marshal(envelope{State: snap, Version: fileFormatVersion})
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	f.revision = snap.Revision
	return nil
}
