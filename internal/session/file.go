package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileBackend persists the session as a JSON object in a single file, the
// per-user durable store for command-line use. Every write replaces the file
// through a temp file and rename so a crash never leaves a half-written
// session behind.
type FileBackend struct {
	mu   sync.Mutex
	path string
}

// NewFileBackend returns a backend writing to path. The parent directory is
// created on first write.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// DefaultFilePath returns the session file location under the user's config
// directory.
func DefaultFilePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, "predictx", "session.json"), nil
}

// Path returns the backing file path.
func (b *FileBackend) Path() string {
	return b.path
}

// Get reads key from the file. A missing file is an empty store; a corrupt
// file is an error.
func (b *FileBackend) Get(_ context.Context, key string) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries, err := b.readAll()
	if err != nil {
		return "", false, err
	}
	v, ok := entries[key]
	return v, ok, nil
}

// Apply rewrites the file with the batch applied. A corrupt file is replaced.
func (b *FileBackend) Apply(_ context.Context, set map[string]string, del []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries, err := b.readAll()
	if err != nil {
		entries = make(map[string]string)
	}
	for _, k := range del {
		delete(entries, k)
	}
	for k, v := range set {
		entries[k] = v
	}
	return b.writeAll(entries)
}

func (b *FileBackend) readAll() (map[string]string, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	if len(data) == 0 {
		return make(map[string]string), nil
	}

	entries := make(map[string]string)
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode session file: %w", err)
	}
	return entries, nil
}

func (b *FileBackend) writeAll(entries map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(b.path), ".session-*.json")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp session file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp session file: %w", err)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}
