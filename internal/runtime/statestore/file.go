package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/drblury/codeshot/internal/runtime/jsoncodec"
)

// File stores documents in one JSON object on disk, keyed by state key, so
// several bridges can share a file.
type File struct {
	path string
	key  string

	mu     sync.Mutex
	closed bool
}

func NewFile(path, key string) *File {
	return &File{path: path, key: key}
}

func (f *File) readAll() (map[string]json.RawMessage, error) {
	docs := map[string]json.RawMessage{}
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return docs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("statestore: read %s: %w", f.path, err)
	}
	if len(data) == 0 {
		return docs, nil
	}
	if err := jsoncodec.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("statestore: decode %s: %w", f.path, err)
	}
	return docs, nil
}

func (f *File) Load(context.Context) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, false, ErrClosed
	}
	docs, err := f.readAll()
	if err != nil {
		return nil, false, err
	}
	raw, ok := docs[f.key]
	return raw, ok, nil
}

// Save rewrites the file through a temp file and rename.
func (f *File) Save(_ context.Context, raw []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	if !jsoncodec.Valid(raw) {
		return fmt.Errorf("statestore: document for %q is not valid JSON", f.key)
	}
	docs, err := f.readAll()
	if err != nil {
		return err
	}
	docs[f.key] = raw

	data, err := jsoncodec.MarshalIndent(docs, "", "  ")
	if err != nil {
		return fmt.Errorf("statestore: encode %s: %w", f.path, err)
	}
	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("statestore: create %s: %w", dir, err)
		}
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("statestore: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("statestore: replace %s: %w", f.path, err)
	}
	return nil
}

func (f *File) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}
