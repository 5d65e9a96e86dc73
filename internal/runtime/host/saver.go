package host

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Saver writes exported images.
type Saver interface {
	// Save stores data under name and returns where it went.
	Save(ctx context.Context, name string, data []byte) (string, error)
}

// DirSaver writes into Dir, the working directory when empty.
type DirSaver struct {
	Dir string
}

func (d DirSaver) Save(_ context.Context, name string, data []byte) (string, error) {
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." {
		return "", fmt.Errorf("host: invalid file name %q", name)
	}
	dir := d.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("host: create %s: %w", dir, err)
	}
	path := filepath.Join(dir, base)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("host: write %s: %w", path, err)
	}
	return path, nil
}
