// Package statestore provides the native stores behind the persisted state
// mirror. A store holds one opaque JSON document per key.
package statestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/drblury/codeshot/internal/runtime/config"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("statestore: closed")

// NativeStore persists the raw state document.
type NativeStore interface {
	// Load returns the stored document. ok is false when nothing was stored.
	Load(ctx context.Context) (raw []byte, ok bool, err error)
	Save(ctx context.Context, raw []byte) error
	Close() error
}

// Open builds the store selected by cfg.StateBackend.
func Open(ctx context.Context, cfg config.Config) (NativeStore, error) {
	cfg = cfg.WithDefaults()
	switch strings.ToLower(cfg.StateBackend) {
	case config.StateBackendMemory:
		return NewMemory(), nil
	case config.StateBackendFile:
		return NewFile(cfg.StateFile, cfg.StateKey), nil
	case config.StateBackendSQLite:
		return NewSQLite(ctx, cfg.SQLiteFile, cfg.StateKey)
	case config.StateBackendPostgres:
		return NewPostgres(ctx, cfg.PostgresURL, cfg.StateKey)
	default:
		return nil, fmt.Errorf("statestore: unknown backend %q", cfg.StateBackend)
	}
}
