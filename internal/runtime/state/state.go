// Package state mirrors one persisted value in memory.
package state

import (
	"context"
	"sync"

	"github.com/drblury/codeshot/internal/runtime/jsoncodec"
	"github.com/drblury/codeshot/internal/runtime/logging"
	"github.com/drblury/codeshot/internal/runtime/statestore"
)

// Store is the in-memory mirror of a native store. The mirror holds the last
// value set, or the value read when the store was created. Writes go through
// to the native store; Get never reads it back.
type Store[S any] struct {
	native statestore.NativeStore
	logger logging.ServiceLogger

	mu    sync.RWMutex
	value S
	set   bool
}

// New loads the current value from native. A document that cannot be read or
// decoded leaves the mirror empty and is logged.
func New[S any](ctx context.Context, native statestore.NativeStore, logger logging.ServiceLogger) *Store[S] {
	if native == nil {
		native = statestore.NewMemory()
	}
	s := &Store[S]{native: native, logger: logging.Component(logger, "state")}

	raw, ok, err := native.Load(ctx)
	if err != nil {
		s.logger.Error("Failed to load state", err, nil)
		return s
	}
	if !ok {
		return s
	}
	var v S
	if err := jsoncodec.Unmarshal(raw, &v); err != nil {
		s.logger.Error("Stored state does not decode", err, logging.LogFields{"bytes": len(raw)})
		return s
	}
	s.value, s.set = v, true
	return s
}

// Get returns the mirrored value and whether one exists.
func (s *Store[S]) Get() (S, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value, s.set
}

// Set updates the mirror and writes v through, returning v. A failed native
// write is logged; the mirror keeps v.
func (s *Store[S]) Set(v S) S {
	s.mu.Lock()
	s.value, s.set = v, true
	s.mu.Unlock()

	raw, err := jsoncodec.Marshal(v)
	if err != nil {
		s.logger.Error("State does not encode", err, nil)
		return v
	}
	if err := s.native.Save(context.Background(), raw); err != nil {
		s.logger.Error("Failed to persist state", err, nil)
	}
	return v
}

// Close closes the native store.
func (s *Store[S]) Close() error {
	return s.native.Close()
}
