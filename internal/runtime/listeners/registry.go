// Package listeners keeps at most one handler pair per message type.
package listeners

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/drblury/codeshot/internal/runtime/envelope"
)

// SuccessFunc receives the payload of a matched message.
type SuccessFunc func(data json.RawMessage)

// FailureFunc receives the error a request settled with.
type FailureFunc func(err error)

type entry struct {
	id        uint64
	onSuccess SuccessFunc
	onFailure FailureFunc
}

// Registry maps message types to handler pairs. Registering a type again
// replaces the previous pair.
type Registry struct {
	mu      sync.RWMutex
	entries map[envelope.MessageType]entry
	nextID  uint64
}

func New() *Registry {
	return &Registry{entries: make(map[envelope.MessageType]entry)}
}

// Register installs the handler pair for t. The returned func removes exactly
// this registration: it reports false once the entry is gone or was replaced.
func (r *Registry) Register(t envelope.MessageType, onSuccess SuccessFunc, onFailure FailureFunc) func() bool {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.entries[t] = entry{id: id, onSuccess: onSuccess, onFailure: onFailure}
	r.mu.Unlock()

	return func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		current, ok := r.entries[t]
		if !ok || current.id != id {
			return false
		}
		delete(r.entries, t)
		return true
	}
}

// Unregister removes whatever pair is registered for t.
func (r *Registry) Unregister(t envelope.MessageType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[t]; !ok {
		return false
	}
	delete(r.entries, t)
	return true
}

// Has reports whether a pair is registered for t.
func (r *Registry) Has(t envelope.MessageType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[t]
	return ok
}

// Dispatch routes to the pair registered for t: a non-nil result goes to the
// success handler, a non-nil err to the failure handler when there is one.
// An empty type, a missing entry or a call with neither is a no-op. Handlers
// run on the caller's goroutine without the lock held, and their panics
// propagate. It reports whether any handler ran.
func (r *Registry) Dispatch(t envelope.MessageType, result json.RawMessage, err error) bool {
	if t == "" || (result == nil && err == nil) {
		return false
	}
	r.mu.RLock()
	e, ok := r.entries[t]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	ran := false
	if result != nil && e.onSuccess != nil {
		e.onSuccess(result)
		ran = true
	}
	if err != nil && e.onFailure != nil {
		e.onFailure(err)
		ran = true
	}
	return ran
}

// Types returns the registered types in sorted order.
func (r *Registry) Types() []envelope.MessageType {
	r.mu.RLock()
	types := make([]envelope.MessageType, 0, len(r.entries))
	for t := range r.entries {
		types = append(types, t)
	}
	r.mu.RUnlock()

	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Clear removes every registration.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[envelope.MessageType]entry)
}
