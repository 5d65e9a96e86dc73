package transport

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
)

// DefaultSystem is the transport selected when a config leaves
// PubSubSystem empty.
const DefaultSystem = "channel"

// ErrUnknownTransport is wrapped by Build when no builder is registered under
// the configured name.
var ErrUnknownTransport = errors.New("unknown transport")

type entry struct {
	build Builder
	caps  Capabilities
}

// Registry maps PubSubSystem names to channel builders and their
// capabilities. Names are matched case-insensitively and an empty name
// resolves to DefaultSystem.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// DefaultRegistry holds the transports registered by the transport
// subpackages' init functions.
var DefaultRegistry = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

func normalize(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return DefaultSystem
	}
	return name
}

// Register adds a builder whose capabilities are unknown. The channel treats
// such a transport as lossy, so requests over it rely on resends.
func (r *Registry) Register(name string, builder Builder) {
	r.RegisterWithCapabilities(name, builder, Capabilities{})
}

// RegisterWithCapabilities adds a builder under name, replacing any earlier
// registration. Several names may share one builder; caps.Name keeps the
// canonical name in that case.
func (r *Registry) RegisterWithCapabilities(name string, builder Builder, caps Capabilities) {
	if builder == nil {
		panic(fmt.Sprintf("transport: nil builder for %q", name))
	}
	key := normalize(name)
	if caps.Name == "" {
		caps.Name = key
	}

	r.mu.Lock()
	r.entries[key] = entry{build: builder, caps: caps}
	r.mu.Unlock()
}

func (r *Registry) lookup(name string) (entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[normalize(name)]
	return e, ok
}

// GetCapabilities returns the capabilities registered under name. An unknown
// name yields capabilities carrying only the name.
func (r *Registry) GetCapabilities(name string) Capabilities {
	if e, ok := r.lookup(name); ok {
		return e.caps
	}
	return Capabilities{Name: name}
}

// Capabilities resolves the capabilities of the transport selected by cfg.
func (r *Registry) Capabilities(cfg Config) Capabilities {
	if cfg == nil {
		return Capabilities{}
	}
	return r.GetCapabilities(cfg.GetPubSubSystem())
}

// Build runs the builder selected by cfg. A builder that reports success but
// hands back a handle missing either half is treated as a failure.
func (r *Registry) Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	if cfg == nil {
		return Transport{}, errors.New("transport: config is required")
	}

	name := normalize(cfg.GetPubSubSystem())
	e, ok := r.lookup(name)
	if !ok {
		return Transport{}, fmt.Errorf("%w %q (registered: %s)", ErrUnknownTransport, name, strings.Join(r.Names(), ", "))
	}

	tr, err := e.build(ctx, cfg, logger)
	if err != nil {
		return Transport{}, fmt.Errorf("transport %q: %w", name, err)
	}
	if !tr.Valid() {
		_ = tr.Close()
		return Transport{}, fmt.Errorf("transport %q: builder returned an incomplete handle", name)
	}
	return tr, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	r.mu.RUnlock()

	slices.Sort(names)
	return names
}

func (r *Registry) Has(name string) bool {
	_, ok := r.lookup(name)
	return ok
}

// Register adds a builder to DefaultRegistry.
func Register(name string, builder Builder) {
	DefaultRegistry.Register(name, builder)
}

// RegisterWithCapabilities adds a builder and its capabilities to
// DefaultRegistry.
func RegisterWithCapabilities(name string, builder Builder, caps Capabilities) {
	DefaultRegistry.RegisterWithCapabilities(name, builder, caps)
}

// Build builds the transport selected by cfg from DefaultRegistry.
func Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	return DefaultRegistry.Build(ctx, cfg, logger)
}
