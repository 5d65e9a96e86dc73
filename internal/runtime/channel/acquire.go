package channel

import (
	"context"
	"fmt"
	"sync"

	"github.com/drblury/codeshot/internal/runtime/config"
	errspkg "github.com/drblury/codeshot/internal/runtime/errors"
	"github.com/drblury/codeshot/internal/runtime/logging"
	"github.com/drblury/codeshot/transport"
)

// Probe looks for the native messaging capability and returns its handle.
type Probe func(ctx context.Context) (transport.Transport, error)

var process struct {
	mu sync.Mutex
	tr transport.Transport
}

// Acquire returns the process-wide native handle, running probe only when no
// handle is held yet. A failed probe is not remembered, so a later call
// probes again. Failures wrap ErrChannelUnavailable.
func Acquire(ctx context.Context, probe Probe) (transport.Transport, error) {
	process.mu.Lock()
	defer process.mu.Unlock()

	if process.tr.Valid() {
		return process.tr, nil
	}
	if probe == nil {
		return transport.Transport{}, errspkg.ErrChannelUnavailable
	}

	tr, err := probe(ctx)
	if err != nil {
		return transport.Transport{}, fmt.Errorf("%w: %w", errspkg.ErrChannelUnavailable, err)
	}
	if !tr.Valid() {
		return transport.Transport{}, errspkg.ErrChannelUnavailable
	}
	process.tr = tr
	return tr, nil
}

// Acquired reports whether the process holds a native handle.
func Acquired() bool {
	process.mu.Lock()
	defer process.mu.Unlock()
	return process.tr.Valid()
}

// Release closes and forgets the process handle.
func Release() error {
	process.mu.Lock()
	tr := process.tr
	process.tr = transport.Transport{}
	process.mu.Unlock()

	if !tr.Valid() {
		return nil
	}
	return tr.Close()
}

// ConfigProbe builds the transport selected by cfg.PubSubSystem from the
// default transport registry.
func ConfigProbe(cfg config.Config, logger logging.ServiceLogger) Probe {
	return func(ctx context.Context) (transport.Transport, error) {
		return transport.Build(ctx, &cfg, logging.NewWatermillAdapter(logging.OrNop(logger)))
	}
}

// StaticProbe hands out an already built transport.
func StaticProbe(tr transport.Transport) Probe {
	return func(context.Context) (transport.Transport, error) {
		return tr, nil
	}
}

// Open acquires the process handle and wraps it in an adapter configured from
// cfg. When acquisition fails the adapter is disabled and the error is
// returned alongside it.
func Open(ctx context.Context, cfg config.Config, probe Probe, logger logging.ServiceLogger) (*Adapter, error) {
	cfg = cfg.WithDefaults()
	opts := Options{
		OutboundTopic: cfg.OutboundTopic,
		InboundTopic:  cfg.InboundTopic,
		Capabilities:  transport.DefaultRegistry.Capabilities(&cfg),
		Logger:        logger,
	}

	tr, err := Acquire(ctx, probe)
	if err != nil {
		logging.Component(logger, "channel").Error("Channel unavailable, running disabled", err, logging.LogFields{
			"pubsub_system": cfg.PubSubSystem,
		})
		return Disabled(opts), err
	}
	return NewAdapter(tr, opts), nil
}
