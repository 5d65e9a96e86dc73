package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/codeshot/internal/runtime/channel"
	configpkg "github.com/drblury/codeshot/internal/runtime/config"
	"github.com/drblury/codeshot/internal/runtime/envelope"
	errspkg "github.com/drblury/codeshot/internal/runtime/errors"
	"github.com/drblury/codeshot/internal/runtime/jsoncodec"
	"github.com/drblury/codeshot/internal/runtime/listeners"
	loggingpkg "github.com/drblury/codeshot/internal/runtime/logging"
	"github.com/drblury/codeshot/internal/runtime/metadata"
	"github.com/drblury/codeshot/internal/runtime/orchestrator"
	"github.com/drblury/codeshot/internal/runtime/state"
	"github.com/drblury/codeshot/internal/runtime/statestore"
)

// BridgeDependencies holds optional collaborators of a Bridge. Leave fields
// nil to build them from the config.
type BridgeDependencies struct {
	// Probe finds the native channel. Defaults to the transport selected by
	// Config.PubSubSystem.
	Probe channel.Probe
	// StateStore is the native store behind State/SetState. Defaults to the
	// store selected by Config.StateBackend.
	StateStore statestore.NativeStore
	Metrics    *orchestrator.Metrics
	Tracer     trace.Tracer
}

// Options is the resolved configuration surface of a Bridge.
type Options struct {
	Interval time.Duration `json:"interval"`
	Timeout  time.Duration `json:"timeout"`
	TypeKey  string        `json:"typeKey"`
	DataKey  string        `json:"dataKey"`
}

// LastMessage is the most recent inbound envelope.
type LastMessage struct {
	Type      envelope.MessageType `json:"type"`
	Data      json.RawMessage      `json:"data,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
}

// Bridge is the webview end of the channel. It owns one inbound pump, one
// listener registry and one state mirror. S is the persisted state type.
type Bridge[S any] struct {
	Conf   configpkg.Config
	Logger loggingpkg.ServiceLogger

	adapter  *channel.Adapter
	codec    envelope.Codec
	registry *listeners.Registry
	orch     *orchestrator.Orchestrator
	state    *state.Store[S]

	stopInbound func()
	dispatch    *dispatchQueue

	lastMu  sync.RWMutex
	last    LastMessage
	hasLast bool

	closed    atomic.Bool
	closeOnce sync.Once
}

// NewBridge builds a Bridge for conf. A missing channel is not an error: the
// bridge runs disabled, Post does nothing and Request fails with
// ErrChannelUnavailable. The inbound pump runs until ctx ends or Close.
func NewBridge[S any](ctx context.Context, conf *configpkg.Config, log loggingpkg.ServiceLogger, deps BridgeDependencies) (*Bridge[S], error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if err := configpkg.ValidateConfig(conf); err != nil {
		return nil, err
	}
	cfg := conf.WithDefaults()
	log = loggingpkg.OrNop(log)

	native := deps.StateStore
	if native == nil {
		var err error
		native, err = statestore.Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	probe := deps.Probe
	if probe == nil {
		probe = channel.ConfigProbe(cfg, log)
	}
	adapter, err := channel.Open(ctx, cfg, probe, log)
	if err != nil && !errors.Is(err, errspkg.ErrChannelUnavailable) {
		_ = native.Close()
		return nil, err
	}

	metrics := deps.Metrics
	if metrics == nil && cfg.MetricsEnabled {
		metrics = orchestrator.NewMetrics(nil)
	}
	if err := metrics.Register(); err != nil {
		log.Error("Failed to register request metrics", err, nil)
	}

	orchCfg := orchestrator.FromConfig(cfg)
	orchCfg.Metrics = metrics
	orchCfg.Tracer = deps.Tracer
	orchCfg.Logger = log

	registry := listeners.New()
	b := &Bridge[S]{
		Conf:     cfg,
		Logger:   log,
		adapter:  adapter,
		codec:    orchCfg.Codec,
		registry: registry,
		orch:     orchestrator.New(adapter, registry, orchCfg),
		state:    state.New[S](ctx, native, log),
	}

	b.dispatch = newDispatchQueue(b.deliver)
	b.stopInbound = adapter.Subscribe(b.handleInbound)
	if err := adapter.Listen(ctx); err != nil {
		log.Error("Failed to listen for inbound messages", err, loggingpkg.LogFields{"topic": cfg.InboundTopic})
	}

	log.Info("Created bridge", loggingpkg.LogFields{
		"pubsub_system": cfg.PubSubSystem,
		"available":     adapter.Available(),
		"state_backend": cfg.StateBackend,
	})
	return b, nil
}

func (b *Bridge[S]) handleInbound(in channel.Inbound) {
	env := b.codec.Decode(in.Payload)

	b.lastMu.Lock()
	b.last = LastMessage{Type: env.Type, Data: env.Data, Timestamp: in.ReceivedAt}
	b.hasLast = true
	b.lastMu.Unlock()

	if b.orch.Offer(in, env) {
		return
	}
	b.dispatch.push(queuedMessage{uuid: in.UUID, typ: env.Type, data: env.Data})
}

// deliver runs on the dispatch worker, never on the inbound pump.
func (b *Bridge[S]) deliver(m queuedMessage) {
	if !b.registry.Dispatch(m.typ, m.data, nil) {
		b.Logger.Trace("Unrouted inbound message", loggingpkg.LogFields{"type": m.typ, "uuid": m.uuid})
	}
}

// IsReady reports whether the channel is available and the bridge is open.
func (b *Bridge[S]) IsReady() bool {
	return !b.closed.Load() && b.adapter.Available()
}

func (b *Bridge[S]) Options() Options {
	return Options{
		Interval: b.Conf.Interval,
		Timeout:  b.Conf.Timeout,
		TypeKey:  b.codec.TypeKey(),
		DataKey:  b.codec.DataKey(),
	}
}

// Post sends one envelope without waiting for an answer.
func (b *Bridge[S]) Post(t envelope.MessageType, data any) error {
	if b.closed.Load() {
		return errspkg.ErrBridgeClosed
	}
	if t == "" {
		return errspkg.ErrTypeRequired
	}
	payload, err := b.codec.Encode(t, data)
	if err != nil {
		return err
	}
	return b.adapter.Send(payload, metadata.New(metadata.KeyMessageType, string(t)))
}

// PostMessage sends msg as is, without envelope framing.
func (b *Bridge[S]) PostMessage(msg any) error {
	if b.closed.Load() {
		return errspkg.ErrBridgeClosed
	}
	var payload []byte
	switch m := msg.(type) {
	case []byte:
		payload = m
	case json.RawMessage:
		payload = m
	default:
		var err error
		if payload, err = jsoncodec.Marshal(msg); err != nil {
			return err
		}
	}
	return b.adapter.Send(payload, nil)
}

// Request sends t and waits for the host to answer with the same type.
func (b *Bridge[S]) Request(ctx context.Context, t envelope.MessageType, data any, opts ...orchestrator.Option) (json.RawMessage, error) {
	if b.closed.Load() {
		return nil, errspkg.ErrBridgeClosed
	}
	return b.orch.Request(ctx, t, data, opts...)
}

// On registers the handler pair for t, replacing any previous one. The
// returned func removes exactly this registration.
func (b *Bridge[S]) On(t envelope.MessageType, onSuccess listeners.SuccessFunc, onFailure listeners.FailureFunc) (func() bool, error) {
	if t == "" {
		return nil, errspkg.ErrTypeRequired
	}
	if onSuccess == nil {
		return nil, errspkg.ErrHandlerRequired
	}
	return b.registry.Register(t, onSuccess, onFailure), nil
}

// Off removes the handler pair for t.
func (b *Bridge[S]) Off(t envelope.MessageType) bool {
	return b.registry.Unregister(t)
}

func (b *Bridge[S]) ListenerTypes() []envelope.MessageType {
	return b.registry.Types()
}

func (b *Bridge[S]) ListenerCount() int {
	return b.registry.Count()
}

// PendingRequests reports requests still waiting for an answer.
func (b *Bridge[S]) PendingRequests() int {
	return b.orch.Pending()
}

func (b *Bridge[S]) LastMessage() (LastMessage, bool) {
	b.lastMu.RLock()
	defer b.lastMu.RUnlock()
	return b.last, b.hasLast
}

func (b *Bridge[S]) State() (S, bool) {
	return b.state.Get()
}

func (b *Bridge[S]) SetState(v S) S {
	return b.state.Set(v)
}

// Close stops the inbound pump and drops all listeners and queued messages.
// Requests in flight are not canceled, but with the pump stopped no response
// reaches them, so they end with ErrTimeout. Close is idempotent.
func (b *Bridge[S]) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		b.stopInbound()
		b.dispatch.close()
		err = errors.Join(b.adapter.Close(), b.state.Close())
		b.registry.Clear()
		b.Logger.Debug("Closed bridge", nil)
	})
	return err
}
