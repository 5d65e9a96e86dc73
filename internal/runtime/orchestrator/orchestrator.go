// Package orchestrator turns the one-way channel into a request/response
// call: the request envelope is resent on an interval until an inbound
// envelope of the same type arrives or the timeout fires.
package orchestrator

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/codeshot/internal/runtime/channel"
	"github.com/drblury/codeshot/internal/runtime/config"
	"github.com/drblury/codeshot/internal/runtime/envelope"
	errspkg "github.com/drblury/codeshot/internal/runtime/errors"
	"github.com/drblury/codeshot/internal/runtime/ids"
	"github.com/drblury/codeshot/internal/runtime/logging"
	"github.com/drblury/codeshot/internal/runtime/metadata"
)

const tracerName = "github.com/drblury/codeshot/orchestrator"

// Channel is the part of the channel adapter a request needs.
type Channel interface {
	Available() bool
	Send(payload []byte, md metadata.Metadata) error
	Subscribe(h channel.Handler) (stop func())
}

// Dispatcher receives the settled outcome of every request.
type Dispatcher interface {
	Dispatch(t envelope.MessageType, result json.RawMessage, err error) bool
}

// Config holds the instance defaults of an Orchestrator.
type Config struct {
	Codec    envelope.Codec
	Interval time.Duration
	Timeout  time.Duration
	// OriginScheme is the prefix a response origin must carry. Empty accepts
	// any origin.
	OriginScheme string
	// DisableCorrelation leaves correlation ids off outbound requests.
	DisableCorrelation bool
	// Origin is stamped on outbound requests when set.
	Origin string

	Metrics *Metrics
	Tracer  trace.Tracer
	Logger  logging.ServiceLogger
}

// FromConfig derives orchestrator settings from the library config.
func FromConfig(cfg config.Config) Config {
	cfg = cfg.WithDefaults()
	scheme := cfg.OriginScheme
	if cfg.DisableOriginCheck {
		scheme = ""
	}
	return Config{
		Codec:              envelope.NewCodec(cfg.TypeKey, cfg.DataKey),
		Interval:           cfg.Interval,
		Timeout:            cfg.Timeout,
		OriginScheme:       scheme,
		DisableCorrelation: cfg.DisableCorrelation,
	}
}

// Option overrides instance defaults for one request.
type Option func(*callOptions)

type callOptions struct {
	interval time.Duration
	timeout  time.Duration
	metadata metadata.Metadata
}

// WithInterval sets the resend period of one request.
func WithInterval(d time.Duration) Option {
	return func(o *callOptions) {
		if d > 0 {
			o.interval = d
		}
	}
}

// WithTimeout sets how long one request waits for its response.
func WithTimeout(d time.Duration) Option {
	return func(o *callOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithMetadata adds headers to the outbound request.
func WithMetadata(md metadata.Metadata) Option {
	return func(o *callOptions) {
		for k, v := range md {
			o.metadata = o.metadata.With(k, v)
		}
	}
}

type waiter struct {
	typ           envelope.MessageType
	correlationID string
	claimed       atomic.Bool
	response      chan json.RawMessage
}

// Orchestrator runs requests over a Channel. Requests of different types are
// independent; every request settles exactly once.
type Orchestrator struct {
	ch       Channel
	registry Dispatcher
	cfg      Config
	logger   logging.ServiceLogger
	tracer   trace.Tracer

	mu      sync.Mutex
	pending []*waiter
	// recent holds the UUIDs of the last claimed inbound messages; every
	// pending request and the bridge offer the same message.
	recent    [recentClaims]string
	recentPos int
}

const recentClaims = 64

func New(ch Channel, registry Dispatcher, cfg Config) *Orchestrator {
	if cfg.Interval <= 0 {
		cfg.Interval = config.DefaultInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = config.DefaultTimeout
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Orchestrator{
		ch:       ch,
		registry: registry,
		cfg:      cfg,
		logger:   logging.Component(cfg.Logger, "orchestrator"),
		tracer:   tracer,
	}
}

// Codec returns the codec requests are framed with.
func (o *Orchestrator) Codec() envelope.Codec {
	return o.cfg.Codec
}

// Pending reports how many requests are waiting for a response.
func (o *Orchestrator) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

// Request sends t with data and waits for the response payload.
//
// It fails at once with ErrChannelUnavailable on a disabled channel. On
// timeout the failure is dispatched for t and ErrTimeout is returned. When
// ctx ends first, ctx.Err() is returned and nothing is dispatched.
func (o *Orchestrator) Request(ctx context.Context, t envelope.MessageType, data any, opts ...Option) (json.RawMessage, error) {
	start := time.Now()
	if !o.ch.Available() {
		o.cfg.Metrics.recordOutcome(t, OutcomeUnavailable, 0)
		return nil, errspkg.ErrChannelUnavailable
	}
	if t == "" {
		return nil, errspkg.ErrTypeRequired
	}

	call := callOptions{interval: o.cfg.Interval, timeout: o.cfg.Timeout}
	for _, opt := range opts {
		opt(&call)
	}

	payload, err := o.cfg.Codec.Encode(t, data)
	if err != nil {
		return nil, err
	}

	w := &waiter{typ: t, response: make(chan json.RawMessage, 1)}
	md := call.metadata.With(metadata.KeyMessageType, string(t))
	if !o.cfg.DisableCorrelation {
		w.correlationID = ids.New()
		md = md.With(metadata.KeyCorrelationID, w.correlationID)
	}
	if o.cfg.Origin != "" {
		md = md.With(metadata.KeyOrigin, o.cfg.Origin)
	}

	ctx, span := o.tracer.Start(ctx, "codeshot.request", trace.WithAttributes(
		attribute.String("codeshot.message_type", string(t)),
		attribute.String("codeshot.correlation_id", w.correlationID),
		attribute.Int64("codeshot.interval_ms", call.interval.Milliseconds()),
		attribute.Int64("codeshot.timeout_ms", call.timeout.Milliseconds()),
	))
	defer span.End()

	o.mu.Lock()
	o.pending = append(o.pending, w)
	o.mu.Unlock()
	stop := o.ch.Subscribe(func(in channel.Inbound) {
		o.Offer(in, o.cfg.Codec.Decode(in.Payload))
	})

	ticker := time.NewTicker(call.interval)
	timer := time.NewTimer(call.timeout)
	defer func() {
		ticker.Stop()
		timer.Stop()
		stop()
		o.remove(w)
	}()

	sends := 0
	send := func() {
		sends++
		o.cfg.Metrics.recordSend(t)
		if err := o.ch.Send(payload, md); err != nil {
			o.logger.Error("Request send failed", err, logging.LogFields{"type": t, "attempt": sends})
		}
	}
	send()

	for {
		select {
		case result := <-w.response:
			return o.resolve(span, t, result, sends, start)

		case <-ticker.C:
			send()

		case <-timer.C:
			if !w.claimed.CompareAndSwap(false, true) {
				return o.resolve(span, t, <-w.response, sends, start)
			}
			o.cfg.Metrics.recordOutcome(t, OutcomeTimeout, time.Since(start))
			span.SetAttributes(attribute.Int("codeshot.sends", sends))
			span.SetStatus(codes.Error, errspkg.ErrTimeout.Error())
			o.logger.Debug("Request timed out", logging.LogFields{"type": t, "sends": sends, "timeout": call.timeout})
			o.registry.Dispatch(t, nil, errspkg.ErrTimeout)
			return nil, errspkg.ErrTimeout

		case <-ctx.Done():
			if !w.claimed.CompareAndSwap(false, true) {
				return o.resolve(span, t, <-w.response, sends, start)
			}
			o.cfg.Metrics.recordOutcome(t, OutcomeCanceled, time.Since(start))
			span.SetStatus(codes.Error, ctx.Err().Error())
			return nil, ctx.Err()
		}
	}
}

func (o *Orchestrator) resolve(span trace.Span, t envelope.MessageType, result json.RawMessage, sends int, start time.Time) (json.RawMessage, error) {
	o.cfg.Metrics.recordOutcome(t, OutcomeResolved, time.Since(start))
	span.SetAttributes(attribute.Int("codeshot.sends", sends))
	span.SetStatus(codes.Ok, "")
	o.registry.Dispatch(t, result, nil)
	return result, nil
}

// Offer hands an inbound envelope to the oldest pending request it answers.
// It reports whether a request claimed it; a claimed envelope is dispatched
// by the request itself and must not be dispatched again by the caller.
// Offering the same message again reports true without claiming another
// request.
func (o *Orchestrator) Offer(in channel.Inbound, env envelope.Envelope) bool {
	if env.Type == "" || !o.originAllowed(in.Metadata.Origin()) {
		return false
	}
	correlationID := in.Metadata.CorrelationID()

	o.mu.Lock()
	defer o.mu.Unlock()
	if in.UUID != "" && slices.Contains(o.recent[:], in.UUID) {
		return true
	}
	for _, w := range o.pending {
		if w.typ != env.Type {
			continue
		}
		if correlationID != "" && w.correlationID != "" && correlationID != w.correlationID {
			continue
		}
		if w.claimed.CompareAndSwap(false, true) {
			w.response <- env.Data
			if in.UUID != "" {
				o.recent[o.recentPos] = in.UUID
				o.recentPos = (o.recentPos + 1) % recentClaims
			}
			return true
		}
	}
	return false
}

func (o *Orchestrator) originAllowed(origin string) bool {
	return o.cfg.OriginScheme == "" || strings.HasPrefix(origin, o.cfg.OriginScheme)
}

func (o *Orchestrator) remove(w *waiter) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, p := range o.pending {
		if p == w {
			o.pending = append(o.pending[:i:i], o.pending[i+1:]...)
			return
		}
	}
}
