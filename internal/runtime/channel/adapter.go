// Package channel wraps the one-way messaging primitive: one outbound topic to
// publish on and one inbound topic to listen to.
package channel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/codeshot/internal/runtime/ids"
	"github.com/drblury/codeshot/internal/runtime/logging"
	"github.com/drblury/codeshot/internal/runtime/metadata"
	"github.com/drblury/codeshot/transport"
)

// Inbound is one message taken off the inbound topic.
type Inbound struct {
	UUID       string
	Payload    []byte
	Metadata   metadata.Metadata
	ReceivedAt time.Time
}

// Handler observes inbound messages. Handlers run on the pump goroutine in
// subscription order and must not block.
type Handler func(Inbound)

// Options configures an Adapter.
type Options struct {
	OutboundTopic string
	InboundTopic  string
	// Capabilities of the backend, used for the payload size check.
	Capabilities transport.Capabilities
	Logger       logging.ServiceLogger
}

type subscription struct {
	id      uint64
	handler Handler
}

// Adapter presents Send and Subscribe over a transport. An adapter without a
// valid transport is disabled: Send does nothing and Subscribe never fires.
type Adapter struct {
	tr     transport.Transport
	opts   Options
	logger logging.ServiceLogger

	mu     sync.Mutex
	subs   []subscription
	nextID uint64

	listenMu sync.Mutex
	cancel   context.CancelFunc
}

// NewAdapter wraps tr. The adapter does not own tr and never closes it.
func NewAdapter(tr transport.Transport, opts Options) *Adapter {
	logger := logging.Component(opts.Logger, "channel")
	if !tr.Valid() {
		tr = transport.Transport{}
	}
	return &Adapter{tr: tr, opts: opts, logger: logger}
}

// Disabled returns an adapter with no native handle.
func Disabled(opts Options) *Adapter {
	return NewAdapter(transport.Transport{}, opts)
}

// Available reports whether a native handle is present.
func (a *Adapter) Available() bool {
	return a.tr.Valid()
}

// Capabilities returns the backend capabilities the adapter was built with.
func (a *Adapter) Capabilities() transport.Capabilities {
	return a.opts.Capabilities
}

// Send publishes payload on the outbound topic. It is a silent no-op when the
// adapter is disabled.
func (a *Adapter) Send(payload []byte, md metadata.Metadata) error {
	if !a.Available() {
		return nil
	}
	if !a.opts.Capabilities.Fits(len(payload)) {
		return fmt.Errorf("channel: payload of %d bytes exceeds %s limit of %d",
			len(payload), a.opts.Capabilities.Name, a.opts.Capabilities.MaxMessageSize)
	}

	msg := message.NewMessage(ids.New(), payload)
	msg.Metadata = metadata.ToWatermill(md)
	if err := a.tr.Publisher.Publish(a.opts.OutboundTopic, msg); err != nil {
		return fmt.Errorf("channel: publish to %s: %w", a.opts.OutboundTopic, err)
	}
	a.logger.Trace("Sent message", logging.LogFields{"uuid": msg.UUID, "topic": a.opts.OutboundTopic})
	return nil
}

// Subscribe adds h to the fan-out and returns a func that removes it. On a
// disabled adapter the handler is never called.
func (a *Adapter) Subscribe(h Handler) (stop func()) {
	if h == nil || !a.Available() {
		return func() {}
	}
	a.mu.Lock()
	a.nextID++
	id := a.nextID
	a.subs = append(a.subs, subscription{id: id, handler: h})
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			defer a.mu.Unlock()
			for i, s := range a.subs {
				if s.id == id {
					a.subs = append(a.subs[:i:i], a.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Subscribers reports the current fan-out size.
func (a *Adapter) Subscribers() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.subs)
}

// Listen starts the inbound pump. Calling it again while the pump runs is a
// no-op; a disabled adapter never pumps.
func (a *Adapter) Listen(ctx context.Context) error {
	if !a.Available() {
		return nil
	}
	a.listenMu.Lock()
	defer a.listenMu.Unlock()
	if a.cancel != nil {
		return nil
	}

	pumpCtx, cancel := context.WithCancel(ctx)
	messages, err := a.tr.Subscriber.Subscribe(pumpCtx, a.opts.InboundTopic)
	if err != nil {
		cancel()
		return fmt.Errorf("channel: subscribe to %s: %w", a.opts.InboundTopic, err)
	}

	a.cancel = cancel
	go a.pump(pumpCtx, messages)
	a.logger.Debug("Listening", logging.LogFields{"topic": a.opts.InboundTopic})
	return nil
}

func (a *Adapter) pump(ctx context.Context, messages <-chan *message.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			msg.Ack()
			a.fanOut(Inbound{
				UUID:       msg.UUID,
				Payload:    msg.Payload,
				Metadata:   metadata.FromWatermill(msg.Metadata),
				ReceivedAt: time.Now(),
			})
		}
	}
}

func (a *Adapter) fanOut(in Inbound) {
	a.mu.Lock()
	handlers := make([]Handler, len(a.subs))
	for i, s := range a.subs {
		handlers[i] = s.handler
	}
	a.mu.Unlock()

	for _, h := range handlers {
		h(in)
	}
}

// Close stops the pump and drops all subscribers. It does not wait for a
// handler that is currently running, so it is safe to call from one. The
// transport stays open.
func (a *Adapter) Close() error {
	a.listenMu.Lock()
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.listenMu.Unlock()

	a.mu.Lock()
	a.subs = nil
	a.mu.Unlock()
	return nil
}
