// Package channel provides the in-memory Go channel transport. Every Build in
// one process leases the same bus, so a webview and a host living side by
// side talk to each other without a broker.
package channel

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/codeshot/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "channel"

// Factory allows overriding the channel creation for testing.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	pubSub := gochannel.NewGoChannel(cfg, logger)
	return pubSub, pubSub
}

// BusConfig is used when the shared bus is created.
var BusConfig = gochannel.Config{OutputChannelBuffer: 64}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.ChannelCapabilities)
	transport.RegisterWithCapabilities("gochannel", Build, transport.ChannelCapabilities)
}

type bus struct {
	mu     sync.Mutex
	pub    message.Publisher
	sub    message.Subscriber
	leases int
}

var shared bus

// Build leases the process bus, creating it on first use.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	shared.mu.Lock()
	defer shared.mu.Unlock()

	if shared.leases == 0 {
		shared.pub, shared.sub = Factory(BusConfig, logger)
	}
	shared.leases++

	l := &lease{}
	return transport.Transport{
		Publisher:  &leasedPublisher{Publisher: shared.pub, lease: l},
		Subscriber: &leasedSubscriber{Subscriber: shared.sub, lease: l},
	}, nil
}

// Leases reports how many handles currently share the bus.
func Leases() int {
	shared.mu.Lock()
	defer shared.mu.Unlock()
	return shared.leases
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.ChannelCapabilities
}

type lease struct {
	once sync.Once
	err  error
}

// release returns the lease once. The last lease closes the bus.
func (l *lease) release() error {
	l.once.Do(func() {
		shared.mu.Lock()
		defer shared.mu.Unlock()

		shared.leases--
		if shared.leases > 0 {
			return
		}
		l.err = transport.Transport{Publisher: shared.pub, Subscriber: shared.sub}.Close()
		shared.pub, shared.sub = nil, nil
	})
	return l.err
}

type leasedPublisher struct {
	message.Publisher
	lease *lease
}

func (p *leasedPublisher) Close() error { return p.lease.release() }

type leasedSubscriber struct {
	message.Subscriber
	lease *lease
}

func (s *leasedSubscriber) Close() error { return s.lease.release() }
