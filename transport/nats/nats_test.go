package nats

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	nc "github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/codeshot/transport"
	"github.com/drblury/codeshot/transport/transporttest"
)

func TestRegistered(t *testing.T) {
	caps := transport.GetCapabilities(TransportName)
	assert.Equal(t, "nats", caps.Name)
	assert.True(t, caps.Lossy())
	assert.True(t, caps.SupportsTracing)
	assert.Equal(t, transport.NATSCapabilities, Capabilities())
}

func TestConnectOptions(t *testing.T) {
	opts := nc.GetDefaultOptions()
	for _, opt := range ConnectOptions() {
		require.NoError(t, opt(&opts))
	}
	assert.Equal(t, ClientName, opts.Name)
	assert.Equal(t, -1, opts.MaxReconnect)
	assert.True(t, opts.RetryOnFailedConnect)
}

func stubFactories(t *testing.T, pub message.Publisher, pubErr error, sub message.Subscriber, subErr error) (*wmnats.PublisherConfig, *wmnats.SubscriberConfig) {
	t.Helper()
	originalPub, originalSub := PublisherFactory, SubscriberFactory
	t.Cleanup(func() {
		PublisherFactory, SubscriberFactory = originalPub, originalSub
	})

	var gotPub wmnats.PublisherConfig
	var gotSub wmnats.SubscriberConfig
	PublisherFactory = func(cfg wmnats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
		gotPub = cfg
		return pub, pubErr
	}
	SubscriberFactory = func(cfg wmnats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		gotSub = cfg
		return sub, subErr
	}
	return &gotPub, &gotSub
}

func TestBuild(t *testing.T) {
	t.Run("uses configured url and core nats", func(t *testing.T) {
		pub, sub := &transporttest.Publisher{}, &transporttest.Subscriber{}
		gotPub, gotSub := stubFactories(t, pub, nil, sub, nil)

		tr, err := Build(context.Background(), &transporttest.Config{NATSURL: "nats://broker:4222"}, watermill.NopLogger{})

		require.NoError(t, err)
		assert.Same(t, pub, tr.Publisher)
		assert.Same(t, sub, tr.Subscriber)
		assert.Equal(t, "nats://broker:4222", gotPub.URL)
		assert.Equal(t, "nats://broker:4222", gotSub.URL)
		assert.True(t, gotPub.JetStream.Disabled)
		assert.True(t, gotSub.JetStream.Disabled)
		assert.Len(t, gotPub.NatsOptions, len(ConnectOptions()))
	})

	t.Run("falls back to default url", func(t *testing.T) {
		gotPub, _ := stubFactories(t, &transporttest.Publisher{}, nil, &transporttest.Subscriber{}, nil)

		_, err := Build(context.Background(), &transporttest.Config{}, watermill.NopLogger{})

		require.NoError(t, err)
		assert.Equal(t, nc.DefaultURL, gotPub.URL)
	})

	t.Run("publisher failure", func(t *testing.T) {
		stubFactories(t, nil, errors.New("publisher error"), &transporttest.Subscriber{}, nil)

		_, err := Build(context.Background(), &transporttest.Config{}, watermill.NopLogger{})

		assert.ErrorContains(t, err, "publisher error")
	})

	t.Run("subscriber failure closes publisher", func(t *testing.T) {
		pub := &transporttest.Publisher{}
		stubFactories(t, pub, nil, nil, errors.New("subscriber error"))

		_, err := Build(context.Background(), &transporttest.Config{}, watermill.NopLogger{})

		assert.ErrorContains(t, err, "subscriber error")
		assert.Equal(t, 1, pub.Closed)
	})
}
