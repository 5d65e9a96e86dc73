package channel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/codeshot/internal/runtime/config"
	errspkg "github.com/drblury/codeshot/internal/runtime/errors"
	"github.com/drblury/codeshot/internal/runtime/metadata"
	"github.com/drblury/codeshot/transport"
)

func newPair(t *testing.T) (webview *Adapter, host *Adapter) {
	t.Helper()
	bus := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, watermill.NopLogger{})
	t.Cleanup(func() { _ = bus.Close() })
	tr := transport.Transport{Publisher: bus, Subscriber: bus}

	webview = NewAdapter(tr, Options{OutboundTopic: "webview", InboundTopic: "host", Capabilities: transport.ChannelCapabilities})
	host = NewAdapter(tr, Options{OutboundTopic: "host", InboundTopic: "webview", Capabilities: transport.ChannelCapabilities})
	t.Cleanup(func() {
		_ = webview.Close()
		_ = host.Close()
	})
	return webview, host
}

func collect(a *Adapter) (<-chan Inbound, func()) {
	ch := make(chan Inbound, 16)
	stop := a.Subscribe(func(in Inbound) { ch <- in })
	return ch, stop
}

func next(t *testing.T, ch <-chan Inbound) Inbound {
	t.Helper()
	select {
	case in := <-ch:
		return in
	case <-time.After(time.Second):
		t.Fatal("no inbound message")
		return Inbound{}
	}
}

func TestSendAndListen(t *testing.T) {
	webview, host := newPair(t)
	received, _ := collect(host)
	require.NoError(t, host.Listen(context.Background()))

	require.NoError(t, webview.Send([]byte(`{"type":"ready"}`), metadata.New(metadata.KeyOrigin, "vscode-webview://x")))

	in := next(t, received)
	assert.JSONEq(t, `{"type":"ready"}`, string(in.Payload))
	assert.Equal(t, "vscode-webview://x", in.Metadata.Origin())
	assert.Len(t, in.UUID, 26)
	assert.False(t, in.ReceivedAt.IsZero())
}

func TestListenIsIdempotent(t *testing.T) {
	webview, host := newPair(t)
	received, _ := collect(host)
	require.NoError(t, host.Listen(context.Background()))
	require.NoError(t, host.Listen(context.Background()))

	require.NoError(t, webview.Send([]byte(`1`), nil))
	next(t, received)

	select {
	case <-received:
		t.Fatal("second Listen started a second pump")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFanOutInSubscriptionOrder(t *testing.T) {
	webview, host := newPair(t)
	var mu sync.Mutex
	var order []string
	done := make(chan struct{})
	host.Subscribe(func(Inbound) { mu.Lock(); order = append(order, "first"); mu.Unlock() })
	host.Subscribe(func(Inbound) { mu.Lock(); order = append(order, "second"); mu.Unlock(); close(done) })
	require.NoError(t, host.Listen(context.Background()))

	require.NoError(t, webview.Send([]byte(`1`), nil))
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestSubscribeStop(t *testing.T) {
	webview, host := newPair(t)
	stopped, stop := collect(host)
	kept, _ := collect(host)
	require.NoError(t, host.Listen(context.Background()))
	assert.Equal(t, 2, host.Subscribers())

	stop()
	stop()
	assert.Equal(t, 1, host.Subscribers())

	require.NoError(t, webview.Send([]byte(`1`), nil))
	next(t, kept)
	assert.Empty(t, stopped)
}

func TestDisabledAdapter(t *testing.T) {
	a := Disabled(Options{OutboundTopic: "webview"})

	assert.False(t, a.Available())
	assert.NoError(t, a.Send([]byte(`{"type":"ready"}`), nil))
	stop := a.Subscribe(func(Inbound) { t.Fatal("disabled adapter delivered a message") })
	stop()
	assert.Zero(t, a.Subscribers())
	assert.NoError(t, a.Listen(context.Background()))
	assert.NoError(t, a.Close())
}

func TestSendRejectsOversizedPayload(t *testing.T) {
	webview, _ := newPair(t)
	webview.opts.Capabilities = transport.Capabilities{Name: "aws", MaxMessageSize: 4}

	err := webview.Send([]byte(`"too large"`), nil)

	assert.ErrorContains(t, err, "exceeds aws limit")
}

func TestCloseStopsDelivery(t *testing.T) {
	webview, host := newPair(t)
	received, _ := collect(host)
	require.NoError(t, host.Listen(context.Background()))
	require.NoError(t, host.Close())
	assert.Zero(t, host.Subscribers())

	require.NoError(t, webview.Send([]byte(`1`), nil))
	select {
	case <-received:
		t.Fatal("closed adapter delivered a message")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAcquireOncePerProcess(t *testing.T) {
	t.Cleanup(func() { _ = Release() })
	bus := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	calls := 0
	probe := func(context.Context) (transport.Transport, error) {
		calls++
		return transport.Transport{Publisher: bus, Subscriber: bus}, nil
	}

	first, err := Acquire(context.Background(), probe)
	require.NoError(t, err)
	second, err := Acquire(context.Background(), probe)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Same(t, first.Publisher, second.Publisher)
	assert.True(t, Acquired())

	require.NoError(t, Release())
	assert.False(t, Acquired())
}

func TestAcquireFailuresAreNotCached(t *testing.T) {
	t.Cleanup(func() { _ = Release() })
	calls := 0
	probe := func(context.Context) (transport.Transport, error) {
		calls++
		if calls == 1 {
			return transport.Transport{}, errors.New("no host api")
		}
		bus := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
		return transport.Transport{Publisher: bus, Subscriber: bus}, nil
	}

	_, err := Acquire(context.Background(), probe)
	assert.ErrorIs(t, err, errspkg.ErrChannelUnavailable)
	assert.ErrorContains(t, err, "no host api")

	_, err = Acquire(context.Background(), probe)
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestAcquireWithoutCapability(t *testing.T) {
	_, err := Acquire(context.Background(), nil)
	assert.ErrorIs(t, err, errspkg.ErrChannelUnavailable)

	_, err = Acquire(context.Background(), StaticProbe(transport.Transport{}))
	assert.ErrorIs(t, err, errspkg.ErrChannelUnavailable)
	assert.False(t, Acquired())
}

func TestOpen(t *testing.T) {
	t.Cleanup(func() { _ = Release() })

	t.Run("disabled when probe fails", func(t *testing.T) {
		a, err := Open(context.Background(), config.Config{}, nil, nil)
		assert.ErrorIs(t, err, errspkg.ErrChannelUnavailable)
		require.NotNil(t, a)
		assert.False(t, a.Available())
	})

	t.Run("uses config topics", func(t *testing.T) {
		bus := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
		a, err := Open(context.Background(), config.Config{}, StaticProbe(transport.Transport{Publisher: bus, Subscriber: bus}), nil)
		require.NoError(t, err)
		assert.True(t, a.Available())
		assert.Equal(t, config.DefaultOutboundTopic, a.opts.OutboundTopic)
		assert.Equal(t, config.DefaultInboundTopic, a.opts.InboundTopic)
	})
}
