package host

import (
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/codeshot/internal/runtime/envelope"
	loggingpkg "github.com/drblury/codeshot/internal/runtime/logging"
	"github.com/drblury/codeshot/internal/runtime/metadata"
)

func TestCommandHooksMiddleware(t *testing.T) {
	var started, done []CommandContext
	var failed []error
	hooks := CommandHooks{
		OnCommandStart: func(cc CommandContext) { started = append(started, cc) },
		OnCommandDone:  func(cc CommandContext) { done = append(done, cc) },
		OnCommandError: func(_ CommandContext, err error) { failed = append(failed, err) },
	}
	boom := errors.New("boom")
	mw := commandHooksMiddleware(envelope.Codec{}, hooks)

	ok := mw(func(*message.Message) ([]*message.Message, error) { return nil, nil })
	msg := message.NewMessage("m-1", []byte(`{"type":"copyImage"}`))
	msg.Metadata.Set(metadata.KeyCorrelationID, "c-1")
	_, err := ok(msg)
	require.NoError(t, err)

	bad := mw(func(*message.Message) ([]*message.Message, error) { return nil, boom })
	_, err = bad(message.NewMessage("m-2", []byte(`{"type":"alert"}`)))
	require.ErrorIs(t, err, boom)

	require.Len(t, started, 2)
	require.Len(t, done, 1)
	assert.Equal(t, envelope.MessageType("copyImage"), done[0].Type)
	assert.Equal(t, "c-1", done[0].CorrelationID)
	assert.Equal(t, "m-1", done[0].MessageUUID)
	assert.Equal(t, envelope.MessageType("alert"), started[1].Type)
	assert.Equal(t, []error{boom}, failed)
}

func TestCommandHooksMerge(t *testing.T) {
	var order []string
	a := CommandHooks{OnCommandStart: func(CommandContext) { order = append(order, "a") }}
	b := CommandHooks{
		OnCommandStart: func(CommandContext) { order = append(order, "b") },
		OnCommandError: func(CommandContext, error) { order = append(order, "b-err") },
	}
	merged := a.Merge(b)
	merged.OnCommandStart(CommandContext{})
	merged.OnCommandError(CommandContext{}, errors.New("x"))
	assert.Nil(t, merged.OnCommandDone)
	assert.Equal(t, []string{"a", "b", "b-err"}, order)
}

func TestLoggingHooksTolerateNilLogger(t *testing.T) {
	hooks := LoggingHooks(nil)
	assert.NotPanics(t, func() {
		hooks.OnCommandDone(CommandContext{Type: "ready"})
		hooks.OnCommandError(CommandContext{Type: "ready"}, errors.New("x"))
	})
	assert.NotNil(t, LoggingHooks(loggingpkg.NewNopServiceLogger()).OnCommandDone)
}
