package runtime

import (
	"context"
	"encoding/json"

	"github.com/drblury/codeshot/internal/runtime/envelope"
	loggingpkg "github.com/drblury/codeshot/internal/runtime/logging"
	"github.com/drblury/codeshot/internal/runtime/orchestrator"
)

// RequestJSON runs Request and decodes the answer into T.
func RequestJSON[T any, S any](ctx context.Context, b *Bridge[S], t envelope.MessageType, data any, opts ...orchestrator.Option) (T, error) {
	var zero T
	raw, err := b.Request(ctx, t, data, opts...)
	if err != nil {
		return zero, err
	}
	return envelope.DecodeData[T](envelope.Envelope{Type: t, Data: raw})
}

// OnJSON registers a handler that receives the payload decoded into T. A
// payload that does not decode goes to onFailure, or is logged when there is
// none.
func OnJSON[T any, S any](b *Bridge[S], t envelope.MessageType, handler func(T), onFailure func(error)) (func() bool, error) {
	if handler == nil {
		return b.On(t, nil, onFailure)
	}
	return b.On(t, func(raw json.RawMessage) {
		v, err := envelope.DecodeData[T](envelope.Envelope{Type: t, Data: raw})
		if err != nil {
			if onFailure != nil {
				onFailure(err)
				return
			}
			b.Logger.Error("Listener payload does not decode", err, loggingpkg.LogFields{"type": t})
			return
		}
		handler(v)
	}, onFailure)
}
