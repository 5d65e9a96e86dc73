package host

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/codeshot/internal/runtime/envelope"
	loggingpkg "github.com/drblury/codeshot/internal/runtime/logging"
	"github.com/drblury/codeshot/internal/runtime/metadata"
)

// CommandContext describes one command execution to hooks.
type CommandContext struct {
	Type          envelope.MessageType
	MessageUUID   string
	CorrelationID string
	Metadata      message.Metadata
	Context       context.Context
	StartedAt     time.Time
	// Duration is only set in OnCommandDone and OnCommandError.
	Duration time.Duration
}

// CommandHooks are callbacks around command execution. Nil hooks are skipped.
type CommandHooks struct {
	OnCommandStart func(ctx CommandContext)
	OnCommandDone  func(ctx CommandContext)
	OnCommandError func(ctx CommandContext, err error)
}

// Merge returns hooks that call h first, then other.
func (h CommandHooks) Merge(other CommandHooks) CommandHooks {
	return CommandHooks{
		OnCommandStart: chain(h.OnCommandStart, other.OnCommandStart),
		OnCommandDone:  chain(h.OnCommandDone, other.OnCommandDone),
		OnCommandError: chainErr(h.OnCommandError, other.OnCommandError),
	}
}

func chain(a, b func(CommandContext)) func(CommandContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx CommandContext) {
		a(ctx)
		b(ctx)
	}
}

func chainErr(a, b func(CommandContext, error)) func(CommandContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx CommandContext, err error) {
		a(ctx, err)
		b(ctx, err)
	}
}

// CommandHooksMiddleware invokes hooks for every webview message the router
// handles. Register it through Dependencies.Middlewares.
func CommandHooksMiddleware(hooks CommandHooks) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "command_hooks",
		Builder: func(s *Service) (message.HandlerMiddleware, error) {
			return commandHooksMiddleware(s.codec, hooks), nil
		},
	}
}

func commandHooksMiddleware(codec envelope.Codec, hooks CommandHooks) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			cc := CommandContext{
				Type:          codec.Decode(msg.Payload).Type,
				MessageUUID:   msg.UUID,
				CorrelationID: msg.Metadata.Get(metadata.KeyCorrelationID),
				Metadata:      msg.Metadata,
				Context:       msg.Context(),
				StartedAt:     time.Now(),
			}
			if hooks.OnCommandStart != nil {
				hooks.OnCommandStart(cc)
			}

			msgs, err := h(msg)
			cc.Duration = time.Since(cc.StartedAt)

			if err != nil {
				if hooks.OnCommandError != nil {
					hooks.OnCommandError(cc, err)
				}
			} else if hooks.OnCommandDone != nil {
				hooks.OnCommandDone(cc)
			}
			return msgs, err
		}
	}
}

// LoggingHooks logs command completion and failure.
func LoggingHooks(logger loggingpkg.ServiceLogger) CommandHooks {
	logger = loggingpkg.OrNop(logger)
	return CommandHooks{
		OnCommandDone: func(cc CommandContext) {
			logger.Debug("Command completed", loggingpkg.LogFields{
				"type":           cc.Type,
				"message_uuid":   cc.MessageUUID,
				"correlation_id": cc.CorrelationID,
				"duration_ms":    cc.Duration.Milliseconds(),
			})
		},
		OnCommandError: func(cc CommandContext, err error) {
			logger.Error("Command failed", err, loggingpkg.LogFields{
				"type":           cc.Type,
				"message_uuid":   cc.MessageUUID,
				"correlation_id": cc.CorrelationID,
				"duration_ms":    cc.Duration.Milliseconds(),
			})
		},
	}
}
