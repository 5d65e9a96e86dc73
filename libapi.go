package codeshot

import (
	"context"

	runtimepkg "github.com/drblury/codeshot/internal/runtime"
	"github.com/drblury/codeshot/internal/runtime/channel"
	configpkg "github.com/drblury/codeshot/internal/runtime/config"
	"github.com/drblury/codeshot/internal/runtime/envelope"
	errspkg "github.com/drblury/codeshot/internal/runtime/errors"
	"github.com/drblury/codeshot/internal/runtime/host"
	idspkg "github.com/drblury/codeshot/internal/runtime/ids"
	jsoncodec "github.com/drblury/codeshot/internal/runtime/jsoncodec"
	"github.com/drblury/codeshot/internal/runtime/listeners"
	loggingpkg "github.com/drblury/codeshot/internal/runtime/logging"
	metadatapkg "github.com/drblury/codeshot/internal/runtime/metadata"
	"github.com/drblury/codeshot/internal/runtime/orchestrator"
	"github.com/drblury/codeshot/internal/runtime/statestore"
	"github.com/drblury/codeshot/transport"
	_ "github.com/drblury/codeshot/transport/transports"
)

type (
	Config                = configpkg.Config
	ConfigValidationError = errspkg.ConfigValidationError

	Bridge[S any]      = runtimepkg.Bridge[S]
	BridgeDependencies = runtimepkg.BridgeDependencies
	BridgeOptions      = runtimepkg.Options
	LastMessage        = runtimepkg.LastMessage
	Groups[S any]      = runtimepkg.Groups[S]
	Scope[S any]       = runtimepkg.Scope[S]

	MessageType = envelope.MessageType
	Envelope    = envelope.Envelope
	Codec       = envelope.Codec

	SuccessFunc = listeners.SuccessFunc
	FailureFunc = listeners.FailureFunc

	RequestOption  = orchestrator.Option
	RequestMetrics = orchestrator.Metrics

	NativeStore = statestore.NativeStore
	Probe       = channel.Probe

	HostService            = host.Service
	HostDependencies       = host.Dependencies
	Command                = host.Command
	CommandFunc            = host.CommandFunc
	RequestFunc            = host.RequestFunc
	CodeSnapshot           = host.CodeSnapshot
	EditorConfig           = host.EditorConfig
	Notifier               = host.Notifier
	Clipboard              = host.Clipboard
	Saver                  = host.Saver
	MiddlewareRegistration = host.MiddlewareRegistration
	CommandHooks           = host.CommandHooks
	CommandContext         = host.CommandContext

	Transport             = transport.Transport
	TransportBuilder      = transport.Builder
	TransportConfig       = transport.Config
	TransportRegistry     = transport.Registry
	TransportCapabilities = transport.Capabilities

	Metadata = metadatapkg.Metadata

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger
)

var (
	ValidateConfig = configpkg.ValidateConfig

	NewCodec       = envelope.NewCodec
	WithInterval   = orchestrator.WithInterval
	WithTimeout    = orchestrator.WithTimeout
	WithMetadata   = orchestrator.WithMetadata
	NewMetrics     = orchestrator.NewMetrics
	NewHostService = host.NewService
	DecodeDataURL  = host.DecodeDataURL

	OpenStateStore = statestore.Open
	ConfigProbe    = channel.ConfigProbe
	StaticProbe    = channel.StaticProbe
	ReleaseChannel = channel.Release

	DefaultHostMiddlewares = host.DefaultMiddlewares
	CommandHooksMiddleware = host.CommandHooksMiddleware
	LoggingCommandHooks    = host.LoggingHooks

	DefaultTransportRegistry = transport.DefaultRegistry
	RegisterTransport        = transport.Register
	BuildTransport           = transport.Build
	GetCapabilities          = transport.GetCapabilities

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal

	ErrChannelUnavailable = errspkg.ErrChannelUnavailable
	ErrTimeout            = errspkg.ErrTimeout
	ErrStateTypeMismatch  = errspkg.ErrStateTypeMismatch
	ErrBridgeClosed       = errspkg.ErrBridgeClosed
	ErrTypeRequired       = errspkg.ErrTypeRequired
	ErrHandlerRequired    = errspkg.ErrHandlerRequired
	ErrInvalidDataURL     = errspkg.ErrInvalidDataURL
	ErrConfigRequired     = errspkg.ErrConfigRequired
	ErrLoggerRequired     = errspkg.ErrLoggerRequired

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NewNopServiceLogger  = loggingpkg.NewNopServiceLogger

	NewMetadata = metadatapkg.New
	NewID       = idspkg.New
)

// Metadata keys carried next to every envelope.
const (
	MetadataKeyCorrelationID = metadatapkg.KeyCorrelationID
	MetadataKeyOrigin        = metadatapkg.KeyOrigin
	MetadataKeyMessageType   = metadatapkg.KeyMessageType
)

// Message types understood by the host service.
const (
	TypeReady         = host.TypeReady
	TypeUpdateCode    = host.TypeUpdateCode
	TypeAlert         = host.TypeAlert
	TypeShowMessage   = host.TypeShowMessage
	TypeCopyImage     = host.TypeCopyImage
	TypeDownloadImage = host.TypeDownloadImage
)

func NewBridge[S any](ctx context.Context, conf *Config, log ServiceLogger, deps BridgeDependencies) (*Bridge[S], error) {
	return runtimepkg.NewBridge[S](ctx, conf, log, deps)
}

func NewGroups[S any](conf *Config, log ServiceLogger, deps BridgeDependencies) *Groups[S] {
	return runtimepkg.NewGroups[S](conf, log, deps)
}

func Global[S any](ctx context.Context, conf *Config, log ServiceLogger, deps BridgeDependencies) (*Bridge[S], error) {
	return runtimepkg.Global[S](ctx, conf, log, deps)
}

func RequestJSON[T any, S any](ctx context.Context, b *Bridge[S], t MessageType, data any, opts ...RequestOption) (T, error) {
	return runtimepkg.RequestJSON[T](ctx, b, t, data, opts...)
}

func OnJSON[T any, S any](b *Bridge[S], t MessageType, handler func(T), onFailure func(error)) (func() bool, error) {
	return runtimepkg.OnJSON(b, t, handler, onFailure)
}

func DecodeData[T any](e Envelope) (T, error) {
	return envelope.DecodeData[T](e)
}
