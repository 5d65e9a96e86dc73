// Package host is the privileged end of the channel. It consumes webview
// envelopes with a Watermill router, runs the registered command handlers and
// publishes replies back to the webview.
package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/codeshot/internal/runtime/channel"
	configpkg "github.com/drblury/codeshot/internal/runtime/config"
	"github.com/drblury/codeshot/internal/runtime/envelope"
	errspkg "github.com/drblury/codeshot/internal/runtime/errors"
	"github.com/drblury/codeshot/internal/runtime/ids"
	loggingpkg "github.com/drblury/codeshot/internal/runtime/logging"
	"github.com/drblury/codeshot/internal/runtime/metadata"
)

const routerHandlerName = "codeshot_host"

var routerRun = func(router *message.Router, ctx context.Context) error {
	return router.Run(ctx)
}

// Command is one decoded webview envelope.
type Command struct {
	UUID     string
	Type     envelope.MessageType
	Data     json.RawMessage
	Metadata metadata.Metadata
}

// Envelope returns the command as an envelope for the typed decoders.
func (c Command) Envelope() envelope.Envelope {
	return envelope.Envelope{Type: c.Type, Data: c.Data}
}

// CommandFunc handles a one-way command.
type CommandFunc func(ctx context.Context, cmd Command) error

// RequestFunc answers a webview request. The result is sent back under the
// request type.
type RequestFunc func(ctx context.Context, cmd Command) (any, error)

// Dependencies holds optional collaborators. Leave fields nil for the
// defaults.
type Dependencies struct {
	// Probe finds the channel. Defaults to the transport selected by
	// Config.PubSubSystem, shared process-wide with the webview side.
	Probe     channel.Probe
	Notifier  Notifier
	Clipboard Clipboard
	Saver     Saver

	Middlewares               []MiddlewareRegistration // Appended after the default chain.
	DisableDefaultMiddlewares bool
	// DisableBuiltinCommands skips ready, alert, showMessage, copyImage and
	// downloadImage.
	DisableBuiltinCommands bool
	// ReplyWindow is how long replies are kept for resent requests.
	// Defaults to twice the request timeout.
	ReplyWindow time.Duration
}

// Service runs the host side of the channel.
type Service struct {
	Conf   configpkg.Config
	Logger loggingpkg.ServiceLogger

	publisher  message.Publisher
	subscriber message.Subscriber
	router     *message.Router
	codec      envelope.Codec

	notifier  Notifier
	clipboard Clipboard
	saver     Saver
	replies   *replyCache

	commandsMu sync.RWMutex
	commands   map[envelope.MessageType]CommandFunc

	codeMu sync.RWMutex
	code   CodeSnapshot

	httpServersMu sync.Mutex
	httpServers   map[int]*http.ServeMux
	servers       []*http.Server
}

// NewService builds the host service. Register commands before Start.
func NewService(ctx context.Context, conf *configpkg.Config, log loggingpkg.ServiceLogger, deps Dependencies) (*Service, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if err := configpkg.ValidateConfig(conf); err != nil {
		return nil, err
	}
	cfg := conf.WithDefaults()
	log = loggingpkg.Component(log, "host")
	log.Info("Creating host service", loggingpkg.LogFields{
		"pubsub_system": cfg.PubSubSystem,
		"config":        cfg,
	})

	probe := deps.Probe
	if probe == nil {
		probe = channel.ConfigProbe(cfg, log)
	}
	tr, err := channel.Acquire(ctx, probe)
	if err != nil {
		return nil, err
	}

	wmLogger := loggingpkg.NewWatermillAdapter(log)
	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("host: create router: %w", err)
	}

	window := deps.ReplyWindow
	if window <= 0 {
		window = 2 * cfg.Timeout
	}

	s := &Service{
		Conf:       cfg,
		Logger:     log,
		publisher:  tr.Publisher,
		subscriber: tr.Subscriber,
		router:     router,
		codec:      envelope.NewCodec(cfg.TypeKey, cfg.DataKey),
		notifier:   deps.Notifier,
		clipboard:  deps.Clipboard,
		saver:      deps.Saver,
		replies:    newReplyCache(window),
		commands:   make(map[envelope.MessageType]CommandFunc),
	}
	if s.notifier == nil {
		s.notifier = NewLogNotifier(log)
	}
	if s.clipboard == nil {
		s.clipboard = NewSystemClipboard()
	}
	if s.saver == nil {
		s.saver = DirSaver{Dir: cfg.SaveDir}
	}

	if err := s.registerConfiguredMiddlewares(deps); err != nil {
		return nil, err
	}
	if !deps.DisableBuiltinCommands {
		s.registerBuiltinCommands()
	}
	s.registerWebUI()

	s.router.AddNoPublisherHandler(routerHandlerName, cfg.OutboundTopic, sharedSubscriber{s.subscriber}, s.dispatch)
	return s, nil
}

// sharedSubscriber keeps the router from closing the process-wide
// subscriber on shutdown. Subscriptions still end with the router context.
type sharedSubscriber struct {
	message.Subscriber
}

func (sharedSubscriber) Close() error { return nil }

func (s *Service) registerConfiguredMiddlewares(deps Dependencies) error {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares))
	registrations = append(registrations, defaults...)
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := s.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("host: register middleware %s: %w", name, err)
		}
	}
	return nil
}

// Handle registers fn for t, replacing any previous handler.
func (s *Service) Handle(t envelope.MessageType, fn CommandFunc) error {
	if t == "" {
		return errspkg.ErrTypeRequired
	}
	if fn == nil {
		return errspkg.ErrHandlerRequired
	}
	s.commandsMu.Lock()
	s.commands[t] = fn
	s.commandsMu.Unlock()
	return nil
}

// HandleRequest registers fn for t and sends its result back under t,
// echoing the correlation id of the request.
func (s *Service) HandleRequest(t envelope.MessageType, fn RequestFunc) error {
	if fn == nil {
		return errspkg.ErrHandlerRequired
	}
	return s.Handle(t, func(ctx context.Context, cmd Command) error {
		result, err := fn(ctx, cmd)
		if err != nil {
			return err
		}
		return s.Reply(ctx, cmd, cmd.Type, result)
	})
}

// Commands lists the registered command types.
func (s *Service) Commands() []envelope.MessageType {
	s.commandsMu.RLock()
	defer s.commandsMu.RUnlock()
	out := make([]envelope.MessageType, 0, len(s.commands))
	for t := range s.commands {
		out = append(out, t)
	}
	return out
}

func (s *Service) dispatch(msg *message.Message) error {
	env := s.codec.Decode(msg.Payload)
	cmd := Command{
		UUID:     msg.UUID,
		Type:     env.Type,
		Data:     env.Data,
		Metadata: metadata.FromWatermill(msg.Metadata),
	}

	if cached, ok := s.replies.seen(cmd.Metadata.CorrelationID()); ok {
		if cached == nil {
			s.Logger.Trace("Dropping resent request", loggingpkg.LogFields{"type": cmd.Type})
			return nil
		}
		s.Logger.Trace("Replaying reply for resent request", loggingpkg.LogFields{"type": cmd.Type})
		return s.publish(cached.topic, cached.message())
	}

	s.commandsMu.RLock()
	fn, ok := s.commands[cmd.Type]
	s.commandsMu.RUnlock()
	if !ok {
		s.replies.forget(cmd.Metadata.CorrelationID())
		s.Logger.Debug("No command for message", loggingpkg.LogFields{"type": cmd.Type, "message_uuid": msg.UUID})
		return nil
	}

	if err := fn(msg.Context(), cmd); err != nil {
		s.replies.forget(cmd.Metadata.CorrelationID())
		return fmt.Errorf("host: command %s: %w", cmd.Type, err)
	}
	return nil
}

// Reply sends t with data to the webview as the answer to cmd.
func (s *Service) Reply(ctx context.Context, cmd Command, t envelope.MessageType, data any) error {
	md := metadata.New()
	if id := cmd.Metadata.CorrelationID(); id != "" {
		md = md.With(metadata.KeyCorrelationID, id)
	}
	msg, err := s.newMessage(ctx, t, data, md)
	if err != nil {
		return err
	}
	s.replies.store(cmd.Metadata.CorrelationID(), s.Conf.InboundTopic, msg)
	return s.publish(s.Conf.InboundTopic, msg)
}

// Push sends t with data to the webview unprompted.
func (s *Service) Push(ctx context.Context, t envelope.MessageType, data any) error {
	msg, err := s.newMessage(ctx, t, data, metadata.New())
	if err != nil {
		return err
	}
	return s.publish(s.Conf.InboundTopic, msg)
}

func (s *Service) newMessage(ctx context.Context, t envelope.MessageType, data any, md metadata.Metadata) (*message.Message, error) {
	if t == "" {
		return nil, errspkg.ErrTypeRequired
	}
	payload, err := s.codec.Encode(t, data)
	if err != nil {
		return nil, err
	}
	md = md.With(metadata.KeyOrigin, s.Conf.HostOrigin).With(metadata.KeyMessageType, string(t))

	msg := message.NewMessage(ids.New(), payload)
	msg.Metadata = metadata.ToWatermill(md)
	if ctx != nil {
		msg.SetContext(ctx)
	}
	return msg, nil
}

func (s *Service) publish(topic string, msg *message.Message) error {
	if s.publisher == nil {
		return errspkg.ErrPublisherRequired
	}
	if topic == "" {
		return errspkg.ErrTopicRequired
	}
	if err := s.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("host: publish %s: %w", topic, err)
	}
	return nil
}

// Start runs the router until ctx is canceled.
func (s *Service) Start(ctx context.Context) error {
	s.startHTTPServers()
	return routerRun(s.router, ctx)
}

// Running is closed once the router consumes messages.
func (s *Service) Running() chan struct{} {
	return s.router.Running()
}

// Close stops the router and the HTTP servers. The channel stays open; it
// belongs to the process.
func (s *Service) Close() error {
	err := s.router.Close()

	s.httpServersMu.Lock()
	servers := s.servers
	s.servers = nil
	s.httpServersMu.Unlock()

	for _, srv := range servers {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = errors.Join(err, srv.Shutdown(ctx))
		cancel()
	}
	return err
}

// RegisterHTTPHandler mounts handler on the server for port, started by Start.
func (s *Service) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpServers == nil {
		s.httpServers = make(map[int]*http.ServeMux)
	}
	mux, ok := s.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		s.httpServers[port] = mux
	}
	mux.Handle(pattern, handler)
}

func (s *Service) startHTTPServers() {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	for port, mux := range s.httpServers {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		s.servers = append(s.servers, srv)
		s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": srv.Addr})
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.Logger.Error("HTTP server failed", err, loggingpkg.LogFields{"address": srv.Addr})
			}
		}()
	}
	s.httpServers = nil
}
