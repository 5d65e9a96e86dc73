package runtime

import (
	"context"
	"sync"

	configpkg "github.com/drblury/codeshot/internal/runtime/config"
	"github.com/drblury/codeshot/internal/runtime/envelope"
	errspkg "github.com/drblury/codeshot/internal/runtime/errors"
	"github.com/drblury/codeshot/internal/runtime/listeners"
	loggingpkg "github.com/drblury/codeshot/internal/runtime/logging"
)

// Groups hands out one shared Bridge per consumer group. The bridge of a group
// is built by its first Acquire and closed when its last Scope closes. Each
// group keeps its state under "<StateKey>/<group id>"; deps.StateStore is
// not used.
type Groups[S any] struct {
	conf   *configpkg.Config
	logger loggingpkg.ServiceLogger
	deps   BridgeDependencies

	mu     sync.Mutex
	groups map[string]*group[S]
}

type group[S any] struct {
	bridge *Bridge[S]
	scopes int
}

func NewGroups[S any](conf *configpkg.Config, log loggingpkg.ServiceLogger, deps BridgeDependencies) *Groups[S] {
	return &Groups[S]{
		conf:   conf,
		logger: loggingpkg.OrNop(log),
		deps:   deps,
		groups: make(map[string]*group[S]),
	}
}

// Acquire returns a new Scope on the bridge of id.
func (g *Groups[S]) Acquire(ctx context.Context, id string) (*Scope[S], error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	grp, ok := g.groups[id]
	if !ok {
		if g.conf == nil {
			return nil, errspkg.ErrConfigRequired
		}
		conf := g.conf.WithDefaults()
		conf.StateKey = conf.StateKey + "/" + id
		deps := g.deps
		deps.StateStore = nil
		bridge, err := NewBridge[S](ctx, &conf, g.logger.With(loggingpkg.LogFields{"group": id}), deps)
		if err != nil {
			return nil, err
		}
		grp = &group[S]{bridge: bridge}
		g.groups[id] = grp
	}
	grp.scopes++
	return &Scope[S]{groups: g, id: id, bridge: grp.bridge}, nil
}

// Len reports how many groups hold a live bridge.
func (g *Groups[S]) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.groups)
}

func (g *Groups[S]) release(id string) error {
	g.mu.Lock()
	grp, ok := g.groups[id]
	if !ok {
		g.mu.Unlock()
		return nil
	}
	grp.scopes--
	if grp.scopes > 0 {
		g.mu.Unlock()
		return nil
	}
	delete(g.groups, id)
	g.mu.Unlock()
	return grp.bridge.Close()
}

// Scope is one consumer's handle on a shared bridge. Listeners registered
// through the scope are removed when it closes.
type Scope[S any] struct {
	groups *Groups[S]
	id     string
	bridge *Bridge[S]

	mu        sync.Mutex
	disposers []func() bool
	closed    bool
}

// Bridge returns the shared bridge.
func (s *Scope[S]) Bridge() *Bridge[S] {
	return s.bridge
}

func (s *Scope[S]) GroupID() string {
	return s.id
}

// On registers on the shared bridge and remembers the disposer.
func (s *Scope[S]) On(t envelope.MessageType, onSuccess listeners.SuccessFunc, onFailure listeners.FailureFunc) (func() bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errspkg.ErrBridgeClosed
	}
	dispose, err := s.bridge.On(t, onSuccess, onFailure)
	if err != nil {
		return nil, err
	}
	s.disposers = append(s.disposers, dispose)
	return dispose, nil
}

// Close removes the scope's listeners. The bridge closes with its last scope.
// In-flight requests are not canceled.
func (s *Scope[S]) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	disposers := s.disposers
	s.disposers = nil
	s.mu.Unlock()

	for _, dispose := range disposers {
		dispose()
	}
	return s.groups.release(s.id)
}
