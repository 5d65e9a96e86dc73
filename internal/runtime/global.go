package runtime

import (
	"context"
	"sync"

	configpkg "github.com/drblury/codeshot/internal/runtime/config"
	errspkg "github.com/drblury/codeshot/internal/runtime/errors"
	loggingpkg "github.com/drblury/codeshot/internal/runtime/logging"
)

var global struct {
	mu     sync.Mutex
	bridge any
}

// Global returns the process-wide bridge, building it on first use. It is
// never closed. A failed build is not remembered. Asking for a different
// state type than the first caller fails with ErrStateTypeMismatch.
func Global[S any](ctx context.Context, conf *configpkg.Config, log loggingpkg.ServiceLogger, deps BridgeDependencies) (*Bridge[S], error) {
	global.mu.Lock()
	defer global.mu.Unlock()

	if global.bridge != nil {
		b, ok := global.bridge.(*Bridge[S])
		if !ok {
			return nil, errspkg.ErrStateTypeMismatch
		}
		return b, nil
	}

	b, err := NewBridge[S](ctx, conf, log, deps)
	if err != nil {
		return nil, err
	}
	global.bridge = b
	return b, nil
}
