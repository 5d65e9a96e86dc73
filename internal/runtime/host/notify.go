package host

import (
	"context"

	loggingpkg "github.com/drblury/codeshot/internal/runtime/logging"
)

// Notifier shows messages to the user.
type Notifier interface {
	Info(ctx context.Context, msg string)
	Error(ctx context.Context, msg string)
}

// LogNotifier writes notifications to the service log.
type LogNotifier struct {
	logger loggingpkg.ServiceLogger
}

func NewLogNotifier(logger loggingpkg.ServiceLogger) *LogNotifier {
	return &LogNotifier{logger: loggingpkg.Component(logger, "notifier")}
}

func (n *LogNotifier) Info(_ context.Context, msg string) {
	n.logger.Info(msg, nil)
}

func (n *LogNotifier) Error(_ context.Context, msg string) {
	n.logger.Error(msg, nil, nil)
}
