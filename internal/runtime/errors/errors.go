package errors

import sterrors "errors"

var (
	// ErrChannelUnavailable is returned when the native messaging handle could
	// not be acquired. It is never retried.
	ErrChannelUnavailable = sterrors.New("codeshot: channel unavailable")
	// ErrTimeout is returned when no matching response arrived in time.
	ErrTimeout = sterrors.New("codeshot: request timed out")

	ErrStateTypeMismatch = sterrors.New("codeshot: global bridge already created with a different state type")
	ErrBridgeClosed      = sterrors.New("codeshot: bridge is closed")
	ErrTypeRequired      = sterrors.New("codeshot: message type is required")
	ErrHandlerRequired   = sterrors.New("codeshot: handler function is required")
	ErrInvalidDataURL    = sterrors.New("codeshot: invalid data url")
	ErrConfigRequired    = sterrors.New("codeshot: config is required")
	ErrLoggerRequired    = sterrors.New("codeshot: logger is required")
	ErrPublisherRequired = sterrors.New("codeshot: publisher is required")
	ErrTopicRequired     = sterrors.New("codeshot: topic is required")
)

// ConfigValidationError wraps the joined problems reported by Config.Validate.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "codeshot: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

// NewConfigValidationError returns nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}
