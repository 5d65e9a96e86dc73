// Package transports imports every built-in channel backend for its
// registration side effect.
package transports

import (
	_ "github.com/drblury/codeshot/transport/aws"
	_ "github.com/drblury/codeshot/transport/channel"
	_ "github.com/drblury/codeshot/transport/http"
	_ "github.com/drblury/codeshot/transport/io"
	_ "github.com/drblury/codeshot/transport/kafka"
	_ "github.com/drblury/codeshot/transport/nats"
	_ "github.com/drblury/codeshot/transport/rabbitmq"
)
