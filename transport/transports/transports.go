// Package transports imports every built-in transport so each registers
// itself with the default registry.
package transports

import (
	_ "github.com/drblury/reactorflow/transport/aws"
	_ "github.com/drblury/reactorflow/transport/channel"
	_ "github.com/drblury/reactorflow/transport/http"
	_ "github.com/drblury/reactorflow/transport/io"
	_ "github.com/drblury/reactorflow/transport/jetstream"
	_ "github.com/drblury/reactorflow/transport/kafka"
	_ "github.com/drblury/reactorflow/transport/nats"
	_ "github.com/drblury/reactorflow/transport/rabbitmq"
)
