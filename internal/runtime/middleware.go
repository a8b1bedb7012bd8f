package runtime

import (
	"errors"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	errspkg "github.com/drblury/reactorflow/internal/runtime/errors"
	idspkg "github.com/drblury/reactorflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/reactorflow/internal/runtime/logging"
	"github.com/drblury/reactorflow/transport"
)

// MetadataCorrelationID is set on consumed messages that arrive without one.
const MetadataCorrelationID = "correlation_id"

// MiddlewareBuilder constructs a router middleware for a reactor. A nil
// middleware with a nil error skips the registration.
type MiddlewareBuilder func(*Reactor) (message.HandlerMiddleware, error)

// MiddlewareRegistration names a router middleware. Either Middleware or
// Builder must be set.
type MiddlewareRegistration struct {
	Name       string
	Middleware message.HandlerMiddleware
	Builder    MiddlewareBuilder
}

// RetryMiddlewareConfig customises the retry middleware. Zero values get
// defaults.
type RetryMiddlewareConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// RetryIf selects retryable errors. The default only retries fragments
	// the dispatcher rejected.
	RetryIf func(error) bool
}

func (cfg RetryMiddlewareConfig) withDefaults() RetryMiddlewareConfig {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 10 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = time.Second
	}
	if cfg.RetryIf == nil {
		cfg.RetryIf = func(err error) bool { return errors.Is(err, errspkg.ErrNotRunning) }
	}
	return cfg
}

// DefaultMiddlewares returns the chain every reactor router gets unless
// WithoutDefaultMiddlewares is passed.
func DefaultMiddlewares() []MiddlewareRegistration {
	return []MiddlewareRegistration{
		CorrelationIDMiddleware(),
		LogFramesMiddleware(nil),
		TracerMiddleware(),
		MetricsMiddleware(),
		RetryMiddleware(RetryMiddlewareConfig{}),
		RecovererMiddleware(),
	}
}

func (r *Reactor) registerMiddlewares(o options) error {
	var regs []MiddlewareRegistration
	if !o.noDefaults {
		regs = DefaultMiddlewares()
	}
	regs = append(regs, o.middlewares...)
	for _, reg := range regs {
		if err := r.RegisterMiddleware(reg); err != nil {
			return err
		}
	}
	return nil
}

// RegisterMiddleware attaches a middleware to the router.
func (r *Reactor) RegisterMiddleware(cfg MiddlewareRegistration) error {
	if r.router == nil {
		return errors.New("router is not initialised")
	}

	var mw message.HandlerMiddleware
	switch {
	case cfg.Middleware != nil:
		mw = cfg.Middleware
	case cfg.Builder != nil:
		var err error
		mw, err = cfg.Builder(r)
		if err != nil {
			return err
		}
	default:
		return errors.New("middleware registration requires Middleware or Builder")
	}

	if mw == nil {
		return nil
	}
	r.router.AddMiddleware(mw)
	return nil
}

// MetricsMiddleware adds watermill's router and publisher metrics to the
// reactor's Prometheus registry when metrics are enabled.
func MetricsMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "metrics",
		Builder: func(r *Reactor) (message.HandlerMiddleware, error) {
			if !r.Conf.MetricsEnabled {
				return nil, nil
			}
			builder := metrics.NewPrometheusMetricsBuilder(
				r.registry,
				namespace,
				strings.ReplaceAll(r.caps.Name, "-", "_"),
			)
			builder.AddPrometheusRouterMetrics(r.router)

			pub, err := builder.DecoratePublisher(r.publisher)
			if err != nil {
				return nil, err
			}
			r.publisher = pub
			return nil, nil
		},
	}
}

const namespace = "reactorflow"

// CorrelationIDMiddleware gives every consumed message a correlation id.
func CorrelationIDMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "correlation_id",
		Middleware: correlationIDMiddleware,
	}
}

func correlationIDMiddleware(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		if msg.Metadata.Get(MetadataCorrelationID) == "" {
			msg.Metadata.Set(MetadataCorrelationID, idspkg.CreateULID())
		}
		return h(msg)
	}
}

// LogFramesMiddleware logs every consumed frame at debug level. A nil logger
// uses the reactor's.
func LogFramesMiddleware(logger loggingpkg.ServiceLogger) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "log_frames",
		Builder: func(r *Reactor) (message.HandlerMiddleware, error) {
			l := logger
			if l == nil {
				l = r.Logger
			}
			if l == nil {
				return nil, errspkg.ErrLoggerRequired
			}
			return logFramesMiddleware(l), nil
		},
	}
}

func logFramesMiddleware(logger loggingpkg.ServiceLogger) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			logger.Debug("Consuming frame", loggingpkg.LogFields{
				"message_uuid": msg.UUID,
				"length":       len(msg.Payload),
				"source":       msg.Metadata.Get(transport.MetadataSource),
				"type_id":      msg.Metadata.Get(transport.MetadataTypeID),
			})
			return h(msg)
		}
	}
}

// TracerMiddleware wraps consumption in an OpenTelemetry span.
func TracerMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "tracer",
		Builder: func(r *Reactor) (message.HandlerMiddleware, error) {
			return r.tracerMiddleware(), nil
		},
	}
}

func (r *Reactor) tracerMiddleware() message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			ctx, span := r.tracer.Start(msg.Context(), "ConsumeFrame", trace.WithSpanKind(trace.SpanKindConsumer))
			defer span.End()
			msg.SetContext(ctx)

			span.SetAttributes(
				attribute.String("message.uuid", msg.UUID),
				attribute.String("reactorflow.source", msg.Metadata.Get(transport.MetadataSource)),
				attribute.String("reactorflow.type_id", msg.Metadata.Get(transport.MetadataTypeID)),
				attribute.Int("reactorflow.length", len(msg.Payload)),
			)
			out, err := h(msg)
			if err != nil {
				span.RecordError(err)
			}
			return out, err
		}
	}
}

// RetryMiddleware retries consumption with exponential backoff before the
// message is nacked.
func RetryMiddleware(cfg RetryMiddlewareConfig) MiddlewareRegistration {
	normalized := cfg.withDefaults()
	return MiddlewareRegistration{
		Name: "retry",
		Builder: func(r *Reactor) (message.HandlerMiddleware, error) {
			return middleware.Retry{
				MaxRetries:      normalized.MaxRetries,
				InitialInterval: normalized.InitialInterval,
				MaxInterval:     normalized.MaxInterval,
				Logger:          loggingpkg.NewWatermillAdapter(r.Logger),
				ShouldRetry: func(params middleware.RetryParams) bool {
					return normalized.RetryIf(params.Err)
				},
			}.Middleware, nil
		},
	}
}

// RecovererMiddleware turns a panic in the pipeline into a nack.
func RecovererMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "recoverer",
		Middleware: middleware.Recoverer,
	}
}
