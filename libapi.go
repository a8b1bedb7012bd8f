package reactorflow

import (
	"context"

	runtimepkg "github.com/drblury/reactorflow/internal/runtime"
	configpkg "github.com/drblury/reactorflow/internal/runtime/config"
	"github.com/drblury/reactorflow/internal/runtime/dispatch"
	errspkg "github.com/drblury/reactorflow/internal/runtime/errors"
	idspkg "github.com/drblury/reactorflow/internal/runtime/ids"
	"github.com/drblury/reactorflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/reactorflow/internal/runtime/logging"
	"github.com/drblury/reactorflow/internal/runtime/lookup"
	metadatapkg "github.com/drblury/reactorflow/internal/runtime/metadata"
	"github.com/drblury/reactorflow/internal/runtime/messagepool"
	metricspkg "github.com/drblury/reactorflow/internal/runtime/metrics"
	"github.com/drblury/reactorflow/internal/runtime/registrar"
	"github.com/drblury/reactorflow/internal/runtime/wire"
	"github.com/drblury/reactorflow/transport"
	_ "github.com/drblury/reactorflow/transport/transports"
)

type (
	Config       = configpkg.Config
	PoolSize     = configpkg.PoolSize
	ConfigLoader = configpkg.Loader

	Reactor   = runtimepkg.Reactor
	Option    = runtimepkg.Option
	Directory = runtimepkg.Directory

	Message        = messagepool.Message
	MessageFactory = messagepool.Factory
	PoolStats      = messagepool.Stats
	Handler        = dispatch.Handler
	DispatchState  = dispatch.State

	Codec                         = wire.Codec
	Schema[M messagepool.Message] = wire.Schema[M]
	Field[M any]                  = wire.Field[M]
	FieldInfo                     = wire.FieldInfo
	Text                          = wire.Text
	Chars                         = wire.Chars

	MiddlewareBuilder      = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration = runtimepkg.MiddlewareRegistration
	RetryMiddlewareConfig  = runtimepkg.RetryMiddlewareConfig

	// Frame lifecycle hooks
	FrameContext = runtimepkg.FrameContext
	FrameHooks   = runtimepkg.FrameHooks
	FrameResult  = metricspkg.Result

	// Admin API views
	FrameStats     = runtimepkg.FrameStats
	MessageInfo    = runtimepkg.MessageInfo
	DispatcherInfo = runtimepkg.DispatcherInfo
	PeersInfo      = runtimepkg.PeersInfo
	TransportInfo  = runtimepkg.TransportInfo

	Metadata = metadatapkg.Metadata

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	// Discovery
	Entry           = lookup.Entry
	LookupStore     = lookup.Store
	LookupServer    = lookup.Server
	Resolver        = registrar.Resolver
	RegistrarCache  = registrar.Cache
	RegistrarClient = registrar.Client

	HandlerPanicError = errspkg.HandlerPanicError

	// Transports
	TransportBuilder      = transport.Builder
	TransportConfig       = transport.Config
	TransportRegistry     = transport.Registry
	TransportCapabilities = transport.Capabilities
)

var (
	ValidateConfig = configpkg.ValidateConfig
	NewLoader      = configpkg.NewLoader
	WithEnvFiles   = configpkg.WithEnvFiles
	ParseOverrides = configpkg.ParseOverrides

	WithLogger                = runtimepkg.WithLogger
	WithPrometheusRegistry    = runtimepkg.WithPrometheusRegistry
	WithDirectory             = runtimepkg.WithDirectory
	WithTransportRegistry     = runtimepkg.WithTransportRegistry
	WithMiddlewares           = runtimepkg.WithMiddlewares
	WithoutDefaultMiddlewares = runtimepkg.WithoutDefaultMiddlewares
	WithFrameHooks            = runtimepkg.WithFrameHooks

	DefaultMiddlewares      = runtimepkg.DefaultMiddlewares
	CorrelationIDMiddleware = runtimepkg.CorrelationIDMiddleware
	LogFramesMiddleware     = runtimepkg.LogFramesMiddleware
	TracerMiddleware        = runtimepkg.TracerMiddleware
	MetricsMiddleware       = runtimepkg.MetricsMiddleware
	RetryMiddleware         = runtimepkg.RetryMiddleware
	RecovererMiddleware     = runtimepkg.RecovererMiddleware

	LoggingHooks  = runtimepkg.LoggingHooks
	AlertingHooks = runtimepkg.AlertingHooks

	NewLookupStore    = lookup.NewStore
	NewLookupServer   = lookup.NewServer
	NewRegistrarCache = registrar.NewCache

	DefaultTransportRegistry = transport.DefaultRegistry
	RegisterTransport        = transport.RegisterWithCapabilities
	ChannelTopic             = transport.ChannelTopic

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal

	ErrConfiguration        = errspkg.ErrConfiguration
	ErrUnknownWireType      = errspkg.ErrUnknownWireType
	ErrUnhandledMessageType = errspkg.ErrUnhandledMessageType
	ErrEncoding             = errspkg.ErrEncoding
	ErrTransport            = errspkg.ErrTransport
	ErrTypeNotRegistered    = errspkg.ErrTypeNotRegistered
	ErrDuplicateCodec       = errspkg.ErrDuplicateCodec
	ErrSealed               = errspkg.ErrSealed
	ErrInvalidPoolSize      = errspkg.ErrInvalidPoolSize
	ErrBufferTooSmall       = errspkg.ErrBufferTooSmall
	ErrUnsupportedVersion   = errspkg.ErrUnsupportedVersion
	ErrInvalidBool          = errspkg.ErrInvalidBool
	ErrTypeMismatch         = errspkg.ErrTypeMismatch
	ErrNotRunning           = errspkg.ErrNotRunning
	ErrPeerNotFound         = errspkg.ErrPeerNotFound
	ErrDuplicateName        = errspkg.ErrDuplicateName
	ErrDuplicateChannel     = errspkg.ErrDuplicateChannel

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NewHandlerLogger     = loggingpkg.NewHandlerLogger
	NewDiscardLogger     = loggingpkg.NewDiscardLogger
	ParseLogLevel        = loggingpkg.ParseLevel

	NewMetadata = metadatapkg.New

	CreateULID = idspkg.CreateULID
)

// Metadata keys set on every outbound fragment.
const (
	MetadataKeyEndpoint      = transport.MetadataEndpoint
	MetadataKeySource        = transport.MetadataSource
	MetadataKeyTypeID        = transport.MetadataTypeID
	MetadataKeyCorrelationID = runtimepkg.MetadataCorrelationID
)

// Frame results reported to hooks and metrics.
const (
	ResultOK           = metricspkg.ResultOK
	ResultBounds       = metricspkg.ResultBounds
	ResultUnknownType  = metricspkg.ResultUnknownType
	ResultDecodeError  = metricspkg.ResultDecodeError
	ResultUnhandled    = metricspkg.ResultUnhandled
	ResultHandlerError = metricspkg.ResultHandlerError
	ResultRejected     = metricspkg.ResultRejected
)

// DefaultConfig returns a config with every built-in default filled in.
func DefaultConfig() Config {
	return configpkg.Default()
}

// NewReactor builds a reactor from conf. Every built-in transport is
// available through the default transport registry.
func NewReactor(ctx context.Context, conf *Config, opts ...Option) (*Reactor, error) {
	return runtimepkg.NewReactor(ctx, conf, opts...)
}

// RegisterHandler subscribes fn to typeID. Messages of any other Go type
// registered under typeID fail the handler instead of panicking.
func RegisterHandler[M Message](r *Reactor, typeID int32, fn func(M) error) error {
	return runtimepkg.RegisterHandler(r, typeID, fn)
}

// NewSchema describes a message layout for the wire codec.
func NewSchema[M Message](typeID int32, name string, fields ...Field[M]) *Schema[M] {
	return wire.NewSchema(typeID, name, fields...)
}

// NewRegistrarClient returns the HTTP client of a lookup service at
// baseURL+path. It can be passed to WithDirectory.
func NewRegistrarClient(baseURL, path string, logger ServiceLogger) (*RegistrarClient, error) {
	var opts []registrar.Option
	if logger != nil {
		opts = append(opts, registrar.WithLogger(logger))
	}
	return registrar.NewClient(baseURL, path, opts...)
}

// Field constructors for NewSchema. Fields are encoded in declaration order.

func Int32Field[M any](name string, ref func(M) *int32) Field[M] { return wire.Int32(name, ref) }

func Int64Field[M any](name string, ref func(M) *int64) Field[M] { return wire.Int64(name, ref) }

func Float64Field[M any](name string, ref func(M) *float64) Field[M] {
	return wire.Float64(name, ref)
}

func BoolField[M any](name string, ref func(M) *bool) Field[M] { return wire.Bool(name, ref) }

func TextField[M any](name string, ref func(M) *Text) Field[M] { return wire.ByteText(name, ref) }

func CharsField[M any](name string, ref func(M) *Chars) Field[M] { return wire.CharText(name, ref) }
