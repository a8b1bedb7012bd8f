package runtime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cenkalti/backoff/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	configpkg "github.com/drblury/reactorflow/internal/runtime/config"
	"github.com/drblury/reactorflow/internal/runtime/dispatch"
	errspkg "github.com/drblury/reactorflow/internal/runtime/errors"
	"github.com/drblury/reactorflow/internal/runtime/fragment"
	"github.com/drblury/reactorflow/internal/runtime/idle"
	idspkg "github.com/drblury/reactorflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/reactorflow/internal/runtime/logging"
	"github.com/drblury/reactorflow/internal/runtime/lookup"
	metadatapkg "github.com/drblury/reactorflow/internal/runtime/metadata"
	"github.com/drblury/reactorflow/internal/runtime/messagepool"
	metricspkg "github.com/drblury/reactorflow/internal/runtime/metrics"
	"github.com/drblury/reactorflow/internal/runtime/pool"
	"github.com/drblury/reactorflow/internal/runtime/registrar"
	"github.com/drblury/reactorflow/internal/runtime/wire"
	"github.com/drblury/reactorflow/transport"
)

const tracerName = "github.com/drblury/reactorflow"

var routerRun = func(router *message.Router, ctx context.Context) error {
	return router.Run(ctx)
}

// Directory publishes this reactor and resolves its peers. registrar.Client
// is the HTTP implementation.
type Directory interface {
	registrar.Resolver
	Publish(ctx context.Context, e lookup.Entry) (lookup.Entry, error)
	Withdraw(ctx context.Context, name string) error
}

// Option customises a Reactor.
type Option func(*options)

type options struct {
	logger      loggingpkg.ServiceLogger
	registry    *prometheus.Registry
	directory   Directory
	transports  *transport.Registry
	middlewares []MiddlewareRegistration
	noDefaults  bool
	hooks       FrameHooks
}

// WithLogger replaces the logger built from the log settings of the config.
func WithLogger(l loggingpkg.ServiceLogger) Option {
	return func(o *options) { o.logger = l }
}

// WithPrometheusRegistry collects the reactor's metrics into reg instead of
// a private registry.
func WithPrometheusRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithDirectory replaces the HTTP registrar client.
func WithDirectory(d Directory) Option {
	return func(o *options) { o.directory = d }
}

// WithTransportRegistry builds the transport from reg instead of
// transport.DefaultRegistry.
func WithTransportRegistry(reg *transport.Registry) Option {
	return func(o *options) { o.transports = reg }
}

// WithMiddlewares appends router middlewares after the default chain.
func WithMiddlewares(m ...MiddlewareRegistration) Option {
	return func(o *options) { o.middlewares = append(o.middlewares, m...) }
}

// WithoutDefaultMiddlewares skips the default router middleware chain.
func WithoutDefaultMiddlewares() Option {
	return func(o *options) { o.noDefaults = true }
}

// WithFrameHooks observes every consumed fragment.
func WithFrameHooks(h FrameHooks) Option {
	return func(o *options) { o.hooks = o.hooks.Merge(h) }
}

// Reactor is one process taking part in a reactorflow system. It owns the
// message pools, codecs, dispatcher and peer cache, consumes the topic of its
// channel and signals peers over the configured transport.
//
// Register messages and handlers before calling Start.
type Reactor struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	pools      *messagepool.Registry
	codecs     *wire.Registry
	dispatcher *dispatch.Dispatcher
	fragments  *fragment.Handler
	metrics    *metricspkg.Metrics
	registry   *prometheus.Registry
	stats      *frameStats
	hooks      FrameHooks
	tracer     trace.Tracer

	directory Directory
	peers     *registrar.Cache

	transport  transport.Transport
	caps       transport.Capabilities
	publisher  message.Publisher
	subscriber message.Subscriber
	router     *message.Router

	mu       sync.Mutex
	started  bool
	self     lookup.Entry
	admin    *http.Server
	adminLn  net.Listener
	stopOnce sync.Once
	stopErr  error
}

// NewReactor validates conf, builds the transport it selects and wires the
// pipeline. Configuration errors are returned before anything is started.
func NewReactor(ctx context.Context, conf *configpkg.Config, opts ...Option) (*Reactor, error) {
	if err := configpkg.ValidateConfig(conf); err != nil {
		return nil, err
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	log, err := resolveLogger(conf, o.logger)
	if err != nil {
		return nil, err
	}
	log = log.With(loggingpkg.LogFields{"reactor": conf.GetReactorName()})
	wmLogger := loggingpkg.NewWatermillAdapter(log)

	// Validate has already parsed these.
	mode, _ := dispatch.ParseMode(conf.DispatchMode)
	wait, _ := idle.Parse(conf.IdleStrategy, conf.IdleSleep)
	strategy, _ := pool.ParseStrategy(conf.PoolStrategy)

	r := &Reactor{
		Conf:     conf,
		Logger:   log,
		pools:    messagepool.New(messagepool.WithStrategy(strategy), messagepool.WithIdle(wait)),
		codecs:   wire.NewRegistry(),
		registry: o.registry,
		stats:    newFrameStats(),
		hooks:    o.hooks,
		tracer:   otel.Tracer(tracerName),
	}

	if r.registry == nil {
		r.registry = prometheus.NewRegistry()
		r.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	r.metrics = metricspkg.New(r.registry)

	r.dispatcher, err = dispatch.New(r.pools, dispatch.Config{
		Mode:       mode,
		Capacity:   conf.RingCapacity,
		OfferIdle:  wait,
		WorkerIdle: wait,
		CPUs:       conf.CPUs,
		Observer:   r.metrics,
		OnError: func(typeID int32, err error) {
			log.Error("Queued delivery failed", err, loggingpkg.LogFields{"type_id": typeID})
		},
	})
	if err != nil {
		return nil, err
	}
	if err := r.metrics.Register(metricspkg.NewCollector(r.pools, r.dispatcher)); err != nil {
		return nil, fmt.Errorf("%w: metrics: %v", errspkg.ErrConfiguration, err)
	}

	r.fragments, err = fragment.New(r.codecs, r.pools, r.dispatcher, log, r.metrics)
	if err != nil {
		return nil, err
	}

	r.directory = o.directory
	if r.directory == nil {
		client, err := newRegistrarClient(conf, log)
		if err != nil {
			return nil, err
		}
		r.directory = client
	}
	r.peers = registrar.NewCache(r.directory)

	registry := o.transports
	if registry == nil {
		registry = transport.DefaultRegistry
	}
	r.transport, err = registry.Build(ctx, conf, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errspkg.ErrTransport, err)
	}
	r.caps = registry.GetCapabilities(conf.GetPubSubSystem())
	r.publisher = r.transport.Publisher
	r.subscriber = r.transport.Subscriber
	if r.publisher == nil || r.subscriber == nil {
		_ = r.transport.Close()
		return nil, errspkg.ErrPublisherRequired
	}

	r.router, err = message.NewRouter(message.RouterConfig{CloseTimeout: 10 * time.Second}, wmLogger)
	if err != nil {
		_ = r.transport.Close()
		return nil, err
	}
	if err := r.registerMiddlewares(o); err != nil {
		_ = r.transport.Close()
		return nil, err
	}

	log.Info("Reactor created", loggingpkg.LogFields{
		"transport": r.caps.Name,
		"mode":      mode.String(),
	})
	return r, nil
}

func resolveLogger(conf *configpkg.Config, log loggingpkg.ServiceLogger) (loggingpkg.ServiceLogger, error) {
	if log != nil {
		return log, nil
	}
	level, err := loggingpkg.ParseLevel(conf.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errspkg.ErrConfiguration, err)
	}
	return loggingpkg.NewHandlerLogger(os.Stderr, conf.LogFormat, level)
}

func newRegistrarClient(conf *configpkg.Config, log loggingpkg.ServiceLogger) (*registrar.Client, error) {
	opts := []registrar.Option{registrar.WithLogger(log)}
	if conf.RetryMaxRetries > 0 {
		opts = append(opts, registrar.WithRetry(0, uint(conf.RetryMaxRetries)+1))
	}
	if conf.RetryInitialInterval > 0 || conf.RetryMaxInterval > 0 {
		initial, ceiling := conf.RetryInitialInterval, conf.RetryMaxInterval
		opts = append(opts, registrar.WithBackOff(func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			if initial > 0 {
				b.InitialInterval = initial
			}
			if ceiling > 0 {
				b.MaxInterval = ceiling
			}
			return b
		}))
	}
	return registrar.NewClient(conf.LookupURL, conf.LookupPath, opts...)
}

// RegisterMessage creates the pool of codec's type, sized from the pool
// settings for its name, and registers the codec. Registering the same type
// twice fails.
func (r *Reactor) RegisterMessage(codec wire.Codec, factory messagepool.Factory) error {
	if codec == nil {
		return fmt.Errorf("%w: codec is required", errspkg.ErrConfiguration)
	}
	if factory == nil {
		return errspkg.ErrFactoryRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("%w: cannot register %s after start", errspkg.ErrSealed, codec.Name())
	}
	if _, ok := r.codecs.Lookup(codec.TypeID()); ok {
		return fmt.Errorf("%w: %d (%s)", errspkg.ErrDuplicateCodec, codec.TypeID(), codec.Name())
	}

	size := r.Conf.PoolSize(codec.Name())
	if err := r.pools.Register(codec.TypeID(), codec.Name(), factory, size.Min, size.Max); err != nil {
		return err
	}
	if err := r.codecs.Register(codec); err != nil {
		return err
	}
	r.Logger.Debug("Message registered", loggingpkg.LogFields{
		"type_id":  codec.TypeID(),
		"type":     codec.Name(),
		"pool_min": size.Min,
		"pool_max": size.Max,
	})
	return nil
}

// Handle appends h to the handlers of typeID. The type must be registered.
func (r *Reactor) Handle(typeID int32, h dispatch.Handler) error {
	if !r.pools.Registered(typeID) {
		return fmt.Errorf("%w: %d", errspkg.ErrTypeNotRegistered, typeID)
	}
	return r.dispatcher.Register(typeID, h)
}

// RegisterHandler registers a handler receiving the concrete message type M,
// for example *messages.Demo.
func RegisterHandler[M messagepool.Message](r *Reactor, typeID int32, fn func(M) error) error {
	if fn == nil {
		return errspkg.ErrHandlerRequired
	}
	return r.Handle(typeID, func(msg messagepool.Message) error {
		m, ok := msg.(M)
		if !ok {
			return fmt.Errorf("reactorflow: handler for type %d cannot take %T", typeID, msg)
		}
		return fn(m)
	})
}

// Start publishes the reactor to the lookup service, starts the dispatcher,
// subscribes to the topic of the assigned channel and runs the router until
// ctx is cancelled or Stop is called. Resources are released on return.
func (r *Reactor) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return fmt.Errorf("%w: reactor already started", errspkg.ErrConfiguration)
	}
	r.started = true
	r.mu.Unlock()

	if err := r.start(ctx); err != nil {
		return errors.Join(err, r.Stop())
	}
	err := routerRun(r.router, ctx)
	return errors.Join(err, r.Stop())
}

func (r *Reactor) start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	self, err := r.directory.Publish(ctx, lookup.Entry{
		Name:     r.Conf.GetReactorName(),
		Endpoint: r.Conf.Endpoint,
		StreamID: r.Conf.Channel,
	})
	if err != nil {
		return fmt.Errorf("publish reactor: %w", err)
	}
	r.self = self

	if err := r.dispatcher.Start(); err != nil {
		return err
	}

	topic := transport.ChannelTopic(self.StreamID)
	r.router.AddConsumerHandler("reactorflow-"+self.Name, topic, r.subscriber, r.consume)

	if r.Conf.AdminEnabled {
		if err := r.startAdmin(); err != nil {
			return err
		}
	}

	r.Logger.Info("Reactor started", loggingpkg.LogFields{
		"channel":  self.StreamID,
		"topic":    topic,
		"endpoint": self.Endpoint,
	})
	return nil
}

// Running is closed once the router consumes.
func (r *Reactor) Running() chan struct{} {
	return r.router.Running()
}

// Stop closes the router, stops the dispatcher and the admin server,
// withdraws the reactor from the lookup service and closes the transport.
// It is safe to call more than once.
func (r *Reactor) Stop() error {
	r.stopOnce.Do(func() {
		var errs []error
		errs = append(errs, r.router.Close())
		r.dispatcher.Stop()

		r.mu.Lock()
		admin, self := r.admin, r.self
		r.mu.Unlock()

		if admin != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := admin.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("admin shutdown: %w", err))
			}
			cancel()
		}
		if self.Name != "" {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := r.directory.Withdraw(ctx, self.Name); err != nil && !errors.Is(err, errspkg.ErrPeerNotFound) {
				r.Logger.Error("Withdraw failed", err, loggingpkg.LogFields{"name": self.Name})
			}
			cancel()
		}
		errs = append(errs, r.transport.Close())
		r.stopErr = errors.Join(errs...)
		r.Logger.Info("Reactor stopped", nil)
	})
	return r.stopErr
}

// consume is the router handler for the reactor's channel topic.
func (r *Reactor) consume(msg *message.Message) error {
	start := time.Now()
	if age, ok := idspkg.Age(msg.UUID, start); ok {
		r.metrics.Transit(age)
	}

	fc := FrameContext{
		UUID:      msg.UUID,
		Source:    msg.Metadata.Get(transport.MetadataSource),
		TypeID:    msg.Metadata.Get(transport.MetadataTypeID),
		Metadata:  metadatapkg.FromWatermill(msg.Metadata),
		Context:   msg.Context(),
		StartedAt: start,
		Length:    len(msg.Payload),
	}
	r.hooks.receive(fc)

	result, err := r.fragments.Handle(msg.Payload, 0, len(msg.Payload))

	fc.Duration = time.Since(start)
	fc.Result = result
	r.stats.record(result, fc.Duration)
	r.hooks.done(fc)
	return err
}

// Signal encodes msg, publishes it to the channel of target and releases msg
// to its pool, whatever the outcome.
func (r *Reactor) Signal(ctx context.Context, msg messagepool.Message, target string) error {
	return r.SignalWithMetadata(ctx, msg, target, nil)
}

// SignalWithMetadata is Signal with extra metadata on the outbound message.
// A failed publish drops the cached address of target so the next signal
// resolves it again.
func (r *Reactor) SignalWithMetadata(ctx context.Context, msg messagepool.Message, target string, md metadatapkg.Metadata) (err error) {
	if msg == nil {
		return fmt.Errorf("%w: message is required", errspkg.ErrConfiguration)
	}
	defer func() {
		if rerr := r.pools.Release(msg); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}()

	target = strings.ToLower(strings.TrimSpace(target))
	ctx, span := r.tracer.Start(ctx, "Signal", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()
	span.SetAttributes(
		attribute.String("reactorflow.target", target),
		attribute.Int("reactorflow.type_id", int(msg.TypeID())),
	)
	defer func() {
		r.metrics.Signal(target, err)
		if err != nil {
			span.RecordError(err)
		}
	}()

	peer, err := r.peers.Lookup(ctx, target)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", target, err)
	}

	frame, err := r.codecs.Append(nil, msg)
	if err != nil {
		return err
	}
	if !r.caps.Fits(len(frame)) {
		return fmt.Errorf("%w: frame of %d bytes exceeds the %s limit of %d", errspkg.ErrTransport, len(frame), r.caps.Name, r.caps.MaxMessageSize)
	}

	out := message.NewMessage(idspkg.CreateULID(), frame)
	out.Metadata = metadatapkg.ToWatermill(md.WithAll(metadatapkg.New(
		transport.MetadataEndpoint, peer.Endpoint,
		transport.MetadataSource, r.Conf.GetReactorName(),
		transport.MetadataTypeID, strconv.FormatInt(int64(msg.TypeID()), 10),
	)))
	out.SetContext(ctx)

	if err := r.publisher.Publish(transport.ChannelTopic(peer.StreamID), out); err != nil {
		r.peers.Invalidate(target)
		return fmt.Errorf("%w: signal %s: %w", errspkg.ErrTransport, target, err)
	}
	return nil
}

// Checkout takes an instance of typeID from its pool for the caller to fill
// and pass to Signal.
func (r *Reactor) Checkout(typeID int32) (messagepool.Message, error) {
	return r.pools.Checkout(typeID)
}

// Release returns a message that will not be signalled.
func (r *Reactor) Release(msg messagepool.Message) error {
	return r.pools.Release(msg)
}

// Self is the entry the lookup service stored for this reactor. It is zero
// before Start.
func (r *Reactor) Self() lookup.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.self
}

// Dispatcher exposes the dispatcher, mainly for its state.
func (r *Reactor) Dispatcher() *dispatch.Dispatcher { return r.dispatcher }

// Pools exposes the message pools.
func (r *Reactor) Pools() *messagepool.Registry { return r.pools }

// Codecs exposes the codec registry.
func (r *Reactor) Codecs() *wire.Registry { return r.codecs }

// Peers exposes the peer cache.
func (r *Reactor) Peers() *registrar.Cache { return r.peers }

// Capabilities reports what the transport guarantees.
func (r *Reactor) Capabilities() transport.Capabilities { return r.caps }

// Metrics exposes the reactor's counters.
func (r *Reactor) Metrics() *metricspkg.Metrics { return r.metrics }

// Registry is the Prometheus registry the reactor reports to.
func (r *Reactor) Registry() *prometheus.Registry { return r.registry }
