package runtime

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	errspkg "github.com/drblury/reactorflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/reactorflow/internal/runtime/logging"
	"github.com/drblury/reactorflow/internal/runtime/lookup"
	"github.com/drblury/reactorflow/internal/runtime/messagepool"
	metricspkg "github.com/drblury/reactorflow/internal/runtime/metrics"
	"github.com/drblury/reactorflow/internal/runtime/wire"
	"github.com/drblury/reactorflow/transport"
)

const maxDecodeBytes = 1 << 20

// MessageInfo describes one registered message type.
type MessageInfo struct {
	TypeID   int32             `json:"type_id"`
	Name     string            `json:"name"`
	Handlers int               `json:"handlers"`
	Fields   []wire.FieldInfo  `json:"fields,omitempty"`
	Pool     messagepool.Stats `json:"pool"`
}

// DispatcherInfo is the body of /api/dispatcher.
type DispatcherInfo struct {
	State     string              `json:"state"`
	Mode      string              `json:"mode"`
	Pending   int                 `json:"pending"`
	Capacity  int                 `json:"capacity"`
	Fragments metricspkg.Snapshot `json:"fragments"`
	Frames    FrameStats          `json:"frames"`
	Resources ResourceUsage       `json:"resources"`
}

// PeersInfo is the body of /api/peers.
type PeersInfo struct {
	Self  lookup.Entry   `json:"self"`
	Peers []lookup.Entry `json:"peers"`
}

type fieldLister interface {
	Fields() []wire.FieldInfo
}

// AdminRoutes builds the admin API:
//
//	GET  /healthz         200 while the router consumes
//	GET  /metrics         Prometheus exposition
//	GET  /api/messages    registered message types and their pools
//	GET  /api/dispatcher  dispatcher state and frame statistics
//	GET  /api/peers       this reactor and the cached peers
//	GET  /api/transport   transport capabilities
//	POST /api/decode      describe a raw frame as JSON
func (r *Reactor) AdminRoutes() http.Handler {
	sampler := newResourceSampler()

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	if origins := r.Conf.AdminCORSAllowedOrigins; len(origins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type"},
			MaxAge:         300,
		}))
	}

	router.Get("/healthz", r.handleHealth)
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	router.Route("/api", func(api chi.Router) {
		api.Use(render.SetContentType(render.ContentTypeJSON))
		api.Get("/messages", r.handleMessages)
		api.Get("/dispatcher", func(w http.ResponseWriter, req *http.Request) {
			r.handleDispatcher(w, req, sampler)
		})
		api.Get("/peers", r.handlePeers)
		api.Get("/transport", r.handleTransport)
		api.Post("/decode", r.handleDecode)
	})
	return router
}

func (r *Reactor) handleHealth(w http.ResponseWriter, req *http.Request) {
	select {
	case <-r.router.Running():
		if !r.router.IsClosed() {
			render.PlainText(w, req, "ok")
			return
		}
	default:
	}
	render.Status(req, http.StatusServiceUnavailable)
	render.PlainText(w, req, "not running")
}

func (r *Reactor) handleMessages(w http.ResponseWriter, req *http.Request) {
	counts := r.dispatcher.HandlerCounts()
	codecs := r.codecs.Codecs()
	out := make([]MessageInfo, 0, len(codecs))
	for _, c := range codecs {
		info := MessageInfo{
			TypeID:   c.TypeID(),
			Name:     c.Name(),
			Handlers: counts[c.TypeID()],
		}
		if fl, ok := c.(fieldLister); ok {
			info.Fields = fl.Fields()
		}
		if stats, ok := r.pools.Stats(c.TypeID()); ok {
			info.Pool = stats
		}
		out = append(out, info)
	}
	render.JSON(w, req, out)
}

func (r *Reactor) handleDispatcher(w http.ResponseWriter, req *http.Request, sampler *resourceSampler) {
	render.JSON(w, req, DispatcherInfo{
		State:     r.dispatcher.State().String(),
		Mode:      r.dispatcher.Mode().String(),
		Pending:   r.dispatcher.Pending(),
		Capacity:  r.dispatcher.Capacity(),
		Fragments: r.metrics.GetSnapshot(),
		Frames:    r.stats.snapshot(),
		Resources: sampler.snapshot(),
	})
}

func (r *Reactor) handlePeers(w http.ResponseWriter, req *http.Request) {
	render.JSON(w, req, PeersInfo{Self: r.Self(), Peers: r.peers.Entries()})
}

func (r *Reactor) handleTransport(w http.ResponseWriter, req *http.Request) {
	render.JSON(w, req, transportInfo(r.caps))
}

// TransportInfo is the body of /api/transport.
type TransportInfo struct {
	Name             string `json:"name"`
	Ordering         bool   `json:"ordering"`
	Ack              bool   `json:"ack"`
	Nack             bool   `json:"nack"`
	Batching         bool   `json:"batching"`
	Tracing          bool   `json:"tracing"`
	Durable          bool   `json:"durable"`
	PointToPoint     bool   `json:"point_to_point"`
	InProcess        bool   `json:"in_process"`
	ReliableDelivery bool   `json:"reliable_delivery"`
	MaxMessageSize   int64  `json:"max_message_size"`
}

func transportInfo(c transport.Capabilities) TransportInfo {
	return TransportInfo{
		Name:             c.Name,
		Ordering:         c.SupportsOrdering,
		Ack:              c.SupportsAck,
		Nack:             c.SupportsNack,
		Batching:         c.SupportsBatching,
		Tracing:          c.SupportsTracing,
		Durable:          c.Durable,
		PointToPoint:     c.PointToPoint,
		InProcess:        c.InProcess,
		ReliableDelivery: c.SupportsReliableDelivery(),
		MaxMessageSize:   c.MaxMessageSize,
	}
}

type adminError struct {
	Status  int    `json:"-"`
	Message string `json:"message"`
}

func (e *adminError) Render(_ http.ResponseWriter, req *http.Request) error {
	render.Status(req, e.Status)
	return nil
}

func (r *Reactor) handleDecode(w http.ResponseWriter, req *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxDecodeBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		status := http.StatusBadRequest
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		_ = render.Render(w, req, &adminError{Status: status, Message: err.Error()})
		return
	}

	out, err := r.codecs.DescribeJSON(body, r.pools)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errspkg.ErrUnknownWireType) {
			status = http.StatusNotFound
		}
		_ = render.Render(w, req, &adminError{Status: status, Message: err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(out)))
	_, _ = w.Write(out)
}

// startAdmin listens on the admin port and serves AdminRoutes in the
// background. Stop shuts it down.
func (r *Reactor) startAdmin() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", r.Conf.AdminPort))
	if err != nil {
		return fmt.Errorf("admin listen: %w", err)
	}
	srv := &http.Server{
		Handler:           r.AdminRoutes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	r.admin, r.adminLn = srv, ln

	r.Logger.Info("Starting admin server", loggingpkg.LogFields{"address": ln.Addr().String()})
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.Logger.Error("Admin server failed", err, nil)
		}
	}()
	return nil
}

// AdminAddr is the address the admin server listens on, or empty.
func (r *Reactor) AdminAddr() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.adminLn == nil {
		return ""
	}
	return r.adminLn.Addr().String()
}
