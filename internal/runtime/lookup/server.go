package lookup

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	errspkg "github.com/drblury/reactorflow/internal/runtime/errors"
	"github.com/drblury/reactorflow/internal/runtime/jsoncodec"
	"github.com/drblury/reactorflow/internal/runtime/logging"
)

const maxBodyBytes = 64 << 10

// Error codes carried in error responses so clients can tell conflicts apart.
const (
	CodeInvalid          = "invalid"
	CodeNotFound         = "not_found"
	CodeDuplicateName    = "duplicate_name"
	CodeDuplicateChannel = "duplicate_channel"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorResponse) Render(_ http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.Status)
	return nil
}

func errorResponse(err error) *ErrorResponse {
	resp := &ErrorResponse{Status: http.StatusBadRequest, Code: CodeInvalid, Message: err.Error()}
	switch {
	case errors.Is(err, errspkg.ErrPeerNotFound):
		resp.Status, resp.Code = http.StatusNotFound, CodeNotFound
	case errors.Is(err, errspkg.ErrDuplicateName):
		resp.Status, resp.Code = http.StatusConflict, CodeDuplicateName
	case errors.Is(err, errspkg.ErrDuplicateChannel):
		resp.Status, resp.Code = http.StatusConflict, CodeDuplicateChannel
	}
	return resp
}

// Server exposes a Store over HTTP:
//
//	POST   /lookup         publish an entry, returns it with its channel
//	GET    /lookup         list entries
//	GET    /lookup/{name}  resolve one entry
//	DELETE /lookup/{name}  withdraw an entry
type Server struct {
	store  *Store
	logger logging.ServiceLogger
}

func NewServer(store *Store, logger logging.ServiceLogger) *Server {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Server{store: store, logger: logger.With(logging.LogFields{"component": "lookup"})}
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Route("/lookup", func(r chi.Router) {
		r.Post("/", s.publish)
		r.Get("/", s.list)
		r.Get("/{name}", s.resolve)
		r.Delete("/{name}", s.withdraw)
	})
	return r
}

func (s *Server) publish(w http.ResponseWriter, r *http.Request) {
	var e Entry
	if err := jsoncodec.DecodeLimited(r.Body, maxBodyBytes, &e); err != nil {
		_ = render.Render(w, r, &ErrorResponse{Status: http.StatusBadRequest, Code: CodeInvalid, Message: err.Error()})
		return
	}
	stored, err := s.store.Add(e)
	if err != nil {
		s.logger.Info("Rejected publish", logging.LogFields{"name": e.Name, "reason": err.Error()})
		_ = render.Render(w, r, errorResponse(err))
		return
	}
	s.logger.Info("Reactor published", logging.LogFields{
		"name":     stored.Name,
		"endpoint": stored.Endpoint,
		"streamid": stored.StreamID,
	})
	render.JSON(w, r, stored)
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, s.store.List())
}

func (s *Server) resolve(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	e, ok := s.store.Get(name)
	if !ok {
		_ = render.Render(w, r, errorResponse(notFound(name)))
		return
	}
	render.JSON(w, r, e)
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !s.store.Remove(name) {
		_ = render.Render(w, r, errorResponse(notFound(name)))
		return
	}
	s.logger.Info("Reactor withdrawn", logging.LogFields{"name": name})
	render.NoContent(w, r)
}

func notFound(name string) error {
	return errors.Join(errspkg.ErrPeerNotFound, errors.New(name+" not found"))
}

// ListenAndServe serves the lookup API on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info("Starting lookup server", logging.LogFields{"address": ln.Addr().String()})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
