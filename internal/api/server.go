package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/star/skywatch/internal/auth"
	"github.com/star/skywatch/internal/catalog"
	"github.com/star/skywatch/internal/ephem"
	"github.com/star/skywatch/internal/health"
	"github.com/star/skywatch/internal/metrics"
	"github.com/star/skywatch/internal/registry"
	"github.com/star/skywatch/internal/schedule"
	"github.com/star/skywatch/internal/stream"
)

// Deps are the components the HTTP surface reads from.
type Deps struct {
	Observer  *ephem.Observer
	Registry  *registry.Registry
	Scheduler *schedule.Scheduler
	Catalogs  *catalog.Store
	Refresher *catalog.Refresher // nil disables POST refresh
	Stream    *stream.Handler    // nil disables the event stream
}

const shutdownGrace = 5 * time.Second

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(addr string, logger *slog.Logger, authCfg auth.Config, trustProxy bool, deps Deps) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(
		func() error {
			if deps.Registry.Len() == 0 {
				return errors.New("registry empty")
			}
			return nil
		},
		func() error {
			if !deps.Scheduler.Seeded() {
				return errors.New("event queue not seeded")
			}
			return nil
		},
	))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/events", eventsHandler(deps.Scheduler.Queue()))
	mux.HandleFunc("GET /api/v1/bodies", bodiesHandler(deps.Registry))
	mux.HandleFunc("GET /api/v1/bodies/{name}", bodyHandler(deps.Observer, deps.Registry, deps.Scheduler.Queue()))
	mux.HandleFunc("GET /api/v1/sky", skyHandler(deps.Observer, deps.Registry))
	mux.HandleFunc("GET /api/v1/catalogs", catalogsHandler(deps.Catalogs))
	if deps.Refresher != nil {
		mux.HandleFunc("POST /api/v1/catalogs/{name}/refresh", refreshHandler(logger, deps.Refresher, deps.Catalogs))
	}
	if deps.Stream != nil {
		mux.HandleFunc("GET /api/v1/stream/events", deps.Stream.HandleEvents)
	}

	// metrics -> logging -> auth -> mux
	var handler http.Handler = mux
	handler = auth.Middleware(authCfg)(handler)
	handler = requestLogger(logger, trustProxy)(handler)
	handler = metrics.Middleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger.With("component", "api"),
	}
}

// Handler returns the full middleware chain, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Serve listens until ctx is cancelled, then shuts down, giving in-flight
// requests shutdownGrace to finish. Open event streams end with ctx.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	s.logger.Info("http server listening", "addr", ln.Addr().String())

	s.httpServer.BaseContext = func(net.Listener) context.Context { return ctx }
	errc := make(chan error, 1)
	go func() { errc <- s.httpServer.Serve(ln) }()

	select {
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
