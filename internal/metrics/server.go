package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/moolen/hearth/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server serves /metrics and /healthz. It implements lifecycle.Service.
type Server struct {
	addr     string
	gatherer prometheus.Gatherer
	server   *http.Server
	listener net.Listener
	logger   *logging.Logger
}

// NewServer creates a metrics server for addr (host:port).
func NewServer(addr string, gatherer prometheus.Gatherer) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &Server{
		addr:     addr,
		gatherer: gatherer,
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logging.GetLogger("metrics.server"),
	}
}

// Name implements lifecycle.Service.
func (s *Server) Name() string {
	return "metrics-server"
}

// Addr returns the bound address once started, the configured one before.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Start binds the listener and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Metrics server error: %v", err)
		}
	}()

	s.logger.Info("Metrics server listening on %s", ln.Addr())
	return nil
}

// Stop shuts the server down gracefully within ctx.
func (s *Server) Stop(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn("Metrics server shutdown: %v", err)
		return err
	}
	s.logger.Info("Metrics server stopped")
	return nil
}
