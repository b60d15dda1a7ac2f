package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HealthFunc reports the current connection state for /healthz.
type HealthFunc func() (state string, ready bool)

// NewRouter builds the exposition router with /metrics and /healthz.
func NewRouter(m *Metrics, health HealthFunc) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		state, ready := "unknown", true
		if health != nil {
			state, ready = health()
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_, _ = w.Write([]byte(state + "\n"))
	})
	return r
}

// Server serves the exposition router on a TCP address.
type Server struct {
	addr   string
	srv    *http.Server
	logger *zap.Logger
}

// NewServer creates a metrics server. An empty addr disables it.
func NewServer(addr string, m *Metrics, health HealthFunc, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		addr:   addr,
		srv:    &http.Server{Handler: NewRouter(m, health), ReadHeaderTimeout: 5 * time.Second},
		logger: logger,
	}
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	if s.addr == "" {
		return nil
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.logger.Info("metrics server listening", zap.String("addr", ln.Addr().String()))
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.addr == "" {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
