// Package statusserver exposes engine status and Prometheus metrics over HTTP.
package statusserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kitchenlens/highlighter/internal/logging"
	"github.com/kitchenlens/highlighter/internal/monitor"
)

const namespace = "highlighter"

// Reporter is satisfied by *monitor.Service.
type Reporter interface {
	Collect() monitor.Report
}

// Dependencies holds everything the server reads from.
type Dependencies struct {
	Reporter Reporter
	Logger   logging.Logger
	// Registry defaults to a fresh registry with the Go and process collectors.
	Registry *prometheus.Registry
}

// Server serves /healthz, /status and /metrics.
type Server struct {
	reporter Reporter
	logger   logging.Logger
	registry *prometheus.Registry
	router   chi.Router
	requests *prometheus.CounterVec

	srv      *http.Server
	listener net.Listener
}

// New builds the router and registers the status gauges.
func New(deps Dependencies) (*Server, error) {
	if deps.Reporter == nil {
		return nil, errors.New("statusserver: nil reporter")
	}
	reg := deps.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	s := &Server{
		reporter: deps.Reporter,
		logger:   logging.OrNop(deps.Logger),
		registry: reg,
	}
	s.registerMetrics()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.countRequests)
	r.Get("/healthz", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	s.router = r
	return s, nil
}

func (s *Server) registerMetrics() {
	factory := promauto.With(s.registry)

	s.requests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Status server requests by route and status code.",
	}, []string{"route", "code"})

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "objects_registered",
		Help:      "Catalogue entries with a bound anchor.",
	}, func() float64 { return float64(s.reporter.Collect().Engine.Registered) })

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "objects_total",
		Help:      "Catalogue entries.",
	}, func() float64 { return float64(s.reporter.Collect().Engine.Total) })

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "timer_remaining_seconds",
		Help:      "Seconds left on the kitchen timer.",
	}, func() float64 {
		if t := s.reporter.Collect().Timer; t != nil {
			return float64(t.Remaining)
		}
		return 0
	})
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr and serves in the background. It returns the bound
// address, which differs from addr when the port is 0.
func (s *Server) Start(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	s.listener = ln
	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status server stopped", "error", err)
		}
	}()
	s.logger.Info("status server listening", "address", ln.Addr().String())
	return ln.Addr().String(), nil
}

// Shutdown stops a started server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.reporter.Collect()); err != nil {
		s.logger.Warn("status encode failed", "error", err)
	}
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	})
}
