// Package endpoints serves the admin endpoints every flowline server has:
// health, internal stats and Prometheus metrics. Applications mount their
// own routes on Router().
package endpoints

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/flowline/flowline/common/stats"
)

type StatScope string

// MakeStatsReceiver returns a millisecond precision receiver scoped to scope.
func MakeStatsReceiver(scope StatScope) stats.StatsReceiver {
	return stats.DefaultStatsReceiver().Scope(string(scope)).Precision(time.Millisecond)
}

// NewServer creates a server on addr. A nil registry serves an empty /metrics.
func NewServer(addr string, stat stats.StatsReceiver, registry *prometheus.Registry) *Server {
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	s := &Server{
		Addr:     addr,
		Stats:    stat,
		Registry: registry,
		router:   mux.NewRouter(),
	}
	s.router.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/admin/metrics.json", s.statsHandler).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	s.router.NotFoundHandler = http.HandlerFunc(helpHandler)
	return s
}

type Server struct {
	Addr     string
	Stats    stats.StatsReceiver
	Registry *prometheus.Registry

	router *mux.Router
	mu     sync.Mutex
	http   *http.Server
	closed bool
}

// Router is the root router, for mounting application routes.
func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Serve listens on Addr and blocks until the server stops.
func (s *Server) Serve() error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ln)
}

// ServeListener blocks serving on ln until Shutdown.
func (s *Server) ServeListener(ln net.Listener) error {
	srv := &http.Server{Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ln.Close()
	}
	s.http = srv
	s.mu.Unlock()
	s.Stats.Gauge(stats.ServerStartedGauge).Update(1)
	log.Infof("Serving http & stats on %s", ln.Addr())
	err := srv.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.closed = true
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.Stats.Gauge(stats.ServerStartedGauge).Update(0)
	return srv.Shutdown(ctx)
}

func helpHandler(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "Common paths: '/health', '/admin/metrics.json', '/metrics', '/api/...'", http.StatusNotFound)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "ok")
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	const contentTypeHdr = "Content-Type"
	const contentTypeVal = "application/json; charset=utf-8"
	w.Header().Set(contentTypeHdr, contentTypeVal)

	pretty := r.URL.Query().Get("pretty") == "true"
	str := s.Stats.Render(pretty)
	if _, err := io.Copy(w, bytes.NewBuffer(str)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}
