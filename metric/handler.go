package metric

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/com-junkawasaki/kotoba-sub011/errors"
)

const (
	defaultAddr = ":9090"
	defaultPath = "/metrics"
)

// Server exposes a registry over HTTP for Prometheus to scrape. It also
// answers /health with a bare 200 so probes do not have to parse the
// metric dump.
type Server struct {
	addr     string
	path     string
	registry *MetricsRegistry

	mu     sync.Mutex
	server *http.Server
}

// NewServer prepares a server for the registry, falling back to :9090
// and /metrics when addr or path is empty. Nothing listens until Start.
func NewServer(addr, path string, registry *MetricsRegistry) *Server {
	if addr == "" {
		addr = defaultAddr
	}
	if path == "" {
		path = defaultPath
	}
	return &Server{addr: addr, path: path, registry: registry}
}

// Start serves the scrape endpoint and blocks until Stop or a listener
// failure. Callers usually run it in a goroutine.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.registry == nil {
		s.mu.Unlock()
		return errors.WrapFatal(errors.ErrMissingConfig,
			"Server", "Start", "serve metrics without a registry")
	}
	if s.server != nil {
		s.mu.Unlock()
		return errors.WrapInvalid(fmt.Errorf("already serving on %s", s.addr),
			"Server", "Start", "start metrics server")
	}

	mux := http.NewServeMux()
	mux.Handle(s.path, promhttp.HandlerFor(
		s.registry.PrometheusRegistry(),
		promhttp.HandlerOpts{EnableOpenMetrics: true},
	))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	srv := &http.Server{Addr: s.addr, Handler: mux}
	s.server = srv
	s.mu.Unlock()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.WrapFatal(err, "Server", "Start",
			fmt.Sprintf("serve on %s", s.addr))
	}
	return nil
}

// Stop closes the listener. The server can be started again afterwards.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return nil
	}
	err := s.server.Close()
	s.server = nil
	if err != nil {
		return errors.WrapTransient(err, "Server", "Stop", "close metrics listener")
	}
	return nil
}

// Address reports the scrape URL.
func (s *Server) Address() string {
	return fmt.Sprintf("http://%s%s", s.addr, s.path)
}
