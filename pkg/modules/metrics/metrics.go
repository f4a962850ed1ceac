// Package metrics exposes WebSocket session metrics for Prometheus.
package metrics

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/wisp/pkg/config"
	"github.com/go-go-golems/wisp/pkg/plugin"
	"github.com/go-go-golems/wisp/pkg/websocket"
)

const (
	keyEnabled = "wisp.metrics.enabled"
	keyAddr    = "wisp.metrics.addr"
	keyPath    = "wisp.metrics.path"
)

// Module counts sessions and frames. The counters are always maintained;
// the HTTP endpoint only runs when wisp.metrics.enabled is set.
type Module struct {
	plugin.Base

	registry *prometheus.Registry

	sessionsActive prometheus.Gauge
	sessionsTotal  prometheus.Counter
	frames         *prometheus.CounterVec
	bytesIn        *prometheus.CounterVec
	closes         *prometheus.CounterVec

	enabled bool
	addr    string
	path    string

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
}

var _ websocket.SessionObserver = (*Module)(nil)

func New() *Module {
	m := &Module{
		registry: prometheus.NewRegistry(),
		addr:     "127.0.0.1:9090",
		path:     "/metrics",

		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wisp",
			Name:      "sessions_active",
			Help:      "WebSocket sessions currently open",
		}),
		sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wisp",
			Name:      "sessions_total",
			Help:      "WebSocket sessions opened since start",
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wisp",
			Name:      "frames_total",
			Help:      "Inbound data frames by path and kind",
		}, []string{"path", "kind"}),
		bytesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wisp",
			Name:      "received_bytes_total",
			Help:      "Inbound payload bytes by path",
		}, []string{"path"}),
		closes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wisp",
			Name:      "session_closes_total",
			Help:      "Closed sessions by path and close code",
		}, []string{"path", "code"}),
	}
	m.registry.MustRegister(
		m.sessionsActive, m.sessionsTotal, m.frames, m.bytesIn, m.closes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Module) Name() string { return "wisp-metrics" }

func (m *Module) Capabilities() []plugin.Capability {
	return []plugin.Capability{websocket.SessionObserverCapability}
}

// Gatherer exposes the module's registry.
func (m *Module) Gatherer() prometheus.Gatherer { return m.registry }

func (m *Module) Configure(_ context.Context, cfg config.Configuration) error {
	var err error
	if cfg.HasPath(keyEnabled) {
		if m.enabled, err = cfg.GetBoolean(keyEnabled); err != nil {
			return err
		}
	}
	if cfg.HasPath(keyAddr) {
		if m.addr, err = cfg.GetString(keyAddr); err != nil {
			return err
		}
	}
	if cfg.HasPath(keyPath) {
		if m.path, err = cfg.GetString(keyPath); err != nil {
			return err
		}
	}
	return nil
}

func (m *Module) Start(context.Context) error {
	if !m.enabled {
		return nil
	}
	ln, err := net.Listen("tcp", m.addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", m.addr)
	}
	mux := http.NewServeMux()
	mux.Handle(m.path, promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	m.mu.Lock()
	m.srv, m.listener = srv, ln
	m.mu.Unlock()

	logger := log.With().Str("component", "metrics").Logger()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	logger.Info().Str("addr", ln.Addr().String()).Str("path", m.path).Msg("metrics endpoint listening")
	return nil
}

func (m *Module) Stop(ctx context.Context) error {
	m.mu.Lock()
	srv := m.srv
	m.srv, m.listener = nil, nil
	m.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Addr is the metrics listener address, empty unless serving.
func (m *Module) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

func (m *Module) SessionOpened(*websocket.Session) {
	m.sessionsActive.Inc()
	m.sessionsTotal.Inc()
}

func (m *Module) FrameReceived(s *websocket.Session, kind websocket.FrameKind, size int) {
	m.frames.WithLabelValues(s.Path(), string(kind)).Inc()
	m.bytesIn.WithLabelValues(s.Path()).Add(float64(size))
}

func (m *Module) SessionClosed(s *websocket.Session, code int, _ string) {
	m.sessionsActive.Dec()
	m.closes.WithLabelValues(s.Path(), closeCodeLabel(code)).Inc()
}
