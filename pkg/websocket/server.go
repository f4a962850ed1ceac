package websocket

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/go-go-golems/wisp/pkg/config"
	"github.com/go-go-golems/wisp/pkg/plugin"
)

// Server is the WebSocket dispatch module. At link it collects every
// PathHandler into a path table; at start it listens and routes each upgrade
// to the handler owning the request path.
type Server struct {
	plugin.Base

	settings  Settings
	handlers  map[string]PathHandler
	observers []SessionObserver
	upgrader  websocket.Upgrader

	mu       sync.Mutex
	httpSrv  *http.Server
	listener net.Listener
	stopping bool
	sessions sync.WaitGroup
	sem      *semaphore.Weighted

	pool   *sessionPool
	logger zerolog.Logger
}

var _ http.Handler = (*Server)(nil)

func NewServer() *Server {
	return &Server{
		settings: DefaultSettings(),
		handlers: map[string]PathHandler{},
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		pool:     newSessionPool(),
		logger:   log.With().Str("component", "websocket").Logger(),
	}
}

func (s *Server) Name() string { return "wisp-websocket" }

func (s *Server) Capabilities() []plugin.Capability {
	return []plugin.Capability{ServerCapability}
}

// Link builds the path table. Two handlers on the same normalized path fail
// with a *DuplicatePathError.
func (s *Server) Link(_ context.Context, loc plugin.Locator) error {
	handlers := map[string]PathHandler{}
	owners := map[string]string{}
	for m := range loc.AllImplementing(PathHandlerCapability) {
		h, _ := PathHandlerCapability.Cast(m)
		p, err := NormalizePath(h.Path())
		if err != nil {
			return errors.Wrapf(err, "handler %s", m.Name())
		}
		if prev, ok := owners[p]; ok {
			return &DuplicatePathError{Path: p, Existing: prev, Duplicate: m.Name()}
		}
		handlers[p] = h
		owners[p] = m.Name()
		s.logger.Debug().Str("path", p).Str("handler", m.Name()).Msg("Mapped path handler")
	}
	s.handlers = handlers
	s.observers = slices.Collect(plugin.AllOf(loc, SessionObserverCapability))
	return nil
}

func (s *Server) Configure(_ context.Context, cfg config.Configuration) error {
	settings, err := LoadSettings(cfg)
	if err != nil {
		return err
	}
	s.settings = settings
	if settings.MaxConnections > 0 {
		s.sem = semaphore.NewWeighted(settings.MaxConnections)
	}
	return nil
}

func (s *Server) Settings() Settings { return s.settings }

// Paths lists the routed paths, sorted.
func (s *Server) Paths() []string {
	out := make([]string, 0, len(s.handlers))
	for p := range s.handlers {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

func (s *Server) Start(_ context.Context) error {
	s.logger = log.With().Str("component", "websocket").Logger()
	addr := net.JoinHostPort(s.settings.Host, strconv.Itoa(s.settings.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", addr)
	}
	if s.settings.SSL {
		tlsCfg, err := s.settings.tlsConfig()
		if err != nil {
			_ = ln.Close()
			return err
		}
		ln = tls.NewListener(ln, tlsCfg)
	}

	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpSrv = srv
	s.listener = ln
	s.stopping = false
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("websocket server stopped")
		}
	}()
	s.logger.Info().
		Str("addr", ln.Addr().String()).
		Bool("tls", s.settings.SSL).
		Strs("paths", s.Paths()).
		Msg("websocket server listening")
	return nil
}

// Addr is the bound listener address, empty before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// SessionCount reports live sessions.
func (s *Server) SessionCount() int { return s.pool.Count() }

// Stop stops accepting, closes every session with 1001 and waits for their
// handlers to see OnClose.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopping = true
	srv := s.httpSrv
	s.httpSrv = nil
	s.listener = nil
	s.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(ctx, s.settings.ShutdownTimeout)
	defer cancel()

	var err error
	if srv != nil {
		if err = srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error().Err(err).Msg("websocket server shutdown error")
		}
	}

	s.pool.GoAwayAll(s.settings.ShutdownTimeout)
	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		s.logger.Warn().Int("sessions", s.pool.Count()).Msg("sessions did not close in time, aborting")
		s.pool.AbortAll()
		<-done
	}
	s.logger.Info().Msg("websocket server stopped")
	return errors.Wrap(err, "shutdown websocket server")
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p, err := NormalizePath(r.URL.Path)
	h, ok := s.handlers[p]
	if err != nil || !ok {
		http.NotFound(w, r)
		return
	}

	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.sessions.Add(1)
	s.mu.Unlock()

	if s.sem != nil && !s.sem.TryAcquire(1) {
		s.sessions.Done()
		s.logger.Warn().Str("path", p).Int64("max", s.settings.MaxConnections).Msg("connection limit reached")
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Str("path", p).Msg("ws upgrade failed")
		s.releaseSlot()
		return
	}
	if s.settings.ReadLimit > 0 {
		conn.SetReadLimit(s.settings.ReadLimit)
	}

	sess := newSession(conn, p, s.settings.SendQueue, s.logger)
	// Stop may have snapshotted the pool while the upgrade was in flight
	s.mu.Lock()
	s.pool.Add(sess)
	stopping := s.stopping
	s.mu.Unlock()
	if stopping {
		sess.goAway(s.settings.ShutdownTimeout)
	}
	go s.readLoop(sess, h)
}

func (s *Server) releaseSlot() {
	if s.sem != nil {
		s.sem.Release(1)
	}
	s.sessions.Done()
}
