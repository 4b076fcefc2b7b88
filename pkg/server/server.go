package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/vango-dev/collabcode/pkg/middleware"
	"github.com/vango-dev/collabcode/pkg/registry"
)

// Server is the relay's HTTP/WebSocket server. It owns the connection
// registry and runs a single hub goroutine that serializes joins,
// leaves, inbound frames and heartbeat ticks.
type Server struct {
	config    *Config
	registry  *registry.Registry
	router    *Router
	heartbeat *HeartbeatMonitor
	metrics   *Metrics
	upgrader  websocket.Upgrader
	handler   http.Handler

	events   chan hubEvent
	done     chan struct{}
	hubDone  chan struct{}
	stopOnce sync.Once

	httpServer *http.Server
	logger     *slog.Logger
}

type hubEventKind int

const (
	eventJoin hubEventKind = iota
	eventFrame
	eventLeave
)

type hubEvent struct {
	kind      hubEventKind
	id        string
	frame     []byte
	reason    LeaveReason
	transport registry.Transport
	reply     chan *registry.Connection
}

// New creates a Server and starts its hub goroutine. Call Shutdown to
// stop it.
func New(config *Config) *Server {
	config = config.withDefaults()
	logger := config.Logger.With("component", "server")

	metrics := newMetrics(config.Metrics, config.MetricsNamespace)
	reg := registry.New(
		registry.WithClock(config.Clock),
		registry.WithLogger(config.Logger),
		registry.WithOnChange(metrics.setConnections),
	)
	router := NewRouter(reg, metrics, config.Logger)

	s := &Server{
		config:    config,
		registry:  reg,
		router:    router,
		heartbeat: NewHeartbeatMonitor(reg, router, config.Clock, config.HeartbeatTimeout, metrics, config.Logger),
		metrics:   metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		events:  make(chan hubEvent, config.InboundQueue),
		done:    make(chan struct{}),
		hubDone: make(chan struct{}),
		logger:  logger,
	}
	s.handler = s.routes()

	go s.hubLoop()
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.OpenTelemetry())
	r.Use(middleware.Prometheus(
		middleware.WithRegistry(s.config.Metrics),
		middleware.WithNamespace(s.config.MetricsNamespace),
	))

	r.Get(s.config.Path, s.HandleWebSocket)
	r.Get("/healthz", s.handleHealth)
	if s.config.MetricsPath != "" {
		r.Method(http.MethodGet, s.config.MetricsPath, s.metrics.Handler())
	}
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// HandleWebSocket upgrades the request and serves the connection until it
// closes.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}
	ws.SetReadLimit(s.config.MaxMessageSize)

	t := newWSTransport(ws, s.config.SendQueue, s.config.WriteTimeout, s.logger)
	go t.writeLoop()

	conn, err := s.join(t)
	if err != nil {
		t.Close()
		return
	}
	ws.SetPongHandler(func(string) error {
		s.registry.Touch(conn.ID)
		return nil
	})

	s.readLoop(conn.ID, t)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":      "ok",
		"connections": s.registry.Count(),
	})
}

// hubLoop is the relay's single execution context. Each event runs to
// completion before the next is taken.
func (s *Server) hubLoop() {
	defer close(s.hubDone)

	ticker := s.config.Clock.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case ev := <-s.events:
			s.dispatch(ev)

		case <-ticker.C:
			s.heartbeat.Tick()

		case <-s.done:
			return
		}
	}
}

func (s *Server) dispatch(ev hubEvent) {
	switch ev.kind {
	case eventJoin:
		ev.reply <- s.router.Join(ev.transport)
	case eventFrame:
		s.router.OnMessage(ev.id, ev.frame)
	case eventLeave:
		s.router.Leave(ev.id, ev.reason)
	}
}

// submit hands an event to the hub. It reports false once shutdown began.
func (s *Server) submit(ev hubEvent) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *Server) join(t registry.Transport) (*registry.Connection, error) {
	reply := make(chan *registry.Connection, 1)
	if !s.submit(hubEvent{kind: eventJoin, transport: t, reply: reply}) {
		return nil, ErrServerClosed
	}
	select {
	case conn := <-reply:
		return conn, nil
	case <-s.done:
		return nil, ErrServerClosed
	}
}

func (s *Server) leave(id string, reason LeaveReason) {
	s.submit(hubEvent{kind: eventLeave, id: id, reason: reason})
}

// ListenAndServe serves on the configured address until Shutdown.
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:    s.config.Address,
		Handler: s,
	}
	s.logger.Info("relay listening",
		"address", s.config.Address,
		"path", s.config.Path)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the hub, closes every connection and clears the registry.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.stopOnce.Do(func() { close(s.done) })
	<-s.hubDone

	// Membership frames are not sent; every peer is going away.
	conns := s.registry.Clear()
	for _, conn := range conns {
		conn.Transport().Close()
		s.logger.Debug("connection closed", "conn_id", conn.ID, "reason", LeaveShutdown)
	}
	s.metrics.departures.WithLabelValues(string(LeaveShutdown)).Add(float64(len(conns)))
	s.metrics.setConnections(0)

	var err error
	if s.httpServer != nil {
		if err = s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
		}
	}
	s.logger.Info("relay shutdown complete", "closed_connections", len(conns))
	return err
}

// Registry returns the connection registry.
func (s *Server) Registry() *registry.Registry {
	return s.registry
}

// Metrics returns the Prometheus collectors.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Config returns the effective configuration.
func (s *Server) Config() *Config {
	return s.config
}
