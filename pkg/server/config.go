package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vango-dev/collabcode/internal/clock"
)

// Config holds configuration for the relay server.
type Config struct {
	// Address is the address to listen on (e.g., ":8080").
	// Default: ":8080".
	Address string

	// Path is the WebSocket endpoint.
	// Default: "/ws".
	Path string

	// WebSocket buffer sizes

	// ReadBufferSize is the WebSocket read buffer size.
	// Default: 4096.
	ReadBufferSize int

	// WriteBufferSize is the WebSocket write buffer size.
	// Default: 4096.
	WriteBufferSize int

	// CheckOrigin is called to validate the request origin.
	// Default: AnyOrigin.
	CheckOrigin func(r *http.Request) bool

	// Liveness

	// HeartbeatInterval is the time between heartbeat ticks.
	// Default: 30 seconds.
	HeartbeatInterval time.Duration

	// HeartbeatTimeout is how long a connection may stay silent before it
	// is evicted.
	// Default: 30 seconds.
	HeartbeatTimeout time.Duration

	// Limits

	// WriteTimeout bounds every write to a connection.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// MaxMessageSize is the maximum size of an incoming frame.
	// Default: 64KB.
	MaxMessageSize int64

	// SendQueue is the per-connection outbound queue length. Frames that do
	// not fit are dropped.
	// Default: 256.
	SendQueue int

	// InboundQueue is the length of the queue feeding the hub loop.
	// Default: 1024.
	InboundQueue int

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	// Default: 10 seconds.
	ShutdownTimeout time.Duration

	// Observability

	// MetricsPath serves Prometheus metrics when non-empty.
	// Default: "/metrics".
	MetricsPath string

	// MetricsNamespace prefixes every metric name.
	// Default: "collabcode".
	MetricsNamespace string

	// Metrics is the Prometheus registry metrics are registered on.
	// Default: a fresh registry per server.
	Metrics *prometheus.Registry

	// Clock drives heartbeat ticks and liveness timestamps.
	// Default: clock.Real().
	Clock clock.Clock

	// Logger is the base logger.
	// Default: slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Address:           ":8080",
		Path:              "/ws",
		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
		CheckOrigin:       AnyOrigin,
		HeartbeatInterval: 30 * time.Second,
		HeartbeatTimeout:  30 * time.Second,
		WriteTimeout:      10 * time.Second,
		MaxMessageSize:    64 * 1024, // 64KB
		SendQueue:         256,
		InboundQueue:      1024,
		ShutdownTimeout:   10 * time.Second,
		MetricsPath:       "/metrics",
		MetricsNamespace:  "collabcode",
	}
}

// withDefaults returns a copy of c with unset fields filled in.
func (c *Config) withDefaults() *Config {
	defaults := DefaultConfig()
	if c == nil {
		c = defaults
	}
	clone := *c
	if clone.Address == "" {
		clone.Address = defaults.Address
	}
	if clone.Path == "" {
		clone.Path = defaults.Path
	}
	if clone.ReadBufferSize == 0 {
		clone.ReadBufferSize = defaults.ReadBufferSize
	}
	if clone.WriteBufferSize == 0 {
		clone.WriteBufferSize = defaults.WriteBufferSize
	}
	if clone.CheckOrigin == nil {
		clone.CheckOrigin = defaults.CheckOrigin
	}
	if clone.HeartbeatInterval <= 0 {
		clone.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if clone.HeartbeatTimeout <= 0 {
		clone.HeartbeatTimeout = defaults.HeartbeatTimeout
	}
	if clone.WriteTimeout <= 0 {
		clone.WriteTimeout = defaults.WriteTimeout
	}
	if clone.MaxMessageSize <= 0 {
		clone.MaxMessageSize = defaults.MaxMessageSize
	}
	if clone.SendQueue <= 0 {
		clone.SendQueue = defaults.SendQueue
	}
	if clone.InboundQueue <= 0 {
		clone.InboundQueue = defaults.InboundQueue
	}
	if clone.ShutdownTimeout <= 0 {
		clone.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if clone.MetricsNamespace == "" {
		clone.MetricsNamespace = defaults.MetricsNamespace
	}
	if clone.Metrics == nil {
		clone.Metrics = prometheus.NewRegistry()
	}
	if clone.Clock == nil {
		clone.Clock = clock.Real()
	}
	if clone.Logger == nil {
		clone.Logger = slog.Default()
	}
	return &clone
}

// AnyOrigin accepts every WebSocket origin.
func AnyOrigin(*http.Request) bool { return true }

// SameOriginCheck validates that the WebSocket request origin matches the host.
func SameOriginCheck(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// No Origin header (e.g., a non-browser client)
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := r.Host
	if host == "" {
		return false
	}
	return originURL.Host == host
}
