package server

import (
	"log/slog"
	"time"

	"github.com/vango-dev/collabcode/internal/clock"
	"github.com/vango-dev/collabcode/pkg/registry"
)

// HeartbeatMonitor evicts connections that stop answering liveness
// probes. Each Tick closes every connection whose last response is older
// than the timeout and probes the rest.
//
// Like Router, it is driven from the hub goroutine and is not safe for
// concurrent use.
type HeartbeatMonitor struct {
	registry *registry.Registry
	router   *Router
	clock    clock.Clock
	timeout  time.Duration
	metrics  *Metrics
	logger   *slog.Logger
}

// NewHeartbeatMonitor creates a monitor that evicts through router.
func NewHeartbeatMonitor(reg *registry.Registry, router *Router, c clock.Clock, timeout time.Duration, metrics *Metrics, logger *slog.Logger) *HeartbeatMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &HeartbeatMonitor{
		registry: reg,
		router:   router,
		clock:    c,
		timeout:  timeout,
		metrics:  metrics,
		logger:   logger.With("component", "heartbeat"),
	}
}

// Tick runs one probe round and returns the identifiers it evicted.
func (h *HeartbeatMonitor) Tick() []string {
	deadline := h.clock.Now().Add(-h.timeout)

	var evicted []string
	h.registry.ForEach(func(conn *registry.Connection) bool {
		if conn.LastSeen().Before(deadline) {
			h.evict(conn, LeaveTimeout)
			evicted = append(evicted, conn.ID)
			return true
		}
		// Ping only queues the probe; a failure means the transport is gone.
		if err := conn.Transport().Ping(); err != nil {
			h.logger.Debug("ping failed", "conn_id", conn.ID, "error", err)
			h.evict(conn, LeavePingFailed)
			evicted = append(evicted, conn.ID)
		}
		return true
	})

	if len(evicted) > 0 {
		h.logger.Info("evicted unresponsive connections",
			"count", len(evicted),
			"remaining", h.registry.Count())
	}
	return evicted
}

func (h *HeartbeatMonitor) evict(conn *registry.Connection, reason LeaveReason) {
	if !h.router.Leave(conn.ID, reason) {
		return
	}
	if h.metrics != nil {
		h.metrics.evictions.WithLabelValues(string(reason)).Inc()
	}
}
