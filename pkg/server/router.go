package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/vango-dev/collabcode/pkg/protocol"
	"github.com/vango-dev/collabcode/pkg/registry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/vango-dev/collabcode/pkg/server"

// Router parses inbound frames, stamps them with the sender identity and
// fans them out to every other connection. It also synthesizes the
// membership frames (welcome, userJoined, userLeft, userCount, roster).
//
// Router is not safe for concurrent use. The server calls it from a
// single hub goroutine so every frame is processed to completion before
// the next one starts.
type Router struct {
	registry *registry.Registry
	metrics  *Metrics
	tracer   trace.Tracer
	logger   *slog.Logger
}

// NewRouter creates a Router over reg. metrics may be nil.
func NewRouter(reg *registry.Registry, metrics *Metrics, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		registry: reg,
		metrics:  metrics,
		tracer:   otel.Tracer(tracerName),
		logger:   logger.With("component", "router"),
	}
}

// Join registers a transport and announces the new connection.
func (r *Router) Join(t registry.Transport) *registry.Connection {
	conn := r.registry.Register(t)
	if r.metrics != nil {
		r.metrics.connectionsTotal.Inc()
	}
	r.logger.Info("connection joined", "conn_id", conn.ID, "count", r.registry.Count())

	welcome := &protocol.Welcome{}
	protocol.Stamp(welcome, conn.ID, conn.Name())
	r.sendTo(conn, welcome)

	joined := &protocol.UserJoined{}
	protocol.Stamp(joined, conn.ID, conn.Name())
	r.Broadcast(conn.ID, joined)

	r.broadcastMembership()
	return conn
}

// Leave unregisters a connection, closes its transport and announces the
// departure. It reports false if the connection was already gone, in
// which case nothing is sent.
func (r *Router) Leave(id string, reason LeaveReason) bool {
	conn, ok := r.registry.Unregister(id)
	if !ok {
		return false
	}
	if err := conn.Transport().Close(); err != nil {
		r.logger.Debug("close transport", "conn_id", id, "error", err)
	}
	r.logger.Info("connection left",
		"conn_id", id,
		"reason", reason,
		"count", r.registry.Count())
	if r.metrics != nil {
		r.metrics.departures.WithLabelValues(string(reason)).Inc()
	}

	left := &protocol.UserLeft{}
	protocol.Stamp(left, conn.ID, conn.Name())
	r.Broadcast(conn.ID, left)

	r.broadcastMembership()
	return true
}

// OnMessage handles one raw frame from connID. Failures are answered with
// an error frame to the sender only; a panic while routing is recovered
// and logged so other connections are unaffected.
func (r *Router) OnMessage(connID string, raw []byte) {
	start := time.Now()
	_, span := r.tracer.Start(context.Background(), "relay.route",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("collab.conn_id", connID),
			attribute.Int("collab.frame_bytes", len(raw)),
		))
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("route panic",
				"conn_id", connID,
				"panic", p,
				"stack", string(debug.Stack()))
			span.SetStatus(codes.Error, fmt.Sprint(p))
		}
		span.End()
		if r.metrics != nil {
			r.metrics.routeDuration.Observe(time.Since(start).Seconds())
		}
	}()

	conn := r.registry.Get(connID)
	if conn == nil {
		r.logger.Debug("frame from unknown connection", "conn_id", connID)
		return
	}

	msg, err := protocol.Decode(raw)
	if err == nil && !msg.Type().FromClient() {
		err = fmt.Errorf("%w: %s", ErrReservedType, msg.Type())
	}
	if err != nil {
		r.reject(conn, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "protocol error")
		return
	}

	span.SetAttributes(attribute.String("collab.frame_type", string(msg.Type())))
	if r.metrics != nil {
		r.metrics.framesReceived.WithLabelValues(string(msg.Type())).Inc()
	}

	switch m := msg.(type) {
	case *protocol.UserInfo:
		r.registry.SetDisplayName(conn.ID, m.Username)
		r.logger.Info("handshake", "conn_id", conn.ID, "username", m.Username, "client_id", m.ClientID)
	case protocol.Relayed:
		protocol.Stamp(m, conn.ID, conn.Name())
		n := r.Broadcast(conn.ID, m)
		span.SetAttributes(attribute.Int("collab.recipients", n))
	default:
		// Every client type is either the handshake or Relayed.
		r.reject(conn, fmt.Errorf("%w: %s", protocol.ErrUnknownType, msg.Type()))
	}
}

// Broadcast sends m to every connection except excludeID and returns the
// number of connections the frame was queued for. Sends never block; a
// full or closed queue drops the frame for that connection.
func (r *Router) Broadcast(excludeID string, m protocol.Message) int {
	frame, err := protocol.Encode(m)
	if err != nil {
		r.logger.Error("encode broadcast", "type", m.Type(), "error", err)
		return 0
	}

	delivered := 0
	r.registry.ForEach(func(conn *registry.Connection) bool {
		if conn.ID == excludeID {
			return true
		}
		if r.deliver(conn, m.Type(), frame) {
			delivered++
		}
		return true
	})
	return delivered
}

// sendTo sends m to a single connection.
func (r *Router) sendTo(conn *registry.Connection, m protocol.Message) bool {
	frame, err := protocol.Encode(m)
	if err != nil {
		r.logger.Error("encode frame", "type", m.Type(), "error", err)
		return false
	}
	return r.deliver(conn, m.Type(), frame)
}

func (r *Router) deliver(conn *registry.Connection, t protocol.Type, frame []byte) bool {
	if err := conn.Transport().Send(frame); err != nil {
		r.logger.Warn("dropping frame", "conn_id", conn.ID, "type", t, "error", err)
		if r.metrics != nil {
			r.metrics.recordDrop(err)
		}
		return false
	}
	if r.metrics != nil {
		r.metrics.framesRelayed.WithLabelValues(string(t)).Inc()
	}
	return true
}

// broadcastMembership sends the current userCount and roster to everyone.
func (r *Router) broadcastMembership() {
	r.Broadcast("", &protocol.UserCount{Count: r.registry.Count()})
	r.Broadcast("", &protocol.Roster{Users: r.registry.Roster()})
}

func (r *Router) reject(conn *registry.Connection, err error) {
	perr := &ProtocolError{ConnID: conn.ID, Op: "route", Err: err}
	r.logger.Warn("rejected frame", "conn_id", conn.ID, "error", perr)
	if r.metrics != nil {
		r.metrics.protocolErrors.WithLabelValues(errorReason(err)).Inc()
	}
	r.sendTo(conn, protocol.NewError(err))
}

// errorReason maps an error to a low-cardinality metrics label.
func errorReason(err error) string {
	switch {
	case errors.Is(err, ErrReservedType):
		return "reserved_type"
	case errors.Is(err, protocol.ErrUnknownType):
		return "unknown_type"
	case errors.Is(err, protocol.ErrMissingType):
		return "missing_type"
	case errors.Is(err, protocol.ErrInvalidField):
		return "invalid_field"
	case errors.Is(err, protocol.ErrMalformed):
		return "malformed"
	default:
		return "other"
	}
}
