package server

import (
	"errors"
	"fmt"
)

// Sentinel errors for relay and connection conditions.
var (
	// ErrServerClosed is returned when a connection arrives after shutdown began.
	ErrServerClosed = errors.New("server: closed")

	// ErrConnectionClosed is returned when sending on a closed connection.
	ErrConnectionClosed = errors.New("server: connection closed")

	// ErrSendQueueFull is returned when a connection's outbound queue is full
	// and the frame was dropped.
	ErrSendQueueFull = errors.New("server: send queue full")

	// ErrReservedType is returned when a client sends a server-only frame.
	ErrReservedType = errors.New("server: frame type is reserved for the server")
)

// ProtocolError describes a frame the router refused.
type ProtocolError struct {
	ConnID string
	Op     string
	Err    error
}

// Error returns the error message.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("server: protocol error on connection %s: %s: %v", e.ConnID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// LeaveReason records why a connection left the relay.
type LeaveReason string

const (
	LeaveClosed     LeaveReason = "closed"
	LeaveTimeout    LeaveReason = "heartbeat_timeout"
	LeavePingFailed LeaveReason = "ping_failed"
	LeaveShutdown   LeaveReason = "shutdown"
)
