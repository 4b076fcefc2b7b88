// Package server provides the collabcode relay: an HTTP server that
// upgrades clients to WebSocket and fans out presence and edit frames.
//
// # Architecture
//
// The relay consists of a few small components:
//
//   - Server: HTTP routes, WebSocket upgrade and graceful shutdown
//   - Router: decodes frames, stamps sender identity, broadcasts and
//     synthesizes membership frames (welcome, userJoined, userLeft,
//     userCount, roster)
//   - HeartbeatMonitor: pings live connections and evicts silent ones
//   - Metrics: Prometheus collectors on a per-server registry
//
// Connections are tracked by a registry.Registry, which never sends
// frames itself.
//
// # Goroutines
//
// Every connection runs a reader and a writer goroutine. The reader only
// decodes WebSocket messages and posts them to the hub. The writer drains
// a bounded send queue; when the queue is full the frame is dropped and
// counted. A single hub goroutine per server handles joins, leaves, frames
// and heartbeat ticks one at a time, so frames from one connection are
// relayed in the order they were read.
//
// # Example Usage
//
//	srv := server.New(&server.Config{
//	    Address: ":8080",
//	    Logger:  slog.Default(),
//	})
//	go srv.ListenAndServe()
//	defer srv.Shutdown(context.Background())
//
// Delivery is at-most-once. Nothing is retried and no history is kept.
package server
