package client

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/vango-dev/collabcode/pkg/registry"
)

// Config holds configuration for a Session.
type Config struct {
	// URL is the relay endpoint, e.g. "ws://localhost:8080/ws".
	URL string

	// Username is the display name sent in the handshake.
	// Default: "user-" followed by the first four characters of ClientID.
	Username string

	// ClientID identifies this client in the handshake. The relay assigns
	// its own identifier; ClientID is informational.
	// Default: a random UUID.
	ClientID string

	// ConnectTimeout bounds a connection attempt.
	// Default: 15 seconds.
	ConnectTimeout time.Duration

	// WriteTimeout bounds every frame write.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// Dialer opens the WebSocket.
	// Default: websocket.DefaultDialer.
	Dialer *websocket.Dialer

	// Logger is the structured logger.
	// Default: slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		URL:            "ws://localhost:8080/ws",
		ConnectTimeout: 15 * time.Second,
		WriteTimeout:   10 * time.Second,
	}
}

func (c *Config) withDefaults() *Config {
	out := DefaultConfig()
	if c != nil {
		*out = *c
	}
	if out.ClientID == "" {
		out.ClientID = uuid.NewString()
	}
	if out.Username == "" {
		out.Username = registry.DefaultName(out.ClientID)
	}
	if out.ConnectTimeout <= 0 {
		out.ConnectTimeout = 15 * time.Second
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = 10 * time.Second
	}
	if out.Dialer == nil {
		out.Dialer = websocket.DefaultDialer
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return out
}
