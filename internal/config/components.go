package config

import (
	"log/slog"

	"github.com/vango-dev/collabcode/pkg/client"
	"github.com/vango-dev/collabcode/pkg/server"
)

// RelayConfig converts the server and metrics sections to a server.Config.
func (c *Config) RelayConfig(logger *slog.Logger) *server.Config {
	sc := server.DefaultConfig()
	sc.Address = c.Server.Address
	sc.Path = c.Server.Path
	sc.HeartbeatInterval = c.Server.HeartbeatInterval.Std()
	sc.HeartbeatTimeout = c.Server.HeartbeatTimeout.Std()
	sc.WriteTimeout = c.Server.WriteTimeout.Std()
	sc.SendQueue = c.Server.SendQueue
	sc.MaxMessageSize = c.Server.MaxMessageSize
	if c.Server.CheckOrigin == "same" {
		sc.CheckOrigin = server.SameOriginCheck
	}
	sc.MetricsPath = ""
	if c.Metrics.Enabled {
		sc.MetricsPath = c.Metrics.Path
		sc.MetricsNamespace = c.Metrics.Namespace
	}
	sc.Logger = logger
	return sc
}

// SessionConfig converts the client section to a client.Config.
func (c *Config) SessionConfig(logger *slog.Logger) *client.Config {
	return &client.Config{
		URL:            c.Client.URL,
		Username:       c.Client.Username,
		ConnectTimeout: c.Client.ConnectTimeout.Std(),
		Logger:         logger,
	}
}
