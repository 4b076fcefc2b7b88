package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/vango-dev/collabcode/internal/config"
	"github.com/vango-dev/collabcode/internal/errors"
	"github.com/vango-dev/collabcode/pkg/server"
)

func serveCmd(opts *globalOptions) *cobra.Command {
	var (
		address           string
		path              string
		heartbeatInterval time.Duration
		heartbeatTimeout  time.Duration
		noMetrics         bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay server",
		Long: `Run the WebSocket relay.

Every frame a client sends is stamped with its connection identifier
and forwarded to every other client. Connections that stop answering
pings are dropped.

Endpoints:
  /ws        WebSocket relay (path configurable)
  /healthz   health and connection count
  /metrics   Prometheus metrics

Examples:
  collabcode serve
  collabcode serve --address :9000
  COLLABCODE_HEARTBEAT_TIMEOUT=1m collabcode serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if address != "" {
				cfg.Server.Address = address
			}
			if path != "" {
				cfg.Server.Path = path
			}
			if heartbeatInterval > 0 {
				cfg.Server.HeartbeatInterval = config.Duration(heartbeatInterval)
			}
			if heartbeatTimeout > 0 {
				cfg.Server.HeartbeatTimeout = config.Duration(heartbeatTimeout)
			}
			if noMetrics {
				cfg.Metrics.Enabled = false
			}
			return runServe(cfg)
		},
	}

	cmd.Flags().StringVarP(&address, "address", "a", "", "Listen address (default from config, :8080)")
	cmd.Flags().StringVar(&path, "path", "", "WebSocket endpoint path (default /ws)")
	cmd.Flags().DurationVar(&heartbeatInterval, "heartbeat-interval", 0, "Time between liveness probes")
	cmd.Flags().DurationVar(&heartbeatTimeout, "heartbeat-timeout", 0, "Silence allowed before a connection is dropped")
	cmd.Flags().BoolVar(&noMetrics, "no-metrics", false, "Disable the Prometheus endpoint")

	return cmd
}

func runServe(cfg *config.Config) error {
	logger, err := setup(cfg)
	if err != nil {
		return err
	}

	srv := server.New(cfg.RelayConfig(logger))

	printBanner()
	success("Relay listening on %s%s", cfg.Server.Address, cfg.Server.Path)
	info("heartbeat every %s, timeout %s", cfg.Server.HeartbeatInterval, cfg.Server.HeartbeatTimeout)
	if cfg.Metrics.Enabled {
		info("metrics on %s", cfg.Metrics.Path)
	}
	info("%s", dimStyle.Render("Press Ctrl+C to stop"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		srv.Shutdown(context.Background())
		if err != nil {
			return errors.New("C200").Wrap(err)
		}
		return nil
	case <-ctx.Done():
	}

	info("Shutting down...")
	if err := srv.Shutdown(context.Background()); err != nil {
		return errors.New("C200").Wrap(err)
	}
	success("Relay stopped")
	return nil
}
