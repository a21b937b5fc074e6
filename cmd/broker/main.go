// Broker - development MQTT broker
//
// Runs an embedded MQTT broker that sensors (or the simulator) publish to and
// the edge processor subscribes to, plus an HTTP endpoint for health and stats.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cisco/edge-temperature-pipeline/internal/broker"
	"github.com/cisco/edge-temperature-pipeline/internal/logging"
	"github.com/cisco/edge-temperature-pipeline/pkg/config"
)

func main() {
	// Load configuration from environment variables
	cfg := config.DefaultBrokerConfig()

	logger := logging.MustNewLogger("broker", cfg.Log)
	defer logger.Sync() //nolint:errcheck

	logger.Infow("Starting MQTT broker",
		"tcp", cfg.TCPHost, "tcp_port", cfg.TCPPort,
		"http", cfg.HTTPHost, "http_port", cfg.HTTPPort)

	server, err := broker.NewServer(cfg, logger)
	if err != nil {
		logger.Fatalw("Failed to create broker", "error", err)
	}
	if err := server.Start(); err != nil {
		logger.Fatalw("Failed to start broker", "error", err)
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Infow("Received signal, shutting down", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		logger.Warnw("Error during shutdown", "error", err)
	}

	logger.Info("Broker stopped")
}
