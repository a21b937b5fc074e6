// Simulator - publishes temperature readings for local runs
//
// Either draws uniform random temperatures for every configured sensor each
// interval, or replays a CSV file of recorded readings. Readings go to MQTT in
// the per-topic or shared shape, or to a Kafka topic.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/cisco/edge-temperature-pipeline/internal/logging"
	"github.com/cisco/edge-temperature-pipeline/internal/parser"
	"github.com/cisco/edge-temperature-pipeline/internal/simulator"
	"github.com/cisco/edge-temperature-pipeline/pkg/config"
)

func main() {
	// Load configuration from environment variables
	cfg := config.DefaultSimulatorConfig()

	logger := logging.MustNewLogger("simulator", cfg.Log)
	defer logger.Sync() //nolint:errcheck

	logger.Infow("Starting simulator",
		"instance_id", cfg.InstanceID,
		"transport", cfg.Transport,
		"shape", cfg.Shape,
		"sensors", cfg.Sensors,
		"interval", cfg.Interval,
		"csv_path", cfg.CSVPath,
		"loop", cfg.Loop,
	)

	if cfg.CSVPath != "" {
		if n, err := parser.CountRecords(cfg.CSVPath); err != nil {
			logger.Warnw("Could not count CSV records", "error", err)
		} else {
			logger.Infow("Replaying CSV", "records", n)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	source, err := simulator.NewSource(cfg)
	if err != nil {
		logger.Fatalw("Failed to create reading source", "error", err)
	}
	defer source.Close()

	pub, err := simulator.NewPublisher(ctx, cfg, logger)
	if err != nil {
		logger.Fatalw("Failed to create publisher", "error", err)
	}
	defer pub.Close()

	sim, err := simulator.New(cfg, source, pub, logger)
	if err != nil {
		logger.Fatalw("Invalid simulator configuration", "error", err)
	}

	if err := sim.Run(ctx); err != nil {
		logger.Errorw("Simulator error", "error", err)
	}

	st := sim.Stats()
	logger.Infow("Simulator stopped", "ticks", st.Ticks, "published", st.Published, "failed", st.Failed)
}
