package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/cisco/edge-temperature-pipeline/internal/api"
	"github.com/cisco/edge-temperature-pipeline/internal/api/handlers"
	"github.com/cisco/edge-temperature-pipeline/internal/edge"
	"github.com/cisco/edge-temperature-pipeline/internal/ingest"
	"github.com/cisco/edge-temperature-pipeline/internal/logging"
	"github.com/cisco/edge-temperature-pipeline/internal/storage"
	"github.com/cisco/edge-temperature-pipeline/internal/uploader"
	"github.com/cisco/edge-temperature-pipeline/internal/window"
	"github.com/cisco/edge-temperature-pipeline/pkg/config"
)

const shutdownTimeout = 30 * time.Second

func NewRootCommand() *cobra.Command {
	var configPath string

	command := &cobra.Command{
		Use:           "edge",
		Short:         "Run the edge temperature processor",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	}
	command.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("EDGE_CONFIG"), "path to a YAML configuration file")

	command.AddCommand(NewServeCommand(&configPath))
	command.AddCommand(NewValidateCommand(&configPath))
	return command
}

func NewServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start ingestion, the poll loop, uploads and the HTTP API (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(*configPath)
		},
	}
}

func NewValidateCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load the configuration, validate it and print the effective values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cfg)
		},
	}
}

func serve(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}

	logger, err := logging.NewLogger("edge", cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	defer logger.Sync() //nolint:errcheck

	logger.Infow("Starting edge processor",
		"instance_id", cfg.InstanceID,
		"window_capacity", cfg.Retention.Capacity,
		"poll_interval", cfg.PollInterval,
		"upload_interval", cfg.Upload.Interval,
		"absent_policy", cfg.AbsentPolicy,
		"sinks", cfg.Sink.Backends,
		"mqtt_broker", cfg.MQTT.Broker,
		"kafka_enabled", cfg.Kafka.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithLogger(ctx, logger)

	if err := run(ctx, cfg); err != nil {
		logger.Errorw("Edge processor failed", "error", err)
		return err
	}
	logger.Info("Edge processor stopped")
	return nil
}

// run wires every component and blocks until ctx is cancelled. Components log
// through children of the logger carried by ctx.
func run(ctx context.Context, cfg config.EdgeConfig) (err error) {
	logger := logging.FromContext(ctx)

	store, err := window.NewStore(window.RetentionPolicy{Capacity: cfg.Retention.Capacity})
	if err != nil {
		return err
	}

	sink, err := storage.New(ctx, cfg.Sink)
	if err != nil {
		return fmt.Errorf("failed to open snapshot sink: %w", err)
	}
	defer func() { err = multierr.Append(err, sink.Close()) }()
	logger.Infow("Snapshot sink ready", "sink", sink.Name())

	uploads, err := uploader.NewQueue(sink, uploader.QueueConfigFrom(cfg.Upload), logger.Named("uploader"))
	if err != nil {
		return err
	}
	uploads.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if serr := uploads.Shutdown(shutdownCtx); serr != nil {
			logger.Warnw("Upload queue did not drain", "error", serr, "pending", uploads.Len())
			err = multierr.Append(err, serr)
		}
	}()

	processor, err := edge.NewProcessor(cfg, store, uploads, logger.Named("processor"))
	if err != nil {
		return err
	}

	mqttSource, err := ingest.NewMQTTSource(cfg.MQTT, store, logger.Named("ingest.mqtt"))
	if err != nil {
		return err
	}
	if err := mqttSource.Start(ctx); err != nil {
		return err
	}
	defer mqttSource.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	var kafkaSource *ingest.KafkaSource
	if cfg.Kafka.Enabled {
		kafkaSource, err = ingest.NewKafkaSource(cfg.Kafka, store, logger.Named("ingest.kafka"))
		if err != nil {
			return err
		}
		defer kafkaSource.Close()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := kafkaSource.Run(ctx); err != nil {
				logger.Errorw("Kafka source stopped", "error", err)
			}
		}()
	}

	if cfg.API.Enabled {
		sources := func() []ingest.SourceStats {
			out := []ingest.SourceStats{mqttSource.Stats()}
			if kafkaSource != nil {
				out = append(out, kafkaSource.Stats())
			}
			return out
		}
		router := api.NewRouter(handlers.Dependencies{
			Store:     store,
			Uploads:   uploads,
			Processor: processor,
			Sources:   sources,
			Logger:    logger.Named("api"),
		}, api.RouterConfig{
			Ready:  mqttSource.IsConnected,
			Logger: logger.Named("api"),
		})

		server := &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
			Handler:      router,
			ReadTimeout:  cfg.API.ReadTimeout,
			WriteTimeout: cfg.API.WriteTimeout,
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Infow("API server listening", "address", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorw("API server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if serr := server.Shutdown(shutdownCtx); serr != nil {
				logger.Warnw("Error during API shutdown", "error", serr)
			}
		}()
	}

	// The poll loop owns the foreground; it returns when ctx is cancelled.
	if err := processor.Run(ctx); err != nil {
		return err
	}
	logger.Infow("Shutting down", "status", processor.Status())
	return nil
}
