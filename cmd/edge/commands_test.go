package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cisco/edge-temperature-pipeline/internal/logging"
	"github.com/cisco/edge-temperature-pipeline/pkg/config"
)

func TestRunLogsThroughContextLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx, cancel := context.WithCancel(logging.WithLogger(context.Background(), zap.New(core).Sugar()))
	cancel()

	cfg := config.DefaultEdgeConfig()
	cfg.Sink.Backends = []string{config.SinkFile}
	cfg.Sink.File.Dir = t.TempDir()
	cfg.MQTT.Broker = "tcp://127.0.0.1:1"
	cfg.Kafka.Enabled = false
	cfg.API.Enabled = false

	err := run(ctx, cfg)
	assert.ErrorIs(t, err, context.Canceled)

	ready := logs.FilterMessage("Snapshot sink ready").All()
	require.Len(t, ready, 1)
	assert.Equal(t, "file", ready[0].ContextMap()["sink"])
}

func TestValidateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
retention:
  capacity: 1
absent_policy: zero
sink:
  backends: [file]
  file:
    dir: /tmp/snapshots
`), 0o644))

	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"validate", "--config", path})
	require.NoError(t, cmd.Execute())

	var cfg config.EdgeConfig
	require.NoError(t, json.Unmarshal(out.Bytes(), &cfg))
	assert.Equal(t, 1, cfg.Retention.Capacity)
	assert.Equal(t, config.AbsentDefaultZero, cfg.AbsentPolicy)
}

func TestValidateCommandRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("upload:\n  retry_delay: 0s\n"), 0o644))

	var stderr bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"validate", "--config", path})

	assert.Error(t, cmd.Execute())
	assert.Contains(t, stderr.String(), "upload.retry_delay")
}
