package logging

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cisco/edge-temperature-pipeline/pkg/config"
)

func TestNewLoggerInvalidLevel(t *testing.T) {
	logger, err := NewLogger("edge", config.LogConfig{Level: "loud"})
	assert.Error(t, err)
	assert.Nil(t, logger)
}

func TestNewLoggerWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edge.log")
	logger, err := NewLogger("edge", config.LogConfig{
		Level:      "debug",
		File:       path,
		MaxSizeMB:  1,
		MaxBackups: 1,
	})
	require.NoError(t, err)

	logger.Infow("reading recorded", "sensor", "s1", "value", 21.5)
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"sensor":"s1"`)
	assert.Contains(t, string(data), `"logger":"edge"`)
}

func TestNewLoggerLevelFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edge.log")
	logger, err := NewLogger("", config.LogConfig{Level: "warn", File: path, MaxSizeMB: 1})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")
}

func TestContextRoundTrip(t *testing.T) {
	logger := zap.NewExample().Sugar()
	ctx := WithLogger(context.Background(), logger)

	assert.Same(t, logger, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}
