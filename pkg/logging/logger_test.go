package logging

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"hedgedesk/pkg/telemetry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZapLogger_OTelBridge(t *testing.T) {
	tel, err := telemetry.Setup("test-logger", telemetry.Options{})
	require.NoError(t, err)
	defer func() {
		_ = tel.Shutdown(context.Background())
	}()

	logger, err := NewZapLogger("DEBUG")
	require.NoError(t, err)

	logger.Info("Test OTel bridging", "key", "value")
	logger.Debug("Debug message", "status", "testing")

	_ = logger.Sync()
}

func TestZapLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewZapLoggerWithWriter("WARN", &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "endpoint", "market")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "market")
}

func TestZapLogger_WithFieldAndErrors(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewZapLoggerWithWriter("INFO", &buf)
	require.NoError(t, err)

	logger.WithField("component", "chain").Error("ingest failed", "error", errors.New("boom"))

	out := buf.String()
	assert.Contains(t, out, "chain")
	assert.Contains(t, out, "boom")
}

func TestParseLevel(t *testing.T) {
	_, err := ParseLevel("verbose")
	assert.Error(t, err)

	lvl, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, "debug", lvl.String())
}
