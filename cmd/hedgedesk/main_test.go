package main

import (
	"bytes"
	"testing"

	"hedgedesk/internal/config"
	"hedgedesk/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSymbolCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"symbol", "put", "3200", "ETH", "2025-01-05"})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "P-ETH-3200-050125\n", out.String())
}

func TestSymbolCommand_RejectsPerpetual(t *testing.T) {
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"symbol", "perpetual-future", "1", "BTC", "2025-01-05"})
	defer rootCmd.SetArgs(nil)

	assert.Error(t, rootCmd.Execute())
}

func TestRenderContracts(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, renderContracts(&out, []string{"C-BTC-97000-220225", "P-BTC-97000-220225", "garbage"}))

	text := out.String()
	assert.Contains(t, text, "C-BTC-97000-220225")
	assert.Contains(t, text, "put")
	assert.Contains(t, text, "garbage")
	assert.Contains(t, text, "3 contracts")
}

func TestRenderContracts_Empty(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, renderContracts(&out, nil))
	assert.Equal(t, "No live contracts found.\n", out.String())
}

func TestBuildRegistry(t *testing.T) {
	cfg := config.DefaultConfig()
	registry := buildRegistry(cfg, logging.NewNopLogger())

	_, err := registry.Lookup("Delta Exchange")
	assert.NoError(t, err)
	_, err = registry.Lookup("Binance")
	assert.Error(t, err)
}

func TestSecretValues(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, secretValues([]config.Secret{"a", "b"}))
	assert.Empty(t, secretValues(nil))
}

func TestNewAlertManager(t *testing.T) {
	assert.False(t, newAlertManager(config.AlertsConfig{}, logging.NewNopLogger()).Enabled())

	am := newAlertManager(config.AlertsConfig{SlackWebhookURL: "https://hooks.example.test/x"}, logging.NewNopLogger())
	assert.True(t, am.Enabled())
}
