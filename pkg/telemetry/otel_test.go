package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestTelemetrySetup(t *testing.T) {
	tel, err := Setup("test-service", Options{})
	require.NoError(t, err)

	assert.NotNil(t, otel.GetTracerProvider())
	assert.NotNil(t, otel.GetMeterProvider())
	assert.NotNil(t, GetTracer("test-tracer"))
	assert.NotNil(t, GetMeter("test-meter"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	assert.NoError(t, tel.Shutdown(ctx))
}

func TestMetricsHolder_ObservableState(t *testing.T) {
	m := GetGlobalMetrics()
	ctx := context.Background()

	m.SetStreamConnected("market", true)
	m.SetStreamConnected("payoff", false)
	m.RecordStreamMessage(ctx, "market", "v2/ticker")
	m.RecordProtocolError(ctx, "payoff", "unknown_type")
	m.RecordStaleTick(ctx, "market")
	m.RecordLookup(ctx, "Delta Exchange", "ok", 0.12)

	state := m.GetStreamConnected()
	assert.Equal(t, int64(1), state["market"])
	assert.Equal(t, int64(0), state["payoff"])
}
