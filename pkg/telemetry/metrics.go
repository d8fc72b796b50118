package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricStreamMessagesTotal     = "hedgedesk_stream_messages_total"
	MetricStreamReconnectsTotal   = "hedgedesk_stream_reconnects_total"
	MetricStreamSendFailuresTotal = "hedgedesk_stream_send_failures_total"
	MetricStreamConnected         = "hedgedesk_stream_connected"
	MetricProtocolErrorsTotal     = "hedgedesk_protocol_errors_total"
	MetricStaleTicksTotal         = "hedgedesk_stale_ticks_total"
	MetricPayoffUpdatesTotal      = "hedgedesk_payoff_updates_total"
	MetricLookupDuration          = "hedgedesk_contract_lookup_duration_seconds"
	MetricChainRows               = "hedgedesk_chain_rows"
	MetricLegsActive              = "hedgedesk_legs_active"
)

// MetricsHolder holds initialized instruments
type MetricsHolder struct {
	StreamMessagesTotal     metric.Int64Counter
	StreamReconnectsTotal   metric.Int64Counter
	StreamSendFailuresTotal metric.Int64Counter
	StreamConnected         metric.Int64ObservableGauge
	ProtocolErrorsTotal     metric.Int64Counter
	StaleTicksTotal         metric.Int64Counter
	PayoffUpdatesTotal      metric.Int64Counter
	LookupDuration          metric.Float64Histogram
	ChainRows               metric.Int64ObservableGauge
	LegsActive              metric.Int64ObservableGauge

	// State for observable gauges
	mu           sync.RWMutex
	connectedMap map[string]int64
	chainRows    int64
	legsActive   int64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder. Until InitMetrics is
// called with a real meter the instruments record into the global provider.
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			connectedMap: make(map[string]int64),
		}
		_ = globalMetrics.InitMetrics(otel.GetMeterProvider().Meter("hedgedesk"))
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.StreamMessagesTotal, err = meter.Int64Counter(MetricStreamMessagesTotal,
		metric.WithDescription("Inbound stream messages by endpoint and type"))
	if err != nil {
		return err
	}

	m.StreamReconnectsTotal, err = meter.Int64Counter(MetricStreamReconnectsTotal,
		metric.WithDescription("Reconnect attempts scheduled after a stream error or close"))
	if err != nil {
		return err
	}

	m.StreamSendFailuresTotal, err = meter.Int64Counter(MetricStreamSendFailuresTotal,
		metric.WithDescription("Outbound messages rejected because the stream was not connected or the write failed"))
	if err != nil {
		return err
	}

	m.ProtocolErrorsTotal, err = meter.Int64Counter(MetricProtocolErrorsTotal,
		metric.WithDescription("Inbound messages dropped as unknown or malformed"))
	if err != nil {
		return err
	}

	m.StaleTicksTotal, err = meter.Int64Counter(MetricStaleTicksTotal,
		metric.WithDescription("Option ticks dropped because their symbol is no longer subscribed"))
	if err != nil {
		return err
	}

	m.PayoffUpdatesTotal, err = meter.Int64Counter(MetricPayoffUpdatesTotal,
		metric.WithDescription("Payoff curves applied"))
	if err != nil {
		return err
	}

	m.LookupDuration, err = meter.Float64Histogram(MetricLookupDuration,
		metric.WithDescription("Latency of contract lookups"), metric.WithUnit("s"))
	if err != nil {
		return err
	}

	m.StreamConnected, err = meter.Int64ObservableGauge(MetricStreamConnected,
		metric.WithDescription("Stream connection state (1=connected, 0=not connected)"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for endpoint, val := range m.connectedMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("endpoint", endpoint)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.ChainRows, err = meter.Int64ObservableGauge(MetricChainRows,
		metric.WithDescription("Strike rows currently held by the chain"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.chainRows)
			return nil
		}))
	if err != nil {
		return err
	}

	m.LegsActive, err = meter.Int64ObservableGauge(MetricLegsActive,
		metric.WithDescription("Legs currently selected"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.legsActive)
			return nil
		}))
	if err != nil {
		return err
	}

	return nil
}

// Helpers to record events

func (m *MetricsHolder) RecordStreamMessage(ctx context.Context, endpoint, msgType string) {
	m.StreamMessagesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("type", msgType),
	))
}

func (m *MetricsHolder) RecordReconnect(ctx context.Context, endpoint string) {
	m.StreamReconnectsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("endpoint", endpoint)))
}

func (m *MetricsHolder) RecordSendFailure(ctx context.Context, endpoint string) {
	m.StreamSendFailuresTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("endpoint", endpoint)))
}

func (m *MetricsHolder) RecordProtocolError(ctx context.Context, endpoint, reason string) {
	m.ProtocolErrorsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("reason", reason),
	))
}

func (m *MetricsHolder) RecordStaleTick(ctx context.Context, endpoint string) {
	m.StaleTicksTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("endpoint", endpoint)))
}

func (m *MetricsHolder) RecordPayoffUpdate(ctx context.Context) {
	m.PayoffUpdatesTotal.Add(ctx, 1)
}

func (m *MetricsHolder) RecordLookup(ctx context.Context, exchange, outcome string, seconds float64) {
	m.LookupDuration.Record(ctx, seconds, metric.WithAttributes(
		attribute.String("exchange", exchange),
		attribute.String("outcome", outcome),
	))
}

// Helpers to update observable state

func (m *MetricsHolder) SetStreamConnected(endpoint string, connected bool) {
	val := int64(0)
	if connected {
		val = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectedMap[endpoint] = val
}

func (m *MetricsHolder) SetChainRows(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chainRows = int64(n)
}

func (m *MetricsHolder) SetLegsActive(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.legsActive = int64(n)
}

func (m *MetricsHolder) GetStreamConnected() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make(map[string]int64, len(m.connectedMap))
	for k, v := range m.connectedMap {
		res[k] = v
	}
	return res
}
