// Package market aggregates ticker updates into a strike-indexed options chain.
package market

import (
	"sort"
	"sync"

	"hedgedesk/internal/core"
	"hedgedesk/pkg/reactive"
	"hedgedesk/pkg/telemetry"

	"github.com/shopspring/decimal"
)

// Chain is the ChainAggregator. Rows are keyed by the canonical string form of
// the strike so that 97000 and 97000.0 land on the same row.
type Chain struct {
	logger  core.ILogger
	metrics *telemetry.MetricsHolder
	changes *reactive.Notifier

	mu         sync.RWMutex
	rows       map[string]core.StrikeRow
	underlying *core.Tick
}

// NewChain creates an empty chain
func NewChain(logger core.ILogger) *Chain {
	return &Chain{
		logger:  logger.WithField("component", "chain"),
		metrics: telemetry.GetGlobalMetrics(),
		changes: reactive.NewNotifier(),
		rows:    make(map[string]core.StrikeRow),
	}
}

// Ingest applies one tick. Option ticks update the call or put side of their
// strike row; perpetual ticks update the underlying slot. A tick older than
// the one it would replace is ignored. Returns whether the chain changed.
func (c *Chain) Ingest(tick core.Tick) bool {
	var changed bool
	switch {
	case tick.Kind == core.KindPerpetual:
		changed = c.ingestUnderlying(tick)
	case tick.Kind.IsOption():
		changed = c.ingestOption(tick)
	default:
		c.logger.Warn("Ignoring tick with unknown kind", "symbol", tick.Symbol, "kind", string(tick.Kind))
	}
	if changed {
		c.changes.Notify()
	}
	return changed
}

func (c *Chain) ingestUnderlying(tick core.Tick) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.underlying != nil && tick.Timestamp < c.underlying.Timestamp {
		return false
	}
	t := tick
	c.underlying = &t
	return true
}

func (c *Chain) ingestOption(tick core.Tick) bool {
	if !tick.Strike.Valid {
		c.logger.Warn("Ignoring option tick without strike", "symbol", tick.Symbol)
		return false
	}

	key := strikeKey(tick.Strike.Decimal)

	c.mu.Lock()
	row, ok := c.rows[key]
	if !ok {
		row = core.StrikeRow{Strike: tick.Strike.Decimal}
	}
	if prev := row.Side(tick.Kind); prev != nil && tick.Timestamp < prev.Timestamp {
		c.mu.Unlock()
		return false
	}

	t := tick
	if tick.Kind == core.KindCall {
		row.Call = &t
	} else {
		row.Put = &t
	}
	c.rows[key] = row
	n := len(c.rows)
	c.mu.Unlock()

	if !ok {
		c.metrics.SetChainRows(n)
	}
	return true
}

// Snapshot returns the rows in ascending strike order. The result shares no
// memory with the chain.
func (c *Chain) Snapshot() []core.StrikeRow {
	c.mu.RLock()
	out := make([]core.StrikeRow, 0, len(c.rows))
	for _, row := range c.rows {
		out = append(out, copyRow(row))
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Strike.Cmp(out[j].Strike) < 0
	})
	return out
}

// Quote returns a copy of the tick for kind at strike, or nil
func (c *Chain) Quote(kind core.ContractKind, strike decimal.Decimal) *core.Tick {
	c.mu.RLock()
	defer c.mu.RUnlock()

	row, ok := c.rows[strikeKey(strike)]
	if !ok {
		return nil
	}
	return copyTick(row.Side(kind))
}

// Underlying returns a copy of the latest perpetual tick, or nil
func (c *Chain) Underlying() *core.Tick {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyTick(c.underlying)
}

// Len returns the number of strike rows
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rows)
}

// Reset drops every row and the underlying slot
func (c *Chain) Reset() {
	c.mu.Lock()
	had := len(c.rows) > 0 || c.underlying != nil
	c.rows = make(map[string]core.StrikeRow)
	c.underlying = nil
	c.mu.Unlock()

	c.metrics.SetChainRows(0)
	if had {
		c.logger.Debug("Chain reset")
		c.changes.Notify()
	}
}

// Subscribe registers fn to run after every change
func (c *Chain) Subscribe(fn func()) (cancel func()) {
	return c.changes.Subscribe(fn)
}

func strikeKey(strike decimal.Decimal) string {
	return strike.String()
}

func copyRow(row core.StrikeRow) core.StrikeRow {
	return core.StrikeRow{
		Strike: row.Strike,
		Call:   copyTick(row.Call),
		Put:    copyTick(row.Put),
	}
}

func copyTick(t *core.Tick) *core.Tick {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
