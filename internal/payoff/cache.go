// Package payoff holds the server-computed payoff curve and the controls that
// steer its computation.
package payoff

import (
	"context"
	"fmt"
	"sync"

	"hedgedesk/internal/core"
	"hedgedesk/internal/protocol"
	apperrors "hedgedesk/pkg/errors"
	"hedgedesk/pkg/reactive"
	"hedgedesk/pkg/telemetry"

	"github.com/benbjohnson/clock"
)

// SelectionSource reports the legs the client believes are selected,
// keyed by protocol symbol
type SelectionSource interface {
	Selection() map[string]string
}

// Cache is the PayoffCache. Refresh responses are not correlated with
// requests: every payoff_update replaces the curve the same way.
type Cache struct {
	sender    core.ISender
	selection SelectionSource
	clock     clock.Clock
	logger    core.ILogger
	metrics   *telemetry.MetricsHolder

	curve *reactive.Value[core.PayoffCurve]

	mu            sync.RWMutex
	confirmation  *core.Confirmation
	confirmations *reactive.Notifier
}

// NewCache creates a cache holding an empty curve. selection may be nil.
func NewCache(sender core.ISender, selection SelectionSource, clk clock.Clock, logger core.ILogger) *Cache {
	if clk == nil {
		clk = clock.New()
	}
	return &Cache{
		sender:        sender,
		selection:     selection,
		clock:         clk,
		logger:        logger.WithField("component", "payoff"),
		metrics:       telemetry.GetGlobalMetrics(),
		curve:         reactive.NewValue(core.PayoffCurve{X: []float64{}, Y: []float64{}}),
		confirmations: reactive.NewNotifier(),
	}
}

// OnUpdate replaces the held curve and notifies subscribers. A curve with
// mismatched lengths is rejected and the previous curve kept.
func (c *Cache) OnUpdate(curve core.PayoffCurve) error {
	if err := curve.Validate(); err != nil {
		c.logger.Warn("Rejecting payoff curve", "error", err)
		return err
	}
	c.metrics.RecordPayoffUpdate(context.Background())
	c.curve.Set(curve.Clone())
	return nil
}

// Current returns a copy of the held curve
func (c *Cache) Current() core.PayoffCurve {
	return c.curve.Get().Clone()
}

// Subscribe registers fn for every replacement
func (c *Cache) Subscribe(fn func(core.PayoffCurve)) (cancel func()) {
	return c.curve.Subscribe(func(curve core.PayoffCurve) {
		fn(curve.Clone())
	})
}

// RequestRefresh asks the server for a fresh curve. The answer arrives later
// as an ordinary payoff_update.
func (c *Cache) RequestRefresh() error {
	return c.send(protocol.NewRequestUpdate(c.clock.Now().UnixMilli()))
}

// SetPriceRange sets the percentage band around spot the curve is sampled over
func (c *Cache) SetPriceRange(percentage float64) error {
	if percentage <= 0 || percentage > 100 {
		return fmt.Errorf("%w: price range %v must be in (0, 100]", apperrors.ErrMalformedMessage, percentage)
	}
	return c.send(protocol.NewSetPriceRange(percentage))
}

// SetLotSize sets the contract multiplier used by the payoff computation
func (c *Cache) SetLotSize(lotSize float64) error {
	if lotSize <= 0 {
		return fmt.Errorf("%w: lot size %v must be positive", apperrors.ErrMalformedMessage, lotSize)
	}
	return c.send(protocol.NewSetLotSize(lotSize))
}

// ClearSelection asks the server to drop every selected contract
func (c *Cache) ClearSelection() error {
	return c.send(protocol.NewClearSelection())
}

// OnConfirmation records the server's view of the selection and logs any
// difference from the local legs
func (c *Cache) OnConfirmation(conf core.Confirmation) {
	cp := core.Confirmation{
		SelectedContracts:    make(map[string]string, len(conf.SelectedContracts)),
		PriceRangePercentage: conf.PriceRangePercentage,
	}
	for k, v := range conf.SelectedContracts {
		cp.SelectedContracts[k] = v
	}

	c.mu.Lock()
	c.confirmation = &cp
	c.mu.Unlock()

	if c.selection != nil {
		if missing, extra, changed := Drift(c.selection.Selection(), cp.SelectedContracts); len(missing)+len(extra)+len(changed) > 0 {
			c.logger.Debug("Server selection differs from local legs",
				"missing", missing, "extra", extra, "changed", changed)
		}
	}
	c.confirmations.Notify()
}

// Confirmation returns the last confirmation received
func (c *Cache) Confirmation() (core.Confirmation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.confirmation == nil {
		return core.Confirmation{}, false
	}
	cp := *c.confirmation
	cp.SelectedContracts = make(map[string]string, len(c.confirmation.SelectedContracts))
	for k, v := range c.confirmation.SelectedContracts {
		cp.SelectedContracts[k] = v
	}
	return cp, true
}

// SubscribeConfirmations registers fn for every confirmation
func (c *Cache) SubscribeConfirmations(fn func()) (cancel func()) {
	return c.confirmations.Subscribe(fn)
}

func (c *Cache) send(msg interface{}) error {
	if err := c.sender.Send(msg); err != nil {
		c.logger.Warn("Payoff control not delivered", "error", err)
		return err
	}
	return nil
}

// Drift compares local and server selections. missing are local symbols the
// server lacks, extra are server symbols not held locally, changed have a
// different action.
func Drift(local, server map[string]string) (missing, extra, changed []string) {
	for sym, action := range local {
		got, ok := server[sym]
		switch {
		case !ok:
			missing = append(missing, sym)
		case got != action:
			changed = append(changed, sym)
		}
	}
	for sym := range server {
		if _, ok := local[sym]; !ok {
			extra = append(extra, sym)
		}
	}
	return missing, extra, changed
}
