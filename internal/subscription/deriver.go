// Package subscription derives the ticker subscription set from the user's
// exchange, coin and expiry selection.
package subscription

import (
	"context"
	"sort"
	"sync"
	"time"

	"hedgedesk/internal/core"
	"hedgedesk/internal/protocol"
	"hedgedesk/internal/settings"
	"hedgedesk/pkg/reactive"
	"hedgedesk/pkg/telemetry"
)

// Resolver maps an exchange name to its contract lookup
type Resolver interface {
	Lookup(exchange string) (core.IContractLookup, error)
}

// Submitter runs a task in the background
type Submitter interface {
	Submit(task func()) error
}

// Resetter clears data tied to the previous subscription
type Resetter interface {
	Reset()
}

// Selection is one (exchange, coin, expiry) input triple
type Selection = settings.Values

// Source publishes whole selections
type Source interface {
	Subscribe(fn func(settings.Values)) (cancel func())
}

// Options tunes the deriver
type Options struct {
	LookupTimeout time.Duration
	// Post delivers lookup results back to the caller's event loop. When nil
	// results are applied on the worker goroutine.
	Post func(func())
}

// Deriver is the SubscriptionDeriver. Each input change starts a new
// generation; a lookup result is applied only if its generation is still
// the latest.
type Deriver struct {
	sender   core.ISender
	chain    Resetter
	resolver Resolver
	pool     Submitter
	opts     Options
	logger   core.ILogger
	metrics  *telemetry.MetricsHolder

	mu        sync.Mutex
	gen       uint64
	selection Selection
	current   []string
	active    map[string]struct{}

	symbols *reactive.Value[[]string]
}

// NewDeriver wires a deriver; it does nothing until Update or Bind is called
func NewDeriver(sender core.ISender, chain Resetter, resolver Resolver, pool Submitter, opts Options, logger core.ILogger) *Deriver {
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = 10 * time.Second
	}
	if opts.Post == nil {
		opts.Post = func(fn func()) { fn() }
	}
	return &Deriver{
		sender:   sender,
		chain:    chain,
		resolver: resolver,
		pool:     pool,
		opts:     opts,
		logger:   logger.WithField("component", "subscription"),
		metrics:  telemetry.GetGlobalMetrics(),
		symbols:  reactive.NewValue([]string(nil)),
	}
}

// Bind re-derives each time src publishes a selection
func (d *Deriver) Bind(src Source) (cancel func()) {
	return src.Subscribe(d.Update)
}

// Update starts deriving the set for sel, superseding any lookup in flight
func (d *Deriver) Update(sel Selection) {
	d.mu.Lock()
	d.gen++
	gen := d.gen
	d.selection = sel
	d.mu.Unlock()

	if !sel.Complete() {
		d.apply(gen, sel, nil, nil)
		return
	}

	lookup, err := d.resolver.Lookup(sel.Exchange)
	if err != nil {
		d.apply(gen, sel, nil, err)
		return
	}

	task := func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.opts.LookupTimeout)
		defer cancel()

		start := time.Now()
		symbols, err := lookup.LookupContracts(ctx, sel.Coin, sel.Expiry)
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		d.metrics.RecordLookup(ctx, sel.Exchange, outcome, time.Since(start).Seconds())

		d.opts.Post(func() { d.apply(gen, sel, symbols, err) })
	}
	if err := d.pool.Submit(task); err != nil {
		d.apply(gen, sel, nil, err)
	}
}

func (d *Deriver) apply(gen uint64, sel Selection, symbols []string, lookupErr error) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		d.logger.Debug("Discarding superseded lookup", "coin", sel.Coin, "expiry", sel.Expiry)
		return
	}
	if lookupErr != nil {
		d.logger.Warn("Contract lookup failed, clearing subscription",
			"exchange", sel.Exchange, "coin", sel.Coin, "expiry", sel.Expiry, "error", lookupErr)
		symbols = nil
	}
	if sameSet(symbols, d.current) {
		d.mu.Unlock()
		return
	}
	next := make([]string, len(symbols))
	copy(next, symbols)
	active := make(map[string]struct{}, len(next))
	for _, sym := range next {
		active[sym] = struct{}{}
	}
	d.current = next
	d.active = active
	d.mu.Unlock()

	d.chain.Reset()

	if len(next) == 0 {
		d.logger.Info("Subscription cleared", "coin", sel.Coin, "expiry", sel.Expiry)
	} else {
		d.logger.Info("Subscribing", "coin", sel.Coin, "expiry", sel.Expiry, "symbols", len(next))
		if err := d.sender.Send(protocol.NewSubscribe(next)); err != nil {
			d.logger.Warn("Subscribe not delivered, will retry on reconnect", "error", err)
		}
	}
	d.symbols.Set(next)
}

// Resync re-sends the current subscription, used after the market channel reconnects
func (d *Deriver) Resync() {
	symbols := d.Symbols()
	if len(symbols) == 0 {
		return
	}
	d.logger.Info("Re-subscribing after reconnect", "symbols", len(symbols))
	if err := d.sender.Send(protocol.NewSubscribe(symbols)); err != nil {
		d.logger.Warn("Re-subscribe not delivered", "error", err)
	}
}

// Symbols returns the current subscription set
func (d *Deriver) Symbols() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.current))
	copy(out, d.current)
	return out
}

// Subscribed reports whether symbol is in the current subscription set
func (d *Deriver) Subscribed(symbol string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.active[symbol]
	return ok
}

// Selection returns the latest input
func (d *Deriver) Selection() Selection {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.selection
}

// Subscribe registers fn for every change of the subscription set
func (d *Deriver) Subscribe(fn func([]string)) (cancel func()) {
	return d.symbols.Subscribe(fn)
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}
