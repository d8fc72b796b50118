// Package session owns one dashboard session: both push channels, the event
// loop every mutation runs on, and the components fed by them.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hedgedesk/internal/analysis"
	"hedgedesk/internal/core"
	"hedgedesk/internal/market"
	"hedgedesk/internal/payoff"
	"hedgedesk/internal/positions"
	"hedgedesk/internal/protocol"
	"hedgedesk/internal/settings"
	"hedgedesk/internal/subscription"
	apperrors "hedgedesk/pkg/errors"
	"hedgedesk/pkg/eventloop"
	"hedgedesk/pkg/reactive"
	"hedgedesk/pkg/telemetry"
	pkgws "hedgedesk/pkg/websocket"

	"github.com/benbjohnson/clock"
)

// Endpoint names
const (
	EndpointMarket = "market"
	EndpointPayoff = "payoff"
)

// ErrAnalysisDisabled is returned by analysis commands when no analysis client is configured
var ErrAnalysisDisabled = errors.New("analysis API not configured")

// Config holds the session's endpoint and initial settings
type Config struct {
	Market  pkgws.Config
	Payoff  pkgws.Config
	Initial settings.Values

	// Payoff controls sent each time the payoff channel connects; zero skips
	LotSize              float64
	PriceRangePercentage float64

	LookupTimeout  time.Duration
	EventQueueSize int
}

// Deps are the collaborators a session is built from
type Deps struct {
	Catalogue settings.Catalogue
	Resolver  subscription.Resolver
	Pool      subscription.Submitter
	Analysis  *analysis.Client // optional
	Clock     clock.Clock      // optional
	Dialer    pkgws.Dialer     // optional
}

// Session wires the five components to the two channels
type Session struct {
	cfg     Config
	logger  core.ILogger
	metrics *telemetry.MetricsHolder
	loop    *eventloop.Loop

	market *pkgws.Connection
	payoff *pkgws.Connection

	settings *settings.Settings
	chain    *market.Chain
	deriver  *subscription.Deriver
	store    *positions.Store
	cache    *payoff.Cache
	analysis *analysis.Client

	// loop-owned
	lotSize    float64
	priceRange float64

	updates *reactive.Value[Update]
	cancels []func()
}

// New builds a session. Nothing connects until Run.
func New(cfg Config, deps Deps, logger core.ILogger) *Session {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if cfg.Market.Name == "" {
		cfg.Market.Name = EndpointMarket
	}
	if cfg.Payoff.Name == "" {
		cfg.Payoff.Name = EndpointPayoff
	}

	s := &Session{
		cfg:        cfg,
		logger:     logger.WithField("component", "session"),
		metrics:    telemetry.GetGlobalMetrics(),
		loop:       eventloop.New(cfg.EventQueueSize),
		analysis:   deps.Analysis,
		lotSize:    cfg.LotSize,
		priceRange: cfg.PriceRangePercentage,
		updates:    reactive.NewValue(Update{}),
	}

	opts := []pkgws.Option{pkgws.WithClock(deps.Clock)}
	if deps.Dialer != nil {
		opts = append(opts, pkgws.WithDialer(deps.Dialer))
	}
	s.market = pkgws.NewConnection(cfg.Market, s.inbound(cfg.Market.Name), logger, opts...)
	s.payoff = pkgws.NewConnection(cfg.Payoff, s.inbound(cfg.Payoff.Name), logger, opts...)

	s.settings = settings.New(deps.Catalogue, cfg.Initial)
	s.chain = market.NewChain(logger)
	s.deriver = subscription.NewDeriver(s.market, s.chain, deps.Resolver, deps.Pool, subscription.Options{
		LookupTimeout: cfg.LookupTimeout,
		Post:          func(fn func()) { s.loop.Post(fn) },
	}, logger)
	s.store = positions.NewStore(s.payoff, s.chain, logger)
	s.cache = payoff.NewCache(s.payoff, s.store, deps.Clock, logger)

	s.wire()
	return s
}

// inbound hands each frame to the loop, preserving arrival order
func (s *Session) inbound(endpoint string) pkgws.MessageHandler {
	return func(raw []byte) {
		frame := make([]byte, len(raw))
		copy(frame, raw)
		s.loop.Post(func() { s.route(endpoint, frame) })
	}
}

// route decodes one frame and dispatches it by type. Runs on the loop.
func (s *Session) route(endpoint string, raw []byte) {
	ctx := context.Background()

	env, err := protocol.Decode(raw)
	if err != nil {
		reason := "malformed"
		if errors.Is(err, apperrors.ErrUnknownMessageType) {
			reason = "unknown_type"
		}
		s.metrics.RecordProtocolError(ctx, endpoint, reason)
		s.logger.Warn("Dropping inbound message", "endpoint", endpoint, "error", err)
		return
	}
	s.metrics.RecordStreamMessage(ctx, endpoint, env.Type)

	switch {
	case env.Tick != nil:
		// ticks for a superseded subscription keep arriving until the
		// server applies the new subscribe
		if env.Tick.Kind.IsOption() && !s.deriver.Subscribed(env.Tick.Symbol) {
			s.metrics.RecordStaleTick(ctx, endpoint)
			return
		}
		s.chain.Ingest(*env.Tick)
	case env.Payoff != nil:
		if err := s.cache.OnUpdate(*env.Payoff); err != nil {
			s.metrics.RecordProtocolError(ctx, endpoint, "invalid_payoff")
		}
	case env.Confirmation != nil:
		s.cache.OnConfirmation(*env.Confirmation)
	default:
		s.logger.Debug("Subscription acknowledged", "endpoint", endpoint)
	}
}

func (s *Session) wire() {
	s.cancels = append(s.cancels,
		s.deriver.Bind(s.settings),
		s.settings.Subscribe(func(v settings.Values) { s.publish(TopicSettings, v) }),

		s.market.OnStateChange(func(state core.ConnectionState) {
			s.loop.Post(func() { s.onMarketState(state) })
		}),
		s.payoff.OnStateChange(func(state core.ConnectionState) {
			s.loop.Post(func() { s.onPayoffState(state) })
		}),

		s.chain.Subscribe(func() {
			s.publish(TopicChain, s.chain.Snapshot())
			s.publish(TopicUnderlying, s.chain.Underlying())
			if s.store.Len() > 0 {
				s.publish(TopicLegs, s.store.LiveLegs())
			}
		}),
		s.store.Subscribe(func() { s.publish(TopicLegs, s.store.LiveLegs()) }),
		s.cache.Subscribe(func(curve core.PayoffCurve) { s.publish(TopicPayoff, curve) }),
		s.cache.SubscribeConfirmations(func() {
			if conf, ok := s.cache.Confirmation(); ok {
				s.publish(TopicConfirmation, conf)
			}
		}),
		s.deriver.Subscribe(func(symbols []string) { s.publish(TopicSubscription, symbols) }),
	)

	if s.analysis != nil {
		s.cancels = append(s.cancels, s.analysis.Subscribe(func(result analysis.SimulationResult) {
			s.publish(TopicSimulation, result)
		}))
	}
}

func (s *Session) onMarketState(state core.ConnectionState) {
	s.publish(TopicConnection, s.Connections())
	if state == core.StateConnected {
		s.deriver.Resync()
	}
}

func (s *Session) onPayoffState(state core.ConnectionState) {
	s.publish(TopicConnection, s.Connections())
	if state != core.StateConnected {
		return
	}
	s.store.Resync()
	if s.priceRange > 0 {
		_ = s.cache.SetPriceRange(s.priceRange)
	}
	if s.lotSize > 0 {
		_ = s.cache.SetLotSize(s.lotSize)
	}
}

// Run connects both channels, derives the initial subscription and processes
// events until ctx ends. Both channels are disconnected on return.
func (s *Session) Run(ctx context.Context) error {
	s.logger.Info("Session starting",
		"market_url", s.cfg.Market.URL,
		"payoff_url", s.cfg.Payoff.URL,
		"exchange", s.cfg.Initial.Exchange,
		"coin", s.cfg.Initial.Coin,
		"expiry", s.cfg.Initial.Expiry)

	s.market.Connect()
	s.payoff.Connect()
	s.loop.Post(func() {
		s.deriver.Update(s.settings.Current())
	})

	err := s.loop.Run(ctx)

	s.market.Disconnect()
	s.payoff.Disconnect()
	for _, cancel := range s.cancels {
		cancel()
	}
	s.logger.Info("Session stopped")
	return err
}

// do runs fn on the loop and returns its error
func (s *Session) do(ctx context.Context, fn func() error) error {
	var err error
	if callErr := s.loop.Call(ctx, func() { err = fn() }); callErr != nil {
		return fmt.Errorf("session not running: %w", callErr)
	}
	return err
}

// SetSettings validates and applies a new exchange/coin/expiry selection
func (s *Session) SetSettings(ctx context.Context, v settings.Values) error {
	return s.do(ctx, func() error { return s.settings.Apply(v) })
}

// AddLeg adds a leg. added is false when an identical leg already existed.
func (s *Session) AddLeg(ctx context.Context, req positions.AddLegRequest) (leg core.Leg, added bool, err error) {
	err = s.do(ctx, func() error {
		var addErr error
		leg, added, addErr = s.store.AddLeg(req)
		return addErr
	})
	return leg, added, err
}

// SetAction changes a leg's direction
func (s *Session) SetAction(ctx context.Context, id string, action core.Action) error {
	return s.do(ctx, func() error { return s.store.SetAction(id, action) })
}

// RemoveLeg removes a leg; unknown ids are ignored
func (s *Session) RemoveLeg(ctx context.Context, id string) error {
	return s.do(ctx, func() error {
		s.store.RemoveLeg(id)
		return nil
	})
}

// ClearAll removes every leg
func (s *Session) ClearAll(ctx context.Context) error {
	return s.do(ctx, func() error {
		s.store.ClearAll()
		return nil
	})
}

// ClearServerSelection asks the payoff server to drop its selection without
// touching local legs
func (s *Session) ClearServerSelection(ctx context.Context) error {
	return s.do(ctx, s.cache.ClearSelection)
}

// RefreshPayoff asks the payoff server for a fresh curve
func (s *Session) RefreshPayoff(ctx context.Context) error {
	return s.do(ctx, s.cache.RequestRefresh)
}

// SetPriceRange changes the payoff sampling band. A valid value is kept and
// re-sent on reconnect even if this send fails.
func (s *Session) SetPriceRange(ctx context.Context, percentage float64) error {
	return s.do(ctx, func() error {
		err := s.cache.SetPriceRange(percentage)
		if err == nil || errors.Is(err, apperrors.ErrNotConnected) {
			s.priceRange = percentage
		}
		return err
	})
}

// SetLotSize changes the lot size on the payoff channel and, when configured,
// on the analysis API
func (s *Session) SetLotSize(ctx context.Context, lotSize float64) error {
	err := s.do(ctx, func() error {
		err := s.cache.SetLotSize(lotSize)
		if err == nil || errors.Is(err, apperrors.ErrNotConnected) {
			s.lotSize = lotSize
		}
		return err
	})
	if err != nil || s.analysis == nil {
		return err
	}
	return s.analysis.UpdateLotSize(ctx, lotSize)
}

// RunSimulation runs the scenario simulation; the result is also published
func (s *Session) RunSimulation(ctx context.Context) (analysis.SimulationResult, error) {
	if s.analysis == nil {
		return nil, ErrAnalysisDisabled
	}
	return s.analysis.RunSimulation(ctx)
}

// ClearScenario drops the scenario on the analysis API
func (s *Session) ClearScenario(ctx context.Context) error {
	if s.analysis == nil {
		return ErrAnalysisDisabled
	}
	return s.analysis.ClearScenario(ctx)
}

// Connections reports the state of both channels
func (s *Session) Connections() map[string]core.ConnectionState {
	return map[string]core.ConnectionState{
		s.market.Name(): s.market.State(),
		s.payoff.Name(): s.payoff.State(),
	}
}

// Streams returns the two channels, market first
func (s *Session) Streams() []*pkgws.Connection {
	return []*pkgws.Connection{s.market, s.payoff}
}

// View assembles the full current view. Safe from any goroutine.
func (s *Session) View() View {
	v := View{
		Settings:     s.settings.Current(),
		Catalogue:    s.settings.Catalogue(),
		Subscription: s.deriver.Symbols(),
		Chain:        s.chain.Snapshot(),
		Underlying:   s.chain.Underlying(),
		Legs:         s.store.LiveLegs(),
		Payoff:       s.cache.Current(),
		Connections:  s.Connections(),
	}
	if conf, ok := s.cache.Confirmation(); ok {
		v.Confirmation = &conf
	}
	if s.analysis != nil {
		if res := s.analysis.LatestResult(); len(res) > 0 {
			v.Simulation = json.RawMessage(res)
		}
	}
	return v
}

// OnUpdate registers fn for every incremental view update
func (s *Session) OnUpdate(fn func(Update)) (cancel func()) {
	return s.updates.Subscribe(fn)
}

func (s *Session) publish(topic string, data interface{}) {
	s.updates.Set(Update{Topic: topic, Data: data})
}
