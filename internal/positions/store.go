// Package positions tracks the user's selected legs and mirrors every change
// to the payoff server.
package positions

import (
	"fmt"
	"sync"

	"hedgedesk/internal/core"
	"hedgedesk/internal/protocol"
	apperrors "hedgedesk/pkg/errors"
	"hedgedesk/pkg/reactive"
	"hedgedesk/pkg/telemetry"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// QuoteSource resolves the current chain quote for one side of a strike
type QuoteSource interface {
	Quote(kind core.ContractKind, strike decimal.Decimal) *core.Tick
}

// AddLegRequest carries the fields of a new leg
type AddLegRequest struct {
	Kind       core.ContractKind
	Strike     decimal.Decimal
	Symbol     string
	Expiry     string
	Underlying string
}

// Store is the PositionStore. Send failures are logged and never roll back
// local state; Resync replays the selection once the channel is back.
type Store struct {
	sender  core.ISender
	quotes  QuoteSource
	logger  core.ILogger
	metrics *telemetry.MetricsHolder
	changes *reactive.Notifier
	newID   func() string

	mu   sync.RWMutex
	legs []core.Leg
}

// NewStore creates an empty store sending over sender and joining quotes from quotes
func NewStore(sender core.ISender, quotes QuoteSource, logger core.ILogger) *Store {
	return &Store{
		sender:  sender,
		quotes:  quotes,
		logger:  logger.WithField("component", "positions"),
		metrics: telemetry.GetGlobalMetrics(),
		changes: reactive.NewNotifier(),
		newID:   uuid.NewString,
	}
}

// AddLeg appends a buy leg and sends select_contract. A leg with the same
// kind, strike and symbol already present makes this a no-op; added reports
// which case happened.
func (s *Store) AddLeg(req AddLegRequest) (leg core.Leg, added bool, err error) {
	underlying := req.Underlying
	if underlying == "" {
		parsed, perr := protocol.ParseSymbol(req.Symbol)
		if perr != nil {
			return core.Leg{}, false, fmt.Errorf("underlying not given: %w", perr)
		}
		underlying = parsed.Underlying
	}

	protoSymbol, err := protocol.FormatSymbol(req.Kind, req.Strike, underlying, req.Expiry)
	if err != nil {
		return core.Leg{}, false, err
	}

	s.mu.Lock()
	for _, l := range s.legs {
		if l.Kind == req.Kind && l.Strike.Equal(req.Strike) && l.Symbol == req.Symbol {
			s.mu.Unlock()
			s.logger.Debug("Leg already selected", "symbol", req.Symbol)
			return l, false, nil
		}
	}
	leg = core.Leg{
		ID:             s.newID(),
		Kind:           req.Kind,
		Strike:         req.Strike,
		Symbol:         req.Symbol,
		ProtocolSymbol: protoSymbol,
		Underlying:     underlying,
		Expiry:         req.Expiry,
		Action:         core.ActionBuy,
	}
	s.legs = append(s.legs, leg)
	n := len(s.legs)
	s.mu.Unlock()

	s.metrics.SetLegsActive(n)
	s.logger.Info("Leg added", "id", leg.ID, "symbol", protoSymbol)
	s.send(protocol.NewSelectContract(protoSymbol, leg.Action), protoSymbol)
	s.changes.Notify()
	return leg, true, nil
}

// SetAction changes the direction of a leg and re-sends select_contract
func (s *Store) SetAction(id string, action core.Action) error {
	if _, err := core.ParseAction(string(action)); err != nil {
		return err
	}

	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", apperrors.ErrLegNotFound, id)
	}
	s.legs[idx].Action = action
	symbol := s.legs[idx].ProtocolSymbol
	s.mu.Unlock()

	s.logger.Info("Leg action changed", "id", id, "action", string(action))
	s.send(protocol.NewSelectContract(symbol, action), symbol)
	s.changes.Notify()
	return nil
}

// RemoveLeg drops a leg and sends deselect_contract. Unknown ids are ignored.
func (s *Store) RemoveLeg(id string) {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	leg := s.legs[idx]
	s.legs = append(s.legs[:idx:idx], s.legs[idx+1:]...)
	n := len(s.legs)
	s.mu.Unlock()

	s.metrics.SetLegsActive(n)
	s.logger.Info("Leg removed", "id", id, "symbol", leg.ProtocolSymbol)
	s.send(protocol.NewDeselectContract(leg.ProtocolSymbol), leg.ProtocolSymbol)
	s.changes.Notify()
}

// ClearAll sends deselect_contract for every leg, then empties the store
func (s *Store) ClearAll() {
	s.mu.Lock()
	legs := s.legs
	s.legs = nil
	s.mu.Unlock()

	if len(legs) == 0 {
		return
	}
	for _, leg := range legs {
		s.send(protocol.NewDeselectContract(leg.ProtocolSymbol), leg.ProtocolSymbol)
	}

	s.metrics.SetLegsActive(0)
	s.logger.Info("All legs cleared", "count", len(legs))
	s.changes.Notify()
}

// Resync re-sends select_contract for every leg
func (s *Store) Resync() {
	legs := s.Legs()
	if len(legs) == 0 {
		return
	}
	s.logger.Info("Re-selecting legs after reconnect", "count", len(legs))
	for _, leg := range legs {
		s.send(protocol.NewSelectContract(leg.ProtocolSymbol, leg.Action), leg.ProtocolSymbol)
	}
}

// Legs returns a copy of the legs in insertion order
func (s *Store) Legs() []core.Leg {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Leg, len(s.legs))
	copy(out, s.legs)
	return out
}

// Get returns the leg with the given id
func (s *Store) Get(id string) (core.Leg, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := s.indexLocked(id); idx >= 0 {
		return s.legs[idx], true
	}
	return core.Leg{}, false
}

// Len returns the number of legs
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.legs)
}

// Selection returns protocol symbol → action for every leg
func (s *Store) Selection() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.legs))
	for _, l := range s.legs {
		out[l.ProtocolSymbol] = string(l.Action)
	}
	return out
}

// LiveLegs joins every leg to the current chain quote for its kind and
// strike. The quote is taken only when it is for the leg's own contract, so a
// leg from another expiry carries absent bid/ask.
func (s *Store) LiveLegs() []core.LiveLeg {
	legs := s.Legs()
	out := make([]core.LiveLeg, 0, len(legs))
	for _, leg := range legs {
		live := core.LiveLeg{Leg: leg}
		if s.quotes != nil {
			if q := s.quotes.Quote(leg.Kind, leg.Strike); q != nil && q.Symbol == leg.Symbol {
				live.BestBid = q.BestBid
				live.BestAsk = q.BestAsk
			}
		}
		out = append(out, live)
	}
	return out
}

// Subscribe registers fn to run after every change to the leg list
func (s *Store) Subscribe(fn func()) (cancel func()) {
	return s.changes.Subscribe(fn)
}

func (s *Store) indexLocked(id string) int {
	for i, l := range s.legs {
		if l.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) send(msg interface{}, symbol string) {
	if err := s.sender.Send(msg); err != nil {
		s.logger.Warn("Position message not delivered", "symbol", symbol, "error", err)
	}
}
