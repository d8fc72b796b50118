package core

import (
	"fmt"
	"strings"

	apperrors "hedgedesk/pkg/errors"

	"github.com/shopspring/decimal"
)

// ContractKind identifies the instrument a tick or leg refers to
type ContractKind string

const (
	KindCall      ContractKind = "call"
	KindPut       ContractKind = "put"
	KindPerpetual ContractKind = "perpetual-future"
)

// ParseContractKind validates a contract kind string
func ParseContractKind(s string) (ContractKind, error) {
	switch ContractKind(strings.ToLower(strings.TrimSpace(s))) {
	case KindCall:
		return KindCall, nil
	case KindPut:
		return KindPut, nil
	case KindPerpetual:
		return KindPerpetual, nil
	default:
		return "", fmt.Errorf("%w: %q", apperrors.ErrInvalidContractKind, s)
	}
}

// IsOption reports whether the kind belongs in the strike table
func (k ContractKind) IsOption() bool {
	return k == KindCall || k == KindPut
}

// Action is the direction of a leg
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// ParseAction validates a position action string
func ParseAction(s string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionBuy:
		return ActionBuy, nil
	case ActionSell:
		return ActionSell, nil
	default:
		return "", fmt.Errorf("%w: %q", apperrors.ErrInvalidAction, s)
	}
}

// Tick is an immutable snapshot of one contract at one instant.
// Quote fields are NullDecimal so that "no quote yet" never reads as zero.
type Tick struct {
	Symbol    string              `json:"symbol"`
	Kind      ContractKind        `json:"kind"`
	Strike    decimal.NullDecimal `json:"strike"`
	BestBid   decimal.NullDecimal `json:"best_bid"`
	BestAsk   decimal.NullDecimal `json:"best_ask"`
	MarkPrice decimal.NullDecimal `json:"mark_price"`
	Timestamp int64               `json:"timestamp"`
}

// StrikeRow pairs the call and put quoted at one strike
type StrikeRow struct {
	Strike decimal.Decimal `json:"strike"`
	Call   *Tick           `json:"call"`
	Put    *Tick           `json:"put"`
}

// Sides returns the row in presentation order: call, then put. Absent sides are nil.
func (r StrikeRow) Sides() [2]*Tick {
	return [2]*Tick{r.Call, r.Put}
}

// Side returns the tick for the given option kind, or nil
func (r StrikeRow) Side(kind ContractKind) *Tick {
	switch kind {
	case KindCall:
		return r.Call
	case KindPut:
		return r.Put
	default:
		return nil
	}
}

// Leg is one user-selected contract in a multi-leg position.
// Symbol is the exchange symbol the leg was picked from; ProtocolSymbol is the
// canonical form sent to the payoff server.
type Leg struct {
	ID             string          `json:"id"`
	Kind           ContractKind    `json:"kind"`
	Strike         decimal.Decimal `json:"strike"`
	Symbol         string          `json:"symbol"`
	ProtocolSymbol string          `json:"protocol_symbol"`
	Underlying     string          `json:"underlying"`
	Expiry         string          `json:"expiry"`
	Action         Action          `json:"action"`
}

// LiveLeg is a leg joined with the quote currently shown in the chain.
// It is derived on every read and never stored.
type LiveLeg struct {
	Leg
	BestBid decimal.NullDecimal `json:"best_bid"`
	BestAsk decimal.NullDecimal `json:"best_ask"`
}

// PayoffCurve is the position's profit/loss sampled over underlying prices
type PayoffCurve struct {
	X []float64 `json:"x"`
	Y []float64 `json:"y"`
}

// Validate checks that both sequences have the same length
func (c PayoffCurve) Validate() error {
	if len(c.X) != len(c.Y) {
		return fmt.Errorf("%w: payoff curve has %d x samples and %d y samples",
			apperrors.ErrMalformedMessage, len(c.X), len(c.Y))
	}
	return nil
}

// Clone returns a copy that shares no backing arrays with c
func (c PayoffCurve) Clone() PayoffCurve {
	out := PayoffCurve{
		X: make([]float64, len(c.X)),
		Y: make([]float64, len(c.Y)),
	}
	copy(out.X, c.X)
	copy(out.Y, c.Y)
	return out
}

// Confirmation is the payoff server's view of the selected contracts
type Confirmation struct {
	SelectedContracts    map[string]string `json:"selected_contracts"`
	PriceRangePercentage float64           `json:"price_range_percentage"`
}

// ConnectionState is the lifecycle state of a stream connection
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON views
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
