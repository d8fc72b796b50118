// Package protocol defines the JSON messages exchanged with the market-data
// and payoff servers.
package protocol

import "hedgedesk/internal/core"

// Outbound message types
const (
	TypeSubscribe        = "subscribe"
	TypeSelectContract   = "select_contract"
	TypeDeselectContract = "deselect_contract"
	TypeRequestUpdate    = "request_update"
	TypeSetPriceRange    = "set_price_range"
	TypeSetLotSize       = "set_lot_size"
	TypeClearSelection   = "clear_selection"
)

// Inbound message types
const (
	TypePayoffUpdate  = "payoff_update"
	TypeConfirmation  = "confirmation"
	TypeTickerV2      = "v2/ticker"
	TypeTicker        = "ticker"
	TypeSubscriptions = "subscriptions"
)

// TickerChannel is the channel name used in subscribe requests
const TickerChannel = "v2/ticker"

type Channel struct {
	Name    string   `json:"name"`
	Symbols []string `json:"symbols"`
}

type SubscribePayload struct {
	Channels []Channel `json:"channels"`
}

// SubscribeMessage replaces the full set of ticker symbols the server streams
type SubscribeMessage struct {
	Type    string           `json:"type"`
	Payload SubscribePayload `json:"payload"`
}

func NewSubscribe(symbols []string) SubscribeMessage {
	cp := make([]string, len(symbols))
	copy(cp, symbols)
	return SubscribeMessage{
		Type: TypeSubscribe,
		Payload: SubscribePayload{
			Channels: []Channel{{Name: TickerChannel, Symbols: cp}},
		},
	}
}

// Symbols returns the symbols of the ticker channel
func (m SubscribeMessage) Symbols() []string {
	for _, ch := range m.Payload.Channels {
		if ch.Name == TickerChannel {
			return ch.Symbols
		}
	}
	return nil
}

type SelectContractMessage struct {
	Type     string      `json:"type"`
	Symbol   string      `json:"symbol"`
	Position core.Action `json:"position"`
}

func NewSelectContract(symbol string, action core.Action) SelectContractMessage {
	return SelectContractMessage{Type: TypeSelectContract, Symbol: symbol, Position: action}
}

type DeselectContractMessage struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

func NewDeselectContract(symbol string) DeselectContractMessage {
	return DeselectContractMessage{Type: TypeDeselectContract, Symbol: symbol}
}

// RequestUpdateMessage asks the payoff server to push a fresh curve.
// Timestamp is unix milliseconds.
type RequestUpdateMessage struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

func NewRequestUpdate(timestampMs int64) RequestUpdateMessage {
	return RequestUpdateMessage{Type: TypeRequestUpdate, Timestamp: timestampMs}
}

type SetPriceRangeMessage struct {
	Type       string  `json:"type"`
	Percentage float64 `json:"percentage"`
}

func NewSetPriceRange(percentage float64) SetPriceRangeMessage {
	return SetPriceRangeMessage{Type: TypeSetPriceRange, Percentage: percentage}
}

type SetLotSizeMessage struct {
	Type    string  `json:"type"`
	LotSize float64 `json:"lot_size"`
}

func NewSetLotSize(lotSize float64) SetLotSizeMessage {
	return SetLotSizeMessage{Type: TypeSetLotSize, LotSize: lotSize}
}

type ClearSelectionMessage struct {
	Type string `json:"type"`
}

func NewClearSelection() ClearSelectionMessage {
	return ClearSelectionMessage{Type: TypeClearSelection}
}
