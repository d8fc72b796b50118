package protocol

import (
	"encoding/json"
	"testing"

	"hedgedesk/internal/core"
	apperrors "hedgedesk/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_OptionTickerFlatQuotes(t *testing.T) {
	raw := []byte(`{"type":"v2/ticker","symbol":"C-BTC-97000-220225","contract_type":"call_options",
		"strike_price":"97000","mark_price":"1520.5","best_bid":"1500","best_ask":"1540","timestamp":1700000000000}`)

	env, err := Decode(raw)
	require.NoError(t, err)
	require.NotNil(t, env.Tick)

	tick := env.Tick
	assert.Equal(t, "C-BTC-97000-220225", tick.Symbol)
	assert.Equal(t, core.KindCall, tick.Kind)
	assert.True(t, tick.Strike.Decimal.Equal(decimal.NewFromInt(97000)))
	assert.True(t, tick.MarkPrice.Decimal.Equal(decimal.RequireFromString("1520.5")))
	assert.True(t, tick.BestBid.Decimal.Equal(decimal.NewFromInt(1500)))
	assert.True(t, tick.BestAsk.Decimal.Equal(decimal.NewFromInt(1540)))
	assert.Equal(t, int64(1700000000000), tick.Timestamp)
}

func TestDecode_NestedQuotesAndAbsentSides(t *testing.T) {
	raw := []byte(`{"type":"ticker","symbol":"P-ETH-3200-050125","contract_type":"put_options",
		"strike_price":3200,"quotes":{"best_bid":"0","best_ask":null},"timestamp":5}`)

	env, err := Decode(raw)
	require.NoError(t, err)
	require.NotNil(t, env.Tick)

	assert.Equal(t, core.KindPut, env.Tick.Kind)
	assert.True(t, env.Tick.BestBid.Valid, "a literal zero bid is a quote")
	assert.True(t, env.Tick.BestBid.Decimal.IsZero())
	assert.False(t, env.Tick.BestAsk.Valid, "null ask means no quote")
	assert.False(t, env.Tick.MarkPrice.Valid)
}

func TestDecode_PerpetualHasNoStrike(t *testing.T) {
	raw := []byte(`{"type":"v2/ticker","symbol":"BTCUSD","contract_type":"perpetual_futures","mark_price":"96500"}`)

	env, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, core.KindPerpetual, env.Tick.Kind)
	assert.False(t, env.Tick.Strike.Valid)
}

func TestDecode_PayoffAndConfirmation(t *testing.T) {
	env, err := Decode([]byte(`{"type":"payoff_update","timestamp":1,"data":{"x":[1,2,3],"y":[-1,0,1]}}`))
	require.NoError(t, err)
	require.NotNil(t, env.Payoff)
	assert.Equal(t, []float64{1, 2, 3}, env.Payoff.X)
	assert.Equal(t, []float64{-1, 0, 1}, env.Payoff.Y)

	env, err = Decode([]byte(`{"type":"confirmation","selected_contracts":{"C-BTC-97000-220225":"buy"},"price_range_percentage":10}`))
	require.NoError(t, err)
	require.NotNil(t, env.Confirmation)
	assert.Equal(t, "buy", env.Confirmation.SelectedContracts["C-BTC-97000-220225"])
	assert.Equal(t, 10.0, env.Confirmation.PriceRangePercentage)

	env, err = Decode([]byte(`{"type":"subscriptions","channels":[]}`))
	require.NoError(t, err)
	assert.Equal(t, TypeSubscriptions, env.Type)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"not json", `{"type":`, apperrors.ErrMalformedMessage},
		{"unknown type", `{"type":"heartbeat"}`, apperrors.ErrUnknownMessageType},
		{"missing type", `{"symbol":"X"}`, apperrors.ErrUnknownMessageType},
		{"ticker without symbol", `{"type":"v2/ticker","contract_type":"call_options","strike_price":"1"}`, apperrors.ErrMalformedMessage},
		{"option without strike", `{"type":"v2/ticker","symbol":"C-BTC-1-010125","contract_type":"call_options"}`, apperrors.ErrMalformedMessage},
		{"unsupported contract type", `{"type":"v2/ticker","symbol":"BTC-MOVE","contract_type":"move_options"}`, apperrors.ErrMalformedMessage},
		{"bad bid", `{"type":"v2/ticker","symbol":"C-BTC-1-010125","contract_type":"call_options","strike_price":"1","best_bid":"abc"}`, apperrors.ErrMalformedMessage},
		{"payoff length mismatch", `{"type":"payoff_update","data":{"x":[1,2],"y":[1]}}`, apperrors.ErrMalformedMessage},
		{"payoff without data", `{"type":"payoff_update"}`, apperrors.ErrMalformedMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestOutboundMessageShapes(t *testing.T) {
	tests := []struct {
		name string
		msg  interface{}
		want string
	}{
		{"subscribe", NewSubscribe([]string{"C-BTC-97000-220225"}),
			`{"type":"subscribe","payload":{"channels":[{"name":"v2/ticker","symbols":["C-BTC-97000-220225"]}]}}`},
		{"select", NewSelectContract("C-BTC-97000-220225", core.ActionSell),
			`{"type":"select_contract","symbol":"C-BTC-97000-220225","position":"sell"}`},
		{"deselect", NewDeselectContract("P-ETH-3200-050125"),
			`{"type":"deselect_contract","symbol":"P-ETH-3200-050125"}`},
		{"request update", NewRequestUpdate(1700000000000),
			`{"type":"request_update","timestamp":1700000000000}`},
		{"price range", NewSetPriceRange(12.5), `{"type":"set_price_range","percentage":12.5}`},
		{"lot size", NewSetLotSize(0.1), `{"type":"set_lot_size","lot_size":0.1}`},
		{"clear", NewClearSelection(), `{"type":"clear_selection"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.msg)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(b))
		})
	}
}

func TestNewSubscribe_CopiesSymbols(t *testing.T) {
	symbols := []string{"A", "B"}
	msg := NewSubscribe(symbols)
	symbols[0] = "Z"
	assert.Equal(t, []string{"A", "B"}, msg.Symbols())
}
