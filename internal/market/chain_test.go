package market

import (
	"math/rand"
	"testing"

	"hedgedesk/internal/core"
	"hedgedesk/pkg/logging"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func optionTick(kind core.ContractKind, strike string, bid string, ts int64) core.Tick {
	t := core.Tick{
		Symbol:    string(kind) + "-" + strike,
		Kind:      kind,
		Strike:    decimal.NewNullDecimal(decimal.RequireFromString(strike)),
		Timestamp: ts,
	}
	if bid != "" {
		t.BestBid = decimal.NewNullDecimal(decimal.RequireFromString(bid))
	}
	return t
}

func TestChain_IngestOrdersByNumericStrike(t *testing.T) {
	c := NewChain(logging.NewNopLogger())

	c.Ingest(optionTick(core.KindCall, "100000", "1", 1))
	c.Ingest(optionTick(core.KindPut, "95000", "2", 1))
	c.Ingest(optionTick(core.KindCall, "9500", "3", 1))
	c.Ingest(optionTick(core.KindPut, "97000.5", "4", 1))

	rows := c.Snapshot()
	require.Len(t, rows, 4)
	var strikes []string
	for _, r := range rows {
		strikes = append(strikes, r.Strike.String())
	}
	assert.Equal(t, []string{"9500", "95000", "97000.5", "100000"}, strikes)
}

func TestChain_SameStrikeDifferentSpellingSharesRow(t *testing.T) {
	c := NewChain(logging.NewNopLogger())

	c.Ingest(optionTick(core.KindCall, "97000", "10", 1))
	c.Ingest(optionTick(core.KindPut, "97000.00", "20", 1))

	rows := c.Snapshot()
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].Call)
	require.NotNil(t, rows[0].Put)

	sides := rows[0].Sides()
	assert.Equal(t, core.KindCall, sides[0].Kind)
	assert.Equal(t, core.KindPut, sides[1].Kind)
}

func TestChain_NewRowLeavesOtherSideAbsent(t *testing.T) {
	c := NewChain(logging.NewNopLogger())
	c.Ingest(optionTick(core.KindPut, "3200", "0", 1))

	rows := c.Snapshot()
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].Call)
	require.NotNil(t, rows[0].Put)
	assert.True(t, rows[0].Put.BestBid.Valid, "a zero bid is still a quote")
	assert.False(t, rows[0].Put.BestAsk.Valid)
}

func TestChain_LatestTickWins(t *testing.T) {
	c := NewChain(logging.NewNopLogger())

	assert.True(t, c.Ingest(optionTick(core.KindCall, "100", "1", 10)))
	assert.True(t, c.Ingest(optionTick(core.KindCall, "100", "2", 11)))
	assert.False(t, c.Ingest(optionTick(core.KindCall, "100", "9", 5)), "older tick must be ignored")

	q := c.Quote(core.KindCall, decimal.NewFromInt(100))
	require.NotNil(t, q)
	assert.Equal(t, "2", q.BestBid.Decimal.String())
}

func TestChain_RandomSequencesStayConsistent(t *testing.T) {
	c := NewChain(logging.NewNopLogger())
	rng := rand.New(rand.NewSource(42))
	strikes := []string{"90", "95", "100", "105", "110"}
	latest := map[string]int64{}

	for i := 0; i < 500; i++ {
		kind := core.KindCall
		if rng.Intn(2) == 0 {
			kind = core.KindPut
		}
		strike := strikes[rng.Intn(len(strikes))]
		ts := int64(i)
		c.Ingest(optionTick(kind, strike, decimal.NewFromInt(ts).String(), ts))
		latest[string(kind)+strike] = ts
	}

	rows := c.Snapshot()
	for i := 1; i < len(rows); i++ {
		assert.True(t, rows[i-1].Strike.LessThan(rows[i].Strike))
	}
	for _, r := range rows {
		assert.False(t, r.Call == nil && r.Put == nil)
		if r.Call != nil {
			assert.Equal(t, latest["call"+r.Strike.String()], r.Call.Timestamp)
		}
		if r.Put != nil {
			assert.Equal(t, latest["put"+r.Strike.String()], r.Put.Timestamp)
		}
	}
}

func TestChain_PerpetualGoesToUnderlying(t *testing.T) {
	c := NewChain(logging.NewNopLogger())
	c.Ingest(core.Tick{
		Symbol:    "BTCUSD",
		Kind:      core.KindPerpetual,
		MarkPrice: decimal.NewNullDecimal(decimal.NewFromInt(96500)),
		Timestamp: 3,
	})

	assert.Equal(t, 0, c.Len())
	u := c.Underlying()
	require.NotNil(t, u)
	assert.Equal(t, "BTCUSD", u.Symbol)

	assert.False(t, c.Ingest(core.Tick{Symbol: "BTCUSD", Kind: core.KindPerpetual, Timestamp: 2}))
}

func TestChain_OptionWithoutStrikeIsRejected(t *testing.T) {
	c := NewChain(logging.NewNopLogger())
	assert.False(t, c.Ingest(core.Tick{Symbol: "C-BTC-x", Kind: core.KindCall}))
	assert.Equal(t, 0, c.Len())
}

func TestChain_SnapshotIsIsolated(t *testing.T) {
	c := NewChain(logging.NewNopLogger())
	c.Ingest(optionTick(core.KindCall, "100", "1", 1))

	rows := c.Snapshot()
	rows[0].Call.Symbol = "mutated"

	assert.Equal(t, "call-100", c.Snapshot()[0].Call.Symbol)
}

func TestChain_ResetAndNotifications(t *testing.T) {
	c := NewChain(logging.NewNopLogger())
	calls := 0
	c.Subscribe(func() { calls++ })

	c.Ingest(optionTick(core.KindCall, "100", "1", 1))
	c.Ingest(optionTick(core.KindCall, "100", "1", 0))
	assert.Equal(t, 1, calls)

	c.Reset()
	assert.Equal(t, 2, calls)
	assert.Empty(t, c.Snapshot())
	assert.Nil(t, c.Underlying())

	c.Reset()
	assert.Equal(t, 2, calls, "resetting an empty chain is silent")
}
