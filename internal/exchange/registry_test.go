package exchange

import (
	"context"
	"testing"

	apperrors "hedgedesk/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLookup []string

func (s stubLookup) LookupContracts(ctx context.Context, coin, expiry string) ([]string, error) {
	return s, nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register("Delta Exchange", stubLookup{"C-BTC-97000-220225"})

	lookup, err := r.Lookup("Delta Exchange")
	require.NoError(t, err)
	symbols, err := lookup.LookupContracts(context.Background(), "BTCUSD", "2025-02-22")
	require.NoError(t, err)
	assert.Equal(t, []string{"C-BTC-97000-220225"}, symbols)

	_, err = r.Lookup("Binance")
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedExchange)

	assert.Equal(t, []string{"Delta Exchange"}, r.Names())
}
