package schema

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryAdd(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(Instrument{Symbol: "ETHUSDT", BaseAsset: "ETH", QuoteAsset: "USDT"}))
	require.NoError(t, r.Add(Instrument{Symbol: "BTCUSDT", BaseAsset: "BTC", QuoteAsset: "USDT"}))

	assert.Error(t, r.Add(Instrument{Symbol: "ETHUSDT", BaseAsset: "ETH", QuoteAsset: "USDT"}))
	assert.Error(t, r.Add(Instrument{Symbol: "", BaseAsset: "ETH", QuoteAsset: "USDT"}))
	assert.Error(t, r.Add(Instrument{Symbol: "SOLUSDT", BaseAsset: "SOL"}))

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, r.Symbols())
	assert.True(t, r.Tracks("ETHUSDT"))
	assert.False(t, r.Tracks("SOLUSDT"))
}

func TestRegistrySetFilters(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(Instrument{Symbol: "ETHUSDT", BaseAsset: "ETH", QuoteAsset: "USDT"}))

	f := Filters{TickSize: decimal.RequireFromString("0.01"), StepSize: decimal.RequireFromString("0.0001")}
	require.NoError(t, r.SetFilters("ETHUSDT", f))
	assert.Error(t, r.SetFilters("SOLUSDT", f))

	inst, ok := r.Instrument("ETHUSDT")
	require.True(t, ok)
	assert.True(t, inst.Filters.TickSize.Equal(f.TickSize))
}

func TestFiltersRound(t *testing.T) {
	f := Filters{
		TickSize: decimal.RequireFromString("0.01"),
		StepSize: decimal.RequireFromString("0.001"),
	}
	assert.Equal(t, "2000.12", f.RoundPrice(decimal.RequireFromString("2000.129")).String())
	assert.Equal(t, "0.123", f.RoundSize(decimal.RequireFromString("0.1239")).String())

	var none Filters
	assert.Equal(t, "1.23456", none.RoundSize(decimal.RequireFromString("1.23456")).String())
}
