package risk

import (
	"testing"
	"time"

	"broker/internal/schema"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestEvaluateLimits(t *testing.T) {
	testCases := []struct {
		desc   string
		cfg    Config
		intent Intent
		state  StateView
		reason Reason
	}{
		{
			desc:   "no limits",
			intent: Intent{Side: schema.OrderSideBuy, Size: dec("10"), Price: dec("100")},
			reason: ReasonNone,
		},
		{
			desc:   "kill switch",
			cfg:    Config{KillSwitch: true},
			intent: Intent{Side: schema.OrderSideBuy, Size: dec("1")},
			reason: ReasonKillSwitch,
		},
		{
			desc:   "max qty",
			cfg:    Config{MaxOrderQty: dec("2")},
			intent: Intent{Side: schema.OrderSideSell, Size: dec("2.5")},
			reason: ReasonMaxQty,
		},
		{
			desc:   "max notional uses reference price for market orders",
			cfg:    Config{MaxOrderNotional: dec("1000")},
			intent: Intent{Side: schema.OrderSideBuy, Type: schema.OrderTypeMarket, Size: dec("1")},
			state:  StateView{ReferencePrice: dec("1500")},
			reason: ReasonMaxNotional,
		},
		{
			desc:   "position limit on sell side",
			cfg:    Config{MaxPosition: dec("3")},
			intent: Intent{Side: schema.OrderSideSell, Size: dec("2")},
			state:  StateView{Position: dec("-2")},
			reason: ReasonPositionLimit,
		},
		{
			desc:   "reducing position is fine",
			cfg:    Config{MaxPosition: dec("3")},
			intent: Intent{Side: schema.OrderSideSell, Size: dec("5")},
			state:  StateView{Position: dec("3")},
			reason: ReasonNone,
		},
		{
			desc:   "min qty",
			cfg:    Config{EnforceFilters: true},
			intent: Intent{Side: schema.OrderSideBuy, Size: dec("0.0001"), Price: dec("2000")},
			state:  StateView{Filters: schema.Filters{MinQty: dec("0.001")}},
			reason: ReasonMinQty,
		},
		{
			desc:   "min notional",
			cfg:    Config{EnforceFilters: true},
			intent: Intent{Side: schema.OrderSideBuy, Size: dec("0.001"), Price: dec("2000")},
			state:  StateView{Filters: schema.Filters{MinNotional: dec("5")}},
			reason: ReasonMinNotional,
		},
		{
			desc:   "min notional skipped without price",
			cfg:    Config{EnforceFilters: true},
			intent: Intent{Side: schema.OrderSideBuy, Size: dec("0.001")},
			state:  StateView{Filters: schema.Filters{MinNotional: dec("5")}},
			reason: ReasonNone,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			d := NewEngine(tc.cfg).Evaluate(tc.intent, tc.state)
			assert.Equal(t, tc.reason, d.Reason)
			assert.Equal(t, tc.reason == ReasonNone, d.Allowed)
		})
	}
}

func TestEvaluateRateLimitWindow(t *testing.T) {
	e := NewEngine(Config{OrderRateLimit: 2, OrderRateWindow: time.Second})
	now := time.Unix(1_700_000_000, 0)
	intent := Intent{Side: schema.OrderSideBuy, Size: dec("1")}

	require.True(t, e.Evaluate(intent, StateView{Now: now}).Allowed)
	require.True(t, e.Evaluate(intent, StateView{Now: now.Add(100 * time.Millisecond)}).Allowed)
	d := e.Evaluate(intent, StateView{Now: now.Add(200 * time.Millisecond)})
	require.False(t, d.Allowed)
	assert.Equal(t, ReasonRateLimit, d.Reason)

	require.True(t, e.Evaluate(intent, StateView{Now: now.Add(time.Second)}).Allowed)
}

func TestUpdateRequiresNewVersion(t *testing.T) {
	e := NewEngine(Config{Version: 1})
	assert.False(t, e.Update(Config{Version: 1, KillSwitch: true}))
	assert.False(t, e.Config().KillSwitch)

	assert.True(t, e.Update(Config{Version: 2, KillSwitch: true}))
	assert.True(t, e.Config().KillSwitch)
}
