package state

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decEqual(t *testing.T, want string, got decimal.Decimal, msg ...any) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s %v", want, got, msg)
}

func TestLedgerSignFlip(t *testing.T) {
	l := NewLedger(dec("10000"))
	l.Apply(Fill{Symbol: "BTCUSDT", Size: dec("10"), Price: dec("100")})

	trade := l.Apply(Fill{Symbol: "BTCUSDT", Size: dec("-15"), Price: dec("110"), Commission: dec("1")})
	decEqual(t, "-10", trade.Closed)
	decEqual(t, "-5", trade.Opened)
	decEqual(t, "99", trade.PnL)
	decEqual(t, "10", trade.PrevSize)
	decEqual(t, "100", trade.PrevPrice)

	pos := l.Position("BTCUSDT")
	decEqual(t, "-5", pos.Size)
	decEqual(t, "110", pos.Price)
	decEqual(t, "99", pos.RealizedPnL)
	decEqual(t, "1", pos.Commission)
	decEqual(t, "550", pos.Cost)
	// 10000 - 1000 bought, +1100 closed, -550 opened short, -1 commission
	decEqual(t, "9549", l.Cash())
	decEqual(t, "10099", l.Value())
}

func TestLedgerShortCash(t *testing.T) {
	l := NewLedger(dec("1000"))
	trade := l.Apply(Fill{Symbol: "X", Size: dec("-2"), Price: dec("100")})
	decEqual(t, "-2", trade.Opened)
	decEqual(t, "800", l.Cash())
	decEqual(t, "1000", l.Value())

	l.Mark("X", dec("90"))
	decEqual(t, "20", l.Position("X").UnrealizedPnL())
	decEqual(t, "1020", l.Value())

	trade = l.Apply(Fill{Symbol: "X", Size: dec("5"), Price: dec("90")})
	decEqual(t, "2", trade.Closed)
	decEqual(t, "3", trade.Opened)
	decEqual(t, "20", trade.PnL)

	pos := l.Position("X")
	decEqual(t, "3", pos.Size)
	decEqual(t, "90", pos.Price)
	decEqual(t, "270", pos.Cost)
	// 800 + 200 released + 20 gained - 270 opened long
	decEqual(t, "750", l.Cash())
	decEqual(t, "1020", l.Value())
}

func TestLedgerRoundTripDoesNotDrift(t *testing.T) {
	l := Replay(decimal.Zero, []Fill{
		{Symbol: "X", Size: dec("1"), Price: dec("1")},
		{Symbol: "X", Size: dec("1"), Price: dec("1")},
		{Symbol: "X", Size: dec("1"), Price: dec("2")},
		{Symbol: "X", Size: dec("3"), Price: dec("1")},
		{Symbol: "X", Size: dec("1"), Price: dec("3")},
	})
	pos := l.Position("X")
	decEqual(t, "7", pos.Size)
	decEqual(t, "10", pos.Cost)
	decEqual(t, "-10", l.Cash())

	l.Apply(Fill{Symbol: "X", Size: dec("-3"), Price: dec("10")})
	trade := l.Apply(Fill{Symbol: "X", Size: dec("-4"), Price: dec("10")})
	decEqual(t, "-4", trade.Closed)

	pos = l.Position("X")
	assert.True(t, pos.IsFlat())
	decEqual(t, "0", pos.Cost)
	decEqual(t, "0", pos.Price)
	decEqual(t, "60", pos.RealizedPnL)
	decEqual(t, "60", l.Cash())
}

func TestLedgerPartialFillsBlendAverage(t *testing.T) {
	l := NewLedger(dec("5000"))
	l.Apply(Fill{Symbol: "ETHUSDT", Size: dec("0.4"), Price: dec("2000")})
	l.Apply(Fill{Symbol: "ETHUSDT", Size: dec("0.6"), Price: dec("2010")})

	pos := l.Position("ETHUSDT")
	decEqual(t, "1", pos.Size)
	decEqual(t, "2006", pos.Price)
	decEqual(t, "0", pos.RealizedPnL)
	decEqual(t, "2994", l.Cash())
}

func TestLedgerCloseToFlatResetsPrice(t *testing.T) {
	l := NewLedger(decimal.Zero)
	l.Apply(Fill{Symbol: "X", Size: dec("-5"), Price: dec("110")})
	trade := l.Apply(Fill{Symbol: "X", Size: dec("5"), Price: dec("100")})

	decEqual(t, "5", trade.Closed)
	decEqual(t, "0", trade.Opened)
	decEqual(t, "50", trade.PnL)

	pos := l.Position("X")
	assert.True(t, pos.IsFlat())
	decEqual(t, "0", pos.Price)
	decEqual(t, "50", l.Cash())
}

func TestLedgerPnLIndependentOfFillGranularity(t *testing.T) {
	batched := []Fill{
		{Symbol: "ETHUSDT", Size: dec("1"), Price: dec("2000"), Commission: dec("1")},
		{Symbol: "ETHUSDT", Size: dec("-0.5"), Price: dec("2100"), Commission: dec("0.5")},
		{Symbol: "ETHUSDT", Size: dec("-0.5"), Price: dec("2200"), Commission: dec("0.5")},
	}
	split := []Fill{
		{Symbol: "ETHUSDT", Size: dec("0.4"), Price: dec("2000"), Commission: dec("0.4")},
		{Symbol: "ETHUSDT", Size: dec("0.6"), Price: dec("2000"), Commission: dec("0.6")},
		{Symbol: "ETHUSDT", Size: dec("-0.5"), Price: dec("2100"), Commission: dec("0.5")},
		{Symbol: "ETHUSDT", Size: dec("-0.25"), Price: dec("2200"), Commission: dec("0.25")},
		{Symbol: "ETHUSDT", Size: dec("-0.25"), Price: dec("2200"), Commission: dec("0.25")},
	}

	a := Replay(dec("3000"), batched)
	b := Replay(dec("3000"), split)

	pa, pb := a.Position("ETHUSDT"), b.Position("ETHUSDT")
	// 0.5 * 100 + 0.5 * 200 - 2 commission
	decEqual(t, "148", pa.RealizedPnL)
	decEqual(t, "148", pb.RealizedPnL)
	assert.True(t, pa.Price.Equal(pb.Price))
	assert.True(t, a.Cash().Equal(b.Cash()))
	decEqual(t, "3148", a.Cash())
}

func TestLedgerSizeIsSignedSumOfFills(t *testing.T) {
	fills := []Fill{
		{Symbol: "A", Size: dec("3"), Price: dec("10")},
		{Symbol: "B", Size: dec("-2"), Price: dec("7")},
		{Symbol: "A", Size: dec("-5"), Price: dec("12")},
		{Symbol: "A", Size: dec("1.5"), Price: dec("11")},
		{Symbol: "B", Size: dec("4"), Price: dec("6")},
	}
	l := Replay(decimal.Zero, fills)

	sums := map[string]decimal.Decimal{}
	for _, f := range fills {
		sums[f.Symbol] = sums[f.Symbol].Add(f.Size)
	}
	for symbol, sum := range sums {
		assert.True(t, l.Position(symbol).Size.Equal(sum), symbol)
	}
}

func TestLedgerValueUsesMark(t *testing.T) {
	l := NewLedger(dec("1000"))
	l.Apply(Fill{Symbol: "A", Size: dec("2"), Price: dec("100")})
	decEqual(t, "1000", l.Value())

	l.Mark("A", dec("150"))
	decEqual(t, "1100", l.Value())
	decEqual(t, "100", l.Position("A").UnrealizedPnL())
}

func TestLedgerCashAdjustments(t *testing.T) {
	l := NewLedger(decimal.Zero)
	l.SetCash(dec("100"))
	l.AddCash(dec("50"))
	decEqual(t, "150", l.Cash())
	decEqual(t, "150", l.StartingCash())
}

func TestLedgerSnapshotRoundTripMatchesReplay(t *testing.T) {
	fills := []Fill{
		{Symbol: "BTCUSDT", Size: dec("0.01"), Price: dec("42000"), Commission: dec("0.42")},
		{Symbol: "ETHUSDT", Size: dec("1"), Price: dec("2000")},
		{Symbol: "BTCUSDT", Size: dec("-0.01"), Price: dec("43000"), Commission: dec("0.43")},
	}
	live := NewLedger(dec("1000"))
	for _, f := range fills {
		live.Apply(f)
	}

	path := filepath.Join(t.TempDir(), "ledger", "snapshot.json")
	require.NoError(t, WriteSnapshot(path, live.Snapshot()))

	stored, err := ReadSnapshot(path)
	require.NoError(t, err)
	require.NoError(t, CompareSnapshots(stored, Replay(dec("1000"), fills).Snapshot()))

	other := Replay(dec("1000"), fills[:2])
	require.Error(t, CompareSnapshots(stored, other.Snapshot()))
}
