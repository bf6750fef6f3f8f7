package state

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// Fill is a signed trade fed to the ledger. Size is positive for buys.
// Commission is expressed in the quote currency.
type Fill struct {
	Symbol     string
	Size       decimal.Decimal
	Price      decimal.Decimal
	Commission decimal.Decimal
}

// Trade is the ledger outcome of one fill.
type Trade struct {
	Fill
	Opened    decimal.Decimal
	Closed    decimal.Decimal
	PnL       decimal.Decimal
	PrevSize  decimal.Decimal
	PrevPrice decimal.Decimal
	Position  Position
}

// Ledger tracks positions and cash reconstructed from fills.
type Ledger struct {
	mu           sync.RWMutex
	positions    map[string]*Position
	cash         decimal.Decimal
	startingCash decimal.Decimal
}

// NewLedger creates a ledger holding the given cash.
func NewLedger(cash decimal.Decimal) *Ledger {
	return &Ledger{
		positions:    make(map[string]*Position),
		cash:         cash,
		startingCash: cash,
	}
}

// Apply books a fill and returns the resulting trade.
func (l *Ledger) Apply(f Fill) Trade {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos := l.position(f.Symbol)
	trade := Trade{
		Fill:      f,
		PrevSize:  pos.Size,
		PrevPrice: pos.Price,
	}

	var closedCost, gross decimal.Decimal
	trade.Opened, trade.Closed, closedCost = pos.update(f.Size, f.Price)
	if !trade.Closed.IsZero() {
		gross = trade.Closed.Abs().Mul(f.Price).Sub(closedCost)
		if trade.PrevSize.IsNegative() {
			gross = gross.Neg()
		}
	}
	trade.PnL = gross.Sub(f.Commission)

	pos.RealizedPnL = pos.RealizedPnL.Add(trade.PnL)
	pos.Commission = pos.Commission.Add(f.Commission)
	pos.Mark = f.Price

	// opening pays the opened notional, closing returns the released cost
	// plus the gross result, for either side
	l.cash = l.cash.Sub(trade.Opened.Abs().Mul(f.Price)).Add(closedCost).Add(gross).Sub(f.Commission)
	trade.Position = *pos
	return trade
}

func (l *Ledger) position(symbol string) *Position {
	pos, ok := l.positions[symbol]
	if !ok {
		pos = &Position{Symbol: symbol}
		l.positions[symbol] = pos
	}
	return pos
}

// Position returns a copy of the position for a symbol.
func (l *Ledger) Position(symbol string) Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if pos, ok := l.positions[symbol]; ok {
		return *pos
	}
	return Position{Symbol: symbol}
}

// Positions returns copies of all positions ordered by symbol.
func (l *Ledger) Positions() []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// Mark records the latest market price of a symbol.
func (l *Ledger) Mark(symbol string, price decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.position(symbol).Mark = price
}

// Cash returns the current cash balance.
func (l *Ledger) Cash() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cash
}

// StartingCash returns the cash the ledger started from.
func (l *Ledger) StartingCash() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.startingCash
}

// SetCash resets both the starting and the current cash.
func (l *Ledger) SetCash(cash decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cash = cash
	l.startingCash = cash
}

// AddCash deposits (or withdraws, if negative) cash.
func (l *Ledger) AddCash(cash decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cash = l.cash.Add(cash)
	l.startingCash = l.startingCash.Add(cash)
}

// Value returns cash plus the cost of every open position and its
// unrealized result at the mark price. Positions without a mark are valued
// at cost.
func (l *Ledger) Value() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	value := l.cash
	for _, pos := range l.positions {
		if pos.Size.IsZero() {
			continue
		}
		value = value.Add(pos.Cost).Add(pos.UnrealizedPnL())
	}
	return value
}

// Replay rebuilds a ledger from a fill history.
func Replay(startingCash decimal.Decimal, fills []Fill) *Ledger {
	l := NewLedger(startingCash)
	for _, f := range fills {
		l.Apply(f)
	}
	return l
}
