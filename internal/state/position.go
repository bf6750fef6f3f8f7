package state

import (
	"github.com/shopspring/decimal"
)

// Position is the bookkeeping of one instrument.
type Position struct {
	Symbol string
	Size   decimal.Decimal
	// Cost is the notional paid to open the current size. It is never
	// negative, for shorts as well as longs.
	Cost decimal.Decimal
	// Price is the average open price, Cost / |Size|. It is derived after
	// every trade and never used to book one.
	Price       decimal.Decimal
	RealizedPnL decimal.Decimal
	Commission  decimal.Decimal
	Mark        decimal.Decimal
}

// IsFlat reports whether there is no open size.
func (p Position) IsFlat() bool {
	return p.Size.IsZero()
}

// UnrealizedPnL values the open size at the mark price.
func (p Position) UnrealizedPnL() decimal.Decimal {
	if p.Size.IsZero() || p.Mark.IsZero() {
		return decimal.Zero
	}
	cost := p.Cost
	if p.Size.IsNegative() {
		cost = cost.Neg()
	}
	return p.Size.Mul(p.Mark).Sub(cost)
}

// update applies a signed trade. The opened and closed portions carry the
// sign of the trade; closedCost is the share of Cost released by the
// closed portion.
func (p *Position) update(size, price decimal.Decimal) (opened, closed, closedCost decimal.Decimal) {
	prev := p.Size
	next := prev.Add(size)

	switch {
	case prev.IsZero() || prev.Sign() == size.Sign():
		opened = size
	case next.IsZero() || next.Sign() == prev.Sign():
		closed = size
	default:
		closed = prev.Neg()
		opened = next
	}

	if !closed.IsZero() {
		closedCost = p.Cost
		if !closed.Abs().Equal(prev.Abs()) {
			closedCost = p.Cost.Mul(closed.Abs()).Div(prev.Abs())
		}
		p.Cost = p.Cost.Sub(closedCost)
	}
	p.Cost = p.Cost.Add(opened.Abs().Mul(price))
	p.Size = next

	p.Price = decimal.Zero
	if !next.IsZero() {
		p.Price = p.Cost.Div(next.Abs())
	}
	return opened, closed, closedCost
}
