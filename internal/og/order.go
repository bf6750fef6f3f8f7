package og

import (
	"maps"
	"time"

	"broker/internal/schema"
	"broker/pkg/exception"

	"github.com/shopspring/decimal"
)

// Fill is one matched quantity of an order.
type Fill struct {
	TradeID         int64
	Size            decimal.Decimal
	Price           decimal.Decimal
	Commission      decimal.Decimal
	CommissionAsset string
	// QuoteCommission is Commission expressed in the quote asset, as booked by the ledger.
	QuoteCommission decimal.Decimal
	At              time.Time
}

// Notional returns size * price.
func (f Fill) Notional() decimal.Decimal {
	return f.Size.Mul(f.Price)
}

// Execution aggregates the fills of an order.
type Execution struct {
	Size       decimal.Decimal
	Price      decimal.Decimal
	Value      decimal.Decimal
	Commission decimal.Decimal
}

// Order holds the broker's view of an order.
type Order struct {
	Ref           uint64
	ID            int64
	ClientOrderID string
	Owner         string
	Symbol        string
	Side          schema.OrderSide
	Type          schema.OrderType
	Size          decimal.Decimal
	Price         decimal.Decimal
	Params        map[string]string
	Status        Status
	Executed      Execution
	Fills         []Fill
	Reason        string
	Created       time.Time
	Updated       time.Time
}

// IsBuy reports whether the order buys.
func (o *Order) IsBuy() bool {
	return o.Side == schema.OrderSideBuy
}

// Remaining returns the unexecuted size.
func (o *Order) Remaining() decimal.Decimal {
	return o.Size.Sub(o.Executed.Size)
}

// Apply moves the order through the state machine.
func (o *Order) Apply(t Transition, at time.Time) error {
	next, err := Next(o.Status, t)
	if err != nil {
		return err
	}
	o.Status = next
	o.Updated = at
	return nil
}

// Reject moves the order to Rejected and records the reason.
func (o *Order) Reject(reason string, at time.Time) error {
	if err := o.Apply(TransitionReject, at); err != nil {
		return err
	}
	o.Reason = reason
	return nil
}

// HasTrade reports whether a fill with the trade id was already applied.
// Non-positive ids are never considered duplicates.
func (o *Order) HasTrade(tradeID int64) bool {
	if tradeID <= 0 {
		return false
	}
	for i := range o.Fills {
		if o.Fills[i].TradeID == tradeID {
			return true
		}
	}
	return false
}

// Execute accumulates a fill. It returns false when the fill was already applied.
func (o *Order) Execute(fill Fill) (bool, error) {
	if o.Status.Terminal() {
		return false, exception.ErrOrderLifecycle
	}
	if !fill.Size.IsPositive() || fill.Price.IsNegative() {
		return false, exception.ErrInvalidFill
	}
	if o.HasTrade(fill.TradeID) {
		return false, nil
	}

	size := o.Executed.Size.Add(fill.Size)
	if size.GreaterThan(o.Size) {
		return false, exception.ErrOverfill
	}

	value := o.Executed.Value.Add(fill.Notional())
	o.Executed.Size = size
	o.Executed.Value = value
	o.Executed.Price = value.Div(size)
	o.Executed.Commission = o.Executed.Commission.Add(fill.Commission)
	o.Fills = append(o.Fills, fill)
	if !fill.At.IsZero() {
		o.Updated = fill.At
	}
	return true, nil
}

// Clone returns a deep copy safe to hand to other goroutines.
func (o *Order) Clone() Order {
	c := *o
	if o.Fills != nil {
		c.Fills = make([]Fill, len(o.Fills))
		copy(c.Fills, o.Fills)
	}
	if o.Params != nil {
		c.Params = maps.Clone(o.Params)
	}
	return c
}
