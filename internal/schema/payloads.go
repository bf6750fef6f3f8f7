package schema

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide describes order direction.
type OrderSide uint8

const (
	OrderSideUnknown OrderSide = iota
	OrderSideBuy
	OrderSideSell
)

func (s OrderSide) String() string {
	switch s {
	case OrderSideBuy:
		return "BUY"
	case OrderSideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Sign returns +1 for buys and -1 for sells, zero otherwise.
func (s OrderSide) Sign() decimal.Decimal {
	switch s {
	case OrderSideBuy:
		return decimal.NewFromInt(1)
	case OrderSideSell:
		return decimal.NewFromInt(-1)
	default:
		return decimal.Zero
	}
}

// OrderType describes order type.
type OrderType uint8

const (
	OrderTypeUnknown OrderType = iota
	OrderTypeMarket
	OrderTypeLimit
	OrderTypeStop
	OrderTypeStopLimit
)

func (t OrderType) String() string {
	switch t {
	case OrderTypeMarket:
		return "MARKET"
	case OrderTypeLimit:
		return "LIMIT"
	case OrderTypeStop:
		return "STOP"
	case OrderTypeStopLimit:
		return "STOP_LIMIT"
	default:
		return "UNKNOWN"
	}
}

// NeedsPrice reports whether the order type carries a limit price.
func (t OrderType) NeedsPrice() bool {
	return t == OrderTypeLimit || t == OrderTypeStopLimit
}

// ExchangeStatus is the order status code reported by the exchange.
type ExchangeStatus string

const (
	ExchangeStatusNew             ExchangeStatus = "NEW"
	ExchangeStatusPartiallyFilled ExchangeStatus = "PARTIALLY_FILLED"
	ExchangeStatusFilled          ExchangeStatus = "FILLED"
	ExchangeStatusCanceled        ExchangeStatus = "CANCELED"
	ExchangeStatusPendingCancel   ExchangeStatus = "PENDING_CANCEL"
	ExchangeStatusRejected        ExchangeStatus = "REJECTED"
	ExchangeStatusExpired         ExchangeStatus = "EXPIRED"
	ExchangeStatusExpiredInMatch  ExchangeStatus = "EXPIRED_IN_MATCH"
)

// OrderRequest is the order handed to the exchange session.
type OrderRequest struct {
	Symbol        string
	ClientOrderID string
	Side          OrderSide
	Type          OrderType
	Size          decimal.Decimal
	Price         decimal.Decimal
	Params        map[string]string
}

// AckFill is one trade embedded in an order acknowledgment.
type AckFill struct {
	TradeID         int64
	Price           decimal.Decimal
	Qty             decimal.Decimal
	Commission      decimal.Decimal
	CommissionAsset string
}

// Ack is the exchange's synchronous reply to an order request.
type Ack struct {
	OrderID       int64
	ClientOrderID string
	Symbol        string
	Status        ExchangeStatus
	ExecutedQty   decimal.Decimal
	Fills         []AckFill
	TransactTime  time.Time
}

// Event is one message delivered by the push channel.
type Event struct {
	Type            EventType
	Symbol          string
	OrderID         int64
	ClientOrderID   string
	Side            OrderSide
	Status          ExchangeStatus
	LastFilledQty   decimal.Decimal
	LastFilledPrice decimal.Decimal
	Commission      decimal.Decimal
	CommissionAsset string
	TradeID         int64
	TransactTime    time.Time
	Message         string
}

// HasFill reports whether the event carries a matched quantity.
func (e Event) HasFill() bool {
	return e.LastFilledQty.IsPositive()
}
