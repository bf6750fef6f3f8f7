package binance

import (
	"time"

	"broker/internal/schema"

	"github.com/shopspring/decimal"
)

type apiErrorResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type orderResponse struct {
	Symbol              string         `json:"symbol"`
	OrderID             int64          `json:"orderId"`
	OrderListID         int64          `json:"orderListId"`
	ClientOrderID       string         `json:"clientOrderId"`
	TransactTime        int64          `json:"transactTime"`
	Price               string         `json:"price"`
	OrigQty             string         `json:"origQty"`
	ExecutedQty         string         `json:"executedQty"`
	CummulativeQuoteQty string         `json:"cummulativeQuoteQty"`
	Status              string         `json:"status"`
	TimeInForce         string         `json:"timeInForce"`
	Type                string         `json:"type"`
	Side                string         `json:"side"`
	Fills               []fillResponse `json:"fills"`
}

type fillResponse struct {
	Price           string `json:"price"`
	Qty             string `json:"qty"`
	Commission      string `json:"commission"`
	CommissionAsset string `json:"commissionAsset"`
	TradeID         int64  `json:"tradeId"`
}

type accountResponse struct {
	CanTrade bool              `json:"canTrade"`
	Balances []balanceResponse `json:"balances"`
}

type balanceResponse struct {
	Asset  string `json:"asset"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
}

type exchangeInfoResponse struct {
	Timezone string           `json:"timezone"`
	Symbols  []symbolResponse `json:"symbols"`
}

type symbolResponse struct {
	Symbol     string           `json:"symbol"`
	Status     string           `json:"status"`
	BaseAsset  string           `json:"baseAsset"`
	QuoteAsset string           `json:"quoteAsset"`
	Filters    []filterResponse `json:"filters"`
}

type filterResponse struct {
	FilterType  string `json:"filterType"`
	TickSize    string `json:"tickSize"`
	StepSize    string `json:"stepSize"`
	MinQty      string `json:"minQty"`
	MinNotional string `json:"minNotional"`
}

type listenKeyResponse struct {
	ListenKey string `json:"listenKey"`
}

type eventEnvelope struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
}

type errorEvent struct {
	Message string `json:"m"`
}

// executionReport is the user data stream order update. Keys differing only
// in case are all declared so a decoder never folds one into another.
type executionReport struct {
	EventType               string  `json:"e"`
	EventTime               int64   `json:"E"`
	Symbol                  string  `json:"s"`
	ClientOrderID           string  `json:"c"`
	Side                    string  `json:"S"`
	OrderType               string  `json:"o"`
	TimeInForce             string  `json:"f"`
	Quantity                string  `json:"q"`
	Price                   string  `json:"p"`
	StopPrice               string  `json:"P"`
	IcebergQty              string  `json:"F"`
	OrderListID             int64   `json:"g"`
	OrigClientOrderID       string  `json:"C"`
	ExecutionType           string  `json:"x"`
	Status                  string  `json:"X"`
	RejectReason            string  `json:"r"`
	OrderID                 int64   `json:"i"`
	LastFilledQty           string  `json:"l"`
	CumulativeFilledQty     string  `json:"z"`
	LastFilledPrice         string  `json:"L"`
	Commission              string  `json:"n"`
	CommissionAsset         *string `json:"N"`
	TransactTime            int64   `json:"T"`
	TradeID                 int64   `json:"t"`
	ExecutionID             int64   `json:"I"`
	OnBook                  bool    `json:"w"`
	Maker                   bool    `json:"m"`
	Ignore                  bool    `json:"M"`
	CreatedTime             int64   `json:"O"`
	CumulativeQuoteQty      string  `json:"Z"`
	LastQuoteQty            string  `json:"Y"`
	QuoteOrderQty           string  `json:"Q"`
	WorkingTime             int64   `json:"W"`
	SelfTradePreventionMode string  `json:"V"`
}

// parseDecimal tolerates empty and malformed numeric strings as zero.
func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func parseSide(s string) schema.OrderSide {
	switch s {
	case "BUY":
		return schema.OrderSideBuy
	case "SELL":
		return schema.OrderSideSell
	default:
		return schema.OrderSideUnknown
	}
}

func binanceSide(side schema.OrderSide) (string, bool) {
	switch side {
	case schema.OrderSideBuy:
		return "BUY", true
	case schema.OrderSideSell:
		return "SELL", true
	default:
		return "", false
	}
}

func binanceOrderType(t schema.OrderType) (string, bool) {
	switch t {
	case schema.OrderTypeMarket:
		return "MARKET", true
	case schema.OrderTypeLimit:
		return "LIMIT", true
	case schema.OrderTypeStop:
		return "STOP_LOSS", true
	case schema.OrderTypeStopLimit:
		return "STOP_LOSS_LIMIT", true
	default:
		return "", false
	}
}

func (r orderResponse) toAck() schema.Ack {
	ack := schema.Ack{
		OrderID:       r.OrderID,
		ClientOrderID: r.ClientOrderID,
		Symbol:        r.Symbol,
		Status:        schema.ExchangeStatus(r.Status),
		ExecutedQty:   parseDecimal(r.ExecutedQty),
		TransactTime:  parseMillis(r.TransactTime),
	}
	if len(r.Fills) > 0 {
		ack.Fills = make([]schema.AckFill, 0, len(r.Fills))
	}
	for _, f := range r.Fills {
		ack.Fills = append(ack.Fills, schema.AckFill{
			TradeID:         f.TradeID,
			Price:           parseDecimal(f.Price),
			Qty:             parseDecimal(f.Qty),
			Commission:      parseDecimal(f.Commission),
			CommissionAsset: f.CommissionAsset,
		})
	}
	return ack
}

func (r executionReport) toEvent() schema.Event {
	ev := schema.Event{
		Type:            schema.EventExecutionReport,
		Symbol:          r.Symbol,
		OrderID:         r.OrderID,
		ClientOrderID:   r.ClientOrderID,
		Side:            parseSide(r.Side),
		Status:          schema.ExchangeStatus(r.Status),
		LastFilledQty:   parseDecimal(r.LastFilledQty),
		LastFilledPrice: parseDecimal(r.LastFilledPrice),
		Commission:      parseDecimal(r.Commission),
		TradeID:         r.TradeID,
		TransactTime:    parseMillis(r.TransactTime),
		Message:         r.RejectReason,
	}
	if r.CommissionAsset != nil {
		ev.CommissionAsset = *r.CommissionAsset
	}
	if ev.Message == "NONE" {
		ev.Message = ""
	}
	return ev
}

func (r symbolResponse) toInstrument() schema.Instrument {
	inst := schema.Instrument{
		Symbol:     r.Symbol,
		BaseAsset:  r.BaseAsset,
		QuoteAsset: r.QuoteAsset,
	}
	for _, f := range r.Filters {
		switch f.FilterType {
		case "PRICE_FILTER":
			inst.Filters.TickSize = parseDecimal(f.TickSize)
		case "LOT_SIZE":
			inst.Filters.StepSize = parseDecimal(f.StepSize)
			inst.Filters.MinQty = parseDecimal(f.MinQty)
		case "NOTIONAL", "MIN_NOTIONAL":
			inst.Filters.MinNotional = parseDecimal(f.MinNotional)
		}
	}
	return inst
}

// decodeEvent turns one user data stream message into an event. Messages
// that are not user data events report false.
func decodeEvent(unmarshal func(any) error) (schema.Event, bool, error) {
	var env eventEnvelope
	if err := unmarshal(&env); err != nil {
		return schema.Event{}, false, err
	}

	switch env.EventType {
	case "executionReport":
		var report executionReport
		if err := unmarshal(&report); err != nil {
			return schema.Event{}, false, err
		}
		return report.toEvent(), true, nil
	case "listenKeyExpired", "eventStreamTerminated":
		return schema.Event{
			Type:         schema.EventError,
			Message:      env.EventType,
			TransactTime: parseMillis(env.EventTime),
		}, true, nil
	case "error":
		var e errorEvent
		if err := unmarshal(&e); err != nil {
			return schema.Event{}, false, err
		}
		return schema.Event{
			Type:    schema.EventError,
			Message: e.Message,
		}, true, nil
	case "":
		return schema.Event{}, false, nil
	default:
		return schema.Event{
			Type:         schema.ParseEventType(env.EventType),
			TransactTime: parseMillis(env.EventTime),
		}, true, nil
	}
}
