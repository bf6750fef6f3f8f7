package chaos

import (
	"context"
	"fmt"
	"sync"
	"time"

	"broker/internal/schema"
	"broker/internal/state"
	"broker/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"
	"github.com/yanun0323/logs"
)

// PaperConfig configures the simulated exchange.
type PaperConfig struct {
	QuoteAsset string
	Balance    decimal.Decimal
	// CommissionRate is charged on traded notional in the quote asset.
	CommissionRate decimal.Decimal
	// Slices splits every execution into this many trades.
	Slices int
	// AckFills reports the first trade of a marketable order in the ack.
	AckFills bool
}

type restingOrder struct {
	id  int64
	req schema.OrderRequest
}

// Paper is an in-memory spot exchange. Orders are acknowledged synchronously
// and executed through push channel events that pass through a chaos engine.
type Paper struct {
	mu        sync.Mutex
	cfg       PaperConfig
	chaos     *Engine
	handler   func(schema.Event) error
	now       func() time.Time
	nextID    int64
	nextTrade int64
	marks     map[string]decimal.Decimal
	resting   *btree.Map[int64, restingOrder]
	events    []schema.Event
	trades    []state.Fill
}

// NewPaper creates a paper exchange. A nil engine delivers every event as is.
func NewPaper(cfg PaperConfig, engine *Engine) *Paper {
	if cfg.Slices <= 0 {
		cfg.Slices = 1
	}
	return &Paper{
		cfg:       cfg,
		chaos:     engine,
		now:       time.Now,
		nextID:    1,
		nextTrade: 1,
		marks:     make(map[string]decimal.Decimal),
		resting:   btree.NewMap[int64, restingOrder](32),
	}
}

// SetHandler delivers events inline, before the acknowledgment of the order
// that produced them returns. Without a handler events queue for Events.
func (p *Paper) SetHandler(h func(schema.Event) error) {
	p.mu.Lock()
	p.handler = h
	p.mu.Unlock()
}

// SetMark moves the market price of a symbol and executes every resting
// limit order it crosses.
func (p *Paper) SetMark(symbol string, price decimal.Decimal) error {
	p.mu.Lock()
	p.marks[symbol] = price
	var crossed []restingOrder
	p.resting.Scan(func(_ int64, o restingOrder) bool {
		if o.req.Symbol == symbol && marketable(o.req, price) {
			crossed = append(crossed, o)
		}
		return true
	})
	for _, o := range crossed {
		p.resting.Delete(o.id)
		p.execute(o.id, o.req, o.req.Price, nil)
	}
	out, handler := p.takeInline()
	p.mu.Unlock()

	return deliver(handler, out)
}

// SubmitOrder implements the exchange session.
func (p *Paper) SubmitOrder(ctx context.Context, req schema.OrderRequest) (schema.Ack, error) {
	if err := ctx.Err(); err != nil {
		return schema.Ack{}, fmt.Errorf("%w: %v", exception.ErrConnectivity, err)
	}

	p.mu.Lock()
	ack, err := p.submit(req)
	out, handler := p.takeInline()
	p.mu.Unlock()
	if err != nil {
		return schema.Ack{}, err
	}

	if err := deliver(handler, out); err != nil {
		logs.Errorf("paper inline delivery, order %d, err: %+v", ack.OrderID, err)
	}
	return ack, nil
}

func (p *Paper) submit(req schema.OrderRequest) (schema.Ack, error) {
	if !req.Size.IsPositive() {
		return schema.Ack{}, fmt.Errorf("%w: size %s", exception.ErrExchangeRejected, req.Size)
	}

	id := p.nextID
	p.nextID++
	ack := schema.Ack{
		OrderID:       id,
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Status:        schema.ExchangeStatusNew,
		TransactTime:  p.now(),
	}

	mark := p.marks[req.Symbol]
	switch req.Type {
	case schema.OrderTypeMarket:
		if !mark.IsPositive() {
			ack.Status = schema.ExchangeStatusRejected
			return ack, nil
		}
		p.emit(p.event(id, req, schema.ExchangeStatusNew))
		p.execute(id, req, mark, &ack)
	case schema.OrderTypeLimit:
		p.emit(p.event(id, req, schema.ExchangeStatusNew))
		if mark.IsPositive() && marketable(req, mark) {
			p.execute(id, req, req.Price, &ack)
			return ack, nil
		}
		p.resting.Set(id, restingOrder{id: id, req: req})
	default:
		return schema.Ack{}, fmt.Errorf("%w: %s", exception.ErrOrderUnsupportedType, req.Type)
	}
	return ack, nil
}

// CancelOrder implements the exchange session. Only resting orders can be
// canceled.
func (p *Paper) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", exception.ErrConnectivity, err)
	}

	p.mu.Lock()
	o, ok := p.resting.Get(orderID)
	if !ok || o.req.Symbol != symbol {
		p.mu.Unlock()
		return fmt.Errorf("%w: unknown order %d", exception.ErrExchangeRejected, orderID)
	}
	p.resting.Delete(orderID)
	p.emit(p.event(orderID, o.req, schema.ExchangeStatusCanceled))
	out, handler := p.takeInline()
	p.mu.Unlock()

	return deliver(handler, out)
}

// Balance implements the exchange session.
func (p *Paper) Balance(ctx context.Context, asset string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", exception.ErrConnectivity, err)
	}
	if asset != p.cfg.QuoteAsset {
		return decimal.Zero, nil
	}
	return p.cfg.Balance, nil
}

// Events returns and clears the queued events.
func (p *Paper) Events() []schema.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.events
	p.events = nil
	return out
}

// Flush releases the events held back for reordering.
func (p *Paper) Flush() error {
	p.mu.Lock()
	p.events = append(p.events, p.chaos.Flush()...)
	out, handler := p.takeInline()
	p.mu.Unlock()
	return deliver(handler, out)
}

// Trades returns every executed trade as a signed ledger fill.
func (p *Paper) Trades() []state.Fill {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]state.Fill, len(p.trades))
	copy(out, p.trades)
	return out
}

// Resting returns the number of orders on the book.
func (p *Paper) Resting() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resting.Len()
}

// execute fills req at price in cfg.Slices trades. The first trade goes into
// ack when AckFills is set.
func (p *Paper) execute(id int64, req schema.OrderRequest, price decimal.Decimal, ack *schema.Ack) {
	slices := p.cfg.Slices
	slice := req.Size.Div(decimal.NewFromInt(int64(slices))).Truncate(8)
	filled := decimal.Zero
	for i := 0; i < slices; i++ {
		qty := slice
		status := schema.ExchangeStatusPartiallyFilled
		if i == slices-1 {
			qty = req.Size.Sub(filled)
			status = schema.ExchangeStatusFilled
		}
		if !qty.IsPositive() {
			continue
		}
		filled = filled.Add(qty)

		tradeID := p.nextTrade
		p.nextTrade++
		commission := qty.Mul(price).Mul(p.cfg.CommissionRate)
		p.trades = append(p.trades, state.Fill{
			Symbol:     req.Symbol,
			Size:       req.Side.Sign().Mul(qty),
			Price:      price,
			Commission: commission,
		})

		ev := p.event(id, req, status)
		ev.LastFilledQty = qty
		ev.LastFilledPrice = price
		ev.Commission = commission
		ev.CommissionAsset = p.cfg.QuoteAsset
		ev.TradeID = tradeID

		if ack != nil && p.cfg.AckFills && i == 0 {
			ack.Status = status
			ack.ExecutedQty = qty
			ack.Fills = append(ack.Fills, schema.AckFill{
				TradeID:         tradeID,
				Price:           price,
				Qty:             qty,
				Commission:      commission,
				CommissionAsset: p.cfg.QuoteAsset,
			})
		}
		p.emit(ev)
	}
}

func (p *Paper) event(id int64, req schema.OrderRequest, status schema.ExchangeStatus) schema.Event {
	return schema.Event{
		Type:          schema.EventExecutionReport,
		Symbol:        req.Symbol,
		OrderID:       id,
		ClientOrderID: req.ClientOrderID,
		Side:          req.Side,
		Status:        status,
		TradeID:       -1,
		TransactTime:  p.now(),
	}
}

func (p *Paper) emit(ev schema.Event) {
	p.events = append(p.events, p.chaos.Process(ev)...)
}

// takeInline hands the queued events to the inline handler, if any.
func (p *Paper) takeInline() ([]schema.Event, func(schema.Event) error) {
	if p.handler == nil {
		return nil, nil
	}
	out := p.events
	p.events = nil
	return out, p.handler
}

// deliver hands every event to handler and returns the first failure.
func deliver(handler func(schema.Event) error, events []schema.Event) error {
	var first error
	for _, ev := range events {
		if err := handler(ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func marketable(req schema.OrderRequest, mark decimal.Decimal) bool {
	if req.Side == schema.OrderSideBuy {
		return req.Price.GreaterThanOrEqual(mark)
	}
	return req.Price.LessThanOrEqual(mark)
}
