package broker

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"broker/internal/og"
	"broker/internal/risk"
	"broker/internal/schema"
	"broker/pkg/exception"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"
)

// Request describes a new order. Type defaults to market; Price is only
// required for limit and stop-limit orders.
type Request struct {
	Owner  string
	Symbol string
	Size   decimal.Decimal
	Price  decimal.Decimal
	Type   schema.OrderType
	Params map[string]string
}

// Buy submits a buy order.
func (b *Broker) Buy(ctx context.Context, req Request) (og.Order, error) {
	return b.Submit(ctx, schema.OrderSideBuy, req)
}

// Sell submits a sell order.
func (b *Broker) Sell(ctx context.Context, req Request) (og.Order, error) {
	return b.Submit(ctx, schema.OrderSideSell, req)
}

// Submit sends an order and blocks until the exchange acknowledges it.
//
// The returned error only reports malformed requests. Exchange refusals,
// transport failures, malformed acks and risk denials come back as a
// Rejected order.
func (b *Broker) Submit(ctx context.Context, side schema.OrderSide, req Request) (og.Order, error) {
	if b.session == nil {
		return og.Order{}, exception.ErrOrderNilSession
	}
	inst, err := b.validate(side, &req)
	if err != nil {
		return og.Order{}, err
	}

	now := b.now()
	order := &og.Order{
		Ref:           b.refs.Next(),
		ClientOrderID: uuid.New().String(),
		Owner:         req.Owner,
		Symbol:        req.Symbol,
		Side:          side,
		Type:          req.Type,
		Size:          req.Size,
		Price:         req.Price,
		Params:        maps.Clone(req.Params),
		Status:        og.StatusCreated,
		Created:       now,
		Updated:       now,
	}

	if reason, denied := b.preTrade(order, inst, now); denied {
		return b.rejectLocal(order, reason), nil
	}

	if err := order.Apply(og.TransitionSubmit, now); err != nil {
		return og.Order{}, err
	}

	b.mu.Lock()
	b.inflight++
	b.mu.Unlock()

	start := time.Now()
	ack, sendErr := b.session.SubmitOrder(ctx, schema.OrderRequest{
		Symbol:        order.Symbol,
		ClientOrderID: order.ClientOrderID,
		Side:          order.Side,
		Type:          order.Type,
		Size:          order.Size,
		Price:         order.Price,
		Params:        order.Params,
	})
	b.metrics.ObserveSubmit(time.Since(start))

	b.mu.Lock()
	defer b.mu.Unlock()
	defer b.releaseInflight()

	if sendErr != nil {
		if errors.Is(sendErr, exception.ErrConnectivity) {
			b.metrics.IncConnectivity()
		}
		logs.Errorf("submit %s %s %s failed, err: %+v", order.Side, order.Size, order.Symbol, sendErr)
		b.metrics.IncSubmitReject()
		return b.rejectLocked(order, sendErr.Error()), nil
	}
	b.metrics.IncSubmit()

	if ack.OrderID == 0 {
		b.metrics.IncSubmitReject()
		return b.rejectLocked(order, exception.ErrOrderEmptyResponseID.Error()), nil
	}
	order.ID = ack.OrderID

	transition, err := checkAck(order, ack)
	if err != nil {
		logs.Errorf("ack of order %d refused, err: %+v", order.ID, err)
		b.metrics.IncSubmitReject()
		delete(b.early, order.ID)
		return b.rejectLocked(order, err.Error()), nil
	}
	if err := b.applyAck(order, ack, transition); err != nil {
		logs.Errorf("apply ack of order %d failed, err: %+v", order.ID, err)
	}
	b.notify(order)

	if !order.Status.Alive() {
		delete(b.early, order.ID)
		return order.Clone(), nil
	}

	if err := b.orders.Upsert(order); err != nil {
		logs.Errorf("register order %d failed, err: %+v", order.ID, err)
	}
	result := order.Clone()
	b.replayEarly(order.ID)
	return result, nil
}

func (b *Broker) validate(side schema.OrderSide, req *Request) (schema.Instrument, error) {
	if side != schema.OrderSideBuy && side != schema.OrderSideSell {
		return schema.Instrument{}, exception.ErrOrderUnsupportedSide
	}
	if !req.Size.IsPositive() {
		return schema.Instrument{}, exception.ErrOrderInvalidSize
	}
	switch req.Type {
	case schema.OrderTypeUnknown:
		req.Type = schema.OrderTypeMarket
	case schema.OrderTypeMarket, schema.OrderTypeLimit, schema.OrderTypeStop, schema.OrderTypeStopLimit:
	default:
		return schema.Instrument{}, exception.ErrOrderUnsupportedType
	}
	if req.Type.NeedsPrice() && !req.Price.IsPositive() {
		return schema.Instrument{}, exception.ErrOrderMissingPrice
	}
	inst, ok := b.instruments.Instrument(req.Symbol)
	if !ok {
		return schema.Instrument{}, exception.ErrOrderUntrackedSymbol
	}
	return inst, nil
}

// preTrade runs the risk engine and reports a denial reason.
func (b *Broker) preTrade(order *og.Order, inst schema.Instrument, now time.Time) (string, bool) {
	if b.risk == nil {
		return "", false
	}
	pos := b.ledger.Position(order.Symbol)
	decision := b.risk.Evaluate(risk.Intent{
		Symbol: order.Symbol,
		Side:   order.Side,
		Type:   order.Type,
		Size:   order.Size,
		Price:  order.Price,
	}, risk.StateView{
		Position:       pos.Size,
		ReferencePrice: pos.Mark,
		Filters:        inst.Filters,
		Now:            now,
	})
	if decision.Allowed {
		return "", false
	}
	b.metrics.IncRiskReason(decision.Reason)
	b.metrics.IncSubmitReject()
	return exception.ErrOrderRiskDenied.Error() + ": " + decision.Reason.String(), true
}

// checkAck maps the acknowledged status and validates the reported fills
// against the requested size. Nothing is booked.
func checkAck(order *og.Order, ack schema.Ack) (og.Transition, error) {
	transition, err := og.TransitionFor(ack.Status)
	if err != nil {
		return 0, err
	}

	total := decimal.Zero
	seen := make(map[int64]struct{}, len(ack.Fills))
	for _, f := range ack.Fills {
		if !f.Qty.IsPositive() || f.Price.IsNegative() {
			return 0, fmt.Errorf("%w: trade %d qty %s price %s", exception.ErrInvalidFill, f.TradeID, f.Qty, f.Price)
		}
		if f.TradeID > 0 {
			if _, ok := seen[f.TradeID]; ok {
				continue
			}
			seen[f.TradeID] = struct{}{}
		}
		total = total.Add(f.Qty)
	}
	if total.GreaterThan(order.Size) {
		return 0, fmt.Errorf("%w: ack fills %s, requested %s", exception.ErrOverfill, total, order.Size)
	}
	return transition, nil
}

// applyAck books the fills reported by a checked acknowledgment and moves
// the order to the acknowledged status.
func (b *Broker) applyAck(order *og.Order, ack schema.Ack, transition og.Transition) error {
	at := ack.TransactTime
	if at.IsZero() {
		at = b.now()
	}
	for _, f := range ack.Fills {
		if _, err := b.book(order, og.Fill{
			TradeID:         f.TradeID,
			Size:            f.Qty,
			Price:           f.Price,
			Commission:      f.Commission,
			CommissionAsset: f.CommissionAsset,
			At:              at,
		}); err != nil {
			return err
		}
	}
	if !ack.ExecutedQty.Equal(order.Executed.Size) {
		logs.Errorf("order %d ack executed %s, fills account for %s", ack.OrderID, ack.ExecutedQty, order.Executed.Size)
	}

	if transition == og.TransitionReject {
		return order.Reject(string(ack.Status), at)
	}
	return order.Apply(transition, at)
}

func (b *Broker) rejectLocal(order *og.Order, reason string) og.Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rejectLocked(order, reason)
}

func (b *Broker) rejectLocked(order *og.Order, reason string) og.Order {
	if err := order.Reject(reason, b.now()); err != nil {
		logs.Errorf("reject order ref %d failed, err: %+v", order.Ref, err)
	}
	b.notify(order)
	return order.Clone()
}

// releaseInflight drops stashed events once no submission can claim them.
func (b *Broker) releaseInflight() {
	b.inflight--
	if b.inflight > 0 {
		return
	}
	b.inflight = 0
	clear(b.early)
}

// stash keeps an event for an id that may belong to a submission still
// waiting for its ack.
func (b *Broker) stash(ev schema.Event) bool {
	if b.inflight == 0 {
		return false
	}
	events, ok := b.early[ev.OrderID]
	if !ok && len(b.early) >= _maxStashedIDs {
		return false
	}
	if len(events) >= _maxStashedPerOrder {
		return false
	}
	b.early[ev.OrderID] = append(events, ev)
	return true
}

func (b *Broker) replayEarly(id int64) {
	events := b.early[id]
	delete(b.early, id)
	for _, ev := range events {
		outcome, err := b.reconcileLocked(ev)
		b.metrics.ObserveEvent(ev.Type, outcome)
		if err != nil {
			logs.Errorf("replay early event of order %d failed, err: %+v", id, err)
		}
	}
}

// Cancel asks the exchange to cancel an order. The outcome arrives later
// through the user data stream.
func (b *Broker) Cancel(ctx context.Context, order og.Order) error {
	if b.session == nil {
		return exception.ErrOrderNilSession
	}
	if order.ID == 0 {
		return exception.ErrOrderMissingID
	}

	b.mu.Lock()
	_, working := b.orders.Lookup(order.ID)
	b.mu.Unlock()
	if !working {
		logs.Infof("cancel skipped, order %d is not working", order.ID)
		return nil
	}

	if err := b.session.CancelOrder(ctx, order.Symbol, order.ID); err != nil {
		if errors.Is(err, exception.ErrConnectivity) {
			b.metrics.IncConnectivity()
		}
		return err
	}
	return nil
}
