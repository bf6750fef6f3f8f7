package broker

import (
	"context"
	"sync"
	"time"

	"broker/internal/notify"
	"broker/internal/obs"
	"broker/internal/og"
	"broker/internal/risk"
	"broker/internal/schema"
	"broker/internal/state"
	"broker/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const (
	_maxStashedIDs      = 1024
	_maxStashedPerOrder = 64
)

// Session is the exchange collaborator the broker trades through.
type Session interface {
	SubmitOrder(ctx context.Context, req schema.OrderRequest) (schema.Ack, error)
	CancelOrder(ctx context.Context, symbol string, orderID int64) error
	Balance(ctx context.Context, asset string) (decimal.Decimal, error)
}

// Broker keeps the local order and position model consistent with the
// exchange acks and the user data stream.
//
// All registry, ledger and order mutation happens under mu. mu is never held
// across a network round trip.
type Broker struct {
	mu sync.Mutex

	session     Session
	instruments *schema.Registry
	orders      *og.Registry
	ledger      *state.Ledger
	queue       *notify.Queue
	risk        *risk.Engine
	metrics     *obs.Metrics
	refs        *obs.RefGenerator
	now         func() time.Time

	inflight int
	early    map[int64][]schema.Event
}

// Option customizes a Broker.
type Option func(*Broker)

// WithRisk enables pre-trade checks.
func WithRisk(engine *risk.Engine) Option {
	return func(b *Broker) { b.risk = engine }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *obs.Metrics) Option {
	return func(b *Broker) { b.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Broker) { b.now = now }
}

// WithRefGenerator overrides the order reference generator.
func WithRefGenerator(g *obs.RefGenerator) Option {
	return func(b *Broker) { b.refs = g }
}

// New creates a broker over an exchange session.
func New(session Session, instruments *schema.Registry, ledger *state.Ledger, queue *notify.Queue, opts ...Option) *Broker {
	b := &Broker{
		session:     session,
		instruments: instruments,
		orders:      og.NewRegistry(),
		ledger:      ledger,
		queue:       queue,
		refs:        obs.NewRefGenerator(0),
		now:         time.Now,
		early:       make(map[int64][]schema.Event),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.instruments == nil {
		b.instruments = schema.NewRegistry()
	}
	if b.ledger == nil {
		b.ledger = state.NewLedger(decimal.Zero)
	}
	if b.queue == nil {
		b.queue = notify.NewQueue(64)
	}
	return b
}

// Notification pops the oldest pending order update. It never blocks.
func (b *Broker) Notification() (og.Order, bool) {
	return b.queue.Pop()
}

// Position returns the position snapshot of a symbol.
func (b *Broker) Position(symbol string) state.Position {
	return b.ledger.Position(symbol)
}

// Cash returns the cash reconstructed from fills.
func (b *Broker) Cash() decimal.Decimal {
	return b.ledger.Cash()
}

// Value returns cash plus the marked value of open positions.
func (b *Broker) Value() decimal.Decimal {
	return b.ledger.Value()
}

// Mark records the latest market price of a symbol.
func (b *Broker) Mark(symbol string, price decimal.Decimal) {
	b.ledger.Mark(symbol, price)
}

// Ledger exposes the underlying ledger for snapshots.
func (b *Broker) Ledger() *state.Ledger {
	return b.ledger
}

// OpenOrders returns copies of the orders still working on the exchange.
func (b *Broker) OpenOrders() []og.Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.orders.Snapshot()
}

// AssetBalance returns the free exchange balance of an asset.
func (b *Broker) AssetBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	if b.session == nil {
		return decimal.Zero, exception.ErrOrderNilSession
	}
	return b.session.Balance(ctx, asset)
}

// SetCash sets the trading cash. The amount may not exceed the exchange
// balance of the quote asset.
func (b *Broker) SetCash(ctx context.Context, quoteAsset string, cash decimal.Decimal) error {
	balance, err := b.AssetBalance(ctx, quoteAsset)
	if err != nil {
		return err
	}
	if cash.GreaterThan(balance) {
		return errors.Wrap(exception.ErrInsufficientBalance, "set cash "+cash.String()).With("balance", balance.String())
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ledger.SetCash(cash)
	return nil
}

// AddCash adds to the trading cash while staying within the exchange balance.
func (b *Broker) AddCash(ctx context.Context, quoteAsset string, cash decimal.Decimal) error {
	balance, err := b.AssetBalance(ctx, quoteAsset)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	next := b.ledger.Cash().Add(cash)
	if next.GreaterThan(balance) {
		return errors.Wrap(exception.ErrInsufficientBalance, "add cash "+cash.String()).With("balance", balance.String())
	}
	b.ledger.AddCash(cash)
	return nil
}

// FormatPrice rounds a price down to the symbol's tick size.
func (b *Broker) FormatPrice(symbol string, price decimal.Decimal) decimal.Decimal {
	inst, ok := b.instruments.Instrument(symbol)
	if !ok {
		return price
	}
	return inst.Filters.RoundPrice(price)
}

// FormatSize rounds a size down to the symbol's lot step.
func (b *Broker) FormatSize(symbol string, size decimal.Decimal) decimal.Decimal {
	inst, ok := b.instruments.Instrument(symbol)
	if !ok {
		return size
	}
	return inst.Filters.RoundSize(size)
}

func (b *Broker) notify(o *og.Order) {
	queued := b.queue.Push(o.Clone())
	b.metrics.IncNotification(queued)
	if !queued {
		logs.Errorf("notification dropped, order %d (%s) status %s", o.ID, o.Symbol, o.Status)
	}
}

// book applies a fill to the order and, when it is new, to the ledger.
// It reports whether the fill was applied.
func (b *Broker) book(o *og.Order, fill og.Fill) (bool, error) {
	fill.QuoteCommission = b.quoteCommission(o.Symbol, fill)
	applied, err := o.Execute(fill)
	if err != nil || !applied {
		return false, err
	}

	b.ledger.Apply(state.Fill{
		Symbol:     o.Symbol,
		Size:       o.Side.Sign().Mul(fill.Size),
		Price:      fill.Price,
		Commission: fill.QuoteCommission,
	})
	return true, nil
}

// quoteCommission expresses a fill commission in the quote asset.
// Commission in a third asset is not booked against cash.
func (b *Broker) quoteCommission(symbol string, fill og.Fill) decimal.Decimal {
	if fill.Commission.IsZero() {
		return decimal.Zero
	}
	inst, ok := b.instruments.Instrument(symbol)
	if !ok || fill.CommissionAsset == "" || fill.CommissionAsset == inst.QuoteAsset {
		return fill.Commission
	}
	if fill.CommissionAsset == inst.BaseAsset {
		return fill.Commission.Mul(fill.Price)
	}
	logs.Infof("commission %s %s on %s is not booked against cash", fill.Commission, fill.CommissionAsset, symbol)
	return decimal.Zero
}
