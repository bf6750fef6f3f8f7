package risk

import (
	"sync"
	"time"

	"broker/internal/schema"

	"github.com/shopspring/decimal"
)

// Config defines simple pre-trade limits. Zero values disable a limit.
type Config struct {
	Version          uint16          `json:"version"`
	KillSwitch       bool            `json:"killSwitch"`
	MaxOrderQty      decimal.Decimal `json:"maxOrderQty"`
	MaxOrderNotional decimal.Decimal `json:"maxOrderNotional"`
	MaxPosition      decimal.Decimal `json:"maxPosition"`
	OrderRateLimit   int             `json:"orderRateLimit"`
	OrderRateWindow  time.Duration   `json:"orderRateWindow"`
	EnforceFilters   bool            `json:"enforceFilters"`
}

// Reason is a coarse reason code for risk decisions.
type Reason uint16

const (
	ReasonNone Reason = iota
	ReasonKillSwitch
	ReasonRateLimit
	ReasonMaxQty
	ReasonMaxNotional
	ReasonPositionLimit
	ReasonMinQty
	ReasonMinNotional
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonKillSwitch:
		return "kill switch"
	case ReasonRateLimit:
		return "rate limit"
	case ReasonMaxQty:
		return "max order qty"
	case ReasonMaxNotional:
		return "max order notional"
	case ReasonPositionLimit:
		return "position limit"
	case ReasonMinQty:
		return "below exchange min qty"
	case ReasonMinNotional:
		return "below exchange min notional"
	default:
		return "unknown"
	}
}

// Intent is the order under evaluation.
type Intent struct {
	Symbol string
	Side   schema.OrderSide
	Type   schema.OrderType
	Size   decimal.Decimal
	Price  decimal.Decimal
}

// StateView provides the current position snapshot.
type StateView struct {
	Position       decimal.Decimal
	ReferencePrice decimal.Decimal
	Filters        schema.Filters
	Now            time.Time
}

// Decision is the outcome of an evaluation.
type Decision struct {
	Allowed  bool
	Reason   Reason
	Notional decimal.Decimal
}

// Engine evaluates risk decisions. It is safe for concurrent use.
type Engine struct {
	mu              sync.Mutex
	cfg             Config
	rateWindowStart time.Time
	rateCount       int
}

// NewEngine creates a risk engine with static limits.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Config returns the active limits.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Update swaps the limits when the version changed and reports whether it did.
func (e *Engine) Update(cfg Config) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cfg.Version == e.cfg.Version {
		return false
	}
	e.cfg = cfg
	e.rateWindowStart = time.Time{}
	e.rateCount = 0
	return true
}

// Evaluate applies simple checks to an order intent.
func (e *Engine) Evaluate(intent Intent, state StateView) Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := state.Now
	if now.IsZero() {
		now = time.Now()
	}

	price := intent.Price
	if !price.IsPositive() {
		price = state.ReferencePrice
	}
	decision := Decision{
		Allowed:  true,
		Notional: intent.Size.Mul(price),
	}
	deny := func(reason Reason) Decision {
		decision.Allowed = false
		decision.Reason = reason
		return decision
	}

	if e.cfg.KillSwitch {
		return deny(ReasonKillSwitch)
	}

	if e.cfg.OrderRateLimit > 0 && e.cfg.OrderRateWindow > 0 {
		if e.rateWindowStart.IsZero() || now.Sub(e.rateWindowStart) >= e.cfg.OrderRateWindow {
			e.rateWindowStart = now
			e.rateCount = 0
		}
		e.rateCount++
		if e.rateCount > e.cfg.OrderRateLimit {
			return deny(ReasonRateLimit)
		}
	}

	if e.cfg.MaxOrderQty.IsPositive() && intent.Size.GreaterThan(e.cfg.MaxOrderQty) {
		return deny(ReasonMaxQty)
	}

	if e.cfg.MaxOrderNotional.IsPositive() && decision.Notional.GreaterThan(e.cfg.MaxOrderNotional) {
		return deny(ReasonMaxNotional)
	}

	next := state.Position.Add(intent.Side.Sign().Mul(intent.Size))
	if e.cfg.MaxPosition.IsPositive() && next.Abs().GreaterThan(e.cfg.MaxPosition) {
		return deny(ReasonPositionLimit)
	}

	if e.cfg.EnforceFilters {
		f := state.Filters
		if f.MinQty.IsPositive() && intent.Size.LessThan(f.MinQty) {
			return deny(ReasonMinQty)
		}
		// Market orders without a reference price cannot be checked.
		if f.MinNotional.IsPositive() && price.IsPositive() && decision.Notional.LessThan(f.MinNotional) {
			return deny(ReasonMinNotional)
		}
	}

	return decision
}
