package schema

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// Filters holds the exchange trading rules for a symbol. Zero values disable a rule.
type Filters struct {
	TickSize    decimal.Decimal `json:"tickSize"`
	StepSize    decimal.Decimal `json:"stepSize"`
	MinQty      decimal.Decimal `json:"minQty"`
	MinNotional decimal.Decimal `json:"minNotional"`
}

// RoundPrice floors a price to the tick size.
func (f Filters) RoundPrice(price decimal.Decimal) decimal.Decimal {
	return floorToStep(price, f.TickSize)
}

// RoundSize floors a size to the lot step size.
func (f Filters) RoundSize(size decimal.Decimal) decimal.Decimal {
	return floorToStep(size, f.StepSize)
}

func floorToStep(v, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return v
	}
	return v.Div(step).Floor().Mul(step)
}

// Instrument describes a tradable spot symbol.
type Instrument struct {
	Symbol     string
	BaseAsset  string
	QuoteAsset string
	Filters    Filters
}

// Registry stores the set of tracked instruments.
type Registry struct {
	mu          sync.RWMutex
	instruments map[string]Instrument
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		instruments: make(map[string]Instrument),
	}
}

// Add registers a new instrument.
func (r *Registry) Add(inst Instrument) error {
	if inst.Symbol == "" {
		return fmt.Errorf("symbol name is empty")
	}
	if inst.BaseAsset == "" || inst.QuoteAsset == "" {
		return fmt.Errorf("assets are empty for symbol: %s", inst.Symbol)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.instruments[inst.Symbol]; ok {
		return fmt.Errorf("symbol already exists: %s", inst.Symbol)
	}
	r.instruments[inst.Symbol] = inst
	return nil
}

// SetFilters replaces the trading rules of a registered symbol.
func (r *Registry) SetFilters(symbol string, filters Filters) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instruments[symbol]
	if !ok {
		return fmt.Errorf("symbol not found: %s", symbol)
	}
	inst.Filters = filters
	r.instruments[symbol] = inst
	return nil
}

// Instrument returns the instrument by symbol.
func (r *Registry) Instrument(symbol string) (Instrument, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instruments[symbol]
	return inst, ok
}

// Tracks reports whether the symbol is part of the tracked set.
func (r *Registry) Tracks(symbol string) bool {
	_, ok := r.Instrument(symbol)
	return ok
}

// Symbols returns the tracked symbols in lexical order.
func (r *Registry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.instruments))
	for symbol := range r.instruments {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of tracked instruments.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instruments)
}
