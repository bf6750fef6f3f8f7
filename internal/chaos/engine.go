package chaos

import (
	"fmt"
	"math/rand"
	"time"

	"broker/internal/schema"
)

// Config controls fault injection on the push channel.
type Config struct {
	Seed          int64   `json:"seed"`
	DropRate      float64 `json:"dropRate"`
	DuplicateRate float64 `json:"duplicateRate"`
	ReorderWindow int     `json:"reorderWindow"`
}

// Engine drops, duplicates and reorders push channel events.
type Engine struct {
	cfg     Config
	rng     *rand.Rand
	pending []schema.Event

	dropped    int
	duplicated int
}

// NewEngine creates a chaos engine with validation.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.ReorderWindow <= 0 {
		cfg.ReorderWindow = 1
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UTC().UnixNano()
	}
	return &Engine{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	if c.DropRate < 0 || c.DropRate > 1 {
		return fmt.Errorf("dropRate must be between 0 and 1")
	}
	if c.DuplicateRate < 0 || c.DuplicateRate > 1 {
		return fmt.Errorf("duplicateRate must be between 0 and 1")
	}
	if c.ReorderWindow <= 0 {
		return fmt.Errorf("reorderWindow must be >= 1")
	}
	return nil
}

// Lossless reports whether every event is eventually delivered in order.
func (c Config) Lossless() bool {
	return c.DropRate == 0 && c.ReorderWindow <= 1
}

// Process applies chaos to a single event and returns the events to deliver.
// A nil engine passes events through.
func (e *Engine) Process(ev schema.Event) []schema.Event {
	if e == nil {
		return []schema.Event{ev}
	}
	if e.shouldDrop() {
		e.dropped++
		return nil
	}
	if e.cfg.ReorderWindow <= 1 {
		return e.applyDuplicate(ev)
	}
	e.pending = append(e.pending, ev)
	if len(e.pending) < e.cfg.ReorderWindow {
		return nil
	}
	return e.applyDuplicate(e.take())
}

// Flush returns any buffered events after processing completes.
func (e *Engine) Flush() []schema.Event {
	if e == nil || len(e.pending) == 0 {
		return nil
	}
	out := make([]schema.Event, 0, len(e.pending))
	for len(e.pending) > 0 {
		out = append(out, e.applyDuplicate(e.take())...)
	}
	return out
}

// Stats returns the number of dropped and duplicated events so far.
func (e *Engine) Stats() (dropped, duplicated int) {
	if e == nil {
		return 0, 0
	}
	return e.dropped, e.duplicated
}

func (e *Engine) take() schema.Event {
	idx := e.rng.Intn(len(e.pending))
	ev := e.pending[idx]
	e.pending = append(e.pending[:idx], e.pending[idx+1:]...)
	return ev
}

func (e *Engine) shouldDrop() bool {
	return e.cfg.DropRate > 0 && e.rng.Float64() < e.cfg.DropRate
}

func (e *Engine) applyDuplicate(ev schema.Event) []schema.Event {
	out := []schema.Event{ev}
	if e.cfg.DuplicateRate > 0 && e.rng.Float64() < e.cfg.DuplicateRate {
		e.duplicated++
		out = append(out, ev)
	}
	return out
}
