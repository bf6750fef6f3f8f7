package obs

import (
	"sync/atomic"
	"time"
)

// RefGenerator hands out process-unique order references.
type RefGenerator struct {
	next atomic.Uint64
}

// NewRefGenerator returns a generator seeded with the given value.
// A zero seed starts from the current wall clock.
func NewRefGenerator(seed uint64) *RefGenerator {
	if seed == 0 {
		seed = uint64(time.Now().UTC().UnixNano())
	}
	g := &RefGenerator{}
	g.next.Store(seed)
	return g
}

// Next returns the next reference.
func (g *RefGenerator) Next() uint64 {
	if g == nil {
		return 0
	}
	return g.next.Add(1)
}
