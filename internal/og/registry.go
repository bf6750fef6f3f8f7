package og

import (
	"sync"

	"broker/pkg/exception"

	"github.com/tidwall/btree"
)

// Registry is the set of in-flight orders keyed by exchange order id.
// Only alive orders are stored; lookups return the live order, which callers
// must mutate under their own serialization.
type Registry struct {
	mu     sync.RWMutex
	orders *btree.BTreeG[*Order]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		orders: btree.NewBTreeG(func(a, b *Order) bool {
			return a.ID < b.ID
		}),
	}
}

// Upsert inserts or replaces an alive order.
func (r *Registry) Upsert(o *Order) error {
	if o == nil {
		return exception.ErrNilInstance
	}
	if o.ID == 0 {
		return exception.ErrOrderMissingID
	}
	if !o.Status.Alive() {
		return exception.ErrOrderNotAlive
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders.Set(o)
	return nil
}

// Lookup returns the order registered under id.
func (r *Registry) Lookup(id int64) (*Order, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.orders.Get(&Order{ID: id})
}

// Remove deletes and returns the order registered under id.
func (r *Registry) Remove(id int64) (*Order, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orders.Delete(&Order{ID: id})
}

// RemoveIfDone removes the order when it is no longer alive and reports whether it did.
func (r *Registry) RemoveIfDone(o *Order) bool {
	if o == nil || o.Status.Alive() {
		return false
	}
	_, ok := r.Remove(o.ID)
	return ok
}

// Snapshot returns copies of the registered orders ordered by id.
func (r *Registry) Snapshot() []Order {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Order, 0, r.orders.Len())
	r.orders.Scan(func(o *Order) bool {
		out = append(out, o.Clone())
		return true
	})
	return out
}

// Len returns the number of registered orders.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.orders.Len()
}
