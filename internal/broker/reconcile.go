package broker

import (
	"fmt"

	"broker/internal/obs"
	"broker/internal/og"
	"broker/internal/schema"
	"broker/pkg/exception"

	"github.com/yanun0323/logs"
)

// HandleEvent applies one user data stream event. Events must be handed in
// arrival order from a single goroutine.
//
// Only error events produce an error the caller should treat as fatal;
// events for untracked symbols or unknown orders are dropped.
func (b *Broker) HandleEvent(ev schema.Event) error {
	switch ev.Type {
	case schema.EventError:
		b.metrics.IncConnectivity()
		b.metrics.ObserveEvent(ev.Type, obs.EventFailed)
		return fmt.Errorf("%w: %s", exception.ErrConnectivity, ev.Message)
	case schema.EventExecutionReport:
	default:
		b.metrics.ObserveEvent(ev.Type, obs.EventIgnored)
		return nil
	}

	if !b.instruments.Tracks(ev.Symbol) {
		b.metrics.ObserveEvent(ev.Type, obs.EventIgnored)
		return nil
	}

	b.mu.Lock()
	outcome, err := b.reconcileLocked(ev)
	b.mu.Unlock()

	b.metrics.ObserveEvent(ev.Type, outcome)
	if !ev.TransactTime.IsZero() {
		b.metrics.ObserveEventLatency(b.now().Sub(ev.TransactTime))
	}
	if err != nil {
		logs.Errorf("reconcile order %d (%s) status %s failed, err: %+v", ev.OrderID, ev.Symbol, ev.Status, err)
	}
	return err
}

func (b *Broker) reconcileLocked(ev schema.Event) (obs.EventOutcome, error) {
	order, ok := b.orders.Lookup(ev.OrderID)
	if !ok {
		if b.stash(ev) {
			return obs.EventStashed, nil
		}
		return obs.EventUnresolved, nil
	}

	transition, err := og.TransitionFor(ev.Status)
	if err != nil {
		return obs.EventFailed, err
	}

	at := ev.TransactTime
	if at.IsZero() {
		at = b.now()
	}

	changed := false
	if ev.HasFill() {
		applied, err := b.book(order, og.Fill{
			TradeID:         ev.TradeID,
			Size:            ev.LastFilledQty,
			Price:           ev.LastFilledPrice,
			Commission:      ev.Commission,
			CommissionAsset: ev.CommissionAsset,
			At:              at,
		})
		if err != nil {
			return obs.EventFailed, err
		}
		changed = applied
	}

	prev := order.Status
	if transition == og.TransitionReject {
		err = order.Reject(ev.Message, at)
	} else {
		err = order.Apply(transition, at)
	}
	if err != nil {
		return obs.EventFailed, err
	}
	changed = changed || order.Status != prev

	b.orders.RemoveIfDone(order)
	if !changed {
		return obs.EventIgnored, nil
	}
	b.notify(order)
	return obs.EventApplied, nil
}
