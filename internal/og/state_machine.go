package og

import (
	"fmt"

	"broker/internal/schema"
	"broker/pkg/exception"
)

// Status tracks the lifecycle of an order.
type Status uint8

const (
	StatusCreated Status = iota
	StatusSubmitted
	StatusAccepted
	StatusPartial
	StatusCompleted
	StatusCanceled
	StatusExpired
	StatusMargin
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "Created"
	case StatusSubmitted:
		return "Submitted"
	case StatusAccepted:
		return "Accepted"
	case StatusPartial:
		return "Partial"
	case StatusCompleted:
		return "Completed"
	case StatusCanceled:
		return "Canceled"
	case StatusExpired:
		return "Expired"
	case StatusMargin:
		return "Margin"
	case StatusRejected:
		return "Rejected"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCanceled, StatusExpired, StatusRejected:
		return true
	default:
		return false
	}
}

// Alive reports whether the order can still receive fills from the exchange.
// Margin is not terminal but the order is no longer working.
func (s Status) Alive() bool {
	switch s {
	case StatusCreated, StatusSubmitted, StatusAccepted, StatusPartial:
		return true
	default:
		return false
	}
}

// Transition is a single lifecycle step.
type Transition uint8

const (
	TransitionSubmit Transition = iota + 1
	TransitionAccept
	TransitionPartial
	TransitionComplete
	TransitionCancel
	TransitionExpire
	TransitionMargin
	TransitionReject
	TransitionPendingCancel
)

func (t Transition) String() string {
	switch t {
	case TransitionSubmit:
		return "submit"
	case TransitionAccept:
		return "accept"
	case TransitionPartial:
		return "partial"
	case TransitionComplete:
		return "complete"
	case TransitionCancel:
		return "cancel"
	case TransitionExpire:
		return "expire"
	case TransitionMargin:
		return "margin"
	case TransitionReject:
		return "reject"
	case TransitionPendingCancel:
		return "pending cancel"
	default:
		return "unknown"
	}
}

// exchangeTransitions covers every spot order status. Spot orders never
// report a margin call, so TransitionMargin has no code here; it is applied
// directly by a venue that can liquidate.
var exchangeTransitions = map[schema.ExchangeStatus]Transition{
	schema.ExchangeStatusNew:             TransitionAccept,
	schema.ExchangeStatusPartiallyFilled: TransitionPartial,
	schema.ExchangeStatusFilled:          TransitionComplete,
	schema.ExchangeStatusCanceled:        TransitionCancel,
	schema.ExchangeStatusPendingCancel:   TransitionPendingCancel,
	schema.ExchangeStatusRejected:        TransitionReject,
	schema.ExchangeStatusExpired:         TransitionExpire,
	schema.ExchangeStatusExpiredInMatch:  TransitionExpire,
}

// TransitionFor maps an exchange status code to exactly one local transition.
func TransitionFor(status schema.ExchangeStatus) (Transition, error) {
	t, ok := exchangeTransitions[status]
	if !ok {
		return 0, fmt.Errorf("%w: %q", exception.ErrUnknownExchangeStatus, status)
	}
	return t, nil
}

// Next returns the status reached by applying t to current.
func Next(current Status, t Transition) (Status, error) {
	if current.Terminal() {
		return current, exception.ErrOrderLifecycle
	}

	switch t {
	case TransitionSubmit:
		if current == StatusCreated {
			return StatusSubmitted, nil
		}
	case TransitionAccept:
		switch current {
		case StatusSubmitted, StatusAccepted, StatusPartial:
			return StatusAccepted, nil
		}
	case TransitionPartial:
		switch current {
		case StatusSubmitted, StatusAccepted, StatusPartial:
			return StatusPartial, nil
		}
	case TransitionComplete:
		switch current {
		case StatusSubmitted, StatusAccepted, StatusPartial:
			return StatusCompleted, nil
		}
	case TransitionPendingCancel:
		switch current {
		case StatusSubmitted, StatusAccepted:
			return StatusAccepted, nil
		case StatusPartial:
			return StatusPartial, nil
		}
	case TransitionCancel:
		return StatusCanceled, nil
	case TransitionExpire:
		return StatusExpired, nil
	case TransitionMargin:
		return StatusMargin, nil
	case TransitionReject:
		return StatusRejected, nil
	}

	return current, exception.ErrInvalidTransition
}
