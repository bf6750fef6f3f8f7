package exception

import "github.com/yanun0323/errors"

// Order lifecycle errors
var (
	ErrOrderLifecycle        = errors.New("order: transition on terminal order")
	ErrInvalidTransition     = errors.New("order: invalid state transition")
	ErrUnknownExchangeStatus = errors.New("order: unknown exchange status")
	ErrOverfill              = errors.New("order: executed size exceeds requested size")
	ErrInvalidFill           = errors.New("order: invalid fill")
	ErrOrderNotAlive         = errors.New("order: not alive")
	ErrOrderMissingID        = errors.New("order: missing exchange id")
)

// Order request errors
var (
	ErrOrderInvalidSize     = errors.New("order: size must be > 0")
	ErrOrderMissingPrice    = errors.New("order: price required for limit orders")
	ErrOrderUnsupportedType = errors.New("order: unsupported type")
	ErrOrderUnsupportedSide = errors.New("order: unsupported side")
	ErrOrderUntrackedSymbol = errors.New("order: symbol is not tracked")
	ErrOrderEmptyResponseID = errors.New("order: empty response order id")
	ErrInsufficientBalance  = errors.New("order: cash exceeds exchange balance")
	ErrOrderRiskDenied      = errors.New("order: denied by risk engine")
	ErrOrderDecodeResponse  = errors.New("order: decode response body")
	ErrOrderNilSession      = errors.New("order: nil exchange session")
)
