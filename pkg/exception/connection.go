package exception

import "github.com/yanun0323/errors"

// Exchange connectivity errors
var (
	ErrConnectivity      = errors.New("exchange: connectivity failure")
	ErrExchangeRejected  = errors.New("exchange: request rejected")
	ErrStreamClosed      = errors.New("exchange: user stream closed")
	ErrEmptyListenKey    = errors.New("exchange: empty listen key")
	ErrMissingCredential = errors.New("exchange: missing api credential")
)
