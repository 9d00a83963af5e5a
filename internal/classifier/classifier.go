// Package classifier decides whether a failed attempt may be retried on
// another gateway. The decision is a pure function of the normalized error
// code; there is no hidden state.
package classifier

import "github.com/yourorg/gateway-fallback/internal/gateway"

// terminal lists the business/customer-side codes. Retrying these elsewhere
// would not change the outcome and could create duplicate holds.
var terminal = map[gateway.ErrorCode]bool{
	gateway.ErrInsufficientFunds: true,
	gateway.ErrCardDeclined:      true,
	gateway.ErrInvalidCard:       true,
	gateway.ErrExpiredCard:       true,
	gateway.ErrSuspectedFraud:    true,
	gateway.ErrInvalidDocument:   true,
	gateway.ErrInvalidRequest:    true,
	gateway.ErrUnsupportedMethod: true,
	gateway.ErrNoGateway:         true,
}

// Retryable reports whether the error code is safe to retry on the same or
// another provider. Unrecognized codes are retryable: the engine fails open
// toward giving the customer another chance rather than silently giving up
// on an unfamiliar error.
func Retryable(code gateway.ErrorCode) bool {
	return !terminal[code]
}
