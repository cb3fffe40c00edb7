package exception

import "github.com/yanun0323/errors"

// Order errors
var (
	// ErrInvalidTransition rejects an operation the order state machine
	// does not allow, such as cancelling a terminal order.
	ErrInvalidTransition = errors.New("order: invalid state transition")

	ErrUnknownOrder        = errors.New("order: unknown order id")
	ErrDuplicateOrder      = errors.New("order: duplicate order id")
	ErrDuplicateEvent      = errors.New("order: duplicate event sequence")
	ErrNonMonotonicFill    = errors.New("order: fill would shrink or overrun quantity")
	ErrOrderInvalidRequest = errors.New("order: invalid request")
	ErrOrderQueueFull      = errors.New("order: offline queue full")
)
