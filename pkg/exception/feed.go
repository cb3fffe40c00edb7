package exception

import "github.com/yanun0323/errors"

// Market data errors
var (
	// ErrOverrun marks ticks lost on one subscriber queue. Only the lagging
	// subscriber sees it; the stream itself keeps flowing.
	ErrOverrun = errors.New("feed: subscriber overrun")

	ErrFeedClosed          = errors.New("feed: mux closed")
	ErrInvalidSubscription = errors.New("feed: invalid subscription")
	ErrNilHandler          = errors.New("feed: nil handler")
)
