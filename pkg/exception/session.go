package exception

import "github.com/yanun0323/errors"

// Session errors
var (
	// ErrConnectionLost is surfaced when the reconnect budget is exhausted
	// or the session is torn down for good.
	ErrConnectionLost = errors.New("session: connection lost")

	// ErrIdentityConflict is fatal: the gateway refused the client id
	// because another live session already holds it.
	ErrIdentityConflict = errors.New("session: client id already in use")

	// ErrSessionUnavailable rejects work submitted while the session is
	// down and offline queueing is not enabled.
	ErrSessionUnavailable = errors.New("session: gateway unavailable")

	// ErrSessionClosed is returned by operations on a closed client.
	ErrSessionClosed = errors.New("session: closed")

	// ErrWriteBacklog rejects a frame when the live outbound queue is full
	// and the overflow policy refuses new frames.
	ErrWriteBacklog = errors.New("session: write queue full")

	ErrHandshake = errors.New("session: handshake failed")
)
