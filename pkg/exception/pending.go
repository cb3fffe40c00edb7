package exception

import "github.com/yanun0323/errors"

// Request correlation errors
var (
	// ErrTimeout resolves a pending request whose deadline passed without
	// a gateway response.
	ErrTimeout = errors.New("pending: deadline exceeded")

	// ErrOverloaded rejects new requests while the pending table is at its
	// ceiling. The caller decides whether to shed or retry later.
	ErrOverloaded = errors.New("pending: table at capacity")

	// ErrUnexpectedResponse marks a resolved request whose response body is
	// not the type the request asked for.
	ErrUnexpectedResponse = errors.New("pending: unexpected response type")
)
