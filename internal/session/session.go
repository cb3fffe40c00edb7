package session

import (
	"sync/atomic"
	"time"
)

// State describes where a session is in its lifecycle. Within one epoch the
// state only moves forward; dropping to StateDisconnected closes the epoch.
type State uint32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticated
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// Session is the live view of one gateway connection. A Manager owns exactly
// one Session; reconnects advance the epoch while subscriptions and orders
// survive outside it.
type Session struct {
	clientID int32
	endpoint string

	state         atomic.Uint32
	epoch         atomic.Uint64
	lastHeartbeat atomic.Int64
	nextOrderID   atomic.Uint64
}

func newSession(endpoint string, clientID int32) *Session {
	return &Session{clientID: clientID, endpoint: endpoint}
}

func (s *Session) ClientID() int32 {
	return s.clientID
}

func (s *Session) Endpoint() string {
	return s.endpoint
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// Epoch counts physical connections. It is zero until the first handshake
// completes.
func (s *Session) Epoch() uint64 {
	return s.epoch.Load()
}

// LastHeartbeat is the receive time of the most recent inbound frame.
func (s *Session) LastHeartbeat() time.Time {
	return time.Unix(0, s.lastHeartbeat.Load())
}

// AllocOrderID hands out the next order id. Ids are seeded by the gateway
// and never reused within the session lifetime, reconnects included.
func (s *Session) AllocOrderID() uint64 {
	return s.nextOrderID.Add(1) - 1
}

func (s *Session) setState(state State) {
	s.state.Store(uint32(state))
}

func (s *Session) beginEpoch() uint64 {
	return s.epoch.Add(1)
}

func (s *Session) touchHeartbeat(now time.Time) {
	s.lastHeartbeat.Store(now.UnixNano())
}

// seedOrderIDs raises the allocator floor to the gateway-provided seed. The
// floor never moves down: ids already handed out stay unique even when a
// reconnected gateway reports a lower next id.
func (s *Session) seedOrderIDs(next uint64) {
	for {
		cur := s.nextOrderID.Load()
		if cur >= next {
			return
		}
		if s.nextOrderID.CompareAndSwap(cur, next) {
			return
		}
	}
}
