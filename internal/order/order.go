package order

import (
	"tradegw/internal/schema"
)

// State is the client-side order lifecycle state.
type State uint16

const (
	StateUnknown State = iota
	// StateCreated exists only inside Submit: the order becomes Submitted
	// before Submit returns or is dropped when dispatch fails.
	StateCreated
	StateSubmitted
	StateAcknowledged
	StatePartFilled
	StateFilled
	StateCancelled
	StateRejected
)

var stateNames = map[State]string{
	StateUnknown:      "unknown",
	StateCreated:      "created",
	StateSubmitted:    "submitted",
	StateAcknowledged: "acknowledged",
	StatePartFilled:   "part_filled",
	StateFilled:       "filled",
	StateCancelled:    "cancelled",
	StateRejected:     "rejected",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "invalid"
}

// Terminal reports whether no further transitions may leave s.
func (s State) Terminal() bool {
	switch s {
	case StateFilled, StateCancelled, StateRejected:
		return true
	default:
		return false
	}
}

// rank orders states for forward-only transitions. PartFilled re-enters
// itself as fills accumulate; skipping ranks forward is allowed since the
// gateway is authoritative and per-order seqs expose lost events.
func rank(s State) int {
	switch s {
	case StateCreated:
		return 1
	case StateSubmitted:
		return 2
	case StateAcknowledged:
		return 3
	case StatePartFilled:
		return 4
	case StateFilled, StateCancelled, StateRejected:
		return 5
	default:
		return 0
	}
}

func canMove(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StatePartFilled && from == StatePartFilled {
		return true
	}
	return rank(to) > rank(from)
}

// stateFromWire maps a gateway status code to the local lifecycle state.
func stateFromWire(code schema.OrderStatusCode) State {
	switch code {
	case schema.StatusSubmitted:
		return StateAcknowledged
	case schema.StatusPartFilled:
		return StatePartFilled
	case schema.StatusFilled:
		return StateFilled
	case schema.StatusCancelled:
		return StateCancelled
	case schema.StatusRejected:
		return StateRejected
	default:
		return StateUnknown
	}
}

// wireFromState is the reverse mapping, used when journaling local views.
func wireFromState(s State) schema.OrderStatusCode {
	switch s {
	case StateAcknowledged:
		return schema.StatusSubmitted
	case StatePartFilled:
		return schema.StatusPartFilled
	case StateFilled:
		return schema.StatusFilled
	case StateCancelled:
		return schema.StatusCancelled
	case StateRejected:
		return schema.StatusRejected
	default:
		return schema.StatusUnknown
	}
}

// Order is the client-side view of one order. Values are copies; the
// manager owns the mutable state.
type Order struct {
	ID          uint64
	Symbol      string
	Side        schema.OrderSide
	Type        schema.OrderType
	TimeInForce schema.TimeInForce
	Qty         schema.Quantity
	LimitPrice  schema.Price

	State     State
	FilledQty schema.Quantity
	LeavesQty schema.Quantity
	AvgPrice  schema.Price

	// LastSeq is the highest gateway event sequence applied. Events at or
	// below it are duplicates.
	LastSeq   uint64
	CreatedAt int64
	UpdatedAt int64
}

// Event is one applied lifecycle transition, delivered to the owning
// handle and registered listeners.
type Event struct {
	OrderID   uint64
	Seq       uint64
	State     State
	FilledQty schema.Quantity
	LeavesQty schema.Quantity
	AvgPrice  schema.Price

	// ExecQty and ExecPrice carry the fill delta when the transition came
	// from an execution report.
	ExecQty   schema.Quantity
	ExecPrice schema.Price
	ExecID    string

	// Reason is set on rejects.
	Reason string
	TsNano int64
}

func eventOf(o *Order, ts int64) Event {
	return Event{
		OrderID:   o.ID,
		Seq:       o.LastSeq,
		State:     o.State,
		FilledQty: o.FilledQty,
		LeavesQty: o.LeavesQty,
		AvgPrice:  o.AvgPrice,
		TsNano:    ts,
	}
}
