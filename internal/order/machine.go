package order

import (
	"sort"

	"github.com/shopspring/decimal"

	"tradegw/internal/schema"
	"tradegw/pkg/exception"
)

// Machine folds gateway events into order states. It is not synchronized;
// the manager serializes access, and journal replay uses it single-threaded.
type Machine struct {
	orders map[uint64]*Order
}

func NewMachine() *Machine {
	return &Machine{orders: make(map[uint64]*Order)}
}

// Get returns a copy of the order.
func (m *Machine) Get(id uint64) (Order, bool) {
	o, ok := m.orders[id]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// Open returns copies of every non-terminal order, sorted by id.
func (m *Machine) Open() []Order {
	out := make([]Order, 0, len(m.orders))
	for _, o := range m.orders {
		if !o.State.Terminal() {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OpenCount reports how many orders are still working.
func (m *Machine) OpenCount() int {
	n := 0
	for _, o := range m.orders {
		if !o.State.Terminal() {
			n++
		}
	}
	return n
}

func (m *Machine) Len() int {
	return len(m.orders)
}

// Create registers a new order in Created state.
func (m *Machine) Create(id uint64, spec schema.OrderSpec, now int64) (*Order, error) {
	if id == 0 {
		return nil, exception.ErrOrderInvalidRequest
	}
	if _, ok := m.orders[id]; ok {
		return nil, exception.ErrDuplicateOrder
	}
	o := &Order{
		ID:          id,
		Symbol:      spec.Symbol,
		Side:        spec.Side,
		Type:        spec.Type,
		TimeInForce: spec.TimeInForce,
		Qty:         spec.Qty,
		LimitPrice:  spec.LimitPrice,
		State:       StateCreated,
		LeavesQty:   spec.Qty,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.orders[id] = o
	return o, nil
}

// MarkSubmitted moves a freshly created order to Submitted once its
// PlaceOrder left for the write path.
func (m *Machine) MarkSubmitted(id uint64, now int64) (*Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, exception.ErrUnknownOrder
	}
	if o.State != StateCreated {
		return o, exception.ErrInvalidTransition
	}
	o.State = StateSubmitted
	o.UpdatedAt = now
	return o, nil
}

// Remove forgets an order. Used to roll back a Create whose dispatch failed.
func (m *Machine) Remove(id uint64) {
	delete(m.orders, id)
}

// Restore seeds the machine with orders recovered from the journal.
func (m *Machine) Restore(orders []Order) {
	for i := range orders {
		o := orders[i]
		m.orders[o.ID] = &o
	}
}

// ApplyAck applies a gateway acknowledgment.
func (m *Machine) ApplyAck(ev schema.OrderAck) (*Order, error) {
	o, ok := m.orders[ev.OrderID]
	if !ok {
		return nil, exception.ErrUnknownOrder
	}
	if ev.Seq <= o.LastSeq {
		return o, exception.ErrDuplicateEvent
	}
	if !canMove(o.State, StateAcknowledged) {
		return o, exception.ErrInvalidTransition
	}
	o.State = StateAcknowledged
	o.LastSeq = ev.Seq
	o.UpdatedAt = ev.TsNano
	return o, nil
}

// ApplyStatus applies a gateway working-state report. FilledQty on the wire
// is cumulative and may never shrink or exceed the order quantity.
func (m *Machine) ApplyStatus(ev schema.OrderStatus) (*Order, error) {
	o, ok := m.orders[ev.OrderID]
	if !ok {
		return nil, exception.ErrUnknownOrder
	}
	if ev.Seq <= o.LastSeq {
		return o, exception.ErrDuplicateEvent
	}
	to := stateFromWire(ev.Status)
	if to == StateUnknown {
		return o, exception.ErrInvalidTransition
	}
	if !canMove(o.State, to) {
		return o, exception.ErrInvalidTransition
	}
	if ev.FilledQty < o.FilledQty || ev.FilledQty > o.Qty || ev.LeavesQty < 0 {
		return o, exception.ErrNonMonotonicFill
	}
	o.State = to
	o.FilledQty = ev.FilledQty
	o.LeavesQty = ev.LeavesQty
	if ev.AvgPrice > 0 {
		o.AvgPrice = ev.AvgPrice
	}
	o.LastSeq = ev.Seq
	o.UpdatedAt = ev.TsNano
	return o, nil
}

// ApplyExecution applies one fill. The fill must fit in the remaining
// quantity; the last fill moves the order to Filled.
func (m *Machine) ApplyExecution(ev schema.Execution) (*Order, error) {
	o, ok := m.orders[ev.OrderID]
	if !ok {
		return nil, exception.ErrUnknownOrder
	}
	if ev.Seq <= o.LastSeq {
		return o, exception.ErrDuplicateEvent
	}
	if o.State.Terminal() {
		return o, exception.ErrInvalidTransition
	}
	if ev.Qty <= 0 || ev.Qty > o.LeavesQty {
		return o, exception.ErrNonMonotonicFill
	}
	o.AvgPrice = blendAvg(o.AvgPrice, o.FilledQty, ev.Price, ev.Qty)
	o.FilledQty += ev.Qty
	o.LeavesQty -= ev.Qty
	if o.LeavesQty == 0 {
		o.State = StateFilled
	} else {
		o.State = StatePartFilled
	}
	o.LastSeq = ev.Seq
	o.UpdatedAt = ev.TsNano
	return o, nil
}

// ApplyReject applies a terminal gateway refusal.
func (m *Machine) ApplyReject(ev schema.OrderReject, now int64) (*Order, error) {
	o, ok := m.orders[ev.OrderID]
	if !ok {
		return nil, exception.ErrUnknownOrder
	}
	if ev.Seq <= o.LastSeq {
		return o, exception.ErrDuplicateEvent
	}
	if o.State.Terminal() {
		return o, exception.ErrInvalidTransition
	}
	o.State = StateRejected
	o.LastSeq = ev.Seq
	o.UpdatedAt = now
	return o, nil
}

// MergeOpen folds one reconcile report row. Rows behind the local view are
// ignored; unknown orders are adopted since the gateway still works them.
// The returned bool reports whether the local view changed.
func (m *Machine) MergeOpen(row schema.OpenOrder, now int64) (*Order, bool, error) {
	o, ok := m.orders[row.OrderID]
	if !ok {
		o = &Order{
			ID:          row.OrderID,
			Symbol:      row.Symbol.String(),
			Side:        row.Side,
			Type:        row.Type,
			TimeInForce: row.TimeInForce,
			Qty:         row.Qty,
			State:       stateFromWire(row.Status),
			FilledQty:   row.FilledQty,
			LeavesQty:   row.LeavesQty,
			AvgPrice:    row.AvgPrice,
			LastSeq:     row.Seq,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if o.State == StateUnknown {
			return nil, false, exception.ErrInvalidTransition
		}
		m.orders[o.ID] = o
		return o, true, nil
	}
	if row.Seq <= o.LastSeq {
		return o, false, nil
	}
	to := stateFromWire(row.Status)
	if to == StateUnknown {
		return o, false, exception.ErrInvalidTransition
	}
	if row.FilledQty < o.FilledQty {
		return o, false, exception.ErrNonMonotonicFill
	}
	if to != o.State && !canMove(o.State, to) {
		return o, false, exception.ErrInvalidTransition
	}
	o.State = to
	o.FilledQty = row.FilledQty
	o.LeavesQty = row.LeavesQty
	if row.AvgPrice > 0 {
		o.AvgPrice = row.AvgPrice
	}
	o.LastSeq = row.Seq
	o.UpdatedAt = now
	return o, true, nil
}

// blendAvg folds one fill into a volume-weighted average price. Scaled
// products overflow int64, so the blend runs on decimals.
func blendAvg(avg schema.Price, filled schema.Quantity, price schema.Price, qty schema.Quantity) schema.Price {
	newFilled := decimal.NewFromInt(int64(filled) + int64(qty))
	if newFilled.IsZero() {
		return 0
	}
	total := decimal.NewFromInt(int64(avg)).Mul(decimal.NewFromInt(int64(filled))).
		Add(decimal.NewFromInt(int64(price)).Mul(decimal.NewFromInt(int64(qty))))
	return schema.Price(total.Div(newFilled).IntPart())
}
