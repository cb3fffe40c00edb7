package feedsim

import (
	"sync"
	"time"

	"tradegw/internal/codec"
	"tradegw/internal/schema"
)

// simOrder is the gateway-side view of one order. Seq is the per-order
// event sequence; every emitted ack, fill, status, or reject consumes one.
type simOrder struct {
	id          uint64
	symbol      string
	side        schema.OrderSide
	typ         schema.OrderType
	timeInForce schema.TimeInForce
	qty         schema.Quantity
	limit       schema.Price

	status    schema.OrderStatusCode
	filledQty schema.Quantity
	leavesQty schema.Quantity
	avgPrice  schema.Price
	seq       uint64
}

func (o *simOrder) nextSeq() uint64 {
	o.seq++
	return o.seq
}

func (o *simOrder) working() bool {
	switch o.status {
	case schema.StatusSubmitted, schema.StatusPartFilled:
		return true
	default:
		return false
	}
}

// applyFill folds one execution into the cumulative view.
func (o *simOrder) applyFill(qty schema.Quantity, px schema.Price) {
	prevNotional := float64(o.avgPrice)*float64(o.filledQty)/scaleUnit + float64(px)*float64(qty)/scaleUnit
	o.filledQty += qty
	o.leavesQty -= qty
	if o.leavesQty < 0 {
		o.leavesQty = 0
	}
	if o.filledQty > 0 {
		o.avgPrice = schema.Price(prevNotional * scaleUnit / float64(o.filledQty))
	}
	if o.leavesQty == 0 {
		o.status = schema.StatusFilled
	} else {
		o.status = schema.StatusPartFilled
	}
}

// clientBook is one client's order memory. It outlives connections so
// reconnecting clients see consistent ids and open-order reports.
type clientBook struct {
	mu     sync.Mutex
	nextID uint64
	orders map[uint64]*simOrder
}

func newClientBook(nextID uint64) *clientBook {
	return &clientBook{
		nextID: nextID,
		orders: make(map[uint64]*simOrder),
	}
}

// seed returns the order id floor for a new session.
func (b *clientBook) seed() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nextID
}

// admit registers a new order. It reports false for a duplicate id, which
// the gateway ignores: the first submission already drives events.
func (b *clientBook) admit(pl schema.PlaceOrder) (*simOrder, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, dup := b.orders[pl.OrderID]; dup {
		return nil, false
	}
	o := &simOrder{
		id:          pl.OrderID,
		symbol:      pl.Symbol.String(),
		side:        pl.Side,
		typ:         pl.Type,
		timeInForce: pl.TimeInForce,
		qty:         pl.Qty,
		limit:       pl.LimitPrice,
		status:      schema.StatusSubmitted,
		leavesQty:   pl.Qty,
	}
	b.orders[pl.OrderID] = o
	if pl.OrderID >= b.nextID {
		b.nextID = pl.OrderID + 1
	}
	return o, true
}

func (b *clientBook) get(id uint64) (*simOrder, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[id]
	return o, ok
}

// orderSpec is the immutable part of an order, read without holding the
// book lock across fills.
type orderSpec struct {
	symbol string
	side   schema.OrderSide
	qty    schema.Quantity
	limit  schema.Price
}

func (b *clientBook) orderSpec(id uint64) (orderSpec, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[id]
	if !ok {
		return orderSpec{}, false
	}
	return orderSpec{symbol: o.symbol, side: o.side, qty: o.qty, limit: o.limit}, true
}

// ack emits the acceptance event for a freshly admitted order.
func (b *clientBook) ack(id uint64) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[id]
	if !ok {
		return nil, false
	}
	ack := schema.OrderAck{OrderID: o.id, Seq: o.nextSeq(), TsNano: time.Now().UnixNano()}
	return codec.EncodeOrderAck(nil, ack), true
}

// reject terminates the order and emits the refusal.
func (b *clientBook) reject(id uint64, code uint16, reason string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[id]
	if !ok || !o.working() {
		return nil, false
	}
	o.status = schema.StatusRejected
	o.leavesQty = 0
	rej := schema.OrderReject{
		OrderID: o.id,
		Seq:     o.nextSeq(),
		Code:    code,
		Reason:  schema.NewStr64(reason),
	}
	return codec.EncodeOrderReject(nil, rej), true
}

// cancel takes a working order off the book. Cancels of unknown or
// terminal orders produce nothing.
func (b *clientBook) cancel(id uint64) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[id]
	if !ok || !o.working() {
		return nil, false
	}
	o.status = schema.StatusCancelled
	o.leavesQty = 0
	st := schema.OrderStatus{
		OrderID:   o.id,
		Seq:       o.nextSeq(),
		Status:    schema.StatusCancelled,
		FilledQty: o.filledQty,
		AvgPrice:  o.avgPrice,
		TsNano:    time.Now().UnixNano(),
	}
	return codec.EncodeOrderStatus(nil, st), true
}

// fill applies one execution and emits it. A cancel racing in first wins
// and the fill is discarded. Quantity is clamped to what is still open.
func (b *clientBook) fill(id uint64, qty schema.Quantity, px schema.Price) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[id]
	if !ok || !o.working() {
		return nil, false
	}
	if qty > o.leavesQty {
		qty = o.leavesQty
	}
	if qty <= 0 {
		return nil, false
	}
	o.applyFill(qty, px)
	exec := schema.Execution{
		OrderID: o.id,
		Seq:     o.nextSeq(),
		ExecID:  schema.NewStr32(newExecID()),
		Qty:     qty,
		Price:   px,
		TsNano:  time.Now().UnixNano(),
	}
	return codec.EncodeExecution(nil, exec), true
}

// openRows snapshots the working orders as report rows. Rows carry the
// highest emitted per-order seq so clients can drop stale events that
// cross the report on the wire.
func (b *clientBook) openRows(reqID uint64) []schema.OpenOrder {
	b.mu.Lock()
	defer b.mu.Unlock()
	rows := make([]schema.OpenOrder, 0, len(b.orders))
	for _, o := range b.orders {
		if !o.working() {
			continue
		}
		rows = append(rows, schema.OpenOrder{
			ReqID:       reqID,
			OrderID:     o.id,
			Seq:         o.seq,
			Symbol:      schema.NewStr16(o.symbol),
			Side:        o.side,
			Type:        o.typ,
			TimeInForce: o.timeInForce,
			Status:      o.status,
			Qty:         o.qty,
			FilledQty:   o.filledQty,
			LeavesQty:   o.leavesQty,
			AvgPrice:    o.avgPrice,
		})
	}
	return rows
}
