package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradegw/internal/schema"
	"tradegw/pkg/exception"
)

const unit = 100_000_000

func limitBuy(qty, px int64) schema.OrderSpec {
	return schema.OrderSpec{
		Symbol:      "AAPL",
		Side:        schema.OrderSideBuy,
		Type:        schema.OrderTypeLimit,
		TimeInForce: schema.TimeInForceGTC,
		Qty:         schema.Quantity(qty * unit),
		LimitPrice:  schema.Price(px * unit),
	}
}

func submitted(t *testing.T, m *Machine, id uint64) {
	t.Helper()
	_, err := m.Create(id, limitBuy(100, 101), 10)
	require.NoError(t, err)
	_, err = m.MarkSubmitted(id, 11)
	require.NoError(t, err)
}

func TestFillLifecycle(t *testing.T) {
	m := NewMachine()
	submitted(t, m, 7)

	o, err := m.ApplyAck(schema.OrderAck{OrderID: 7, Seq: 1, TsNano: 20})
	require.NoError(t, err)
	assert.Equal(t, StateAcknowledged, o.State)

	o, err = m.ApplyExecution(schema.Execution{
		OrderID: 7, Seq: 2, Qty: 40 * unit, Price: 100 * unit, TsNano: 30,
	})
	require.NoError(t, err)
	assert.Equal(t, StatePartFilled, o.State)
	assert.Equal(t, schema.Quantity(40*unit), o.FilledQty)
	assert.Equal(t, schema.Quantity(60*unit), o.LeavesQty)
	assert.Equal(t, schema.Price(100*unit), o.AvgPrice)

	// The retransmitted fill repeats seq 2 and must not double count.
	_, err = m.ApplyExecution(schema.Execution{
		OrderID: 7, Seq: 2, Qty: 40 * unit, Price: 100 * unit, TsNano: 31,
	})
	require.ErrorIs(t, err, exception.ErrDuplicateEvent)
	got, _ := m.Get(7)
	assert.Equal(t, schema.Quantity(40*unit), got.FilledQty)

	o, err = m.ApplyExecution(schema.Execution{
		OrderID: 7, Seq: 3, Qty: 60 * unit, Price: 101 * unit, TsNano: 40,
	})
	require.NoError(t, err)
	assert.Equal(t, StateFilled, o.State)
	assert.Equal(t, schema.Quantity(100*unit), o.FilledQty)
	assert.Equal(t, schema.Quantity(0), o.LeavesQty)
	// 40 @ 100 and 60 @ 101 blend to 100.6.
	assert.Equal(t, schema.Price(100*unit+60_000_000), o.AvgPrice)
	assert.True(t, o.State.Terminal())
	assert.Equal(t, 0, m.OpenCount())
}

func TestExecutionGuards(t *testing.T) {
	m := NewMachine()
	submitted(t, m, 1)

	_, err := m.ApplyExecution(schema.Execution{OrderID: 9, Seq: 1, Qty: unit, Price: unit})
	require.ErrorIs(t, err, exception.ErrUnknownOrder)

	_, err = m.ApplyExecution(schema.Execution{OrderID: 1, Seq: 1, Qty: 101 * unit, Price: unit})
	require.ErrorIs(t, err, exception.ErrNonMonotonicFill)

	_, err = m.ApplyExecution(schema.Execution{OrderID: 1, Seq: 1, Qty: 0, Price: unit})
	require.ErrorIs(t, err, exception.ErrNonMonotonicFill)

	// An ack lost on the wire must not wedge the order.
	o, err := m.ApplyExecution(schema.Execution{OrderID: 1, Seq: 1, Qty: 100 * unit, Price: unit})
	require.NoError(t, err)
	assert.Equal(t, StateFilled, o.State)

	_, err = m.ApplyExecution(schema.Execution{OrderID: 1, Seq: 2, Qty: unit, Price: unit})
	require.ErrorIs(t, err, exception.ErrInvalidTransition)
}

func TestStatusGuards(t *testing.T) {
	m := NewMachine()
	submitted(t, m, 1)

	o, err := m.ApplyStatus(schema.OrderStatus{
		OrderID: 1, Seq: 1, Status: schema.StatusPartFilled,
		FilledQty: 30 * unit, LeavesQty: 70 * unit, AvgPrice: 101 * unit, TsNano: 20,
	})
	require.NoError(t, err)
	assert.Equal(t, StatePartFilled, o.State)

	_, err = m.ApplyStatus(schema.OrderStatus{
		OrderID: 1, Seq: 2, Status: schema.StatusPartFilled,
		FilledQty: 20 * unit, LeavesQty: 80 * unit,
	})
	require.ErrorIs(t, err, exception.ErrNonMonotonicFill, "cumulative fill may not shrink")

	_, err = m.ApplyStatus(schema.OrderStatus{
		OrderID: 1, Seq: 2, Status: schema.StatusPartFilled,
		FilledQty: 130 * unit, LeavesQty: 0,
	})
	require.ErrorIs(t, err, exception.ErrNonMonotonicFill, "cumulative fill may not exceed quantity")

	_, err = m.ApplyStatus(schema.OrderStatus{
		OrderID: 1, Seq: 2, Status: schema.StatusUnknown,
		FilledQty: 30 * unit, LeavesQty: 70 * unit,
	})
	require.ErrorIs(t, err, exception.ErrInvalidTransition)

	o, err = m.ApplyStatus(schema.OrderStatus{
		OrderID: 1, Seq: 2, Status: schema.StatusCancelled,
		FilledQty: 30 * unit, LeavesQty: 0, TsNano: 30,
	})
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, o.State)
	assert.Equal(t, schema.Quantity(30*unit), o.FilledQty)
}

func TestRejectIsTerminal(t *testing.T) {
	m := NewMachine()
	submitted(t, m, 1)

	o, err := m.ApplyReject(schema.OrderReject{
		OrderID: 1, Seq: 1, Code: 3, Reason: schema.NewStr64("margin"),
	}, 50)
	require.NoError(t, err)
	assert.Equal(t, StateRejected, o.State)
	assert.Equal(t, int64(50), o.UpdatedAt)

	_, err = m.ApplyAck(schema.OrderAck{OrderID: 1, Seq: 2, TsNano: 60})
	require.ErrorIs(t, err, exception.ErrInvalidTransition)
}

func TestCreateGuards(t *testing.T) {
	m := NewMachine()

	_, err := m.Create(0, limitBuy(1, 1), 1)
	require.ErrorIs(t, err, exception.ErrOrderInvalidRequest)

	_, err = m.Create(5, limitBuy(1, 1), 1)
	require.NoError(t, err)
	_, err = m.Create(5, limitBuy(1, 1), 2)
	require.ErrorIs(t, err, exception.ErrDuplicateOrder)

	_, err = m.MarkSubmitted(5, 3)
	require.NoError(t, err)
	_, err = m.MarkSubmitted(5, 4)
	require.ErrorIs(t, err, exception.ErrInvalidTransition)

	_, err = m.MarkSubmitted(44, 3)
	require.ErrorIs(t, err, exception.ErrUnknownOrder)
}

func openRow(id, seq uint64, status schema.OrderStatusCode, filled, leaves int64) schema.OpenOrder {
	return schema.OpenOrder{
		ReqID:       1,
		OrderID:     id,
		Seq:         seq,
		Symbol:      schema.NewStr16("AAPL"),
		Side:        schema.OrderSideBuy,
		Type:        schema.OrderTypeLimit,
		TimeInForce: schema.TimeInForceGTC,
		Status:      status,
		Qty:         100 * unit,
		FilledQty:   schema.Quantity(filled * unit),
		LeavesQty:   schema.Quantity(leaves * unit),
		AvgPrice:    100 * unit,
	}
}

func TestMergeOpenAdoptsUnknown(t *testing.T) {
	m := NewMachine()

	o, changed, err := m.MergeOpen(openRow(31, 4, schema.StatusPartFilled, 25, 75), 99)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StatePartFilled, o.State)
	assert.Equal(t, "AAPL", o.Symbol)
	assert.Equal(t, uint64(4), o.LastSeq)
	assert.Equal(t, 1, m.OpenCount())

	_, _, err = m.MergeOpen(openRow(32, 1, schema.StatusUnknown, 0, 100), 99)
	require.ErrorIs(t, err, exception.ErrInvalidTransition)
	_, ok := m.Get(32)
	assert.False(t, ok)
}

func TestMergeOpenSequencing(t *testing.T) {
	m := NewMachine()
	submitted(t, m, 31)
	_, err := m.ApplyAck(schema.OrderAck{OrderID: 31, Seq: 2, TsNano: 20})
	require.NoError(t, err)

	// Stale row: the local view already folded seq 2.
	_, changed, err := m.MergeOpen(openRow(31, 2, schema.StatusSubmitted, 0, 100), 99)
	require.NoError(t, err)
	assert.False(t, changed)

	// Fresher row advances fills missed while disconnected.
	o, changed, err := m.MergeOpen(openRow(31, 5, schema.StatusPartFilled, 40, 60), 99)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, schema.Quantity(40*unit), o.FilledQty)
	assert.Equal(t, uint64(5), o.LastSeq)

	// The execution the row already folded arrives late and is skipped, so
	// the 40 do not count twice.
	_, err = m.ApplyExecution(schema.Execution{
		OrderID: 31, Seq: 5, Qty: 40 * unit, Price: 100 * unit, TsNano: 30,
	})
	require.ErrorIs(t, err, exception.ErrDuplicateEvent)
	got, _ := m.Get(31)
	assert.Equal(t, schema.Quantity(40*unit), got.FilledQty)

	_, _, err = m.MergeOpen(openRow(31, 6, schema.StatusPartFilled, 10, 90), 99)
	require.ErrorIs(t, err, exception.ErrNonMonotonicFill)
}

func TestBlendAvgLargeScaledValues(t *testing.T) {
	// 90000 shares at 92233.72 would overflow a naive int64 product.
	avg := blendAvg(schema.Price(92_233*unit+72_000_000), schema.Quantity(90_000*unit),
		schema.Price(92_235*unit), schema.Quantity(10_000*unit))
	// (90000*92233.72 + 10000*92235) / 100000 = 92233.848
	assert.Equal(t, schema.Price(92_233*unit+84_800_000), avg)

	assert.Equal(t, schema.Price(0), blendAvg(0, 0, 0, 0))
}

func TestRestoreAndOpenOrder(t *testing.T) {
	m := NewMachine()
	m.Restore([]Order{
		{ID: 2, State: StateAcknowledged, Qty: unit, LeavesQty: unit},
		{ID: 1, State: StateFilled, Qty: unit, FilledQty: unit},
		{ID: 3, State: StatePartFilled, Qty: unit, FilledQty: unit / 2, LeavesQty: unit / 2},
	})
	assert.Equal(t, 3, m.Len())
	assert.Equal(t, 2, m.OpenCount())

	open := m.Open()
	require.Len(t, open, 2)
	assert.Equal(t, uint64(2), open[0].ID)
	assert.Equal(t, uint64(3), open[1].ID)
}
