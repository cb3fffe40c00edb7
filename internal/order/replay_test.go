package order

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradegw/internal/codec"
	"tradegw/internal/journal"
	"tradegw/internal/schema"
)

func TestRestoreFromJournal(t *testing.T) {
	dir := t.TempDir()
	cfg := journal.DefaultConfig(dir)
	w, err := journal.NewWriter(cfg)
	require.NoError(t, err)
	require.NoError(t, w.Start(t.Context()))

	now := time.Now().UnixNano()
	place := func(id uint64, qty int64) {
		payload := codec.EncodePlaceOrder(nil, schema.PlaceOrder{
			OrderID:     id,
			Symbol:      schema.NewStr16("AAPL"),
			Side:        schema.OrderSideBuy,
			Type:        schema.OrderTypeLimit,
			TimeInForce: schema.TimeInForceGTC,
			Qty:         schema.Quantity(qty * unit),
			LimitPrice:  101 * unit,
		})
		require.NoError(t, w.TryAppend(
			schema.NewHeader(schema.MsgPlaceOrder, schema.SourceLocal, 0, now, now), payload))
	}
	gateway := func(msgType schema.MsgType, seq uint64, payload []byte) {
		require.NoError(t, w.TryAppend(
			schema.NewHeader(msgType, schema.SourceGateway, seq, now, now), payload))
	}

	// Order 1 fills part way and survives the restart.
	place(1, 100)
	gateway(schema.MsgOrderAck, 1, codec.EncodeOrderAck(nil, schema.OrderAck{
		OrderID: 1, Seq: 1, TsNano: now,
	}))
	gateway(schema.MsgExecution, 2, codec.EncodeExecution(nil, schema.Execution{
		OrderID: 1, Seq: 2, ExecID: schema.NewStr32("e-1"),
		Qty: 40 * unit, Price: 100 * unit, TsNano: now,
	}))
	// The same fill was journaled again off a reconcile row and must fold
	// away exactly like it did live.
	row := openRow(1, 2, schema.StatusPartFilled, 40, 60)
	gateway(schema.MsgOpenOrder, 2, codec.EncodeOpenOrder(nil, row))

	// Order 2 finished before the restart.
	place(2, 10)
	gateway(schema.MsgOrderAck, 1, codec.EncodeOrderAck(nil, schema.OrderAck{
		OrderID: 2, Seq: 1, TsNano: now,
	}))
	gateway(schema.MsgExecution, 2, codec.EncodeExecution(nil, schema.Execution{
		OrderID: 2, Seq: 2, ExecID: schema.NewStr32("e-2"),
		Qty: 10 * unit, Price: 99 * unit, TsNano: now,
	}))

	require.NoError(t, w.Close())

	open, err := RestoreFromJournal(dir, cfg.FilePrefix)
	require.NoError(t, err)
	require.Len(t, open, 1, "terminal orders stay in the journal archive")

	o := open[0]
	assert.Equal(t, uint64(1), o.ID)
	assert.Equal(t, StatePartFilled, o.State)
	assert.Equal(t, "AAPL", o.Symbol)
	assert.Equal(t, schema.Quantity(40*unit), o.FilledQty)
	assert.Equal(t, schema.Quantity(60*unit), o.LeavesQty)
	assert.Equal(t, uint64(2), o.LastSeq)
}

func TestRestoreFromJournalEmptyDir(t *testing.T) {
	open, err := RestoreFromJournal(t.TempDir(), "journal")
	require.NoError(t, err)
	assert.Empty(t, open)
}
