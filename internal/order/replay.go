package order

import (
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradegw/internal/codec"
	"tradegw/internal/journal"
	"tradegw/internal/schema"
)

// RestoreFromJournal folds journaled order events back through a fresh
// state machine and returns the orders that are still working. Terminal
// orders stay behind: the journal is the archive for those.
//
// Fold rejections are expected on replay. Reconcile snapshots journaled
// after a reconnect repeat transitions that earlier records already
// carry, and the per-order sequence guard skips them the same way it did
// live.
func RestoreFromJournal(dir, prefix string) ([]Order, error) {
	machine := NewMachine()
	records, skipped := 0, 0

	err := journal.Walk(dir, prefix, func(header schema.EventHeader, payload []byte) error {
		records++
		if !fold(machine, header, payload) {
			skipped++
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "replay order journal")
	}

	open := machine.Open()
	if records > 0 {
		logs.Infof("order journal replayed, records: %d, skipped: %d, working: %d",
			records, skipped, len(open))
	}
	return open, nil
}

// fold applies one journaled record. It reports false for records that did
// not change state, whether stale or undecodable.
func fold(machine *Machine, header schema.EventHeader, payload []byte) bool {
	switch header.Type {
	case schema.MsgPlaceOrder:
		pl, ok := codec.DecodePlaceOrder(payload)
		if !ok {
			break
		}
		spec := schema.OrderSpec{
			Symbol:      pl.Symbol.String(),
			Side:        pl.Side,
			Type:        pl.Type,
			TimeInForce: pl.TimeInForce,
			Qty:         pl.Qty,
			LimitPrice:  pl.LimitPrice,
		}
		if _, err := machine.Create(pl.OrderID, spec, header.TsEvent); err != nil {
			return false
		}
		_, err := machine.MarkSubmitted(pl.OrderID, header.TsEvent)
		return err == nil
	case schema.MsgOrderAck:
		if ev, ok := codec.DecodeOrderAck(payload); ok {
			_, err := machine.ApplyAck(ev)
			return err == nil
		}
	case schema.MsgOrderStatus:
		if ev, ok := codec.DecodeOrderStatus(payload); ok {
			_, err := machine.ApplyStatus(ev)
			return err == nil
		}
	case schema.MsgExecution:
		if ev, ok := codec.DecodeExecution(payload); ok {
			_, err := machine.ApplyExecution(ev)
			return err == nil
		}
	case schema.MsgOrderReject:
		if ev, ok := codec.DecodeOrderReject(payload); ok {
			_, err := machine.ApplyReject(ev, header.TsRecv)
			return err == nil
		}
	case schema.MsgOpenOrder:
		if row, ok := codec.DecodeOpenOrder(payload); ok {
			if row.OrderID == 0 {
				return false
			}
			_, changed, err := machine.MergeOpen(row, header.TsRecv)
			return err == nil && changed
		}
	default:
		return false
	}
	return false
}
