package codec

import (
	"encoding/binary"

	"tradegw/internal/schema"
)

const (
	OrderStatusPayloadSize     = 56
	ExecutionPayloadSize       = 76
	OrderRejectPayloadSize     = 86
	OpenOrdersQueryPayloadSize = 12
	OpenOrderPayloadSize       = 86
)

// EncodeOrderStatus serializes a working-state report into a fixed-size
// payload.
func EncodeOrderStatus(dst []byte, v schema.OrderStatus) []byte {
	if cap(dst) < OrderStatusPayloadSize {
		dst = make([]byte, OrderStatusPayloadSize)
	} else {
		dst = dst[:OrderStatusPayloadSize]
	}

	putHeader(dst, schema.MsgOrderStatus)
	binary.BigEndian.PutUint64(dst[4:12], v.OrderID)
	binary.BigEndian.PutUint64(dst[12:20], v.Seq)
	binary.BigEndian.PutUint16(dst[20:22], uint16(v.Status))
	binary.BigEndian.PutUint16(dst[22:24], v.Flags)
	binary.BigEndian.PutUint64(dst[24:32], uint64(v.FilledQty))
	binary.BigEndian.PutUint64(dst[32:40], uint64(v.LeavesQty))
	binary.BigEndian.PutUint64(dst[40:48], uint64(v.AvgPrice))
	binary.BigEndian.PutUint64(dst[48:56], uint64(v.TsNano))

	return dst
}

// DecodeOrderStatus parses a fixed-size working-state report payload.
func DecodeOrderStatus(src []byte) (schema.OrderStatus, bool) {
	if !checkPayload(src, schema.MsgOrderStatus, OrderStatusPayloadSize) {
		return schema.OrderStatus{}, false
	}
	return schema.OrderStatus{
		OrderID:   binary.BigEndian.Uint64(src[4:12]),
		Seq:       binary.BigEndian.Uint64(src[12:20]),
		Status:    schema.OrderStatusCode(binary.BigEndian.Uint16(src[20:22])),
		Flags:     binary.BigEndian.Uint16(src[22:24]),
		FilledQty: schema.Quantity(int64(binary.BigEndian.Uint64(src[24:32]))),
		LeavesQty: schema.Quantity(int64(binary.BigEndian.Uint64(src[32:40]))),
		AvgPrice:  schema.Price(int64(binary.BigEndian.Uint64(src[40:48]))),
		TsNano:    int64(binary.BigEndian.Uint64(src[48:56])),
	}, true
}

// EncodeExecution serializes a fill report into a fixed-size payload.
func EncodeExecution(dst []byte, v schema.Execution) []byte {
	if cap(dst) < ExecutionPayloadSize {
		dst = make([]byte, ExecutionPayloadSize)
	} else {
		dst = dst[:ExecutionPayloadSize]
	}

	putHeader(dst, schema.MsgExecution)
	binary.BigEndian.PutUint64(dst[4:12], v.OrderID)
	binary.BigEndian.PutUint64(dst[12:20], v.Seq)
	copy(dst[20:52], v.ExecID[:])
	binary.BigEndian.PutUint64(dst[52:60], uint64(v.Qty))
	binary.BigEndian.PutUint64(dst[60:68], uint64(v.Price))
	binary.BigEndian.PutUint64(dst[68:76], uint64(v.TsNano))

	return dst
}

// DecodeExecution parses a fixed-size fill report payload.
func DecodeExecution(src []byte) (schema.Execution, bool) {
	if !checkPayload(src, schema.MsgExecution, ExecutionPayloadSize) {
		return schema.Execution{}, false
	}
	v := schema.Execution{
		OrderID: binary.BigEndian.Uint64(src[4:12]),
		Seq:     binary.BigEndian.Uint64(src[12:20]),
		Qty:     schema.Quantity(int64(binary.BigEndian.Uint64(src[52:60]))),
		Price:   schema.Price(int64(binary.BigEndian.Uint64(src[60:68]))),
		TsNano:  int64(binary.BigEndian.Uint64(src[68:76])),
	}
	copy(v.ExecID[:], src[20:52])
	return v, true
}

// EncodeOrderReject serializes an order refusal into a fixed-size payload.
func EncodeOrderReject(dst []byte, v schema.OrderReject) []byte {
	if cap(dst) < OrderRejectPayloadSize {
		dst = make([]byte, OrderRejectPayloadSize)
	} else {
		dst = dst[:OrderRejectPayloadSize]
	}

	putHeader(dst, schema.MsgOrderReject)
	binary.BigEndian.PutUint64(dst[4:12], v.OrderID)
	binary.BigEndian.PutUint64(dst[12:20], v.Seq)
	binary.BigEndian.PutUint16(dst[20:22], v.Code)
	copy(dst[22:86], v.Reason[:])

	return dst
}

// DecodeOrderReject parses a fixed-size order refusal payload.
func DecodeOrderReject(src []byte) (schema.OrderReject, bool) {
	if !checkPayload(src, schema.MsgOrderReject, OrderRejectPayloadSize) {
		return schema.OrderReject{}, false
	}
	v := schema.OrderReject{
		OrderID: binary.BigEndian.Uint64(src[4:12]),
		Seq:     binary.BigEndian.Uint64(src[12:20]),
		Code:    binary.BigEndian.Uint16(src[20:22]),
	}
	copy(v.Reason[:], src[22:86])
	return v, true
}

// EncodeOpenOrdersQuery serializes an open-order report request into a
// fixed-size payload.
func EncodeOpenOrdersQuery(dst []byte, v schema.OpenOrdersQuery) []byte {
	if cap(dst) < OpenOrdersQueryPayloadSize {
		dst = make([]byte, OpenOrdersQueryPayloadSize)
	} else {
		dst = dst[:OpenOrdersQueryPayloadSize]
	}

	putHeader(dst, schema.MsgOpenOrdersQuery)
	binary.BigEndian.PutUint64(dst[4:12], v.ReqID)

	return dst
}

// DecodeOpenOrdersQuery parses a fixed-size open-order report request
// payload.
func DecodeOpenOrdersQuery(src []byte) (schema.OpenOrdersQuery, bool) {
	if !checkPayload(src, schema.MsgOpenOrdersQuery, OpenOrdersQueryPayloadSize) {
		return schema.OpenOrdersQuery{}, false
	}
	return schema.OpenOrdersQuery{
		ReqID: binary.BigEndian.Uint64(src[4:12]),
	}, true
}

// EncodeOpenOrder serializes one open-order report row into a fixed-size
// payload.
func EncodeOpenOrder(dst []byte, v schema.OpenOrder) []byte {
	if cap(dst) < OpenOrderPayloadSize {
		dst = make([]byte, OpenOrderPayloadSize)
	} else {
		dst = dst[:OpenOrderPayloadSize]
	}

	putHeader(dst, schema.MsgOpenOrder)
	binary.BigEndian.PutUint64(dst[4:12], v.ReqID)
	binary.BigEndian.PutUint64(dst[12:20], v.OrderID)
	binary.BigEndian.PutUint64(dst[20:28], v.Seq)
	copy(dst[28:44], v.Symbol[:])
	binary.BigEndian.PutUint16(dst[44:46], uint16(v.Side))
	binary.BigEndian.PutUint16(dst[46:48], uint16(v.Type))
	binary.BigEndian.PutUint16(dst[48:50], uint16(v.TimeInForce))
	binary.BigEndian.PutUint16(dst[50:52], uint16(v.Status))
	binary.BigEndian.PutUint16(dst[52:54], v.Last)
	binary.BigEndian.PutUint64(dst[54:62], uint64(v.Qty))
	binary.BigEndian.PutUint64(dst[62:70], uint64(v.FilledQty))
	binary.BigEndian.PutUint64(dst[70:78], uint64(v.LeavesQty))
	binary.BigEndian.PutUint64(dst[78:86], uint64(v.AvgPrice))

	return dst
}

// DecodeOpenOrder parses a fixed-size open-order report row payload.
func DecodeOpenOrder(src []byte) (schema.OpenOrder, bool) {
	if !checkPayload(src, schema.MsgOpenOrder, OpenOrderPayloadSize) {
		return schema.OpenOrder{}, false
	}
	v := schema.OpenOrder{
		ReqID:       binary.BigEndian.Uint64(src[4:12]),
		OrderID:     binary.BigEndian.Uint64(src[12:20]),
		Seq:         binary.BigEndian.Uint64(src[20:28]),
		Side:        schema.OrderSide(binary.BigEndian.Uint16(src[44:46])),
		Type:        schema.OrderType(binary.BigEndian.Uint16(src[46:48])),
		TimeInForce: schema.TimeInForce(binary.BigEndian.Uint16(src[48:50])),
		Status:      schema.OrderStatusCode(binary.BigEndian.Uint16(src[50:52])),
		Last:        binary.BigEndian.Uint16(src[52:54]),
		Qty:         schema.Quantity(int64(binary.BigEndian.Uint64(src[54:62]))),
		FilledQty:   schema.Quantity(int64(binary.BigEndian.Uint64(src[62:70]))),
		LeavesQty:   schema.Quantity(int64(binary.BigEndian.Uint64(src[70:78]))),
		AvgPrice:    schema.Price(int64(binary.BigEndian.Uint64(src[78:86]))),
	}
	copy(v.Symbol[:], src[28:44])
	return v, true
}
