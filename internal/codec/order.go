package codec

import (
	"encoding/binary"

	"tradegw/internal/schema"
)

const (
	PlaceOrderPayloadSize  = 52
	CancelOrderPayloadSize = 12
	OrderAckPayloadSize    = 28
)

// EncodePlaceOrder serializes an order submission into a fixed-size payload.
func EncodePlaceOrder(dst []byte, v schema.PlaceOrder) []byte {
	if cap(dst) < PlaceOrderPayloadSize {
		dst = make([]byte, PlaceOrderPayloadSize)
	} else {
		dst = dst[:PlaceOrderPayloadSize]
	}

	putHeader(dst, schema.MsgPlaceOrder)
	binary.BigEndian.PutUint64(dst[4:12], v.OrderID)
	copy(dst[12:28], v.Symbol[:])
	binary.BigEndian.PutUint16(dst[28:30], uint16(v.Side))
	binary.BigEndian.PutUint16(dst[30:32], uint16(v.Type))
	binary.BigEndian.PutUint16(dst[32:34], uint16(v.TimeInForce))
	binary.BigEndian.PutUint16(dst[34:36], v.Flags)
	binary.BigEndian.PutUint64(dst[36:44], uint64(v.Qty))
	binary.BigEndian.PutUint64(dst[44:52], uint64(v.LimitPrice))

	return dst
}

// DecodePlaceOrder parses a fixed-size order submission payload.
func DecodePlaceOrder(src []byte) (schema.PlaceOrder, bool) {
	if !checkPayload(src, schema.MsgPlaceOrder, PlaceOrderPayloadSize) {
		return schema.PlaceOrder{}, false
	}
	v := schema.PlaceOrder{
		OrderID:     binary.BigEndian.Uint64(src[4:12]),
		Side:        schema.OrderSide(binary.BigEndian.Uint16(src[28:30])),
		Type:        schema.OrderType(binary.BigEndian.Uint16(src[30:32])),
		TimeInForce: schema.TimeInForce(binary.BigEndian.Uint16(src[32:34])),
		Flags:       binary.BigEndian.Uint16(src[34:36]),
		Qty:         schema.Quantity(int64(binary.BigEndian.Uint64(src[36:44]))),
		LimitPrice:  schema.Price(int64(binary.BigEndian.Uint64(src[44:52]))),
	}
	copy(v.Symbol[:], src[12:28])
	return v, true
}

// EncodeCancelOrder serializes a cancel request into a fixed-size payload.
func EncodeCancelOrder(dst []byte, v schema.CancelOrder) []byte {
	if cap(dst) < CancelOrderPayloadSize {
		dst = make([]byte, CancelOrderPayloadSize)
	} else {
		dst = dst[:CancelOrderPayloadSize]
	}

	putHeader(dst, schema.MsgCancelOrder)
	binary.BigEndian.PutUint64(dst[4:12], v.OrderID)

	return dst
}

// DecodeCancelOrder parses a fixed-size cancel request payload.
func DecodeCancelOrder(src []byte) (schema.CancelOrder, bool) {
	if !checkPayload(src, schema.MsgCancelOrder, CancelOrderPayloadSize) {
		return schema.CancelOrder{}, false
	}
	return schema.CancelOrder{
		OrderID: binary.BigEndian.Uint64(src[4:12]),
	}, true
}

// EncodeOrderAck serializes an order acknowledgment into a fixed-size
// payload.
func EncodeOrderAck(dst []byte, v schema.OrderAck) []byte {
	if cap(dst) < OrderAckPayloadSize {
		dst = make([]byte, OrderAckPayloadSize)
	} else {
		dst = dst[:OrderAckPayloadSize]
	}

	putHeader(dst, schema.MsgOrderAck)
	binary.BigEndian.PutUint64(dst[4:12], v.OrderID)
	binary.BigEndian.PutUint64(dst[12:20], v.Seq)
	binary.BigEndian.PutUint64(dst[20:28], uint64(v.TsNano))

	return dst
}

// DecodeOrderAck parses a fixed-size order acknowledgment payload.
func DecodeOrderAck(src []byte) (schema.OrderAck, bool) {
	if !checkPayload(src, schema.MsgOrderAck, OrderAckPayloadSize) {
		return schema.OrderAck{}, false
	}
	return schema.OrderAck{
		OrderID: binary.BigEndian.Uint64(src[4:12]),
		Seq:     binary.BigEndian.Uint64(src[12:20]),
		TsNano:  int64(binary.BigEndian.Uint64(src[20:28])),
	}, true
}
