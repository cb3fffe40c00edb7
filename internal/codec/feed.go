package codec

import (
	"encoding/binary"

	"tradegw/internal/schema"
)

const (
	SubscribePayloadSize     = 30
	UnsubscribePayloadSize   = 12
	SnapshotQueryPayloadSize = 30
	TickPayloadSize          = 80
	SnapshotPayloadSize      = 88
)

// EncodeSubscribe serializes a stream request into a fixed-size payload.
func EncodeSubscribe(dst []byte, v schema.Subscribe) []byte {
	if cap(dst) < SubscribePayloadSize {
		dst = make([]byte, SubscribePayloadSize)
	} else {
		dst = dst[:SubscribePayloadSize]
	}

	putHeader(dst, schema.MsgSubscribe)
	binary.BigEndian.PutUint64(dst[4:12], v.ReqID)
	copy(dst[12:28], v.Symbol[:])
	binary.BigEndian.PutUint16(dst[28:30], uint16(v.Kind))

	return dst
}

// DecodeSubscribe parses a fixed-size stream request payload.
func DecodeSubscribe(src []byte) (schema.Subscribe, bool) {
	if !checkPayload(src, schema.MsgSubscribe, SubscribePayloadSize) {
		return schema.Subscribe{}, false
	}
	v := schema.Subscribe{
		ReqID: binary.BigEndian.Uint64(src[4:12]),
		Kind:  schema.TickKind(binary.BigEndian.Uint16(src[28:30])),
	}
	copy(v.Symbol[:], src[12:28])
	return v, true
}

// EncodeUnsubscribe serializes a stream teardown into a fixed-size payload.
func EncodeUnsubscribe(dst []byte, v schema.Unsubscribe) []byte {
	if cap(dst) < UnsubscribePayloadSize {
		dst = make([]byte, UnsubscribePayloadSize)
	} else {
		dst = dst[:UnsubscribePayloadSize]
	}

	putHeader(dst, schema.MsgUnsubscribe)
	binary.BigEndian.PutUint64(dst[4:12], v.ReqID)

	return dst
}

// DecodeUnsubscribe parses a fixed-size stream teardown payload.
func DecodeUnsubscribe(src []byte) (schema.Unsubscribe, bool) {
	if !checkPayload(src, schema.MsgUnsubscribe, UnsubscribePayloadSize) {
		return schema.Unsubscribe{}, false
	}
	return schema.Unsubscribe{
		ReqID: binary.BigEndian.Uint64(src[4:12]),
	}, true
}

// EncodeSnapshotQuery serializes a one-shot snapshot request into a
// fixed-size payload.
func EncodeSnapshotQuery(dst []byte, v schema.SnapshotQuery) []byte {
	if cap(dst) < SnapshotQueryPayloadSize {
		dst = make([]byte, SnapshotQueryPayloadSize)
	} else {
		dst = dst[:SnapshotQueryPayloadSize]
	}

	putHeader(dst, schema.MsgSnapshotQuery)
	binary.BigEndian.PutUint64(dst[4:12], v.ReqID)
	copy(dst[12:28], v.Symbol[:])
	binary.BigEndian.PutUint16(dst[28:30], uint16(v.Kind))

	return dst
}

// DecodeSnapshotQuery parses a fixed-size snapshot request payload.
func DecodeSnapshotQuery(src []byte) (schema.SnapshotQuery, bool) {
	if !checkPayload(src, schema.MsgSnapshotQuery, SnapshotQueryPayloadSize) {
		return schema.SnapshotQuery{}, false
	}
	v := schema.SnapshotQuery{
		ReqID: binary.BigEndian.Uint64(src[4:12]),
		Kind:  schema.TickKind(binary.BigEndian.Uint16(src[28:30])),
	}
	copy(v.Symbol[:], src[12:28])
	return v, true
}

// EncodeTick serializes a market data update into a fixed-size payload.
func EncodeTick(dst []byte, v schema.Tick) []byte {
	if cap(dst) < TickPayloadSize {
		dst = make([]byte, TickPayloadSize)
	} else {
		dst = dst[:TickPayloadSize]
	}

	putHeader(dst, schema.MsgTick)
	binary.BigEndian.PutUint64(dst[4:12], v.SubID)
	binary.BigEndian.PutUint64(dst[12:20], v.Seq)
	binary.BigEndian.PutUint16(dst[20:22], uint16(v.Kind))
	binary.BigEndian.PutUint16(dst[22:24], v.Flags)
	binary.BigEndian.PutUint64(dst[24:32], uint64(v.TsNano))
	binary.BigEndian.PutUint64(dst[32:40], uint64(v.Bid))
	binary.BigEndian.PutUint64(dst[40:48], uint64(v.BidSize))
	binary.BigEndian.PutUint64(dst[48:56], uint64(v.Ask))
	binary.BigEndian.PutUint64(dst[56:64], uint64(v.AskSize))
	binary.BigEndian.PutUint64(dst[64:72], uint64(v.Last))
	binary.BigEndian.PutUint64(dst[72:80], uint64(v.LastSize))

	return dst
}

// DecodeTick parses a fixed-size market data update payload.
func DecodeTick(src []byte) (schema.Tick, bool) {
	if !checkPayload(src, schema.MsgTick, TickPayloadSize) {
		return schema.Tick{}, false
	}
	return schema.Tick{
		SubID:    binary.BigEndian.Uint64(src[4:12]),
		Seq:      binary.BigEndian.Uint64(src[12:20]),
		Kind:     schema.TickKind(binary.BigEndian.Uint16(src[20:22])),
		Flags:    binary.BigEndian.Uint16(src[22:24]),
		TsNano:   int64(binary.BigEndian.Uint64(src[24:32])),
		Bid:      schema.Price(int64(binary.BigEndian.Uint64(src[32:40]))),
		BidSize:  schema.Quantity(int64(binary.BigEndian.Uint64(src[40:48]))),
		Ask:      schema.Price(int64(binary.BigEndian.Uint64(src[48:56]))),
		AskSize:  schema.Quantity(int64(binary.BigEndian.Uint64(src[56:64]))),
		Last:     schema.Price(int64(binary.BigEndian.Uint64(src[64:72]))),
		LastSize: schema.Quantity(int64(binary.BigEndian.Uint64(src[72:80]))),
	}, true
}

// EncodeSnapshot serializes a snapshot answer into a fixed-size payload.
func EncodeSnapshot(dst []byte, v schema.Snapshot) []byte {
	if cap(dst) < SnapshotPayloadSize {
		dst = make([]byte, SnapshotPayloadSize)
	} else {
		dst = dst[:SnapshotPayloadSize]
	}

	putHeader(dst, schema.MsgSnapshot)
	binary.BigEndian.PutUint64(dst[4:12], v.ReqID)
	copy(dst[12:28], v.Symbol[:])
	binary.BigEndian.PutUint16(dst[28:30], uint16(v.Kind))
	binary.BigEndian.PutUint16(dst[30:32], v.Flags)
	binary.BigEndian.PutUint64(dst[32:40], uint64(v.TsNano))
	binary.BigEndian.PutUint64(dst[40:48], uint64(v.Bid))
	binary.BigEndian.PutUint64(dst[48:56], uint64(v.BidSize))
	binary.BigEndian.PutUint64(dst[56:64], uint64(v.Ask))
	binary.BigEndian.PutUint64(dst[64:72], uint64(v.AskSize))
	binary.BigEndian.PutUint64(dst[72:80], uint64(v.Last))
	binary.BigEndian.PutUint64(dst[80:88], uint64(v.LastSize))

	return dst
}

// DecodeSnapshot parses a fixed-size snapshot answer payload.
func DecodeSnapshot(src []byte) (schema.Snapshot, bool) {
	if !checkPayload(src, schema.MsgSnapshot, SnapshotPayloadSize) {
		return schema.Snapshot{}, false
	}
	v := schema.Snapshot{
		ReqID:    binary.BigEndian.Uint64(src[4:12]),
		Kind:     schema.TickKind(binary.BigEndian.Uint16(src[28:30])),
		Flags:    binary.BigEndian.Uint16(src[30:32]),
		TsNano:   int64(binary.BigEndian.Uint64(src[32:40])),
		Bid:      schema.Price(int64(binary.BigEndian.Uint64(src[40:48]))),
		BidSize:  schema.Quantity(int64(binary.BigEndian.Uint64(src[48:56]))),
		Ask:      schema.Price(int64(binary.BigEndian.Uint64(src[56:64]))),
		AskSize:  schema.Quantity(int64(binary.BigEndian.Uint64(src[64:72]))),
		Last:     schema.Price(int64(binary.BigEndian.Uint64(src[72:80]))),
		LastSize: schema.Quantity(int64(binary.BigEndian.Uint64(src[80:88]))),
	}
	copy(v.Symbol[:], src[12:28])
	return v, true
}
