package codec

import (
	"encoding/binary"

	"tradegw/internal/schema"
)

const (
	HelloPayloadSize         = 8
	HelloAckPayloadSize      = 14
	StartSessionPayloadSize  = 8
	SessionAcceptPayloadSize = 20
	SessionRejectPayloadSize = 70
	PingPayloadSize          = 12
	PongPayloadSize          = 12
)

// EncodeHello serializes a version offer into a fixed-size payload.
func EncodeHello(dst []byte, v schema.Hello) []byte {
	if cap(dst) < HelloPayloadSize {
		dst = make([]byte, HelloPayloadSize)
	} else {
		dst = dst[:HelloPayloadSize]
	}

	putHeader(dst, schema.MsgHello)
	binary.BigEndian.PutUint16(dst[4:6], v.MinVersion)
	binary.BigEndian.PutUint16(dst[6:8], v.MaxVersion)

	return dst
}

// DecodeHello parses a fixed-size version offer payload.
func DecodeHello(src []byte) (schema.Hello, bool) {
	if !checkPayload(src, schema.MsgHello, HelloPayloadSize) {
		return schema.Hello{}, false
	}
	return schema.Hello{
		MinVersion: binary.BigEndian.Uint16(src[4:6]),
		MaxVersion: binary.BigEndian.Uint16(src[6:8]),
	}, true
}

// EncodeHelloAck serializes a version answer into a fixed-size payload.
func EncodeHelloAck(dst []byte, v schema.HelloAck) []byte {
	if cap(dst) < HelloAckPayloadSize {
		dst = make([]byte, HelloAckPayloadSize)
	} else {
		dst = dst[:HelloAckPayloadSize]
	}

	putHeader(dst, schema.MsgHelloAck)
	binary.BigEndian.PutUint16(dst[4:6], v.Version)
	binary.BigEndian.PutUint64(dst[6:14], uint64(v.TimeNano))

	return dst
}

// DecodeHelloAck parses a fixed-size version answer payload.
func DecodeHelloAck(src []byte) (schema.HelloAck, bool) {
	if !checkPayload(src, schema.MsgHelloAck, HelloAckPayloadSize) {
		return schema.HelloAck{}, false
	}
	return schema.HelloAck{
		Version:  binary.BigEndian.Uint16(src[4:6]),
		TimeNano: int64(binary.BigEndian.Uint64(src[6:14])),
	}, true
}

// EncodeStartSession serializes an identity claim into a fixed-size payload.
func EncodeStartSession(dst []byte, v schema.StartSession) []byte {
	if cap(dst) < StartSessionPayloadSize {
		dst = make([]byte, StartSessionPayloadSize)
	} else {
		dst = dst[:StartSessionPayloadSize]
	}

	putHeader(dst, schema.MsgStartSession)
	binary.BigEndian.PutUint32(dst[4:8], uint32(v.ClientID))

	return dst
}

// DecodeStartSession parses a fixed-size identity claim payload.
func DecodeStartSession(src []byte) (schema.StartSession, bool) {
	if !checkPayload(src, schema.MsgStartSession, StartSessionPayloadSize) {
		return schema.StartSession{}, false
	}
	return schema.StartSession{
		ClientID: int32(binary.BigEndian.Uint32(src[4:8])),
	}, true
}

// EncodeSessionAccept serializes a session grant into a fixed-size payload.
func EncodeSessionAccept(dst []byte, v schema.SessionAccept) []byte {
	if cap(dst) < SessionAcceptPayloadSize {
		dst = make([]byte, SessionAcceptPayloadSize)
	} else {
		dst = dst[:SessionAcceptPayloadSize]
	}

	putHeader(dst, schema.MsgSessionAccept)
	binary.BigEndian.PutUint64(dst[4:12], v.NextOrderID)
	binary.BigEndian.PutUint64(dst[12:20], uint64(v.HeartbeatNano))

	return dst
}

// DecodeSessionAccept parses a fixed-size session grant payload.
func DecodeSessionAccept(src []byte) (schema.SessionAccept, bool) {
	if !checkPayload(src, schema.MsgSessionAccept, SessionAcceptPayloadSize) {
		return schema.SessionAccept{}, false
	}
	return schema.SessionAccept{
		NextOrderID:   binary.BigEndian.Uint64(src[4:12]),
		HeartbeatNano: int64(binary.BigEndian.Uint64(src[12:20])),
	}, true
}

// EncodeSessionReject serializes a session refusal into a fixed-size payload.
func EncodeSessionReject(dst []byte, v schema.SessionReject) []byte {
	if cap(dst) < SessionRejectPayloadSize {
		dst = make([]byte, SessionRejectPayloadSize)
	} else {
		dst = dst[:SessionRejectPayloadSize]
	}

	putHeader(dst, schema.MsgSessionReject)
	binary.BigEndian.PutUint16(dst[4:6], uint16(v.Code))
	copy(dst[6:70], v.Reason[:])

	return dst
}

// DecodeSessionReject parses a fixed-size session refusal payload.
func DecodeSessionReject(src []byte) (schema.SessionReject, bool) {
	if !checkPayload(src, schema.MsgSessionReject, SessionRejectPayloadSize) {
		return schema.SessionReject{}, false
	}
	v := schema.SessionReject{
		Code: schema.RejectCode(binary.BigEndian.Uint16(src[4:6])),
	}
	copy(v.Reason[:], src[6:70])
	return v, true
}

// EncodePing serializes a liveness probe into a fixed-size payload.
func EncodePing(dst []byte, v schema.Ping) []byte {
	if cap(dst) < PingPayloadSize {
		dst = make([]byte, PingPayloadSize)
	} else {
		dst = dst[:PingPayloadSize]
	}

	putHeader(dst, schema.MsgPing)
	binary.BigEndian.PutUint64(dst[4:12], uint64(v.TimeNano))

	return dst
}

// DecodePing parses a fixed-size liveness probe payload.
func DecodePing(src []byte) (schema.Ping, bool) {
	if !checkPayload(src, schema.MsgPing, PingPayloadSize) {
		return schema.Ping{}, false
	}
	return schema.Ping{
		TimeNano: int64(binary.BigEndian.Uint64(src[4:12])),
	}, true
}

// EncodePong serializes a liveness answer into a fixed-size payload.
func EncodePong(dst []byte, v schema.Pong) []byte {
	if cap(dst) < PongPayloadSize {
		dst = make([]byte, PongPayloadSize)
	} else {
		dst = dst[:PongPayloadSize]
	}

	putHeader(dst, schema.MsgPong)
	binary.BigEndian.PutUint64(dst[4:12], uint64(v.TimeNano))

	return dst
}

// DecodePong parses a fixed-size liveness answer payload.
func DecodePong(src []byte) (schema.Pong, bool) {
	if !checkPayload(src, schema.MsgPong, PongPayloadSize) {
		return schema.Pong{}, false
	}
	return schema.Pong{
		TimeNano: int64(binary.BigEndian.Uint64(src[4:12])),
	}, true
}
