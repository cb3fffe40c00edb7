package codec

import (
	"encoding/binary"

	"tradegw/internal/schema"
)

const (
	AccountQueryPayloadSize = 12
	AccountPayloadSize      = 52
	TimeQueryPayloadSize    = 12
	CurrentTimePayloadSize  = 20
	GatewayErrorPayloadSize = 78
)

// EncodeAccountQuery serializes an account summary request into a fixed-size
// payload.
func EncodeAccountQuery(dst []byte, v schema.AccountQuery) []byte {
	if cap(dst) < AccountQueryPayloadSize {
		dst = make([]byte, AccountQueryPayloadSize)
	} else {
		dst = dst[:AccountQueryPayloadSize]
	}

	putHeader(dst, schema.MsgAccountQuery)
	binary.BigEndian.PutUint64(dst[4:12], v.ReqID)

	return dst
}

// DecodeAccountQuery parses a fixed-size account summary request payload.
func DecodeAccountQuery(src []byte) (schema.AccountQuery, bool) {
	if !checkPayload(src, schema.MsgAccountQuery, AccountQueryPayloadSize) {
		return schema.AccountQuery{}, false
	}
	return schema.AccountQuery{
		ReqID: binary.BigEndian.Uint64(src[4:12]),
	}, true
}

// EncodeAccount serializes an account summary into a fixed-size payload.
func EncodeAccount(dst []byte, v schema.Account) []byte {
	if cap(dst) < AccountPayloadSize {
		dst = make([]byte, AccountPayloadSize)
	} else {
		dst = dst[:AccountPayloadSize]
	}

	putHeader(dst, schema.MsgAccount)
	binary.BigEndian.PutUint64(dst[4:12], v.ReqID)
	copy(dst[12:28], v.Account[:])
	binary.BigEndian.PutUint64(dst[28:36], uint64(v.Equity))
	binary.BigEndian.PutUint64(dst[36:44], uint64(v.Cash))
	binary.BigEndian.PutUint64(dst[44:52], uint64(v.Maintenance))

	return dst
}

// DecodeAccount parses a fixed-size account summary payload.
func DecodeAccount(src []byte) (schema.Account, bool) {
	if !checkPayload(src, schema.MsgAccount, AccountPayloadSize) {
		return schema.Account{}, false
	}
	v := schema.Account{
		ReqID:       binary.BigEndian.Uint64(src[4:12]),
		Equity:      schema.Price(int64(binary.BigEndian.Uint64(src[28:36]))),
		Cash:        schema.Price(int64(binary.BigEndian.Uint64(src[36:44]))),
		Maintenance: schema.Price(int64(binary.BigEndian.Uint64(src[44:52]))),
	}
	copy(v.Account[:], src[12:28])
	return v, true
}

// EncodeTimeQuery serializes a gateway clock request into a fixed-size
// payload.
func EncodeTimeQuery(dst []byte, v schema.TimeQuery) []byte {
	if cap(dst) < TimeQueryPayloadSize {
		dst = make([]byte, TimeQueryPayloadSize)
	} else {
		dst = dst[:TimeQueryPayloadSize]
	}

	putHeader(dst, schema.MsgTimeQuery)
	binary.BigEndian.PutUint64(dst[4:12], v.ReqID)

	return dst
}

// DecodeTimeQuery parses a fixed-size gateway clock request payload.
func DecodeTimeQuery(src []byte) (schema.TimeQuery, bool) {
	if !checkPayload(src, schema.MsgTimeQuery, TimeQueryPayloadSize) {
		return schema.TimeQuery{}, false
	}
	return schema.TimeQuery{
		ReqID: binary.BigEndian.Uint64(src[4:12]),
	}, true
}

// EncodeCurrentTime serializes a gateway clock answer into a fixed-size
// payload.
func EncodeCurrentTime(dst []byte, v schema.CurrentTime) []byte {
	if cap(dst) < CurrentTimePayloadSize {
		dst = make([]byte, CurrentTimePayloadSize)
	} else {
		dst = dst[:CurrentTimePayloadSize]
	}

	putHeader(dst, schema.MsgCurrentTime)
	binary.BigEndian.PutUint64(dst[4:12], v.ReqID)
	binary.BigEndian.PutUint64(dst[12:20], uint64(v.TimeNano))

	return dst
}

// DecodeCurrentTime parses a fixed-size gateway clock answer payload.
func DecodeCurrentTime(src []byte) (schema.CurrentTime, bool) {
	if !checkPayload(src, schema.MsgCurrentTime, CurrentTimePayloadSize) {
		return schema.CurrentTime{}, false
	}
	return schema.CurrentTime{
		ReqID:    binary.BigEndian.Uint64(src[4:12]),
		TimeNano: int64(binary.BigEndian.Uint64(src[12:20])),
	}, true
}

// EncodeGatewayError serializes a request-scoped failure into a fixed-size
// payload.
func EncodeGatewayError(dst []byte, v schema.GatewayError) []byte {
	if cap(dst) < GatewayErrorPayloadSize {
		dst = make([]byte, GatewayErrorPayloadSize)
	} else {
		dst = dst[:GatewayErrorPayloadSize]
	}

	putHeader(dst, schema.MsgGatewayError)
	binary.BigEndian.PutUint64(dst[4:12], v.ReqID)
	binary.BigEndian.PutUint16(dst[12:14], v.Code)
	copy(dst[14:78], v.Text[:])

	return dst
}

// DecodeGatewayError parses a fixed-size request-scoped failure payload.
func DecodeGatewayError(src []byte) (schema.GatewayError, bool) {
	if !checkPayload(src, schema.MsgGatewayError, GatewayErrorPayloadSize) {
		return schema.GatewayError{}, false
	}
	v := schema.GatewayError{
		ReqID: binary.BigEndian.Uint64(src[4:12]),
		Code:  binary.BigEndian.Uint16(src[12:14]),
	}
	copy(v.Text[:], src[14:78])
	return v, true
}
