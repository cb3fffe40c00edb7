package codec

import "tradegw/internal/schema"

// Message is one decoded payload with its type tag. Known types carry the
// typed struct in Body; types outside the catalog keep Type, Version, and
// Raw so a version-skewed peer never breaks the stream.
type Message struct {
	Type    schema.MsgType
	Version uint16
	Body    any
	Raw     []byte
}

// DecodeMessage decodes any catalog payload. A false return means a known
// type failed its size check; unknown types return true with a nil Body.
func DecodeMessage(payload []byte) (Message, bool) {
	m := Message{
		Type:    PayloadType(payload),
		Version: PayloadVersion(payload),
		Raw:     payload,
	}

	var ok bool
	switch m.Type {
	case schema.MsgHello:
		m.Body, ok = DecodeHello(payload)
	case schema.MsgStartSession:
		m.Body, ok = DecodeStartSession(payload)
	case schema.MsgPing:
		m.Body, ok = DecodePing(payload)
	case schema.MsgSubscribe:
		m.Body, ok = DecodeSubscribe(payload)
	case schema.MsgUnsubscribe:
		m.Body, ok = DecodeUnsubscribe(payload)
	case schema.MsgPlaceOrder:
		m.Body, ok = DecodePlaceOrder(payload)
	case schema.MsgCancelOrder:
		m.Body, ok = DecodeCancelOrder(payload)
	case schema.MsgOpenOrdersQuery:
		m.Body, ok = DecodeOpenOrdersQuery(payload)
	case schema.MsgSnapshotQuery:
		m.Body, ok = DecodeSnapshotQuery(payload)
	case schema.MsgAccountQuery:
		m.Body, ok = DecodeAccountQuery(payload)
	case schema.MsgTimeQuery:
		m.Body, ok = DecodeTimeQuery(payload)
	case schema.MsgHelloAck:
		m.Body, ok = DecodeHelloAck(payload)
	case schema.MsgSessionAccept:
		m.Body, ok = DecodeSessionAccept(payload)
	case schema.MsgSessionReject:
		m.Body, ok = DecodeSessionReject(payload)
	case schema.MsgPong:
		m.Body, ok = DecodePong(payload)
	case schema.MsgTick:
		m.Body, ok = DecodeTick(payload)
	case schema.MsgOrderAck:
		m.Body, ok = DecodeOrderAck(payload)
	case schema.MsgOrderStatus:
		m.Body, ok = DecodeOrderStatus(payload)
	case schema.MsgExecution:
		m.Body, ok = DecodeExecution(payload)
	case schema.MsgOrderReject:
		m.Body, ok = DecodeOrderReject(payload)
	case schema.MsgSnapshot:
		m.Body, ok = DecodeSnapshot(payload)
	case schema.MsgAccount:
		m.Body, ok = DecodeAccount(payload)
	case schema.MsgCurrentTime:
		m.Body, ok = DecodeCurrentTime(payload)
	case schema.MsgOpenOrder:
		m.Body, ok = DecodeOpenOrder(payload)
	case schema.MsgGatewayError:
		m.Body, ok = DecodeGatewayError(payload)
	default:
		return m, true
	}

	if !ok {
		m.Body = nil
		return m, false
	}
	return m, true
}
