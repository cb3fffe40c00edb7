package codec

import (
	"testing"

	"tradegw/internal/schema"
)

func TestPlaceOrderRoundTrip(t *testing.T) {
	orig := schema.PlaceOrder{
		OrderID:     1001,
		Symbol:      schema.NewStr16("AAPL"),
		Side:        schema.OrderSideBuy,
		Type:        schema.OrderTypeLimit,
		TimeInForce: schema.TimeInForceDay,
		Qty:         100_00000000,
		LimitPrice:  150_00000000,
	}

	payload := EncodePlaceOrder(nil, orig)
	if len(payload) != PlaceOrderPayloadSize {
		t.Fatalf("payload size %d, want %d", len(payload), PlaceOrderPayloadSize)
	}
	if PayloadType(payload) != schema.MsgPlaceOrder {
		t.Fatalf("payload type %d", PayloadType(payload))
	}

	decoded, ok := DecodePlaceOrder(payload)
	if !ok {
		t.Fatalf("decode failed")
	}
	if decoded != orig {
		t.Fatalf("place order round-trip mismatch: got %+v want %+v", decoded, orig)
	}
}

func TestTickRoundTrip(t *testing.T) {
	orig := schema.Tick{
		SubID:    7,
		Seq:      42,
		Kind:     schema.TickKindQuotes,
		TsNano:   1700000000000000000,
		Bid:      149_99000000,
		BidSize:  300_00000000,
		Ask:      150_01000000,
		AskSize:  200_00000000,
		Last:     150_00000000,
		LastSize: 100_00000000,
	}

	payload := EncodeTick(nil, orig)
	decoded, ok := DecodeTick(payload)
	if !ok {
		t.Fatalf("decode failed")
	}
	if decoded != orig {
		t.Fatalf("tick round-trip mismatch: got %+v want %+v", decoded, orig)
	}
}

func TestSessionRejectRoundTrip(t *testing.T) {
	orig := schema.SessionReject{
		Code:   schema.RejectIdentityConflict,
		Reason: schema.NewStr64("client id 7 already connected"),
	}

	payload := EncodeSessionReject(nil, orig)
	decoded, ok := DecodeSessionReject(payload)
	if !ok {
		t.Fatalf("decode failed")
	}
	if decoded != orig {
		t.Fatalf("session reject round-trip mismatch: got %+v want %+v", decoded, orig)
	}
}

func TestExecutionRoundTrip(t *testing.T) {
	orig := schema.Execution{
		OrderID: 1002,
		Seq:     3,
		ExecID:  schema.NewStr32("exec-0001"),
		Qty:     40_00000000,
		Price:   150_00000000,
		TsNano:  1700000000000000001,
	}

	payload := EncodeExecution(nil, orig)
	decoded, ok := DecodeExecution(payload)
	if !ok {
		t.Fatalf("decode failed")
	}
	if decoded != orig {
		t.Fatalf("execution round-trip mismatch: got %+v want %+v", decoded, orig)
	}
}

func TestOpenOrderRoundTrip(t *testing.T) {
	orig := schema.OpenOrder{
		ReqID:       9,
		OrderID:     1003,
		Seq:         17,
		Symbol:      schema.NewStr16("MSFT"),
		Side:        schema.OrderSideSell,
		Type:        schema.OrderTypeLimit,
		TimeInForce: schema.TimeInForceGTC,
		Status:      schema.StatusPartFilled,
		Last:        1,
		Qty:         100_00000000,
		FilledQty:   40_00000000,
		LeavesQty:   60_00000000,
		AvgPrice:    321_50000000,
	}

	payload := EncodeOpenOrder(nil, orig)
	decoded, ok := DecodeOpenOrder(payload)
	if !ok {
		t.Fatalf("decode failed")
	}
	if decoded != orig {
		t.Fatalf("open order round-trip mismatch: got %+v want %+v", decoded, orig)
	}
}

func TestDecodeRejectsWrongType(t *testing.T) {
	payload := EncodePing(nil, schema.Ping{TimeNano: 1})
	if _, ok := DecodePong(payload); ok {
		t.Fatalf("pong decode accepted a ping payload")
	}
}

func TestDecodeRejectsShortPayload(t *testing.T) {
	payload := EncodeTick(nil, schema.Tick{SubID: 1})
	if _, ok := DecodeTick(payload[:TickPayloadSize-1]); ok {
		t.Fatalf("decode accepted a truncated payload")
	}
}

func TestPayloadTypeUnknown(t *testing.T) {
	if PayloadType(nil) != schema.MsgUnknown {
		t.Fatalf("nil payload type")
	}
	if PayloadType([]byte{0xff}) != schema.MsgUnknown {
		t.Fatalf("one-byte payload type")
	}
}

func TestEncodeReusesBuffer(t *testing.T) {
	buf := make([]byte, 0, 256)
	payload := EncodeTick(buf, schema.Tick{SubID: 1})
	if &payload[0] != &buf[:1][0] {
		t.Fatalf("encode allocated despite sufficient capacity")
	}
}
