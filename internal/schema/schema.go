package schema

// WireVersion is the protocol version this build speaks.
const WireVersion uint16 = 1

// MsgType identifies a wire message. Values below 32 are client requests,
// values from 32 up are gateway events.
type MsgType uint16

const (
	MsgUnknown MsgType = iota
	MsgHello
	MsgStartSession
	MsgPing
	MsgSubscribe
	MsgUnsubscribe
	MsgPlaceOrder
	MsgCancelOrder
	MsgOpenOrdersQuery
	MsgSnapshotQuery
	MsgAccountQuery
	MsgTimeQuery
)

const (
	MsgHelloAck MsgType = iota + 32
	MsgSessionAccept
	MsgSessionReject
	MsgPong
	MsgTick
	MsgOrderAck
	MsgOrderStatus
	MsgExecution
	MsgOrderReject
	MsgSnapshot
	MsgAccount
	MsgCurrentTime
	MsgOpenOrder
	MsgGatewayError
)

// TickSnapshot is the client-side cache entry for one (symbol, kind) stream.
// Late subscribers receive the latest snapshot before live ticks.
type TickSnapshot struct {
	Symbol   string
	Kind     TickKind
	Seq      uint64
	TsNano   int64
	Bid      Price
	BidSize  Quantity
	Ask      Price
	AskSize  Quantity
	Last     Price
	LastSize Quantity
}

// OrderSpec is the caller-facing order description.
type OrderSpec struct {
	Symbol      string
	Side        OrderSide
	Type        OrderType
	TimeInForce TimeInForce
	Qty         Quantity
	LimitPrice  Price
}
