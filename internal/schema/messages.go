package schema

// TickKind describes which market data stream a subscription follows.
type TickKind uint16

const (
	TickKindUnknown TickKind = iota
	TickKindTrades
	TickKindQuotes
	TickKindDepth
)

func (k TickKind) String() string {
	switch k {
	case TickKindTrades:
		return "trades"
	case TickKindQuotes:
		return "quotes"
	case TickKindDepth:
		return "depth"
	default:
		return "unknown"
	}
}

// ParseTickKind is the inverse of TickKind.String.
func ParseTickKind(s string) TickKind {
	switch s {
	case "trades":
		return TickKindTrades
	case "quotes":
		return TickKindQuotes
	case "depth":
		return TickKindDepth
	default:
		return TickKindUnknown
	}
}

// OrderSide describes order direction.
type OrderSide uint16

const (
	OrderSideUnknown OrderSide = iota
	OrderSideBuy
	OrderSideSell
)

func (s OrderSide) String() string {
	switch s {
	case OrderSideBuy:
		return "buy"
	case OrderSideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// OrderType describes order type.
type OrderType uint16

const (
	OrderTypeUnknown OrderType = iota
	OrderTypeLimit
	OrderTypeMarket
)

func (t OrderType) String() string {
	switch t {
	case OrderTypeLimit:
		return "limit"
	case OrderTypeMarket:
		return "market"
	default:
		return "unknown"
	}
}

// TimeInForce describes order time-in-force.
type TimeInForce uint16

const (
	TimeInForceUnknown TimeInForce = iota
	TimeInForceDay
	TimeInForceGTC
	TimeInForceIOC
	TimeInForceFOK
)

func (f TimeInForce) String() string {
	switch f {
	case TimeInForceDay:
		return "day"
	case TimeInForceGTC:
		return "gtc"
	case TimeInForceIOC:
		return "ioc"
	case TimeInForceFOK:
		return "fok"
	default:
		return "unknown"
	}
}

// OrderStatusCode is the gateway-reported order status on the wire.
type OrderStatusCode uint16

const (
	StatusUnknown OrderStatusCode = iota
	StatusSubmitted
	StatusPartFilled
	StatusFilled
	StatusCancelled
	StatusRejected
)

// RejectCode explains a SessionReject.
type RejectCode uint16

const (
	RejectNone RejectCode = iota
	RejectIdentityConflict
	RejectVersion
)

// Hello opens version negotiation after the connection preamble.
type Hello struct {
	MinVersion uint16
	MaxVersion uint16
}

// HelloAck is the gateway reply to Hello.
type HelloAck struct {
	Version  uint16
	TimeNano int64
}

// StartSession binds the connection to a client identity. The gateway
// refuses a ClientID that already has a live session.
type StartSession struct {
	ClientID int32
}

// SessionAccept completes the handshake. NextOrderID seeds the client-side
// order id allocator; HeartbeatNano is the ping cadence the gateway expects.
type SessionAccept struct {
	NextOrderID   uint64
	HeartbeatNano int64
}

// SessionReject refuses a StartSession.
type SessionReject struct {
	Code   RejectCode
	Reason Str64
}

// Ping carries the sender clock for liveness checks.
type Ping struct {
	TimeNano int64
}

// Pong echoes the gateway clock back.
type Pong struct {
	TimeNano int64
}

// Subscribe opens a market data stream. ReqID doubles as the stream id
// carried by subsequent Tick events.
type Subscribe struct {
	ReqID  uint64
	Symbol Str16
	Kind   TickKind
}

// Unsubscribe closes the stream opened with the same ReqID.
type Unsubscribe struct {
	ReqID uint64
}

// PlaceOrder submits an order. OrderID comes from the SessionAccept seed
// and is never reused within a session lifetime.
type PlaceOrder struct {
	OrderID     uint64
	Symbol      Str16
	Side        OrderSide
	Type        OrderType
	TimeInForce TimeInForce
	Flags       uint16
	Qty         Quantity
	LimitPrice  Price
}

// CancelOrder requests cancellation of a working order.
type CancelOrder struct {
	OrderID uint64
}

// OpenOrdersQuery asks for every order the gateway still tracks for this
// client. The gateway answers with OpenOrder rows; the row with Last set
// closes the report.
type OpenOrdersQuery struct {
	ReqID uint64
}

// SnapshotQuery asks for a one-shot market data snapshot.
type SnapshotQuery struct {
	ReqID  uint64
	Symbol Str16
	Kind   TickKind
}

// AccountQuery asks for an account summary.
type AccountQuery struct {
	ReqID uint64
}

// TimeQuery asks for the gateway clock.
type TimeQuery struct {
	ReqID uint64
}

// Tick is one market data update on a subscribed stream. Seq increases per
// stream.
type Tick struct {
	SubID    uint64
	Seq      uint64
	Kind     TickKind
	Flags    uint16
	TsNano   int64
	Bid      Price
	BidSize  Quantity
	Ask      Price
	AskSize  Quantity
	Last     Price
	LastSize Quantity
}

// OrderAck confirms the gateway accepted an order for working.
type OrderAck struct {
	OrderID uint64
	Seq     uint64
	TsNano  int64
}

// OrderStatus reports a working-state change. FilledQty is cumulative and
// Seq increases per order.
type OrderStatus struct {
	OrderID   uint64
	Seq       uint64
	Status    OrderStatusCode
	Flags     uint16
	FilledQty Quantity
	LeavesQty Quantity
	AvgPrice  Price
	TsNano    int64
}

// Execution reports a single fill.
type Execution struct {
	OrderID uint64
	Seq     uint64
	ExecID  Str32
	Qty     Quantity
	Price   Price
	TsNano  int64
}

// OrderReject reports a terminal gateway-side refusal.
type OrderReject struct {
	OrderID uint64
	Seq     uint64
	Code    uint16
	Reason  Str64
}

// Snapshot answers a SnapshotQuery.
type Snapshot struct {
	ReqID    uint64
	Symbol   Str16
	Kind     TickKind
	Flags    uint16
	TsNano   int64
	Bid      Price
	BidSize  Quantity
	Ask      Price
	AskSize  Quantity
	Last     Price
	LastSize Quantity
}

// Account answers an AccountQuery. Money values share the price scale.
type Account struct {
	ReqID       uint64
	Account     Str16
	Equity      Price
	Cash        Price
	Maintenance Price
}

// CurrentTime answers a TimeQuery.
type CurrentTime struct {
	ReqID    uint64
	TimeNano int64
}

// OpenOrder is one row of an OpenOrdersQuery report. Seq is the highest
// per-order event sequence folded into the row, so a reconciling client can
// drop stale duplicates that arrive after the report.
type OpenOrder struct {
	ReqID       uint64
	OrderID     uint64
	Seq         uint64
	Symbol      Str16
	Side        OrderSide
	Type        OrderType
	TimeInForce TimeInForce
	Status      OrderStatusCode
	Last        uint16
	Qty         Quantity
	FilledQty   Quantity
	LeavesQty   Quantity
	AvgPrice    Price
}

// GatewayError reports a request-scoped failure.
type GatewayError struct {
	ReqID uint64
	Code  uint16
	Text  Str64
}
