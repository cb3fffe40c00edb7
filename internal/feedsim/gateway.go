package feedsim

import (
	"net"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradegw/internal/codec"
	"tradegw/internal/schema"
	"tradegw/pkg/uds"
)

const (
	handshakeDeadline = 5 * time.Second
	connSendBuffer    = 512

	codeUnknownSymbol uint16 = 100
	codeRejectMargin  uint16 = 2001
	codeRejectQty     uint16 = 2002
	codeRejectSymbol  uint16 = 2003
)

// Gateway is the simulated brokerage gateway. One instance accepts any
// number of sequential sessions per client id and keeps per-client order
// state across disconnects.
type Gateway struct {
	cfg    Config
	market *market

	ln   net.Listener
	done chan struct{}

	mu     sync.Mutex
	active map[int32]*clientConn
	books  map[int32]*clientBook
	conns  map[*clientConn]struct{}

	closed  atomic.Bool
	stalled atomic.Bool
	wg      sync.WaitGroup
}

// NewGateway builds a stopped gateway; call Start to listen.
func NewGateway(cfg Config) (*Gateway, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Gateway{
		cfg:    cfg,
		market: newMarket(cfg.Symbols, cfg.Seed),
		done:   make(chan struct{}),
		active: make(map[int32]*clientConn),
		books:  make(map[int32]*clientBook),
		conns:  make(map[*clientConn]struct{}),
	}, nil
}

// Start listens on the configured endpoint and begins accepting sessions.
func (g *Gateway) Start() error {
	if path, ok := strings.CutPrefix(g.cfg.Endpoint, "unix://"); ok {
		srv, err := uds.NewServer(path)
		if err != nil {
			return err
		}
		if err := srv.Listen(); err != nil {
			return errors.Wrap(err, "listen unix").With("path", path)
		}
		g.ln = srv
	} else {
		addr := strings.TrimPrefix(g.cfg.Endpoint, "tcp://")
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return errors.Wrap(err, "listen tcp").With("addr", addr)
		}
		g.ln = ln
	}

	g.wg.Add(1)
	go g.acceptLoop()
	logs.Infof("feedsim listening, endpoint: %s", g.Endpoint())
	return nil
}

// Endpoint returns the dialable address of the running listener. With a
// ":0" config this is the actual bound port.
func (g *Gateway) Endpoint() string {
	if srv, ok := g.ln.(*uds.Server); ok {
		return "unix://" + srv.Path()
	}
	return g.ln.Addr().String()
}

// Stall mutes every live session without closing it: no pongs, no ticks,
// no order events. Handshakes still complete, so reconnecting clients land
// in another mute session until the stall is lifted. Heartbeat staleness
// is the only way a client can notice.
func (g *Gateway) Stall(v bool) {
	g.stalled.Store(v)
}

// DropSessions force-closes every live session, keeping the listener up.
// Clients see a connection loss and reconnect.
func (g *Gateway) DropSessions() {
	g.mu.Lock()
	conns := make([]*clientConn, 0, len(g.conns))
	for c := range g.conns {
		conns = append(conns, c)
	}
	g.mu.Unlock()
	for _, c := range conns {
		c.teardown()
	}
}

// Close stops the listener and every session, then waits for all
// goroutines to finish.
func (g *Gateway) Close() error {
	if g.closed.Swap(true) {
		return nil
	}
	close(g.done)
	err := g.ln.Close()
	g.DropSessions()
	g.wg.Wait()
	return err
}

func (g *Gateway) acceptLoop() {
	defer g.wg.Done()
	for {
		nc, err := g.ln.Accept()
		if err != nil {
			if g.closed.Load() {
				return
			}
			logs.Warnf("feedsim accept, err: %+v", err)
			continue
		}
		g.wg.Add(1)
		go g.handle(nc)
	}
}

// clientConn is one live session. All writes funnel through out so frames
// never interleave.
type clientConn struct {
	gw       *Gateway
	nc       net.Conn
	fw       *codec.FrameWriter
	out      chan []byte
	done     chan struct{}
	once     sync.Once
	clientID int32

	mu      sync.Mutex
	streams map[uint64]*stream
}

type stream struct {
	symbol string
	kind   schema.TickKind
	stop   chan struct{}
}

func (c *clientConn) send(payload []byte) {
	if c.gw.stalled.Load() {
		return
	}
	select {
	case c.out <- payload:
	case <-c.done:
	}
}

func (c *clientConn) teardown() {
	c.once.Do(func() {
		close(c.done)
		_ = c.nc.Close()
		g := c.gw
		g.mu.Lock()
		delete(g.conns, c)
		if g.active[c.clientID] == c {
			delete(g.active, c.clientID)
		}
		g.mu.Unlock()
	})
}

func (g *Gateway) handle(nc net.Conn) {
	defer g.wg.Done()

	c := &clientConn{
		gw:      g,
		nc:      nc,
		fw:      codec.NewFrameWriter(nc),
		out:     make(chan []byte, connSendBuffer),
		done:    make(chan struct{}),
		streams: make(map[uint64]*stream),
	}
	fr := codec.NewFrameReader(nc, g.cfg.MaxPayload)

	book, ok := g.handshake(c, fr)
	if !ok {
		_ = nc.Close()
		return
	}

	g.wg.Add(1)
	go c.writeLoop(g)

	for {
		payload, err := fr.Read()
		if err != nil {
			break
		}
		g.dispatch(c, book, payload)
	}
	c.teardown()
}

// handshake answers the preamble, version, and identity sequence. A client
// id with a live session is refused; everything about that id lives on in
// its book.
func (g *Gateway) handshake(c *clientConn, fr *codec.FrameReader) (*clientBook, bool) {
	nc := c.nc
	_ = nc.SetDeadline(time.Now().Add(handshakeDeadline))
	defer func() { _ = nc.SetDeadline(time.Time{}) }()

	if err := codec.ReadPreamble(nc); err != nil {
		return nil, false
	}
	payload, err := fr.Read()
	if err != nil {
		return nil, false
	}
	hello, ok := codec.DecodeHello(payload)
	if !ok {
		return nil, false
	}
	version := schema.WireVersion
	if hello.MinVersion > schema.WireVersion || hello.MaxVersion < schema.WireVersion {
		version = 0
	}
	ack := schema.HelloAck{Version: version, TimeNano: time.Now().UnixNano()}
	if err := c.fw.Write(codec.EncodeHelloAck(nil, ack)); err != nil || version == 0 {
		return nil, false
	}

	payload, err = fr.Read()
	if err != nil {
		return nil, false
	}
	start, ok := codec.DecodeStartSession(payload)
	if !ok {
		return nil, false
	}

	g.mu.Lock()
	if _, live := g.active[start.ClientID]; live {
		g.mu.Unlock()
		reject := schema.SessionReject{
			Code:   schema.RejectIdentityConflict,
			Reason: schema.NewStr64("client id already bound"),
		}
		_ = c.fw.Write(codec.EncodeSessionReject(nil, reject))
		logs.Warnf("feedsim refused duplicate client id %d", start.ClientID)
		return nil, false
	}
	book := g.books[start.ClientID]
	if book == nil {
		book = newClientBook(g.cfg.NextOrderID)
		g.books[start.ClientID] = book
	}
	c.clientID = start.ClientID
	g.active[start.ClientID] = c
	g.conns[c] = struct{}{}
	g.mu.Unlock()

	accept := schema.SessionAccept{
		NextOrderID:   book.seed(),
		HeartbeatNano: int64(g.cfg.Heartbeat),
	}
	if err := c.fw.Write(codec.EncodeSessionAccept(nil, accept)); err != nil {
		c.teardown()
		return nil, false
	}
	return book, true
}

func (c *clientConn) writeLoop(g *Gateway) {
	defer g.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case payload := <-c.out:
			if err := c.fw.Write(payload); err != nil {
				c.teardown()
				return
			}
		}
	}
}

// emit routes a payload to the client's live session, if any. Orders keep
// moving while a client is away; missed events surface at reconcile.
func (g *Gateway) emit(clientID int32, payload []byte) {
	g.mu.Lock()
	c := g.active[clientID]
	g.mu.Unlock()
	if c != nil {
		c.send(payload)
	}
}

func (g *Gateway) dispatch(c *clientConn, book *clientBook, payload []byte) {
	switch codec.PayloadType(payload) {
	case schema.MsgPing:
		if _, ok := codec.DecodePing(payload); ok {
			pong := schema.Pong{TimeNano: time.Now().UnixNano()}
			c.send(codec.EncodePong(nil, pong))
		}
	case schema.MsgSubscribe:
		if sub, ok := codec.DecodeSubscribe(payload); ok {
			g.handleSubscribe(c, sub)
		}
	case schema.MsgUnsubscribe:
		if unsub, ok := codec.DecodeUnsubscribe(payload); ok {
			c.stopStream(unsub.ReqID)
		}
	case schema.MsgPlaceOrder:
		if pl, ok := codec.DecodePlaceOrder(payload); ok {
			g.handlePlace(c, book, pl)
		}
	case schema.MsgCancelOrder:
		if cancel, ok := codec.DecodeCancelOrder(payload); ok {
			if payload, ok := book.cancel(cancel.OrderID); ok {
				c.send(payload)
			}
		}
	case schema.MsgOpenOrdersQuery:
		if q, ok := codec.DecodeOpenOrdersQuery(payload); ok {
			g.handleOpenOrders(c, book, q)
		}
	case schema.MsgSnapshotQuery:
		if q, ok := codec.DecodeSnapshotQuery(payload); ok {
			g.handleSnapshot(c, q)
		}
	case schema.MsgAccountQuery:
		if q, ok := codec.DecodeAccountQuery(payload); ok {
			acct := schema.Account{
				ReqID:       q.ReqID,
				Account:     schema.NewStr16(g.cfg.Account.Name),
				Equity:      g.cfg.Account.Equity,
				Cash:        g.cfg.Account.Cash,
				Maintenance: g.cfg.Account.Maintenance,
			}
			c.send(codec.EncodeAccount(nil, acct))
		}
	case schema.MsgTimeQuery:
		if q, ok := codec.DecodeTimeQuery(payload); ok {
			now := schema.CurrentTime{ReqID: q.ReqID, TimeNano: time.Now().UnixNano()}
			c.send(codec.EncodeCurrentTime(nil, now))
		}
	default:
		// Unknown request types are ignored, matching a tolerant gateway.
	}
}

func (g *Gateway) handleSubscribe(c *clientConn, sub schema.Subscribe) {
	symbol := sub.Symbol.String()
	if !g.market.knows(symbol) {
		gwErr := schema.GatewayError{
			ReqID: sub.ReqID,
			Code:  codeUnknownSymbol,
			Text:  schema.NewStr64("unknown symbol: " + symbol),
		}
		c.send(codec.EncodeGatewayError(nil, gwErr))
		return
	}

	c.mu.Lock()
	if _, exists := c.streams[sub.ReqID]; exists {
		c.mu.Unlock()
		return
	}
	st := &stream{symbol: symbol, kind: sub.Kind, stop: make(chan struct{})}
	c.streams[sub.ReqID] = st
	c.mu.Unlock()

	g.wg.Add(1)
	go g.streamTicks(c, sub.ReqID, st)
}

func (c *clientConn) stopStream(subID uint64) {
	c.mu.Lock()
	st, ok := c.streams[subID]
	if ok {
		delete(c.streams, subID)
	}
	c.mu.Unlock()
	if ok {
		close(st.stop)
	}
}

func (g *Gateway) streamTicks(c *clientConn, subID uint64, st *stream) {
	defer g.wg.Done()
	ticker := time.NewTicker(g.cfg.TickInterval)
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-st.stop:
			return
		case <-c.done:
			return
		case <-g.done:
			return
		case <-ticker.C:
			q, ok := g.market.next(st.symbol)
			if !ok {
				return
			}
			seq++
			tick := schema.Tick{
				SubID:    subID,
				Seq:      seq,
				Kind:     st.kind,
				TsNano:   q.TsNano,
				Bid:      q.Bid,
				BidSize:  q.BidSize,
				Ask:      q.Ask,
				AskSize:  q.AskSize,
				Last:     q.Last,
				LastSize: q.LastSize,
			}
			c.send(codec.EncodeTick(nil, tick))
		}
	}
}

func (g *Gateway) handlePlace(c *clientConn, book *clientBook, pl schema.PlaceOrder) {
	symbol := pl.Symbol.String()
	o, fresh := book.admit(pl)
	if !fresh {
		return
	}

	switch {
	case pl.Qty <= 0:
		if payload, ok := book.reject(o.id, codeRejectQty, "invalid quantity"); ok {
			c.send(payload)
		}
		return
	case !g.market.knows(symbol):
		if payload, ok := book.reject(o.id, codeRejectSymbol, "unknown symbol: "+symbol); ok {
			c.send(payload)
		}
		return
	case g.cfg.RejectSymbol != "" && symbol == g.cfg.RejectSymbol:
		if payload, ok := book.reject(o.id, codeRejectMargin, "insufficient margin"); ok {
			c.send(payload)
		}
		return
	}

	if payload, ok := book.ack(o.id); ok {
		c.send(payload)
	}
	g.wg.Add(1)
	go g.runFills(c.clientID, book, o.id)
}

// runFills walks the configured fill plan against the book. Events are
// emitted to whichever session is live when each fill lands; the book
// advances regardless, so an absent client catches up at reconcile.
func (g *Gateway) runFills(clientID int32, book *clientBook, orderID uint64) {
	defer g.wg.Done()

	spec, ok := book.orderSpec(orderID)
	if !ok {
		return
	}
	remaining := spec.qty
	for i, ratio := range g.cfg.FillRatios {
		select {
		case <-g.done:
			return
		case <-time.After(g.cfg.FillDelay):
		}

		var qty schema.Quantity
		if i == len(g.cfg.FillRatios)-1 {
			qty = remaining
		} else {
			qty = schema.Quantity(float64(spec.qty) * ratio)
		}
		if qty <= 0 {
			continue
		}
		remaining -= qty

		px := g.market.fillPrice(spec.symbol, spec.side, spec.limit)
		payload, ok := book.fill(orderID, qty, px)
		if !ok {
			return
		}
		g.emit(clientID, payload)
		if g.cfg.DuplicateFills {
			g.emit(clientID, payload)
		}
	}
}

func (g *Gateway) handleOpenOrders(c *clientConn, book *clientBook, q schema.OpenOrdersQuery) {
	rows := book.openRows(q.ReqID)
	if len(rows) == 0 {
		c.send(codec.EncodeOpenOrder(nil, schema.OpenOrder{ReqID: q.ReqID, Last: 1}))
		return
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].OrderID < rows[j].OrderID })
	rows[len(rows)-1].Last = 1
	for _, row := range rows {
		c.send(codec.EncodeOpenOrder(nil, row))
	}
}

func (g *Gateway) handleSnapshot(c *clientConn, q schema.SnapshotQuery) {
	symbol := q.Symbol.String()
	quote, ok := g.market.next(symbol)
	if !ok {
		gwErr := schema.GatewayError{
			ReqID: q.ReqID,
			Code:  codeUnknownSymbol,
			Text:  schema.NewStr64("unknown symbol: " + symbol),
		}
		c.send(codec.EncodeGatewayError(nil, gwErr))
		return
	}
	snap := schema.Snapshot{
		ReqID:    q.ReqID,
		Symbol:   q.Symbol,
		Kind:     q.Kind,
		TsNano:   quote.TsNano,
		Bid:      quote.Bid,
		BidSize:  quote.BidSize,
		Ask:      quote.Ask,
		AskSize:  quote.AskSize,
		Last:     quote.Last,
		LastSize: quote.LastSize,
	}
	c.send(codec.EncodeSnapshot(nil, snap))
}

// newExecID builds a 32-char execution id from a UUID, fitting the wire
// field exactly.
func newExecID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
