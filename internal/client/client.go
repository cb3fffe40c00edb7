package client

import (
	"context"
	"crypto/tls"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradegw/internal/bus"
	"tradegw/internal/codec"
	"tradegw/internal/feed"
	"tradegw/internal/obs"
	"tradegw/internal/order"
	"tradegw/internal/pending"
	"tradegw/internal/schema"
	"tradegw/internal/session"
	"tradegw/pkg/exception"
)

const defaultEventQueueSize = 1024

// Config assembles one gateway client.
type Config struct {
	// Endpoint is the gateway address: "host:port", "tcp://host:port", or
	// "unix:///path/to.sock".
	Endpoint string
	// ClientID is this client's gateway identity. One live session per id.
	ClientID int32

	TLS              *tls.Config
	DialTimeout      time.Duration
	HandshakeTimeout time.Duration
	Heartbeat        time.Duration
	MissLimit        int
	Backoff          session.Backoff
	MaxAttempts      int

	WriteQueueSize int
	WriteRate      float64
	WriteBurst     int
	WriteTimeout   time.Duration
	MaxPayload     uint32
	// OfflineOrderQueue parks order traffic while the session is down; 0
	// fails submits immediately instead.
	OfflineOrderQueue int

	// SubscriberDepth is the default per-subscription tick queue length.
	SubscriberDepth int
	// EventQueueSize bounds the inbound order event queue between the read
	// loop and order application.
	EventQueueSize int

	// RequestCeiling and RequestTimeout bound correlated requests.
	RequestCeiling int
	RequestTimeout time.Duration

	// Journal receives every applied order transition. Optional; its
	// lifecycle belongs to the caller.
	Journal order.Appender
	// Store mirrors order rows to persistent storage. Optional.
	Store *order.Store

	Metrics *obs.Metrics
	Trace   *obs.TraceGenerator
}

// Client is the process-wide gateway connection: one session, multiplexed
// market data, the order book of record, and correlated queries.
type Client struct {
	cfg     Config
	metrics *obs.Metrics

	session *session.Manager
	mux     *feed.Mux
	orders  *order.Manager
	table   *pending.Table
	queue   *bus.Queue

	ingest atomic.Uint64

	mu        sync.Mutex
	upCh      chan struct{}
	stateSubs map[uint64]func(session.State)
	stateSeq  uint64

	running atomic.Bool
	closed  atomic.Bool
}

// New wires the client components together. The session stays down until
// Run.
func New(cfg Config) (*Client, error) {
	if cfg.Metrics == nil {
		cfg.Metrics = obs.NewMetrics()
	}
	if cfg.Trace == nil {
		cfg.Trace = obs.NewTraceGenerator(uint64(time.Now().UnixNano()))
	}
	if cfg.EventQueueSize <= 0 {
		cfg.EventQueueSize = defaultEventQueueSize
	}

	c := &Client{
		cfg:       cfg,
		metrics:   cfg.Metrics,
		upCh:      make(chan struct{}),
		stateSubs: make(map[uint64]func(session.State)),
		queue:     bus.NewQueue(cfg.EventQueueSize),
	}
	c.table = pending.NewTable(pending.Config{
		Ceiling: cfg.RequestCeiling,
		Timeout: cfg.RequestTimeout,
		Send:    func(payload []byte) error { return c.session.Send(payload) },
		Metrics: cfg.Metrics,
	})

	sess, err := session.NewManager(session.Config{
		Endpoint:         cfg.Endpoint,
		ClientID:         cfg.ClientID,
		TLS:              cfg.TLS,
		DialTimeout:      cfg.DialTimeout,
		HandshakeTimeout: cfg.HandshakeTimeout,
		Heartbeat:        cfg.Heartbeat,
		MissLimit:        cfg.MissLimit,
		Backoff:          cfg.Backoff,
		MaxAttempts:      cfg.MaxAttempts,
		WriteQueueSize:   cfg.WriteQueueSize,
		WriteRate:        cfg.WriteRate,
		WriteBurst:       cfg.WriteBurst,
		WriteTimeout:     cfg.WriteTimeout,
		MaxPayload:       cfg.MaxPayload,
		OfflineQueueSize: cfg.OfflineOrderQueue,
		OnFrame:          c.onFrame,
		OnUp:             c.onUp,
		OnDown:           c.onDown,
		OnState:          c.onState,
		Metrics:          cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	c.session = sess

	mux, err := feed.NewMux(feed.Config{
		SubscriberDepth: cfg.SubscriberDepth,
		Send:            sess.Send,
		NextID:          c.table.NextID,
		Metrics:         cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	c.mux = mux

	orders, err := order.NewManager(order.Config{
		Send:      sess.SendOrBuffer,
		AllocID:   sess.Session().AllocOrderID,
		NextReqID: c.table.NextID,
		Ready:     func() bool { return sess.Session().Epoch() > 0 },
		Journal:   cfg.Journal,
		Store:     cfg.Store,
		Metrics:   cfg.Metrics,
		Trace:     cfg.Trace,
	})
	if err != nil {
		return nil, err
	}
	c.orders = orders
	return c, nil
}

// Run connects and serves until ctx ends or the session fails for good
// (identity conflict, attempt cap). It owns the correlation sweeper and the
// order event consumer.
func (c *Client) Run(ctx context.Context) error {
	if c.closed.Load() {
		return exception.ErrSessionClosed
	}
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("client: already running")
	}
	defer c.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.table.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		c.queue.Run(ctx, func(e bus.Event) {
			c.orders.Apply(e.Header, e.Payload)
		})
	}()

	err := c.session.Run(ctx)
	cancel()
	c.table.FailAll(exception.ErrConnectionLost)
	wg.Wait()
	return err
}

// Close releases feeds and the event queue. Pending requests fail; a
// concurrent Run unwinds through its context.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.mux.Close()
	c.queue.Close()
	c.table.FailAll(exception.ErrSessionClosed)
	return nil
}

// IsHealthy reports an authenticated session with fresh heartbeats.
func (c *Client) IsHealthy() bool {
	return c.session.IsHealthy()
}

// State reports the session lifecycle state.
func (c *Client) State() session.State {
	return c.session.Session().State()
}

// Epoch reports how many handshakes have completed.
func (c *Client) Epoch() uint64 {
	return c.session.Session().Epoch()
}

// Metrics exposes the client's metric registry.
func (c *Client) Metrics() *obs.Metrics {
	return c.metrics
}

// OnSessionState registers a state listener. Listeners run on session
// goroutines and must be cheap.
func (c *Client) OnSessionState(fn func(session.State)) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	c.mu.Lock()
	c.stateSeq++
	id := c.stateSeq
	c.stateSubs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.stateSubs, id)
		c.mu.Unlock()
	}
}

// onFrame routes every inbound payload off the read loop. The buffer is
// reused by the frame reader: anything kept past return is copied here.
func (c *Client) onFrame(payload []byte) {
	switch codec.PayloadType(payload) {
	case schema.MsgTick:
		if tick, ok := codec.DecodeTick(payload); ok {
			c.mux.Dispatch(tick)
			return
		}
	case schema.MsgOrderAck, schema.MsgOrderStatus, schema.MsgExecution,
		schema.MsgOrderReject, schema.MsgOpenOrder:
		c.publishOrderEvent(payload)
		return
	case schema.MsgSnapshot, schema.MsgAccount, schema.MsgCurrentTime:
		msg, ok := codec.DecodeMessage(payload)
		if !ok {
			break
		}
		msg.Raw = nil
		if reqID, ok := reqIDOf(msg); ok {
			c.table.Resolve(reqID, msg)
		}
		return
	case schema.MsgGatewayError:
		if ge, ok := codec.DecodeGatewayError(payload); ok {
			c.table.Fail(ge.ReqID, &GatewayFault{Code: ge.Code, Text: ge.Text.String()})
			return
		}
	case schema.MsgHelloAck, schema.MsgSessionAccept, schema.MsgSessionReject:
		// Handshake traffic has no business mid-session.
		c.metrics.Inc(obs.CounterAnomalies)
		logs.Warnf("handshake frame type %d outside handshake", codec.PayloadType(payload))
		return
	default:
		// A newer gateway may speak types this build does not know. They
		// pass through without breaking the stream.
		return
	}
	c.metrics.Inc(obs.CounterDecodeErrors)
	logs.Errorf("undecodable frame, type: %d, len: %d", codec.PayloadType(payload), len(payload))
}

// publishOrderEvent detaches the payload from the read buffer and hands it
// to the apply queue. Orders must never be folded on the read goroutine.
func (c *Client) publishOrderEvent(payload []byte) {
	buf := make([]byte, len(payload))
	copy(buf, payload)
	now := time.Now().UnixNano()
	header := schema.NewHeader(codec.PayloadType(payload), schema.SourceGateway, c.ingest.Add(1), now, now)
	if err := c.queue.TryPublish(bus.Event{Header: header, Payload: buf}); err != nil {
		c.metrics.Inc(obs.CounterEventQueueDrops)
		logs.Errorf("order event dropped, type: %d, err: %+v", header.Type, err)
	}
}

// onUp replays every desired subscription and reconciles orders after each
// handshake. It runs before the serve loop drains traffic and must not
// block; everything here only enqueues.
func (c *Client) onUp(ctx context.Context, epoch uint64) {
	c.mux.Resubscribe()
	if err := c.orders.ReconcileOpen(); err != nil {
		logs.Errorf("open order reconcile dispatch, err: %+v", err)
	}

	c.mu.Lock()
	close(c.upCh)
	c.mu.Unlock()
}

func (c *Client) onDown(err error, epoch uint64) {
	c.mu.Lock()
	c.upCh = make(chan struct{})
	c.mu.Unlock()

	// In-flight requests can never be answered across an epoch boundary.
	c.table.FailAll(exception.ErrConnectionLost)
}

func (c *Client) onState(state session.State) {
	c.mu.Lock()
	subs := make([]func(session.State), 0, len(c.stateSubs))
	for _, fn := range c.stateSubs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()
	for _, fn := range subs {
		fn(state)
	}
}

// waitUp blocks until the next completed handshake or ctx expiry.
func (c *Client) waitUp(ctx context.Context) error {
	c.mu.Lock()
	ch := c.upCh
	c.mu.Unlock()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}

func reqIDOf(msg codec.Message) (uint64, bool) {
	switch body := msg.Body.(type) {
	case schema.Snapshot:
		return body.ReqID, true
	case schema.Account:
		return body.ReqID, true
	case schema.CurrentTime:
		return body.ReqID, true
	case schema.GatewayError:
		return body.ReqID, true
	}
	return 0, false
}
