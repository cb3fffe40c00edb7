package session

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradegw/internal/codec"
	"tradegw/internal/obs"
	"tradegw/internal/schema"
	"tradegw/pkg/exception"
)

// gatewayStub accepts one connection at a time, completes the handshake,
// answers pings, and forwards every other inbound frame decoded.
type gatewayStub struct {
	ln      net.Listener
	accept  schema.SessionAccept
	reject  *schema.SessionReject
	inbound chan codec.Message
	// dropAfterHandshake closes each connection right after SessionAccept.
	dropAfterHandshake bool
	// mute stops pong replies so the client sees a stale heartbeat.
	mute bool
}

func newGatewayStub(t *testing.T, accept schema.SessionAccept) *gatewayStub {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	return &gatewayStub{
		ln:      ln,
		accept:  accept,
		inbound: make(chan codec.Message, 64),
	}
}

func (g *gatewayStub) addr() string {
	return g.ln.Addr().String()
}

func (g *gatewayStub) run() {
	for {
		conn, err := g.ln.Accept()
		if err != nil {
			return
		}
		g.serveConn(conn)
	}
}

func (g *gatewayStub) serveConn(conn net.Conn) {
	defer conn.Close()

	if codec.ReadPreamble(conn) != nil {
		return
	}
	fr := codec.NewFrameReader(conn, 0)
	fw := codec.NewFrameWriter(conn)

	payload, err := fr.Read()
	if err != nil {
		return
	}
	if _, ok := codec.DecodeHello(payload); !ok {
		return
	}
	hello := schema.HelloAck{Version: schema.WireVersion, TimeNano: time.Now().UnixNano()}
	if fw.Write(codec.EncodeHelloAck(nil, hello)) != nil {
		return
	}

	payload, err = fr.Read()
	if err != nil {
		return
	}
	if _, ok := codec.DecodeStartSession(payload); !ok {
		return
	}
	if g.reject != nil {
		_ = fw.Write(codec.EncodeSessionReject(nil, *g.reject))
		return
	}
	if fw.Write(codec.EncodeSessionAccept(nil, g.accept)) != nil {
		return
	}
	if g.dropAfterHandshake {
		return
	}

	for {
		payload, err := fr.Read()
		if err != nil {
			return
		}
		msg, ok := codec.DecodeMessage(payload)
		if !ok {
			continue
		}
		if msg.Type == schema.MsgPing {
			if !g.mute {
				_ = fw.Write(codec.EncodePong(nil, schema.Pong{TimeNano: time.Now().UnixNano()}))
			}
			continue
		}
		select {
		case g.inbound <- msg:
		default:
		}
	}
}

func fastBackoff() Backoff {
	return Backoff{Min: 5 * time.Millisecond, Max: 20 * time.Millisecond, Factor: 2}
}

func TestManagerLifecycle(t *testing.T) {
	gw := newGatewayStub(t, schema.SessionAccept{
		NextOrderID:   500,
		HeartbeatNano: int64(50 * time.Millisecond),
	})
	go gw.run()

	ups := make(chan uint64, 4)
	m, err := NewManager(Config{
		Endpoint: gw.addr(),
		ClientID: 1,
		Backoff:  fastBackoff(),
		Metrics:  obs.NewMetrics(),
		OnUp: func(ctx context.Context, epoch uint64) {
			ups <- epoch
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	select {
	case epoch := <-ups:
		require.Equal(t, uint64(1), epoch)
	case <-time.After(2 * time.Second):
		t.Fatal("session never came up")
	}

	require.Eventually(t, m.IsHealthy, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateAuthenticated, m.Session().State())
	assert.Equal(t, uint64(500), m.Session().AllocOrderID())

	sub := codec.EncodeSubscribe(nil, schema.Subscribe{ReqID: 7, Symbol: schema.NewStr16("AAPL"), Kind: schema.TickKindQuotes})
	require.NoError(t, m.Send(sub))

	select {
	case msg := <-gw.inbound:
		require.Equal(t, schema.MsgSubscribe, msg.Type)
		got := msg.Body.(schema.Subscribe)
		assert.Equal(t, uint64(7), got.ReqID)
		assert.Equal(t, "AAPL", got.Symbol.String())
	case <-time.After(2 * time.Second):
		t.Fatal("gateway never received the subscribe")
	}

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("run never returned")
	}
}

func TestManagerIdentityConflict(t *testing.T) {
	gw := newGatewayStub(t, schema.SessionAccept{})
	gw.reject = &schema.SessionReject{
		Code:   schema.RejectIdentityConflict,
		Reason: schema.NewStr64("client id in use"),
	}
	go gw.run()

	metrics := obs.NewMetrics()
	m, err := NewManager(Config{
		Endpoint: gw.addr(),
		ClientID: 1,
		Backoff:  fastBackoff(),
		Metrics:  metrics,
	})
	require.NoError(t, err)

	err = m.Run(t.Context())
	require.ErrorIs(t, err, exception.ErrIdentityConflict)
	assert.Equal(t, uint64(1), metrics.CounterValue(obs.CounterIdentityConflicts))
	assert.Equal(t, StateDisconnected, m.Session().State())
}

func TestManagerReconnectEpochs(t *testing.T) {
	gw := newGatewayStub(t, schema.SessionAccept{NextOrderID: 1})
	gw.dropAfterHandshake = true
	go gw.run()

	ups := make(chan uint64, 8)
	metrics := obs.NewMetrics()
	m, err := NewManager(Config{
		Endpoint: gw.addr(),
		ClientID: 2,
		Backoff:  fastBackoff(),
		Metrics:  metrics,
		OnUp: func(ctx context.Context, epoch uint64) {
			ups <- epoch
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go func() { _ = m.Run(ctx) }()

	for want := uint64(1); want <= 2; want++ {
		select {
		case epoch := <-ups:
			require.Equal(t, want, epoch)
		case <-time.After(2 * time.Second):
			t.Fatalf("epoch %d never came up", want)
		}
	}
	assert.GreaterOrEqual(t, metrics.CounterValue(obs.CounterReconnects), uint64(1))
}

func TestManagerMaxAttempts(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	m, err := NewManager(Config{
		Endpoint:    addr,
		ClientID:    1,
		Backoff:     fastBackoff(),
		MaxAttempts: 2,
	})
	require.NoError(t, err)

	err = m.Run(t.Context())
	require.ErrorIs(t, err, exception.ErrConnectionLost)
}

func TestManagerHeartbeatStale(t *testing.T) {
	gw := newGatewayStub(t, schema.SessionAccept{
		HeartbeatNano: int64(30 * time.Millisecond),
	})
	gw.mute = true
	go gw.run()

	states := make(chan State, 16)
	downs := make(chan error, 4)
	m, err := NewManager(Config{
		Endpoint:  gw.addr(),
		ClientID:  3,
		MissLimit: 2,
		Backoff:   fastBackoff(),
		OnState:   func(s State) { states <- s },
		OnDown:    func(err error, epoch uint64) { downs <- err },
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go func() { _ = m.Run(ctx) }()

	sawDegraded := false
	deadline := time.After(3 * time.Second)
	for !sawDegraded {
		select {
		case s := <-states:
			if s == StateDegraded {
				sawDegraded = true
			}
		case <-deadline:
			t.Fatal("session never degraded")
		}
	}

	select {
	case err := <-downs:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("epoch never tore down")
	}
}

func TestSendWhileDown(t *testing.T) {
	m, err := NewManager(Config{Endpoint: "127.0.0.1:1", ClientID: 1})
	require.NoError(t, err)

	payload := codec.EncodePing(nil, schema.Ping{TimeNano: 1})
	require.ErrorIs(t, m.Send(payload), exception.ErrSessionUnavailable)
	require.ErrorIs(t, m.SendOrBuffer(payload), exception.ErrSessionUnavailable)
}

func TestSendOrBufferParksAndFlushes(t *testing.T) {
	gw := newGatewayStub(t, schema.SessionAccept{NextOrderID: 10})
	go gw.run()

	m, err := NewManager(Config{
		Endpoint:         gw.addr(),
		ClientID:         4,
		Backoff:          fastBackoff(),
		OfflineQueueSize: 2,
	})
	require.NoError(t, err)

	place := codec.EncodePlaceOrder(nil, schema.PlaceOrder{
		OrderID: 10,
		Symbol:  schema.NewStr16("AAPL"),
		Side:    schema.OrderSideBuy,
		Type:    schema.OrderTypeLimit,
		Qty:     schema.Quantity(100 * 100_000_000),
	})
	require.NoError(t, m.SendOrBuffer(place))
	require.NoError(t, m.SendOrBuffer(place))
	require.ErrorIs(t, m.SendOrBuffer(place), exception.ErrOrderQueueFull)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go func() { _ = m.Run(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case msg := <-gw.inbound:
			require.Equal(t, schema.MsgPlaceOrder, msg.Type)
			got := msg.Body.(schema.PlaceOrder)
			assert.Equal(t, uint64(10), got.OrderID)
		case <-time.After(2 * time.Second):
			t.Fatalf("parked frame %d never flushed", i)
		}
	}
}

func TestWriterOverflow(t *testing.T) {
	w := newWriter(2, OverflowReject)
	w.setConnected(true)
	require.True(t, w.send([]byte{1}))
	require.True(t, w.send([]byte{2}))
	require.False(t, w.send([]byte{3}))

	w = newWriter(2, OverflowDropOldest)
	w.setConnected(true)
	require.True(t, w.send([]byte{1}))
	require.True(t, w.send([]byte{2}))
	require.True(t, w.send([]byte{3}))
	first := <-w.queue
	second := <-w.queue
	assert.Equal(t, byte(2), first[0])
	assert.Equal(t, byte(3), second[0])
}
