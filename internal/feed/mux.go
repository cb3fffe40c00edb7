package feed

import (
	"sync"

	"github.com/yanun0323/logs"

	"tradegw/internal/codec"
	"tradegw/internal/obs"
	"tradegw/internal/schema"
	"tradegw/pkg/exception"
)

const defaultSubscriberDepth = 256

// Key identifies one market data stream.
type Key struct {
	Symbol string
	Kind   schema.TickKind
}

// Config defines the mux wiring.
type Config struct {
	// SubscriberDepth is the per-ticket queue length. Subscribe may
	// override it per call.
	SubscriberDepth int
	// Send hands an encoded request to the session write path.
	Send func(payload []byte) error
	// NextID allocates stream ids. It shares the request id space so a
	// Tick.SubID never collides with a pending ReqID.
	NextID  func() uint64
	Metrics *obs.Metrics
}

// entry is the shared state of one upstream stream. One wire subscription
// serves every ticket attached to it.
type entry struct {
	key     Key
	subID   uint64
	tickets []*Ticket
	last    schema.TickSnapshot
	hasLast bool
}

// Mux multiplexes gateway market data streams. The first subscriber of a
// (symbol, kind) opens the wire subscription, later ones attach to it, and
// the last one to leave closes it. Late joiners start from the cached
// snapshot so they never begin blind.
type Mux struct {
	cfg Config

	mu     sync.RWMutex
	byKey  map[Key]*entry
	bySub  map[uint64]*entry
	closed bool
}

func NewMux(cfg Config) (*Mux, error) {
	if cfg.Send == nil || cfg.NextID == nil {
		return nil, exception.ErrNilHandler
	}
	if cfg.SubscriberDepth <= 0 {
		cfg.SubscriberDepth = defaultSubscriberDepth
	}
	return &Mux{
		cfg:   cfg,
		byKey: make(map[Key]*entry),
		bySub: make(map[uint64]*entry),
	}, nil
}

// Subscribe attaches a subscriber to the (symbol, kind) stream, opening it
// on the wire when this is the first interest. depth overrides the default
// ticket queue length when positive.
func (m *Mux) Subscribe(symbol string, kind schema.TickKind, depth int) (*Ticket, error) {
	if symbol == "" || len(symbol) > len(schema.Str16{}) {
		return nil, exception.ErrInvalidSubscription
	}
	switch kind {
	case schema.TickKindTrades, schema.TickKindQuotes, schema.TickKindDepth:
	default:
		return nil, exception.ErrInvalidSubscription
	}
	if depth <= 0 {
		depth = m.cfg.SubscriberDepth
	}
	key := Key{Symbol: symbol, Kind: kind}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, exception.ErrFeedClosed
	}
	if e, ok := m.byKey[key]; ok {
		t := newTicket(key, m, depth)
		e.tickets = append(e.tickets, t)
		if e.hasLast {
			t.push(Update{TickSnapshot: e.last, Cached: true})
		}
		m.mu.Unlock()
		return t, nil
	}

	t := newTicket(key, m, depth)
	e := &entry{
		key:     key,
		subID:   m.cfg.NextID(),
		tickets: []*Ticket{t},
	}
	m.byKey[key] = e
	m.bySub[e.subID] = e
	m.mu.Unlock()

	if err := m.sendSubscribe(e); err != nil {
		m.mu.Lock()
		m.detach(e, t)
		m.mu.Unlock()
		t.closed.Store(true)
		close(t.done)
		return nil, err
	}
	m.cfg.Metrics.Add(obs.GaugeActiveSubscriptions, 1)
	return t, nil
}

// Unsubscribe detaches one ticket. It is idempotent; the wire subscription
// closes only when the last ticket leaves.
func (m *Mux) Unsubscribe(t *Ticket) error {
	if t == nil || t.closed.Swap(true) {
		return nil
	}
	close(t.done)

	m.mu.Lock()
	e, ok := m.byKey[t.key]
	last := false
	if ok {
		last = m.detach(e, t)
	}
	m.mu.Unlock()
	if !ok || !last {
		return nil
	}

	m.cfg.Metrics.Add(obs.GaugeActiveSubscriptions, -1)
	payload := codec.EncodeUnsubscribe(nil, schema.Unsubscribe{ReqID: e.subID})
	if err := m.cfg.Send(payload); err != nil {
		// The stream is already forgotten locally, so a failed close is
		// harmless: reconnect replays only desired keys.
		logs.Warnf("unsubscribe %s/%d not sent, err: %+v", t.key.Symbol, t.key.Kind, err)
	}
	return nil
}

// detach removes t from e, deleting the entry when it empties. Returns
// whether e was removed. Caller holds mu.
func (m *Mux) detach(e *entry, t *Ticket) bool {
	for i, cur := range e.tickets {
		if cur == t {
			e.tickets[i] = e.tickets[len(e.tickets)-1]
			e.tickets = e.tickets[:len(e.tickets)-1]
			break
		}
	}
	if len(e.tickets) > 0 {
		return false
	}
	delete(m.byKey, e.key)
	delete(m.bySub, e.subID)
	return true
}

// Dispatch routes one gateway tick to every subscriber of its stream and
// refreshes the cached snapshot. Ticks for unknown streams are counted and
// dropped; they are expected briefly after an unsubscribe.
func (m *Mux) Dispatch(tick schema.Tick) {
	m.mu.Lock()
	e, ok := m.bySub[tick.SubID]
	if !ok {
		m.mu.Unlock()
		m.cfg.Metrics.Inc(obs.CounterAnomalies)
		return
	}
	snap := schema.TickSnapshot{
		Symbol:   e.key.Symbol,
		Kind:     e.key.Kind,
		Seq:      tick.Seq,
		TsNano:   tick.TsNano,
		Bid:      tick.Bid,
		BidSize:  tick.BidSize,
		Ask:      tick.Ask,
		AskSize:  tick.AskSize,
		Last:     tick.Last,
		LastSize: tick.LastSize,
	}
	e.last = snap
	e.hasLast = true
	for _, t := range e.tickets {
		t.push(Update{TickSnapshot: snap})
	}
	m.mu.Unlock()
	m.cfg.Metrics.Inc(obs.CounterTicksRouted)
}

// Latest reports the cached snapshot for a stream, if any tick arrived yet.
func (m *Mux) Latest(symbol string, kind schema.TickKind) (schema.TickSnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.byKey[Key{Symbol: symbol, Kind: kind}]
	if !ok || !e.hasLast {
		return schema.TickSnapshot{}, false
	}
	return e.last, true
}

// Keys lists the streams with at least one subscriber.
func (m *Mux) Keys() []Key {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]Key, 0, len(m.byKey))
	for k := range m.byKey {
		keys = append(keys, k)
	}
	return keys
}

// Resubscribe replays every desired stream after a reconnect, keeping the
// original stream ids so cached state and in-flight tickets stay valid.
func (m *Mux) Resubscribe() {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.byKey))
	for _, e := range m.byKey {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	for _, e := range entries {
		if err := m.sendSubscribe(e); err != nil {
			logs.Errorf("resubscribe %s/%d, err: %+v", e.key.Symbol, e.key.Kind, err)
		}
	}
}

func (m *Mux) sendSubscribe(e *entry) error {
	payload := codec.EncodeSubscribe(nil, schema.Subscribe{
		ReqID:  e.subID,
		Symbol: schema.NewStr16(e.key.Symbol),
		Kind:   e.key.Kind,
	})
	return m.cfg.Send(payload)
}

// Close detaches every subscriber and refuses new ones. It does not send
// wire unsubscribes; callers close the session right after.
func (m *Mux) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	streams := len(m.byKey)
	tickets := make([]*Ticket, 0, streams)
	for _, e := range m.byKey {
		tickets = append(tickets, e.tickets...)
	}
	m.byKey = make(map[Key]*entry)
	m.bySub = make(map[uint64]*entry)
	m.mu.Unlock()

	for _, t := range tickets {
		if !t.closed.Swap(true) {
			close(t.done)
		}
	}
	if streams > 0 {
		m.cfg.Metrics.Add(obs.GaugeActiveSubscriptions, -int64(streams))
	}
}
