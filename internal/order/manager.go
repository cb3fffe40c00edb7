package order

import (
	"sync"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradegw/internal/codec"
	"tradegw/internal/obs"
	"tradegw/internal/schema"
	"tradegw/pkg/exception"
)

const defaultHandleEvents = 64

// Appender journals applied transitions. Appends must never block.
type Appender interface {
	TryAppend(header schema.EventHeader, payload []byte) error
}

// Config wires the manager into the session and the ambient plumbing.
type Config struct {
	// Send hands an encoded request to the session write path. Depending
	// on session policy it may queue during an outage or fail fast.
	Send func(payload []byte) error
	// AllocID allocates order ids from the gateway-provided seed.
	AllocID func() uint64
	// NextReqID allocates reconcile query ids from the shared request id
	// space.
	NextReqID func() uint64
	// Ready reports whether a first handshake seeded the id allocator.
	// Submits are refused until then: locally invented ids could collide
	// with ids the gateway already knows.
	Ready func() bool

	// Journal receives every applied transition. Optional.
	Journal Appender
	// Store mirrors order rows to persistent storage. Optional.
	Store *Store

	Metrics *obs.Metrics
	Trace   *obs.TraceGenerator

	// HandleEvents is each handle's buffered event count.
	HandleEvents int
}

// reconcile tracks one in-flight open-order report.
type reconcile struct {
	reqID  uint64
	unseen map[uint64]struct{}
}

// Manager owns the order lifecycle: submits, cancels, gateway event
// application, and reconciliation after reconnects. Gateway events must
// arrive on a single goroutine; the API side is safe from any goroutine.
type Manager struct {
	cfg Config

	mu      sync.Mutex
	machine *Machine
	handles map[uint64]*Handle
	recon   *reconcile

	subMu  sync.RWMutex
	subs   map[uint64]func(Event)
	subSeq uint64
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.Send == nil || cfg.AllocID == nil || cfg.NextReqID == nil {
		return nil, exception.ErrNilHandler
	}
	if cfg.HandleEvents <= 0 {
		cfg.HandleEvents = defaultHandleEvents
	}
	return &Manager{
		cfg:     cfg,
		machine: NewMachine(),
		handles: make(map[uint64]*Handle),
		subs:    make(map[uint64]func(Event)),
	}, nil
}

// Restore seeds the manager with orders recovered from the journal. Call
// before the first connect; restored orders have no handle, their events
// reach registered listeners only.
func (m *Manager) Restore(orders []Order) {
	open := 0
	m.mu.Lock()
	m.machine.Restore(orders)
	for i := range orders {
		if !orders[i].State.Terminal() {
			open++
		}
	}
	m.mu.Unlock()
	if open > 0 {
		m.cfg.Metrics.Add(obs.GaugeOpenOrders, int64(open))
		logs.Infof("restored %d working orders from journal", open)
	}
}

// Get returns the current view of one order.
func (m *Manager) Get(id uint64) (Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.machine.Get(id)
}

// Open lists every working order.
func (m *Manager) Open() []Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.machine.Open()
}

// OpenCount reports how many orders are still working.
func (m *Manager) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.machine.OpenCount()
}

// OnEvent registers a listener for every applied transition. Listeners run
// on the apply goroutine and must be cheap; hand off anything slow.
func (m *Manager) OnEvent(fn func(Event)) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	m.subMu.Lock()
	m.subSeq++
	id := m.subSeq
	m.subs[id] = fn
	m.subMu.Unlock()
	return func() {
		m.subMu.Lock()
		delete(m.subs, id)
		m.subMu.Unlock()
	}
}

// Submit validates and dispatches a new order. The returned handle follows
// its lifecycle. A dispatch failure leaves no trace of the order behind.
func (m *Manager) Submit(spec schema.OrderSpec) (*Handle, error) {
	if err := validateSpec(&spec); err != nil {
		return nil, err
	}
	if m.cfg.Ready != nil && !m.cfg.Ready() {
		return nil, exception.ErrSessionUnavailable
	}

	id := m.cfg.AllocID()
	now := time.Now().UnixNano()

	m.mu.Lock()
	if _, err := m.machine.Create(id, spec, now); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	h := newHandle(id, m, m.cfg.HandleEvents)
	m.handles[id] = h
	m.mu.Unlock()

	payload := codec.EncodePlaceOrder(nil, schema.PlaceOrder{
		OrderID:     id,
		Symbol:      schema.NewStr16(spec.Symbol),
		Side:        spec.Side,
		Type:        spec.Type,
		TimeInForce: spec.TimeInForce,
		Qty:         spec.Qty,
		LimitPrice:  spec.LimitPrice,
	})
	if err := m.cfg.Send(payload); err != nil {
		m.mu.Lock()
		m.machine.Remove(id)
		delete(m.handles, id)
		m.mu.Unlock()
		return nil, errors.Wrap(err, "dispatch order")
	}

	m.mu.Lock()
	o, err := m.machine.MarkSubmitted(id, time.Now().UnixNano())
	var ev Event
	if err == nil {
		ev = eventOf(o, o.UpdatedAt)
	}
	m.mu.Unlock()

	m.journal(schema.NewHeader(schema.MsgPlaceOrder, schema.SourceLocal, 0, now, now), payload)
	m.cfg.Metrics.Inc(obs.CounterOrdersSubmitted)
	m.cfg.Metrics.Add(obs.GaugeOpenOrders, 1)
	if err == nil {
		m.mirror(ev.OrderID)
		m.dispatch(h, ev)
	}
	return h, nil
}

// Cancel asks the gateway to cancel a working order. State moves only when
// the gateway confirms.
func (m *Manager) Cancel(id uint64) error {
	m.mu.Lock()
	o, ok := m.machine.Get(id)
	m.mu.Unlock()
	if !ok {
		return exception.ErrUnknownOrder
	}
	if o.State.Terminal() {
		return exception.ErrInvalidTransition
	}
	payload := codec.EncodeCancelOrder(nil, schema.CancelOrder{OrderID: id})
	if err := m.cfg.Send(payload); err != nil {
		return errors.Wrap(err, "dispatch cancel")
	}
	return nil
}

// ReconcileOpen asks the gateway for its open-order report. Called on every
// session-up so fills that happened while disconnected are folded in and
// drift in either direction surfaces.
func (m *Manager) ReconcileOpen() error {
	reqID := m.cfg.NextReqID()

	m.mu.Lock()
	unseen := make(map[uint64]struct{})
	for _, o := range m.machine.Open() {
		unseen[o.ID] = struct{}{}
	}
	m.recon = &reconcile{reqID: reqID, unseen: unseen}
	m.mu.Unlock()

	payload := codec.EncodeOpenOrdersQuery(nil, schema.OpenOrdersQuery{ReqID: reqID})
	if err := m.cfg.Send(payload); err != nil {
		return errors.Wrap(err, "dispatch open orders query")
	}
	return nil
}

// Apply folds one gateway order event. The client's event loop is the only
// caller.
func (m *Manager) Apply(header schema.EventHeader, payload []byte) {
	switch header.Type {
	case schema.MsgOrderAck:
		if ev, ok := codec.DecodeOrderAck(payload); ok {
			m.applyAck(header, payload, ev)
			return
		}
	case schema.MsgOrderStatus:
		if ev, ok := codec.DecodeOrderStatus(payload); ok {
			m.applyStatus(header, payload, ev)
			return
		}
	case schema.MsgExecution:
		if ev, ok := codec.DecodeExecution(payload); ok {
			m.applyExecution(header, payload, ev)
			return
		}
	case schema.MsgOrderReject:
		if ev, ok := codec.DecodeOrderReject(payload); ok {
			m.applyReject(header, payload, ev)
			return
		}
	case schema.MsgOpenOrder:
		if ev, ok := codec.DecodeOpenOrder(payload); ok {
			m.applyOpenOrder(header, payload, ev)
			return
		}
	default:
		m.cfg.Metrics.Inc(obs.CounterAnomalies)
		logs.Warnf("unexpected order event type %d", header.Type)
		return
	}
	m.cfg.Metrics.Inc(obs.CounterDecodeErrors)
	logs.Errorf("undecodable order event type %d, len %d", header.Type, len(payload))
}

func (m *Manager) applyAck(header schema.EventHeader, payload []byte, ev schema.OrderAck) {
	m.mu.Lock()
	o, err := m.machine.ApplyAck(ev)
	if err != nil {
		m.mu.Unlock()
		m.fault("ack", ev.OrderID, ev.Seq, err)
		return
	}
	out := eventOf(o, ev.TsNano)
	created := o.CreatedAt
	h := m.handles[o.ID]
	m.mu.Unlock()

	m.journal(header, payload)
	m.cfg.Metrics.ObserveSubmitToAck(time.Duration(header.TsRecv - created))
	m.mirror(out.OrderID)
	m.dispatch(h, out)
}

func (m *Manager) applyStatus(header schema.EventHeader, payload []byte, ev schema.OrderStatus) {
	m.mu.Lock()
	o, err := m.machine.ApplyStatus(ev)
	if err != nil {
		m.mu.Unlock()
		m.fault("status", ev.OrderID, ev.Seq, err)
		return
	}
	out := eventOf(o, ev.TsNano)
	h := m.takeTerminal(o)
	m.mu.Unlock()

	m.journal(header, payload)
	m.settle(out)
	m.mirror(out.OrderID)
	m.dispatch(h, out)
}

func (m *Manager) applyExecution(header schema.EventHeader, payload []byte, ev schema.Execution) {
	m.mu.Lock()
	o, err := m.machine.ApplyExecution(ev)
	if err != nil {
		m.mu.Unlock()
		m.fault("execution", ev.OrderID, ev.Seq, err)
		return
	}
	out := eventOf(o, ev.TsNano)
	out.ExecQty = ev.Qty
	out.ExecPrice = ev.Price
	out.ExecID = ev.ExecID.String()
	h := m.takeTerminal(o)
	m.mu.Unlock()

	m.journal(header, payload)
	m.settle(out)
	m.mirror(out.OrderID)
	m.dispatch(h, out)
}

func (m *Manager) applyReject(header schema.EventHeader, payload []byte, ev schema.OrderReject) {
	m.mu.Lock()
	o, err := m.machine.ApplyReject(ev, header.TsRecv)
	if err != nil {
		m.mu.Unlock()
		m.fault("reject", ev.OrderID, ev.Seq, err)
		return
	}
	out := eventOf(o, header.TsRecv)
	out.Reason = ev.Reason.String()
	h := m.takeTerminal(o)
	m.mu.Unlock()

	m.journal(header, payload)
	m.settle(out)
	m.mirror(out.OrderID)
	m.dispatch(h, out)
}

func (m *Manager) applyOpenOrder(header schema.EventHeader, payload []byte, row schema.OpenOrder) {
	now := header.TsRecv

	m.mu.Lock()
	if m.recon == nil || m.recon.reqID != row.ReqID {
		m.mu.Unlock()
		m.cfg.Metrics.Inc(obs.CounterAnomalies)
		logs.Warnf("open order row for stale report, req %d", row.ReqID)
		return
	}

	var (
		out     Event
		h       *Handle
		changed bool
	)
	if row.OrderID != 0 {
		delete(m.recon.unseen, row.OrderID)
		before, existed := m.machine.Get(row.OrderID)
		o, ch, err := m.machine.MergeOpen(row, now)
		if err != nil {
			m.mu.Unlock()
			m.fault("reconcile", row.OrderID, row.Seq, err)
			return
		}
		changed = ch
		if changed {
			out = eventOf(o, now)
			wasOpen := existed && !before.State.Terminal()
			isOpen := !o.State.Terminal()
			switch {
			case !wasOpen && isOpen:
				m.cfg.Metrics.Add(obs.GaugeOpenOrders, 1)
			case wasOpen && !isOpen:
				m.cfg.Metrics.Add(obs.GaugeOpenOrders, -1)
				m.countTerminal(o.State)
			}
			if o.State.Terminal() {
				h = m.handles[o.ID]
				delete(m.handles, o.ID)
			} else {
				h = m.handles[o.ID]
			}
			if !existed {
				logs.Warnf("adopted order %d from gateway report: %s %s", o.ID, o.Symbol, o.State)
			}
		}
	}
	var missing []uint64
	if row.Last != 0 {
		for id := range m.recon.unseen {
			missing = append(missing, id)
		}
		m.recon = nil
	}
	m.mu.Unlock()

	if changed {
		m.journal(header, payload)
		m.mirror(out.OrderID)
		m.dispatch(h, out)
	}
	for _, id := range missing {
		m.cfg.Metrics.Inc(obs.CounterAnomalies)
		logs.Errorf("order %d open locally but missing from gateway report", id)
	}
}

// takeTerminal returns the order's handle, unregistering it when the order
// just went terminal. Caller holds mu.
func (m *Manager) takeTerminal(o *Order) *Handle {
	h := m.handles[o.ID]
	if o.State.Terminal() {
		delete(m.handles, o.ID)
	}
	return h
}

// settle updates terminal metrics for an applied event.
func (m *Manager) settle(ev Event) {
	if !ev.State.Terminal() {
		return
	}
	m.cfg.Metrics.Add(obs.GaugeOpenOrders, -1)
	m.countTerminal(ev.State)
}

func (m *Manager) countTerminal(s State) {
	switch s {
	case StateFilled:
		m.cfg.Metrics.Inc(obs.CounterOrdersFilled)
	case StateCancelled:
		m.cfg.Metrics.Inc(obs.CounterOrdersCancelled)
	case StateRejected:
		m.cfg.Metrics.Inc(obs.CounterOrdersRejected)
	}
}

// fault routes an apply error to the right counter. The machine returns
// bare sentinels. Protocol damage is loud; duplicates are expected after
// reconnects and stay quiet.
func (m *Manager) fault(kind string, orderID, seq uint64, err error) {
	switch err {
	case exception.ErrDuplicateEvent:
		m.cfg.Metrics.Inc(obs.CounterDuplicateOrderEvents)
	case exception.ErrUnknownOrder:
		m.cfg.Metrics.Inc(obs.CounterAnomalies)
		logs.Warnf("%s for unknown order %d", kind, orderID)
	default:
		m.cfg.Metrics.Inc(obs.CounterAnomalies)
		logs.Errorf("%s rejected for order %d seq %d, err: %+v", kind, orderID, seq, err)
	}
}

func (m *Manager) journal(header schema.EventHeader, payload []byte) {
	if m.cfg.Journal == nil {
		return
	}
	header.TraceID = m.cfg.Trace.Next()
	if err := m.cfg.Journal.TryAppend(header, payload); err != nil {
		logs.Errorf("journal append, err: %+v", err)
	}
}

func (m *Manager) mirror(id uint64) {
	if m.cfg.Store == nil {
		return
	}
	if o, ok := m.Get(id); ok {
		m.cfg.Store.Put(o)
	}
}

func (m *Manager) dispatch(h *Handle, ev Event) {
	if h != nil {
		h.push(ev)
		if ev.State.Terminal() {
			h.finish()
		}
	}
	m.subMu.RLock()
	for _, fn := range m.subs {
		fn(ev)
	}
	m.subMu.RUnlock()
}

func validateSpec(spec *schema.OrderSpec) error {
	if spec.Symbol == "" || len(spec.Symbol) > len(schema.Str16{}) {
		return exception.ErrOrderInvalidRequest
	}
	switch spec.Side {
	case schema.OrderSideBuy, schema.OrderSideSell:
	default:
		return exception.ErrOrderInvalidRequest
	}
	if spec.TimeInForce == schema.TimeInForceUnknown {
		spec.TimeInForce = schema.TimeInForceDay
	}
	switch spec.TimeInForce {
	case schema.TimeInForceDay, schema.TimeInForceGTC, schema.TimeInForceIOC, schema.TimeInForceFOK:
	default:
		return exception.ErrOrderInvalidRequest
	}
	if spec.Qty <= 0 {
		return exception.ErrOrderInvalidRequest
	}
	switch spec.Type {
	case schema.OrderTypeLimit:
		if spec.LimitPrice <= 0 {
			return exception.ErrOrderInvalidRequest
		}
	case schema.OrderTypeMarket:
		if spec.LimitPrice != 0 {
			return exception.ErrOrderInvalidRequest
		}
	default:
		return exception.ErrOrderInvalidRequest
	}
	return nil
}
