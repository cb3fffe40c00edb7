package order

import (
	"context"
	"sync"
)

// Handle is the caller's grip on one submitted order. Events stream on a
// bounded queue; when the caller lags, the oldest events drop and the
// terminal signal still fires.
type Handle struct {
	id  uint64
	mgr *Manager

	events   chan Event
	terminal chan struct{}
	termOnce sync.Once
}

func newHandle(id uint64, mgr *Manager, depth int) *Handle {
	if depth <= 0 {
		depth = 16
	}
	return &Handle{
		id:       id,
		mgr:      mgr,
		events:   make(chan Event, depth),
		terminal: make(chan struct{}),
	}
}

// ID reports the order id this handle follows.
func (h *Handle) ID() uint64 {
	return h.id
}

// Order returns the current order view.
func (h *Handle) Order() (Order, bool) {
	return h.mgr.Get(h.id)
}

// Events exposes the transition stream. Slow readers lose oldest events;
// AwaitTerminal never misses the end state.
func (h *Handle) Events() <-chan Event {
	return h.events
}

// Cancel requests cancellation of this order.
func (h *Handle) Cancel() error {
	return h.mgr.Cancel(h.id)
}

// Done closes when the order reaches a terminal state.
func (h *Handle) Done() <-chan struct{} {
	return h.terminal
}

// AwaitTerminal blocks until the order is Filled, Cancelled, or Rejected,
// or ctx expires. It returns the latest order view either way.
func (h *Handle) AwaitTerminal(ctx context.Context) (Order, error) {
	select {
	case <-h.terminal:
		o, _ := h.mgr.Get(h.id)
		return o, nil
	case <-ctx.Done():
		o, _ := h.mgr.Get(h.id)
		return o, ctx.Err()
	}
}

// push never blocks the apply loop: a full queue drops its oldest event.
func (h *Handle) push(ev Event) {
	for {
		select {
		case h.events <- ev:
			return
		default:
			select {
			case <-h.events:
			default:
			}
		}
	}
}

func (h *Handle) finish() {
	h.termOnce.Do(func() { close(h.terminal) })
}
