package feed

import (
	"context"
	"sync/atomic"

	"tradegw/internal/obs"
	"tradegw/internal/schema"
	"tradegw/pkg/exception"
)

// Update is one delivery on a subscriber queue.
type Update struct {
	schema.TickSnapshot
	// Cached marks the entry snapshot replayed to a late joiner.
	Cached bool
	// Overrun reports that this subscriber's queue dropped older updates
	// to make room. Only the lagging subscriber sees it.
	Overrun bool
}

// Ticket is one subscriber's handle on a stream. Each ticket owns a bounded
// queue: a slow consumer loses its own oldest updates and nothing else.
type Ticket struct {
	key Key
	mux *Mux

	ch       chan Update
	done     chan struct{}
	closed   atomic.Bool
	overrun  atomic.Bool
	overruns atomic.Uint64
}

func newTicket(key Key, mux *Mux, depth int) *Ticket {
	if depth <= 0 {
		depth = 1
	}
	return &Ticket{
		key:  key,
		mux:  mux,
		ch:   make(chan Update, depth),
		done: make(chan struct{}),
	}
}

// Key reports the stream this ticket follows.
func (t *Ticket) Key() Key {
	return t.key
}

// Overruns reports how many updates this subscriber has lost in total.
func (t *Ticket) Overruns() uint64 {
	return t.overruns.Load()
}

// Next blocks until an update arrives, the ticket closes, or ctx is done.
func (t *Ticket) Next(ctx context.Context) (Update, error) {
	select {
	case u := <-t.ch:
		return u, nil
	default:
	}
	select {
	case <-ctx.Done():
		return Update{}, ctx.Err()
	case <-t.done:
		return Update{}, exception.ErrFeedClosed
	case u := <-t.ch:
		return u, nil
	}
}

// Close detaches this subscriber. It is idempotent and never tears down
// work other subscribers still depend on.
func (t *Ticket) Close() error {
	return t.mux.Unsubscribe(t)
}

// push never blocks: a full queue drops its oldest update and flags the
// loss on the next delivery. The mux is the only producer.
func (t *Ticket) push(u Update) {
	if t.closed.Load() {
		return
	}
	if t.overrun.Load() {
		u.Overrun = true
	}
	for {
		select {
		case t.ch <- u:
			if u.Overrun {
				t.overrun.Store(false)
			}
			return
		default:
			select {
			case <-t.ch:
				t.overruns.Add(1)
				t.overrun.Store(true)
				u.Overrun = true
				t.mux.cfg.Metrics.Inc(obs.CounterTickOverruns)
			default:
			}
		}
	}
}
