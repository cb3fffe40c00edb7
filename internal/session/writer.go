package session

import (
	"sync"
	"sync/atomic"
)

// OverflowPolicy defines outbound queue behavior when full.
type OverflowPolicy uint8

const (
	// OverflowReject refuses the incoming frame if the queue is full.
	OverflowReject OverflowPolicy = iota
	// OverflowBlock blocks until space is available.
	OverflowBlock
	// OverflowDropOldest drops the oldest frame to make room.
	OverflowDropOldest
)

// writer is the bounded outbound frame queue. Senders copy payloads in;
// the serve loop is the only consumer and the only goroutine that touches
// the socket, so frames never interleave.
type writer struct {
	queue     chan []byte
	policy    OverflowPolicy
	pool      sync.Pool
	connected atomic.Bool
}

func newWriter(capacity int, policy OverflowPolicy) *writer {
	if capacity <= 0 {
		capacity = 1
	}
	return &writer{
		queue:  make(chan []byte, capacity),
		policy: policy,
	}
}

func (w *writer) setConnected(connected bool) {
	w.connected.Store(connected)
}

func (w *writer) isConnected() bool {
	return w.connected.Load()
}

// send copies payload into a pooled buffer and enqueues it according to
// the overflow policy.
func (w *writer) send(payload []byte) bool {
	if !w.connected.Load() {
		return false
	}
	buf := w.acquire(len(payload))
	copy(buf, payload)
	if !w.enqueue(buf) {
		w.recycle(buf)
		return false
	}
	return true
}

func (w *writer) enqueue(buf []byte) bool {
	switch w.policy {
	case OverflowBlock:
		w.queue <- buf
		return true
	case OverflowDropOldest:
		for {
			select {
			case w.queue <- buf:
				return true
			default:
				select {
				case old := <-w.queue:
					w.recycle(old)
				default:
					return false
				}
			}
		}
	default:
		select {
		case w.queue <- buf:
			return true
		default:
			return false
		}
	}
}

func (w *writer) acquire(size int) []byte {
	if v := w.pool.Get(); v != nil {
		buf := v.([]byte)
		if cap(buf) >= size {
			return buf[:size]
		}
	}
	return make([]byte, size)
}

// recycle returns a drained buffer to the pool.
func (w *writer) recycle(buf []byte) {
	if cap(buf) == 0 {
		return
	}
	w.pool.Put(buf[:0])
}

// drain clears the queue after an epoch ends. Frames queued for a dead
// connection were never dispatched and must not leak into the next epoch.
func (w *writer) drain() {
	for {
		select {
		case buf := <-w.queue:
			w.recycle(buf)
		default:
			return
		}
	}
}
