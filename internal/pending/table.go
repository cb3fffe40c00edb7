package pending

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"tradegw/internal/codec"
	"tradegw/internal/obs"
	"tradegw/internal/schema"
	"tradegw/pkg/exception"
)

const (
	defaultCeiling       = 256
	defaultTimeout       = 10 * time.Second
	defaultSweepInterval = 250 * time.Millisecond
)

// Config controls the correlation table.
type Config struct {
	// Ceiling caps concurrent in-flight requests. New sends beyond it fail
	// immediately with ErrOverloaded.
	Ceiling int
	// Timeout is the default deadline for a request; a context deadline on
	// Send overrides it per call.
	Timeout       time.Duration
	SweepInterval time.Duration
	// Send hands the encoded request payload to the session write path.
	Send    func(payload []byte) error
	Metrics *obs.Metrics
}

func (c Config) withDefaults() Config {
	if c.Ceiling <= 0 {
		c.Ceiling = defaultCeiling
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaultSweepInterval
	}
	return c
}

// Future resolves once with the matched response or an error.
type Future struct {
	reqID uint64
	done  chan struct{}
	msg   codec.Message
	err   error
}

func (f *Future) ReqID() uint64 {
	return f.reqID
}

// Done signals resolution without blocking.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Await blocks the caller until resolution or ctx cancel. Detaching never
// removes the table entry; the sweeper still owns the deadline.
func (f *Future) Await(ctx context.Context) (codec.Message, error) {
	select {
	case <-ctx.Done():
		return codec.Message{}, ctx.Err()
	case <-f.done:
		return f.msg, f.err
	}
}

type entry struct {
	fut      *Future
	callback func(codec.Message, error)
	expect   schema.MsgType
	deadline time.Time
}

func (e *entry) complete(msg codec.Message, err error) {
	if e.callback != nil {
		e.callback(msg, err)
		return
	}
	e.fut.msg = msg
	e.fut.err = err
	close(e.fut.done)
}

// Table correlates request ids with gateway responses. It also owns the
// shared request id space: subscription ids and report queries draw from
// NextID so a reply can never match the wrong waiter.
type Table struct {
	cfg    Config
	nextID atomic.Uint64

	mu      sync.Mutex
	entries map[uint64]*entry
}

// NewTable builds an empty correlation table.
func NewTable(cfg Config) *Table {
	return &Table{
		cfg:     cfg.withDefaults(),
		entries: make(map[uint64]*entry),
	}
}

// NextID allocates a request id. Ids start at 1; 0 never appears on the
// wire.
func (t *Table) NextID() uint64 {
	return t.nextID.Add(1)
}

// Len reports in-flight entries.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Send allocates a request id, encodes the request through the callback,
// registers a future, and dispatches. The encode callback writes the
// assigned id into the payload.
func (t *Table) Send(ctx context.Context, expect schema.MsgType, encode func(reqID uint64, dst []byte) []byte) (*Future, error) {
	fut := &Future{done: make(chan struct{})}
	e := &entry{fut: fut, expect: expect}
	reqID, err := t.register(ctx, e)
	if err != nil {
		return nil, err
	}
	fut.reqID = reqID

	if err := t.cfg.Send(encode(reqID, nil)); err != nil {
		t.remove(reqID)
		return nil, err
	}
	return fut, nil
}

// SendCallback is Send with callback completion. The callback runs on the
// resolver goroutine and must be cheap.
func (t *Table) SendCallback(ctx context.Context, expect schema.MsgType, encode func(reqID uint64, dst []byte) []byte, onDone func(codec.Message, error)) (uint64, error) {
	e := &entry{callback: onDone, expect: expect}
	reqID, err := t.register(ctx, e)
	if err != nil {
		return 0, err
	}
	if err := t.cfg.Send(encode(reqID, nil)); err != nil {
		t.remove(reqID)
		return 0, err
	}
	return reqID, nil
}

func (t *Table) register(ctx context.Context, e *entry) (uint64, error) {
	deadline := time.Now().Add(t.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	e.deadline = deadline

	t.mu.Lock()
	if len(t.entries) >= t.cfg.Ceiling {
		t.mu.Unlock()
		t.cfg.Metrics.Inc(obs.CounterPendingOverloads)
		return 0, exception.ErrOverloaded
	}
	reqID := t.nextID.Add(1)
	t.entries[reqID] = e
	t.mu.Unlock()

	t.cfg.Metrics.Add(obs.GaugePendingRequests, 1)
	return reqID, nil
}

func (t *Table) remove(reqID uint64) *entry {
	t.mu.Lock()
	e, ok := t.entries[reqID]
	if ok {
		delete(t.entries, reqID)
	}
	t.mu.Unlock()
	if !ok {
		return nil
	}
	t.cfg.Metrics.Add(obs.GaugePendingRequests, -1)
	return e
}

// Resolve completes the entry registered under reqID with a response.
// Unknown ids are late responses: counted, never an error. A response of
// an unexpected type still resolves; the mismatch is counted as an anomaly.
func (t *Table) Resolve(reqID uint64, msg codec.Message) bool {
	e := t.remove(reqID)
	if e == nil {
		t.cfg.Metrics.Inc(obs.CounterLateResponses)
		return false
	}
	if e.expect != schema.MsgUnknown && msg.Type != e.expect {
		t.cfg.Metrics.Inc(obs.CounterAnomalies)
	}
	e.complete(msg, nil)
	return true
}

// Fail completes the entry registered under reqID with an error.
func (t *Table) Fail(reqID uint64, err error) bool {
	e := t.remove(reqID)
	if e == nil {
		t.cfg.Metrics.Inc(obs.CounterLateResponses)
		return false
	}
	e.complete(codec.Message{}, err)
	return true
}

// FailAll fails every in-flight entry. The session calls it when an epoch
// ends: a request in flight across a reconnect can never be answered.
func (t *Table) FailAll(err error) {
	t.mu.Lock()
	drained := t.entries
	t.entries = make(map[uint64]*entry)
	t.mu.Unlock()

	for _, e := range drained {
		t.cfg.Metrics.Add(obs.GaugePendingRequests, -1)
		e.complete(codec.Message{}, err)
	}
}

// Run sweeps overdue entries until ctx is done.
func (t *Table) Run(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			t.sweep(now)
		}
	}
}

func (t *Table) sweep(now time.Time) {
	var overdue []*entry
	t.mu.Lock()
	for reqID, e := range t.entries {
		if now.After(e.deadline) {
			delete(t.entries, reqID)
			overdue = append(overdue, e)
		}
	}
	t.mu.Unlock()

	for _, e := range overdue {
		t.cfg.Metrics.Add(obs.GaugePendingRequests, -1)
		t.cfg.Metrics.Inc(obs.CounterPendingTimeouts)
		e.complete(codec.Message{}, exception.ErrTimeout)
	}
}
