package export

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradegw/internal/feed"
	"tradegw/internal/obs"
	"tradegw/internal/order"
	"tradegw/internal/schema"
)

const unit = 100_000_000

type fakeEntry struct {
	value []byte
	ttl   time.Duration
}

type fakeRedis struct {
	mu   sync.Mutex
	keys map[string]fakeEntry
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{keys: map[string]fakeEntry{}}
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, _ := value.([]byte)
	cp := make([]byte, len(b))
	copy(cp, b)
	f.keys[key] = fakeEntry{value: cp, ttl: ttl}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) get(key string) (fakeEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.keys[key]
	return e, ok
}

func quoteUpdate(symbol string, seq uint64) feed.Update {
	return feed.Update{TickSnapshot: schema.TickSnapshot{
		Symbol:  symbol,
		Kind:    schema.TickKindQuotes,
		Seq:     seq,
		TsNano:  int64(seq) * 1_000,
		Bid:     schema.Price(100 * unit),
		BidSize: schema.Quantity(3 * unit),
		Ask:     schema.Price(101 * unit),
		AskSize: schema.Quantity(2 * unit),
	}}
}

func TestSnapshotMirrorWritesTick(t *testing.T) {
	rdb := newFakeRedis()
	m, err := NewSnapshotMirror(SnapshotMirrorConfig{
		Client:  rdb,
		Metrics: obs.NewMetrics(),
	})
	require.NoError(t, err)

	m.Start(t.Context())
	defer m.Close()
	m.Publish(quoteUpdate("AAPL", 7))

	var entry fakeEntry
	require.Eventually(t, func() bool {
		e, ok := rdb.get("tradegw:tick:AAPL:quotes")
		entry = e
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, defaultSnapshotTTL, entry.ttl)
	var doc tickDoc
	require.NoError(t, sonic.Unmarshal(entry.value, &doc))
	assert.Equal(t, "AAPL", doc.Symbol)
	assert.Equal(t, "quotes", doc.Kind)
	assert.Equal(t, uint64(7), doc.Seq)
	assert.Equal(t, "100", doc.Bid)
	assert.Equal(t, "101", doc.Ask)
	assert.Equal(t, "3", doc.BidSize)
}

func TestSnapshotMirrorDropsWhenFull(t *testing.T) {
	metrics := obs.NewMetrics()
	m, err := NewSnapshotMirror(SnapshotMirrorConfig{
		Client:    newFakeRedis(),
		QueueSize: 1,
		Metrics:   metrics,
	})
	require.NoError(t, err)

	// Not started: the queue holds one tick and the second must drop.
	m.Publish(quoteUpdate("AAPL", 1))
	m.Publish(quoteUpdate("AAPL", 2))

	assert.Equal(t, uint64(1), metrics.CounterValue(obs.CounterExportDrops))
}

func TestSnapshotMirrorRequiresClient(t *testing.T) {
	_, err := NewSnapshotMirror(SnapshotMirrorConfig{})
	require.Error(t, err)
}

type fakeKafkaWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
}

func (f *fakeKafkaWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeKafkaWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeKafkaWriter) snapshot() []kafka.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]kafka.Message, len(f.msgs))
	copy(out, f.msgs)
	return out
}

func TestEventPublisherWritesKeyedEvent(t *testing.T) {
	writer := &fakeKafkaWriter{}
	p, err := NewEventPublisher(EventPublisherConfig{
		Writer:  writer,
		Metrics: obs.NewMetrics(),
	})
	require.NoError(t, err)

	p.Start(t.Context())
	p.Publish(order.Event{
		OrderID:   8001,
		Seq:       3,
		State:     order.StatePartFilled,
		FilledQty: schema.Quantity(40 * unit),
		LeavesQty: schema.Quantity(60 * unit),
		AvgPrice:  schema.Price(100 * unit),
		ExecQty:   schema.Quantity(40 * unit),
		ExecPrice: schema.Price(100 * unit),
		ExecID:    "exec-1",
		TsNano:    42,
	})

	require.Eventually(t, func() bool {
		return len(writer.snapshot()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	msg := writer.snapshot()[0]
	assert.Equal(t, "8001", string(msg.Key))

	var doc eventDoc
	require.NoError(t, sonic.Unmarshal(msg.Value, &doc))
	assert.Equal(t, uint64(8001), doc.OrderID)
	assert.Equal(t, "part_filled", doc.State)
	assert.Equal(t, "40", doc.FilledQty)
	assert.Equal(t, "40", doc.ExecQty)
	assert.Equal(t, "exec-1", doc.ExecID)

	require.NoError(t, p.Close())
	assert.True(t, writer.closed)

	// Publish after close is a no-op.
	p.Publish(order.Event{OrderID: 8002})
}

func TestEventPublisherDropsWhenFull(t *testing.T) {
	metrics := obs.NewMetrics()
	p, err := NewEventPublisher(EventPublisherConfig{
		Writer:    &fakeKafkaWriter{},
		QueueSize: 1,
		Metrics:   metrics,
	})
	require.NoError(t, err)

	p.Publish(order.Event{OrderID: 1})
	p.Publish(order.Event{OrderID: 2})

	assert.Equal(t, uint64(1), metrics.CounterValue(obs.CounterExportDrops))
}

func TestEventPublisherRequiresTarget(t *testing.T) {
	_, err := NewEventPublisher(EventPublisherConfig{})
	require.Error(t, err)

	_, err = NewEventPublisher(EventPublisherConfig{Brokers: []string{"k1:9092"}})
	require.Error(t, err)
}
