// Package export fans gateway state out to side channels: tick snapshots
// to Redis for dashboards, order transitions to Kafka for downstream
// consumers. Both paths drop on overflow; the gateway never blocks on an
// exporter.
package export

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradegw/internal/feed"
	"tradegw/internal/obs"
	"tradegw/internal/schema"
)

const (
	defaultExportQueue = 1024
	defaultSnapshotTTL = 30 * time.Second
	defaultKeyPrefix   = "tradegw"
)

// RedisSetter is the Redis surface the mirror needs. *redis.Client
// satisfies it.
type RedisSetter interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// SnapshotMirrorConfig wires the tick mirror to Redis.
type SnapshotMirrorConfig struct {
	Client    RedisSetter
	KeyPrefix string
	TTL       time.Duration
	QueueSize int
	Metrics   *obs.Metrics
}

// SnapshotMirror keeps the latest tick per (symbol, kind) in Redis. Feed
// it with Publish, typically hooked to Client.OnTick.
type SnapshotMirror struct {
	cfg    SnapshotMirrorConfig
	q      chan schema.TickSnapshot
	closed atomic.Bool
	done   chan struct{}
}

// NewSnapshotMirror returns a stopped mirror; call Start to begin
// draining.
func NewSnapshotMirror(cfg SnapshotMirrorConfig) (*SnapshotMirror, error) {
	if cfg.Client == nil {
		return nil, errors.New("export: nil redis client")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultKeyPrefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultSnapshotTTL
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultExportQueue
	}
	return &SnapshotMirror{
		cfg:  cfg,
		q:    make(chan schema.TickSnapshot, cfg.QueueSize),
		done: make(chan struct{}),
	}, nil
}

// Publish queues one tick. It never blocks; only the newest view matters,
// so a full queue drops the update.
func (m *SnapshotMirror) Publish(u feed.Update) {
	if m == nil || m.closed.Load() {
		return
	}
	select {
	case m.q <- u.TickSnapshot:
	default:
		m.cfg.Metrics.Inc(obs.CounterExportDrops)
	}
}

// Start drains the queue until ctx is done or Close is called.
func (m *SnapshotMirror) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.done:
				return
			case snap := <-m.q:
				m.set(ctx, snap)
			}
		}
	}()
}

// Close stops the mirror. Queued ticks not yet written are dropped.
func (m *SnapshotMirror) Close() {
	if m.closed.Swap(true) {
		return
	}
	close(m.done)
}

type tickDoc struct {
	Symbol   string `json:"symbol"`
	Kind     string `json:"kind"`
	Seq      uint64 `json:"seq"`
	TsNano   int64  `json:"tsNano"`
	Bid      string `json:"bid"`
	BidSize  string `json:"bidSize"`
	Ask      string `json:"ask"`
	AskSize  string `json:"askSize"`
	Last     string `json:"last"`
	LastSize string `json:"lastSize"`
}

func (m *SnapshotMirror) set(ctx context.Context, snap schema.TickSnapshot) {
	doc := tickDoc{
		Symbol:   snap.Symbol,
		Kind:     snap.Kind.String(),
		Seq:      snap.Seq,
		TsNano:   snap.TsNano,
		Bid:      snap.Bid.String(),
		BidSize:  snap.BidSize.String(),
		Ask:      snap.Ask.String(),
		AskSize:  snap.AskSize.String(),
		Last:     snap.Last.String(),
		LastSize: snap.LastSize.String(),
	}
	payload, err := sonic.ConfigFastest.Marshal(doc)
	if err != nil {
		logs.Errorf("marshal tick snapshot, symbol: %s, err: %+v", snap.Symbol, err)
		return
	}
	key := m.cfg.KeyPrefix + ":tick:" + snap.Symbol + ":" + snap.Kind.String()
	if err := m.cfg.Client.Set(ctx, key, payload, m.cfg.TTL).Err(); err != nil {
		logs.Warnf("mirror tick snapshot, key: %s, err: %+v", key, err)
	}
}
