package order

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"gorm.io/gorm/clause"

	"tradegw/internal/obs"
	"tradegw/pkg/conn"
)

const defaultStoreQueue = 1024

// Row is the persisted projection of one order.
type Row struct {
	OrderID     uint64 `gorm:"primaryKey"`
	Symbol      string `gorm:"size:16;index"`
	Side        string `gorm:"size:8"`
	Type        string `gorm:"size:8"`
	TimeInForce string `gorm:"size:8"`
	State       string `gorm:"size:16;index"`
	Qty         int64
	FilledQty   int64
	LeavesQty   int64
	LimitPrice  int64
	AvgPrice    int64
	LastSeq     uint64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (Row) TableName() string { return "orders" }

// StoreConfig wires the order mirror to PostgreSQL.
type StoreConfig struct {
	Client    *conn.Client
	QueueSize int
	Metrics   *obs.Metrics
}

// Store mirrors order snapshots to PostgreSQL off the hot path. Writes are
// fire-and-forget: a full queue drops the update and the next transition
// carries the fresh row anyway.
type Store struct {
	cfg    StoreConfig
	q      chan Order
	closed atomic.Bool
	done   chan struct{}
}

// NewStore migrates the orders table and returns a stopped mirror; call
// Start to begin draining.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Client == nil {
		return nil, errors.New("store: nil postgres client")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultStoreQueue
	}
	if err := cfg.Client.DB().AutoMigrate(&Row{}); err != nil {
		return nil, errors.Wrap(err, "migrate orders table")
	}
	return &Store{
		cfg:  cfg,
		q:    make(chan Order, cfg.QueueSize),
		done: make(chan struct{}),
	}, nil
}

// Put queues one order snapshot. It never blocks.
func (s *Store) Put(o Order) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.q <- o:
	default:
		s.cfg.Metrics.Inc(obs.CounterStoreDrops)
	}
}

// Start drains the queue until ctx is done or Close is called.
func (s *Store) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case o := <-s.q:
				s.upsert(ctx, o)
			}
		}
	}()
}

// Close stops the mirror. Queued rows not yet written are dropped.
func (s *Store) Close() {
	if s.closed.Swap(true) {
		return
	}
	close(s.done)
}

func (s *Store) upsert(ctx context.Context, o Order) {
	row := Row{
		OrderID:     o.ID,
		Symbol:      o.Symbol,
		Side:        o.Side.String(),
		Type:        o.Type.String(),
		TimeInForce: o.TimeInForce.String(),
		State:       o.State.String(),
		Qty:         int64(o.Qty),
		FilledQty:   int64(o.FilledQty),
		LeavesQty:   int64(o.LeavesQty),
		LimitPrice:  int64(o.LimitPrice),
		AvgPrice:    int64(o.AvgPrice),
		LastSeq:     o.LastSeq,
		CreatedAt:   time.Unix(0, o.CreatedAt),
		UpdatedAt:   time.Unix(0, o.UpdatedAt),
	}
	err := s.cfg.Client.DB().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}},
			UpdateAll: true,
		}).
		Create(&row).Error
	if err != nil {
		logs.Errorf("mirror order %d, err: %+v", o.ID, err)
	}
}
