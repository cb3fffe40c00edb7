package export

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/segmentio/kafka-go"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradegw/internal/obs"
	"tradegw/internal/order"
)

// MessageWriter is the Kafka surface the publisher needs. *kafka.Writer
// satisfies it.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventPublisherConfig wires the order event publisher to Kafka.
type EventPublisherConfig struct {
	Brokers   []string
	Topic     string
	QueueSize int
	Metrics   *obs.Metrics

	// Writer overrides the built kafka.Writer. Brokers and Topic are
	// ignored when set.
	Writer MessageWriter
}

// EventPublisher streams order lifecycle transitions to a Kafka topic,
// keyed by order id so one order's events stay in partition order. Feed
// it with Publish, typically hooked to Client.OnOrderEvent.
type EventPublisher struct {
	cfg    EventPublisherConfig
	writer MessageWriter
	q      chan order.Event
	closed atomic.Bool
	done   chan struct{}
}

// NewEventPublisher returns a stopped publisher; call Start to begin
// draining.
func NewEventPublisher(cfg EventPublisherConfig) (*EventPublisher, error) {
	writer := cfg.Writer
	if writer == nil {
		if len(cfg.Brokers) == 0 {
			return nil, errors.New("export: no kafka brokers")
		}
		if cfg.Topic == "" {
			return nil, errors.New("export: empty kafka topic")
		}
		writer = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		}
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultExportQueue
	}
	return &EventPublisher{
		cfg:    cfg,
		writer: writer,
		q:      make(chan order.Event, cfg.QueueSize),
		done:   make(chan struct{}),
	}, nil
}

// Publish queues one transition. It never blocks; a full queue drops the
// event.
func (p *EventPublisher) Publish(ev order.Event) {
	if p == nil || p.closed.Load() {
		return
	}
	select {
	case p.q <- ev:
	default:
		p.cfg.Metrics.Inc(obs.CounterExportDrops)
	}
}

// Start drains the queue until ctx is done or Close is called.
func (p *EventPublisher) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.done:
				return
			case ev := <-p.q:
				p.write(ctx, ev)
			}
		}
	}()
}

// Close stops the publisher and releases the writer. Queued events not
// yet written are dropped.
func (p *EventPublisher) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	close(p.done)
	return p.writer.Close()
}

type eventDoc struct {
	OrderID   uint64 `json:"orderId"`
	Seq       uint64 `json:"seq"`
	State     string `json:"state"`
	FilledQty string `json:"filledQty"`
	LeavesQty string `json:"leavesQty"`
	AvgPrice  string `json:"avgPrice"`
	ExecQty   string `json:"execQty,omitempty"`
	ExecPrice string `json:"execPrice,omitempty"`
	ExecID    string `json:"execId,omitempty"`
	Reason    string `json:"reason,omitempty"`
	TsNano    int64  `json:"tsNano"`
}

func (p *EventPublisher) write(ctx context.Context, ev order.Event) {
	doc := eventDoc{
		OrderID:   ev.OrderID,
		Seq:       ev.Seq,
		State:     ev.State.String(),
		FilledQty: ev.FilledQty.String(),
		LeavesQty: ev.LeavesQty.String(),
		AvgPrice:  ev.AvgPrice.String(),
		ExecID:    ev.ExecID,
		Reason:    ev.Reason,
		TsNano:    ev.TsNano,
	}
	if ev.ExecQty != 0 {
		doc.ExecQty = ev.ExecQty.String()
		doc.ExecPrice = ev.ExecPrice.String()
	}
	value, err := sonic.ConfigFastest.Marshal(doc)
	if err != nil {
		logs.Errorf("marshal order event, order: %d, err: %+v", ev.OrderID, err)
		return
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatUint(ev.OrderID, 10)),
		Value: value,
		Time:  time.Unix(0, ev.TsNano),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		logs.Warnf("publish order event, order: %d, err: %+v", ev.OrderID, err)
	}
}
