package obs

import (
	"sync/atomic"
	"time"
)

// Counter identifies one monotonic metric.
type Counter uint8

const (
	CounterReconnects Counter = iota
	CounterDialFailures
	CounterIdentityConflicts
	CounterFramesIn
	CounterFramesOut
	CounterDecodeErrors
	CounterAnomalies
	CounterTicksRouted
	CounterTickOverruns
	CounterOrdersSubmitted
	CounterOrdersFilled
	CounterOrdersCancelled
	CounterOrdersRejected
	CounterDuplicateOrderEvents
	CounterPendingTimeouts
	CounterPendingOverloads
	CounterLateResponses
	CounterEventQueueDrops
	CounterJournalDrops
	CounterJournalRecords
	CounterExportDrops
	CounterStoreDrops
	CounterOfflineQueued
	counterEnd
)

// counterNames keys snapshots and the Prometheus exporter.
var counterNames = [counterEnd]string{
	CounterReconnects:           "reconnects",
	CounterDialFailures:         "dial_failures",
	CounterIdentityConflicts:    "identity_conflicts",
	CounterFramesIn:             "frames_in",
	CounterFramesOut:            "frames_out",
	CounterDecodeErrors:         "decode_errors",
	CounterAnomalies:            "protocol_anomalies",
	CounterTicksRouted:          "ticks_routed",
	CounterTickOverruns:         "tick_overruns",
	CounterOrdersSubmitted:      "orders_submitted",
	CounterOrdersFilled:         "orders_filled",
	CounterOrdersCancelled:      "orders_cancelled",
	CounterOrdersRejected:       "orders_rejected",
	CounterDuplicateOrderEvents: "duplicate_order_events",
	CounterPendingTimeouts:      "pending_timeouts",
	CounterPendingOverloads:     "pending_overloads",
	CounterLateResponses:        "late_responses",
	CounterEventQueueDrops:      "event_queue_drops",
	CounterJournalDrops:         "journal_drops",
	CounterJournalRecords:       "journal_records",
	CounterExportDrops:          "export_drops",
	CounterStoreDrops:           "store_drops",
	CounterOfflineQueued:        "offline_queued",
}

// Gauge identifies one up-down metric.
type Gauge uint8

const (
	GaugeActiveSubscriptions Gauge = iota
	GaugePendingRequests
	GaugeOpenOrders
	gaugeEnd
)

var gaugeNames = [gaugeEnd]string{
	GaugeActiveSubscriptions: "active_subscriptions",
	GaugePendingRequests:     "pending_requests",
	GaugeOpenOrders:          "open_orders",
}

// Metrics collects lightweight counters, gauges, and latency stats.
type Metrics struct {
	counters [counterEnd]uint64
	gauges   [gaugeEnd]int64

	requestLatency LatencyStats
	submitToAck    LatencyStats
	heartbeatRtt   LatencyStats
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Inc increments a counter.
func (m *Metrics) Inc(c Counter) {
	if m == nil {
		return
	}
	if int(c) >= len(m.counters) {
		return
	}
	atomic.AddUint64(&m.counters[c], 1)
}

// Add moves a gauge by delta.
func (m *Metrics) Add(g Gauge, delta int64) {
	if m == nil {
		return
	}
	if int(g) >= len(m.gauges) {
		return
	}
	atomic.AddInt64(&m.gauges[g], delta)
}

// CounterValue reads one counter.
func (m *Metrics) CounterValue(c Counter) uint64 {
	if m == nil || int(c) >= len(m.counters) {
		return 0
	}
	return atomic.LoadUint64(&m.counters[c])
}

// GaugeValue reads one gauge.
func (m *Metrics) GaugeValue(g Gauge) int64 {
	if m == nil || int(g) >= len(m.gauges) {
		return 0
	}
	return atomic.LoadInt64(&m.gauges[g])
}

// ObserveRequestLatency measures a correlated request round-trip.
func (m *Metrics) ObserveRequestLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.requestLatency.Observe(d)
}

// ObserveSubmitToAck measures order submit to gateway acknowledgment.
func (m *Metrics) ObserveSubmitToAck(d time.Duration) {
	if m == nil {
		return
	}
	m.submitToAck.Observe(d)
}

// ObserveHeartbeatRtt measures a ping round-trip.
func (m *Metrics) ObserveHeartbeatRtt(d time.Duration) {
	if m == nil {
		return
	}
	m.heartbeatRtt.Observe(d)
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64        `json:"count"`
	Sum   time.Duration `json:"sum"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Avg   time.Duration `json:"avg"`
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Sum:   time.Duration(sum),
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}

// Snapshot captures the current metrics values. Zero counters are omitted.
type Snapshot struct {
	Counters map[string]uint64 `json:"counters"`
	Gauges   map[string]int64  `json:"gauges"`
	Request  LatencySnapshot   `json:"requestLatency"`
	Submit   LatencySnapshot   `json:"submitToAck"`
	Ping     LatencySnapshot   `json:"heartbeatRtt"`
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	counters := make(map[string]uint64)
	for i := range m.counters {
		if v := atomic.LoadUint64(&m.counters[i]); v > 0 {
			counters[counterNames[i]] = v
		}
	}
	gauges := make(map[string]int64)
	for i := range m.gauges {
		gauges[gaugeNames[i]] = atomic.LoadInt64(&m.gauges[i])
	}
	return Snapshot{
		Counters: counters,
		Gauges:   gauges,
		Request:  m.requestLatency.Snapshot(),
		Submit:   m.submitToAck.Snapshot(),
		Ping:     m.heartbeatRtt.Snapshot(),
	}
}
