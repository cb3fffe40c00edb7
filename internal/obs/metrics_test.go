package obs

import (
	"testing"
	"time"
)

func TestCountersAndGauges(t *testing.T) {
	m := NewMetrics()
	m.Inc(CounterReconnects)
	m.Inc(CounterReconnects)
	m.Add(GaugeOpenOrders, 3)
	m.Add(GaugeOpenOrders, -1)

	if v := m.CounterValue(CounterReconnects); v != 2 {
		t.Fatalf("reconnects = %d, want 2", v)
	}
	if v := m.GaugeValue(GaugeOpenOrders); v != 2 {
		t.Fatalf("open orders = %d, want 2", v)
	}

	snap := m.Snapshot()
	if snap.Counters["reconnects"] != 2 {
		t.Fatalf("snapshot reconnects = %d", snap.Counters["reconnects"])
	}
	if _, ok := snap.Counters["frames_in"]; ok {
		t.Fatalf("zero counter leaked into snapshot")
	}
	if snap.Gauges["open_orders"] != 2 {
		t.Fatalf("snapshot open orders = %d", snap.Gauges["open_orders"])
	}
}

func TestLatencyStats(t *testing.T) {
	var l LatencyStats
	l.Observe(10 * time.Millisecond)
	l.Observe(30 * time.Millisecond)
	l.Observe(20 * time.Millisecond)

	snap := l.Snapshot()
	if snap.Count != 3 {
		t.Fatalf("count = %d", snap.Count)
	}
	if snap.Min != 10*time.Millisecond {
		t.Fatalf("min = %v", snap.Min)
	}
	if snap.Max != 30*time.Millisecond {
		t.Fatalf("max = %v", snap.Max)
	}
	if snap.Avg != 20*time.Millisecond {
		t.Fatalf("avg = %v", snap.Avg)
	}
	if snap.Sum != 60*time.Millisecond {
		t.Fatalf("sum = %v", snap.Sum)
	}
}

func TestNilMetricsSafe(t *testing.T) {
	var m *Metrics
	m.Inc(CounterFramesIn)
	m.Add(GaugeOpenOrders, 1)
	m.ObserveRequestLatency(time.Second)
	if snap := m.Snapshot(); snap.Counters != nil {
		t.Fatalf("nil metrics snapshot should be empty")
	}
}

func TestCounterNamesComplete(t *testing.T) {
	for i, name := range counterNames {
		if name == "" {
			t.Fatalf("counter %d has no name", i)
		}
	}
	for i, name := range gaugeNames {
		if name == "" {
			t.Fatalf("gauge %d has no name", i)
		}
	}
}
