package obs

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Exporter implements prometheus.Collector over a Metrics container. Scrapes
// read the same atomics the hot path increments; there is no second counting
// path to drift.
type Exporter struct {
	metrics *Metrics

	counterDescs [counterEnd]*prometheus.Desc
	gaugeDescs   [gaugeEnd]*prometheus.Desc

	latencyCount *prometheus.Desc
	latencySum   *prometheus.Desc
}

// NewExporter builds a collector for m. Register it with a prometheus
// registry to expose tradegw_* metrics.
func NewExporter(m *Metrics) *Exporter {
	e := &Exporter{metrics: m}
	for i := range e.counterDescs {
		e.counterDescs[i] = prometheus.NewDesc(
			"tradegw_"+counterNames[i]+"_total",
			"Count of "+counterNames[i]+" events.",
			nil, nil,
		)
	}
	for i := range e.gaugeDescs {
		e.gaugeDescs[i] = prometheus.NewDesc(
			"tradegw_"+gaugeNames[i],
			"Current "+gaugeNames[i]+".",
			nil, nil,
		)
	}
	e.latencyCount = prometheus.NewDesc(
		"tradegw_latency_seconds_count",
		"Number of latency samples.",
		[]string{"kind"}, nil,
	)
	e.latencySum = prometheus.NewDesc(
		"tradegw_latency_seconds_sum",
		"Total of latency samples in seconds.",
		[]string{"kind"}, nil,
	)
	return e
}

// Describe implements prometheus.Collector.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range e.counterDescs {
		ch <- d
	}
	for _, d := range e.gaugeDescs {
		ch <- d
	}
	ch <- e.latencyCount
	ch <- e.latencySum
}

// Collect implements prometheus.Collector.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	if e.metrics == nil {
		return
	}
	for i := range e.counterDescs {
		v := atomic.LoadUint64(&e.metrics.counters[i])
		ch <- prometheus.MustNewConstMetric(e.counterDescs[i], prometheus.CounterValue, float64(v))
	}
	for i := range e.gaugeDescs {
		v := atomic.LoadInt64(&e.metrics.gauges[i])
		ch <- prometheus.MustNewConstMetric(e.gaugeDescs[i], prometheus.GaugeValue, float64(v))
	}
	e.collectLatency(ch, "request", &e.metrics.requestLatency)
	e.collectLatency(ch, "submit_to_ack", &e.metrics.submitToAck)
	e.collectLatency(ch, "heartbeat_rtt", &e.metrics.heartbeatRtt)
}

func (e *Exporter) collectLatency(ch chan<- prometheus.Metric, kind string, l *LatencyStats) {
	snap := l.Snapshot()
	ch <- prometheus.MustNewConstMetric(e.latencyCount, prometheus.CounterValue, float64(snap.Count), kind)
	ch <- prometheus.MustNewConstMetric(e.latencySum, prometheus.CounterValue, snap.Sum.Seconds(), kind)
}
