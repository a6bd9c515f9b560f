package metrics

import "github.com/prometheus/client_golang/prometheus"

// RelayMetrics exposes counters/histograms for the relay pipeline.
type RelayMetrics struct {
	inboundTotal    *prometheus.CounterVec
	repliesTotal    *prometheus.CounterVec
	outboundTotal   *prometheus.CounterVec
	droppedTotal    prometheus.Counter
	cacheTotal      *prometheus.CounterVec
	generateLatency *prometheus.HistogramVec
}

func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatrelay",
			Subsystem: "relay",
			Name:      "inbound_total",
			Help:      "Total inbound messages by kind",
		}, []string{"kind"}),
		repliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatrelay",
			Subsystem: "generator",
			Name:      "replies_total",
			Help:      "Total generated replies by source",
		}, []string{"source"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatrelay",
			Subsystem: "delivery",
			Name:      "outbound_total",
			Help:      "Total outbound send attempts by status",
		}, []string{"status"}),
		droppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatrelay",
			Subsystem: "delivery",
			Name:      "dropped_total",
			Help:      "Messages dropped after exhausting retries",
		}),
		cacheTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatrelay",
			Subsystem: "generator",
			Name:      "cache_total",
			Help:      "Response cache lookups by outcome",
		}, []string{"outcome"}),
		generateLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chatrelay",
			Subsystem: "generator",
			Name:      "latency_seconds",
			Help:      "Latency of response generation",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.repliesTotal, m.outboundTotal, m.droppedTotal, m.cacheTotal, m.generateLatency)
	return m
}

func (m *RelayMetrics) ObserveInbound(kind string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(kind).Inc()
}

func (m *RelayMetrics) ObserveReply(source string) {
	if m == nil {
		return
	}
	m.repliesTotal.WithLabelValues(source).Inc()
}

func (m *RelayMetrics) ObserveOutbound(status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(status).Inc()
}

func (m *RelayMetrics) ObserveDropped() {
	if m == nil {
		return
	}
	m.droppedTotal.Inc()
}

func (m *RelayMetrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.cacheTotal.WithLabelValues(outcome).Inc()
}

func (m *RelayMetrics) ObserveGenerateLatency(backend string, seconds float64) {
	if m == nil {
		return
	}
	m.generateLatency.WithLabelValues(backend).Observe(seconds)
}
