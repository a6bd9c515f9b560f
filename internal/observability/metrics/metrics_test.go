package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestRelayMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRelayMetrics(reg)

	m.ObserveInbound("message")
	m.ObserveInbound("message")
	m.ObserveReply("pattern")
	m.ObserveOutbound("sent")
	m.ObserveDropped()
	m.ObserveCache(true)
	m.ObserveCache(false)
	m.ObserveGenerateLatency("ollama", 0.2)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	want := map[string]bool{
		"chatrelay_relay_inbound_total":      false,
		"chatrelay_generator_replies_total":  false,
		"chatrelay_delivery_outbound_total":  false,
		"chatrelay_delivery_dropped_total":   false,
		"chatrelay_generator_cache_total":    false,
		"chatrelay_generator_latency_seconds": false,
	}
	var inbound *dto.MetricFamily
	for _, fam := range families {
		if _, ok := want[fam.GetName()]; ok {
			want[fam.GetName()] = true
		}
		if fam.GetName() == "chatrelay_relay_inbound_total" {
			inbound = fam
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("metric family %s not registered", name)
		}
	}
	if inbound == nil || len(inbound.Metric) != 1 {
		t.Fatal("expected one inbound series")
	}
	if got := inbound.Metric[0].GetCounter().GetValue(); got != 2 {
		t.Errorf("inbound counter = %v, want 2", got)
	}
}

func TestRelayMetricsNilSafe(t *testing.T) {
	var m *RelayMetrics
	m.ObserveInbound("message")
	m.ObserveReply("provider")
	m.ObserveOutbound("failed")
	m.ObserveDropped()
	m.ObserveCache(true)
	m.ObserveGenerateLatency("gemini", 0.1)
}
