package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestObserveDecision_IncrementsCounter(t *testing.T) {
	DecisionsTotal.Reset()

	ObserveDecision("declined", "daily_limit_exceeded", 2*time.Millisecond)

	m := &dto.Metric{}
	counter, err := DecisionsTotal.GetMetricWithLabelValues("declined", "daily_limit_exceeded")
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues failed: %v", err)
	}
	_ = counter.Write(m)

	if m.Counter.GetValue() != 1.0 {
		t.Errorf("expected counter value 1, got %f", m.Counter.GetValue())
	}
}

func TestStatusBucket(t *testing.T) {
	cases := map[int]string{
		100: "1xx",
		200: "2xx",
		302: "3xx",
		404: "4xx",
		500: "5xx",
	}
	for code, want := range cases {
		if got := statusBucket(code); got != want {
			t.Errorf("statusBucket(%d) = %s, want %s", code, got, want)
		}
	}
}

func TestMetrics_Registered(t *testing.T) {
	gathered, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	found := make(map[string]bool)
	for _, mf := range gathered {
		found[mf.GetName()] = true
	}

	// Counters only appear after first write; DecisionsTotal was written above.
	if !found["authd_decisions_total"] {
		t.Error("authd_decisions_total not registered")
	}
}
