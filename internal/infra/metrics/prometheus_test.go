package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterCacheEntries(t *testing.T) {
	entries := 3
	if err := RegisterCacheEntries(func() int { return entries }); err != nil {
		t.Fatalf("RegisterCacheEntries: %v", err)
	}
	if err := RegisterCacheEntries(func() int { return -1 }); err != nil {
		t.Fatalf("second registration should be ignored, got %v", err)
	}

	entries = 7
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	for _, mf := range families {
		if mf.GetName() != "ytstream_cache_entries" {
			continue
		}
		if got := mf.GetMetric()[0].GetGauge().GetValue(); got != 7 {
			t.Errorf("cache_entries = %v, want 7", got)
		}
		return
	}
	t.Fatal("ytstream_cache_entries not exported")
}
