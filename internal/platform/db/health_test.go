package db

import (
	"encoding/json"
	"testing"
)

func TestPoolStats_JSONShape(t *testing.T) {
	stats := &PoolStats{
		TotalConns:      10,
		IdleConns:       4,
		AcquiredConns:   6,
		MaxConns:        20,
		AcquireCount:    123,
		AcquireDuration: "1.5s",
		Healthy:         true,
	}

	raw, err := json.Marshal(stats)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	// The health endpoint and the pool gauges expose these names.
	for _, key := range []string{
		"total_conns", "idle_conns", "acquired_conns", "max_conns",
		"acquire_count", "acquire_duration", "healthy",
	} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("expected JSON key %q in %s", key, raw)
		}
	}

	if got := decoded["total_conns"].(float64); got != 10 {
		t.Errorf("total_conns: got %v, want 10", got)
	}
	if !decoded["healthy"].(bool) {
		t.Error("expected healthy true")
	}
}

func TestPoolStats_ZeroValueIsUnhealthy(t *testing.T) {
	var stats PoolStats
	if stats.Healthy {
		t.Error("zero-value stats must not report healthy")
	}
}
