package metrics

import "testing"

func TestRecordCallAccumulatesAverageLatency(t *testing.T) {
	c := New()
	c.RecordCall("apex_patterns_lookup", 10, false)
	c.RecordCall("apex_patterns_lookup", 20, true)

	tools, _, _ := c.Snapshot()
	stats := tools["apex_patterns_lookup"]
	if stats.Calls != 2 {
		t.Errorf("expected 2 calls, got %d", stats.Calls)
	}
	if stats.Errors != 1 {
		t.Errorf("expected 1 error, got %d", stats.Errors)
	}
	if stats.AvgLatencyMs != 15 {
		t.Errorf("expected avg latency 15, got %v", stats.AvgLatencyMs)
	}
}

func TestCacheHitMissCounters(t *testing.T) {
	c := New()
	c.RecordCacheHit()
	c.RecordCacheHit()
	c.RecordCacheMiss()

	_, hits, misses := c.Snapshot()
	if hits != 2 || misses != 1 {
		t.Errorf("expected hits=2 misses=1, got hits=%d misses=%d", hits, misses)
	}
}
