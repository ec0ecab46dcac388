package cache

import (
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestGetPutRoundTrips(t *testing.T) {
	c := New(10, time.Minute)
	defer c.Close()

	c.Put("k1", []byte("v1"))
	v, ok := c.Get("k1")
	if !ok || string(v) != "v1" {
		t.Errorf("expected v1, got %q ok=%v", v, ok)
	}
}

func TestGetMissingKeyIsMiss(t *testing.T) {
	c := New(10, time.Minute)
	defer c.Close()
	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss for absent key")
	}
}

func TestEvictsLeastRecentlyUsedAtCapacity(t *testing.T) {
	c := New(2, time.Minute)
	defer c.Close()

	c.Put("a", []byte("1"))
	c.Put("b", []byte("2"))
	c.Get("a") // touch a, making b the LRU
	c.Put("c", []byte("3"))

	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted as LRU")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("expected a to survive eviction")
	}
}

func TestExpiredEntryIsNotReturned(t *testing.T) {
	c := New(10, time.Millisecond)
	defer c.Close()
	c.Put("k", []byte("v"))
	time.Sleep(5 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Error("expected expired entry to be treated as a miss")
	}
}

func TestKeyIsOrderIndependentForObjectFields(t *testing.T) {
	a := map[string]any{"task": "fix bug", "language": "go"}
	b := map[string]any{"language": "go", "task": "fix bug"}
	if Key("apex_patterns_lookup", a) != Key("apex_patterns_lookup", b) {
		t.Error("expected identical keys regardless of map key order")
	}
}

func TestKeyDiffersByToolName(t *testing.T) {
	req := map[string]any{"task": "x"}
	if Key("apex_patterns_lookup", req) == Key("apex_patterns_discover", req) {
		t.Error("expected different tools to produce different keys for the same request body")
	}
}

func TestCloseStopsEvictionGoroutine(t *testing.T) {
	defer goleak.VerifyNone(t)
	c := New(10, time.Millisecond)
	c.Put("k", []byte("v"))
	c.Close()
}
